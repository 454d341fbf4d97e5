// Package abi builds the external interface descriptor spec.md §5
// requires of every compiled module: one entry per external/payable
// function and per event, each carrying its keccak-derived selector or
// topic hash, plus the mapping/dynamic-array storage slot derivation the
// layout and IR packages depend on.
//
// Hashing is grounded on golang.org/x/crypto/sha3, the same package
// vybium-starks-vm/internal/vybium-starks-vm/utils.Channel uses for its
// Fiat-Shamir transcript; this package uses the legacy Keccak-256
// variant rather than Channel's padded SHA3-256; the two differ in
// finalization padding, and selector derivation requires the pre-NIST
// Keccak round, not plain SHA3.
package abi

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/gmofishsauce/clarionc/internal/ast"
	"github.com/gmofishsauce/clarionc/internal/types"
)

// Keccak256 hashes data with the legacy (pre-standardization) Keccak
// padding, the variant spec.md §5 and §4.3 both assume.
func Keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// Selector is the first 4 bytes of Keccak256(signature), interpreted
// big-endian (spec.md §5).
func Selector(signature string) uint32 {
	sum := Keccak256([]byte(signature))
	return uint32(sum[0])<<24 | uint32(sum[1])<<16 | uint32(sum[2])<<8 | uint32(sum[3])
}

// FunctionEntry is one external/payable function's ABI descriptor.
type FunctionEntry struct {
	Name      string
	Signature string
	Selector  uint32
	Inputs    []Param
	Outputs   []Param
	Mutable   types.Mutability
}

// EventEntry is one event's ABI descriptor.
type EventEntry struct {
	Name      string
	Signature string
	TopicHash []byte
	Params    []EventParam
	Anonymous bool
}

type Param struct {
	Name string
	Type *types.Type
}

type EventParam struct {
	Name    string
	Type    *types.Type
	Indexed bool
}

// Descriptor is the whole module's external interface.
type Descriptor struct {
	Functions []FunctionEntry
	Events    []EventEntry
}

// BuildFunction computes one function's signature and selector.
func BuildFunction(decl *ast.FuncDecl) FunctionEntry {
	inputs := make([]Param, len(decl.Params))
	for i, p := range decl.Params {
		inputs[i] = Param{Name: p.Name, Type: p.Type}
	}
	outputs := make([]Param, len(decl.Results))
	for i, t := range decl.Results {
		outputs[i] = Param{Type: t}
	}
	sig := Signature(decl.Name, inputs)
	return FunctionEntry{
		Name:      decl.Name,
		Signature: sig,
		Selector:  Selector(sig),
		Inputs:    inputs,
		Outputs:   outputs,
		Mutable:   decl.Mut,
	}
}

// BuildEvent computes one event's signature and topic hash.
func BuildEvent(decl *ast.EventDecl) EventEntry {
	params := make([]EventParam, len(decl.Params))
	inputs := make([]Param, len(decl.Params))
	for i, p := range decl.Params {
		params[i] = EventParam{Name: p.Name, Type: p.Type, Indexed: p.Indexed}
		inputs[i] = Param{Name: p.Name, Type: p.Type}
	}
	sig := Signature(decl.Name, inputs)
	return EventEntry{
		Name:      decl.Name,
		Signature: sig,
		TopicHash: Keccak256([]byte(sig)),
		Params:    params,
		Anonymous: decl.Anonymous,
	}
}

// Signature renders the canonical "name(type,type,...)" form selectors
// and topic hashes are derived from.
func Signature(name string, params []Param) string {
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('(')
	for i, p := range params {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(p.Type.ABITag())
	}
	sb.WriteByte(')')
	return sb.String()
}

// MappingSlot computes the storage slot a mapping value lives at:
// keccak256(key || baseSlot), the derivation spec.md §4.3 requires for
// mapping and dynamic-array element addressing. key must already be
// encoded to its 32-byte ABI word form.
func MappingSlot(key []byte, baseSlot uint64) []byte {
	buf := make([]byte, 0, len(key)+32)
	buf = append(buf, key...)
	buf = append(buf, slotWord(baseSlot)...)
	return Keccak256(buf)
}

func slotWord(slot uint64) []byte {
	out := make([]byte, 32)
	for i := 0; i < 8; i++ {
		out[31-i] = byte(slot >> (8 * i))
	}
	return out
}

func (d Descriptor) String() string {
	var sb strings.Builder
	for _, f := range d.Functions {
		fmt.Fprintf(&sb, "function %s selector=0x%08x\n", f.Signature, f.Selector)
	}
	for _, e := range d.Events {
		fmt.Fprintf(&sb, "event %s topic=0x%x\n", e.Signature, e.TopicHash)
	}
	return sb.String()
}
