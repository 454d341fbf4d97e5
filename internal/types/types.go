// Package types implements the type lattice from spec.md §3: primitives,
// composites, interfaces, and function types, each carrying the layout
// facts (memory size, storage size, alignment, pass-by-value/reference,
// word-addressability, ABI tag) the later phases need without recomputing
// them. The shape follows lang/sem.Type (Kind + BaseType discriminator)
// generalized from YAPL's three base types to the full Clarion lattice.
package types

import "fmt"

// Kind discriminates the type lattice. Every site that switches on Kind
// must be exhaustive (the "tagged variant over node kinds"
// re-architecture called for in spec.md §9).
type Kind int

const (
	Invalid Kind = iota
	Bool
	SignedInt
	UnsignedInt
	Decimal
	FixedBytes
	Address
	FixedArray
	DynamicArray
	BytesType // dynamic bytes/string, capacity-bounded
	Struct
	Mapping
	Interface
	Function
	Void // only valid as a function return type meaning "no value"
)

// Type is the canonical, arena-free representation of a Clarion type.
// Struct and Interface types are looked up by Name in the owning module's
// Arena (see Arena below); Type itself never embeds a *Type cycle back to
// a struct definition. This follows the "types in an arena"
// re-architecture in spec.md §9, with the arena keyed by name rather than
// by integer identifier.
type Type struct {
	Kind Kind

	// SignedInt / UnsignedInt: bit width, 8..256.
	Width int

	// Decimal: fixed scale (number of base-10 fractional digits).
	Scale int

	// FixedBytes: length in bytes, 1..32.
	Length int

	// FixedArray / DynamicArray / BytesType: element type and bound.
	// For DynamicArray and BytesType, Bound is the compile-time max
	// capacity; for FixedArray it is the exact length.
	Elem  *Type
	Bound int

	// Struct / Interface type reference: resolved lazily through the
	// arena by name to avoid cyclic ownership.
	Name string

	// Mapping: key and value types.
	Key   *Type
	Value *Type

	// Function: signature.
	Params  []*Type
	Results []*Type
	Mut     Mutability
}

// Mutability is the lattice from spec.md §4.1: pure < view < nonpayable <
// payable, plus a distinct deployment-only constructor class.
type Mutability int

const (
	Pure Mutability = iota
	View
	Nonpayable
	Payable
	Constructor
)

func (m Mutability) String() string {
	switch m {
	case Pure:
		return "pure"
	case View:
		return "view"
	case Nonpayable:
		return "nonpayable"
	case Payable:
		return "payable"
	case Constructor:
		return "constructor"
	default:
		return "invalid"
	}
}

// LE reports whether a target of class m may be called from a function of
// class other, i.e. m <= other (spec.md §4.1: "a call from a function of
// class C may target only functions of class <= C"). A Constructor caller
// is maximally permissive and may call anything.
func (m Mutability) LE(other Mutability) bool {
	if other == Constructor {
		return true
	}
	return m <= other
}

var (
	BoolType    = &Type{Kind: Bool}
	AddressType = &Type{Kind: Address}
)

func Uint(width int) *Type { return &Type{Kind: UnsignedInt, Width: width} }
func Int(width int) *Type  { return &Type{Kind: SignedInt, Width: width} }

func FixedBytesN(n int) *Type { return &Type{Kind: FixedBytes, Length: n} }

// DecimalType returns the canonical fixed-point type used as the default
// for unconstrained decimal literals (spec.md §4.1): 168 integer bits,
// 10 fractional decimal digits, matching the VM word's 256-bit budget.
func DecimalType() *Type {
	return &Type{Kind: Decimal, Width: 168, Scale: 10}
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case Invalid:
		return "<invalid>"
	case Void:
		return "void"
	case Bool:
		return "bool"
	case SignedInt:
		return fmt.Sprintf("int%d", t.Width)
	case UnsignedInt:
		return fmt.Sprintf("uint%d", t.Width)
	case Decimal:
		return fmt.Sprintf("decimal(%d)", t.Scale)
	case FixedBytes:
		return fmt.Sprintf("bytes%d", t.Length)
	case Address:
		return "address"
	case FixedArray:
		return fmt.Sprintf("%s[%d]", t.Elem, t.Bound)
	case DynamicArray:
		return fmt.Sprintf("%s[<=%d]", t.Elem, t.Bound)
	case BytesType:
		if t.Elem != nil {
			return fmt.Sprintf("string<=%d", t.Bound)
		}
		return fmt.Sprintf("bytes<=%d", t.Bound)
	case Struct:
		return "struct " + t.Name
	case Mapping:
		return fmt.Sprintf("map(%s => %s)", t.Key, t.Value)
	case Interface:
		return "interface " + t.Name
	case Function:
		return fmt.Sprintf("function(%v) %v %s", t.Params, t.Results, t.Mut)
	default:
		return "<unknown>"
	}
}

// IsIntegral reports whether a value of t participates in integer
// arithmetic and literal adaptation (spec.md §4.1 adaptLiteralToType).
func (t *Type) IsIntegral() bool {
	return t != nil && (t.Kind == SignedInt || t.Kind == UnsignedInt)
}

// IsValueType reports whether t is passed by value (copied) rather than
// by reference into a memory frame.
func (t *Type) IsValueType() bool {
	switch t.Kind {
	case Bool, SignedInt, UnsignedInt, Decimal, FixedBytes, Address:
		return true
	default:
		return false
	}
}

// WordAddressable reports whether a value of t occupies exactly one VM
// word when on the operand stack (spec.md §3 invariant: composite values
// are represented by a pointer word).
func (t *Type) WordAddressable() bool {
	return true // every IR expression yields exactly one word; see ir package.
}

// SizeBits returns the number of significant bits t occupies, used for
// packing decisions in the storage layout planner.
func (t *Type) SizeBits() int {
	switch t.Kind {
	case Bool:
		return 8
	case SignedInt, UnsignedInt:
		return t.Width
	case Decimal:
		return t.Width
	case FixedBytes:
		return t.Length * 8
	case Address:
		return 160
	default:
		return 256 // composites always occupy a full word/slot
	}
}

// SizeSlots returns the number of 256-bit storage slots a top-level
// storage symbol of type t requires when NOT packed with a neighbor.
// Mappings and dynamic arrays occupy exactly one slot for their
// length/base; their elements live in derived slots (see layout package).
func (t *Type) SizeSlots() int {
	if t.Kind == Struct {
		// Struct storage layout is computed by the layout planner by
		// summing packed field slots; callers should use that result
		// rather than this fallback.
		return 1
	}
	return 1
}

// SizeBytes returns the in-memory size in bytes for value-type scalars,
// used for ABI head-area sizing and memory-frame layout.
func (t *Type) SizeBytes() int {
	return 32 // every scalar and pointer occupies one 32-byte memory word.
}

// ABITag returns the canonical ABI encoding tag string for t, used by
// selector/signature computation (spec.md §4.4 external-call lowering).
func (t *Type) ABITag() string {
	switch t.Kind {
	case Bool:
		return "bool"
	case SignedInt:
		return fmt.Sprintf("int%d", t.Width)
	case UnsignedInt:
		return fmt.Sprintf("uint%d", t.Width)
	case Decimal:
		return fmt.Sprintf("uint%d", t.Width) // decimals encode as their backing integer
	case FixedBytes:
		return fmt.Sprintf("bytes%d", t.Length)
	case Address:
		return "address"
	case FixedArray:
		return fmt.Sprintf("%s[%d]", t.Elem.ABITag(), t.Bound)
	case DynamicArray:
		return fmt.Sprintf("%s[]", t.Elem.ABITag())
	case BytesType:
		if t.Elem == nil {
			return "bytes"
		}
		return "string"
	case Struct:
		return "tuple"
	default:
		return "bytes32"
	}
}

// Equal reports structural equality, used by the type checker's
// unification and the interface signature check.
func Equal(a, b *Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case SignedInt, UnsignedInt:
		return a.Width == b.Width
	case Decimal:
		return a.Width == b.Width && a.Scale == b.Scale
	case FixedBytes:
		return a.Length == b.Length
	case FixedArray, DynamicArray:
		return a.Bound == b.Bound && Equal(a.Elem, b.Elem)
	case BytesType:
		return a.Bound == b.Bound && (a.Elem == nil) == (b.Elem == nil)
	case Struct, Interface:
		return a.Name == b.Name
	case Mapping:
		return Equal(a.Key, b.Key) && Equal(a.Value, b.Value)
	case Function:
		if a.Mut != b.Mut || len(a.Params) != len(b.Params) || len(a.Results) != len(b.Results) {
			return false
		}
		for i := range a.Params {
			if !Equal(a.Params[i], b.Params[i]) {
				return false
			}
		}
		for i := range a.Results {
			if !Equal(a.Results[i], b.Results[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// StructDef is the arena entry for a user struct: an ordered list of
// named fields. Field types may themselves be Struct types, referenced by
// Name only — never by embedded pointer — so the arena remains free of
// ownership cycles (spec.md §9).
type StructDef struct {
	Name   string
	Fields []FieldDef
}

type FieldDef struct {
	Name string
	Type *Type
}

// InterfaceDef is the arena entry for a named interface: an ordered set
// of external function signatures.
type InterfaceDef struct {
	Name    string
	Methods []FieldDef // Type.Kind == Function for each entry
}

// Arena owns every Struct and Interface definition in a module, indexed
// by name. References to composite types elsewhere hold only the name;
// resolution goes through the Arena, so cyclic struct/interface
// references never become cyclic Go ownership graphs.
type Arena struct {
	Structs    map[string]*StructDef
	Interfaces map[string]*InterfaceDef
}

func NewArena() *Arena {
	return &Arena{
		Structs:    make(map[string]*StructDef),
		Interfaces: make(map[string]*InterfaceDef),
	}
}

func (a *Arena) Struct(name string) (*StructDef, bool) {
	d, ok := a.Structs[name]
	return d, ok
}

func (a *Arena) Interface(name string) (*InterfaceDef, bool) {
	d, ok := a.Interfaces[name]
	return d, ok
}
