// Package layout implements the storage layout planner from spec.md §4.3:
// sequential slot assignment with packing for persistent and transient
// storage, explicit-slot annotation honoring, and immutable-region byte
// offset assignment within the deployment constant pool.
//
// The allocation bookkeeping (a running offset plus a frame-size total)
// follows the frame-size accounting in lang/gen.RegAllocator
// (nextSpill/frameSize) and lang/ygen.IRLocal.Offset, generalized from a
// byte-addressed local-variable frame to a slot-addressed, bit-packed
// persistent-storage region.
package layout

import (
	"fmt"

	"github.com/gmofishsauce/clarionc/internal/symtab"
	"github.com/gmofishsauce/clarionc/internal/types"
)

const slotBits = 256

// Planner assigns slots to storage-class symbols.
type Planner struct {
	nextSlot          uint64
	nextTransientSlot uint64
	nextImmutableOff  int
	usedSlots         map[uint64]bool
	pendingBits       int  // bits already used in the in-progress pack's slot
	pendingTransient  bool // region the in-progress pack belongs to
}

func NewPlanner() *Planner {
	return &Planner{usedSlots: make(map[uint64]bool)}
}

// Plan assigns a (slot, bit-offset, size-in-slots) triple to every
// storage/transient symbol in syms, in declaration order, honoring
// explicit slot annotations (sym.Slot pre-populated and sym.Mutable true
// is not itself a signal; the analyzer marks an explicit annotation by
// leaving Slot non-zero only when the source pinned it — callers pass
// explicit separately to disambiguate slot 0).
func (p *Planner) Plan(syms []*symtab.Symbol, explicit map[*symtab.Symbol]bool) error {
	for _, sym := range syms {
		switch sym.Loc {
		case symtab.LocStorage:
			if err := p.place(sym, explicit[sym], false); err != nil {
				return err
			}
		case symtab.LocTransient:
			if err := p.place(sym, explicit[sym], true); err != nil {
				return err
			}
		case symtab.LocImmutable:
			sym.ImmutableOffset = p.nextImmutableOff
			p.nextImmutableOff += sym.Type.SizeBytes()
		}
	}
	return nil
}

func (p *Planner) place(sym *symtab.Symbol, explicit, transient bool) error {
	sizeBits := sym.Type.SizeBits()
	composite := !sym.Type.IsValueType() || sym.Type.Kind == types.Mapping || sym.Type.Kind == types.DynamicArray

	if explicit {
		// A second symbol pinned to an already-claimed slot is always a
		// collision: this planner has no mechanism for an explicit pin to
		// request sharing a slot (packing only happens for sequentially
		// allocated scalars below), so composite and scalar claims alike
		// must land on a still-free slot (spec.md §4.3, §7 "slot overlap",
		// §8 storage disjointness).
		if p.used(sym.Slot, transient) {
			return fmt.Errorf("storage layout: slot %d pinned by %q is already in use", sym.Slot, sym.Name)
		}
		p.markUsed(sym.Slot, transient)
		sym.BitOffset = 0
		sym.SizeSlots = slotsFor(sizeBits)
		return nil
	}

	// Composite symbols always start a new slot (spec.md §4.3).
	if composite {
		slot := p.advance(transient)
		sym.Slot = slot
		sym.BitOffset = 0
		sym.SizeSlots = 1
		p.markUsed(slot, transient)
		return nil
	}

	// Scalars pack into the region's in-progress slot if they fit.
	if cur, ok := p.pendingBitsSlot(transient); ok && p.pendingBits+sizeBits <= slotBits {
		sym.Slot = cur
		sym.BitOffset = p.pendingBits
		sym.SizeSlots = 1
		p.pendingBits += sizeBits
		p.markUsed(cur, transient)
		return nil
	}

	// Doesn't fit: start a fresh slot.
	slot := p.advance(transient)
	sym.Slot = slot
	sym.BitOffset = 0
	sym.SizeSlots = 1
	p.pendingBits = sizeBits
	p.pendingTransient = transient
	p.markUsed(slot, transient)
	return nil
}

// pendingBitsSlot reports the slot holding the in-progress pack of the
// given region, and false when that region has no pack in progress. One
// pendingBits counter serves both regions: advance() resets it whenever
// either region starts a new slot, and pendingTransient records which
// region the counter belongs to.
func (p *Planner) pendingBitsSlot(transient bool) (uint64, bool) {
	if p.pendingBits == 0 || p.pendingTransient != transient {
		return 0, false
	}
	return p.current(transient) - 1, true
}

func (p *Planner) current(transient bool) uint64 {
	if transient {
		return p.nextTransientSlot
	}
	return p.nextSlot
}

func (p *Planner) advance(transient bool) uint64 {
	if transient {
		slot := p.nextTransientSlot
		p.nextTransientSlot++
		p.pendingBits = 0
		return slot
	}
	slot := p.nextSlot
	p.nextSlot++
	p.pendingBits = 0
	return slot
}

func (p *Planner) used(slot uint64, transient bool) bool {
	return p.usedSlots[key(slot, transient)]
}

func (p *Planner) markUsed(slot uint64, transient bool) {
	p.usedSlots[key(slot, transient)] = true
}

func key(slot uint64, transient bool) uint64 {
	if transient {
		return slot | (1 << 63)
	}
	return slot
}

func slotsFor(bits int) int {
	if bits <= slotBits {
		return 1
	}
	return (bits + slotBits - 1) / slotBits
}

// StructLayout computes packed (bitOffset, slot-within-struct) placement
// for each field of a struct definition, used when a struct is the
// element type of a storage array or the value type of a storage
// mapping.
type FieldLayout struct {
	Name      string
	SlotIndex int // offset in slots from the struct's base slot
	BitOffset int
}

func StructLayout(def *types.StructDef) ([]FieldLayout, int) {
	var out []FieldLayout
	slot, bits := 0, 0
	for _, f := range def.Fields {
		sizeBits := f.Type.SizeBits()
		composite := !f.Type.IsValueType()
		if composite || bits+sizeBits > slotBits {
			if bits > 0 {
				slot++
				bits = 0
			}
		}
		out = append(out, FieldLayout{Name: f.Name, SlotIndex: slot, BitOffset: bits})
		if composite {
			slot++
			bits = 0
		} else {
			bits += sizeBits
		}
	}
	totalSlots := slot
	if bits > 0 {
		totalSlots++
	}
	return out, totalSlots
}

// MappingSlot describes how to compute the value slot for a mapping
// access: hash(key || baseSlot), composed for nested mappings (spec.md
// §4.4). The keccak derivation itself is abi.MappingSlot; the IR builder
// emits an OpMappingSlot node that lowers to the MAPPINGSLOT opcode. This
// type only carries the base slot the hash is keyed on.
type MappingSlot struct {
	BaseSlot uint64
}

func (m MappingSlot) String() string {
	return fmt.Sprintf("mapping@%d", m.BaseSlot)
}
