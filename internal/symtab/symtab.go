// Package symtab implements the module symbol table that the semantic
// analyzer populates in phase (i) (spec.md §3 Lifecycle), holds read-only
// through phase (ii), and later phases only consult.
//
// The shape — a LocKind enum, a flat Symbol struct carrying storage
// details, a per-function symbol map — follows lang/yparse.Storage /
// lang/yparse.Symbol, generalized from YAPL's global/static/param/local
// four-way split to Clarion's storage/immutable/transient/memory/
// calldata/stack location kinds.
package symtab

import "github.com/gmofishsauce/clarionc/internal/types"

// LocKind is where a symbol's value lives at runtime.
type LocKind int

const (
	LocInvalid LocKind = iota
	LocStorage
	LocImmutable
	LocTransient
	LocMemory
	LocCalldata
	LocStack
)

func (k LocKind) String() string {
	switch k {
	case LocStorage:
		return "storage"
	case LocImmutable:
		return "immutable"
	case LocTransient:
		return "transient"
	case LocMemory:
		return "memory"
	case LocCalldata:
		return "calldata"
	case LocStack:
		return "stack"
	default:
		return "invalid"
	}
}

// Symbol is a named binding: a type, a scope, a location, and mutability
// flags. Storage symbols additionally carry their assigned slot and, for
// packed composites, the bit offset within that slot (spec.md §3).
type Symbol struct {
	Name string
	Type *types.Type
	Loc  LocKind

	// Function/block scope nesting depth; 0 is module scope.
	Depth int

	// Populated by the storage layout planner for LocStorage/LocTransient
	// symbols; meaningless otherwise.
	Slot      uint64
	BitOffset int
	SizeSlots int

	// Populated for LocImmutable symbols by the layout planner: the byte
	// offset within the deployment code's constant pool.
	ImmutableOffset int

	// Not populated by any phase: the scheduler keeps frame slots in its
	// own map and never writes to the table.
	FrameOffset int

	Mutable bool // false for constants and immutables after construction
}

// FuncSymbol is the symbol-table entry for a function declaration.
type FuncSymbol struct {
	Name     string
	Params   []*types.Type
	Results  []*types.Type
	Mut      types.Mutability
	External bool
	Internal bool
}

// Scope is one level of lexical nesting: module, function, or block.
type Scope struct {
	Parent  *Scope
	Symbols map[string]*Symbol
}

func NewScope(parent *Scope) *Scope {
	return &Scope{Parent: parent, Symbols: make(map[string]*Symbol)}
}

func (s *Scope) Define(sym *Symbol) {
	s.Symbols[sym.Name] = sym
}

// Lookup searches this scope and its ancestors, returning the nearest
// definition (block scope shadows function scope shadows module scope).
func (s *Scope) Lookup(name string) (*Symbol, bool) {
	for sc := s; sc != nil; sc = sc.Parent {
		if sym, ok := sc.Symbols[name]; ok {
			return sym, true
		}
	}
	return nil, false
}

// Table is the full module symbol table: module-level state, structs,
// interfaces, constants, and functions.
type Table struct {
	Module      *Scope
	Functions   map[string]*FuncSymbol
	Arena       *types.Arena
	Interfaces  map[string][]string // interface names from implements declarations (keys only; values are nil), for the structural check
}

func New() *Table {
	return &Table{
		Module:     NewScope(nil),
		Functions:  make(map[string]*FuncSymbol),
		Arena:      types.NewArena(),
		Interfaces: make(map[string][]string),
	}
}
