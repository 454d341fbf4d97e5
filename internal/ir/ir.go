// Package ir defines the tree-structured intermediate representation
// from spec.md §4.4: the durable contract between the front end (sema,
// constfold, layout) and the back end (iropt, sched, bytecode). Every
// later phase operates only on this IR, never on the AST again.
//
// Node shape follows lang/ysem.IRInstr/IRFunc (Op string discriminator,
// Dest/Args/Label/Target fields) but is re-architected per spec.md §9
// from a flat linear instruction list into a genuine tree: each node has
// explicit typed Children, a derived Purity/SideEffect summary, and a
// provenance back-reference, matching the "tagged variant... exhaustive
// matching" and "explicit result values" redesign notes.
package ir

import (
	"github.com/gmofishsauce/clarionc/internal/ast"
	"github.com/gmofishsauce/clarionc/internal/types"
)

// Effect is the side-effect kind of an IR node (spec.md §3).
type Effect int

const (
	EffectNone Effect = 0
	EffectReadsStorage Effect = 1 << iota
	EffectWritesStorage
	EffectCallsExternal
	EffectLogsEvent
	EffectMayRevert
)

func (e Effect) Has(f Effect) bool { return e&f != 0 }

// Union combines a parent node's own effect kind with its children's,
// per the invariant in spec.md §3: "the side-effect kind of a parent is
// the union-bound of its children's side-effect kinds combined with the
// node's own kind".
func Union(own Effect, children ...Effect) Effect {
	e := own
	for _, c := range children {
		e |= c
	}
	return e
}

// Op enumerates every IR operator. Using an enum rather than the
// teacher's string opcode tags is the "string-typed opcode tags"
// redesign required by spec.md §9: the emitter's API accepts only values
// of this enumeration.
type Op int

const (
	OpInvalid Op = iota

	// Leaves
	OpConst
	OpLocalRef
	OpParamRef
	OpEnvQuery

	// Storage / memory
	OpStorageLoad
	OpStorageStore
	OpMemoryLoad
	OpMemoryStore
	OpFieldExtract // mask/shift read of a packed field
	OpFieldInsert  // mask/shift write of a packed field

	// Mapping / array addressing
	OpMappingSlot   // hash(key || base) -> slot
	OpArrayElemAddr // bounds-checked a[i] address
	OpArrayLen

	// Arithmetic, checked and unchecked variants
	OpAddChecked
	OpAddUnchecked
	OpSubChecked
	OpSubUnchecked
	OpMulChecked
	OpMulUnchecked
	OpDivChecked // always checks divisor != 0
	OpModChecked
	OpNeg

	// Bitwise / logical
	OpAnd
	OpOr
	OpXor
	OpNot
	OpShl
	OpShr
	OpBoolAnd
	OpBoolOr

	// Comparison
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe

	// Control flow (statements)
	OpIf
	OpFor
	OpBreak
	OpContinue
	OpReturn
	OpRevert
	OpAssert
	OpBlock
	OpExprStmt
	OpAssign

	// Calls
	OpCallInternal
	OpCallExternal
	OpCallDelegate
	OpCallStatic
	OpLog

	// Structs
	OpStructLiteral
	OpFieldAccess
)

// Node is the common interface for every IR tree node.
type Node interface {
	node()
	// Type is nil for statement nodes.
	ResultType() *types.Type
	Effect() Effect
	// Span is the provenance back-reference into the source AST used for
	// diagnostics and source maps (spec.md §3).
	Span() ast.Span
}

// base carries the fields every node shares.
type base struct {
	Op_     Op
	Type_   *types.Type
	Effect_ Effect
	Span_   ast.Span
}

func (b *base) node()                 {}
func (b *base) ResultType() *types.Type { return b.Type_ }
func (b *base) Effect() Effect         { return b.Effect_ }
func (b *base) Span() ast.Span         { return b.Span_ }

// Expr is an IR node that yields exactly one VM word on the operand
// stack after code generation (spec.md §3 invariant); composite values
// are a pointer word into a memory frame.
type Expr struct {
	base
	Children []Node // operand subexpressions, evaluation order left-to-right
	Const    *ConstValue
	Symbol   string // local/param/storage symbol name, when applicable
	Field    string // struct field name or event/function name, when applicable
	Args     []Expr // call arguments / struct literal field values, when applicable
}

// ConstValue is a folded compile-time constant attached to an OpConst
// leaf; IntText is a decimal-text representation so the node stays free of
// unexported big.Int internals leaking across package boundaries.
type ConstValue struct {
	IntText string
	Bytes   []byte
}

func NewExpr(op Op, t *types.Type, span ast.Span, eff Effect, children ...Node) *Expr {
	return &Expr{base: base{Op_: op, Type_: t, Effect_: eff, Span_: span}, Children: children}
}

func (e *Expr) Op() Op { return e.Op_ }

// Purity reports whether e may be treated as a dead-code-eliminable,
// common-subexpression-eliminable pure value: no storage read, no
// external call, no logging, no revert possibility.
func (e *Expr) Purity() bool {
	return e.Effect_ == EffectNone
}

// Stmt is an IR node producing no value; it must leave the operand stack
// at the depth it found it (spec.md §3 invariant).
type Stmt struct {
	base
	Cond     *Expr
	Then     []*Stmt
	Else     []*Stmt
	Body     []*Stmt
	LoopVar  string
	LoopLow  *Expr
	LoopHigh *Expr
	X        *Expr  // ExprStmt payload
	Results  []*Expr
	Target   *Expr // Assign target
	Value    *Expr // Assign value
	Message  *Expr
	Event    string
	Args     []*Expr
}

func NewStmt(op Op, span ast.Span, eff Effect) *Stmt {
	return &Stmt{base: base{Op_: op, Effect_: eff, Span_: span}}
}

func (s *Stmt) Op() Op { return s.Op_ }

// Function is one function body lowered to IR, built independently of
// every other function (spec.md §3 Lifecycle: "IR trees are built per
// function, optimized in isolation, then stitched by the assembler via
// the dispatcher").
type Function struct {
	Name     string
	Params   []Param
	Results  []*types.Type
	Mut      types.Mutability
	External bool
	Body     []*Stmt

	// FrameSlots is not written by any phase; the scheduler reports the
	// frame size on sched.Function.FrameSlots instead.
	FrameSlots int
}

type Param struct {
	Name string
	Type *types.Type
}

// Module is every function plus the struct/interface definitions (the
// Arena) and the event schemas. Storage layout stays on the symbol table's
// symbols and folded constants are not carried here.
type Module struct {
	Functions []*Function
	Arena     *types.Arena
	Events    []EventSchema
}

type EventSchema struct {
	Name      string
	Params    []EventParam
	Anonymous bool
}

type EventParam struct {
	Name    string
	Type    *types.Type
	Indexed bool
}
