// Package ast defines the input artifact this compiler core consumes: a
// parsed AST of tagged nodes with source spans (spec.md §6). Producing
// this tree is explicitly out of scope (the lexer/parser are external
// collaborators); this package only carries the node shapes the
// semantic analyzer walks.
//
// The shape — interface marker methods per node category, a SourceLoc
// field on every node — follows lang/yparse.Decl/Stmt/Expr, generalized
// from YAPL's three base types to Clarion's richer expression set and
// from a single-file SourceLoc to the multi-file (file-id, begin, end)
// span spec.md requires.
package ast

import "github.com/gmofishsauce/clarionc/internal/types"

// Span is the source-span format from spec.md §6.
type Span struct {
	FileID int
	Begin  int
	End    int
}

// Module is the root of the AST for one compilation unit.
type Module struct {
	Decls []Decl
}

// Decl is the interface for all top-level declarations.
type Decl interface {
	declNode()
	Loc() Span
}

// Stmt is the interface for all statements.
type Stmt interface {
	stmtNode()
	Loc() Span
}

// Expr is the interface for all expressions. Unlike the teacher's mutable
// SetType, type annotation is produced by the semantic analyzer into a
// side table (see sema.Analyzer.TypeOf) rather than by mutating the AST node in
// place, so the input AST stays read-only for the duration of analysis.
type Expr interface {
	exprNode()
	Loc() Span
}

// ---- Declarations ----

// StateVarDecl declares a persistent or transient storage variable.
type StateVarDecl struct {
	Name        string
	Type        *types.Type
	Transient   bool
	ExplicitSlot *int // non-nil if the source pinned a slot
	PackHint    bool
	Public      bool // recorded only; no getter function is generated
	Span_       Span
}

func (d *StateVarDecl) declNode() {}
func (d *StateVarDecl) Loc() Span { return d.Span_ }

// ImmutableDecl declares a deployment-time-written, never-again-written
// value living in the constant-pool immutable region.
type ImmutableDecl struct {
	Name  string
	Type  *types.Type
	Span_ Span
}

func (d *ImmutableDecl) declNode() {}
func (d *ImmutableDecl) Loc() Span { return d.Span_ }

// StructDecl declares a user struct.
type StructDecl struct {
	Name   string
	Fields []FieldDecl
	Span_  Span
}

func (d *StructDecl) declNode() {}
func (d *StructDecl) Loc() Span { return d.Span_ }

type FieldDecl struct {
	Name string
	Type *types.Type
}

// InterfaceDecl declares a named set of external function signatures.
type InterfaceDecl struct {
	Name    string
	Methods []InterfaceMethod
	Span_   Span
}

func (d *InterfaceDecl) declNode() {}
func (d *InterfaceDecl) Loc() Span { return d.Span_ }

type InterfaceMethod struct {
	Name    string
	Params  []Param
	Results []*types.Type
	Mut     types.Mutability
}

// EventDecl declares an event schema for log lowering.
type EventDecl struct {
	Name      string
	Params    []EventParam
	Anonymous bool
	Span_     Span
}

func (d *EventDecl) declNode() {}
func (d *EventDecl) Loc() Span { return d.Span_ }

type EventParam struct {
	Name    string
	Type    *types.Type
	Indexed bool
}

// ConstDecl declares a compile-time constant.
type ConstDecl struct {
	Name  string
	Type  *types.Type // nil if inferred from Value
	Value Expr
	Span_ Span
}

func (d *ConstDecl) declNode() {}
func (d *ConstDecl) Loc() Span { return d.Span_ }

// Param is a function parameter.
type Param struct {
	Name string
	Type *types.Type
}

// FuncDecl declares a function (constructor, external, or internal).
type FuncDecl struct {
	Name        string
	Params      []Param
	Results     []*types.Type
	Mut         types.Mutability
	External    bool
	Internal    bool
	IsConstructor bool
	Implements  []string // interfaces this function helps satisfy, informational
	Body        []Stmt
	Span_       Span
}

func (d *FuncDecl) declNode() {}
func (d *FuncDecl) Loc() Span { return d.Span_ }

// ImplementsDecl asserts the module implements an interface structurally.
type ImplementsDecl struct {
	Interface string
	Span_     Span
}

func (d *ImplementsDecl) declNode() {}
func (d *ImplementsDecl) Loc() Span { return d.Span_ }

// ---- Statements ----

type VarDeclStmt struct {
	Name  string
	Type  *types.Type // nil if inferred
	Init  Expr         // nil if none
	Span_ Span
}

func (s *VarDeclStmt) stmtNode() {}
func (s *VarDeclStmt) Loc() Span { return s.Span_ }

type AssignStmt struct {
	Target Expr
	Op     AssignOp
	Value  Expr
	Span_  Span
}

type AssignOp int

const (
	Assign AssignOp = iota
	AssignAdd
	AssignSub
	AssignMul
)

func (s *AssignStmt) stmtNode() {}
func (s *AssignStmt) Loc() Span { return s.Span_ }

type ExprStmt struct {
	X     Expr
	Span_ Span
}

func (s *ExprStmt) stmtNode() {}
func (s *ExprStmt) Loc() Span { return s.Span_ }

type IfStmt struct {
	Cond  Expr
	Then  []Stmt
	Else  []Stmt
	Span_ Span
}

func (s *IfStmt) stmtNode() {}
func (s *IfStmt) Loc() Span { return s.Span_ }

// ForStmt iterates Var from Low (inclusive) to High (exclusive); the
// bound is, per spec.md §4.4, statically known whenever Low and High are
// both compile-time constants, enabling bounds-check hoisting.
type ForStmt struct {
	Var   string
	Low   Expr
	High  Expr
	Body  []Stmt
	Span_ Span
}

func (s *ForStmt) stmtNode() {}
func (s *ForStmt) Loc() Span { return s.Span_ }

type BreakStmt struct{ Span_ Span }

func (s *BreakStmt) stmtNode() {}
func (s *BreakStmt) Loc() Span { return s.Span_ }

type ContinueStmt struct{ Span_ Span }

func (s *ContinueStmt) stmtNode() {}
func (s *ContinueStmt) Loc() Span { return s.Span_ }

type ReturnStmt struct {
	Values []Expr
	Span_  Span
}

func (s *ReturnStmt) stmtNode() {}
func (s *ReturnStmt) Loc() Span { return s.Span_ }

type RevertStmt struct {
	Message Expr // nil for bare revert
	Span_   Span
}

func (s *RevertStmt) stmtNode() {}
func (s *RevertStmt) Loc() Span { return s.Span_ }

type AssertStmt struct {
	Cond    Expr
	Message Expr // nil if none
	Span_   Span
}

func (s *AssertStmt) stmtNode() {}
func (s *AssertStmt) Loc() Span { return s.Span_ }

type LogStmt struct {
	Event string
	Args  []Expr
	Span_ Span
}

func (s *LogStmt) stmtNode() {}
func (s *LogStmt) Loc() Span { return s.Span_ }

// UncheckedBlock disables overflow checks for its statements (spec.md
// §4.4: "operations inside an explicitly unchecked region skip the
// check").
type UncheckedBlock struct {
	Body  []Stmt
	Span_ Span
}

func (s *UncheckedBlock) stmtNode() {}
func (s *UncheckedBlock) Loc() Span { return s.Span_ }

// ---- Expressions ----

type Ident struct {
	Name  string
	Span_ Span
}

func (e *Ident) exprNode() {}
func (e *Ident) Loc() Span { return e.Span_ }

type IntLiteral struct {
	Value string // decimal text; arbitrary precision, parsed by constfold
	Span_ Span
}

func (e *IntLiteral) exprNode() {}
func (e *IntLiteral) Loc() Span { return e.Span_ }

type DecimalLiteral struct {
	Value string // decimal text, e.g. "1.50"
	Span_ Span
}

func (e *DecimalLiteral) exprNode() {}
func (e *DecimalLiteral) Loc() Span { return e.Span_ }

type BoolLiteral struct {
	Value bool
	Span_ Span
}

func (e *BoolLiteral) exprNode() {}
func (e *BoolLiteral) Loc() Span { return e.Span_ }

type StringLiteral struct {
	Value string
	Span_ Span
}

func (e *StringLiteral) exprNode() {}
func (e *StringLiteral) Loc() Span { return e.Span_ }

type BytesLiteral struct {
	Value []byte
	Span_ Span
}

func (e *BytesLiteral) exprNode() {}
func (e *BytesLiteral) Loc() Span { return e.Span_ }

type BinaryExpr struct {
	Op    BinOp
	X, Y  Expr
	Span_ Span
}

type BinOp int

const (
	Add BinOp = iota
	Sub
	Mul
	Div
	Mod
	And
	Or
	Xor
	Shl
	Shr
	Eq
	Ne
	Lt
	Le
	Gt
	Ge
	LogAnd
	LogOr
)

func (e *BinaryExpr) exprNode() {}
func (e *BinaryExpr) Loc() Span { return e.Span_ }

type UnaryExpr struct {
	Op    UnOp
	X     Expr
	Span_ Span
}

type UnOp int

const (
	Neg UnOp = iota
	Not
	BitNot
)

func (e *UnaryExpr) exprNode() {}
func (e *UnaryExpr) Loc() Span { return e.Span_ }

// IndexExpr covers fixed/dynamic array indexing and mapping access; the
// analyzer distinguishes the two by the resolved type of X.
type IndexExpr struct {
	X, Index Expr
	Span_    Span
}

func (e *IndexExpr) exprNode() {}
func (e *IndexExpr) Loc() Span { return e.Span_ }

type FieldExpr struct {
	X     Expr
	Field string
	Span_ Span
}

func (e *FieldExpr) exprNode() {}
func (e *FieldExpr) Loc() Span { return e.Span_ }

// CallKind distinguishes the four call lowering strategies (spec.md
// §4.4).
type CallKind int

const (
	CallInternal CallKind = iota
	CallExternal
	CallDelegate
	CallStatic
)

type CallExpr struct {
	Callee Expr
	Args   []Expr
	Kind   CallKind
	Value  Expr // non-nil only for payable external calls
	Span_  Span
}

func (e *CallExpr) exprNode() {}
func (e *CallExpr) Loc() Span { return e.Span_ }

type StructLiteral struct {
	Type   string
	Fields map[string]Expr
	Span_  Span
}

func (e *StructLiteral) exprNode() {}
func (e *StructLiteral) Loc() Span { return e.Span_ }

// EnvExpr queries a VM environmental value (caller, value sent, block
// context, etc.) by name, lowered by the IR builder to an environmental
// query node.
type EnvExpr struct {
	Name  string
	Span_ Span
}

func (e *EnvExpr) exprNode() {}
func (e *EnvExpr) Loc() Span { return e.Span_ }
