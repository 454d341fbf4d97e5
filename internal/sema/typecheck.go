// Function-body type checking: phase (ii) of spec.md §3. Mirrors
// lang/sem.Analyzer.typeCheckFunc/typeCheckStmt/typeCheckExpr, extended
// with Clarion's bidirectional inference (expected-type-down,
// inferred-type-up), the mutability lattice, and visibility rules.
package sema

import (
	"github.com/gmofishsauce/clarionc/internal/ast"
	"github.com/gmofishsauce/clarionc/internal/symtab"
	"github.com/gmofishsauce/clarionc/internal/types"
)

// checkFunctionBodies is phase (ii): each function is checked
// independently and in declaration order; an error in one function does
// not prevent analysis of the next (spec.md §7 Propagation policy).
func (a *Analyzer) checkFunctionBodies() {
	for _, d := range a.mod.Decls {
		fd, ok := d.(*ast.FuncDecl)
		if !ok {
			continue
		}
		a.checkFunction(fd)
	}
}

func (a *Analyzer) checkFunction(fd *ast.FuncDecl) {
	a.currentFn = fd
	a.currentMut = fd.Mut
	if fd.IsConstructor {
		a.currentMut = types.Constructor
	}
	a.localScope = symtab.NewScope(a.table.Module)
	a.loopDepth = 0
	a.uncheckedDepth = 0

	for _, p := range fd.Params {
		if _, exists := a.localScope.Symbols[p.Name]; exists {
			a.errf(fd.Loc(), "E-DUP-PARAM", "duplicate parameter %q", p.Name)
			continue
		}
		a.localScope.Define(&symtab.Symbol{Name: p.Name, Type: p.Type, Loc: symtab.LocStack, Mutable: true})
	}

	for _, s := range fd.Body {
		a.checkStmt(s)
	}

	a.currentFn = nil
	a.localScope = nil
}

func (a *Analyzer) checkStmt(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.VarDeclStmt:
		var t *types.Type
		if s.Init != nil {
			t = a.checkExprExpect(s.Init, s.Type)
		}
		if s.Type != nil {
			t = s.Type
		}
		if t == nil {
			a.errf(s.Loc(), "E-NO-TYPE", "cannot infer type of %q", s.Name)
			return
		}
		if _, exists := a.localScope.Symbols[s.Name]; exists {
			a.errf(s.Loc(), "E-DUP-LOCAL", "duplicate local %q", s.Name)
			return
		}
		a.localScope.Define(&symtab.Symbol{Name: s.Name, Type: t, Loc: symtab.LocStack, Mutable: true})

	case *ast.AssignStmt:
		targetType := a.checkExpr(s.Target)
		a.checkWritable(s.Target, s.Loc())
		if targetType != nil {
			a.checkExprExpect(s.Value, targetType)
		} else {
			a.checkExpr(s.Value)
		}

	case *ast.ExprStmt:
		a.checkExpr(s.X)

	case *ast.IfStmt:
		a.checkExprExpect(s.Cond, types.BoolType)
		for _, st := range s.Then {
			a.checkStmt(st)
		}
		for _, st := range s.Else {
			a.checkStmt(st)
		}

	case *ast.ForStmt:
		a.checkExprExpect(s.Low, types.Uint(256))
		a.checkExprExpect(s.High, types.Uint(256))
		saved := a.localScope
		a.localScope = symtab.NewScope(saved)
		a.localScope.Define(&symtab.Symbol{Name: s.Var, Type: types.Uint(256), Loc: symtab.LocStack})
		a.loopDepth++
		for _, st := range s.Body {
			a.checkStmt(st)
		}
		a.loopDepth--
		a.localScope = saved

	case *ast.BreakStmt:
		if a.loopDepth == 0 {
			a.errf(s.Loc(), "E-BREAK-OUTSIDE-LOOP", "break outside loop")
		}

	case *ast.ContinueStmt:
		if a.loopDepth == 0 {
			a.errf(s.Loc(), "E-CONTINUE-OUTSIDE-LOOP", "continue outside loop")
		}

	case *ast.ReturnStmt:
		if a.currentFn == nil {
			return
		}
		want := a.currentFn.Results
		if len(s.Values) != len(want) {
			a.errf(s.Loc(), "E-ARITY", "return has %d values, function declares %d", len(s.Values), len(want))
		}
		for i, v := range s.Values {
			if i < len(want) {
				a.checkExprExpect(v, want[i])
			} else {
				a.checkExpr(v)
			}
		}

	case *ast.RevertStmt:
		if s.Message != nil {
			a.checkExpr(s.Message)
		}

	case *ast.AssertStmt:
		a.checkExprExpect(s.Cond, types.BoolType)
		if s.Message != nil {
			a.checkExpr(s.Message)
		}

	case *ast.LogStmt:
		for _, arg := range s.Args {
			a.checkExpr(arg)
		}
		if a.currentMut == types.Pure || a.currentMut == types.View {
			a.errf(s.Loc(), "E-LOG-IN-VIEW", "log statement requires a nonpayable or payable function")
		}

	case *ast.UncheckedBlock:
		a.uncheckedDepth++
		for _, st := range s.Body {
			a.checkStmt(st)
		}
		a.uncheckedDepth--
	}
}

// checkWritable rejects assignment to storage from a view/pure function
// (spec.md §7: "write in view context") and to immutables outside a
// constructor (spec.md §3 invariant: immutables are written exactly once
// during deployment).
func (a *Analyzer) checkWritable(target ast.Expr, span ast.Span) {
	root := rootIdent(target)
	if root == nil {
		return
	}
	sym, ok := a.localScope.Lookup(root.Name)
	if !ok {
		return
	}
	switch sym.Loc {
	case symtab.LocStorage, symtab.LocTransient:
		if a.currentMut == types.Pure || a.currentMut == types.View {
			a.errf(span, "E-WRITE-IN-VIEW", "cannot write storage variable %q from a %s function", root.Name, a.currentMut)
		}
	case symtab.LocImmutable:
		if a.currentMut != types.Constructor {
			a.errf(span, "E-IMMUTABLE-WRITE", "immutable %q can only be written in the constructor", root.Name)
		}
	}
}

func rootIdent(e ast.Expr) *ast.Ident {
	switch x := e.(type) {
	case *ast.Ident:
		return x
	case *ast.IndexExpr:
		return rootIdent(x.X)
	case *ast.FieldExpr:
		return rootIdent(x.X)
	default:
		return nil
	}
}

// checkExprExpect type-checks e with an expected type flowing down
// (spec.md §4.1 bidirectional inference: "expected types flow down from
// context"). It adapts polymorphic integer/decimal literals to the
// expected type and reports a mismatch otherwise.
func (a *Analyzer) checkExprExpect(e ast.Expr, want *types.Type) *types.Type {
	if want != nil {
		switch lit := e.(type) {
		case *ast.IntLiteral:
			a.TypeOf[e] = want
			_ = lit
			return want
		case *ast.DecimalLiteral:
			if want.Kind == types.Decimal {
				a.TypeOf[e] = want
				return want
			}
		}
	}
	got := a.checkExpr(e)
	if want != nil && got != nil && !types.Equal(want, got) && !literalAdaptable(e, got, want) {
		a.errf(e.Loc(), "E-TYPE-MISMATCH", "expected %s, got %s", want, got)
	}
	if want != nil {
		return want
	}
	return got
}

func literalAdaptable(e ast.Expr, got, want *types.Type) bool {
	_, isIntLit := e.(*ast.IntLiteral)
	return isIntLit && want.IsIntegral() && got.IsIntegral()
}

// checkExpr type-checks e with no expected type; inferred types flow up
// from literals and named references (spec.md §4.1).
func (a *Analyzer) checkExpr(e ast.Expr) *types.Type {
	if e == nil {
		return nil
	}
	var t *types.Type
	switch x := e.(type) {
	case *ast.Ident:
		t = a.identType(x)
	case *ast.IntLiteral:
		// Unconstrained integer literals are typed uint256 whatever their
		// value; no smaller fitting type is chosen. A literal whose context
		// supplies a type takes that type in checkExprExpect instead.
		t = types.Uint(256)
	case *ast.DecimalLiteral:
		t = types.DecimalType()
	case *ast.BoolLiteral:
		t = types.BoolType
	case *ast.StringLiteral:
		t = &types.Type{Kind: types.BytesType, Elem: types.BoolType, Bound: len(x.Value)}
	case *ast.BytesLiteral:
		t = &types.Type{Kind: types.BytesType, Bound: len(x.Value)}
	case *ast.UnaryExpr:
		t = a.checkExpr(x.X)
	case *ast.BinaryExpr:
		t = a.checkBinary(x)
	case *ast.IndexExpr:
		t = a.checkIndex(x)
	case *ast.FieldExpr:
		t = a.checkField(x)
	case *ast.CallExpr:
		t = a.checkCall(x)
	case *ast.StructLiteral:
		t = a.checkStructLiteral(x)
	case *ast.EnvExpr:
		t = envType(x.Name)
	default:
		a.errf(e.Loc(), "E-ICE-EXPR", "unhandled expression kind %T", e)
	}
	a.TypeOf[e] = t
	return t
}

func envType(name string) *types.Type {
	switch name {
	case "caller", "origin", "this":
		return types.AddressType
	case "value", "gas", "timestamp", "blocknumber", "chainid":
		return types.Uint(256)
	default:
		return types.Uint(256)
	}
}

func (a *Analyzer) identType(x *ast.Ident) *types.Type {
	if a.localScope != nil {
		if sym, ok := a.localScope.Lookup(x.Name); ok {
			return sym.Type
		}
	}
	if sym, ok := a.table.Module.Lookup(x.Name); ok {
		return sym.Type
	}
	a.errf(x.Loc(), "E-UNDEF", "undefined name %q", x.Name)
	return nil
}

func (a *Analyzer) checkBinary(x *ast.BinaryExpr) *types.Type {
	lt := a.checkExpr(x.X)
	rt := a.checkExpr(x.Y)
	switch x.Op {
	case ast.Eq, ast.Ne, ast.Lt, ast.Le, ast.Gt, ast.Ge:
		return types.BoolType
	case ast.LogAnd, ast.LogOr:
		return types.BoolType
	default:
		if lt != nil {
			return lt
		}
		return rt
	}
}

func (a *Analyzer) checkIndex(x *ast.IndexExpr) *types.Type {
	xt := a.checkExpr(x.X)
	if xt == nil {
		return nil
	}
	switch xt.Kind {
	case types.Mapping:
		a.checkExprExpect(x.Index, xt.Key)
		return xt.Value
	case types.FixedArray, types.DynamicArray:
		a.checkExprExpect(x.Index, types.Uint(256))
		return xt.Elem
	default:
		a.errf(x.Loc(), "E-NOT-INDEXABLE", "type %s is not indexable", xt)
		return nil
	}
}

func (a *Analyzer) checkField(x *ast.FieldExpr) *types.Type {
	xt := a.checkExpr(x.X)
	if xt == nil || xt.Kind != types.Struct {
		a.errf(x.Loc(), "E-NOT-STRUCT", "field access on non-struct type")
		return nil
	}
	def, ok := a.table.Arena.Struct(xt.Name)
	if !ok {
		return nil
	}
	for _, f := range def.Fields {
		if f.Name == x.Field {
			return f.Type
		}
	}
	a.errf(x.Loc(), "E-NO-FIELD", "struct %s has no field %q", xt.Name, x.Field)
	return nil
}

func (a *Analyzer) checkStructLiteral(x *ast.StructLiteral) *types.Type {
	def, ok := a.table.Arena.Struct(x.Type)
	if !ok {
		a.errf(x.Loc(), "E-UNDEF-TYPE", "undefined struct %q", x.Type)
		return nil
	}
	for _, f := range def.Fields {
		if v, ok := x.Fields[f.Name]; ok {
			a.checkExprExpect(v, f.Type)
		} else {
			a.errf(x.Loc(), "E-MISSING-FIELD", "struct literal %q missing field %q", x.Type, f.Name)
		}
	}
	return &types.Type{Kind: types.Struct, Name: x.Type}
}

func (a *Analyzer) checkCall(x *ast.CallExpr) *types.Type {
	for _, arg := range x.Args {
		a.checkExpr(arg)
	}
	if x.Value != nil {
		a.checkExprExpect(x.Value, types.Uint(256))
		if a.currentMut != types.Payable && a.currentMut != types.Constructor {
			a.errf(x.Loc(), "E-PAYABLE-CALL", "sending value requires a payable calling context")
		}
	}

	ident, isIdent := x.Callee.(*ast.Ident)
	if x.Kind == ast.CallInternal && isIdent {
		fn, ok := a.table.Functions[ident.Name]
		if !ok {
			a.errf(x.Loc(), "E-UNDEF-FUNC", "undefined function %q", ident.Name)
			return nil
		}
		if !fn.Mut.LE(a.currentMut) {
			a.errf(x.Loc(), "E-MUT-CALL", "%s function %q cannot call %s function %q", a.currentMut, a.currentFnName(), fn.Mut, ident.Name)
		}
		if fn.External && !fn.Internal {
			a.errf(x.Loc(), "E-EXTERNAL-ONLY", "function %q is external-only and cannot be called internally", ident.Name)
		}
		if len(x.Args) != len(fn.Params) {
			a.errf(x.Loc(), "E-ARITY", "call to %q has %d arguments, expected %d", ident.Name, len(x.Args), len(fn.Params))
		}
		for i, arg := range x.Args {
			if i < len(fn.Params) {
				a.checkExprExpect(arg, fn.Params[i])
			}
		}
		if len(fn.Results) == 1 {
			return fn.Results[0]
		}
		return nil
	}

	// External/delegate/static calls target an interface method resolved
	// on the callee's type; full resolution is deferred to the IR builder,
	// which has the calling convention context needed to emit the ABI
	// encoding (spec.md §4.4).
	if a.currentMut == types.Pure {
		a.errf(x.Loc(), "E-CALL-FROM-PURE", "pure function cannot perform any call")
	}
	return nil
}

func (a *Analyzer) currentFnName() string {
	if a.currentFn == nil {
		return "<unknown>"
	}
	return a.currentFn.Name
}
