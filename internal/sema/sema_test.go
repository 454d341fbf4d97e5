package sema

import (
	"testing"

	"github.com/gmofishsauce/clarionc/internal/ast"
	"github.com/gmofishsauce/clarionc/internal/diag"
	"github.com/gmofishsauce/clarionc/internal/types"
)

func analyze(mod *ast.Module) (*Result, *diag.Sink) {
	sink := diag.NewSink()
	a := New(mod, nil, sink)
	return a.Analyze(), sink
}

func hasDiagID(sink *diag.Sink, id string) bool {
	for _, d := range sink.All() {
		if d.ID == id {
			return true
		}
	}
	return false
}

func TestAnalyzeRegistersStorageVar(t *testing.T) {
	mod := &ast.Module{Decls: []ast.Decl{
		&ast.StateVarDecl{Name: "count", Type: types.Uint(256)},
	}}
	result, sink := analyze(mod)
	if sink.HasErrors() {
		t.Fatalf("unexpected errors: %+v", sink.All())
	}
	if _, ok := result.Table.Module.Lookup("count"); !ok {
		t.Error("expected count to be registered in the module scope")
	}
}

func TestAnalyzeDuplicateModuleNameErrors(t *testing.T) {
	mod := &ast.Module{Decls: []ast.Decl{
		&ast.StateVarDecl{Name: "count", Type: types.Uint(256)},
		&ast.ImmutableDecl{Name: "count", Type: types.Uint(256)},
	}}
	_, sink := analyze(mod)
	if !hasDiagID(sink, "E-DUP-NAME") {
		t.Errorf("expected E-DUP-NAME, got %+v", sink.All())
	}
}

func TestAnalyzeDuplicateFunctionErrors(t *testing.T) {
	mod := &ast.Module{Decls: []ast.Decl{
		&ast.FuncDecl{Name: "f", External: true},
		&ast.FuncDecl{Name: "f", External: true},
	}}
	_, sink := analyze(mod)
	if !hasDiagID(sink, "E-DUP-FUNC") {
		t.Errorf("expected E-DUP-FUNC, got %+v", sink.All())
	}
}

func TestAnalyzeUndefinedNameErrors(t *testing.T) {
	mod := &ast.Module{Decls: []ast.Decl{
		&ast.FuncDecl{
			Name: "f",
			Body: []ast.Stmt{
				&ast.ExprStmt{X: &ast.Ident{Name: "nope"}},
			},
		},
	}}
	_, sink := analyze(mod)
	if !hasDiagID(sink, "E-UNDEF") {
		t.Errorf("expected E-UNDEF, got %+v", sink.All())
	}
}

func TestAnalyzeWriteStorageFromViewErrors(t *testing.T) {
	mod := &ast.Module{Decls: []ast.Decl{
		&ast.StateVarDecl{Name: "count", Type: types.Uint(256)},
		&ast.FuncDecl{
			Name: "peek",
			Mut:  types.View,
			Body: []ast.Stmt{
				&ast.AssignStmt{
					Target: &ast.Ident{Name: "count"},
					Op:     ast.Assign,
					Value:  &ast.IntLiteral{Value: "1"},
				},
			},
		},
	}}
	_, sink := analyze(mod)
	if !hasDiagID(sink, "E-WRITE-IN-VIEW") {
		t.Errorf("expected E-WRITE-IN-VIEW, got %+v", sink.All())
	}
}

func TestAnalyzeWriteStorageFromNonpayableOK(t *testing.T) {
	mod := &ast.Module{Decls: []ast.Decl{
		&ast.StateVarDecl{Name: "count", Type: types.Uint(256)},
		&ast.FuncDecl{
			Name: "bump",
			Mut:  types.Nonpayable,
			Body: []ast.Stmt{
				&ast.AssignStmt{
					Target: &ast.Ident{Name: "count"},
					Op:     ast.Assign,
					Value:  &ast.IntLiteral{Value: "1"},
				},
			},
		},
	}}
	_, sink := analyze(mod)
	if hasDiagID(sink, "E-WRITE-IN-VIEW") {
		t.Errorf("did not expect E-WRITE-IN-VIEW for a nonpayable writer, got %+v", sink.All())
	}
}

func TestAnalyzeImmutableWriteOutsideConstructorErrors(t *testing.T) {
	mod := &ast.Module{Decls: []ast.Decl{
		&ast.ImmutableDecl{Name: "owner", Type: types.AddressType},
		&ast.FuncDecl{
			Name: "setOwner",
			Mut:  types.Nonpayable,
			Body: []ast.Stmt{
				&ast.AssignStmt{
					Target: &ast.Ident{Name: "owner"},
					Op:     ast.Assign,
					Value:  &ast.Ident{Name: "owner"},
				},
			},
		},
	}}
	_, sink := analyze(mod)
	if !hasDiagID(sink, "E-IMMUTABLE-WRITE") {
		t.Errorf("expected E-IMMUTABLE-WRITE, got %+v", sink.All())
	}
}

func TestAnalyzeLogInViewFunctionErrors(t *testing.T) {
	mod := &ast.Module{Decls: []ast.Decl{
		&ast.FuncDecl{
			Name: "peek",
			Mut:  types.View,
			Body: []ast.Stmt{
				&ast.LogStmt{Event: "Seen"},
			},
		},
	}}
	_, sink := analyze(mod)
	if !hasDiagID(sink, "E-LOG-IN-VIEW") {
		t.Errorf("expected E-LOG-IN-VIEW, got %+v", sink.All())
	}
}

func TestAnalyzeBreakOutsideLoopErrors(t *testing.T) {
	mod := &ast.Module{Decls: []ast.Decl{
		&ast.FuncDecl{Name: "f", Body: []ast.Stmt{&ast.BreakStmt{}}},
	}}
	_, sink := analyze(mod)
	if !hasDiagID(sink, "E-BREAK-OUTSIDE-LOOP") {
		t.Errorf("expected E-BREAK-OUTSIDE-LOOP, got %+v", sink.All())
	}
}

func TestAnalyzeBreakInsideForLoopOK(t *testing.T) {
	mod := &ast.Module{Decls: []ast.Decl{
		&ast.FuncDecl{
			Name: "f",
			Body: []ast.Stmt{
				&ast.ForStmt{
					Var:  "i",
					Low:  &ast.IntLiteral{Value: "0"},
					High: &ast.IntLiteral{Value: "10"},
					Body: []ast.Stmt{&ast.BreakStmt{}},
				},
			},
		},
	}}
	_, sink := analyze(mod)
	if hasDiagID(sink, "E-BREAK-OUTSIDE-LOOP") {
		t.Errorf("did not expect a break error inside a loop, got %+v", sink.All())
	}
}

func TestAnalyzeMutabilityCallViolationErrors(t *testing.T) {
	mod := &ast.Module{Decls: []ast.Decl{
		&ast.FuncDecl{Name: "mutator", Mut: types.Nonpayable},
		&ast.FuncDecl{
			Name: "viewer",
			Mut:  types.View,
			Body: []ast.Stmt{
				&ast.ExprStmt{X: &ast.CallExpr{Kind: ast.CallInternal, Callee: &ast.Ident{Name: "mutator"}}},
			},
		},
	}}
	_, sink := analyze(mod)
	if !hasDiagID(sink, "E-MUT-CALL") {
		t.Errorf("expected E-MUT-CALL, got %+v", sink.All())
	}
}

func TestAnalyzeInterfaceConformanceMissingMethod(t *testing.T) {
	mod := &ast.Module{Decls: []ast.Decl{
		&ast.InterfaceDecl{
			Name: "IOwnable",
			Methods: []ast.InterfaceMethod{
				{Name: "owner", Results: []*types.Type{types.AddressType}, Mut: types.View},
			},
		},
		&ast.ImplementsDecl{Interface: "IOwnable"},
	}}
	_, sink := analyze(mod)
	if !hasDiagID(sink, "E-IFACE-MISSING") {
		t.Errorf("expected E-IFACE-MISSING, got %+v", sink.All())
	}
}

func TestAnalyzeInterfaceConformanceSatisfied(t *testing.T) {
	mod := &ast.Module{Decls: []ast.Decl{
		&ast.InterfaceDecl{
			Name: "IOwnable",
			Methods: []ast.InterfaceMethod{
				{Name: "owner", Results: []*types.Type{types.AddressType}, Mut: types.View},
			},
		},
		&ast.ImplementsDecl{Interface: "IOwnable"},
		&ast.FuncDecl{
			Name:    "owner",
			Mut:     types.View,
			External: true,
			Results: []*types.Type{types.AddressType},
			Body: []ast.Stmt{
				&ast.ReturnStmt{Values: []ast.Expr{&ast.EnvExpr{Name: "this"}}},
			},
		},
	}}
	_, sink := analyze(mod)
	if hasDiagID(sink, "E-IFACE-MISSING") || hasDiagID(sink, "E-IFACE-SIG") || hasDiagID(sink, "E-IFACE-MUT") {
		t.Errorf("expected a satisfied interface to report no errors, got %+v", sink.All())
	}
}

func TestAnalyzeReturnArityMismatchErrors(t *testing.T) {
	mod := &ast.Module{Decls: []ast.Decl{
		&ast.FuncDecl{
			Name:    "get",
			Results: []*types.Type{types.Uint(256)},
			Body: []ast.Stmt{
				&ast.ReturnStmt{Values: nil},
			},
		},
	}}
	_, sink := analyze(mod)
	if !hasDiagID(sink, "E-ARITY") {
		t.Errorf("expected E-ARITY, got %+v", sink.All())
	}
}

func TestAnalyzeTypeOfAnnotatesExpressions(t *testing.T) {
	lit := &ast.IntLiteral{Value: "1"}
	mod := &ast.Module{Decls: []ast.Decl{
		&ast.FuncDecl{
			Name:    "get",
			Results: []*types.Type{types.Uint(256)},
			Body: []ast.Stmt{
				&ast.ReturnStmt{Values: []ast.Expr{lit}},
			},
		},
	}}
	result, sink := analyze(mod)
	if sink.HasErrors() {
		t.Fatalf("unexpected errors: %+v", sink.All())
	}
	if _, ok := result.TypeOf[lit]; !ok {
		t.Error("expected the return literal to be annotated in TypeOf")
	}
}
