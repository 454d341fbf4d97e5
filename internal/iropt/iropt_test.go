package iropt

import (
	"testing"

	"github.com/gmofishsauce/clarionc/internal/ast"
	"github.com/gmofishsauce/clarionc/internal/ir"
	"github.com/gmofishsauce/clarionc/internal/types"
)

func constExpr(t *types.Type, text string) *ir.Expr {
	e := ir.NewExpr(ir.OpConst, t, ast.Span{}, ir.EffectNone)
	e.Const = &ir.ConstValue{IntText: text}
	return e
}

func localExpr(t *types.Type, name string, eff ir.Effect) *ir.Expr {
	e := ir.NewExpr(ir.OpLocalRef, t, ast.Span{}, eff)
	e.Symbol = name
	return e
}

func TestAlgebraicSimplifyAddZero(t *testing.T) {
	u := types.Uint(256)
	x := localExpr(u, "x", ir.EffectNone)
	add := ir.NewExpr(ir.OpAddUnchecked, u, ast.Span{}, ir.EffectNone, x, constExpr(u, "0"))
	got, changed := optExpr(add)
	if !changed {
		t.Fatal("expected a change")
	}
	if got.Op() != ir.OpLocalRef || got.Symbol != "x" {
		t.Errorf("expected x+0 to simplify to x, got op=%v symbol=%q", got.Op(), got.Symbol)
	}
}

func TestAlgebraicSimplifyMulZero(t *testing.T) {
	u := types.Uint(256)
	x := localExpr(u, "x", ir.EffectNone)
	mul := ir.NewExpr(ir.OpMulUnchecked, u, ast.Span{}, ir.EffectNone, x, constExpr(u, "0"))
	got, changed := optExpr(mul)
	if !changed || got.Op() != ir.OpConst || got.Const.IntText != "0" {
		t.Errorf("expected x*0 to fold to const 0, got op=%v changed=%v", got.Op(), changed)
	}
}

func TestAlgebraicSimplifyMulOne(t *testing.T) {
	u := types.Uint(256)
	x := localExpr(u, "x", ir.EffectNone)
	mul := ir.NewExpr(ir.OpMulUnchecked, u, ast.Span{}, ir.EffectNone, constExpr(u, "1"), x)
	got, changed := optExpr(mul)
	if !changed || got.Op() != ir.OpLocalRef {
		t.Errorf("expected 1*x to simplify to x, got op=%v changed=%v", got.Op(), changed)
	}
}

func TestConstantFoldingArithmetic(t *testing.T) {
	u := types.Uint(256)
	add := ir.NewExpr(ir.OpAddChecked, u, ast.Span{}, ir.EffectNone, constExpr(u, "2"), constExpr(u, "3"))
	got, changed := optExpr(add)
	if !changed || got.Op() != ir.OpConst || got.Const.IntText != "5" {
		t.Errorf("expected 2+3 to fold to 5, got %v changed=%v", got, changed)
	}
}

func TestConstantFoldingComparison(t *testing.T) {
	u := types.Uint(256)
	lt := ir.NewExpr(ir.OpLt, types.BoolType, ast.Span{}, ir.EffectNone, constExpr(u, "2"), constExpr(u, "3"))
	got, changed := optExpr(lt)
	if !changed || got.Const.IntText != "1" {
		t.Errorf("expected 2<3 to fold to true, got %v changed=%v", got, changed)
	}
}

func TestConstantFoldingRejectsOverflow(t *testing.T) {
	u8 := types.Uint(8)
	add := ir.NewExpr(ir.OpAddChecked, u8, ast.Span{}, ir.EffectNone, constExpr(u8, "200"), constExpr(u8, "200"))
	_, changed := foldConstExpr(add)
	if changed {
		t.Error("expected folding to leave an overflowing result unfolded")
	}
}

func TestStrengthReduceMulPowerOfTwo(t *testing.T) {
	u := types.Uint(256)
	x := localExpr(u, "x", ir.EffectNone)
	mul := ir.NewExpr(ir.OpMulUnchecked, u, ast.Span{}, ir.EffectNone, x, constExpr(u, "8"))
	got, changed := strengthReduce(mul)
	if !changed || got.Op() != ir.OpShl {
		t.Fatalf("expected x*8 to reduce to a shift, got op=%v changed=%v", got.Op(), changed)
	}
	shiftAmt := got.Children[1].(*ir.Expr)
	if shiftAmt.Const.IntText != "3" {
		t.Errorf("expected shift amount 3, got %s", shiftAmt.Const.IntText)
	}
}

func TestStrengthReduceModPowerOfTwo(t *testing.T) {
	u := types.Uint(256)
	x := localExpr(u, "x", ir.EffectNone)
	mod := ir.NewExpr(ir.OpModChecked, u, ast.Span{}, ir.EffectNone, x, constExpr(u, "4"))
	got, changed := strengthReduce(mod)
	if !changed || got.Op() != ir.OpAnd {
		t.Fatalf("expected x%%4 to reduce to a mask, got op=%v changed=%v", got.Op(), changed)
	}
	mask := got.Children[1].(*ir.Expr)
	if mask.Const.IntText != "3" {
		t.Errorf("expected mask 3, got %s", mask.Const.IntText)
	}
}

func TestDeadCodeEliminationDropsPureExprStmt(t *testing.T) {
	u := types.Uint(256)
	pureRead := localExpr(u, "x", ir.EffectNone)
	stmt := ir.NewStmt(ir.OpExprStmt, ast.Span{}, ir.EffectNone)
	stmt.X = pureRead
	out, changed := optStmts([]*ir.Stmt{stmt})
	if !changed {
		t.Fatal("expected a change")
	}
	if len(out) != 0 {
		t.Errorf("expected pure expr statement to be eliminated, got %d statements", len(out))
	}
}

func TestDeadCodeEliminationKeepsSideEffectingExprStmt(t *testing.T) {
	call := ir.NewExpr(ir.OpCallExternal, nil, ast.Span{}, ir.EffectCallsExternal)
	stmt := ir.NewStmt(ir.OpExprStmt, ast.Span{}, ir.EffectCallsExternal)
	stmt.X = call
	out, _ := optStmts([]*ir.Stmt{stmt})
	if len(out) != 1 {
		t.Errorf("expected side-effecting statement to survive, got %d statements", len(out))
	}
}

func TestDeadCodeEliminationAfterTerminator(t *testing.T) {
	ret := ir.NewStmt(ir.OpReturn, ast.Span{}, ir.EffectNone)
	unreachable := ir.NewStmt(ir.OpBlock, ast.Span{}, ir.EffectNone)
	out, changed := optStmts([]*ir.Stmt{ret, unreachable})
	if !changed {
		t.Fatal("expected a change")
	}
	if len(out) != 1 {
		t.Errorf("expected unreachable statement after return to be dropped, got %d", len(out))
	}
}

func TestBranchFoldingConstantTrue(t *testing.T) {
	u := types.Uint(256)
	thenStmt := ir.NewStmt(ir.OpReturn, ast.Span{}, ir.EffectNone)
	elseStmt := ir.NewStmt(ir.OpAssert, ast.Span{}, ir.EffectMayRevert)
	elseStmt.Cond = constExpr(u, "0")
	ifStmt := ir.NewStmt(ir.OpIf, ast.Span{}, ir.EffectNone)
	ifStmt.Cond = constExpr(u, "1")
	ifStmt.Then = []*ir.Stmt{thenStmt}
	ifStmt.Else = []*ir.Stmt{elseStmt}

	got, changed := optStmt(ifStmt)
	if !changed {
		t.Fatal("expected a change")
	}
	if got.Op() != ir.OpBlock || len(got.Body) != 1 || got.Body[0] != thenStmt {
		t.Errorf("expected constant-true if to fold to the then branch, got %+v", got)
	}
}

func TestAssertStaticallyTrueIsEliminated(t *testing.T) {
	u := types.Uint(256)
	stmt := ir.NewStmt(ir.OpAssert, ast.Span{}, ir.EffectMayRevert)
	stmt.Cond = constExpr(u, "1")
	got, changed := optStmt(stmt)
	if !changed || got != nil {
		t.Errorf("expected a statically-true assertion to be eliminated, got %v changed=%v", got, changed)
	}
}

func TestCSEStraightLineDedupesIdenticalPureExprs(t *testing.T) {
	u := types.Uint(256)
	first := localExpr(u, "x", ir.EffectNone)
	second := localExpr(u, "x", ir.EffectNone)

	s1 := ir.NewStmt(ir.OpExprStmt, ast.Span{}, ir.EffectNone)
	s1.X = ir.NewExpr(ir.OpNeg, u, ast.Span{}, ir.EffectNone, first)
	s2 := ir.NewStmt(ir.OpExprStmt, ast.Span{}, ir.EffectNone)
	s2.X = ir.NewExpr(ir.OpNeg, u, ast.Span{}, ir.EffectNone, second)

	changed := cseStraightLine([]*ir.Stmt{s1, s2})
	if !changed {
		t.Fatal("expected CSE to report a change")
	}
	if s2.X.Children[0] != s1.X.Children[0] {
		t.Error("expected the second occurrence to be replaced with the first node's pointer")
	}
}

func TestCSEDoesNotCrossBranches(t *testing.T) {
	u := types.Uint(256)
	cond := localExpr(u, "c", ir.EffectNone)
	thenRead := localExpr(u, "x", ir.EffectNone)
	elseRead := localExpr(u, "x", ir.EffectNone)

	thenStmt := ir.NewStmt(ir.OpExprStmt, ast.Span{}, ir.EffectNone)
	thenStmt.X = ir.NewExpr(ir.OpNeg, u, ast.Span{}, ir.EffectNone, thenRead)
	elseStmt := ir.NewStmt(ir.OpExprStmt, ast.Span{}, ir.EffectNone)
	elseStmt.X = ir.NewExpr(ir.OpNeg, u, ast.Span{}, ir.EffectNone, elseRead)

	ifStmt := ir.NewStmt(ir.OpIf, ast.Span{}, ir.EffectNone)
	ifStmt.Cond = cond
	ifStmt.Then = []*ir.Stmt{thenStmt}
	ifStmt.Else = []*ir.Stmt{elseStmt}

	cseStraightLine([]*ir.Stmt{ifStmt})
	if thenStmt.X.Children[0] == elseStmt.X.Children[0] {
		t.Error("CSE should not share nodes across separate branches")
	}
}

func TestOptimizeReachesFixedPoint(t *testing.T) {
	u := types.Uint(256)
	x := localExpr(u, "x", ir.EffectNone)
	// (x + 0) * 1 should collapse to x in a couple of iterations.
	expr := ir.NewExpr(ir.OpMulUnchecked, u, ast.Span{},
		ir.EffectNone,
		ir.NewExpr(ir.OpAddUnchecked, u, ast.Span{}, ir.EffectNone, x, constExpr(u, "0")),
		constExpr(u, "1"),
	)
	ret := ir.NewStmt(ir.OpReturn, ast.Span{}, ir.EffectNone)
	ret.Results = []*ir.Expr{expr}
	fn := &ir.Function{Name: "f", Body: []*ir.Stmt{ret}}

	iters := Optimize(fn)
	if iters < 1 {
		t.Fatal("expected at least one iteration")
	}
	if fn.Body[0].Results[0].Op() != ir.OpLocalRef {
		t.Errorf("expected (x+0)*1 to collapse to x, got op=%v", fn.Body[0].Results[0].Op())
	}
}

func TestOptimizeIdempotent(t *testing.T) {
	u := types.Uint(256)
	x := localExpr(u, "x", ir.EffectNone)
	ret := ir.NewStmt(ir.OpReturn, ast.Span{}, ir.EffectNone)
	ret.Results = []*ir.Expr{ir.NewExpr(ir.OpAddUnchecked, u, ast.Span{}, ir.EffectNone, x, constExpr(u, "0"))}
	fn := &ir.Function{Name: "f", Body: []*ir.Stmt{ret}}

	Optimize(fn)
	first := fn.Body[0].Results[0]
	iters := Optimize(fn)
	if iters != 1 {
		t.Errorf("expected a second Optimize call to be a one-iteration no-op, got %d iterations", iters)
	}
	if fn.Body[0].Results[0] != first {
		t.Error("expected a second Optimize call to leave the IR unchanged")
	}
}
