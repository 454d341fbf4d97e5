package iropt

import (
	"math/big"

	"github.com/gmofishsauce/clarionc/internal/ast"
	"github.com/gmofishsauce/clarionc/internal/ir"
	"github.com/gmofishsauce/clarionc/internal/types"
)

// foldConstExpr implements spec.md §4.5 pass 2: constant propagation and
// folding, re-invoking the arithmetic semantics of the constant folder
// (internal/constfold) over already-lowered IR constant leaves. Operating
// directly on big.Int here (rather than calling back into constfold,
// which folds AST nodes) keeps the IR optimizer's dependency graph
// one-directional: front end -> IR, never IR -> front end.
func foldConstExpr(e *ir.Expr) (*ir.Expr, bool) {
	if len(e.Children) != 2 {
		return nil, false
	}
	l, lok := e.Children[0].(*ir.Expr)
	r, rok := e.Children[1].(*ir.Expr)
	if !lok || !rok || l.Op() != ir.OpConst || r.Op() != ir.OpConst || l.Const == nil || r.Const == nil {
		return nil, false
	}
	lv, ok1 := new(big.Int).SetString(l.Const.IntText, 10)
	rv, ok2 := new(big.Int).SetString(r.Const.IntText, 10)
	if !ok1 || !ok2 {
		return nil, false
	}

	var result *big.Int
	switch e.Op() {
	case ir.OpAddChecked, ir.OpAddUnchecked:
		result = new(big.Int).Add(lv, rv)
	case ir.OpSubChecked, ir.OpSubUnchecked:
		result = new(big.Int).Sub(lv, rv)
	case ir.OpMulChecked, ir.OpMulUnchecked:
		result = new(big.Int).Mul(lv, rv)
	case ir.OpAnd:
		result = new(big.Int).And(lv, rv)
	case ir.OpOr:
		result = new(big.Int).Or(lv, rv)
	case ir.OpXor:
		result = new(big.Int).Xor(lv, rv)
	case ir.OpEq:
		return constBool(e, lv.Cmp(rv) == 0), true
	case ir.OpNe:
		return constBool(e, lv.Cmp(rv) != 0), true
	case ir.OpLt:
		return constBool(e, lv.Cmp(rv) < 0), true
	case ir.OpLe:
		return constBool(e, lv.Cmp(rv) <= 0), true
	case ir.OpGt:
		return constBool(e, lv.Cmp(rv) > 0), true
	case ir.OpGe:
		return constBool(e, lv.Cmp(rv) >= 0), true
	default:
		return nil, false
	}
	if !fitsResultType(result, e) {
		// Division-by-hoisting analogue: if the folded value no longer
		// fits the declared result width, leave the original subtree so
		// the scheduler emits the runtime checked-arithmetic sequence and
		// the overflow is observed at the correct program point.
		return nil, false
	}
	out := ir.NewExpr(ir.OpConst, e.Type_, e.Span_, ir.EffectNone)
	out.Const = &ir.ConstValue{IntText: result.String()}
	return out, true
}

func constBool(e *ir.Expr, b bool) *ir.Expr {
	out := ir.NewExpr(ir.OpConst, e.Type_, e.Span_, ir.EffectNone)
	if b {
		out.Const = &ir.ConstValue{IntText: "1"}
	} else {
		out.Const = &ir.ConstValue{IntText: "0"}
	}
	return out
}

func fitsResultType(v *big.Int, e *ir.Expr) bool {
	t := e.Type_
	if t == nil || !t.IsIntegral() {
		return true
	}
	width := t.Width
	if width == 0 {
		width = 256
	}
	var lo, hi big.Int
	if t.Kind == types.SignedInt {
		// signed range check
		hi.Lsh(big.NewInt(1), uint(width-1))
		hi.Sub(&hi, big.NewInt(1))
		lo.Lsh(big.NewInt(1), uint(width-1))
		lo.Neg(&lo)
	} else {
		hi.Lsh(big.NewInt(1), uint(width))
		hi.Sub(&hi, big.NewInt(1))
		lo.SetInt64(0)
	}
	return v.Cmp(&lo) >= 0 && v.Cmp(&hi) <= 0
}

// strengthReduce implements spec.md §4.5 pass 6: power-of-two
// multiplication to shift, modulo power-of-two to mask.
func strengthReduce(e *ir.Expr) (*ir.Expr, bool) {
	if len(e.Children) != 2 {
		return nil, false
	}
	l, lok := e.Children[0].(*ir.Expr)
	r, rok := e.Children[1].(*ir.Expr)
	if !lok || !rok {
		return nil, false
	}
	switch e.Op() {
	case ir.OpMulChecked, ir.OpMulUnchecked:
		if shift, ok := powerOfTwo(r); ok {
			return ir.NewExpr(ir.OpShl, e.Type_, e.Span_, e.Effect_, l, shiftConst(shift, e.Span_, e.Type_)), true
		}
		if shift, ok := powerOfTwo(l); ok {
			return ir.NewExpr(ir.OpShl, e.Type_, e.Span_, e.Effect_, r, shiftConst(shift, e.Span_, e.Type_)), true
		}
	case ir.OpModChecked:
		if shift, ok := powerOfTwo(r); ok {
			mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(shift)), big.NewInt(1))
			maskConst := ir.NewExpr(ir.OpConst, e.Type_, e.Span_, ir.EffectNone)
			maskConst.Const = &ir.ConstValue{IntText: mask.String()}
			return ir.NewExpr(ir.OpAnd, e.Type_, e.Span_, e.Effect_&^ir.EffectMayRevert, l, maskConst), true
		}
	}
	return nil, false
}

func powerOfTwo(e *ir.Expr) (int, bool) {
	if e.Op() != ir.OpConst || e.Const == nil {
		return 0, false
	}
	n, ok := new(big.Int).SetString(e.Const.IntText, 10)
	if !ok || n.Sign() <= 0 {
		return 0, false
	}
	if n.BitLen() == 0 {
		return 0, false
	}
	if new(big.Int).Lsh(big.NewInt(1), uint(n.BitLen()-1)).Cmp(n) != 0 {
		return 0, false
	}
	return n.BitLen() - 1, true
}

func shiftConst(shift int, span ast.Span, t *types.Type) *ir.Expr {
	n := ir.NewExpr(ir.OpConst, t, span, ir.EffectNone)
	n.Const = &ir.ConstValue{IntText: big.NewInt(int64(shift)).String()}
	return n
}
