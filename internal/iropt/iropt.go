// Package iropt implements the IR Optimizer from spec.md §4.5: algebraic
// simplification, constant propagation/folding, dead-code elimination,
// branch folding, common-subexpression elimination within a basic block,
// and strength reduction, applied in a fixed order until a fixed point or
// an iteration cap.
//
// The fixed-point "apply passes in a loop until nothing changes or a cap
// is hit" shape mirrors lang/ypeep's repeated single-pass sweep over a
// line buffer (see ypeep.go's window-based rewrite loop), generalized
// from a flat instruction list to recursive tree rewriting.
package iropt

import (
	"math/big"

	"github.com/gmofishsauce/clarionc/internal/ast"
	"github.com/gmofishsauce/clarionc/internal/ir"
	"github.com/gmofishsauce/clarionc/internal/types"
)

// MaxIterations is the default fixed-point cap from spec.md §4.5.
const MaxIterations = 10

// Optimize rewrites fn's body in place until no pass reports a change or
// MaxIterations is reached, and returns the number of iterations used.
// Per spec.md §8, running Optimize twice must yield the same IR as once
// (idempotence): every pass below only rewrites toward a strictly
// smaller or equal node count, so a second call is a no-op fixed point.
func Optimize(fn *ir.Function) int {
	for i := 0; i < MaxIterations; i++ {
		changed := false
		fn.Body, changed = optStmts(fn.Body)
		if cseStraightLine(fn.Body) {
			changed = true
		}
		if !changed {
			return i + 1
		}
	}
	return MaxIterations
}

func optStmts(stmts []*ir.Stmt) ([]*ir.Stmt, bool) {
	changed := false
	out := make([]*ir.Stmt, 0, len(stmts))
	terminated := false
	for _, s := range stmts {
		if terminated {
			// Dead-code elimination: statements following an unconditional
			// terminator are discarded (spec.md §4.5 pass 3).
			changed = true
			continue
		}
		ns, c := optStmt(s)
		if c {
			changed = true
		}
		if ns == nil {
			changed = true
			continue
		}
		out = append(out, ns)
		if isTerminator(ns) {
			terminated = true
		}
	}
	return out, changed
}

func isTerminator(s *ir.Stmt) bool {
	switch s.Op() {
	case ir.OpReturn, ir.OpRevert:
		return true
	default:
		return false
	}
}

func optStmt(s *ir.Stmt) (*ir.Stmt, bool) {
	changed := false
	switch s.Op() {
	case ir.OpIf:
		if s.Cond != nil {
			s.Cond, changed = optExpr(s.Cond)
		}
		var c2 bool
		s.Then, c2 = optStmts(s.Then)
		changed = changed || c2
		s.Else, c2 = optStmts(s.Else)
		changed = changed || c2

		// Branch folding (spec.md §4.5 pass 4): "if true then A else B"
		// becomes A.
		if s.Cond.Op() == ir.OpConst && s.Cond.Const != nil {
			changed = true
			if isTruthy(s.Cond.Const) {
				return wrapBlock(s.Then), true
			}
			return wrapBlock(s.Else), true
		}
		return s, changed

	case ir.OpFor:
		s.Body, changed = optStmts(s.Body)
		return s, changed

	case ir.OpBlock:
		s.Body, changed = optStmts(s.Body)
		return s, changed

	case ir.OpAssign:
		if s.Value != nil {
			s.Value, changed = optExpr(s.Value)
		}
		return s, changed

	case ir.OpExprStmt:
		if s.X != nil {
			var c bool
			s.X, c = optExpr(s.X)
			changed = c
			// Dead-code elimination: a pure expression statement whose
			// result is unused contributes nothing observable.
			if s.X.Purity() {
				return nil, true
			}
		}
		return s, changed

	case ir.OpReturn:
		for i, r := range s.Results {
			var c bool
			s.Results[i], c = optExpr(r)
			if c {
				changed = true
			}
		}
		return s, changed

	case ir.OpAssert:
		if s.Cond != nil {
			s.Cond, changed = optExpr(s.Cond)
		}
		if s.Cond.Op() == ir.OpConst && s.Cond.Const != nil && isTruthy(s.Cond.Const) {
			// A statically-true assertion never reverts; eliminate it.
			return nil, true
		}
		return s, changed

	default:
		return s, false
	}
}

func wrapBlock(stmts []*ir.Stmt) *ir.Stmt {
	n := ir.NewStmt(ir.OpBlock, ast.Span{}, ir.EffectNone)
	n.Body = stmts
	return n
}

func isTruthy(c *ir.ConstValue) bool {
	n, ok := new(big.Int).SetString(c.IntText, 10)
	return ok && n.Sign() != 0
}

// optExpr applies algebraic simplification, constant folding, and
// strength reduction bottom-up, then lets the caller's CSE pass (see
// cse.go) dedupe within the enclosing basic block.
func optExpr(e *ir.Expr) (*ir.Expr, bool) {
	changed := false
	for i, c := range e.Children {
		if ce, ok := c.(*ir.Expr); ok {
			nc, cc := optExpr(ce)
			if cc {
				e.Children[i] = nc
				changed = true
			}
		}
	}

	if simplified, ok := algebraicSimplify(e); ok {
		return simplified, true
	}
	if folded, ok := foldConstExpr(e); ok {
		return folded, true
	}
	if reduced, ok := strengthReduce(e); ok {
		return reduced, true
	}
	return e, changed
}

// algebraicSimplify implements spec.md §4.5 pass 1: x+0->x, x*1->x,
// x*0->0, x&0->0, etc.
func algebraicSimplify(e *ir.Expr) (*ir.Expr, bool) {
	if len(e.Children) != 2 {
		return nil, false
	}
	l, lok := e.Children[0].(*ir.Expr)
	r, rok := e.Children[1].(*ir.Expr)
	if !lok || !rok {
		return nil, false
	}
	switch e.Op() {
	case ir.OpAddUnchecked, ir.OpAddChecked:
		if isConstZero(r) {
			return l, true
		}
		if isConstZero(l) {
			return r, true
		}
	case ir.OpSubUnchecked, ir.OpSubChecked:
		if isConstZero(r) {
			return l, true
		}
	case ir.OpMulUnchecked, ir.OpMulChecked:
		if isConstOne(r) {
			return l, true
		}
		if isConstOne(l) {
			return r, true
		}
		if isConstZero(r) || isConstZero(l) {
			return zeroOf(e.Type_, e.Span_), true
		}
	case ir.OpAnd:
		if isConstZero(r) || isConstZero(l) {
			return zeroOf(e.Type_, e.Span_), true
		}
	case ir.OpOr:
		if isConstZero(r) {
			return l, true
		}
		if isConstZero(l) {
			return r, true
		}
	}
	return nil, false
}

func zeroOf(t *types.Type, span ast.Span) *ir.Expr {
	n := ir.NewExpr(ir.OpConst, t, span, ir.EffectNone)
	n.Const = &ir.ConstValue{IntText: "0"}
	return n
}

func isConstZero(e *ir.Expr) bool {
	return e.Op() == ir.OpConst && e.Const != nil && e.Const.IntText == "0"
}

func isConstOne(e *ir.Expr) bool {
	return e.Op() == ir.OpConst && e.Const != nil && e.Const.IntText == "1"
}
