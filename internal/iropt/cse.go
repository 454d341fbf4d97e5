package iropt

import (
	"fmt"
	"strings"

	"github.com/gmofishsauce/clarionc/internal/ir"
)

// cseKey is the (opcode, operand hashes, side-effect kind) key from
// spec.md §4.5 pass 5; only pure nodes are ever candidates, so the
// side-effect kind is always ir.EffectNone for any key actually stored.
func cseKey(e *ir.Expr) (string, bool) {
	if !e.Purity() {
		return "", false
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "op%d", e.Op())
	if e.Const != nil {
		fmt.Fprintf(&sb, ":c%s:%x", e.Const.IntText, e.Const.Bytes)
	}
	if e.Symbol != "" {
		fmt.Fprintf(&sb, ":s%s", e.Symbol)
	}
	if e.Field != "" {
		fmt.Fprintf(&sb, ":f%s", e.Field)
	}
	for _, c := range e.Children {
		ce, ok := c.(*ir.Expr)
		if !ok {
			return "", false
		}
		k, ok := cseKey(ce)
		if !ok {
			return "", false
		}
		sb.WriteByte('|')
		sb.WriteString(k)
	}
	return sb.String(), true
}

// cseStraightLine deduplicates pure subexpressions within one straight-
// line run of statements (no branch crosses the window), replacing every
// later occurrence of an identical key with the first node produced —
// the scheduler later recognizes the shared pointer, computes it once into
// a cache frame slot, and reloads it from there instead of recomputing it.
func cseStraightLine(stmts []*ir.Stmt) bool {
	seen := make(map[string]*ir.Expr)
	changed := false
	var walkExpr func(e *ir.Expr) *ir.Expr
	walkExpr = func(e *ir.Expr) *ir.Expr {
		if e == nil {
			return nil
		}
		for i, c := range e.Children {
			if ce, ok := c.(*ir.Expr); ok {
				e.Children[i] = walkExpr(ce)
			}
		}
		key, ok := cseKey(e)
		if !ok {
			return e
		}
		if prior, exists := seen[key]; exists {
			changed = true
			return prior
		}
		seen[key] = e
		return e
	}

	for _, s := range stmts {
		switch s.Op() {
		case ir.OpAssign:
			s.Value = walkExpr(s.Value)
		case ir.OpExprStmt:
			s.X = walkExpr(s.X)
		case ir.OpReturn:
			for i, r := range s.Results {
				s.Results[i] = walkExpr(r)
			}
		case ir.OpAssert:
			s.Cond = walkExpr(s.Cond)
			s.Message = walkExpr(s.Message)
		case ir.OpIf:
			s.Cond = walkExpr(s.Cond)
			// A branch starts a new basic block on each side; CSE state
			// does not cross into Then/Else, matching "within a basic
			// block" in spec.md §4.5.
			if cseStraightLine(s.Then) {
				changed = true
			}
			if cseStraightLine(s.Else) {
				changed = true
			}
		case ir.OpFor:
			if cseStraightLine(s.Body) {
				changed = true
			}
		case ir.OpBlock:
			if cseStraightLine(s.Body) {
				changed = true
			}
		}
	}
	return changed
}
