// Package constfold implements the constant folder from spec.md §4.2:
// arbitrary-precision evaluation of pure expression subtrees, followed by
// a range check against the result type. It is re-invoked by the IR
// optimizer's constant-propagation pass (spec.md §4.5 step 2).
//
// The literal-fits-type check is the same shape as
// lang/ysem.valueFitsInType/adaptLiteralToType, generalized from YAPL's
// three fixed base types to arbitrary signed/unsigned widths and decimal
// scale, and the arithmetic itself uses math/big the way
// vybium-starks-vm/internal/vybium-starks-vm/core/field.go uses math/big
// for its field element arithmetic — the pack's only precedent for
// arbitrary-precision integer math.
package constfold

import (
	"errors"
	"math/big"

	"github.com/gmofishsauce/clarionc/internal/ast"
	"github.com/gmofishsauce/clarionc/internal/types"
)

// Value is a folded compile-time constant: a big.Int magnitude (for
// integers, decimals pre-scaled, and booleans as 0/1) plus its type, or
// raw bytes for bytes/string constants.
type Value struct {
	Type  *types.Type
	Int   *big.Int // valid for Bool/SignedInt/UnsignedInt/Decimal
	Bytes []byte   // valid for FixedBytes/BytesType
}

// ErrNotConstant is returned when a subtree is not foldable (contains a
// non-constant reference or an unsupported operator); the caller should
// leave the original subtree in place rather than treat this as fatal.
var ErrNotConstant = errors.New("not a compile-time constant")

// ErrDivByZero is always a compile error per spec.md §4.2, in both
// checked and unchecked contexts.
var ErrDivByZero = errors.New("division by zero in constant expression")

// ErrOverflow signals the result does not fit the target type. In a
// checked context this is a compile error; in an unchecked context the
// caller should treat folding as having failed and keep the original
// subtree (spec.md §4.2).
var ErrOverflow = errors.New("constant expression overflows result type")

// Env resolves identifiers that refer to other already-folded constants.
type Env interface {
	Lookup(name string) (*Value, bool)
}

// Fold attempts to evaluate e as a compile-time constant. unchecked
// disables the final range check's error (folding simply fails, per
// spec.md §4.2's "produces the unchanged subtree when in an unchecked
// context") but not the divide-by-zero check, which is always an error.
func Fold(e ast.Expr, env Env, want *types.Type, unchecked bool) (*Value, error) {
	switch x := e.(type) {
	case *ast.IntLiteral:
		n, ok := new(big.Int).SetString(x.Value, 10)
		if !ok {
			return nil, ErrNotConstant
		}
		return rangeCheck(&Value{Type: want, Int: n}, want, unchecked)

	case *ast.BoolLiteral:
		n := big.NewInt(0)
		if x.Value {
			n = big.NewInt(1)
		}
		return &Value{Type: types.BoolType, Int: n}, nil

	case *ast.DecimalLiteral:
		n, scale, err := parseDecimal(x.Value)
		if err != nil {
			return nil, err
		}
		t := want
		if t == nil {
			t = types.DecimalType()
		}
		n = rescale(n, scale, t.Scale)
		return rangeCheck(&Value{Type: t, Int: n}, t, unchecked)

	case *ast.BytesLiteral:
		return &Value{Type: want, Bytes: x.Value}, nil

	case *ast.StringLiteral:
		return &Value{Type: want, Bytes: []byte(x.Value)}, nil

	case *ast.Ident:
		if env == nil {
			return nil, ErrNotConstant
		}
		v, ok := env.Lookup(x.Name)
		if !ok {
			return nil, ErrNotConstant
		}
		return v, nil

	case *ast.UnaryExpr:
		return foldUnary(x, env, want, unchecked)

	case *ast.BinaryExpr:
		return foldBinary(x, env, want, unchecked)

	default:
		return nil, ErrNotConstant
	}
}

func foldUnary(x *ast.UnaryExpr, env Env, want *types.Type, unchecked bool) (*Value, error) {
	v, err := Fold(x.X, env, want, unchecked)
	if err != nil {
		return nil, err
	}
	switch x.Op {
	case ast.Neg:
		r := new(big.Int).Neg(v.Int)
		return rangeCheck(&Value{Type: v.Type, Int: r}, v.Type, unchecked)
	case ast.Not:
		r := big.NewInt(0)
		if v.Int.Sign() == 0 {
			r = big.NewInt(1)
		}
		return &Value{Type: types.BoolType, Int: r}, nil
	case ast.BitNot:
		mask := maxUnsigned(v.Type.Width)
		r := new(big.Int).Xor(v.Int, mask)
		return rangeCheck(&Value{Type: v.Type, Int: r}, v.Type, unchecked)
	default:
		return nil, ErrNotConstant
	}
}

func foldBinary(x *ast.BinaryExpr, env Env, want *types.Type, unchecked bool) (*Value, error) {
	lv, err := Fold(x.X, env, want, unchecked)
	if err != nil {
		return nil, err
	}
	rv, err := Fold(x.Y, env, want, unchecked)
	if err != nil {
		return nil, err
	}
	resultType := lv.Type
	if resultType == nil {
		resultType = rv.Type
	}

	var r *big.Int
	switch x.Op {
	case ast.Add:
		r = new(big.Int).Add(lv.Int, rv.Int)
	case ast.Sub:
		r = new(big.Int).Sub(lv.Int, rv.Int)
	case ast.Mul:
		r = new(big.Int).Mul(lv.Int, rv.Int)
		if resultType != nil && resultType.Kind == types.Decimal {
			r = rescale(r, 2*resultType.Scale, resultType.Scale)
		}
	case ast.Div:
		if rv.Int.Sign() == 0 {
			return nil, ErrDivByZero
		}
		r = new(big.Int).Quo(lv.Int, rv.Int) // truncation toward zero (spec.md §4.2)
	case ast.Mod:
		if rv.Int.Sign() == 0 {
			return nil, ErrDivByZero
		}
		r = new(big.Int).Rem(lv.Int, rv.Int)
	case ast.And:
		r = new(big.Int).And(lv.Int, rv.Int)
	case ast.Or:
		r = new(big.Int).Or(lv.Int, rv.Int)
	case ast.Xor:
		r = new(big.Int).Xor(lv.Int, rv.Int)
	case ast.Shl:
		r = new(big.Int).Lsh(lv.Int, uint(rv.Int.Uint64()))
	case ast.Shr:
		r = new(big.Int).Rsh(lv.Int, uint(rv.Int.Uint64()))
	case ast.Eq:
		return boolResult(lv.Int.Cmp(rv.Int) == 0), nil
	case ast.Ne:
		return boolResult(lv.Int.Cmp(rv.Int) != 0), nil
	case ast.Lt:
		return boolResult(lv.Int.Cmp(rv.Int) < 0), nil
	case ast.Le:
		return boolResult(lv.Int.Cmp(rv.Int) <= 0), nil
	case ast.Gt:
		return boolResult(lv.Int.Cmp(rv.Int) > 0), nil
	case ast.Ge:
		return boolResult(lv.Int.Cmp(rv.Int) >= 0), nil
	default:
		return nil, ErrNotConstant
	}
	return rangeCheck(&Value{Type: resultType, Int: r}, resultType, unchecked)
}

func boolResult(b bool) *Value {
	n := big.NewInt(0)
	if b {
		n = big.NewInt(1)
	}
	return &Value{Type: types.BoolType, Int: n}
}

// rangeCheck validates v.Int fits t, per spec.md §4.2: overflow is a
// compile error in a checked context, and yields "folding failed"
// (ErrOverflow, which callers treat as leave-unchanged) in an unchecked
// context. Boundary law from spec.md §8: a literal exactly at the max is
// accepted, one greater is rejected.
func rangeCheck(v *Value, t *types.Type, unchecked bool) (*Value, error) {
	if t == nil || !t.IsIntegral() && t.Kind != types.Decimal && t.Kind != types.Bool {
		return v, nil
	}
	lo, hi := boundsFor(t)
	if v.Int.Cmp(lo) < 0 || v.Int.Cmp(hi) > 0 {
		if unchecked {
			return nil, ErrOverflow
		}
		return nil, ErrOverflow
	}
	return v, nil
}

func boundsFor(t *types.Type) (*big.Int, *big.Int) {
	switch t.Kind {
	case types.Bool:
		return big.NewInt(0), big.NewInt(1)
	case types.UnsignedInt:
		return big.NewInt(0), maxUnsigned(t.Width)
	case types.SignedInt:
		return minSigned(t.Width), maxSigned(t.Width)
	case types.Decimal:
		return minSigned(t.Width), maxSigned(t.Width)
	default:
		return big.NewInt(0), big.NewInt(0)
	}
}

func maxUnsigned(width int) *big.Int {
	if width <= 0 {
		width = 256
	}
	m := new(big.Int).Lsh(big.NewInt(1), uint(width))
	return m.Sub(m, big.NewInt(1))
}

func maxSigned(width int) *big.Int {
	m := new(big.Int).Lsh(big.NewInt(1), uint(width-1))
	return m.Sub(m, big.NewInt(1))
}

func minSigned(width int) *big.Int {
	m := new(big.Int).Lsh(big.NewInt(1), uint(width-1))
	return m.Neg(m)
}

// parseDecimal splits a literal like "1.50" into (150, 2): value and
// implied scale (number of fractional digits present in source).
func parseDecimal(s string) (*big.Int, int, error) {
	intPart, fracPart := s, ""
	for i, c := range s {
		if c == '.' {
			intPart, fracPart = s[:i], s[i+1:]
			break
		}
	}
	digits := intPart + fracPart
	n, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, 0, ErrNotConstant
	}
	return n, len(fracPart), nil
}

// rescale truncates toward zero when narrowing scale and zero-pads when
// widening, matching the VM's runtime rescaling semantics exactly
// (spec.md §4.2: "rescaling applies ... truncation toward zero").
func rescale(n *big.Int, from, to int) *big.Int {
	if from == to {
		return n
	}
	if to > from {
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(to-from)), nil)
		return new(big.Int).Mul(n, factor)
	}
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(from-to)), nil)
	return new(big.Int).Quo(n, factor) // Quo truncates toward zero
}
