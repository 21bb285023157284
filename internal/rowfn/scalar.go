package rowfn

import (
	"fmt"
	"math"
	"time"

	"github.com/tably/tably/internal/expr"
)

// ApplyOp evaluates a scalar operator over already-computed values.
// Integer arithmetic stays in int64 except for div and pow, which
// always produce float64. Mixed int/float arithmetic promotes to
// float64. floordiv and mod follow floored-division semantics, so the
// remainder takes the divisor's sign.
func ApplyOp(op expr.Op, args ...any) (any, error) {
	for i, a := range args {
		args[i] = Normalize(a)
	}

	switch {
	case op.IsLogical():
		return applyLogical(op, args)
	case op.IsComparison():
		return applyComparison(op, args[0], args[1])
	case op == expr.OpNeg:
		return applyNeg(args[0])
	default:
		return applyArithmetic(op, args[0], args[1])
	}
}

// Normalize widens machine ints to int64 so downstream switches see a
// single integer representation.
func Normalize(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float32:
		return float64(n)
	}
	return v
}

func applyLogical(op expr.Op, args []any) (any, error) {
	bools := make([]bool, len(args))
	for i, a := range args {
		b, ok := a.(bool)
		if !ok {
			return nil, fmt.Errorf("rowfn: %s expects bool, got %T", op, a)
		}
		bools[i] = b
	}
	switch op {
	case expr.OpAnd:
		return bools[0] && bools[1], nil
	case expr.OpOr:
		return bools[0] || bools[1], nil
	case expr.OpNot:
		return !bools[0], nil
	}
	return nil, fmt.Errorf("rowfn: unknown logical operator %s", op)
}

func applyComparison(op expr.Op, a, b any) (any, error) {
	// Equality tolerates nil, which appears in optional columns after
	// outer joins. Ordering against nil is an error.
	if a == nil || b == nil {
		switch op {
		case expr.OpEq:
			return a == nil && b == nil, nil
		case expr.OpNe:
			return !(a == nil && b == nil), nil
		}
		return nil, fmt.Errorf("rowfn: cannot order nil with %s", op)
	}
	c, err := Compare(a, b)
	if err != nil {
		return nil, err
	}
	switch op {
	case expr.OpEq:
		return c == 0, nil
	case expr.OpNe:
		return c != 0, nil
	case expr.OpLt:
		return c < 0, nil
	case expr.OpLe:
		return c <= 0, nil
	case expr.OpGt:
		return c > 0, nil
	case expr.OpGe:
		return c >= 0, nil
	}
	return nil, fmt.Errorf("rowfn: unknown comparison %s", op)
}

func applyNeg(a any) (any, error) {
	switch n := a.(type) {
	case int64:
		return -n, nil
	case float64:
		return -n, nil
	}
	return nil, fmt.Errorf("rowfn: cannot negate %T", a)
}

func applyArithmetic(op expr.Op, a, b any) (any, error) {
	ai, aIsInt := a.(int64)
	bi, bIsInt := b.(int64)
	if aIsInt && bIsInt && op != expr.OpDiv && op != expr.OpPow {
		return intArithmetic(op, ai, bi)
	}

	af, ok := AsFloat(a)
	if !ok {
		return nil, fmt.Errorf("rowfn: %s expects a number, got %T", op, a)
	}
	bf, ok := AsFloat(b)
	if !ok {
		return nil, fmt.Errorf("rowfn: %s expects a number, got %T", op, b)
	}
	return floatArithmetic(op, af, bf)
}

func intArithmetic(op expr.Op, a, b int64) (any, error) {
	switch op {
	case expr.OpAdd:
		return a + b, nil
	case expr.OpSub:
		return a - b, nil
	case expr.OpMul:
		return a * b, nil
	case expr.OpFloorDiv:
		if b == 0 {
			return nil, fmt.Errorf("rowfn: integer division by zero")
		}
		q := a / b
		if (a%b != 0) && ((a < 0) != (b < 0)) {
			q--
		}
		return q, nil
	case expr.OpMod:
		if b == 0 {
			return nil, fmt.Errorf("rowfn: integer modulo by zero")
		}
		r := a % b
		if r != 0 && (r < 0) != (b < 0) {
			r += b
		}
		return r, nil
	}
	return nil, fmt.Errorf("rowfn: unknown arithmetic operator %s", op)
}

func floatArithmetic(op expr.Op, a, b float64) (any, error) {
	switch op {
	case expr.OpAdd:
		return a + b, nil
	case expr.OpSub:
		return a - b, nil
	case expr.OpMul:
		return a * b, nil
	case expr.OpDiv:
		if b == 0 {
			return nil, fmt.Errorf("rowfn: division by zero")
		}
		return a / b, nil
	case expr.OpFloorDiv:
		if b == 0 {
			return nil, fmt.Errorf("rowfn: division by zero")
		}
		return math.Floor(a / b), nil
	case expr.OpMod:
		if b == 0 {
			return nil, fmt.Errorf("rowfn: modulo by zero")
		}
		r := math.Mod(a, b)
		if r != 0 && (r < 0) != (b < 0) {
			r += b
		}
		return r, nil
	case expr.OpPow:
		return math.Pow(a, b), nil
	}
	return nil, fmt.Errorf("rowfn: unknown arithmetic operator %s", op)
}

// Compare orders two scalar values of the same category: -1, 0, or +1.
// Numbers compare across int64/float64; false sorts before true.
func Compare(a, b any) (int, error) {
	a, b = Normalize(a), Normalize(b)

	if af, ok := AsFloat(a); ok {
		bf, ok := AsFloat(b)
		if !ok {
			return 0, fmt.Errorf("rowfn: cannot compare number with %T", b)
		}
		// Exact path when both sides are integers.
		if ai, ok := a.(int64); ok {
			if bi, ok := b.(int64); ok {
				switch {
				case ai < bi:
					return -1, nil
				case ai > bi:
					return 1, nil
				}
				return 0, nil
			}
		}
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		}
		return 0, nil
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, fmt.Errorf("rowfn: cannot compare string with %T", b)
		}
		switch {
		case av < bv:
			return -1, nil
		case av > bv:
			return 1, nil
		}
		return 0, nil

	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, fmt.Errorf("rowfn: cannot compare bool with %T", b)
		}
		switch {
		case !av && bv:
			return -1, nil
		case av && !bv:
			return 1, nil
		}
		return 0, nil

	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, fmt.Errorf("rowfn: cannot compare datetime with %T", b)
		}
		switch {
		case av.Before(bv):
			return -1, nil
		case av.After(bv):
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("rowfn: values of type %T are not ordered", a)
}

// AsFloat widens a numeric value to float64.
func AsFloat(v any) (float64, bool) {
	switch n := Normalize(v).(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
