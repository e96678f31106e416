package expr

import (
	"errors"
	"fmt"
	"math"
)

// Values resolves reference IDs to their latest numeric value.
type Values interface {
	Get(id string) (float64, bool)
}

// Evaluation errors. These are per-evaluation failures: the caller keeps the
// previous value and logs, they never abort a propagation pass.
var ErrDivisionByZero = errors.New("division by zero")

// UnresolvedRefError reports a reference that did not resolve against the
// value store at evaluation time.
type UnresolvedRefError struct {
	ID string
}

func (e *UnresolvedRefError) Error() string {
	return fmt.Sprintf("unresolved reference %q", e.ID)
}

// EvalNumber evaluates a formula tree to a number. NaN and Inf produced by
// an operation propagate as values; only division by zero and unresolved
// references are errors.
func EvalNumber(n Node, vals Values) (float64, error) {
	switch v := n.(type) {
	case *Number:
		return v.Value, nil

	case *Ref:
		x, ok := vals.Get(v.ID)
		if !ok {
			return 0, &UnresolvedRefError{ID: v.ID}
		}
		return x, nil

	case *Neg:
		x, err := EvalNumber(v.X, vals)
		if err != nil {
			return 0, err
		}
		return -x, nil

	case *Binary:
		x, err := EvalNumber(v.X, vals)
		if err != nil {
			return 0, err
		}
		y, err := EvalNumber(v.Y, vals)
		if err != nil {
			return 0, err
		}
		switch v.Op {
		case "+":
			return x + y, nil
		case "-":
			return x - y, nil
		case "*":
			return x * y, nil
		case "/":
			if y == 0 {
				return 0, ErrDivisionByZero
			}
			return x / y, nil
		}
		return 0, fmt.Errorf("internal: unknown operator %q", v.Op)

	case *Call:
		args := make([]float64, len(v.Args))
		for i, a := range v.Args {
			x, err := EvalNumber(a, vals)
			if err != nil {
				return 0, err
			}
			args[i] = x
		}
		switch v.Fn {
		case "abs":
			return math.Abs(args[0]), nil
		case "max":
			out := args[0]
			for _, x := range args[1:] {
				out = math.Max(out, x)
			}
			return out, nil
		case "min":
			out := args[0]
			for _, x := range args[1:] {
				out = math.Min(out, x)
			}
			return out, nil
		}
		return 0, fmt.Errorf("internal: unknown function %q", v.Fn)
	}

	return 0, fmt.Errorf("internal: node is not numeric")
}

// EvalBool evaluates a condition tree. Comparisons involving NaN are always
// false so alert semantics stay predictable.
func EvalBool(n Node, vals Values) (bool, error) {
	switch v := n.(type) {
	case *Compare:
		x, err := EvalNumber(v.X, vals)
		if err != nil {
			return false, err
		}
		y, err := EvalNumber(v.Y, vals)
		if err != nil {
			return false, err
		}
		if math.IsNaN(x) || math.IsNaN(y) {
			return false, nil
		}
		switch v.Op {
		case ">":
			return x > y, nil
		case ">=":
			return x >= y, nil
		case "<":
			return x < y, nil
		case "<=":
			return x <= y, nil
		case "==":
			return x == y, nil
		case "!=":
			return x != y, nil
		}
		return false, fmt.Errorf("internal: unknown comparison %q", v.Op)

	case *Logical:
		x, err := EvalBool(v.X, vals)
		if err != nil {
			return false, err
		}
		// No short-circuit: an unresolved reference on either side must
		// surface so the rule degrades to not-triggered, not half-checked.
		y, err := EvalBool(v.Y, vals)
		if err != nil {
			return false, err
		}
		if v.Op == "&&" {
			return x && y, nil
		}
		return x || y, nil
	}

	return false, fmt.Errorf("internal: node is not boolean")
}
