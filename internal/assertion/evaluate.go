package assertion

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/convtest/internal/fieldpath"
	"github.com/roach88/convtest/internal/flow"
)

// ComparisonError is an internal failure while comparing two values. It is
// always recovered: the assertion fails and the error is logged.
type ComparisonError struct {
	Operator flow.Operator
	Err      error
}

func (e *ComparisonError) Error() string {
	return fmt.Sprintf("compare %s: %v", e.Operator, e.Err)
}

func (e *ComparisonError) Unwrap() error { return e.Err }

var errNotNumeric = errors.New("value is not numeric")

// Evaluate applies op to actual and expected. It never panics; failures
// during comparison count as false and are logged through slog.Default().
func Evaluate(actual, expected any, op flow.Operator) bool {
	return evaluate(slog.Default(), actual, expected, op)
}

func evaluate(logger *slog.Logger, actual, expected any, op flow.Operator) (passed bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("comparison error", "error", &ComparisonError{Operator: op, Err: fmt.Errorf("panic: %v", r)})
			passed = false
		}
	}()

	ok, err := compare(logger, actual, expected, op)
	if err != nil {
		logger.Error("comparison error", "error", &ComparisonError{Operator: op, Err: err})
		return false
	}
	return ok
}

func compare(logger *slog.Logger, actual, expected any, op flow.Operator) (bool, error) {
	switch op {
	case flow.Equals:
		return valuesEqual(actual, expected), nil

	case flow.NotEquals:
		return !valuesEqual(actual, expected), nil

	case flow.Contains:
		if text, ok := actual.(string); ok {
			return strings.Contains(fold(text), fold(fieldpath.Stringify(expected))), nil
		}
		if seq, ok := fieldpath.AsSequence(actual); ok {
			return member(seq, expected), nil
		}
		return false, nil

	case flow.ContainsAll, flow.ContainsAny:
		items, ok := fieldpath.AsSequence(expected)
		if !ok {
			logger.Warn(op.String()+" expects a list", "expected_type", fmt.Sprintf("%T", expected))
			return false, nil
		}
		match, ok := itemMatcher(actual)
		if !ok {
			logger.Warn(op.String()+": unsupported actual type", "actual_type", fmt.Sprintf("%T", actual))
			return false, nil
		}
		if op == flow.ContainsAll {
			for _, item := range items {
				if !match(item) {
					return false, nil
				}
			}
			return true, nil
		}
		for _, item := range items {
			if match(item) {
				return true, nil
			}
		}
		return false, nil

	case flow.GreaterThan, flow.LessThan, flow.GreaterEqual, flow.LessEqual:
		a, err := toFloat(actual)
		if err != nil {
			return false, fmt.Errorf("actual %v: %w", actual, err)
		}
		e, err := toFloat(expected)
		if err != nil {
			return false, fmt.Errorf("expected %v: %w", expected, err)
		}
		switch op {
		case flow.GreaterThan:
			return a > e, nil
		case flow.LessThan:
			return a < e, nil
		case flow.GreaterEqual:
			return a >= e, nil
		default:
			return a <= e, nil
		}

	case flow.RegexMatch:
		text, ok := actual.(string)
		if !ok {
			return false, nil
		}
		re, err := regexp.Compile(`^(?:` + fieldpath.Stringify(expected) + `)`)
		if err != nil {
			return false, fmt.Errorf("pattern: %w", err)
		}
		return re.MatchString(text), nil

	case flow.InList:
		items, ok := fieldpath.AsSequence(expected)
		if !ok {
			return false, nil
		}
		return member(items, actual), nil
	}

	logger.Warn("unknown operator", "operator", op.String())
	return false, nil
}

// itemMatcher returns the per-item test used by contains_all/contains_any:
// case-insensitive substring for text, membership for sequences.
func itemMatcher(actual any) (func(item any) bool, bool) {
	if text, ok := actual.(string); ok {
		folded := fold(text)
		return func(item any) bool {
			return strings.Contains(folded, fold(fieldpath.Stringify(item)))
		}, true
	}
	if seq, ok := fieldpath.AsSequence(actual); ok {
		return func(item any) bool { return member(seq, item) }, true
	}
	return nil, false
}

// fold normalizes and lower-cases text for case-insensitive matching.
func fold(s string) string {
	return cases.Lower(language.Und).String(norm.NFC.String(s))
}

func member(seq []any, item any) bool {
	for _, v := range seq {
		if valuesEqual(v, item) {
			return true
		}
	}
	return false
}

// valuesEqual is structural equality where every numeric kind compares as
// float64 (so 1 == 1.0). Booleans are not numbers.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if x, ok := number(a); ok {
		y, ok := number(b)
		return ok && x == y
	}
	if _, ok := number(b); ok {
		return false
	}

	if x, ok := a.(string); ok {
		y, ok := b.(string)
		return ok && x == y
	}

	if xs, ok := fieldpath.AsSequence(a); ok {
		ys, ok := fieldpath.AsSequence(b)
		if !ok || len(xs) != len(ys) {
			return false
		}
		for i := range xs {
			if !valuesEqual(xs[i], ys[i]) {
				return false
			}
		}
		return true
	}

	if xm, ok := fieldpath.AsMap(a); ok {
		ym, ok := fieldpath.AsMap(b)
		if !ok || len(xm) != len(ym) {
			return false
		}
		for k, xv := range xm {
			yv, ok := ym[k]
			if !ok || !valuesEqual(xv, yv) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(a, b)
}

// number reports numeric kinds as float64.
func number(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// toFloat coerces numbers and numeric strings.
func toFloat(v any) (float64, error) {
	if f, ok := number(v); ok {
		return f, nil
	}
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, errNotNumeric
		}
		return f, nil
	}
	return 0, errNotNumeric
}
