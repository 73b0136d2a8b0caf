package flow

import (
	"fmt"
	"strings"
)

// Operator is the comparison applied by a validation rule.
type Operator int

// Recognized operators. The zero value is Equals, which is also the
// substitute for any unrecognized operator string.
const (
	Equals Operator = iota
	NotEquals
	Contains
	ContainsAll
	ContainsAny
	GreaterThan
	LessThan
	GreaterEqual
	LessEqual
	RegexMatch
	InList
)

// operatorNames holds the canonical document spelling of each operator.
var operatorNames = [...]string{
	Equals:       "equals",
	NotEquals:    "not_equals",
	Contains:     "contains",
	ContainsAll:  "contains_all",
	ContainsAny:  "contains_any",
	GreaterThan:  "gt",
	LessThan:     "lt",
	GreaterEqual: "gte",
	LessEqual:    "lte",
	RegexMatch:   "regex",
	InList:       "in",
}

// operatorAliases maps every accepted spelling (lower-cased) to its operator.
var operatorAliases = map[string]Operator{
	"equals":        Equals,
	"eq":            Equals,
	"not_equals":    NotEquals,
	"neq":           NotEquals,
	"contains":      Contains,
	"contains_all":  ContainsAll,
	"contains_any":  ContainsAny,
	"gt":            GreaterThan,
	"greater_than":  GreaterThan,
	"lt":            LessThan,
	"less_than":     LessThan,
	"gte":           GreaterEqual,
	"greater_equal": GreaterEqual,
	"lte":           LessEqual,
	"less_equal":    LessEqual,
	"regex":         RegexMatch,
	"regex_match":   RegexMatch,
	"in":            InList,
	"in_list":       InList,
}

// ParseOperator resolves an operator string. The second result is false when
// the string is not recognized; the returned operator is then Equals.
func ParseOperator(s string) (Operator, bool) {
	op, ok := operatorAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return Equals, false
	}
	return op, true
}

// String returns the canonical document spelling.
func (o Operator) String() string {
	if o < 0 || int(o) >= len(operatorNames) {
		return fmt.Sprintf("operator(%d)", int(o))
	}
	return operatorNames[o]
}

// MarshalText implements encoding.TextMarshaler.
func (o Operator) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It is strict: stored
// reports only ever contain canonical names.
func (o *Operator) UnmarshalText(text []byte) error {
	op, ok := ParseOperator(string(text))
	if !ok {
		return fmt.Errorf("unknown operator %q", string(text))
	}
	*o = op
	return nil
}

// Severity controls what a failed assertion does to the step and the run.
type Severity int

const (
	// Critical failures fail the step and can halt the run.
	Critical Severity = iota
	// Error failures fail the step; the run continues.
	Error
	// Warning failures are logged only.
	Warning
)

var severityNames = [...]string{
	Critical: "critical",
	Error:    "error",
	Warning:  "warning",
}

// ParseSeverity resolves a severity string. Unknown strings yield Critical
// and false.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return Critical, true
	case "error":
		return Error, true
	case "warning":
		return Warning, true
	}
	return Critical, false
}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	sev, ok := ParseSeverity(string(text))
	if !ok {
		return fmt.Errorf("unknown severity %q", string(text))
	}
	*s = sev
	return nil
}
