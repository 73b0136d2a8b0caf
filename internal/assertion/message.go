package assertion

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/roach88/convtest/internal/fieldpath"
	"github.com/roach88/convtest/internal/flow"
)

// Display limits for default messages.
const (
	maxDisplayRunes = 50
	maxDisplayItems = 5
)

const (
	passMark = "✓"
	failMark = "✗"
)

var phrases = map[flow.Operator]string{
	flow.Equals:       "should equal",
	flow.NotEquals:    "should not equal",
	flow.Contains:     "should contain",
	flow.ContainsAll:  "should contain all of",
	flow.ContainsAny:  "should contain any of",
	flow.GreaterThan:  "should be greater than",
	flow.LessThan:     "should be less than",
	flow.GreaterEqual: "should be >=",
	flow.LessEqual:    "should be <=",
	flow.RegexMatch:   "should match pattern",
	flow.InList:       "should be in",
}

// DefaultMessage builds "<mark> <field> <phrase> <expected> (actual: <actual>)".
func DefaultMessage(field string, actual, expected any, op flow.Operator, passed bool) string {
	mark := failMark
	if passed {
		mark = passMark
	}
	phrase, ok := phrases[op]
	if !ok {
		phrase = "should match"
	}
	return fmt.Sprintf("%s %s %s %s (actual: %s)", mark, field, phrase, display(expected), display(actual))
}

// display renders a value for messages. Long strings keep their first 50
// characters and long sequences their first 5 elements, each followed by "...".
func display(v any) string {
	if s, ok := v.(string); ok {
		if utf8.RuneCountInString(s) > maxDisplayRunes {
			s = string([]rune(s)[:maxDisplayRunes]) + "..."
		}
		return fmt.Sprintf("%q", s)
	}

	if seq, ok := fieldpath.AsSequence(v); ok {
		n := min(len(seq), maxDisplayItems)
		parts := make([]string, 0, n+1)
		for _, item := range seq[:n] {
			parts = append(parts, display(item))
		}
		if len(seq) > maxDisplayItems {
			parts = append(parts, "...")
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}

	if _, ok := fieldpath.AsMap(v); ok {
		data, err := json.Marshal(v)
		if err == nil {
			return string(data)
		}
	}
	return fieldpath.Stringify(v)
}
