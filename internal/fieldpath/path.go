// Package fieldpath extracts values from turn-result records using dotted
// paths with optional array qualifiers.
//
// Grammar: segments separated by '.', each a field name optionally followed
// by any number of qualifiers: [n] selects one element, [*] and [] flatten.
//
//	intent
//	parameters.amount
//	response_messages[*].text
//	pages[0].transitions[].target
//
// Paths without brackets walk maps only and hand back any sequence they run
// into unchanged. Bracketed paths are evaluated over a working set of values,
// so a wildcard fans out and later segments apply to every element.
package fieldpath

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// TokenKind distinguishes the three path operations.
type TokenKind int

const (
	FieldToken TokenKind = iota
	WildcardToken
	IndexToken
)

func (k TokenKind) String() string {
	switch k {
	case FieldToken:
		return "field"
	case WildcardToken:
		return "wildcard"
	case IndexToken:
		return "index"
	}
	return fmt.Sprintf("token(%d)", int(k))
}

// Token is one step of a compiled path.
type Token struct {
	Kind  TokenKind
	Name  string // FieldToken only
	Index int    // IndexToken only
}

// Path is a compiled path expression. It is immutable and safe for
// concurrent use.
type Path struct {
	expr   string
	tokens []Token
}

// SyntaxError reports malformed bracket syntax.
type SyntaxError struct {
	Expr   string
	Offset int
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("path %q: %s at offset %d", e.Expr, e.Reason, e.Offset)
}

// Compile tokenizes expr. Empty segment names ("a..b") are skipped.
func Compile(expr string) (*Path, error) {
	var tokens []Token
	var name strings.Builder

	flush := func() {
		if name.Len() > 0 {
			tokens = append(tokens, Token{Kind: FieldToken, Name: name.String()})
			name.Reset()
		}
	}

	for i := 0; i < len(expr); i++ {
		switch c := expr[i]; c {
		case '.':
			flush()
		case ']':
			return nil, &SyntaxError{Expr: expr, Offset: i, Reason: "unmatched ']'"}
		case '[':
			flush()
			end := strings.IndexByte(expr[i+1:], ']')
			if end < 0 {
				return nil, &SyntaxError{Expr: expr, Offset: i, Reason: "unclosed '['"}
			}
			inner := expr[i+1 : i+1+end]
			switch {
			case inner == "" || inner == "*":
				tokens = append(tokens, Token{Kind: WildcardToken})
			case isDigits(inner):
				n, err := strconv.Atoi(inner)
				if err != nil {
					return nil, &SyntaxError{Expr: expr, Offset: i, Reason: "index out of range"}
				}
				tokens = append(tokens, Token{Kind: IndexToken, Index: n})
			default:
				return nil, &SyntaxError{Expr: expr, Offset: i, Reason: fmt.Sprintf("invalid qualifier [%s]", inner)}
			}
			i += end + 1
		default:
			name.WriteByte(c)
		}
	}
	flush()

	return &Path{expr: expr, tokens: tokens}, nil
}

func (p *Path) String() string { return p.expr }

// Tokens returns a copy of the compiled tokens.
func (p *Path) Tokens() []Token {
	return append([]Token(nil), p.tokens...)
}

// Extract evaluates the path against record with bracket-path semantics.
//
// When the last token is the field "text", every non-empty value is
// stringified and the results are joined with single spaces and lower-cased,
// whatever qualifier preceded it. Otherwise no value yields nil, one value is
// returned bare and several come back as a []any.
func (p *Path) Extract(record any) any {
	values := []any{record}
	for _, tok := range p.tokens {
		values = apply(tok, values)
		if len(values) == 0 {
			return nil
		}
	}

	if n := len(p.tokens); n > 0 && p.tokens[n-1].Kind == FieldToken && p.tokens[n-1].Name == "text" {
		return joinText(values)
	}
	if len(values) == 1 {
		return values[0]
	}
	return values
}

func apply(tok Token, values []any) []any {
	var next []any
	switch tok.Kind {
	case FieldToken:
		for _, v := range values {
			m, ok := AsMap(v)
			if !ok {
				continue
			}
			if got := lookup(m, tok.Name); got != nil {
				next = append(next, got)
			}
		}
	case WildcardToken:
		for _, v := range values {
			if seq, ok := AsSequence(v); ok {
				next = append(next, seq...)
			} else {
				next = append(next, v)
			}
		}
	case IndexToken:
		for _, v := range values {
			if seq, ok := AsSequence(v); ok && tok.Index < len(seq) {
				next = append(next, seq[tok.Index])
			}
		}
	}
	return next
}

// recordKeys maps the camelCase names of step record fields onto the keys the
// record is rendered with.
var recordKeys = map[string]string{
	"stepId":           "step_id",
	"stepNumber":       "step_number",
	"userInput":        "user_input",
	"intentConfidence": "intent_confidence",
	"responseMessages": "response_messages",
	"currentPage":      "current_page",
	"executionTimeMs":  "execution_time_ms",
	"audioFiles":       "audio_files",
}

// lookup reads name from m, falling back to the record key it spells.
func lookup(m map[string]any, name string) any {
	if v, ok := m[name]; ok {
		return v
	}
	if key, ok := recordKeys[name]; ok {
		return m[key]
	}
	return nil
}

// Aliases rewritten before parsing.
var aliases = map[string]string{
	"response_messages": "response_messages[*].text",
	"response_text":     "response_messages[*].text",
	"responseMessages":  "responseMessages[*].text",
	"responseText":      "responseMessages[*].text",
}

// Resolve applies the shorthand aliases to expr.
func Resolve(expr string) string {
	if full, ok := aliases[expr]; ok {
		return full
	}
	return expr
}

// Extract evaluates expr against record.
//
// Aliases are resolved first. The bare path "parameters" yields the sorted
// key list of the parameters map, so contains_all and contains_any can test
// which parameters were captured. Paths without brackets use plain dotted
// traversal. A malformed path yields nil and is logged at debug level.
//
// Extract never modifies record.
func Extract(record any, expr string) any {
	expr = Resolve(expr)

	if expr == "parameters" {
		return parameterKeys(record)
	}

	if !strings.ContainsAny(expr, "[]") {
		return simple(record, expr)
	}

	p, err := Compile(expr)
	if err != nil {
		slog.Debug("invalid field path", "path", expr, "error", err)
		return nil
	}
	return p.Extract(record)
}

// simple walks dotted segments through maps. A sequence met before the path
// is exhausted is returned as-is.
func simple(record any, expr string) any {
	value := record
	for _, part := range strings.Split(expr, ".") {
		if _, ok := AsSequence(value); ok {
			return value
		}
		m, ok := AsMap(value)
		if !ok {
			return nil
		}
		value = lookup(m, part)
		if value == nil {
			return nil
		}
	}
	return value
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
