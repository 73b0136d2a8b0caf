package fieldpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() map[string]any {
	return map[string]any{
		"step_id":           "greet",
		"intent":            "account_help",
		"intent_confidence": 0.92,
		"current_page":      "Start Page",
		"response_messages": []any{
			map[string]any{"type": "text", "text": "Hello THERE"},
			map[string]any{"type": "payload", "payload": map[string]any{"card": "x"}},
			map[string]any{"type": "text", "text": "How can I Help?"},
		},
		"parameters": map[string]any{
			"topic":  "account",
			"amount": 25.0,
			"nested": map[string]any{"deep": "value"},
		},
		"pages": []any{
			map[string]any{"transitions": []any{
				map[string]any{"target": "a"},
				map[string]any{"target": "b"},
			}},
			map[string]any{"transitions": []any{
				map[string]any{"target": "c"},
			}},
		},
		"empty": nil,
	}
}

func TestCompile_Tokens(t *testing.T) {
	p, err := Compile("pages[*].transitions[0].target")
	require.NoError(t, err)
	assert.Equal(t, []Token{
		{Kind: FieldToken, Name: "pages"},
		{Kind: WildcardToken},
		{Kind: FieldToken, Name: "transitions"},
		{Kind: IndexToken, Index: 0},
		{Kind: FieldToken, Name: "target"},
	}, p.Tokens())

	p, err = Compile("a[][2][*]")
	require.NoError(t, err)
	assert.Equal(t, []Token{
		{Kind: FieldToken, Name: "a"},
		{Kind: WildcardToken},
		{Kind: IndexToken, Index: 2},
		{Kind: WildcardToken},
	}, p.Tokens())
}

func TestCompile_Malformed(t *testing.T) {
	for _, expr := range []string{"a[", "a[x]", "a]", "a[-1]", "a[1.5].b"} {
		_, err := Compile(expr)
		require.Error(t, err, expr)
		var se *SyntaxError
		assert.ErrorAs(t, err, &se, expr)
	}
}

func TestExtract_SimplePaths(t *testing.T) {
	rec := sampleRecord()

	assert.Equal(t, "account_help", Extract(rec, "intent"))
	assert.Equal(t, 0.92, Extract(rec, "intent_confidence"))
	assert.Equal(t, "account", Extract(rec, "parameters.topic"))
	assert.Equal(t, "value", Extract(rec, "parameters.nested.deep"))
	assert.Nil(t, Extract(rec, "parameters.missing"))
	assert.Nil(t, Extract(rec, "intent.name"), "scalar mid-path")
	assert.Nil(t, Extract(rec, "empty"))

	pages := Extract(rec, "pages.transitions")
	assert.Equal(t, rec["pages"], pages, "sequence mid-path comes back unchanged")
}

func TestExtract_Aliases(t *testing.T) {
	rec := sampleRecord()

	assert.Equal(t, "hello there how can i help?", Extract(rec, "response_messages"))
	assert.Equal(t, "hello there how can i help?", Extract(rec, "response_text"))
	assert.Equal(t, "hello there how can i help?", Extract(rec, "response_messages[*].text"))
	assert.Equal(t, "hello there how can i help?", Extract(rec, "response_messages[].text"))

	camel := map[string]any{
		"responseMessages": []any{map[string]any{"text": "Camel Case"}},
	}
	assert.Equal(t, "camel case", Extract(camel, "responseText"))
	assert.Equal(t, "camel case", Extract(camel, "responseMessages"))
}

func TestExtract_CamelCaseRecordFields(t *testing.T) {
	rec := sampleRecord()

	assert.Equal(t, "greet", Extract(rec, "stepId"))
	assert.Equal(t, 0.92, Extract(rec, "intentConfidence"))
	assert.Equal(t, "Start Page", Extract(rec, "currentPage"))
	assert.Equal(t, "hello there how can i help?", Extract(rec, "responseMessages[*].text"))
	assert.Equal(t, "hello there how can i help?", Extract(rec, "responseMessages"))
	assert.Equal(t, "hello there how can i help?", Extract(rec, "responseText"))
	assert.Equal(t, "payload", Extract(rec, "responseMessages[1].type"))

	// only record fields are respelled
	assert.Nil(t, Extract(rec, "parameters.Topic"))
	assert.Nil(t, Extract(map[string]any{"party_size": 2.0}, "partySize"))

	// an exact key wins over the respelling
	both := map[string]any{"currentPage": "exact", "current_page": "snake"}
	assert.Equal(t, "exact", Extract(both, "currentPage"))
}

func TestExtract_ParametersKeys(t *testing.T) {
	assert.Equal(t, []any{"amount", "nested", "topic"}, Extract(sampleRecord(), "parameters"))
	assert.Equal(t, []any{}, Extract(map[string]any{}, "parameters"))
	assert.Equal(t, "raw", Extract(map[string]any{"parameters": "raw"}, "parameters"))
}

func TestExtract_IndexedText(t *testing.T) {
	rec := sampleRecord()

	assert.Equal(t, "hello there", Extract(rec, "response_messages[0].text"))
	// index 1 is a payload message without text
	assert.Nil(t, Extract(rec, "response_messages[1].text"))
	assert.Nil(t, Extract(rec, "response_messages[9].text"))
}

func TestExtract_WildcardFanOut(t *testing.T) {
	rec := sampleRecord()

	assert.Equal(t, []any{"a", "b", "c"}, Extract(rec, "pages[*].transitions[*].target"))
	assert.Equal(t, []any{"a", "c"}, Extract(rec, "pages[*].transitions[0].target"))
	assert.Equal(t, "b", Extract(rec, "pages[0].transitions[1].target"))
	assert.Equal(t, []any{"text", "payload", "text"}, Extract(rec, "response_messages[*].type"))
}

func TestExtract_WildcardPassesScalarsThrough(t *testing.T) {
	rec := map[string]any{"name": "solo"}
	assert.Equal(t, "solo", Extract(rec, "name[*]"))
}

func TestExtract_TextSkipsEmptyValues(t *testing.T) {
	rec := map[string]any{"items": []any{
		map[string]any{"text": ""},
		map[string]any{"text": "ONE"},
		map[string]any{"text": 2.0},
		map[string]any{"text": 0.0},
	}}
	assert.Equal(t, "one 2", Extract(rec, "items[*].text"))
}

func TestExtract_MalformedYieldsNil(t *testing.T) {
	assert.Nil(t, Extract(sampleRecord(), "response_messages[x].text"))
	assert.Nil(t, Extract(sampleRecord(), "pages]"))
}

func TestExtract_DoesNotMutate(t *testing.T) {
	rec := sampleRecord()
	before := sampleRecord()

	first := Extract(rec, "pages[*].transitions[*].target")
	second := Extract(rec, "pages[*].transitions[*].target")

	assert.Equal(t, first, second)
	assert.Equal(t, before, rec)
}

func TestExtract_TypedRecord(t *testing.T) {
	rec := map[string]any{
		"response_messages": []map[string]any{{"text": "Typed"}},
		"tags":              []string{"x", "y"},
	}
	assert.Equal(t, "typed", Extract(rec, "response_text"))
	assert.Equal(t, "y", Extract(rec, "tags[1]"))
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "3", Stringify(3.0))
	assert.Equal(t, "0.5", Stringify(0.5))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "7", Stringify(7))
	assert.Equal(t, "null", Stringify(nil))
}
