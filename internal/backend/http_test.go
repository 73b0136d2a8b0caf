package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/convtest/internal/config"
	"github.com/roach88/convtest/internal/turn"
)

const detectIntentResponse = `{
  "responseId": "r-1",
  "queryResult": {
    "text": "book a table",
    "languageCode": "en",
    "intent": {"displayName": "book_table"},
    "match": {"confidence": 0.87, "matchType": "INTENT"},
    "parameters": {"party_size": 4, "date": "2025-03-01"},
    "currentPage": {"displayName": "Booking"},
    "responseMessages": [
      {"text": {"text": ["For how many", "people?"]}},
      {"payload": {"richContent": [[{"type": "chips"}]]}}
    ]
  }
}`

func newTestBackend(t *testing.T, url string) *HTTP {
	t.Helper()
	b, err := NewHTTP(config.Backend{
		Kind:    config.BackendHTTP,
		BaseURL: url,
		Token:   "tok",
		Timeout: 5 * time.Second,
	}, nil)
	require.NoError(t, err)
	return b
}

func TestHTTP_SendTurn(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(detectIntentResponse))
	}))
	defer srv.Close()

	b := newTestBackend(t, srv.URL+"/v3/agents/")
	res, err := b.SendTurn(context.Background(), turn.Request{
		AgentRef:     "agent-7",
		SessionID:    "s-1",
		Utterance:    "book a table",
		LanguageCode: "en",
	})
	require.NoError(t, err)

	assert.Equal(t, "/v3/agents/agent-7/sessions/s-1:detectIntent", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, map[string]any{
		"queryInput": map[string]any{
			"text":         map[string]any{"text": "book a table"},
			"languageCode": "en",
		},
	}, gotBody)

	assert.Equal(t, "book_table", res.Intent)
	require.NotNil(t, res.IntentConfidence)
	assert.InDelta(t, 0.87, *res.IntentConfidence, 1e-9)
	assert.Equal(t, "Booking", res.CurrentPage)
	assert.Equal(t, float64(4), res.Parameters["party_size"])
	require.Len(t, res.ResponseMessages, 2)
	assert.Equal(t, turn.Message{Type: turn.TextMessage, Text: "For how many people?"}, res.ResponseMessages[0])
	assert.Equal(t, turn.PayloadMessage, res.ResponseMessages[1].Type)
	assert.Contains(t, res.ResponseMessages[1].Payload, "richContent")
}

func TestHTTP_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {"code": 403, "message": "permission denied"}}`))
	}))
	defer srv.Close()

	b := newTestBackend(t, srv.URL)
	_, err := b.SendTurn(context.Background(), turn.Request{AgentRef: "a", SessionID: "s", Utterance: "hi"})

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
	assert.Equal(t, "detect intent: status 403: permission denied", se.Error())
}

func TestHTTP_RequiresSession(t *testing.T) {
	b := newTestBackend(t, "http://localhost:1")
	_, err := b.SendTurn(context.Background(), turn.Request{Utterance: "hi"})
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestNewHTTP_RequiresBaseURL(t *testing.T) {
	_, err := NewHTTP(config.Backend{Kind: config.BackendHTTP}, nil)
	assert.Error(t, err)
}

func TestParseDetectIntent_ConfidenceFallback(t *testing.T) {
	res, err := ParseDetectIntent([]byte(`{"queryResult": {
		"intentDetectionConfidence": 0.5,
		"match": {"intent": {"displayName": "greeting"}}
	}}`))
	require.NoError(t, err)

	assert.Equal(t, "greeting", res.Intent)
	require.NotNil(t, res.IntentConfidence)
	assert.Equal(t, 0.5, *res.IntentConfidence)
	assert.Empty(t, res.ResponseMessages)
	assert.NotNil(t, res.Parameters)
}

func TestParseDetectIntent_Invalid(t *testing.T) {
	_, err := ParseDetectIntent([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseDetectIntent([]byte(`{"responseId": "x"}`))
	assert.Error(t, err)
}
