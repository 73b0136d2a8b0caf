// Package backend provides turn executors: an HTTP client for
// detectIntent-style conversational APIs and a scripted backend for offline
// runs.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/roach88/convtest/internal/config"
	"github.com/roach88/convtest/internal/turn"
)

// detectIntentPath is resolved against the configured base URL.
const detectIntentPath = "/{agent}/sessions/{session}:detectIntent"

// ErrNoSession is returned when a turn is sent without a session id.
var ErrNoSession = errors.New("backend: session id is required")

// StatusError reports a non-2xx answer from the backend.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("detect intent: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("detect intent: status %d", e.StatusCode)
}

// HTTP sends turns to a detectIntent endpoint:
//
//	POST {base_url}/{agent}/sessions/{session}:detectIntent
//
// It is safe for concurrent use.
type HTTP struct {
	client *resty.Client
	logger *slog.Logger
}

// NewHTTP creates an HTTP backend from cfg.
func NewHTTP(cfg config.Backend, logger *slog.Logger) (*HTTP, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("backend: base_url is required for the http backend")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	return &HTTP{client: client, logger: logger}, nil
}

// SendTurn implements the harness turn executor.
func (h *HTTP) SendTurn(ctx context.Context, req turn.Request) (*turn.Result, error) {
	if req.SessionID == "" {
		return nil, ErrNoSession
	}
	if req.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	body := map[string]any{
		"queryInput": map[string]any{
			"text":         map[string]any{"text": req.Utterance},
			"languageCode": req.LanguageCode,
		},
	}

	resp, err := h.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"agent":   req.AgentRef,
			"session": req.SessionID,
		}).
		SetBody(body).
		Post(detectIntentPath)
	if err != nil {
		return nil, fmt.Errorf("detect intent: %w", err)
	}

	if resp.IsError() {
		return nil, &StatusError{
			StatusCode: resp.StatusCode(),
			Message:    gjson.GetBytes(resp.Body(), "error.message").String(),
		}
	}

	h.logger.Debug("detect intent", "session", req.SessionID, "status", resp.StatusCode(), "duration", resp.Time())
	return ParseDetectIntent(resp.Body())
}

// ParseDetectIntent extracts a turn result from a detectIntent response body.
// The intent confidence is read from match.confidence, falling back to
// intentDetectionConfidence.
func ParseDetectIntent(body []byte) (*turn.Result, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("detect intent: invalid JSON response")
	}
	qr := gjson.GetBytes(body, "queryResult")
	if !qr.Exists() {
		return nil, errors.New("detect intent: response has no queryResult")
	}

	res := &turn.Result{
		Intent:           qr.Get("intent.displayName").String(),
		CurrentPage:      qr.Get("currentPage.displayName").String(),
		ResponseMessages: []turn.Message{},
		Parameters:       map[string]any{},
	}
	if res.Intent == "" {
		res.Intent = qr.Get("match.intent.displayName").String()
	}

	if c := qr.Get("match.confidence"); c.Exists() {
		res.IntentConfidence = turn.Float(c.Float())
	} else if c := qr.Get("intentDetectionConfidence"); c.Exists() {
		res.IntentConfidence = turn.Float(c.Float())
	}

	if params, ok := qr.Get("parameters").Value().(map[string]any); ok {
		res.Parameters = params
	}

	qr.Get("responseMessages").ForEach(func(_, msg gjson.Result) bool {
		switch {
		case msg.Get("text").Exists():
			var parts []string
			msg.Get("text.text").ForEach(func(_, t gjson.Result) bool {
				parts = append(parts, t.String())
				return true
			})
			res.ResponseMessages = append(res.ResponseMessages, turn.Message{
				Type: turn.TextMessage,
				Text: strings.Join(parts, " "),
			})
		case msg.Get("payload").Exists():
			payload, _ := msg.Get("payload").Value().(map[string]any)
			res.ResponseMessages = append(res.ResponseMessages, turn.Message{
				Type:    turn.PayloadMessage,
				Payload: payload,
			})
		}
		return true
	})

	return res, nil
}
