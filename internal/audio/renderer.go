// Package audio renders agent responses to speech and persists the audio.
package audio

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/roach88/convtest/internal/config"
)

// Renderer calls a text-to-speech endpoint. The request follows the common
// synthesize shape:
//
//	{"input": {"text": ...}, "voice": {"languageCode": ..., "name": ...},
//	 "audioConfig": {"audioEncoding": "LINEAR16"}}
//
// A JSON answer must carry base64 audio in audioContent; any other content
// type is taken as the raw audio bytes.
type Renderer struct {
	client *resty.Client
	url    string
	voice  string
}

// NewRenderer creates a renderer from cfg.
func NewRenderer(cfg config.Audio, token string) (*Renderer, error) {
	if cfg.RendererURL == "" {
		return nil, errors.New("audio: renderer_url is required")
	}
	client := resty.New().SetTimeout(cfg.Timeout)
	if token != "" {
		client.SetAuthToken(token)
	}
	return &Renderer{client: client, url: cfg.RendererURL, voice: cfg.Voice}, nil
}

// Render synthesizes text in languageCode.
func (r *Renderer) Render(ctx context.Context, text, languageCode string) ([]byte, error) {
	voice := map[string]any{"languageCode": languageCode}
	if r.voice != "" {
		voice["name"] = r.voice
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"input":       map[string]any{"text": text},
			"voice":       voice,
			"audioConfig": map[string]any{"audioEncoding": "LINEAR16"},
		}).
		Post(r.url)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("synthesize: status %d", resp.StatusCode())
	}

	if !strings.HasPrefix(resp.Header().Get("Content-Type"), "application/json") {
		return resp.Body(), nil
	}

	content := gjson.GetBytes(resp.Body(), "audioContent")
	if !content.Exists() {
		return nil, errors.New("synthesize: response has no audioContent")
	}
	audio, err := base64.StdEncoding.DecodeString(content.String())
	if err != nil {
		return nil, fmt.Errorf("synthesize: decode audio: %w", err)
	}
	return audio, nil
}
