package harness

import (
	"context"
	"fmt"

	"github.com/roach88/convtest/internal/turn"
)

// audioKeyTimeFormat stamps audio file keys.
const audioKeyTimeFormat = "20060102_150405"

// renderAudio renders every text message of a step and persists it under
// step<N>_msg<I>_<timestamp>.wav, where I indexes all response messages.
// Failures are logged per message and never fail the step.
func (h *Harness) renderAudio(ctx context.Context, languageCode string, number int, sr *turn.StepResult) []string {
	if h.renderer == nil || h.sink == nil {
		return nil
	}

	var files []string
	for idx, msg := range sr.ResponseMessages {
		if msg.Type != turn.TextMessage || msg.Text == "" {
			continue
		}
		audio, err := h.renderer.Render(ctx, msg.Text, languageCode)
		if err != nil {
			h.logger.Error("audio rendering failed", "step", sr.StepID, "message", idx, "error", err)
			continue
		}
		key := fmt.Sprintf("step%d_msg%d_%s.wav", number, idx, h.clock.Now().Format(audioKeyTimeFormat))
		location, err := h.sink.Save(ctx, key, audio)
		if err != nil {
			h.logger.Error("audio save failed", "step", sr.StepID, "key", key, "error", err)
			continue
		}
		h.logger.Debug("audio saved", "step", sr.StepID, "location", location)
		files = append(files, location)
	}
	return files
}
