package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeResponse(t *testing.T, buf *bytes.Buffer) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	return resp
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	details := map[string]string{"file": "booking.cue", "line": "42"}
	require.NoError(t, formatter.Error(ErrCodeMalformed, "malformed document", details))

	resp := decodeResponse(t, buf)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMalformed, resp.Error.Code)
	assert.Equal(t, "malformed document", resp.Error.Message)
	assert.Equal(t, map[string]any{"file": "booking.cue", "line": "42"}, resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		wantDetails bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}

			err := formatter.Error(ErrCodeNotFound, "flow file not found: booking.cue", map[string]string{"file": "booking.cue"})
			require.NoError(t, err)
			assert.Contains(t, buf.String(), "Error [E_NOT_FOUND]: flow file not found: booking.cue")
			if tt.wantDetails {
				assert.Contains(t, buf.String(), "Details:")
			} else {
				assert.NotContains(t, buf.String(), "Details:")
			}
		})
	}
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "text", Writer: buf}
		formatter.VerboseLog("Loaded flow %s", "booking")
		assert.Empty(t, buf.String())
	})

	t.Run("falls back to writer", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}
		formatter.VerboseLog("Loaded flow %s", "booking")
		assert.Equal(t, "Loaded flow booking\n", buf.String())
	})

	t.Run("json keeps stdout clean", func(t *testing.T) {
		out, diag := &bytes.Buffer{}, &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag, Verbose: true}
		formatter.VerboseLog("Loaded flow %s", "booking")
		assert.Empty(t, out.String())
		assert.Equal(t, "Loaded flow booking\n", diag.String())
	})
}

func TestOutputFormatter_Respond(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Respond(CLIResponse{
		Data:  map[string]int{"failed": 1},
		Error: &CLIError{Code: ErrCodeRunFailed, Message: "1 flow(s) failed"},
		RunID: "run-1",
	})
	require.NoError(t, err)

	resp := decodeResponse(t, buf)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "run-1", resp.RunID)
	assert.NotNil(t, resp.Data)
	assert.Contains(t, buf.String(), "\n  \"status\"")
}

func TestOutputFormatter_RespondDefaultsToOK(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Respond(CLIResponse{Data: []string{}}))

	resp := decodeResponse(t, buf)
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
	assert.NotContains(t, buf.String(), "run_id")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad config")))
	assert.Equal(t, ExitFailure, GetExitCode(WrapExitError(ExitFailure, "run failed", assert.AnError)))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))

	wrapped := WrapExitError(ExitCommandError, "failed to load flow", assert.AnError)
	assert.ErrorIs(t, wrapped, assert.AnError)
	assert.Contains(t, wrapped.Error(), "failed to load flow: ")
	assert.Equal(t, "bad config", NewExitError(ExitCommandError, "bad config").Error())
}
