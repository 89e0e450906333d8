package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/swaperr"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]string{"state": "completed"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"state": "completed"}, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("not_found", "commit abc not found", map[string]string{"reason_code": "commit_not_found"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "not_found", resp.Error.Code)
	assert.Equal(t, "commit abc not found", resp.Error.Message)
	assert.Equal(t, map[string]any{"reason_code": "commit_not_found"}, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	require.NoError(t, formatter.Success("expired 0 cycle(s)"))
	assert.Equal(t, "expired 0 cycle(s)\n", buf.String())
}

func TestOutputFormatter_TextSuccessStruct(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	require.NoError(t, formatter.Success(map[string]int{"count": 3}))
	assert.Equal(t, "{\n  \"count\": 3\n}\n", buf.String())
}

func TestOutputFormatter_TextErrorGoesToErrWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:    "text",
		Writer:    buf,
		ErrWriter: errBuf,
	}

	require.NoError(t, formatter.Error("conflict", "deposit ref differs", nil))
	assert.Empty(t, buf.String())
	assert.Contains(t, errBuf.String(), "Error [conflict]: deposit ref differs")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	require.NoError(t, formatter.Error("precondition_failed", "legs outstanding", map[string]string{"reason_code": "legs_outstanding"}))
	assert.Contains(t, buf.String(), "Error [precondition_failed]")
	assert.Contains(t, buf.String(), "Details:")
	assert.Contains(t, buf.String(), "legs_outstanding")
}

func TestOutputFormatter_Fail(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantExit int
		reason   string
	}{
		{
			name:     "precondition",
			err:      swaperr.Precondition(swaperr.ReasonLegsOutstanding, "2 legs outstanding"),
			wantCode: "precondition_failed",
			wantExit: ExitFailure,
			reason:   "legs_outstanding",
		},
		{
			name:     "validation",
			err:      swaperr.Validation(swaperr.ReasonInvalidPayload, "bad payload"),
			wantCode: "validation",
			wantExit: ExitCommandError,
			reason:   "invalid_payload",
		},
		{
			name:     "forbidden",
			err:      swaperr.Forbidden(swaperr.ReasonPolicyDenied, "denied"),
			wantCode: "forbidden",
			wantExit: ExitCommandError,
			reason:   "policy_denied",
		},
		{
			name:     "plain error",
			err:      errors.New("disk on fire"),
			wantCode: "internal",
			wantExit: ExitFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: buf}

			err := formatter.Fail(tt.err)
			require.Error(t, err)
			assert.Equal(t, tt.wantExit, GetExitCode(err))
			assert.True(t, IsReported(err))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			if tt.reason != "" {
				details, ok := resp.Error.Details.(map[string]any)
				require.True(t, ok)
				assert.Equal(t, tt.reason, details["reason_code"])
			}
		})
	}
}

func TestOutputFormatter_FailPassesExitErrors(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	in := NewExitError(ExitCommandError, "bad flag")
	err := formatter.Fail(in)
	assert.Same(t, in, err)
	assert.Empty(t, buf.String())
	assert.False(t, IsReported(err))
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			formatter.VerboseLog("sweeping %d cycles", 3)

			if tt.wantLog {
				assert.Contains(t, buf.String(), "sweeping 3 cycles")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestExitError(t *testing.T) {
	cause := errors.New("boom")
	err := WrapExitError(ExitCommandError, "failed to start swapgraph", cause)
	assert.Equal(t, "failed to start swapgraph: boom", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ExitFailure, GetExitCode(cause))
}

func TestExitCodeFor(t *testing.T) {
	assert.Equal(t, ExitCommandError, ExitCodeFor(swaperr.KindValidation))
	assert.Equal(t, ExitCommandError, ExitCodeFor(swaperr.KindForbidden))
	for _, k := range []swaperr.Kind{swaperr.KindNotFound, swaperr.KindConflict, swaperr.KindPrecondition, swaperr.KindExpired, swaperr.KindInternal} {
		assert.Equal(t, ExitFailure, ExitCodeFor(k), k)
	}
}
