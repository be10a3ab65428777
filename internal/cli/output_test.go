package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Success(map[string]string{"result": "success"})
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Error("P000", "profile rejected", "window must be positive")
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "P000", resp.Error.Code)
	assert.Equal(t, "profile rejected", resp.Error.Message)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}

	require.NoError(t, formatter.Error("P000", "profile rejected", "details here"))
	assert.Contains(t, buf.String(), "Error [P000]: profile rejected")
	assert.Contains(t, buf.String(), "details here")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}

	quiet := &OutputFormatter{Format: "text", Writer: out}
	quiet.VerboseLog("hidden %d", 1)
	assert.Empty(t, out.String())

	verbose := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}
	verbose.VerboseLog("visible %d", 2)
	assert.Empty(t, out.String(), "verbose output must not corrupt the JSON stream")
	assert.Contains(t, errOut.String(), "visible 2")
}

func TestExitError(t *testing.T) {
	plain := NewExitError(ExitCommandError, "bad flag")
	assert.Equal(t, "bad flag", plain.Error())
	assert.Equal(t, ExitCommandError, GetExitCode(plain))

	inner := errors.New("disk full")
	wrapped := WrapExitError(ExitFailure, "store write", inner)
	assert.Equal(t, "store write: disk full", wrapped.Error())
	assert.ErrorIs(t, wrapped, inner)
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
}

func TestGetExitCode_DefaultsToFailure(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("anything")))
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("wrapped: %w", errors.New("x"))))
}
