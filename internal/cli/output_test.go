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
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	require.NoError(t, f.Success(map[string]int{"added": 3}, "ignored text line"))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotContains(t, buf.String(), "ignored text line")
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &buf}

	require.NoError(t, f.Success(nil, "Archived 3 file(s)"))
	assert.Equal(t, "Archived 3 file(s)\n", buf.String())
}

func TestOutputFormatter_JSONError(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	require.NoError(t, f.Error("SCHEMA_ERROR", "table unusable"))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "SCHEMA_ERROR", resp.Error.Code)
}

func TestExitError(t *testing.T) {
	base := errors.New("boom")
	err := WrapExitError(ExitCommandError, "bad flags", base)

	assert.Equal(t, "bad flags: boom", err.Error())
	assert.ErrorIs(t, err, base)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGetExitCode_PlainError(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("plain")))
}

func TestGetExitCode_Wrapped(t *testing.T) {
	inner := WrapExitError(ExitCommandError, "inner", nil)
	outer := fmt.Errorf("context: %w", inner)
	assert.Equal(t, ExitCommandError, GetExitCode(outer))
}
