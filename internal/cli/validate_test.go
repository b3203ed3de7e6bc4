package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rulesDir = filepath.Join("..", "..", "testdata", "rules")

func newValidateCmd(t *testing.T, format string, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	return buf, cmd.Execute()
}

func TestValidateValidRules(t *testing.T) {
	buf, err := newValidateCmd(t, "text", "--base-dir", rulesDir, "calls.cue")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "file(s) valid")
	assert.NotContains(t, out, "warning:")
}

func TestValidateReportsSelfActivatingRules(t *testing.T) {
	buf, err := newValidateCmd(t, "text", filepath.Join(rulesDir, "atomic.cue"))
	require.NoError(t, err, "loops are warnings")

	out := buf.String()
	assert.Contains(t, out, "warning: Self-activating rule detected: atomic int rule")
	assert.Contains(t, out, "warning: Self-activating rule detected: atomic long rule")
	assert.Contains(t, out, "✓ 2 rule(s) in 1 file(s) valid")
}

func TestValidateValidRulesJSON(t *testing.T) {
	buf, err := newValidateCmd(t, "json", filepath.Join(rulesDir, "*.cue"))
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Len(t, resp.Data.Files, 3)
	assert.Contains(t, resp.Data.Rules, "atomic int rule")
	assert.Contains(t, resp.Data.Rules, "input call")
}

func TestValidateNoFiles(t *testing.T) {
	buf, err := newValidateCmd(t, "text", filepath.Join(t.TempDir(), "*.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "E003")
	assert.Contains(t, buf.String(), "pattern matched no files")
}

func TestValidateBadPattern(t *testing.T) {
	_, err := newValidateCmd(t, "text", "rules/[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "E002")
}

func TestValidateCompileError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.cue"), []byte(`rule: "x": {`), 0o644))

	buf, err := newValidateCmd(t, "text", filepath.Join(dir, "broken.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "E004")

	out := buf.String()
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "broken.cue")
}

func TestValidateCompileErrorJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.cue"), []byte(`rule: "x": {`), 0o644))

	buf, err := newValidateCmd(t, "json", filepath.Join(dir, "broken.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E004", resp.Error.Code)
}

func TestValidateDuplicateRulesAcrossFiles(t *testing.T) {
	data, err := os.ReadFile(filepath.Join(rulesDir, "atomic.cue"))
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.cue"), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.cue"), data, 0o644))

	buf, err := newValidateCmd(t, "text", "--base-dir", dir, "*.cue")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "E006")
	assert.Contains(t, buf.String(), "duplicate rule name")
}

func TestValidateMissingArgs(t *testing.T) {
	_, err := newValidateCmd(t, "text")
	require.Error(t, err)
}
