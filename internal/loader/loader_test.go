package loader

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rulesDir = "../../testdata/rules"

func writeRule(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestResolve_SortsAndDeduplicates(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "b.cue", `rule: "b": { when: [{type: "B"}] }`)
	writeRule(t, dir, "a.cue", `rule: "a": { when: [{type: "A"}] }`)
	writeRule(t, dir, "nested/c.cue", `rule: "c": { when: [{type: "C"}] }`)

	files, err := Resolve([]string{"b.cue", "**/*.cue"}, WithBaseDir(dir))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "b.cue"),
		filepath.Join(dir, "a.cue"),
		filepath.Join(dir, "nested", "c.cue"),
	}, files)
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name      string
		resources []string
		code      string
	}{
		{"no resources", nil, ErrCodeNoResources},
		{"no match", []string{"missing/*.cue"}, ErrCodeNoFiles},
		{"bad pattern", []string{"rules/[.cue"}, ErrCodeBadPattern},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.resources, WithBaseDir(t.TempDir()))
			require.Error(t, err)
			assert.True(t, IsLoadError(err, tt.code), "got %v", err)
		})
	}
}

func TestLoad_Testdata(t *testing.T) {
	result, err := Load([]string{"calls.cue", "atomic.cue"}, WithBaseDir(rulesDir))
	require.NoError(t, err)

	assert.Len(t, result.Files, 2)
	require.Len(t, result.Rules, 7)
	assert.Equal(t, "input call", result.Rules[0].Name)
	assert.Equal(t, "atomic int rule", result.Rules[5].Name)
}

func TestLoad_LogsResources(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	_, err := Load([]string{"calls.cue"}, WithBaseDir(rulesDir), WithLogResources(logger))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "loading rule resource")
	assert.Contains(t, buf.String(), "calls.cue")
}

func TestLoad_CompileErrorKeepsPosition(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "bad.cue", "rule: \"r\": {\n\twhen: [{bind: \"x\"}]\n}\n")

	_, err := Load([]string{"bad.cue"}, WithBaseDir(dir))
	require.Error(t, err)

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeCompile, le.Code)
	assert.Contains(t, le.Message, "pattern requires 'type' field")
}

func TestBuild_DuplicateAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "one.cue", `rule: "same": { when: [{type: "A"}] }`)
	writeRule(t, dir, "two.cue", `rule: "same": { when: [{type: "B"}] }`)

	_, err := Build([]string{"*.cue"}, WithBaseDir(dir))
	require.Error(t, err)
	assert.True(t, IsLoadError(err, ErrCodeBuildFailed))
	assert.Contains(t, err.Error(), "duplicate rule name")
}

func TestBuild_Testdata(t *testing.T) {
	rb, err := Build([]string{"*.cue"}, WithBaseDir(rulesDir))
	require.NoError(t, err)
	assert.Contains(t, rb.RuleNames(), "audit: dial-up seen")
}
