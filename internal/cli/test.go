package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/roach88/ruleassert/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario name pattern (doublestar)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // "match", "updated" or "missing"
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run YAML scenarios",
		Long: `Run every scenario under a directory.

Each scenario runs against a fresh session with a pseudo clock. A scenario
passes when all of its steps and its final check pass and, if a golden file
exists next to the scenario directory (../golden/<name>.golden), its trace
matches the golden file byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (missing directory, bad filter, etc.)

Examples:
  ruleassert test ./testdata/scenarios
  ruleassert test ./testdata/scenarios --filter "logical_*"
  ruleassert test ./testdata/scenarios --update
  ruleassert test ./testdata/scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "run only scenarios whose name matches this pattern")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}
	if opts.Filter != "" && !doublestar.ValidatePattern(opts.Filter) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid filter pattern: %q", opts.Filter))
	}

	files, err := findScenarioFiles(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	formatter.VerboseLog("Found %d scenario file(s) in %s", len(files), dir)

	result := TestResult{Scenarios: []ScenarioResult{}}
	for _, file := range files {
		sr, skip := runScenario(opts, file, formatter)
		if skip {
			continue
		}
		result.Scenarios = append(result.Scenarios, sr)
		result.Total++
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		if !formatter.JSON() {
			printScenario(formatter.Writer, sr)
		}
	}

	if formatter.JSON() {
		return outputTestJSON(formatter, result)
	}
	return outputTestText(formatter, result)
}

// findScenarioFiles returns every .yaml and .yml file under dir, sorted.
func findScenarioFiles(dir string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), "**/*.{yaml,yml}", doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	files := make([]string, len(matches))
	for i, m := range matches {
		files[i] = filepath.Join(dir, filepath.FromSlash(m))
	}
	return files, nil
}

// runScenario loads, runs and golden-checks one scenario. skip is true when
// the scenario is filtered out.
func runScenario(opts *TestOptions, file string, formatter *OutputFormatter) (ScenarioResult, bool) {
	sr := ScenarioResult{Name: filepath.Base(file), File: file}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return sr, false
	}
	sr.Name = scenario.Name

	if opts.Filter != "" {
		if ok, _ := doublestar.Match(opts.Filter, scenario.Name); !ok {
			formatter.VerboseLog("Skipping %s", scenario.Name)
			return sr, true
		}
	}

	formatter.VerboseLog("Running %s", scenario.Name)
	result, err := harness.Run(scenario)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return sr, false
	}
	sr.Errors = result.Errors

	snapshot, err := result.Snapshot(scenario.Name)
	if err != nil {
		sr.Errors = append(sr.Errors, fmt.Sprintf("snapshot failed: %v", err))
		return sr, false
	}

	goldenPath := harness.GoldenPath(scenario)
	if opts.Update {
		if err := writeGolden(goldenPath, snapshot); err != nil {
			sr.Errors = append(sr.Errors, fmt.Sprintf("failed to update golden file: %v", err))
			return sr, false
		}
		sr.Golden = "updated"
		sr.Pass = result.Pass
		return sr, false
	}

	match, err := compareGolden(goldenPath, snapshot)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		sr.Golden = "missing"
	case err != nil:
		sr.Errors = append(sr.Errors, fmt.Sprintf("golden comparison failed: %v", err))
		return sr, false
	case !match:
		sr.Errors = append(sr.Errors, "trace does not match golden file (run with --update to regenerate)")
		return sr, false
	default:
		sr.Golden = "match"
	}

	sr.Pass = result.Pass
	return sr, false
}

func writeGolden(path string, snapshot []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	return os.WriteFile(path, snapshot, 0o644)
}

func compareGolden(path string, snapshot []byte) (bool, error) {
	golden, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	return bytes.Equal(golden, snapshot), nil
}

func printScenario(w io.Writer, sr ScenarioResult) {
	mark := "✓"
	if !sr.Pass {
		mark = "✗"
	}
	suffix := ""
	if sr.Golden == "updated" {
		suffix = " (golden updated)"
	}
	fmt.Fprintf(w, "%s %s%s\n", mark, sr.Name, suffix)
	for _, e := range sr.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

func outputTestJSON(formatter *OutputFormatter, result TestResult) error {
	if result.Failed == 0 {
		return formatter.Success(result)
	}
	msg := fmt.Sprintf("%d scenario(s) failed", result.Failed)
	if err := formatter.Failure("E_TEST_FAILED", msg, result); err != nil {
		return err
	}
	return NewExitError(ExitFailure, msg)
}

func outputTestText(formatter *OutputFormatter, result TestResult) error {
	w := formatter.Writer
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
