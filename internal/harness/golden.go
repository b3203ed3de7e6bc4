package harness

import (
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// GoldenDir returns the directory holding a scenario's golden file: the
// golden directory next to the scenario's directory, or testdata/golden
// for scenarios built in code.
func GoldenDir(scenario *Scenario) string {
	if scenario.Dir == "" {
		return filepath.Join("testdata", "golden")
	}
	return filepath.Join(filepath.Dir(scenario.Dir), "golden")
}

// GoldenPath returns the golden file of a scenario.
func GoldenPath(scenario *Scenario) string {
	return filepath.Join(GoldenDir(scenario), scenario.Name+".golden")
}

// RunWithGolden executes a scenario and compares its snapshot against
// {GoldenDir}/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario, result); err != nil {
		return result, err
	}
	return result, nil
}

// AssertGolden compares an existing result against the scenario's golden
// file without re-running it.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	snapshot, err := result.Snapshot(scenario.Name)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir(scenario)),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, snapshot)
	return nil
}
