package harness

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/roach88/ruleassert/internal/engine"
)

// SuiteConfig configures every test of a suite.
type SuiteConfig struct {
	// Resources are rule source patterns, relative to BaseDir.
	Resources []string `yaml:"resources"`

	// IgnoreRules are ignore patterns applied to every test.
	IgnoreRules []string `yaml:"ignore_rules,omitempty"`

	// KeepFactsHistory defaults to true when unset.
	KeepFactsHistory *bool `yaml:"keep_facts_history,omitempty"`

	LogResources bool `yaml:"log_resources,omitempty"`
	LogFacts     bool `yaml:"log_facts,omitempty"`

	// Properties override the session defaults (stream mode, pseudo clock).
	Properties map[string]string `yaml:"properties,omitempty"`

	// RequireRuleAssertion decides what happens to a test without any
	// expectation: true runs it and asserts that no eligible rule fired,
	// false runs its body without a session.
	RequireRuleAssertion bool `yaml:"require_rule_assertion,omitempty"`

	// Journal is a SQLite path that records every session; empty is off.
	Journal string `yaml:"journal,omitempty"`

	// BaseDir resolves relative resources, source files and the journal.
	BaseDir string `yaml:"base_dir,omitempty"`
}

// FactsHistory reports whether the fact history is kept.
func (c SuiteConfig) FactsHistory() bool {
	return c.KeepFactsHistory == nil || *c.KeepFactsHistory
}

// SessionProperties returns the session properties with defaults applied.
func (c SuiteConfig) SessionProperties() map[string]string {
	props := map[string]string{
		engine.PropEventProcessingMode: engine.ModeStream,
		engine.PropClockType:           engine.ClockPseudo,
	}
	for k, v := range c.Properties {
		props[k] = v
	}
	return props
}

// Validate checks the configuration without touching the filesystem.
func (c SuiteConfig) Validate() error {
	if len(c.Resources) == 0 {
		return fmt.Errorf("resources list is required and must be non-empty")
	}
	for i, r := range c.Resources {
		if r == "" {
			return fmt.Errorf("resources[%d]: pattern is empty", i)
		}
	}
	if _, err := NewIgnoreSet(c.IgnoreRules...); err != nil {
		return fmt.Errorf("ignore_rules: %w", err)
	}
	return nil
}

func (c SuiteConfig) path(p string) string {
	if p == "" || filepath.IsAbs(p) || c.BaseDir == "" {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}

// ResolvedResources returns Resources joined to BaseDir.
func (c SuiteConfig) ResolvedResources() []string {
	out := make([]string, len(c.Resources))
	for i, r := range c.Resources {
		out[i] = c.path(r)
	}
	return out
}

// TestConfig configures one test.
//
// Expected and ExpectedCounts are the two forms of expectation; a test
// uses one of them. Sources are files with one entry per line, resolved as
// doublestar patterns under the suite's base dir.
type TestConfig struct {
	Expected       []string  `yaml:"expected,omitempty"`
	ExpectedCounts CountList `yaml:"expected_counts,omitempty"`
	Ignore         []string  `yaml:"ignore,omitempty"`

	// CheckScheduled fires everything scheduled before the final check.
	CheckScheduled bool `yaml:"check_scheduled,omitempty"`

	ExpectedSource       string `yaml:"expected_source,omitempty"`
	ExpectedCountsSource string `yaml:"expected_counts_source,omitempty"`
	IgnoreSource         string `yaml:"ignore_source,omitempty"`
}

// HasExpectation reports whether the test declares any expected rules,
// inline or through a source file.
func (c TestConfig) HasExpectation() bool {
	return len(c.Expected) > 0 || len(c.ExpectedCounts) > 0 ||
		c.ExpectedSource != "" || c.ExpectedCountsSource != ""
}

// resolvedTest is a TestConfig with its sources read.
type resolvedTest struct {
	expected []Expectation
	ignore   []string
}

func (c TestConfig) resolve(baseDir string) (resolvedTest, error) {
	var rt resolvedTest

	names := append([]string(nil), c.Expected...)
	counts := append(CountList(nil), c.ExpectedCounts...)
	if c.ExpectedSource != "" {
		lines, err := readSource(baseDir, c.ExpectedSource)
		if err != nil {
			return rt, fmt.Errorf("expected_source: %w", err)
		}
		names = append(names, lines...)
	}
	if c.ExpectedCountsSource != "" {
		lines, err := readSource(baseDir, c.ExpectedCountsSource)
		if err != nil {
			return rt, fmt.Errorf("expected_counts_source: %w", err)
		}
		for _, line := range lines {
			e, err := parseCountLine(line)
			if err != nil {
				return rt, fmt.Errorf("expected_counts_source: %w", err)
			}
			counts = append(counts, e)
		}
	}
	if len(names) > 0 && len(counts) > 0 {
		return rt, fmt.Errorf("expected and expected_counts are mutually exclusive")
	}
	rt.expected = append(AnyCount(names...), counts...)

	rt.ignore = append(rt.ignore, c.Ignore...)
	if c.IgnoreSource != "" {
		lines, err := readSource(baseDir, c.IgnoreSource)
		if err != nil {
			return rt, fmt.Errorf("ignore_source: %w", err)
		}
		rt.ignore = append(rt.ignore, lines...)
	}
	if _, err := NewIgnoreSet(rt.ignore...); err != nil {
		return rt, fmt.Errorf("ignore: %w", err)
	}
	return rt, nil
}

// readSource reads the non-blank, non-comment lines of every file matching
// pattern, files in lexical order.
func readSource(baseDir, pattern string) ([]string, error) {
	full := pattern
	if baseDir != "" && !filepath.IsAbs(pattern) {
		full = filepath.Join(baseDir, pattern)
	}
	files, err := doublestar.FilepathGlob(full, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", pattern, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("pattern %q matched no files", pattern)
	}
	sort.Strings(files)

	var lines []string
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read source file: %w", err)
		}
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			lines = append(lines, line)
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("scan %s: %w", f, err)
		}
	}
	return lines, nil
}

// parseCountLine parses "<count> <rule name>".
func parseCountLine(line string) (Expectation, error) {
	n, rule, ok := strings.Cut(line, " ")
	if !ok {
		return Expectation{}, fmt.Errorf("line %q: want \"<count> <rule name>\"", line)
	}
	count, err := strconv.Atoi(n)
	if err != nil || count < 1 {
		return Expectation{}, fmt.Errorf("line %q: count must be a positive integer", line)
	}
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return Expectation{}, fmt.Errorf("line %q: rule name is empty", line)
	}
	return Times(rule, count), nil
}

// CountList is an ordered rule name to exact count mapping. In YAML it is a
// mapping whose key order is kept.
type CountList []Expectation

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *CountList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping of rule name to count", value.Line)
	}
	out := CountList{}
	seen := make(map[string]bool)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, val := value.Content[i], value.Content[i+1]
		if seen[key.Value] {
			return fmt.Errorf("line %d: duplicate rule %q", key.Line, key.Value)
		}
		seen[key.Value] = true

		var n int
		if err := val.Decode(&n); err != nil {
			return fmt.Errorf("line %d: count of %q: %w", val.Line, key.Value, err)
		}
		if n < 1 {
			return fmt.Errorf("line %d: count of %q must be positive", val.Line, key.Value)
		}
		out = append(out, Times(key.Value, n))
	}
	*l = out
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (l CountList) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range l {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: e.Rule},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(e.Count)},
		)
	}
	return node, nil
}

// decodeStrict decodes YAML rejecting unknown fields.
func decodeStrict(data []byte, v any) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	return decoder.Decode(v)
}

// LoadSuiteConfig reads a suite configuration file. A relative or empty
// base_dir is resolved against the file's directory.
func LoadSuiteConfig(path string) (SuiteConfig, error) {
	var cfg SuiteConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read suite config: %w", err)
	}
	if err := decodeStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse YAML: %w", err)
	}
	cfg.BaseDir = resolveBaseDir(filepath.Dir(path), cfg.BaseDir)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid suite config: %w", err)
	}
	return cfg, nil
}

// LoadTestConfig reads a test configuration file.
func LoadTestConfig(path string) (TestConfig, error) {
	var cfg TestConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read test config: %w", err)
	}
	if err := decodeStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

func resolveBaseDir(fileDir, baseDir string) string {
	if baseDir == "" {
		return fileDir
	}
	if filepath.IsAbs(baseDir) {
		return baseDir
	}
	return filepath.Join(fileDir, baseDir)
}
