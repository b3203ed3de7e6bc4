package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/roach88/ruleassert/internal/ir"
)

// Scenario is a declarative test: a suite, a test configuration, named
// facts and the steps that drive them.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	Suite SuiteConfig `yaml:"suite"`
	Test  TestConfig  `yaml:"test,omitempty"`

	// Facts are created fresh for every run; steps refer to them by name.
	Facts map[string]FactSpec `yaml:"facts,omitempty"`

	Steps []Step `yaml:"steps"`

	// Dir is the directory of the scenario file, empty when built in code.
	Dir string `yaml:"-"`
}

// FactSpec declares an *ir.Fact.
type FactSpec struct {
	Type   string         `yaml:"type"`
	Fields map[string]any `yaml:"fields,omitempty"`
}

// Step is one scenario action. Exactly one field is set.
type Step struct {
	Insert        []string `yaml:"insert,omitempty"`
	InsertAndFire []string `yaml:"insert_and_fire,omitempty"`
	Fire          bool     `yaml:"fire,omitempty"`

	// Advance is a Go duration, ticked in whole seconds.
	Advance      string     `yaml:"advance,omitempty"`
	AdvanceTicks *TickSpec  `yaml:"advance_ticks,omitempty"`
	AwaitFor     []string   `yaml:"await_for,omitempty"`
	AwaitAny     bool       `yaml:"await_any,omitempty"`
	AwaitTicks   *AwaitSpec `yaml:"await_ticks,omitempty"`

	AssertAllActivations      *[]string  `yaml:"assert_all_activations,omitempty"`
	AssertAllActivationCounts *CountList `yaml:"assert_all_activation_counts,omitempty"`
	AssertActivated           *[]string  `yaml:"assert_activated,omitempty"`
	AssertActivatedCounts     *CountList `yaml:"assert_activated_counts,omitempty"`
	AssertExist               []string   `yaml:"assert_exist,omitempty"`
	AssertRetracted           []string   `yaml:"assert_retracted,omitempty"`
	AssertAllRetracted        bool       `yaml:"assert_all_retracted,omitempty"`
	AssertFactsCount          *int64     `yaml:"assert_facts_count,omitempty"`
	AssertNoScheduled         bool       `yaml:"assert_no_scheduled,omitempty"`

	Ignore     []string    `yaml:"ignore,omitempty"`
	SetGlobal  *GlobalSpec `yaml:"set_global,omitempty"`
	PrintFacts bool        `yaml:"print_facts,omitempty"`

	ExpectFailure *FailureSpec `yaml:"expect_failure,omitempty"`
}

// TickSpec is an explicit tick count in a unit such as 1s or 1m.
type TickSpec struct {
	Unit  string `yaml:"unit"`
	Ticks int64  `yaml:"ticks"`
}

// AwaitSpec is a bounded wait for rules, or for any rule when Rules is empty.
type AwaitSpec struct {
	Unit  string   `yaml:"unit"`
	Max   int64    `yaml:"max"`
	Rules []string `yaml:"rules,omitempty"`
}

// GlobalSpec sets a session global.
type GlobalSpec struct {
	Name  string `yaml:"name"`
	Value any    `yaml:"value"`
}

// FailureSpec wraps a step that must fail, optionally with a message
// containing Contains.
type FailureSpec struct {
	Step     `yaml:",inline"`
	Contains string `yaml:"contains,omitempty"`
}

// actions names the actions set on the step.
func (s *Step) actions() []string {
	var set []string
	add := func(name string, ok bool) {
		if ok {
			set = append(set, name)
		}
	}
	add("insert", s.Insert != nil)
	add("insert_and_fire", s.InsertAndFire != nil)
	add("fire", s.Fire)
	add("advance", s.Advance != "")
	add("advance_ticks", s.AdvanceTicks != nil)
	add("await_for", s.AwaitFor != nil)
	add("await_any", s.AwaitAny)
	add("await_ticks", s.AwaitTicks != nil)
	add("assert_all_activations", s.AssertAllActivations != nil)
	add("assert_all_activation_counts", s.AssertAllActivationCounts != nil)
	add("assert_activated", s.AssertActivated != nil)
	add("assert_activated_counts", s.AssertActivatedCounts != nil)
	add("assert_exist", s.AssertExist != nil)
	add("assert_retracted", s.AssertRetracted != nil)
	add("assert_all_retracted", s.AssertAllRetracted)
	add("assert_facts_count", s.AssertFactsCount != nil)
	add("assert_no_scheduled", s.AssertNoScheduled)
	add("ignore", s.Ignore != nil)
	add("set_global", s.SetGlobal != nil)
	add("print_facts", s.PrintFacts)
	add("expect_failure", s.ExpectFailure != nil)
	return set
}

// factRefs returns every fact name the step refers to.
func (s *Step) factRefs() []string {
	refs := append(append(append(append([]string(nil),
		s.Insert...), s.InsertAndFire...), s.AssertExist...), s.AssertRetracted...)
	if s.ExpectFailure != nil {
		refs = append(refs, s.ExpectFailure.Step.factRefs()...)
	}
	return refs
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// Relative suite paths resolve against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	if err := decodeStrict(data, &scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	scenario.Dir = filepath.Dir(path)
	scenario.Suite.BaseDir = resolveBaseDir(scenario.Dir, scenario.Suite.BaseDir)

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if err := s.Suite.Validate(); err != nil {
		return fmt.Errorf("suite: %w", err)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for name, f := range s.Facts {
		if f.Type == "" {
			return fmt.Errorf("facts[%s]: type is required", name)
		}
		if _, err := ir.FromGo(f.Fields); err != nil {
			return fmt.Errorf("facts[%s]: %w", name, err)
		}
	}

	for i := range s.Steps {
		if err := validateStep(s, &s.Steps[i]); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(sc *Scenario, st *Step) error {
	actions := st.actions()
	if len(actions) != 1 {
		if len(actions) == 0 {
			return fmt.Errorf("no action")
		}
		return fmt.Errorf("exactly one action allowed, got %s", strings.Join(actions, ", "))
	}
	for _, ref := range st.factRefs() {
		if _, ok := sc.Facts[ref]; !ok {
			return fmt.Errorf("unknown fact %q", ref)
		}
	}

	switch {
	case st.Advance != "":
		if _, err := time.ParseDuration(st.Advance); err != nil {
			return fmt.Errorf("advance: %w", err)
		}
	case st.AdvanceTicks != nil:
		if _, err := parseUnit(st.AdvanceTicks.Unit); err != nil {
			return fmt.Errorf("advance_ticks: %w", err)
		}
	case st.AwaitTicks != nil:
		if _, err := parseUnit(st.AwaitTicks.Unit); err != nil {
			return fmt.Errorf("await_ticks: %w", err)
		}
	case st.Ignore != nil:
		if _, err := NewIgnoreSet(st.Ignore...); err != nil {
			return err
		}
	case st.SetGlobal != nil:
		if st.SetGlobal.Name == "" {
			return fmt.Errorf("set_global: name is required")
		}
	case st.ExpectFailure != nil:
		return validateStep(sc, &st.ExpectFailure.Step)
	}
	return nil
}

func parseUnit(unit string) (time.Duration, error) {
	d, err := time.ParseDuration(unit)
	if err != nil {
		return 0, fmt.Errorf("unit: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("unit %q must be positive", unit)
	}
	return d, nil
}

// newFacts creates the scenario's facts.
func (s *Scenario) newFacts() (map[string]*ir.Fact, error) {
	facts := make(map[string]*ir.Fact, len(s.Facts))
	for name, spec := range s.Facts {
		fields := make(ir.IRObject, len(spec.Fields))
		for k, v := range spec.Fields {
			irv, err := ir.FromGo(v)
			if err != nil {
				return nil, fmt.Errorf("facts[%s].%s: %w", name, k, err)
			}
			fields[k] = irv
		}
		facts[name] = &ir.Fact{Type: spec.Type, Fields: fields}
	}
	return facts, nil
}

// runSteps executes steps in order and stops at the first failure.
func runSteps(h *Harness, facts map[string]*ir.Fact, steps []Step) error {
	for i := range steps {
		if err := runStep(h, facts, &steps[i]); err != nil {
			return fmt.Errorf("step %d (%s): %w", i, strings.Join(steps[i].actions(), ""), err)
		}
	}
	return nil
}

func runStep(h *Harness, facts map[string]*ir.Fact, st *Step) error {
	pick := func(names []string) []any {
		out := make([]any, len(names))
		for i, n := range names {
			out[i] = facts[n]
		}
		return out
	}

	switch {
	case st.Insert != nil:
		_, err := h.Insert(pick(st.Insert)...)
		return err
	case st.InsertAndFire != nil:
		_, err := h.InsertAndFire(pick(st.InsertAndFire)...)
		return err
	case st.Fire:
		_, err := h.FireAllRules()
		return err
	case st.Advance != "":
		d, err := time.ParseDuration(st.Advance)
		if err != nil {
			return err
		}
		return h.AdvanceTime(int64(d), time.Nanosecond)
	case st.AdvanceTicks != nil:
		unit, err := parseUnit(st.AdvanceTicks.Unit)
		if err != nil {
			return err
		}
		return h.AdvanceTicks(unit, st.AdvanceTicks.Ticks)
	case st.AwaitFor != nil:
		return h.AwaitFor(st.AwaitFor...)
	case st.AwaitAny:
		return h.AwaitForAny()
	case st.AwaitTicks != nil:
		unit, err := parseUnit(st.AwaitTicks.Unit)
		if err != nil {
			return err
		}
		return h.AwaitForTicks(unit, st.AwaitTicks.Max, st.AwaitTicks.Rules...)
	case st.AssertAllActivations != nil:
		return h.AssertAllActivations(*st.AssertAllActivations...)
	case st.AssertAllActivationCounts != nil:
		return h.AssertAllActivationCounts(*st.AssertAllActivationCounts...)
	case st.AssertActivated != nil:
		return h.AssertActivated(*st.AssertActivated...)
	case st.AssertActivatedCounts != nil:
		return h.AssertActivatedCounts(*st.AssertActivatedCounts...)
	case st.AssertExist != nil:
		return h.AssertExist(pick(st.AssertExist)...)
	case st.AssertRetracted != nil:
		return h.AssertRetracted(pick(st.AssertRetracted)...)
	case st.AssertAllRetracted:
		return h.AssertAllRetracted()
	case st.AssertFactsCount != nil:
		return h.AssertFactsCount(*st.AssertFactsCount)
	case st.AssertNoScheduled:
		return h.AssertNoScheduledActivations()
	case st.Ignore != nil:
		return h.IgnoreActivations(st.Ignore...)
	case st.SetGlobal != nil:
		return h.SetGlobal(st.SetGlobal.Name, st.SetGlobal.Value)
	case st.PrintFacts:
		h.PrintFacts()
		return nil
	case st.ExpectFailure != nil:
		err := runStep(h, facts, &st.ExpectFailure.Step)
		if err == nil {
			return fmt.Errorf("expected %s to fail", strings.Join(st.ExpectFailure.Step.actions(), ""))
		}
		if c := st.ExpectFailure.Contains; c != "" && !strings.Contains(err.Error(), c) {
			return fmt.Errorf("expected failure containing %q, got: %w", c, err)
		}
		return nil
	}
	return fmt.Errorf("no action")
}
