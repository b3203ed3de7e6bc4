package engine

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/roach88/ruleassert/internal/ir"
)

// Session property keys and values accepted by NewSession.
const (
	PropEventProcessingMode = "eventProcessingMode"
	PropClockType           = "clockType"

	ModeStream = "stream"
	ModeCloud  = "cloud"

	ClockPseudo   = "pseudo"
	ClockRealtime = "realtime"
)

// RuleBase is an immutable set of validated rules.
//
// INVARIANTS:
//   - rules order NEVER changes after construction (declaration order is
//     the second conflict resolution criterion)
//   - rule names are unique
type RuleBase struct {
	rules      []ir.Rule
	hash       string
	maxFirings int
	now        func() time.Time
	ids        IDGenerator
	logger     *slog.Logger
	refraction *Refraction
}

// Option configures a RuleBase and the sessions it creates.
type Option func(*RuleBase)

// WithMaxFirings sets the max firings quota per FireAllRules call.
// Default: DefaultMaxFirings.
func WithMaxFirings(n int) Option {
	return func(rb *RuleBase) {
		rb.maxFirings = n
	}
}

// WithNow sets the wall clock used to time activations.
// Tests inject a fake to get deterministic AfterMatchFired durations.
func WithNow(now func() time.Time) Option {
	return func(rb *RuleBase) {
		rb.now = now
	}
}

// WithIDGenerator sets the session id generator. Default: UUIDv7Generator.
func WithIDGenerator(ids IDGenerator) Option {
	return func(rb *RuleBase) {
		rb.ids = ids
	}
}

// WithLogger sets the logger for engine debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(rb *RuleBase) {
		rb.logger = logger
	}
}

// NewRuleBase validates rules and builds a rule base.
// The rules slice is copied so later mutation by the caller cannot
// change declaration order.
func NewRuleBase(rules []ir.Rule, opts ...Option) (*RuleBase, error) {
	if errs := ir.ValidateRules(rules); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid rules: %s", strings.Join(msgs, "; "))
	}

	hash, err := ir.RuleSetHash(rules)
	if err != nil {
		return nil, fmt.Errorf("hash rules: %w", err)
	}

	rulesCopy := make([]ir.Rule, len(rules))
	copy(rulesCopy, rules)

	rb := &RuleBase{
		rules:      rulesCopy,
		hash:       hash,
		maxFirings: DefaultMaxFirings,
		now:        time.Now,
		ids:        UUIDv7Generator{},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		refraction: NewRefraction(),
	}
	for _, opt := range opts {
		opt(rb)
	}
	return rb, nil
}

// Rules returns a copy of the rules in declaration order.
func (rb *RuleBase) Rules() []ir.Rule {
	out := make([]ir.Rule, len(rb.rules))
	copy(out, rb.rules)
	return out
}

// RuleNames returns the rule names in declaration order.
func (rb *RuleBase) RuleNames() []string {
	names := make([]string, len(rb.rules))
	for i, r := range rb.rules {
		names[i] = r.Name
	}
	return names
}

// Hash identifies the rule set content.
func (rb *RuleBase) Hash() string {
	return rb.hash
}

// NewSession creates a session with the given properties.
//
// Supported properties:
//   - eventProcessingMode: "stream" (default) or "cloud"
//   - clockType: "pseudo" (default); "realtime" fails with ErrUnsupportedClock
//
// Unknown keys are rejected.
func (rb *RuleBase) NewSession(props map[string]string) (*Session, error) {
	mode := ModeStream
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := props[k]
		switch k {
		case PropEventProcessingMode:
			if v != ModeStream && v != ModeCloud {
				return nil, invalidProperty(k, v)
			}
			mode = v
		case PropClockType:
			switch v {
			case ClockPseudo:
			case ClockRealtime:
				return nil, &RuntimeError{
					Code:    ErrCodeInvalidProperty,
					Message: fmt.Sprintf("%s=%s", k, v),
					Cause:   ErrUnsupportedClock,
				}
			default:
				return nil, invalidProperty(k, v)
			}
		default:
			return nil, &RuntimeError{
				Code:    ErrCodeInvalidProperty,
				Message: fmt.Sprintf("unknown session property %q", k),
			}
		}
	}

	s := newSession(rb, rb.ids.Generate(), mode)
	rb.logger.Debug("session created", "session", s.id, "mode", mode, "rules", len(rb.rules))
	return s, nil
}

func invalidProperty(key, value string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidProperty,
		Message: fmt.Sprintf("invalid value %q for session property %q", value, key),
	}
}
