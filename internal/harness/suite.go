package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"testing"

	"github.com/roach88/ruleassert/internal/engine"
	"github.com/roach88/ruleassert/internal/ir"
	"github.com/roach88/ruleassert/internal/loader"
	"github.com/roach88/ruleassert/internal/store"
)

// Suite holds the rule base shared by a group of tests.
//
// A Suite acquires its rule base from a loader.Cache, so suites over the
// same resources compile once; Close releases it.
type Suite struct {
	config     SuiteConfig
	opts       options
	rb         *engine.RuleBase
	newSession SessionFactory
	release    func()
	journal    *store.Store
	ownsJnl    bool
	logger     *slog.Logger
}

// NewSuite validates cfg, loads its rule base and opens its journal.
func NewSuite(ctx context.Context, cfg SuiteConfig, opts ...Option) (*Suite, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid suite config: %w", err)
	}
	o := buildOptions(opts)
	resources := cfg.ResolvedResources()

	if cfg.LogResources {
		if _, err := loader.Resolve(resources, loader.WithLogResources(o.logger)); err != nil {
			return nil, err
		}
	}

	cache := o.cache
	if cache == nil {
		if len(o.engineOpts) > 0 {
			cache = loader.NewCache(
				[]loader.Option{loader.WithEngineOptions(o.engineOpts...)},
				loader.WithCacheLogger(o.logger),
			)
		} else {
			cache = loader.DefaultCache()
		}
	}

	rb, release, err := cache.Acquire(ctx, resources)
	if err != nil {
		return nil, fmt.Errorf("load rule base: %w", err)
	}

	s := &Suite{
		config:     cfg,
		opts:       o,
		rb:         rb,
		newSession: NewSessionFactory(rb),
		release:    release,
		journal:    o.journal,
		logger:     o.logger,
	}
	if s.journal == nil && cfg.Journal != "" {
		st, err := store.Open(cfg.path(cfg.Journal))
		if err != nil {
			release()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		s.journal = st
		s.ownsJnl = true
	}
	return s, nil
}

// RuleBase returns the suite's rule base.
func (s *Suite) RuleBase() *engine.RuleBase {
	return s.rb
}

// Config returns the suite configuration.
func (s *Suite) Config() SuiteConfig {
	return s.config
}

// Close releases the rule base and closes a journal the suite opened.
func (s *Suite) Close() error {
	if s.release != nil {
		s.release()
		s.release = nil
	}
	if s.ownsJnl {
		s.ownsJnl = false
		return s.journal.Close()
	}
	return nil
}

// Evaluate runs body against a fresh harness configured by test, then
// checks the test's expectations.
//
// A body error (a recovered panic included) and the final check error are
// both returned, joined with the final check first. The harness is closed
// and the journal checked on every path.
func (s *Suite) Evaluate(ctx context.Context, name string, test TestConfig, body func(*Harness) error) (err error) {
	rt, err := test.resolve(s.config.BaseDir)
	if err != nil {
		return fmt.Errorf("test %s: %w", name, err)
	}

	hopts := []Option{
		WithLogger(s.logger),
		WithFactsHistory(s.config.FactsHistory()),
		WithLogFacts(s.config.LogFacts),
		WithIgnore(s.config.IgnoreRules...),
		WithIgnore(rt.ignore...),
	}
	for _, l := range s.opts.listeners {
		hopts = append(hopts, WithListener(l))
	}

	if !test.HasExpectation() && !s.config.RequireRuleAssertion {
		h, err := New(nil, hopts...)
		if err != nil {
			return err
		}
		defer h.Close()
		s.logger.Debug("running test without session", "test", name)
		return runBody(h, body)
	}

	session, err := s.newSession(s.config.SessionProperties())
	if err != nil {
		return fmt.Errorf("test %s: new session: %w", name, err)
	}

	var journal *Journal
	if s.journal != nil {
		journal, err = NewJournal(ctx, s.journal, store.SessionRecord{
			ID:           session.ID(),
			RuleBaseHash: s.rb.Hash(),
			IRVersion:    ir.IRVersion,
			ToolVersion:  ir.ToolVersion,
			Name:         name,
		})
		if err != nil {
			session.Dispose()
			return fmt.Errorf("test %s: %w", name, err)
		}
		hopts = append(hopts, WithListener(journal))
	}

	h, err := New(session, hopts...)
	if err != nil {
		session.Dispose()
		return err
	}
	defer func() {
		h.Close()
		if journal != nil && journal.Err() != nil {
			err = errors.Join(err, journal.Err())
		}
	}()

	bodyErr := runBody(h, body)

	var postErr error
	if test.CheckScheduled {
		postErr = h.TriggerAllScheduled()
	}
	if postErr == nil {
		postErr = h.AssertAllActivationCounts(rt.expected...)
	}
	return errors.Join(postErr, bodyErr)
}

func runBody(h *Harness, body func(*Harness) error) (err error) {
	if body == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return body(h)
}

// Run evaluates body as the test t and reports any failure on t.
func (s *Suite) Run(t testing.TB, test TestConfig, body func(*Harness) error) {
	t.Helper()
	if err := s.Evaluate(context.Background(), t.Name(), test, body); err != nil {
		t.Error(err)
	}
}
