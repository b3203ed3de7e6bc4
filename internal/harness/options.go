package harness

import (
	"io"
	"log/slog"

	"github.com/roach88/ruleassert/internal/engine"
	"github.com/roach88/ruleassert/internal/loader"
	"github.com/roach88/ruleassert/internal/store"
)

type options struct {
	logger      *slog.Logger
	keepHistory bool
	logFacts    bool
	ignore      []string
	listeners   []any

	// Suite only.
	cache      *loader.Cache
	engineOpts []engine.Option
	journal    *store.Store
}

func defaultOptions() options {
	return options{
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		keepHistory: true,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a Harness or a Suite.
type Option func(*options)

// WithLogger sets the logger for session events and reports.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithFactsHistory turns the fact history on or off. It is on by default.
func WithFactsHistory(enabled bool) Option {
	return func(o *options) {
		o.keepHistory = enabled
	}
}

// WithLogFacts logs full fact renderings instead of type names.
func WithLogFacts(enabled bool) Option {
	return func(o *options) {
		o.logFacts = enabled
	}
}

// WithIgnore adds ignore patterns.
func WithIgnore(patterns ...string) Option {
	return func(o *options) {
		o.ignore = append(o.ignore, patterns...)
	}
}

// WithListener subscribes l to the session after the harness's own
// listeners.
func WithListener(l any) Option {
	return func(o *options) {
		o.listeners = append(o.listeners, l)
	}
}

// WithCache makes a Suite acquire rule bases from c instead of
// loader.DefaultCache.
func WithCache(c *loader.Cache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// WithEngineOptions configures rule bases a Suite builds. They only take
// effect when the Suite owns its cache, that is without WithCache.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, opts...)
	}
}

// WithJournal records every Suite session into st. The caller owns st.
func WithJournal(st *store.Store) Option {
	return func(o *options) {
		o.journal = st
	}
}
