package loader

import (
	"io"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/roach88/ruleassert/internal/compiler"
	"github.com/roach88/ruleassert/internal/engine"
	"github.com/roach88/ruleassert/internal/ir"
)

// Result is the outcome of resolving and compiling resources.
type Result struct {
	Files []string  // resolved rule sources, in load order
	Rules []ir.Rule // compiled rules, in load order
}

type options struct {
	logger       *slog.Logger
	logResources bool
	baseDir      string
	engineOpts   []engine.Option
}

// Option configures Load and Build.
type Option func(*options)

// WithLogResources logs every resolved resource on logger.
func WithLogResources(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
		o.logResources = true
	}
}

// WithBaseDir resolves relative patterns against dir.
func WithBaseDir(dir string) Option {
	return func(o *options) {
		o.baseDir = dir
	}
}

// WithEngineOptions passes options to engine.NewRuleBase in Build.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, opts...)
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Resolve expands resource patterns to files.
//
// Each pattern must match at least one file. Matches of one pattern are
// sorted; files matched by an earlier pattern are not repeated.
func Resolve(resources []string, opts ...Option) ([]string, error) {
	o := buildOptions(opts)
	return resolve(resources, o)
}

func resolve(resources []string, o options) ([]string, error) {
	if len(resources) == 0 {
		return nil, &LoadError{Code: ErrCodeNoResources, Message: "no resources configured"}
	}

	seen := make(map[string]bool)
	var files []string
	for _, pattern := range resources {
		full := pattern
		if o.baseDir != "" && !filepath.IsAbs(pattern) {
			full = filepath.Join(o.baseDir, pattern)
		}
		if !doublestar.ValidatePathPattern(full) {
			return nil, &LoadError{
				Code:     ErrCodeBadPattern,
				Resource: pattern,
				Message:  "invalid resource pattern",
				Err:      doublestar.ErrBadPattern,
			}
		}

		matches, err := doublestar.FilepathGlob(full, doublestar.WithFilesOnly())
		if err != nil {
			return nil, &LoadError{Code: ErrCodeBadPattern, Resource: pattern, Message: err.Error(), Err: err}
		}
		if len(matches) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Resource: pattern, Message: "pattern matched no files"}
		}
		sort.Strings(matches)

		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			files = append(files, m)
			if o.logResources {
				o.logger.Info("loading rule resource", "pattern", pattern, "file", m)
			}
		}
	}
	return files, nil
}

// Load resolves resources and compiles every rule source in order.
func Load(resources []string, opts ...Option) (*Result, error) {
	o := buildOptions(opts)

	files, err := resolve(resources, o)
	if err != nil {
		return nil, err
	}

	result := &Result{Files: files}
	for _, f := range files {
		rules, err := compiler.CompileFile(f)
		if err != nil {
			return nil, convertCompileError(err, f)
		}
		result.Rules = append(result.Rules, rules...)
	}
	return result, nil
}

// Build loads resources into a rule base.
func Build(resources []string, opts ...Option) (*engine.RuleBase, error) {
	o := buildOptions(opts)

	result, err := Load(resources, opts...)
	if err != nil {
		return nil, err
	}
	rb, err := engine.NewRuleBase(result.Rules, o.engineOpts...)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: err.Error(), Err: err}
	}
	o.logger.Debug("rule base built", "files", len(result.Files), "rules", len(result.Rules))
	return rb, nil
}
