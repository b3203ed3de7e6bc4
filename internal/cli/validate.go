package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ruleassert/internal/compiler"
	"github.com/roach88/ruleassert/internal/engine"
	"github.com/roach88/ruleassert/internal/loader"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	BaseDir string
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                    `json:"valid"`
	Files    []string                `json:"files"`
	Rules    []string                `json:"rules"`
	Warnings []compiler.CycleWarning `json:"warnings,omitempty"`
}

// ValidationFailure describes a rule source that failed to load.
type ValidationFailure struct {
	Resource string `json:"resource,omitempty"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <pattern>...",
		Short: "Compile rule sources and check for activation loops",
		Long: `Resolve rule source patterns, compile every file and build a rule base.

Patterns use doublestar syntax ("rules/**/*.cue"). Rules whose
consequences can re-activate each other are reported as warnings; they
do not fail validation.

Exit codes:
  0 - All rule sources valid
  1 - A rule source failed to compile or the rule base was rejected
  2 - Command error (pattern matched nothing, bad pattern)

Examples:
  ruleassert validate "testdata/rules/*.cue"
  ruleassert validate --base-dir ./suite "rules/**/*.cue"`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.BaseDir, "base-dir", "", "directory relative patterns are resolved against")

	return cmd
}

func runValidate(opts *ValidateOptions, patterns []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loadOpts := []loader.Option{loader.WithBaseDir(opts.BaseDir)}
	if opts.Verbose {
		logger := slog.New(slog.NewTextHandler(formatter.GetErrWriter(), nil))
		loadOpts = append(loadOpts, loader.WithLogResources(logger))
	}

	loaded, err := loader.Load(patterns, loadOpts...)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	formatter.VerboseLog("Compiled %d rule(s) from %d file(s)", len(loaded.Rules), len(loaded.Files))

	rb, err := engine.NewRuleBase(loaded.Rules)
	if err != nil {
		return outputLoadError(formatter, &loader.LoadError{
			Code:    loader.ErrCodeBuildFailed,
			Message: err.Error(),
			Err:     err,
		})
	}

	result := ValidationResult{
		Valid:    true,
		Files:    loaded.Files,
		Rules:    rb.RuleNames(),
		Warnings: compiler.AnalyzeCycles(loaded.Rules),
	}
	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn.Message)
	}
	fmt.Fprintf(w, "✓ %d rule(s) in %d file(s) valid\n", len(result.Rules), len(result.Files))
	return nil
}

// outputLoadError reports a load failure. Compile and build errors are
// validation failures; resolution errors are command errors.
func outputLoadError(formatter *OutputFormatter, err error) error {
	var le *loader.LoadError
	if !errors.As(err, &le) {
		_ = formatter.Error(loader.ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "validation failed", err)
	}

	code := ExitFailure
	switch le.Code {
	case loader.ErrCodeBadPattern, loader.ErrCodeNoFiles, loader.ErrCodeNoResources:
		code = ExitCommandError
	}

	failure := ValidationFailure{Resource: le.Resource}
	if le.Pos.IsValid() {
		failure.Line = le.Pos.Line()
		failure.Column = le.Pos.Column()
	}

	if formatter.JSON() {
		_ = formatter.Error(le.Code, le.Message, failure)
		return NewExitError(code, le.Error())
	}

	w := formatter.Writer
	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	var where []string
	if failure.Resource != "" {
		where = append(where, failure.Resource)
	}
	if failure.Line > 0 {
		where = append(where, fmt.Sprintf("line %d", failure.Line))
	}
	if len(where) > 0 {
		fmt.Fprintln(w, strings.Join(where, ", "))
	}
	fmt.Fprintf(w, "  %s: %s\n", le.Code, le.Message)
	return NewExitError(code, le.Error())
}
