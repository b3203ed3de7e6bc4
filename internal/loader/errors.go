package loader

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"

	"github.com/roach88/ruleassert/internal/compiler"
)

// Error codes for rule base loading.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeBadPattern  = "E002" // Resource pattern does not parse
	ErrCodeNoFiles     = "E003" // Resource pattern matched nothing
	ErrCodeCompile     = "E004" // Rule source failed to compile
	ErrCodeNoResources = "E005" // No resources configured
	ErrCodeBuildFailed = "E006" // Rule base rejected the compiled rules
)

// LoadError represents an error that occurred while loading a rule base.
type LoadError struct {
	Code     string
	Resource string    // pattern or file involved, if any
	Message  string
	Pos      token.Pos // CUE position if available
	Err      error
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Resource, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsLoadError reports whether err carries a *LoadError with the given code.
// An empty code matches any LoadError.
func IsLoadError(err error, code string) bool {
	var le *LoadError
	if !errors.As(err, &le) {
		return false
	}
	return code == "" || le.Code == code
}

// convertCompileError keeps the CUE position of compiler errors.
func convertCompileError(err error, file string) *LoadError {
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		return &LoadError{
			Code:     ErrCodeCompile,
			Resource: file,
			Message:  fmt.Sprintf("%s: %s", ce.Field, ce.Message),
			Pos:      ce.Pos,
			Err:      err,
		}
	}
	return &LoadError{
		Code:     ErrCodeCompile,
		Resource: file,
		Message:  err.Error(),
		Err:      err,
	}
}
