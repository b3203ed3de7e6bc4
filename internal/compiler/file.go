package compiler

import (
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/ruleassert/internal/ir"
)

// CompileFile reads and compiles one CUE rule source.
func CompileFile(path string) ([]ir.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule source: %w", err)
	}
	return CompileSource(path, data)
}

// CompileSource compiles the `rule` struct of a CUE document.
// Rules are returned in declaration order, each tagged with filename as
// its Source. A document without a `rule` struct is an error.
func CompileSource(filename string, data []byte) ([]ir.Rule, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError("cue", err)
	}

	rulesVal := v.LookupPath(cue.ParsePath("rule"))
	if !rulesVal.Exists() {
		return nil, &CompileError{
			Field:   "rule",
			Message: fmt.Sprintf("%s declares no rules", filename),
		}
	}

	iter, err := rulesVal.Fields()
	if err != nil {
		return nil, formatCUEError("rule", err)
	}

	var rules []ir.Rule
	for iter.Next() {
		rule, err := CompileRule(iter.Value())
		if err != nil {
			return nil, err
		}
		rule.Source = filename
		rules = append(rules, *rule)
	}

	if errs := ir.ValidateRules(rules); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, &CompileError{Field: "rule", Message: strings.Join(msgs, "; ")}
	}

	return rules, nil
}
