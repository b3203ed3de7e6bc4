package ir

import (
	"fmt"
)

// ValidationError represents a validation error with field path and message.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a rule for structural problems the engine cannot run:
// unbound references, bindings on negated patterns, unknown operators.
// Returns all errors (not fail-fast) for better developer experience.
func (r *Rule) Validate() []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if r.Name == "" {
		add("name", "rule name is required")
	}
	if len(r.When) == 0 {
		add("when", "at least one pattern is required")
	}
	if r.Delay < 0 {
		add("timer", "timer must not be negative, got %s", r.Delay)
	}

	bound := make(map[string]bool)
	for i, p := range r.When {
		path := fmt.Sprintf("when[%d]", i)
		if p.Type == "" {
			add(path+".type", "pattern type is required")
		}
		for j, c := range p.Where {
			cpath := fmt.Sprintf("%s.where[%d]", path, j)
			if c.Field == "" {
				add(cpath+".field", "constraint field is required")
			}
			if !ValidOps[c.Op] {
				add(cpath+".op", "invalid operator %q, must be one of: eq, ne, lt, le, gt, ge", c.Op)
			}
			if c.Value.Ref != nil && !bound[c.Value.Ref.Bind] {
				add(cpath+".value", "reference %s uses a binding not declared by an earlier pattern", c.Value.Ref)
			}
			if c.Value.Ref == nil && c.Value.Literal == nil {
				add(cpath+".value", "constraint value is required")
			}
		}
		if p.Bind == "" {
			continue
		}
		if p.Not {
			add(path+".bind", "negated pattern cannot bind %q", p.Bind)
			continue
		}
		if bound[p.Bind] {
			add(path+".bind", "duplicate binding %q", p.Bind)
		}
		bound[p.Bind] = true
	}

	for i, a := range r.Then {
		path := fmt.Sprintf("then[%d]", i)
		checkRefs := func(fields map[string]Operand) {
			for name, op := range fields {
				if op.Ref != nil && !bound[op.Ref.Bind] {
					add(path+".fields."+name, "reference %s uses an unknown binding", op.Ref)
				}
			}
		}
		switch a.Kind {
		case ActionInsert:
			if a.Type == "" {
				add(path+".type", "insert requires a fact type")
			}
			checkRefs(a.Fields)
		case ActionRetract:
			if !bound[a.Target] {
				add(path+".target", "retract target %q is not bound", a.Target)
			}
		case ActionModify:
			if !bound[a.Target] {
				add(path+".target", "modify target %q is not bound", a.Target)
			}
			if len(a.Fields) == 0 {
				add(path+".set", "modify requires at least one field")
			}
			checkRefs(a.Fields)
		case ActionIncrement:
			if !bound[a.Target] {
				add(path+".target", "increment target %q is not bound", a.Target)
			}
			if a.Field == "" {
				add(path+".field", "increment requires a field")
			}
		default:
			add(path+".kind", "unknown action kind %q", a.Kind)
		}
	}

	return errs
}

// ValidateRules validates every rule and checks rule names are unique.
// Field paths are prefixed with the rule name.
func ValidateRules(rules []Rule) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]string)
	for i := range rules {
		r := &rules[i]
		for _, e := range r.Validate() {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("rule[%q].%s", r.Name, e.Field),
				Message: e.Message,
			})
		}
		if prev, ok := seen[r.Name]; ok && r.Name != "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("rule[%q]", r.Name),
				Message: fmt.Sprintf("duplicate rule name (also declared in %s)", prev),
			})
		}
		seen[r.Name] = sourceOrUnknown(r.Source)
	}
	return errs
}

func sourceOrUnknown(s string) string {
	if s == "" {
		return "<inline>"
	}
	return s
}
