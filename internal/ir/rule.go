package ir

import (
	"fmt"
	"strings"
	"time"
)

// Rule is a compiled rule: ordered patterns over working memory and the
// actions its consequence performs.
type Rule struct {
	Name     string        `json:"name"`
	Salience int           `json:"salience,omitempty"`
	NoLoop   bool          `json:"no_loop,omitempty"`
	Delay    time.Duration `json:"delay,omitempty"` // timer: fire once matched for this long
	When     []Pattern     `json:"when"`
	Then     []Action      `json:"then"`
	Source   string        `json:"source,omitempty"` // resource the rule was compiled from
}

// Pattern matches one fact of Type, or asserts none exists when Not is set.
// Bind names the matched fact for later patterns and actions.
type Pattern struct {
	Bind  string       `json:"bind,omitempty"`
	Type  string       `json:"type"`
	Not   bool         `json:"not,omitempty"`
	Where []Constraint `json:"where,omitempty"`
}

// Op is a constraint comparison operator.
type Op string

const (
	OpEq Op = "eq"
	OpNe Op = "ne"
	OpLt Op = "lt"
	OpLe Op = "le"
	OpGt Op = "gt"
	OpGe Op = "ge"
)

// ValidOps defines allowed constraint operators.
var ValidOps = map[Op]bool{
	OpEq: true, OpNe: true, OpLt: true, OpLe: true, OpGt: true, OpGe: true,
}

// Constraint compares a field of the pattern's fact against an operand.
type Constraint struct {
	Field string  `json:"field"`
	Op    Op      `json:"op"`
	Value Operand `json:"value"`
}

// Operand is either a literal value or a reference to a bound fact's field.
type Operand struct {
	Literal IRValue   `json:"literal,omitempty"`
	Ref     *FieldRef `json:"ref,omitempty"`
}

// FieldRef references a field of a fact bound earlier in the rule.
type FieldRef struct {
	Bind  string `json:"bind"`
	Field string `json:"field"`
}

func (r FieldRef) String() string {
	return "$" + r.Bind + "." + r.Field
}

// Lit wraps a literal operand.
func Lit(v IRValue) Operand {
	return Operand{Literal: v}
}

// Ref builds a reference operand from "$bind.field".
// Panics on malformed input; use ParseFieldRef for untrusted text.
func Ref(s string) Operand {
	ref, err := ParseFieldRef(s)
	if err != nil {
		panic(err)
	}
	return Operand{Ref: &ref}
}

// ParseOperand turns a source value into an operand. Strings of the form
// "$bind.field" are references; everything else is a literal.
func ParseOperand(v IRValue) (Operand, error) {
	if s, ok := v.(IRString); ok && strings.HasPrefix(string(s), "$") {
		ref, err := ParseFieldRef(string(s))
		if err != nil {
			return Operand{}, err
		}
		return Operand{Ref: &ref}, nil
	}
	return Operand{Literal: v}, nil
}

// ParseFieldRef parses "$bind.field".
func ParseFieldRef(s string) (FieldRef, error) {
	body, ok := strings.CutPrefix(s, "$")
	if !ok {
		return FieldRef{}, fmt.Errorf("reference %q must start with $", s)
	}
	bind, field, ok := strings.Cut(body, ".")
	if !ok || bind == "" || field == "" {
		return FieldRef{}, fmt.Errorf("reference %q must have the form $bind.field", s)
	}
	return FieldRef{Bind: bind, Field: field}, nil
}

// ActionKind names what a consequence step does.
type ActionKind string

const (
	ActionInsert    ActionKind = "insert"
	ActionRetract   ActionKind = "retract"
	ActionModify    ActionKind = "modify"
	ActionIncrement ActionKind = "increment"
)

// Action is one step of a rule consequence.
//
//   - insert: creates a fact of Type with Fields
//   - retract: deletes the fact bound to Target
//   - modify: sets Fields on the fact bound to Target
//   - increment: adds By to the integer Field of the fact bound to Target
type Action struct {
	Kind   ActionKind         `json:"kind"`
	Target string             `json:"target,omitempty"`
	Type   string             `json:"type,omitempty"`
	Fields map[string]Operand `json:"fields,omitempty"`
	Field  string             `json:"field,omitempty"`
	By     int64              `json:"by,omitempty"`
}

// Bindings returns the names bound by the rule's positive patterns, in order.
func (r Rule) Bindings() []string {
	var names []string
	for _, p := range r.When {
		if p.Bind != "" && !p.Not {
			names = append(names, p.Bind)
		}
	}
	return names
}
