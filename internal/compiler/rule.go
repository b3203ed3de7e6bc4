package compiler

import (
	"fmt"
	"strings"
	"time"

	"cuelang.org/go/cue"

	"github.com/roach88/ruleassert/internal/ir"
)

// opNames maps the keys accepted in a `where` operator struct.
var opNames = map[string]ir.Op{
	"eq": ir.OpEq,
	"ne": ir.OpNe,
	"lt": ir.OpLt,
	"le": ir.OpLe,
	"gt": ir.OpGt,
	"ge": ir.OpGe,
}

// CompileRule parses a CUE value into a Rule.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the rule struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`rule: "my rule": { ... }`)
//	rule, err := CompileRule(v.LookupPath(cue.ParsePath(`rule."my rule"`)))
func CompileRule(v cue.Value) (*ir.Rule, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError("rule", err)
	}

	rule := &ir.Rule{}
	if sels := v.Path().Selectors(); len(sels) > 0 {
		rule.Name = strings.Trim(sels[len(sels)-1].String(), `"`)
	}
	path := fmt.Sprintf("rule.%q", rule.Name)

	if s := v.LookupPath(cue.ParsePath("salience")); s.Exists() {
		n, err := s.Int64()
		if err != nil {
			return nil, formatCUEError(path+".salience", err)
		}
		rule.Salience = int(n)
	}

	if nl := v.LookupPath(cue.ParsePath("no_loop")); nl.Exists() {
		b, err := nl.Bool()
		if err != nil {
			return nil, formatCUEError(path+".no_loop", err)
		}
		rule.NoLoop = b
	}

	if tv := v.LookupPath(cue.ParsePath("timer")); tv.Exists() {
		s, err := tv.String()
		if err != nil {
			return nil, formatCUEError(path+".timer", err)
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, &CompileError{Field: path + ".timer", Message: err.Error(), Pos: tv.Pos()}
		}
		rule.Delay = d
	}

	var err error
	rule.When, err = parsePatterns(path, v)
	if err != nil {
		return nil, err
	}

	rule.Then, err = parseActions(path, v)
	if err != nil {
		return nil, err
	}

	if errs := rule.Validate(); len(errs) > 0 {
		return nil, &CompileError{
			Field:   path + "." + errs[0].Field,
			Message: errs[0].Message,
			Pos:     v.Pos(),
		}
	}

	return rule, nil
}

// parsePatterns extracts the `when` list.
func parsePatterns(path string, v cue.Value) ([]ir.Pattern, error) {
	whenVal := v.LookupPath(cue.ParsePath("when"))
	if !whenVal.Exists() {
		return nil, &CompileError{
			Field:   path + ".when",
			Message: "when clause is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := whenVal.List()
	if err != nil {
		return nil, formatCUEError(path+".when", err)
	}

	var patterns []ir.Pattern
	for i := 0; iter.Next(); i++ {
		ppath := fmt.Sprintf("%s.when[%d]", path, i)
		p, err := parsePattern(ppath, iter.Value())
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

func parsePattern(path string, v cue.Value) (ir.Pattern, error) {
	var p ir.Pattern

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return p, &CompileError{Field: path + ".type", Message: "pattern requires 'type' field", Pos: v.Pos()}
	}
	s, err := typeVal.String()
	if err != nil {
		return p, formatCUEError(path+".type", err)
	}
	p.Type = s

	if b := v.LookupPath(cue.ParsePath("bind")); b.Exists() {
		if p.Bind, err = b.String(); err != nil {
			return p, formatCUEError(path+".bind", err)
		}
	}

	if n := v.LookupPath(cue.ParsePath("not")); n.Exists() {
		if p.Not, err = n.Bool(); err != nil {
			return p, formatCUEError(path+".not", err)
		}
	}

	whereVal := v.LookupPath(cue.ParsePath("where"))
	if !whereVal.Exists() {
		return p, nil
	}
	fields, err := whereVal.Fields()
	if err != nil {
		return p, formatCUEError(path+".where", err)
	}
	for fields.Next() {
		name := strings.Trim(fields.Selector().String(), `"`)
		c, err := parseConstraint(path+".where."+name, name, fields.Value())
		if err != nil {
			return p, err
		}
		p.Where = append(p.Where, c)
	}
	return p, nil
}

// parseConstraint accepts `field: value` (equality) or `field: {op: value}`.
func parseConstraint(path, field string, v cue.Value) (ir.Constraint, error) {
	c := ir.Constraint{Field: field, Op: ir.OpEq}

	if v.Kind() == cue.StructKind {
		iter, err := v.Fields()
		if err != nil {
			return c, formatCUEError(path, err)
		}
		n := 0
		for iter.Next() {
			n++
			key := strings.Trim(iter.Selector().String(), `"`)
			op, ok := opNames[key]
			if !ok {
				return c, &CompileError{
					Field:   path,
					Message: fmt.Sprintf("invalid operator %q, must be one of: eq, ne, lt, le, gt, ge", key),
					Pos:     iter.Value().Pos(),
				}
			}
			c.Op = op
			v = iter.Value()
		}
		if n != 1 {
			return c, &CompileError{Field: path, Message: "operator struct must have exactly one key", Pos: v.Pos()}
		}
	}

	val, err := decodeValue(path, v)
	if err != nil {
		return c, err
	}
	c.Value, err = ir.ParseOperand(val)
	if err != nil {
		return c, &CompileError{Field: path, Message: err.Error(), Pos: v.Pos()}
	}
	return c, nil
}

// parseActions extracts the `then` list. A missing `then` is an empty consequence.
func parseActions(path string, v cue.Value) ([]ir.Action, error) {
	thenVal := v.LookupPath(cue.ParsePath("then"))
	if !thenVal.Exists() {
		return nil, nil
	}

	iter, err := thenVal.List()
	if err != nil {
		return nil, formatCUEError(path+".then", err)
	}

	var actions []ir.Action
	for i := 0; iter.Next(); i++ {
		a, err := parseAction(fmt.Sprintf("%s.then[%d]", path, i), iter.Value())
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func parseAction(path string, v cue.Value) (ir.Action, error) {
	var found []ir.ActionKind
	for _, k := range []ir.ActionKind{ir.ActionInsert, ir.ActionRetract, ir.ActionModify, ir.ActionIncrement} {
		if v.LookupPath(cue.ParsePath(string(k))).Exists() {
			found = append(found, k)
		}
	}
	if len(found) != 1 {
		return ir.Action{}, &CompileError{
			Field:   path,
			Message: "action must have exactly one of: insert, retract, modify, increment",
			Pos:     v.Pos(),
		}
	}

	a := ir.Action{Kind: found[0]}
	body := v.LookupPath(cue.ParsePath(string(a.Kind)))

	switch a.Kind {
	case ir.ActionInsert:
		typeVal := body.LookupPath(cue.ParsePath("type"))
		s, err := typeVal.String()
		if err != nil {
			return a, formatCUEError(path+".insert.type", err)
		}
		a.Type = s
		if fv := body.LookupPath(cue.ParsePath("fields")); fv.Exists() {
			if a.Fields, err = parseFieldOperands(path+".insert.fields", fv); err != nil {
				return a, err
			}
		}

	case ir.ActionRetract:
		s, err := body.String()
		if err != nil {
			return a, formatCUEError(path+".retract", err)
		}
		a.Target = s

	case ir.ActionModify:
		s, err := body.String()
		if err != nil {
			return a, formatCUEError(path+".modify", err)
		}
		a.Target = s
		setVal := v.LookupPath(cue.ParsePath("set"))
		if !setVal.Exists() {
			return a, &CompileError{Field: path + ".set", Message: "modify requires 'set' fields", Pos: v.Pos()}
		}
		if a.Fields, err = parseFieldOperands(path+".set", setVal); err != nil {
			return a, err
		}

	case ir.ActionIncrement:
		s, err := body.String()
		if err != nil {
			return a, formatCUEError(path+".increment", err)
		}
		target, field, ok := strings.Cut(s, ".")
		if !ok || target == "" || field == "" {
			return a, &CompileError{
				Field:   path + ".increment",
				Message: fmt.Sprintf("increment %q must have the form bind.field", s),
				Pos:     body.Pos(),
			}
		}
		a.Target, a.Field, a.By = target, field, 1
		if by := v.LookupPath(cue.ParsePath("by")); by.Exists() {
			if a.By, err = by.Int64(); err != nil {
				return a, formatCUEError(path+".by", err)
			}
		}
	}

	return a, nil
}

func parseFieldOperands(path string, v cue.Value) (map[string]ir.Operand, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(path, err)
	}
	out := make(map[string]ir.Operand)
	for iter.Next() {
		name := strings.Trim(iter.Selector().String(), `"`)
		val, err := decodeValue(path+"."+name, iter.Value())
		if err != nil {
			return nil, err
		}
		op, err := ir.ParseOperand(val)
		if err != nil {
			return nil, &CompileError{Field: path + "." + name, Message: err.Error(), Pos: iter.Value().Pos()}
		}
		out[name] = op
	}
	return out, nil
}

// decodeValue converts a concrete CUE value to an IRValue.
// Floats are rejected: fact fields are integers, strings, bools and nesting of those.
func decodeValue(path string, v cue.Value) (ir.IRValue, error) {
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(path, err)
		}
		return ir.IRString(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(path, err)
		}
		return ir.IRInt(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(path, err)
		}
		return ir.IRBool(b), nil
	case cue.NullKind:
		return ir.IRNull{}, nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(path, err)
		}
		var arr ir.IRArray
		for i := 0; iter.Next(); i++ {
			elem, err := decodeValue(fmt.Sprintf("%s[%d]", path, i), iter.Value())
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(path, err)
		}
		obj := ir.IRObject{}
		for iter.Next() {
			name := strings.Trim(iter.Selector().String(), `"`)
			elem, err := decodeValue(path+"."+name, iter.Value())
			if err != nil {
				return nil, err
			}
			obj[name] = elem
		}
		return obj, nil
	case cue.FloatKind:
		return nil, &CompileError{Field: path, Message: "floats are not supported", Pos: v.Pos()}
	}
	return nil, &CompileError{
		Field:   path,
		Message: fmt.Sprintf("value must be concrete, got %s", v.IncompleteKind()),
		Pos:     v.Pos(),
	}
}
