package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRule() Rule {
	return Rule{
		Name: "input call",
		When: []Pattern{
			{Bind: "d", Type: "Dialing"},
			{Type: "CallInProgress", Not: true, Where: []Constraint{
				{Field: "calleeNumber", Op: OpEq, Value: Ref("$d.calleeNumber")},
			}},
		},
		Then: []Action{
			{Kind: ActionInsert, Type: "CallInProgress", Fields: map[string]Operand{
				"callerNumber": Ref("$d.callerNumber"),
			}},
			{Kind: ActionRetract, Target: "d"},
		},
	}
}

func TestRuleValidate_Valid(t *testing.T) {
	r := validRule()
	assert.Empty(t, r.Validate())
}

func TestRuleValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *Rule)
		field  string
	}{
		{"missing name", func(r *Rule) { r.Name = "" }, "name"},
		{"no patterns", func(r *Rule) { r.When = nil }, "when"},
		{"negative timer", func(r *Rule) { r.Delay = -1 }, "timer"},
		{"missing type", func(r *Rule) { r.When[0].Type = "" }, "when[0].type"},
		{"negated binding", func(r *Rule) { r.When[1].Bind = "c" }, "when[1].bind"},
		{"bad op", func(r *Rule) { r.When[1].Where[0].Op = "like" }, "when[1].where[0].op"},
		{"forward ref", func(r *Rule) { r.When[1].Where[0].Value = Ref("$x.y") }, "when[1].where[0].value"},
		{"missing value", func(r *Rule) { r.When[1].Where[0].Value = Operand{} }, "when[1].where[0].value"},
		{"unbound retract", func(r *Rule) { r.Then[1].Target = "zz" }, "then[1].target"},
		{"insert without type", func(r *Rule) { r.Then[0].Type = "" }, "then[0].type"},
		{"insert unknown ref", func(r *Rule) { r.Then[0].Fields["x"] = Ref("$q.v") }, "then[0].fields.x"},
		{"modify without fields", func(r *Rule) { r.Then[1] = Action{Kind: ActionModify, Target: "d"} }, "then[1].set"},
		{"increment without field", func(r *Rule) { r.Then[1] = Action{Kind: ActionIncrement, Target: "d"} }, "then[1].field"},
		{"unknown kind", func(r *Rule) { r.Then[1].Kind = "log" }, "then[1].kind"},
		{"duplicate binding", func(r *Rule) {
			r.When = append(r.When, Pattern{Bind: "d", Type: "Dialing"})
		}, "when[2].bind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRule()
			tt.mutate(&r)
			errs := r.Validate()
			require.NotEmpty(t, errs)

			var fields []string
			for _, e := range errs {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidateRules_DuplicateNames(t *testing.T) {
	a := validRule()
	a.Source = "rules/a.cue"
	b := validRule()
	b.Source = "rules/b.cue"

	errs := ValidateRules([]Rule{a, b})
	require.Len(t, errs, 1)
	assert.Equal(t, `rule["input call"]`, errs[0].Field)
	assert.Contains(t, errs[0].Message, "rules/a.cue")
	assert.Equal(t, `rule["input call"]: duplicate rule name (also declared in rules/a.cue)`, errs[0].Error())
}

func TestValidateRules_PrefixesRuleName(t *testing.T) {
	r := validRule()
	r.When[0].Type = ""

	errs := ValidateRules([]Rule{r})
	require.Len(t, errs, 1)
	assert.Equal(t, `rule["input call"].when[0].type`, errs[0].Field)
}
