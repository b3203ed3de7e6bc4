package ir

import (
	"fmt"
	"reflect"
	"strings"
)

// FactHandle identifies one insertion of a fact into a session.
// Handles are assigned by the session in increasing order and never reused,
// so two structurally equal facts inserted separately stay distinguishable.
type FactHandle int64

// FactEntry pairs a live fact with the handle it was inserted under.
type FactEntry struct {
	Handle FactHandle
	Fact   any
}

// Fact is the rule-visible fact form: a type name plus named fields.
// Sessions keep *Fact pointers, so identity is pointer identity.
type Fact struct {
	Type   string   `json:"type"`
	Fields IRObject `json:"fields"`
}

// NewFact creates a fact of the given type.
func NewFact(typ string, pairs ...IRPair) *Fact {
	return &Fact{Type: typ, Fields: NewIRObject(pairs...)}
}

// FactType implements Typed.
func (f *Fact) FactType() string {
	return f.Type
}

// Field implements FieldReader.
func (f *Fact) Field(name string) (IRValue, bool) {
	v, ok := f.Fields[name]
	return v, ok
}

// Clone returns a deep copy with a distinct identity.
func (f *Fact) Clone() *Fact {
	return &Fact{Type: f.Type, Fields: f.Fields.Clone()}
}

// String renders the fact as Type{key=value, ...} with keys in canonical
// order and values in canonical JSON.
func (f *Fact) String() string {
	var sb strings.Builder
	sb.WriteString(f.Type)
	sb.WriteByte('{')
	for i, k := range f.Fields.SortedKeys() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		b, err := MarshalCanonical(f.Fields[k])
		if err != nil {
			sb.WriteString(KindOf(f.Fields[k]))
			continue
		}
		sb.Write(b)
	}
	sb.WriteByte('}')
	return sb.String()
}

// Typed is implemented by facts that name their own rule-visible type.
type Typed interface {
	FactType() string
}

// FieldReader is implemented by facts whose fields rules can constrain.
type FieldReader interface {
	Field(name string) (IRValue, bool)
}

// TypeOf returns the rule-visible type name of a fact: FactType() when the
// fact implements Typed, otherwise the Go type name without package or
// pointer decoration.
func TypeOf(fact any) string {
	if t, ok := fact.(Typed); ok {
		return t.FactType()
	}
	rt := reflect.TypeOf(fact)
	if rt == nil {
		return "nil"
	}
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt.Name() == "" {
		return rt.String()
	}
	return rt.Name()
}

// Render produces the diagnostic text of a fact.
// Strings render as themselves; anything else prefers fmt.Stringer.
func Render(fact any) string {
	switch f := fact.(type) {
	case string:
		return f
	case fmt.Stringer:
		return f.String()
	}
	v := reflect.Indirect(reflect.ValueOf(fact))
	if v.Kind() == reflect.Struct {
		return TypeOf(fact) + fmt.Sprintf("%+v", v.Interface())
	}
	return fmt.Sprintf("%v", fact)
}

// Comparable reports whether a fact can be tracked by identity.
// Maps, slices and funcs cannot be compared with == and are rejected
// at insertion.
func Comparable(fact any) bool {
	if fact == nil {
		return false
	}
	return reflect.TypeOf(fact).Comparable()
}
