package selector

import (
	"encoding/json"
	"strings"
)

// Modifier is a ".name" or ".name(value)" suffix attached to a field.
// HasValue is false for the bare form, which stands for a boolean true.
type Modifier struct {
	Name     string
	Value    string
	HasValue bool
}

// Field is one selected key at one level of nesting.
// Children is nil when the field is selected as-is.
type Field struct {
	Name      string
	Children  []*Field
	Modifiers []Modifier
}

// Tree is the parsed form of a selection string.
type Tree struct {
	Fields []*Field
}

// Empty reports whether the tree selects nothing at the top level.
func (t *Tree) Empty() bool {
	return t == nil || len(t.Fields) == 0
}

// HasChildren reports whether the field carries a nested selection.
func (f *Field) HasChildren() bool {
	return f != nil && f.Children != nil
}

// Modifier returns the first modifier with the given name.
func (f *Field) Modifier(name string) (Modifier, bool) {
	if f == nil {
		return Modifier{}, false
	}
	for _, m := range f.Modifiers {
		if m.Name == name {
			return m, true
		}
	}
	return Modifier{}, false
}

// String renders the tree in canonical selector syntax.
func (t *Tree) String() string {
	if t == nil {
		return ""
	}
	var b strings.Builder
	writeFields(&b, t.Fields)
	return b.String()
}

// String renders the field and its nested selection.
func (f *Field) String() string {
	var b strings.Builder
	writeField(&b, f)
	return b.String()
}

func (m Modifier) String() string {
	if !m.HasValue {
		return m.Name
	}
	return m.Name + "(" + m.Value + ")"
}

func writeFields(b *strings.Builder, fields []*Field) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		writeField(b, f)
	}
}

func writeField(b *strings.Builder, f *Field) {
	if f == nil {
		return
	}
	b.WriteString(f.Name)
	for _, m := range f.Modifiers {
		b.WriteByte('.')
		b.WriteString(m.String())
	}
	if len(f.Children) > 0 {
		b.WriteByte('{')
		writeFields(b, f.Children)
		b.WriteByte('}')
	}
}

type modifierJSON struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

type fieldJSON struct {
	Name      string     `json:"name"`
	Fields    []*Field   `json:"fields,omitempty"`
	Modifiers []Modifier `json:"modifiers,omitempty"`
}

// MarshalJSON encodes the bare form of a modifier as "value": true.
func (m Modifier) MarshalJSON() ([]byte, error) {
	out := modifierJSON{Name: m.Name, Value: true}
	if m.HasValue {
		out.Value = m.Value
	}
	return json.Marshal(out)
}

func (f *Field) MarshalJSON() ([]byte, error) {
	return json.Marshal(fieldJSON{Name: f.Name, Fields: f.Children, Modifiers: f.Modifiers})
}

func (t *Tree) MarshalJSON() ([]byte, error) {
	fields := t.Fields
	if fields == nil {
		fields = []*Field{}
	}
	return json.Marshal(struct {
		Fields []*Field `json:"fields"`
	}{Fields: fields})
}
