// Package projector applies a parsed selector.Tree to nested response data.
//
// Data is any tree of mappings, lists and scalars as produced by a JSON
// decoder. Other object-like values (structs, typed maps, typed slices) are
// normalized to map[string]any and []any when the walk reaches them.
//
// Raw JSON (gojson.RawMessage) is expanded lazily, one level at a time, into
// *jsonutil.Object and []any. Filtered objects list their members in
// selector order. Anything the walk does not reshape stays raw, so
// unselected subtrees keep their exact bytes.
//
// A level where none of the requested fields exist is returned unfiltered
// rather than emptied. This holds at every depth.
//
// A field whose value is null counts as present and is kept as null.
package projector

import (
	"github.com/r9s-ai/fieldproxy/pkg/jsonutil"
	"github.com/r9s-ai/fieldproxy/pkg/selector"
)

// ModifierFunc transforms a selected value. v may be unexpanded raw JSON;
// call Normalize to walk it. It must not mutate v.
type ModifierFunc func(v any, m selector.Modifier) any

// Projector walks data against selector fields.
// The zero value knows no modifiers; use New for the default set.
type Projector struct {
	modifiers map[string]ModifierFunc
}

// Option configures a Projector.
type Option func(*Projector)

// WithModifier registers fn under name, replacing any existing entry.
func WithModifier(name string, fn ModifierFunc) Option {
	return func(p *Projector) {
		if fn == nil {
			delete(p.modifiers, name)
			return
		}
		p.modifiers[name] = fn
	}
}

// New returns a Projector with the built-in modifiers plus opts.
func New(opts ...Option) *Projector {
	p := &Projector{modifiers: map[string]ModifierFunc{
		"limit": applyLimit,
	}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultProjector = New()

// Project filters data with the default Projector.
func Project(data any, fields []*selector.Field) any {
	return defaultProjector.Project(data, fields)
}

// Apply filters data with tree using the default Projector.
// A nil or empty tree returns data untouched.
func Apply(tree *selector.Tree, data any) any {
	return defaultProjector.Apply(tree, data)
}

func (p *Projector) Apply(tree *selector.Tree, data any) any {
	out, _ := p.Match(tree, data)
	return out
}

// Match is Apply that also reports whether any top-level field was found.
// When it returns false the result is data itself.
func (p *Projector) Match(tree *selector.Tree, data any) (any, bool) {
	if tree.Empty() {
		return data, false
	}
	return p.project(data, Normalize(data), tree.Fields)
}

// Project keeps only fields from data, recursing into nested selections.
// Non-mapping data is returned unchanged.
func (p *Projector) Project(data any, fields []*selector.Field) any {
	out, _ := p.project(data, Normalize(data), fields)
	return out
}

// project filters norm, the normalized form of data. Output members follow
// the order of fields; a repeated field keeps its first position and takes
// the last value. Values nobody asked to reshape are passed through as they
// came, raw JSON included.
func (p *Projector) project(data, norm any, fields []*selector.Field) (any, bool) {
	var get func(string) (any, bool)
	switch src := norm.(type) {
	case map[string]any:
		get = func(k string) (any, bool) {
			v, ok := src[k]
			return v, ok
		}
	case *jsonutil.Object:
		get = src.Get
	default:
		return data, false
	}

	out := jsonutil.NewObject(len(fields))
	for _, f := range fields {
		if f == nil {
			continue
		}
		v, ok := get(f.Name)
		if !ok {
			continue
		}
		if f.HasChildren() {
			if n := Normalize(v); isContainer(n) {
				v = p.descend(v, n, f.Children)
			}
		}
		for _, m := range f.Modifiers {
			if fn, ok := p.modifiers[m.Name]; ok {
				v = fn(v, m)
			}
		}
		out.Set(f.Name, v)
	}

	if out.Len() == 0 {
		return data, false
	}
	if _, ok := norm.(map[string]any); ok {
		return out.Map(), true
	}
	return out, true
}

func (p *Projector) descend(v, norm any, children []*selector.Field) any {
	list, ok := norm.([]any)
	if !ok || !IsNumericList(list) {
		res, _ := p.project(v, norm, children)
		return res
	}
	res := make([]any, len(list))
	for i, item := range list {
		n := Normalize(item)
		if isContainer(n) {
			res[i], _ = p.project(item, n, children)
			continue
		}
		res[i] = item
	}
	return res
}
