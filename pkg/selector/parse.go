package selector

import (
	"strings"
	"unicode"
)

const rootLevel = -1

// node is the arena form of a Field while parsing is in progress.
type node struct {
	name      string
	modifiers []Modifier
	children  []int
}

type parser struct {
	nodes []node
	top   []int
	stack []int
}

// Parse converts a selection string into a Tree. It never fails; see the
// package documentation for how malformed input is treated.
func Parse(s string) *Tree {
	p := &parser{stack: []int{rootLevel}}
	src := stripSpace(s)
	for i := 0; i < len(src); {
		if isDelim(src[i]) {
			// Stray delimiters outside a field spec are skipped.
			i++
			continue
		}
		j := i
		for j < len(src) && !isDelim(src[j]) {
			j++
		}
		path := src[i:j]
		k := j
		for k < len(src) && isBrace(src[k]) {
			k++
		}
		braces := src[j:k]
		if k < len(src) && src[k] == ',' {
			k++
		}
		p.add(path, braces)
		i = k
	}
	return &Tree{Fields: p.build(p.top)}
}

func (p *parser) add(path string, braces string) {
	idx := len(p.nodes)
	p.nodes = append(p.nodes, parsePath(path))

	cur := p.stack[len(p.stack)-1]
	if cur == rootLevel {
		p.top = append(p.top, idx)
	} else {
		p.nodes[cur].children = append(p.nodes[cur].children, idx)
	}

	if braces == "" {
		return
	}
	switch braces[0] {
	case '}':
		// One level per brace character in the run, never below the root.
		n := len(braces)
		if n > len(p.stack)-1 {
			n = len(p.stack) - 1
		}
		p.stack = p.stack[:len(p.stack)-n]
	case '{':
		p.stack = append(p.stack, idx)
	}
}

func (p *parser) build(ids []int) []*Field {
	if len(ids) == 0 {
		return nil
	}
	out := make([]*Field, 0, len(ids))
	for _, id := range ids {
		n := p.nodes[id]
		out = append(out, &Field{
			Name:      n.name,
			Modifiers: n.modifiers,
			Children:  p.build(n.children),
		})
	}
	return out
}

func parsePath(path string) node {
	parts := strings.Split(path, ".")
	n := node{name: parts[0]}
	for _, spec := range parts[1:] {
		m, ok := parseModifier(spec)
		if !ok {
			continue
		}
		n.modifiers = append(n.modifiers, m)
	}
	return n
}

// parseModifier reads "name" or "name(value)". Text after the closing
// parenthesis is ignored and an empty or unterminated value leaves the
// modifier bare.
func parseModifier(spec string) (Modifier, bool) {
	open := strings.IndexByte(spec, '(')
	if open < 0 {
		if spec == "" {
			return Modifier{}, false
		}
		return Modifier{Name: spec}, true
	}
	if open == 0 {
		return Modifier{}, false
	}
	m := Modifier{Name: spec[:open]}
	rest := spec[open+1:]
	if end := strings.IndexByte(rest, ')'); end > 0 {
		m.Value = rest[:end]
		m.HasValue = true
	}
	return m, true
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func isBrace(c byte) bool {
	return c == '{' || c == '}'
}

func isDelim(c byte) bool {
	return c == ',' || isBrace(c)
}
