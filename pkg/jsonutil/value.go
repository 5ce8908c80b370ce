package jsonutil

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	gojson "github.com/goccy/go-json"
)

// ParseFloat converts common numeric-like values to float64.
// The second return value is false when v is not numeric.
func ParseFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case int32:
		f = float64(t)
	case gojson.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// CoerceInt converts common numeric-like values to int, or 0.
func CoerceInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	}
	f, ok := ParseFloat(v)
	if !ok {
		return 0
	}
	return int(f)
}

// ValidatePath checks a restricted JSONPath expression.
// Supported syntax:
// - "" or "$" (the whole document)
// - $.a.b.c
// - $.items[0].x
func ValidatePath(path string) error {
	_, err := splitPath(path)
	return err
}

// LookupPath returns the value addressed by path. Raw JSON met on the way
// is expanded one level per step.
func LookupPath(root any, path string) (any, bool) {
	steps, err := splitPath(path)
	if err != nil {
		return nil, false
	}
	cur := root
	for _, s := range steps {
		next, ok := s.get(Expand(cur))
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// ReplacePath stores v at path inside root and returns the updated root.
// The addressed slot must already exist. Containers along the path are
// modified in place unless they were raw JSON, in which case the expanded
// copy takes their place; callers must use the returned root.
func ReplacePath(root any, path string, v any) (any, bool) {
	steps, err := splitPath(path)
	if err != nil {
		return root, false
	}
	out, ok := replaceAt(root, steps, v)
	if !ok {
		return root, false
	}
	return out, true
}

func replaceAt(cur any, steps []pathStep, v any) (any, bool) {
	if len(steps) == 0 {
		return v, true
	}
	c := Expand(cur)
	child, ok := steps[0].get(c)
	if !ok {
		return nil, false
	}
	nv, ok := replaceAt(child, steps[1:], v)
	if !ok || !steps[0].set(c, nv) {
		return nil, false
	}
	return c, true
}

type pathStep struct {
	key    string
	index  int
	hasIdx bool
}

func (s pathStep) get(cur any) (any, bool) {
	if s.hasIdx {
		arr, ok := cur.([]any)
		if !ok || s.index < 0 || s.index >= len(arr) {
			return nil, false
		}
		return arr[s.index], true
	}
	switch m := cur.(type) {
	case *Object:
		return m.Get(s.key)
	case map[string]any:
		v, ok := m[s.key]
		return v, ok
	}
	return nil, false
}

func (s pathStep) set(cur any, v any) bool {
	if s.hasIdx {
		arr, ok := cur.([]any)
		if !ok || s.index < 0 || s.index >= len(arr) {
			return false
		}
		arr[s.index] = v
		return true
	}
	switch m := cur.(type) {
	case *Object:
		if _, exists := m.Get(s.key); !exists {
			return false
		}
		m.Set(s.key, v)
		return true
	case map[string]any:
		if _, exists := m[s.key]; !exists {
			return false
		}
		m[s.key] = v
		return true
	}
	return false
}

func splitPath(path string) ([]pathStep, error) {
	p := strings.TrimSpace(path)
	if p == "" || p == "$" {
		return nil, nil
	}
	if !strings.HasPrefix(p, "$.") {
		return nil, fmt.Errorf("path %q must start with \"$.\"", path)
	}
	var steps []pathStep
	for _, part := range strings.Split(strings.TrimPrefix(p, "$."), ".") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("path %q has an empty segment", path)
		}
		name, rest, hasIdx := strings.Cut(part, "[")
		if name != "" {
			steps = append(steps, pathStep{key: name})
		}
		for hasIdx {
			inner, tail, ok := strings.Cut(rest, "]")
			if !ok {
				return nil, fmt.Errorf("path %q: unclosed '['", path)
			}
			n, err := strconv.Atoi(strings.TrimSpace(inner))
			if err != nil || n < 0 {
				return nil, fmt.Errorf("path %q: invalid index %q", path, inner)
			}
			steps = append(steps, pathStep{index: n, hasIdx: true})
			if tail == "" {
				break
			}
			if !strings.HasPrefix(tail, "[") {
				return nil, errors.New("path " + strconv.Quote(path) + ": unexpected text after index")
			}
			rest = tail[1:]
		}
	}
	return steps, nil
}
