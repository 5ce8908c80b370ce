package jsonutil

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	gojson "github.com/goccy/go-json"
)

// Object is a JSON object that remembers member order. Member values may
// still be unexpanded gojson.RawMessage.
type Object struct {
	keys []string
	vals map[string]any
}

// NewObject returns an empty Object with room for n members.
func NewObject(n int) *Object {
	return &Object{keys: make([]string, 0, n), vals: make(map[string]any, n)}
}

func (o *Object) Len() int { return len(o.keys) }

// Keys returns the member names in order. The slice must not be modified.
func (o *Object) Keys() []string { return o.keys }

func (o *Object) Get(key string) (any, bool) {
	v, ok := o.vals[key]
	return v, ok
}

// Set stores v under key. A new key is appended; an existing key keeps its
// position.
func (o *Object) Set(key string, v any) {
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
}

// Map returns the members as a plain map.
func (o *Object) Map() map[string]any {
	out := make(map[string]any, len(o.vals))
	for k, v := range o.vals {
		out[k] = v
	}
	return out
}

func (o *Object) MarshalJSON() ([]byte, error) {
	return AppendJSON(nil, o)
}

// Expand turns raw JSON into one level of walkable values: an object
// becomes *Object and an array becomes []any, both holding raw members.
// Scalars are decoded with numbers kept as gojson.Number. Values that are
// not raw JSON are returned unchanged, as are malformed documents.
func Expand(v any) any {
	raw, ok := v.(gojson.RawMessage)
	if !ok {
		return v
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return v
	}
	var (
		out any
		err error
	)
	switch raw[0] {
	case '{':
		out, err = splitObject(raw)
	case '[':
		out, err = splitArray(raw)
	default:
		out, err = decodeScalar(raw)
	}
	if err != nil {
		return v
	}
	return out
}

func decodeScalar(raw []byte) (any, error) {
	dec := gojson.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

var errMalformed = errors.New("malformed json")

func splitObject(raw []byte) (*Object, error) {
	obj := NewObject(8)
	i := skipSpace(raw, 1)
	if i < len(raw) && raw[i] == '}' {
		return obj, nil
	}
	for i < len(raw) {
		if raw[i] != '"' {
			return nil, errMalformed
		}
		end := scanValue(raw, i)
		var key string
		if err := gojson.Unmarshal(raw[i:end], &key); err != nil {
			return nil, fmt.Errorf("object key: %w", err)
		}
		i = skipSpace(raw, end)
		if i >= len(raw) || raw[i] != ':' {
			return nil, errMalformed
		}
		i = skipSpace(raw, i+1)
		end = scanValue(raw, i)
		if end == i {
			return nil, errMalformed
		}
		obj.Set(key, gojson.RawMessage(raw[i:end]))
		i = skipSpace(raw, end)
		if i >= len(raw) {
			break
		}
		switch raw[i] {
		case ',':
			i = skipSpace(raw, i+1)
		case '}':
			return obj, nil
		default:
			return nil, errMalformed
		}
	}
	return nil, errMalformed
}

func splitArray(raw []byte) ([]any, error) {
	out := []any{}
	i := skipSpace(raw, 1)
	if i < len(raw) && raw[i] == ']' {
		return out, nil
	}
	for i < len(raw) {
		end := scanValue(raw, i)
		if end == i {
			return nil, errMalformed
		}
		out = append(out, gojson.RawMessage(raw[i:end]))
		i = skipSpace(raw, end)
		if i >= len(raw) {
			break
		}
		switch raw[i] {
		case ',':
			i = skipSpace(raw, i+1)
		case ']':
			return out, nil
		default:
			return nil, errMalformed
		}
	}
	return nil, errMalformed
}

func skipSpace(b []byte, i int) int {
	for i < len(b) {
		switch b[i] {
		case ' ', '\t', '\r', '\n':
			i++
		default:
			return i
		}
	}
	return i
}

// scanValue returns the offset just past the value starting at b[i].
func scanValue(b []byte, i int) int {
	if i >= len(b) {
		return i
	}
	switch b[i] {
	case '"':
		return scanString(b, i)
	case '{', '[':
		depth := 0
		for i < len(b) {
			switch b[i] {
			case '"':
				i = scanString(b, i)
				continue
			case '{', '[':
				depth++
			case '}', ']':
				depth--
				if depth == 0 {
					return i + 1
				}
			}
			i++
		}
		return i
	default:
		for i < len(b) {
			switch b[i] {
			case ',', '}', ']', ' ', '\t', '\r', '\n':
				return i
			}
			i++
		}
		return i
	}
}

func scanString(b []byte, i int) int {
	for i++; i < len(b); i++ {
		switch b[i] {
		case '\\':
			i++
		case '"':
			return i + 1
		}
	}
	return i
}

// AppendJSON appends the encoding of v to dst. Raw JSON is copied as is and
// *Object members are written in order; everything else goes through
// gojson without HTML escaping.
func AppendJSON(dst []byte, v any) ([]byte, error) {
	switch t := v.(type) {
	case gojson.RawMessage:
		if len(t) == 0 {
			return append(dst, "null"...), nil
		}
		return append(dst, t...), nil
	case *Object:
		if t == nil {
			return append(dst, "null"...), nil
		}
		dst = append(dst, '{')
		for i, k := range t.keys {
			if i > 0 {
				dst = append(dst, ',')
			}
			var err error
			if dst, err = appendMember(dst, k, t.vals[k]); err != nil {
				return nil, err
			}
		}
		return append(dst, '}'), nil
	case map[string]any:
		if t == nil {
			return append(dst, "null"...), nil
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		dst = append(dst, '{')
		for i, k := range keys {
			if i > 0 {
				dst = append(dst, ',')
			}
			var err error
			if dst, err = appendMember(dst, k, t[k]); err != nil {
				return nil, err
			}
		}
		return append(dst, '}'), nil
	case []any:
		if t == nil {
			return append(dst, "null"...), nil
		}
		dst = append(dst, '[')
		for i, item := range t {
			if i > 0 {
				dst = append(dst, ',')
			}
			var err error
			if dst, err = AppendJSON(dst, item); err != nil {
				return nil, err
			}
		}
		return append(dst, ']'), nil
	}
	b, err := gojson.MarshalNoEscape(v)
	if err != nil {
		return nil, err
	}
	return append(dst, b...), nil
}

func appendMember(dst []byte, key string, v any) ([]byte, error) {
	k, err := gojson.MarshalNoEscape(key)
	if err != nil {
		return nil, err
	}
	dst = append(dst, k...)
	dst = append(dst, ':')
	return AppendJSON(dst, v)
}
