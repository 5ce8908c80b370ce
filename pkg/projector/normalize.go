package projector

import (
	"bytes"
	"reflect"

	gojson "github.com/goccy/go-json"

	"github.com/r9s-ai/fieldproxy/pkg/jsonutil"
)

// Normalize converts object-like values into the shapes the walk works on:
// raw JSON is expanded one level by jsonutil.Expand, maps with string keys
// become map[string]any, slices and arrays (except
// byte slices) become []any and structs are round-tripped through their
// JSON encoding. Anything else, including scalars, is returned as is.
//
// Only the outermost level is converted; nested values are normalized when
// the walk reaches them.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil, string, bool, float64, float32, int, int64, int32, uint, uint64, uint32, gojson.Number, []byte:
		return v
	case map[string]any, []any, *jsonutil.Object:
		return t
	case gojson.RawMessage:
		return jsonutil.Expand(t)
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return v
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	case reflect.Struct:
		if m, ok := structToMap(v); ok {
			return m
		}
	}
	return v
}

func structToMap(v any) (map[string]any, bool) {
	b, err := gojson.Marshal(v)
	if err != nil {
		return nil, false
	}
	dec := gojson.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, false
	}
	m, ok := out.(map[string]any)
	return m, ok
}

// IsNumericList reports whether v is a list of items: a non-empty []any.
// Decoded JSON arrays are always dense and zero-based; an empty list is
// not treated as one.
func IsNumericList(v any) bool {
	l, ok := v.([]any)
	return ok && len(l) > 0
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any, *jsonutil.Object:
		return true
	default:
		return false
	}
}
