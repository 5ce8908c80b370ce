package jsonutil

import (
	"testing"

	gojson "github.com/goccy/go-json"
)

func TestExpand_ObjectKeepsOrderAndRawMembers(t *testing.T) {
	v := Expand(gojson.RawMessage(` { "z" : {"b":1, "a":[1,"]}"]} , "a\"k":"x","z":2, "e":{} } `))
	obj, ok := v.(*Object)
	if !ok {
		t.Fatalf("got %T", v)
	}
	keys := obj.Keys()
	if len(keys) != 3 || keys[0] != "z" || keys[1] != `a"k` || keys[2] != "e" {
		t.Fatalf("keys=%q", keys)
	}
	z, _ := obj.Get("z")
	if string(z.(gojson.RawMessage)) != "2" {
		t.Fatalf("duplicate key should take the last value, got %s", z)
	}
	e, _ := obj.Get("e")
	if string(e.(gojson.RawMessage)) != "{}" {
		t.Fatalf("e=%s", e)
	}
}

func TestExpand_ArraysAndScalars(t *testing.T) {
	arr, ok := Expand(gojson.RawMessage(`[ 1 ,"a,b", {"x":[2]} ,null]`)).([]any)
	if !ok || len(arr) != 4 {
		t.Fatalf("arr=%#v", arr)
	}
	want := []string{`1`, `"a,b"`, `{"x":[2]}`, `null`}
	for i, w := range want {
		if string(arr[i].(gojson.RawMessage)) != w {
			t.Fatalf("arr[%d]=%s want %s", i, arr[i], w)
		}
	}
	if empty, ok := Expand(gojson.RawMessage(`[ ]`)).([]any); !ok || len(empty) != 0 {
		t.Fatalf("empty=%#v", empty)
	}

	if got := Expand(gojson.RawMessage(`12.50`)); got != gojson.Number("12.50") {
		t.Fatalf("number=%#v", got)
	}
	if got := Expand(gojson.RawMessage(`"é"`)); got != "é" {
		t.Fatalf("string=%#v", got)
	}
	if got := Expand(gojson.RawMessage(`null`)); got != nil {
		t.Fatalf("null=%#v", got)
	}
	if got := Expand(map[string]any{"a": 1}); got.(map[string]any)["a"] != 1 {
		t.Fatalf("non-raw values pass through")
	}
	bad := gojson.RawMessage(`{"a" 1}`)
	if _, ok := Expand(bad).(gojson.RawMessage); !ok {
		t.Fatalf("malformed raw should be returned as is")
	}
}

func TestAppendJSON(t *testing.T) {
	obj := NewObject(3)
	obj.Set("b", gojson.RawMessage(`{ "keep" : "bytes" }`))
	obj.Set("a", []any{gojson.RawMessage(`1`), "<&>", map[string]any{"y": 1, "x": nil}})
	obj.Set("b", gojson.RawMessage(`[1, 2]`))
	got, err := AppendJSON(nil, obj)
	if err != nil {
		t.Fatalf("AppendJSON: %v", err)
	}
	want := `{"b":[1, 2],"a":[1,"<&>",{"x":null,"y":1}]}`
	if string(got) != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}

	b, err := gojson.Marshal(map[string]any{"o": obj})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !gojson.Valid(b) {
		t.Fatalf("invalid json from MarshalJSON: %s", b)
	}
}

func TestPaths_OnRawDocument(t *testing.T) {
	doc := gojson.RawMessage(`{"meta":{"page": 1},"data":{"items":[{"id":1},{"id": 2}]}}`)

	v, ok := LookupPath(doc, "$.data.items[1]")
	if !ok || string(v.(gojson.RawMessage)) != `{"id": 2}` {
		t.Fatalf("lookup got %v ok=%v", v, ok)
	}

	root, ok := ReplacePath(doc, "$.data.items", "x")
	if !ok {
		t.Fatalf("replace failed")
	}
	got, err := AppendJSON(nil, root)
	if err != nil {
		t.Fatalf("AppendJSON: %v", err)
	}
	if string(got) != `{"meta":{"page": 1},"data":{"items":"x"}}` {
		t.Fatalf("got %s", got)
	}
	if _, ok := ReplacePath(doc, "$.data.missing", 1); ok {
		t.Fatalf("replace of a missing key should fail")
	}
}
