package fieldfilter

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r9s-ai/fieldproxy/pkg/selector"
)

func TestFilterJSON_TopLevelObject(t *testing.T) {
	body := []byte(`{"id":1,"title":{"rendered":"<b>Hi</b>"},"content":"long","acf":[{"id":1,"x":2},{"id":2,"x":3}]}`)
	out, res, err := FilterJSON(body, "id,title,acf.limit(1){id}", Options{})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, ReasonApplied, res.Reason)
	assert.Equal(t, 3, res.Fields)
	assert.Equal(t, `{"id":1,"title":{"rendered":"<b>Hi</b>"},"acf":[{"id":1}]}`, string(out))
}

func TestFilterJSON_KeepsUnselectedBytes(t *testing.T) {
	body := []byte(`{"meta":{"z":1,"a":"é"},"id":1}`)
	out, res, err := FilterJSON(body, "meta", Options{})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, `{"meta":{"z":1,"a":"é"}}`, string(out))

	spaced := []byte(`{ "id" : 1, "acf" : {"b": [1, 2,3], "a":"\u00e9<"}, "x": null }`)
	out, _, err = FilterJSON(spaced, "acf,x", Options{})
	require.NoError(t, err)
	assert.Equal(t, `{"acf":{"b": [1, 2,3], "a":"\u00e9<"},"x":null}`, string(out))
}

func TestFilterJSON_SelectorOrder(t *testing.T) {
	body := []byte(`{"id":1,"title":"t","meta":{"b":2,"a":1}}`)
	out, _, err := FilterJSON(body, "title,id", Options{})
	require.NoError(t, err)
	assert.Equal(t, `{"title":"t","id":1}`, string(out))

	out, _, err = FilterJSON(body, "meta{a,b},id,meta{a}", Options{})
	require.NoError(t, err)
	assert.Equal(t, `{"meta":{"a":1},"id":1}`, string(out), "a repeated field keeps its first position and its last value")
}

func TestFilterJSON_NoMatchReturnsBody(t *testing.T) {
	body := []byte(`{"meta":{"z":1,"a":"é"},"id":1}`)
	out, res, err := FilterJSON(body, "nope", Options{})
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, ReasonNoMatch, res.Reason)
	assert.Equal(t, body, out)

	out, res, err = FilterJSON(body, "id,meta{nope}", Options{})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, `{"id":1,"meta":{"z":1,"a":"é"}}`, string(out))
}

func TestFilterJSON_PreservesNumbers(t *testing.T) {
	body := []byte(`{"id":12345678901234567890,"price":1.10,"x":1}`)
	out, _, err := FilterJSON(body, "id,price", Options{})
	require.NoError(t, err)
	assert.Equal(t, `{"id":12345678901234567890,"price":1.10}`, string(out))
}

func TestFilterJSON_EachItem(t *testing.T) {
	body := []byte(`[{"id":1,"x":1},{"id":2,"x":2},"s"]`)

	out, res, err := FilterJSON(body, "id", Options{EachItem: true})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, `[{"id":1},{"id":2},"s"]`, string(out))

	out, res, err = FilterJSON(body, "id", Options{})
	require.NoError(t, err)
	assert.False(t, res.Applied, "lists are not mappings, so nothing is selected")
	assert.Equal(t, ReasonNoMatch, res.Reason)
	assert.Equal(t, body, out)

	out, res, err = FilterJSON([]byte(`[{"x":1},"s"]`), "id", Options{EachItem: true})
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, `[{"x":1},"s"]`, string(out))
}

func TestFilterJSON_PayloadPath(t *testing.T) {
	body := []byte(`{"data":{"id":1,"x":2},"meta":{"page":1}}`)
	out, res, err := FilterJSON(body, "id", Options{PayloadPath: "$.data"})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, `{"data":{"id":1},"meta":{"page":1}}`, string(out))

	out, res, err = FilterJSON(body, "id", Options{PayloadPath: "$.missing"})
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, ReasonPayloadPath, res.Reason)
	assert.Equal(t, body, out)
}

func TestFilterJSON_PassThrough(t *testing.T) {
	body := []byte(`{"id":1}`)

	out, res, err := FilterJSON(body, "  ", Options{})
	require.NoError(t, err)
	assert.Equal(t, ReasonEmptySelection, res.Reason)
	assert.Equal(t, body, out)

	out, res, err = FilterJSONTree(body, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, ReasonNoSelector, res.Reason)
	assert.Equal(t, body, out)

	bad := []byte(`{"id":`)
	out, res, err = FilterJSON(bad, "id", Options{})
	require.Error(t, err)
	assert.Equal(t, ReasonDecode, res.Reason)
	assert.Equal(t, bad, out)

	trailing := []byte(`{"id":1} {"id":2}`)
	_, res, err = FilterJSON(trailing, "id", Options{})
	require.Error(t, err)
	assert.Equal(t, ReasonDecode, res.Reason)
}

func TestFilterJSON_Indent(t *testing.T) {
	out, _, err := FilterJSON([]byte(`{"id":1,"x":2}`), "id", Options{Indent: "  "})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"id\": 1\n}", string(out))
}

func TestEncode_IndentsRawJSON(t *testing.T) {
	doc, err := Decode([]byte(` {"b":[1,{"c":"<x>"}],"a":{}} `))
	require.NoError(t, err)
	out, err := Encode(doc, "")
	require.NoError(t, err)
	assert.Equal(t, `{"b":[1,{"c":"<x>"}],"a":{}}`, string(out))

	out, err = Encode(doc, "  ")
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"b\": [\n    1,\n    {\n      \"c\": \"<x>\"\n    }\n  ],\n  \"a\": {}\n}", string(out))

	out, err = Encode(map[string]any{"z": 1, "a": "<"}, "")
	require.NoError(t, err)
	assert.Equal(t, `{"a":"<","z":1}`, string(out))
}

func TestFilter_DecodedDocument(t *testing.T) {
	doc := map[string]any{"id": 1, "x": 2}
	out, res := Filter(doc, selector.Parse("id"), Options{})
	assert.True(t, res.Applied)
	assert.Equal(t, map[string]any{"id": 1}, out)
}

func TestTreeCache(t *testing.T) {
	c := NewTreeCache(2)
	a := c.Parse("a")
	require.Same(t, a, c.Parse("a"))
	c.Parse("b")
	c.Parse("c")
	assert.Equal(t, 2, c.Len())
	assert.NotSame(t, a, c.Parse("a"), "a should have been evicted")

	var nilCache *TreeCache
	assert.Equal(t, "x{y}", nilCache.Parse("x{y}").String())
	assert.Equal(t, 0, nilCache.Len())
	assert.Nil(t, NewTreeCache(0))
}

func TestTreeCache_Concurrent(t *testing.T) {
	c := NewTreeCache(8)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sel := []string{"a", "b{c}", "d.limit(1)"}[i%3]
			if got := c.Parse(sel).String(); got != sel {
				t.Errorf("Parse(%q)=%q", sel, got)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 3)
}
