// Package fieldfilter connects the selector parser and the projector to
// response payloads.
//
// # Host integration
//
// Hosts extract the selection string from a request, hand the decoded
// response (or its raw JSON body) to Filter / FilterJSON, and substitute the
// returned value back into the response. Every failure mode resolves to
// "return the payload unfiltered"; Result.Reason tells the host why.
package fieldfilter

import (
	"bytes"
	"errors"
	"fmt"

	gojson "github.com/goccy/go-json"

	"github.com/r9s-ai/fieldproxy/pkg/jsonutil"
	"github.com/r9s-ai/fieldproxy/pkg/projector"
	"github.com/r9s-ai/fieldproxy/pkg/selector"
)

// Skip reasons reported in Result.Reason.
const (
	ReasonApplied        = "applied"
	ReasonNoSelector     = "no_selector"
	ReasonEmptySelection = "empty_selection"
	ReasonPayloadPath    = "payload_path"
	ReasonNoMatch        = "no_match"
	ReasonDecode         = "decode"
	ReasonEncode         = "encode"
)

// Options controls where the payload lives and how it is walked.
type Options struct {
	// PayloadPath is a restricted JSONPath ("$.data") locating the payload
	// inside the document. Empty means the whole document.
	PayloadPath string
	// EachItem filters every element of a top-level list payload on its own,
	// as collection endpoints return a list of items.
	EachItem bool
	// Indent pretty-prints FilterJSON output.
	Indent string
	// Projector overrides the default projector.
	Projector *projector.Projector
}

// Result describes the outcome of a filter run.
type Result struct {
	Applied bool
	Reason  string
	// Fields is the number of top-level fields in the selection.
	Fields int
}

// Filter applies tree to the payload inside doc and returns the updated
// document. doc may be modified in place when PayloadPath is set. When no
// top-level field of the selection exists, doc is returned as is with
// ReasonNoMatch.
func Filter(doc any, tree *selector.Tree, opts Options) (any, Result) {
	if tree == nil {
		return doc, Result{Reason: ReasonNoSelector}
	}
	if tree.Empty() {
		return doc, Result{Reason: ReasonEmptySelection}
	}
	res := Result{Fields: len(tree.Fields)}

	payload, ok := jsonutil.LookupPath(doc, opts.PayloadPath)
	if !ok {
		res.Reason = ReasonPayloadPath
		return doc, res
	}

	p := opts.Projector
	if p == nil {
		p = projector.New()
	}
	filtered, matched := applyTo(p, tree, payload, opts.EachItem)
	if !matched {
		res.Reason = ReasonNoMatch
		return doc, res
	}

	out, ok := jsonutil.ReplacePath(doc, opts.PayloadPath, filtered)
	if !ok {
		res.Reason = ReasonPayloadPath
		return doc, res
	}
	res.Applied = true
	res.Reason = ReasonApplied
	return out, res
}

func applyTo(p *projector.Projector, tree *selector.Tree, payload any, eachItem bool) (any, bool) {
	if !eachItem {
		return p.Match(tree, payload)
	}
	items, ok := projector.Normalize(payload).([]any)
	if !ok {
		return p.Match(tree, payload)
	}
	out := make([]any, len(items))
	matched := false
	for i, item := range items {
		var hit bool
		out[i], hit = p.Match(tree, item)
		matched = matched || hit
	}
	if !matched {
		return payload, false
	}
	return out, true
}

// FilterJSON parses sel, decodes body, filters it and re-encodes it.
// On any failure the original body is returned together with the reason;
// err is only set for decode and encode failures.
func FilterJSON(body []byte, sel string, opts Options) ([]byte, Result, error) {
	return FilterJSONTree(body, selector.Parse(sel), opts)
}

// FilterJSONTree is FilterJSON with an already parsed tree.
func FilterJSONTree(body []byte, tree *selector.Tree, opts Options) ([]byte, Result, error) {
	if tree.Empty() {
		reason := ReasonEmptySelection
		if tree == nil {
			reason = ReasonNoSelector
		}
		return body, Result{Reason: reason}, nil
	}
	doc, err := Decode(body)
	if err != nil {
		return body, Result{Reason: ReasonDecode, Fields: len(tree.Fields)}, err
	}
	out, res := Filter(doc, tree, opts)
	if !res.Applied {
		return body, res, nil
	}
	b, err := Encode(out, opts.Indent)
	if err != nil {
		res.Applied = false
		res.Reason = ReasonEncode
		return body, res, err
	}
	return b, res, nil
}

// Decode validates a single JSON document and returns it as raw JSON.
// Filter expands it lazily, so parts the selection never touches keep
// their exact bytes.
func Decode(body []byte) (any, error) {
	raw := bytes.TrimSpace(body)
	if !gojson.Valid(raw) {
		var v any
		if err := gojson.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		return nil, errors.New("decode json: trailing data after document")
	}
	return gojson.RawMessage(raw), nil
}

// Encode writes v as JSON without HTML escaping and without a trailing
// newline. Raw JSON is copied verbatim unless indent asks for
// pretty-printing.
func Encode(v any, indent string) ([]byte, error) {
	b, err := jsonutil.AppendJSON(nil, v)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	if indent == "" {
		return b, nil
	}
	var buf bytes.Buffer
	if err := gojson.Indent(&buf, b, "", indent); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return buf.Bytes(), nil
}
