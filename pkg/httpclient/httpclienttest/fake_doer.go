package httpclienttest

import (
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/r9s-ai/fieldproxy/pkg/httpclient"
)

// Reply is one queued outcome for FakeDoer.Do.
type Reply struct {
	Resp *http.Response
	Err  error
}

// FakeDoer implements httpclient.HTTPDoer so callers can run tests without
// making outbound HTTP requests.
type FakeDoer struct {
	t testing.TB

	mu       sync.Mutex
	replies  []Reply
	requests []*http.Request
	bodies   []string
}

// NewFakeDoer returns a FakeDoer answering each Do call with the next
// response.
func NewFakeDoer(t testing.TB, responses ...*http.Response) *FakeDoer {
	f := &FakeDoer{t: t}
	for _, r := range responses {
		f.replies = append(f.replies, Reply{Resp: r})
	}
	return f
}

// NewFailingDoer returns a FakeDoer whose Do calls fail with err.
func NewFailingDoer(t testing.TB, err error) *FakeDoer {
	return &FakeDoer{t: t, replies: []Reply{{Err: err}}}
}

// Do records the request and its body, then returns the next queued reply.
func (f *FakeDoer) Do(req *http.Request) (*http.Response, error) {
	var body string
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		_ = req.Body.Close()
		body = string(b)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	f.bodies = append(f.bodies, body)
	if len(f.replies) == 0 {
		f.t.Fatalf("fake http client has no responses left for request %s %s", req.Method, req.URL.String())
		return nil, io.EOF
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	if r.Resp != nil && r.Resp.Request == nil {
		r.Resp.Request = req
	}
	return r.Resp, r.Err
}

// Requests returns the HTTP requests captured so far.
func (f *FakeDoer) Requests() []*http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*http.Request(nil), f.requests...)
}

// Bodies returns the request bodies captured so far.
func (f *FakeDoer) Bodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bodies...)
}

// NewStringResponse builds a minimal http.Response with the provided status
// code and body string.
func NewStringResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode:    status,
		Body:          io.NopCloser(strings.NewReader(body)),
		Header:        make(http.Header),
		ContentLength: int64(len(body)),
	}
}

// NewJSONResponse is NewStringResponse with a JSON content type.
func NewJSONResponse(status int, body string) *http.Response {
	resp := NewStringResponse(status, body)
	resp.Header.Set("Content-Type", "application/json; charset=UTF-8")
	return resp
}

var _ httpclient.HTTPDoer = (*FakeDoer)(nil)
