package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
)

// TestBaseURL is the base URL of clients created with NewTestClient.
const TestBaseURL = "https://flightctl.test"

// recorderTransport serves requests in-process through an httptest recorder.
type recorderTransport struct {
	handler http.Handler
}

func (t recorderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	rr := httptest.NewRecorder()
	t.handler.ServeHTTP(rr, req)
	resp := rr.Result()
	resp.Request = req
	return resp, nil
}

// NewTestClient returns a Client whose requests are served by handler without
// any network I/O.
func NewTestClient(handler http.Handler, tokens TokenSource) *Client {
	if tokens == nil {
		tokens = &StaticTokens{Value: "test-token"}
	}
	c, _ := NewClient(TestBaseURL, tokens, WithHTTPClient(&http.Client{
		Transport: recorderTransport{handler: handler},
	}))
	return c
}

// StaticTokens is a TokenSource for tests. ForceRefresh returns Refreshed (when
// set), records the rejected token and counts invocations.
type StaticTokens struct {
	Value     string
	Refreshed string
	Err       error

	mu       sync.Mutex
	forced   int
	rejected []string
}

func (s *StaticTokens) Token(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	return s.Value, nil
}

func (s *StaticTokens) ForceRefresh(_ context.Context, rejected string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forced++
	s.rejected = append(s.rejected, rejected)
	if s.Err != nil {
		return "", s.Err
	}
	if s.Refreshed != "" {
		s.Value = s.Refreshed
	}
	return s.Value, nil
}

// ForcedRefreshes returns how many times ForceRefresh was called.
func (s *StaticTokens) ForcedRefreshes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forced
}

// Rejected returns the tokens passed to ForceRefresh, in call order.
func (s *StaticTokens) Rejected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.rejected...)
}
