package query

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/flightctl-mcp/internal/common/apperrors"
	"github.com/tansive/flightctl-mcp/internal/common/httpclient"
	"github.com/tansive/flightctl-mcp/internal/fleetapi"
)

// fakeBackend records every request and serves pages from a callback.
type fakeBackend struct {
	mu       sync.Mutex
	requests []*url.URL
	serve    func(w http.ResponseWriter, r *http.Request, n int)
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.URL)
	n := len(f.requests)
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	f.serve(w, r, n)
}

func (f *fakeBackend) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newEngine(t *testing.T, backend *fakeBackend, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	return NewEngine(httpclient.NewTestClient(backend, nil), opts...)
}

func devicePage(names []string, cursor string) string {
	items := ""
	for i, n := range names {
		if i > 0 {
			items += ","
		}
		items += fmt.Sprintf(`{"kind":"Device","metadata":{"name":%q},"status":{"summary":{"status":"Online"}}}`, n)
	}
	meta := "{}"
	if cursor != "" {
		meta = fmt.Sprintf(`{"continue":%q}`, cursor)
	}
	return fmt.Sprintf(`{"apiVersion":"v1alpha1","kind":"DeviceList","metadata":%s,"items":[%s]}`, meta, items)
}

func TestQueryConcatenatesPagesInOrder(t *testing.T) {
	pages := map[string]string{
		"":   devicePage([]string{"d1", "d2"}, "c2"),
		"c2": devicePage([]string{"d3"}, "c3"),
		"c3": devicePage([]string{"d4", "d5"}, ""),
	}
	backend := &fakeBackend{serve: func(w http.ResponseWriter, r *http.Request, _ int) {
		_, _ = w.Write([]byte(pages[r.URL.Query().Get(ParamContinue)]))
	}}
	e := newEngine(t, backend)

	res, err := e.Query(context.Background(), Query{
		Kind:          fleetapi.KindDevice,
		LabelSelector: "site=lab",
		FieldSelector: "status.summary.status=Online",
		Limit:         2,
	})
	require.NoError(t, err)
	assert.Equal(t, fleetapi.KindDevice, res.Kind)
	assert.Equal(t, 3, res.Pages)
	require.Len(t, res.Items, 5)
	for i, want := range []string{"d1", "d2", "d3", "d4", "d5"} {
		assert.Equal(t, want, res.Items[i].GetName())
	}

	require.Equal(t, 3, backend.count())
	for i, wantCursor := range []string{"", "c2", "c3"} {
		q := backend.requests[i].Query()
		assert.Equal(t, "/api/v1/devices", backend.requests[i].Path)
		assert.Equal(t, "site=lab", q.Get(ParamLabelSelector))
		assert.Equal(t, "status.summary.status=Online", q.Get(ParamFieldSelector))
		assert.Equal(t, "2", q.Get(ParamLimit))
		assert.Equal(t, wantCursor, q.Get(ParamContinue))
		assert.Equal(t, wantCursor != "", q.Has(ParamContinue))
	}
}

func TestQueryEmptyFirstPage(t *testing.T) {
	backend := &fakeBackend{serve: func(w http.ResponseWriter, _ *http.Request, _ int) {
		_, _ = w.Write([]byte(`{"kind":"FleetList","metadata":{},"items":[]}`))
	}}
	e := newEngine(t, backend)

	res, err := e.Query(context.Background(), Query{Kind: fleetapi.KindFleet})
	require.NoError(t, err)
	assert.NotNil(t, res.Items)
	assert.Empty(t, res.Items)
	assert.Equal(t, 1, res.Pages)

	fleets, err := e.Fleets(context.Background(), Selectors{})
	require.NoError(t, err)
	assert.NotNil(t, fleets)
	assert.Empty(t, fleets)
}

func TestQueryNullItems(t *testing.T) {
	backend := &fakeBackend{serve: func(w http.ResponseWriter, _ *http.Request, _ int) {
		_, _ = w.Write([]byte(`{"items":null}`))
	}}
	devices, err := newEngine(t, backend).Devices(context.Background(), Selectors{})
	require.NoError(t, err)
	assert.NotNil(t, devices)
	assert.Empty(t, devices)
}

func TestQuerySelectorAndLimitRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		sel       Selectors
		wantLimit string
	}{
		{"explicit", Selectors{LabelSelector: "env in (prod,staging),!legacy", FieldSelector: "metadata.name!=edge-1", Limit: 50}, "50"},
		{"default", Selectors{}, "1000"},
		{"clamped", Selectors{Limit: 5000}, "1000"},
		{"negative", Selectors{Limit: -3}, "1000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{serve: func(w http.ResponseWriter, _ *http.Request, _ int) {
				_, _ = w.Write([]byte(`{"items":[]}`))
			}}
			_, err := newEngine(t, backend).Repositories(context.Background(), tt.sel)
			require.NoError(t, err)
			require.Equal(t, 1, backend.count())
			q := backend.requests[0].Query()
			assert.Equal(t, "/api/v1/repositories", backend.requests[0].Path)
			assert.Equal(t, tt.sel.LabelSelector, q.Get(ParamLabelSelector))
			assert.Equal(t, tt.sel.FieldSelector, q.Get(ParamFieldSelector))
			assert.Equal(t, tt.sel.LabelSelector != "", q.Has(ParamLabelSelector))
			assert.Equal(t, tt.sel.FieldSelector != "", q.Has(ParamFieldSelector))
			assert.Equal(t, tt.wantLimit, q.Get(ParamLimit))
		})
	}
}

func TestQueryEngineDefaultPageSize(t *testing.T) {
	backend := &fakeBackend{serve: func(w http.ResponseWriter, _ *http.Request, _ int) {
		_, _ = w.Write([]byte(`{"items":[]}`))
	}}
	_, err := newEngine(t, backend, WithPageSize(200)).ResourceSyncs(context.Background(), Selectors{})
	require.NoError(t, err)
	assert.Equal(t, "200", backend.requests[0].Query().Get(ParamLimit))
	assert.Equal(t, "/api/v1/resourcesyncs", backend.requests[0].Path)
}

func TestQueryPaginationLimit(t *testing.T) {
	backend := &fakeBackend{serve: func(w http.ResponseWriter, _ *http.Request, n int) {
		_, _ = w.Write([]byte(devicePage([]string{fmt.Sprintf("d%d", n)}, fmt.Sprintf("c%d", n))))
	}}
	e := newEngine(t, backend, WithMaxPages(5))

	res, err := e.Query(context.Background(), Query{Kind: fleetapi.KindDevice})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrPaginationLimit)
	assert.Equal(t, apperrors.KindAPI, apperrors.KindOf(err))
	assert.Equal(t, apperrors.TagPaginationLimit, apperrors.TagOf(err))
	assert.Equal(t, "devices", apperrors.FieldsOf(err)[apperrors.FieldResourceKind])
	assert.Equal(t, 5, backend.count())
}

func TestQueryExactlyMaxPagesSucceeds(t *testing.T) {
	backend := &fakeBackend{serve: func(w http.ResponseWriter, _ *http.Request, n int) {
		cursor := ""
		if n < 3 {
			cursor = fmt.Sprintf("c%d", n)
		}
		_, _ = w.Write([]byte(devicePage([]string{fmt.Sprintf("d%d", n)}, cursor)))
	}}
	res, err := newEngine(t, backend, WithMaxPages(3)).Query(context.Background(), Query{Kind: fleetapi.KindDevice})
	require.NoError(t, err)
	assert.Len(t, res.Items, 3)
	assert.Equal(t, 3, res.Pages)
}

func TestQueryMaxItemsStopsEarly(t *testing.T) {
	backend := &fakeBackend{serve: func(w http.ResponseWriter, _ *http.Request, n int) {
		_, _ = w.Write([]byte(devicePage([]string{fmt.Sprintf("a%d", n), fmt.Sprintf("b%d", n)}, fmt.Sprintf("c%d", n))))
	}}
	res, err := newEngine(t, backend).Query(context.Background(), Query{Kind: fleetapi.KindDevice, MaxItems: 3})
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	assert.Equal(t, "a2", res.Items[2].GetName())
	assert.Equal(t, 2, backend.count())
}

func TestQueryTopLevelContinue(t *testing.T) {
	backend := &fakeBackend{serve: func(w http.ResponseWriter, r *http.Request, _ int) {
		if r.URL.Query().Get(ParamContinue) == "" {
			_, _ = w.Write([]byte(`{"continue":"next","items":[{"metadata":{"name":"e1"},"reason":"A"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"items":[{"metadata":{"name":"e2"},"reason":"B"}]}`))
	}}
	events, err := newEngine(t, backend).Events(context.Background(), Selectors{FieldSelector: "involvedObject.kind=Device"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "A", events[0].Reason)
	assert.Equal(t, "B", events[1].Reason)
	assert.Equal(t, 2, backend.count())
}

func TestQueryStartsFromCursor(t *testing.T) {
	backend := &fakeBackend{serve: func(w http.ResponseWriter, _ *http.Request, _ int) {
		_, _ = w.Write([]byte(`{"items":[]}`))
	}}
	_, err := newEngine(t, backend).EnrollmentRequests(context.Background(), Selectors{Continue: "resume-here"})
	require.NoError(t, err)
	assert.Equal(t, "resume-here", backend.requests[0].Query().Get(ParamContinue))
	assert.Equal(t, "/api/v1/enrollmentrequests", backend.requests[0].Path)
}

func TestQueryRejectsInvalidSelectors(t *testing.T) {
	tests := []struct {
		name string
		q    Query
	}{
		{"newline in label", Query{Kind: fleetapi.KindDevice, LabelSelector: "env=prod\nx=y"}},
		{"tab in field", Query{Kind: fleetapi.KindFleet, FieldSelector: "metadata.name=\ta"}},
		{"delete char", Query{Kind: fleetapi.KindRepository, LabelSelector: "a=b\x7f"}},
		{"label on events", Query{Kind: fleetapi.KindEvent, LabelSelector: "env=prod"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{serve: func(w http.ResponseWriter, _ *http.Request, _ int) {
				t.Error("no request expected")
			}}
			_, err := newEngine(t, backend).Query(context.Background(), tt.q)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.Equal(t, apperrors.KindFlightControl, apperrors.KindOf(err))
			assert.Equal(t, apperrors.TagInvalidArgument, apperrors.TagOf(err))
			assert.Equal(t, 0, backend.count())
		})
	}

	_, err := newEngine(t, &fakeBackend{}).Query(context.Background(), Query{Kind: "Pod"})
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}

func TestQueryMalformedResponse(t *testing.T) {
	backend := &fakeBackend{serve: func(w http.ResponseWriter, _ *http.Request, _ int) {
		_, _ = w.Write([]byte(`<html>proxy error</html>`))
	}}
	_, err := newEngine(t, backend).Query(context.Background(), Query{Kind: fleetapi.KindFleet})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Equal(t, apperrors.KindAPI, apperrors.KindOf(err))
	assert.Equal(t, apperrors.TagMalformedResponse, apperrors.TagOf(err))
	fields := apperrors.FieldsOf(err)
	assert.Equal(t, "fleets", fields[apperrors.FieldResourceKind])
	assert.Equal(t, http.StatusOK, fields[apperrors.FieldStatusCode])
}

func TestQueryFailureDiscardsPartialResults(t *testing.T) {
	backend := &fakeBackend{serve: func(w http.ResponseWriter, _ *http.Request, n int) {
		if n == 2 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"database unavailable"}`))
			return
		}
		_, _ = w.Write([]byte(devicePage([]string{"d1"}, "c1")))
	}}
	res, err := newEngine(t, backend).Query(context.Background(), Query{Kind: fleetapi.KindDevice})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, httpclient.ErrHTTPStatus)
	assert.Equal(t, "database unavailable", err.Error())
	assert.Equal(t, http.StatusInternalServerError, apperrors.FieldsOf(err)[apperrors.FieldStatusCode])
}
