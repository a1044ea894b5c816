// Package query lists Flight Control resources. It turns selectors into
// paginated GET requests and follows continuation cursors until the result set
// is complete.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tansive/flightctl-mcp/internal/common/apperrors"
	"github.com/tansive/flightctl-mcp/internal/common/httpclient"
	"github.com/tansive/flightctl-mcp/internal/fleetapi"
)

const (
	DefaultPageSize = 1000
	MaxPageSize     = 1000
	DefaultMaxPages = 1000
)

// Doer performs authenticated API requests. *httpclient.Client implements it.
type Doer interface {
	Do(ctx context.Context, opts httpclient.RequestOptions) (*httpclient.Response, apperrors.Error)
}

// Result is the complete, ordered result of a Query.
type Result struct {
	Kind  fleetapi.Kind
	Items []fleetapi.Resource
	Pages int
}

// Engine runs list queries. It holds no per-call state and is safe for
// concurrent use.
type Engine struct {
	client   Doer
	pageSize int
	maxPages int
	logger   zerolog.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithPageSize sets the page size used when a query does not set Limit.
func WithPageSize(n int) Option {
	return func(e *Engine) { e.pageSize = n }
}

// WithMaxPages bounds how many pages one query may fetch.
func WithMaxPages(n int) Option {
	return func(e *Engine) { e.maxPages = n }
}

// WithLogger sets the logger for query events.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine returns an Engine that issues requests through client.
func NewEngine(client Doer, opts ...Option) *Engine {
	e := &Engine{
		client:   client,
		pageSize: DefaultPageSize,
		maxPages: DefaultMaxPages,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pageSize <= 0 || e.pageSize > MaxPageSize {
		e.pageSize = DefaultPageSize
	}
	if e.maxPages <= 0 {
		e.maxPages = DefaultMaxPages
	}
	return e
}

// Query lists every resource of q.Kind that matches the selectors.
func (e *Engine) Query(ctx context.Context, q Query) (*Result, error) {
	info, ok := q.Kind.Info()
	if !ok {
		return nil, ErrUnsupportedKind.Msg(fmt.Sprintf("unsupported resource kind %q", q.Kind))
	}
	sel := q.Selectors()

	var items []fleetapi.Resource
	var pages int
	var err error
	switch q.Kind {
	case fleetapi.KindDevice:
		items, pages, err = fetchResources[fleetapi.Device](ctx, e, info, sel)
	case fleetapi.KindFleet:
		items, pages, err = fetchResources[fleetapi.Fleet](ctx, e, info, sel)
	case fleetapi.KindEvent:
		items, pages, err = fetchResources[fleetapi.Event](ctx, e, info, sel)
	case fleetapi.KindEnrollmentRequest:
		items, pages, err = fetchResources[fleetapi.EnrollmentRequest](ctx, e, info, sel)
	case fleetapi.KindRepository:
		items, pages, err = fetchResources[fleetapi.Repository](ctx, e, info, sel)
	case fleetapi.KindResourceSync:
		items, pages, err = fetchResources[fleetapi.ResourceSync](ctx, e, info, sel)
	}
	if err != nil {
		return nil, err
	}
	return &Result{Kind: q.Kind, Items: items, Pages: pages}, nil
}

// Devices lists devices.
func (e *Engine) Devices(ctx context.Context, sel Selectors) ([]fleetapi.Device, error) {
	return typed[fleetapi.Device](ctx, e, fleetapi.KindDevice, sel)
}

// Fleets lists fleets.
func (e *Engine) Fleets(ctx context.Context, sel Selectors) ([]fleetapi.Fleet, error) {
	return typed[fleetapi.Fleet](ctx, e, fleetapi.KindFleet, sel)
}

// Events lists events. Label selectors are rejected.
func (e *Engine) Events(ctx context.Context, sel Selectors) ([]fleetapi.Event, error) {
	return typed[fleetapi.Event](ctx, e, fleetapi.KindEvent, sel)
}

// EnrollmentRequests lists enrollment requests.
func (e *Engine) EnrollmentRequests(ctx context.Context, sel Selectors) ([]fleetapi.EnrollmentRequest, error) {
	return typed[fleetapi.EnrollmentRequest](ctx, e, fleetapi.KindEnrollmentRequest, sel)
}

// Repositories lists repositories.
func (e *Engine) Repositories(ctx context.Context, sel Selectors) ([]fleetapi.Repository, error) {
	return typed[fleetapi.Repository](ctx, e, fleetapi.KindRepository, sel)
}

// ResourceSyncs lists resource syncs.
func (e *Engine) ResourceSyncs(ctx context.Context, sel Selectors) ([]fleetapi.ResourceSync, error) {
	return typed[fleetapi.ResourceSync](ctx, e, fleetapi.KindResourceSync, sel)
}

func typed[T any](ctx context.Context, e *Engine, kind fleetapi.Kind, sel Selectors) ([]T, error) {
	info, _ := kind.Info()
	items, _, err := fetchAll[T](ctx, e, info, sel)
	return items, err
}

func fetchResources[T fleetapi.Resource](ctx context.Context, e *Engine, info fleetapi.KindInfo, sel Selectors) ([]fleetapi.Resource, int, error) {
	items, pages, err := fetchAll[T](ctx, e, info, sel)
	if err != nil {
		return nil, 0, err
	}
	out := make([]fleetapi.Resource, len(items))
	for i := range items {
		out[i] = items[i]
	}
	return out, pages, nil
}

// fetchAll follows continuation cursors and returns every item in arrival
// order. On any failure the partial accumulation is discarded.
func fetchAll[T any](ctx context.Context, e *Engine, info fleetapi.KindInfo, sel Selectors) ([]T, int, error) {
	if err := validateSelectors(info, sel); err != nil {
		return nil, 0, err
	}
	limit := sel.Limit
	if limit <= 0 {
		limit = e.pageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	started := time.Now()
	items := make([]T, 0)
	cursor := sel.Continue
	pages := 0
	for {
		resp, appErr := e.client.Do(ctx, httpclient.RequestOptions{
			Method: http.MethodGet,
			Path:   info.Path(),
			Query:  pageParams(sel, limit, cursor),
		})
		if appErr != nil {
			return nil, 0, appErr
		}
		pages++

		var page fleetapi.List[T]
		if err := json.Unmarshal(resp.Body, &page); err != nil {
			return nil, 0, ErrMalformedResponse.MsgErr(fmt.Sprintf("unable to decode %s page %d", info.Plural, pages), err).
				SetExpandError(true).
				SetStatusCode(resp.StatusCode).
				With(apperrors.FieldResourceKind, info.Plural)
		}
		items = append(items, page.Items...)
		cursor = page.NextCursor()

		e.logger.Debug().Str("event", "query_page").
			Str("kind", info.Plural).
			Int("page", pages).
			Int("items", len(page.Items)).
			Bool("more", cursor != "").
			Msg("page received")

		if sel.MaxItems > 0 && len(items) >= sel.MaxItems {
			items = items[:sel.MaxItems]
			break
		}
		if cursor == "" {
			break
		}
		if pages >= e.maxPages {
			e.logger.Error().Str("event", "query_page").
				Str("kind", info.Plural).
				Int("pages", pages).
				Msg("pagination limit reached with cursor still present")
			return nil, 0, ErrPaginationLimit.Msg(fmt.Sprintf("%s: still paginating after %d pages", info.Plural, pages)).
				With(apperrors.FieldResourceKind, info.Plural)
		}
	}

	e.logger.Info().Str("event", "query_completed").
		Str("kind", info.Plural).
		Int("pages", pages).
		Int("items", len(items)).
		Dur("elapsed", time.Since(started)).
		Msg("query completed")
	return items, pages, nil
}
