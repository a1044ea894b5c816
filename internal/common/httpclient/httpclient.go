// Package httpclient is the authenticated transport to the Flight Control API.
// Every request carries a bearer token; a 401 triggers exactly one forced token
// refresh and one retry. Failures are reported as apperrors with the upstream
// status, path and a body excerpt.
package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tansive/flightctl-mcp/internal/common/apperrors"
	"github.com/tidwall/gjson"
)

const maxBodyExcerpt = 512

// TokenSource supplies bearer tokens. auth.Manager implements it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	// ForceRefresh replaces the rejected token, reusing a newer one if present.
	ForceRefresh(ctx context.Context, rejected string) (string, error)
}

// RequestOptions describes one API call.
type RequestOptions struct {
	Method string     // defaults to GET
	Path   string     // joined onto the API base URL
	Query  url.Values // optional query parameters
}

// Response is a successful (2xx) API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client performs authenticated requests against the API base URL.
type Client struct {
	baseURL    *url.URL
	tokens     TokenSource
	httpClient *http.Client
	logger     zerolog.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying *http.Client, normally from NewHTTPClient.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for request events.
func WithLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient returns a Client rooted at baseURL.
func NewClient(baseURL string, tokens TokenSource, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, ErrInvalidRequest.Msg("invalid API base URL: " + baseURL)
	}
	if tokens == nil {
		return nil, ErrInvalidRequest.Msg("token source is required")
	}
	c := &Client{
		baseURL:    u,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the API base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Tokens returns the token source the client authenticates with.
func (c *Client) Tokens() TokenSource {
	return c.tokens
}

// Do performs the request described by opts and returns the 2xx response.
func (c *Client) Do(ctx context.Context, opts RequestOptions) (*Response, apperrors.Error) {
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}
	var token string
	for attempt := 1; ; attempt++ {
		var err error
		if attempt == 1 {
			token, err = c.tokens.Token(ctx)
		} else {
			token, err = c.tokens.ForceRefresh(ctx, token)
		}
		if err != nil {
			return nil, credentialError(err)
		}

		resp, appErr := c.send(ctx, opts, token, attempt)
		if appErr != nil {
			return nil, appErr
		}
		switch {
		case resp.StatusCode == http.StatusUnauthorized && attempt == 1:
			c.logger.Info().Str("event", "request_unauthorized").
				Str("method", opts.Method).
				Str("path", opts.Path).
				Msg("bearer token rejected, refreshing")
			continue
		case resp.StatusCode == http.StatusUnauthorized:
			c.logFailure(opts, attempt, resp.StatusCode)
			return nil, ErrUnauthorized.
				SetStatusCode(resp.StatusCode).
				With(apperrors.FieldPath, opts.Path).
				With(apperrors.FieldBody, apperrors.Excerpt(resp.Body, maxBodyExcerpt))
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			c.logFailure(opts, attempt, resp.StatusCode)
			return nil, statusError(opts, resp)
		}
		return resp, nil
	}
}

// Get is a shorthand for a GET request.
func (c *Client) Get(ctx context.Context, p string, query url.Values) (*Response, apperrors.Error) {
	return c.Do(ctx, RequestOptions{Method: http.MethodGet, Path: p, Query: query})
}

func (c *Client) send(ctx context.Context, opts RequestOptions, token string, attempt int) (*Response, apperrors.Error) {
	u := *c.baseURL
	u.Path = path.Join("/", c.baseURL.Path, opts.Path)
	u.RawQuery = opts.Query.Encode()

	req, err := http.NewRequestWithContext(ctx, opts.Method, u.String(), nil)
	if err != nil {
		return nil, ErrInvalidRequest.MsgErr("failed to create request", err).With(apperrors.FieldPath, opts.Path)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("event", "request_attempted").
		Str("method", opts.Method).
		Str("path", opts.Path).
		Int("attempt", attempt).
		Msg("api request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Str("event", "request_failed").
			Str("method", opts.Method).
			Str("path", opts.Path).
			Int("attempt", attempt).
			Err(err).
			Msg("transport failure")
		return nil, ErrTransport.MsgErr(opts.Method+" "+opts.Path+" failed", err).
			SetExpandError(true).
			With(apperrors.FieldPath, opts.Path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ErrTransport.MsgErr("failed to read response body", err).
			SetExpandError(true).
			SetStatusCode(resp.StatusCode).
			With(apperrors.FieldPath, opts.Path)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (c *Client) logFailure(opts RequestOptions, attempt, status int) {
	c.logger.Warn().Str("event", "request_failed").
		Str("method", opts.Method).
		Str("path", opts.Path).
		Int("attempt", attempt).
		Int("status_code", status).
		Msg("api request failed")
}

// statusError maps a non-2xx response to an APIError. A JSON "message" field
// becomes the error message.
func statusError(opts RequestOptions, resp *Response) apperrors.Error {
	msg := gjson.GetBytes(resp.Body, "message").String()
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	if msg == "" {
		msg = "unexpected response status"
	}
	return ErrHTTPStatus.Msg(msg).
		SetStatusCode(resp.StatusCode).
		With(apperrors.FieldPath, opts.Path).
		With(apperrors.FieldBody, apperrors.Excerpt(resp.Body, maxBodyExcerpt))
}

func credentialError(err error) apperrors.Error {
	var ae apperrors.Error
	if errors.As(err, &ae) {
		return ae
	}
	return ErrCredentials.Err(err)
}

// IsNotFound reports whether err carries a 404 status.
func IsNotFound(err error) bool {
	var ae apperrors.Error
	return errors.As(err, &ae) && ae.StatusCode() == http.StatusNotFound
}
