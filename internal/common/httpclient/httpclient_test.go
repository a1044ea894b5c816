package httpclient

import (
	"context"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/flightctl-mcp/internal/common/apperrors"
	"github.com/tansive/flightctl-mcp/internal/config"
)

func TestDoSetsHeadersAndQuery(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/devices", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "env=prod", r.URL.Query().Get("labelSelector"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"items":[]}`))
	})
	c := NewTestClient(handler, &StaticTokens{Value: "tok"})

	resp, err := c.Get(context.Background(), "/api/v1/devices", url.Values{
		"labelSelector": {"env=prod"},
		"limit":         {"50"},
	})
	require.Nil(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"items":[]}`, string(resp.Body))
}

func TestDoRetriesOnceAfterUnauthorized(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})
	tokens := &StaticTokens{Value: "stale", Refreshed: "fresh"}
	c := NewTestClient(handler, tokens)

	resp, err := c.Get(context.Background(), "/api/v1/fleets", nil)
	require.Nil(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, tokens.ForcedRefreshes())
	assert.Equal(t, []string{"stale"}, tokens.Rejected())
}

func TestDoRepeatedUnauthorized(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	tokens := &StaticTokens{Value: "stale", Refreshed: "still-bad"}
	c := NewTestClient(handler, tokens)

	_, err := c.Get(context.Background(), "/api/v1/fleets", nil)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, apperrors.KindAuthentication, err.Kind())
	assert.Equal(t, apperrors.TagUnauthorized, err.Tag())
	assert.Equal(t, http.StatusUnauthorized, err.StatusCode())
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, tokens.ForcedRefreshes())
}

func TestDoMapsStatusErrors(t *testing.T) {
	longBody := `{"message":"device lookup exploded","detail":"` + strings.Repeat("x", 2000) + `"}`
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"json message", http.StatusInternalServerError, longBody, "device lookup exploded"},
		{"not found", http.StatusNotFound, "", "Not Found"},
		{"forbidden", http.StatusForbidden, "denied", "Forbidden"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			c := NewTestClient(handler, nil)
			_, err := c.Get(context.Background(), "/api/v1/devices/dev1", nil)
			require.NotNil(t, err)
			assert.ErrorIs(t, err, ErrHTTPStatus)
			assert.Equal(t, apperrors.KindAPI, err.Kind())
			assert.Equal(t, tt.status, err.StatusCode())
			assert.Equal(t, tt.wantMsg, err.Error())
			fields := err.Fields()
			assert.Equal(t, "/api/v1/devices/dev1", fields[apperrors.FieldPath])
			if tt.body != "" {
				assert.LessOrEqual(t, len(fields[apperrors.FieldBody].(string)), maxBodyExcerpt+3)
			}
			assert.Equal(t, tt.status == http.StatusNotFound, IsNotFound(err))
		})
	}
}

func TestDoTransportFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	base := ts.URL
	ts.Close()

	logger := zerolog.Nop()
	c, err := NewClient(base, &StaticTokens{Value: "t"}, WithLogger(logger))
	require.NoError(t, err)
	_, appErr := c.Get(context.Background(), "/api/v1/devices", nil)
	require.NotNil(t, appErr)
	assert.ErrorIs(t, appErr, ErrTransport)
	assert.Equal(t, apperrors.KindAPI, appErr.Kind())
	assert.Equal(t, apperrors.TagTransportFailure, appErr.Tag())
}

func TestDoPropagatesTokenErrors(t *testing.T) {
	authErr := apperrors.ErrAuthentication.New("exchange failed").SetTag(apperrors.TagTokenExchange)
	c := NewTestClient(http.NotFoundHandler(), &StaticTokens{Err: authErr})
	_, err := c.Get(context.Background(), "/api/v1/devices", nil)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, authErr)
	assert.Equal(t, apperrors.TagTokenExchange, err.Tag())

	plain := errors.New("boom")
	c = NewTestClient(http.NotFoundHandler(), &StaticTokens{Err: plain})
	_, err = c.Get(context.Background(), "/api/v1/devices", nil)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ErrCredentials)
	assert.ErrorIs(t, err, plain)
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient("not a url", &StaticTokens{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = NewClient("https://api.example.com", nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	c, err := NewClient("https://api.example.com/", &StaticTokens{})
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", c.BaseURL())
}

func writeServerCA(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ca.crt")
	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: ts.Certificate().Raw})
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestTLSPolicies(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()
	ca := writeServerCA(t, ts)

	tests := []struct {
		name    string
		policy  config.TLSPolicy
		wantErr bool
	}{
		{"custom ca", config.ResolveTLSPolicy(ca, false), false},
		{"custom ca wins over insecure", config.ResolveTLSPolicy(ca, true), false},
		{"insecure", config.ResolveTLSPolicy("", true), false},
		{"system store", config.ResolveTLSPolicy("", false), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc, err := NewHTTPClient(tt.policy)
			require.NoError(t, err)
			assert.Equal(t, DefaultTimeout, hc.Timeout)
			resp, err := hc.Get(ts.URL)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			resp.Body.Close()
		})
	}

	tlsCfg, err := TLSConfig(config.ResolveTLSPolicy(ca, true))
	require.NoError(t, err)
	assert.False(t, tlsCfg.InsecureSkipVerify)
	assert.NotNil(t, tlsCfg.RootCAs)
}

func TestTLSConfigRejectsBadCA(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not a certificate"), 0600))
	_, err := NewHTTPClient(config.TLSPolicy{Mode: config.TLSCustomCA, CAPath: bad})
	assert.ErrorIs(t, err, ErrTLSConfig)

	_, err = NewHTTPClient(config.TLSPolicy{Mode: config.TLSCustomCA, CAPath: filepath.Join(t.TempDir(), "missing")})
	assert.ErrorIs(t, err, ErrTLSConfig)
}
