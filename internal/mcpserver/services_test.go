package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/flightctl-mcp/internal/config"
	"github.com/tansive/flightctl-mcp/internal/console/flightctlcli"
	"github.com/tansive/flightctl-mcp/internal/fleetapi"
	"github.com/tansive/flightctl-mcp/internal/query"
)

func newFlightControl(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var exchanges atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		exchanges.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-1",
			"token_type":   "Bearer",
			"expires_in":   300,
		})
	})
	mux.HandleFunc("/api/v1/devices", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"kind":"DeviceList","metadata":{},"items":[{"kind":"Device","metadata":{"name":"edge-1"}}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &exchanges
}

func TestServicesBuildsBackendOnce(t *testing.T) {
	srv, exchanges := newFlightControl(t)
	var loads atomic.Int32
	load := func() (config.Configuration, error) {
		loads.Add(1)
		return config.Configuration{
			APIBaseURL:   srv.URL,
			TokenURL:     srv.URL + "/token",
			ClientID:     "flightctl",
			RefreshToken: "refresh-1",
			TLS:          config.TLSPolicy{Mode: config.TLSSystem},
		}, nil
	}
	s := NewServices(load, config.DefaultServerConfig(), WithServicesLogger(zerolog.Nop()))
	assert.Equal(t, int32(0), loads.Load())

	q, err := s.Querier(context.Background())
	require.NoError(t, err)
	res, err := q.Query(context.Background(), query.Query{Kind: fleetapi.KindDevice})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "edge-1", res.Items[0].GetName())

	q2, err := s.Querier(context.Background())
	require.NoError(t, err)
	assert.Same(t, q, q2)
	_, err = q2.Query(context.Background(), query.Query{Kind: fleetapi.KindDevice})
	require.NoError(t, err)

	assert.Equal(t, int32(1), loads.Load())
	assert.Equal(t, int32(1), exchanges.Load())
}

func TestServicesRetriesFailedLoad(t *testing.T) {
	srv, _ := newFlightControl(t)
	env := map[string]string{}
	nop := zerolog.Nop()
	load := func() (config.Configuration, error) {
		return config.Load(config.LoadOptions{
			ClientFile: t.TempDir() + "/client.yaml",
			LookupEnv: func(k string) (string, bool) {
				v, ok := env[k]
				return v, ok
			},
			Logger: &nop,
		})
	}
	s := NewServices(load, config.DefaultServerConfig(), WithServicesLogger(zerolog.Nop()))

	_, err := s.Querier(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingSetting)
	assert.Contains(t, FormatError(err), "API_BASE_URL not configured")

	env[config.EnvAPIBaseURL] = srv.URL
	env[config.EnvTokenURL] = srv.URL + "/token"
	env[config.EnvRefreshToken] = "refresh-1"

	q, err := s.Querier(context.Background())
	require.NoError(t, err)
	_, err = q.Query(context.Background(), query.Query{Kind: fleetapi.KindDevice})
	assert.NoError(t, err)
}

func TestQuerierDoesNotWaitForCLIDownload(t *testing.T) {
	srv, _ := newFlightControl(t)
	started := make(chan struct{})
	release := make(chan struct{})
	artifacts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(artifacts.Close)

	s := NewServices(StaticConfig(config.Configuration{
		APIBaseURL:   srv.URL,
		TokenURL:     srv.URL + "/token",
		ClientID:     "flightctl",
		RefreshToken: "refresh-1",
		TLS:          config.TLSPolicy{Mode: config.TLSSystem},
	}), config.DefaultServerConfig(),
		WithServicesLogger(zerolog.Nop()),
		WithInstallerOptions(
			flightctlcli.WithInstallDir(t.TempDir()),
			flightctlcli.WithArtifactURL(artifacts.URL+"/flightctl.tar.gz"),
			flightctlcli.WithLookPath(func(string) (string, error) { return "", errors.New("not found") }),
			flightctlcli.WithRetry(1, time.Millisecond),
		))

	runnerErr := make(chan error, 1)
	go func() {
		_, err := s.CommandRunner(context.Background())
		runnerErr <- err
	}()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		close(release)
		t.Fatal("download never started")
	}

	queried := make(chan error, 1)
	go func() {
		q, err := s.Querier(context.Background())
		if err == nil {
			_, err = q.Query(context.Background(), query.Query{Kind: fleetapi.KindDevice})
		}
		queried <- err
	}()
	select {
	case err := <-queried:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Error("query blocked behind the CLI download")
	}

	close(release)
	err := <-runnerErr
	require.Error(t, err)
	assert.ErrorIs(t, err, flightctlcli.ErrDownload)

	// a failed build is retried and does not poison the client
	q, err := s.Querier(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, q)
}
