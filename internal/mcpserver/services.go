package mcpserver

import (
	"context"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tansive/flightctl-mcp/internal/auth"
	"github.com/tansive/flightctl-mcp/internal/common/apperrors"
	"github.com/tansive/flightctl-mcp/internal/common/httpclient"
	"github.com/tansive/flightctl-mcp/internal/config"
	"github.com/tansive/flightctl-mcp/internal/console"
	"github.com/tansive/flightctl-mcp/internal/console/flightctlcli"
	"github.com/tansive/flightctl-mcp/internal/query"
)

// ConfigLoader resolves the backend configuration.
type ConfigLoader func() (config.Configuration, error)

// StaticConfig returns a loader that always yields cfg.
func StaticConfig(cfg config.Configuration) ConfigLoader {
	return func() (config.Configuration, error) { return cfg, nil }
}

// Services loads the configuration and builds the backend client, query
// engine and console bridge on first use, then shares them across tool calls.
// A failed build is retried on the next call. The flightctl CLI is prepared
// outside mu so query tools never wait on a download.
type Services struct {
	load          ConfigLoader
	server        config.ServerConfig
	onRotate      func(string)
	logger        zerolog.Logger
	installerOpts []flightctlcli.InstallerOption

	// bridgeMu serializes bridge builds; it is always taken before mu.
	bridgeMu sync.Mutex

	mu         sync.Mutex
	cfg        config.Configuration
	httpClient *http.Client
	client     *httpclient.Client
	engine     *query.Engine
	bridge     *console.Bridge
}

// ServicesOption customizes Services.
type ServicesOption func(*Services)

// WithRotationHook is called with each rotated refresh token.
func WithRotationHook(fn func(refreshToken string)) ServicesOption {
	return func(s *Services) { s.onRotate = fn }
}

// WithInstallerOptions adds options applied after the defaults when the
// flightctl CLI installer is created.
func WithInstallerOptions(opts ...flightctlcli.InstallerOption) ServicesOption {
	return func(s *Services) { s.installerOpts = append(s.installerOpts, opts...) }
}

// WithServicesLogger sets the logger passed to every component.
func WithServicesLogger(l zerolog.Logger) ServicesOption {
	return func(s *Services) { s.logger = l }
}

// NewServices returns Services. Neither the configuration nor the backend is
// touched until a tool runs.
func NewServices(load ConfigLoader, sc config.ServerConfig, opts ...ServicesOption) *Services {
	s := &Services{load: load, server: sc, logger: log.Logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client returns the authenticated API client.
func (s *Services) Client(ctx context.Context) (*httpclient.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientLocked()
}

func (s *Services) clientLocked() (*httpclient.Client, error) {
	if s.client != nil {
		return s.client, nil
	}
	cfg, err := s.load()
	if err != nil {
		return nil, err
	}
	hc, err := httpclient.NewHTTPClient(cfg.TLS)
	if err != nil {
		return nil, err
	}
	mgr, err := auth.NewManager(auth.Options{
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		RefreshToken: cfg.RefreshToken,
		HTTPClient:   hc,
		OnRotate:     s.onRotate,
		Logger:       &s.logger,
	})
	if err != nil {
		return nil, ErrBackend.MsgErr("unable to create token manager", err)
	}
	client, err := httpclient.NewClient(cfg.APIBaseURL, mgr,
		httpclient.WithHTTPClient(hc),
		httpclient.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.cfg = cfg
	s.httpClient = hc
	s.client = client
	s.logger.Info().Str("event", "backend_ready").
		Str("api_base_url", cfg.APIBaseURL).
		Str("tls_mode", string(cfg.TLS.Mode)).
		Msg("backend client created")
	return client, nil
}

// Querier implements Backend.
func (s *Services) Querier(ctx context.Context) (Querier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine != nil {
		return s.engine, nil
	}
	client, err := s.clientLocked()
	if err != nil {
		return nil, err
	}
	s.engine = query.NewEngine(client,
		query.WithPageSize(s.server.Query.PageSize),
		query.WithMaxPages(s.server.Query.MaxPages),
		query.WithLogger(s.logger))
	return s.engine, nil
}

// CommandRunner implements Backend. The flightctl CLI is located or
// downloaded here.
func (s *Services) CommandRunner(ctx context.Context) (CommandRunner, error) {
	s.bridgeMu.Lock()
	defer s.bridgeMu.Unlock()

	s.mu.Lock()
	if s.bridge != nil {
		b := s.bridge
		s.mu.Unlock()
		return b, nil
	}
	client, err := s.clientLocked()
	cfg, hc := s.cfg, s.httpClient
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	opts := append([]flightctlcli.InstallerOption{
		flightctlcli.WithInstallDir(s.server.Console.CLIDir),
		flightctlcli.WithHTTPClient(hc),
		flightctlcli.WithInstallerLogger(s.logger),
	}, s.installerOpts...)
	installer := flightctlcli.NewInstaller(cfg.APIBaseURL, opts...)
	cliPath, err := installer.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	s.checkCLIVersion(ctx, installer, client, cliPath)

	bridge := console.NewBridge(client,
		flightctlcli.NewExecutor(cliPath, flightctlcli.WithExecutorLogger(s.logger)),
		console.WithTimeouts(s.server.Console.DefaultTimeout.Duration, s.server.Console.MaxTimeout.Duration),
		console.WithTLSPolicy(cfg.TLS),
		console.WithLogger(s.logger))

	s.mu.Lock()
	s.bridge = bridge
	s.mu.Unlock()
	return bridge, nil
}

func (s *Services) checkCLIVersion(ctx context.Context, installer *flightctlcli.Installer, client *httpclient.Client, cliPath string) {
	serverVersion, err := flightctlcli.ServerVersion(ctx, client)
	if err == nil {
		_, err = installer.CheckVersion(ctx, cliPath, serverVersion)
	}
	if err != nil {
		s.logger.Warn().Str("event", "cli_version_unknown").
			Str("error", apperrors.Describe(err)).
			Msg("unable to compare flightctl and service versions")
	}
}
