// Package mcpserver exposes the Flight Control query and console operations as
// MCP tools and serves them over stdio, SSE or streamable HTTP.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdlog "log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tansive/flightctl-mcp/internal/common/middleware"
	"github.com/tansive/flightctl-mcp/internal/config"
)

// ServerName is announced to MCP clients.
const ServerName = "flightctl-mcp"

// Version is set at build time.
var Version = "dev"

const shutdownTimeout = 10 * time.Second

// Server is the MCP tool server.
type Server struct {
	mcp    *server.MCPServer
	logger zerolog.Logger
	stdin  io.Reader
	stdout io.Writer
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithStdio replaces os.Stdin and os.Stdout for the stdio transport.
func WithStdio(in io.Reader, out io.Writer) Option {
	return func(s *Server) {
		s.stdin = in
		s.stdout = out
	}
}

// NewServer registers every tool against backend.
func NewServer(backend Backend, opts ...Option) *Server {
	s := &Server{
		logger: log.Logger,
		stdin:  os.Stdin,
		stdout: os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = server.NewMCPServer(ServerName, Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	h := &handlers{backend: backend, logger: s.logger}
	for _, t := range queryTools {
		s.mcp.AddTool(t.tool(), h.queryHandler(t))
	}
	s.mcp.AddTool(runCommandTool(), h.runCommand)
	s.logger.Debug().Str("event", "tools_registered").Int("count", len(queryTools)+1).Msg("loaded tools")
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Serve runs the transport selected by cfg until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, cfg config.MCPConfig) error {
	switch cfg.Transport {
	case config.TransportStdio, "":
		return s.serveStdio(ctx)
	case config.TransportSSE, config.TransportStreamableHTTP:
		ln, err := net.Listen("tcp", cfg.Address())
		if err != nil {
			return ErrTransport.MsgErr("unable to listen on "+cfg.Address(), err)
		}
		return s.serveHTTP(ctx, ln, cfg)
	default:
		return ErrTransport.Msg("unsupported transport " + cfg.Transport)
	}
}

func (s *Server) serveStdio(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(stdlog.New(s.logger, "", 0))
	s.logger.Info().Str("event", "server_started").Str("transport", config.TransportStdio).Msg("serving MCP over stdio")
	err := stdio.Listen(ctx, s.stdin, s.stdout)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return ErrTransport.MsgErr("stdio transport failed", err)
	}
	return nil
}

// Handler builds the HTTP router for an SSE or streamable HTTP transport. The
// returned function shuts the transport down.
func (s *Server) Handler(cfg config.MCPConfig) (http.Handler, func(context.Context) error, error) {
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger)
	r.Use(middleware.PanicHandler)
	if cfg.HandleCORS {
		r.Use(handleCORS)
	}
	r.Get("/version", getVersion)
	r.Get("/ready", getReadiness)

	switch cfg.Transport {
	case config.TransportSSE:
		var opts []server.SSEOption
		if cfg.BaseURL != "" {
			opts = append(opts, server.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
		}
		sse := server.NewSSEServer(s.mcp, opts...)
		r.Handle("/sse", sse.SSEHandler())
		r.Handle("/message", sse.MessageHandler())
		return r, sse.Shutdown, nil
	case config.TransportStreamableHTTP:
		path := cfg.Path
		if path == "" {
			path = config.DefaultMCPPath
		}
		streamable := server.NewStreamableHTTPServer(s.mcp, server.WithEndpointPath(path))
		r.Handle(path, streamable)
		return r, streamable.Shutdown, nil
	default:
		return nil, nil, ErrTransport.Msg("transport " + cfg.Transport + " is not served over HTTP")
	}
}

func (s *Server) serveHTTP(ctx context.Context, ln net.Listener, cfg config.MCPConfig) error {
	handler, closeTransport, err := s.Handler(cfg)
	if err != nil {
		ln.Close()
		return err
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.logger.WithContext(context.Background()) },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info().Str("event", "server_started").
		Str("transport", cfg.Transport).
		Str("address", ln.Addr().String()).
		Str("path", cfg.Path).
		Msg("serving MCP over HTTP")

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return ErrTransport.MsgErr("http transport failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Str("event", "server_stopping").Msg("shutting down MCP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := closeTransport(shutdownCtx); err != nil {
		s.logger.Warn().Err(err).Msg("error closing transport")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("error shutting down server")
		return ErrTransport.MsgErr("shutdown failed", err)
	}
	return nil
}

func handleCORS(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Mcp-Session-Id", "Mcp-Protocol-Version", "Last-Event-ID"},
		ExposedHeaders:   []string{"Mcp-Session-Id", middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	})(next)
}

func getVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"name": ServerName, "version": Version})
}

func getReadiness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
