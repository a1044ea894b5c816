package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tansive/flightctl-mcp/internal/common/apperrors"
	"github.com/tansive/flightctl-mcp/internal/config"
	"github.com/tansive/flightctl-mcp/internal/mcpserver"
)

func newServeCmd() *cobra.Command {
	var (
		transport string
		persist   bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Flight Control tools over MCP",
		Long: `Serve the Flight Control tools over MCP.

The transport defaults to stdio. Use --config to point at a server TOML file
selecting sse or streamable-http, or --transport to override it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadServerConfig()
			if err != nil {
				return err
			}
			if transport != "" {
				sc.MCP.Transport = transport
				if err := config.ValidateServerConfig(&sc); err != nil {
					return err
				}
			}

			closer, err := setupLogging(sc.MCP.Transport == config.TransportStdio)
			if err != nil {
				return err
			}
			defer closer.Close()

			logger := log.With().Str("state", "serve").Logger()
			hook, err := rotationHook(persist, logger)
			if err != nil {
				return err
			}
			services := mcpserver.NewServices(loadConfiguration, sc,
				mcpserver.WithRotationHook(hook),
				mcpserver.WithServicesLogger(log.Logger))
			srv := mcpserver.NewServer(services, mcpserver.WithLogger(log.Logger))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info().Str("transport", sc.MCP.Transport).Str("version", mcpserver.Version).Msg("starting server")
			if err := srv.Serve(ctx, sc.MCP); err != nil {
				logger.Error().Str("error", apperrors.Describe(err)).Msg("server failed")
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVarP(&transport, "transport", "t", "", "MCP transport: stdio, sse or streamable-http")
	cmd.Flags().BoolVar(&persist, "persist-refresh-token", false, "Write rotated refresh tokens back to client.yaml")
	return cmd
}

// rotationHook returns the callback run whenever the identity provider issues
// a new refresh token. Without persist the token only lives in the process.
func rotationHook(persist bool, logger zerolog.Logger) (func(string), error) {
	if !persist {
		return func(string) {
			logger.Info().Str("event", "refresh_token_rotated").Bool("persisted", false).
				Msg("refresh token rotated; it will be lost on restart")
		}, nil
	}
	path, err := clientFilePath()
	if err != nil {
		return nil, config.ErrConfiguration.MsgErr("unable to locate client.yaml", err)
	}
	return func(token string) {
		if err := config.PersistRefreshToken(path, token); err != nil {
			logger.Error().Str("event", "refresh_token_rotated").Str("error", apperrors.Describe(err)).
				Msg("unable to persist rotated refresh token")
			return
		}
		logger.Info().Str("event", "refresh_token_rotated").Bool("persisted", true).Str("path", path).
			Msg("rotated refresh token saved")
	}, nil
}
