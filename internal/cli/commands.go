// Package cli implements the flightctl-mcp command line.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tansive/flightctl-mcp/internal/common/apperrors"
	"github.com/tansive/flightctl-mcp/internal/common/logtrace"
	"github.com/tansive/flightctl-mcp/internal/config"
	"github.com/tansive/flightctl-mcp/internal/mcpserver"
)

var (
	// Global flags
	jsonOutput       bool
	serverConfigFile string
	clientFile       string
	logLevel         string
)

var ErrAlreadyHandled = errors.New("already handled")

var okLabel = color.New(color.FgGreen)
var errorLabel = color.New(color.FgRed)
var warnLabel = color.New(color.FgYellow)

// exitError carries a remote exit status out of Execute.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("remote command exited with status %d", e.code)
}

var rootCmd = &cobra.Command{
	Use:   "flightctl-mcp [command] [flags]",
	Short: "MCP server for Flight Control",
	Long: `flightctl-mcp exposes Flight Control device management to MCP clients.
It lists devices, fleets, events, enrollment requests, repositories and
resource syncs, and runs commands on devices through the flightctl console.

Configuration is read from ~/.config/flightctl/client.yaml, the environment
and a .env file in the working directory.

Examples:
  # Serve MCP over stdio
  flightctl-mcp serve

  # Serve MCP over streamable HTTP using a server config file
  flightctl-mcp serve --config server.toml

  # List online devices in a fleet
  flightctl-mcp query devices -l fleet=edge --field-selector status.summary.status=Online

  # Run a command on a device
  flightctl-mcp console edge-1 -- uptime`,
	PersistentPreRun: preRunHandlePersistents,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverConfigFile, "config", "", "", "Path to the server TOML configuration")
	rootCmd.PersistentFlags().StringVarP(&clientFile, "client-file", "", "", "Path to client.yaml to override the default")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "", "", "Log level (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newConsoleCmd())
	rootCmd.AddCommand(newConfigCmd())
}

// Execute runs the root command and exits non-zero on failure. A console
// command that ran but exited non-zero exits with the same status.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var exit *exitError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}
	if errors.Is(err, ErrAlreadyHandled) {
		os.Exit(1)
	}
	if jsonOutput {
		printJSON(os.Stdout, map[string]string{
			"error": mcpserver.FormatError(err),
			"kind":  string(apperrors.KindOf(err)),
			"tag":   string(apperrors.TagOf(err)),
		})
	} else {
		errorLabel.Fprintf(os.Stderr, "Error: %s\n", mcpserver.FormatError(err))
	}
	os.Exit(1)
}

// preRunHandlePersistents loads .env before any setting is resolved.
func preRunHandlePersistents(cmd *cobra.Command, args []string) {
	if err := config.LoadDotEnv(""); err != nil {
		warnLabel.Fprintf(os.Stderr, "Warning: unable to load .env: %v\n", err)
	}
}

// setupLogging configures the global logger. When stdout carries the MCP
// protocol, logs go to a file unless LOG_FILE says otherwise. Interactive
// commands log warnings and above to stderr by default.
func setupLogging(protocolOnStdout bool) (io.Closer, error) {
	level := logLevel
	if level == "" {
		level = os.Getenv(config.EnvLogLevel)
	}
	if level == "" && !protocolOnStdout {
		level = "warn"
	}
	file := os.Getenv(config.EnvLogFile)
	if file == "" && protocolOnStdout {
		file = logtrace.DefaultLogFile()
	}
	closer, err := logtrace.InitLogger(level, file)
	if err != nil {
		return nil, config.ErrConfiguration.MsgErr("unable to open log file "+file, err)
	}
	return closer, nil
}

func loadConfiguration() (config.Configuration, error) {
	return config.Load(config.LoadOptions{ClientFile: clientFile})
}

func loadServerConfig() (config.ServerConfig, error) {
	return config.LoadServerConfig(serverConfigFile, nil)
}

// clientFilePath is where rotated refresh tokens are written back.
func clientFilePath() (string, error) {
	if clientFile != "" {
		return clientFile, nil
	}
	return config.DefaultClientFilePath()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of flightctl-mcp",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(cmd.OutOrStdout(), map[string]string{
					"name":    mcpserver.ServerName,
					"version": mcpserver.Version,
				})
				return
			}
			cmd.Printf("%s %s\n", mcpserver.ServerName, mcpserver.Version)
		},
	}
}

// printJSON writes data as indented JSON.
func printJSON(w io.Writer, data any) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("unable to encode output")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintln(w, string(jsonData))
}
