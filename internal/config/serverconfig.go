package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// MCP transports.
const (
	TransportStdio          = "stdio"
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable-http"
)

// Environment variables that override the [mcp] section.
const (
	EnvMCPTransport = "MCP_TRANSPORT"
	EnvMCPHost      = "MCP_HOST"
	EnvMCPPort      = "MCP_PORT"
	EnvMCPPath      = "MCP_PATH"
	EnvMCPBaseURL   = "MCP_BASE_URL"
	EnvCLIDir       = "FLIGHTCTL_CLI_DIR"
)

// Defaults for the server settings.
const (
	DefaultMCPHost        = "127.0.0.1"
	DefaultMCPPort        = 8000
	DefaultMCPPath        = "/mcp"
	DefaultPageSize       = 1000
	DefaultMaxPages       = 1000
	DefaultCommandTimeout = 60 * time.Second
	MaxCommandTimeout     = 10 * time.Minute
)

// Duration decodes "90s"-style strings from TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// MCPConfig holds the tool server transport settings.
type MCPConfig struct {
	Transport  string `toml:"transport" validate:"oneof=stdio sse streamable-http"`
	Host       string `toml:"host" validate:"required"`
	Port       int    `toml:"port" validate:"min=1,max=65535"`
	Path       string `toml:"path" validate:"startswith=/"`
	HandleCORS bool   `toml:"handle_cors"`
	// BaseURL is the externally reachable origin advertised to SSE clients.
	// Empty advertises a relative message endpoint.
	BaseURL string `toml:"base_url" validate:"omitempty,url"`
}

// Address returns host:port.
func (m MCPConfig) Address() string {
	return fmt.Sprintf("%s:%d", m.Host, m.Port)
}

// QueryConfig bounds paginated list calls.
type QueryConfig struct {
	PageSize int `toml:"page_size" validate:"min=1,max=1000"`
	MaxPages int `toml:"max_pages" validate:"min=1"`
}

// ConsoleConfig controls remote command execution.
type ConsoleConfig struct {
	DefaultTimeout Duration `toml:"default_timeout"`
	MaxTimeout     Duration `toml:"max_timeout"`
	CLIDir         string   `toml:"cli_dir"`
}

// ServerConfig is the optional TOML file passed with --config.
type ServerConfig struct {
	MCP     MCPConfig     `toml:"mcp"`
	Query   QueryConfig   `toml:"query"`
	Console ConsoleConfig `toml:"console"`
}

// DefaultServerConfig returns the settings used when no file is given.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		MCP: MCPConfig{
			Transport: TransportStdio,
			Host:      DefaultMCPHost,
			Port:      DefaultMCPPort,
			Path:      DefaultMCPPath,
		},
		Query: QueryConfig{
			PageSize: DefaultPageSize,
			MaxPages: DefaultMaxPages,
		},
		Console: ConsoleConfig{
			DefaultTimeout: Duration{DefaultCommandTimeout},
			MaxTimeout:     Duration{MaxCommandTimeout},
		},
	}
}

// LoadServerConfig reads filename (when set) over the defaults, applies MCP_*
// and FLIGHTCTL_CLI_DIR overrides from lookup and validates the result.
func LoadServerConfig(filename string, lookup LookupFunc) (ServerConfig, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg := DefaultServerConfig()
	if filename != "" {
		content, err := os.ReadFile(filename)
		if err != nil {
			return ServerConfig{}, ErrServerConfig.MsgErr("error reading config file "+filename, err)
		}
		if _, err := toml.Decode(string(content), &cfg); err != nil {
			return ServerConfig{}, ErrServerConfig.MsgErr("error parsing config file "+filename, err)
		}
	}

	if v, ok := lookupNonEmpty(lookup, EnvMCPTransport); ok {
		cfg.MCP.Transport = v
	}
	if v, ok := lookupNonEmpty(lookup, EnvMCPHost); ok {
		cfg.MCP.Host = v
	}
	if v, ok := lookupNonEmpty(lookup, EnvMCPPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return ServerConfig{}, ErrInvalidSetting.Msg(EnvMCPPort + " must be a number: " + v)
		}
		cfg.MCP.Port = port
	}
	if v, ok := lookupNonEmpty(lookup, EnvMCPPath); ok {
		cfg.MCP.Path = v
	}
	if v, ok := lookupNonEmpty(lookup, EnvMCPBaseURL); ok {
		cfg.MCP.BaseURL = v
	}
	if v, ok := lookupNonEmpty(lookup, EnvCLIDir); ok {
		cfg.Console.CLIDir = v
	}

	if err := ValidateServerConfig(&cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// ValidateServerConfig fills zero values with defaults and checks ranges.
func ValidateServerConfig(cfg *ServerConfig) error {
	if cfg.MCP.Transport == "" {
		cfg.MCP.Transport = TransportStdio
	}
	if cfg.MCP.Host == "" {
		cfg.MCP.Host = DefaultMCPHost
	}
	if cfg.MCP.Port == 0 {
		cfg.MCP.Port = DefaultMCPPort
	}
	if cfg.MCP.Path == "" {
		cfg.MCP.Path = DefaultMCPPath
	}
	if cfg.Query.PageSize <= 0 {
		cfg.Query.PageSize = DefaultPageSize
	}
	if cfg.Query.MaxPages <= 0 {
		cfg.Query.MaxPages = DefaultMaxPages
	}
	if cfg.Console.DefaultTimeout.Duration <= 0 {
		cfg.Console.DefaultTimeout.Duration = DefaultCommandTimeout
	}
	if cfg.Console.MaxTimeout.Duration <= 0 {
		cfg.Console.MaxTimeout.Duration = MaxCommandTimeout
	}
	if cfg.Console.DefaultTimeout.Duration > cfg.Console.MaxTimeout.Duration {
		return ErrInvalidSetting.Msg("console.default_timeout exceeds console.max_timeout")
	}

	if err := validate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return ErrInvalidSetting.Msg(fmt.Sprintf("%s: invalid value %v (%s)", fe.Namespace(), fe.Value(), fe.Tag()))
		}
		return ErrInvalidSetting.MsgErr("server configuration validation failed", err)
	}
	return nil
}
