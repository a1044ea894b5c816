package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/flightctl-mcp/internal/common/apperrors"
	"gopkg.in/yaml.v3"
)

func envMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func writeClientFile(t *testing.T, dir string, caPath string) string {
	t.Helper()
	content := `service:
  server: https://api.flightctl.example.com/
  insecureSkipVerify: true
authentication:
  auth-provider:
    name: oidc
    config:
      server: https://auth.example.com/realms/flightctl/
      client-id: custom-client
      refresh-token: file-refresh
      certificate-authority: ` + caPath + `
`
	path := filepath.Join(dir, "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func quietLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func TestLoadFromClientFile(t *testing.T) {
	dir := t.TempDir()
	path := writeClientFile(t, dir, filepath.Join(dir, "missing-ca.crt"))

	cfg, err := Load(LoadOptions{ClientFile: path, LookupEnv: envMap(nil), Logger: quietLogger()})
	require.NoError(t, err)

	assert.Equal(t, "https://api.flightctl.example.com", cfg.APIBaseURL)
	assert.Equal(t, "https://auth.example.com/realms/flightctl/protocol/openid-connect/token", cfg.TokenURL)
	assert.Equal(t, "custom-client", cfg.ClientID)
	assert.Equal(t, "file-refresh", cfg.RefreshToken)
	assert.Equal(t, TLSInsecure, cfg.TLS.Mode)
	assert.Equal(t, "", cfg.TLS.CAPath)
	assert.Equal(t, path, cfg.Source)
}

func TestEnvironmentOverridesClientFile(t *testing.T) {
	dir := t.TempDir()
	path := writeClientFile(t, dir, "")
	ca := filepath.Join(dir, "ca.crt")
	require.NoError(t, os.WriteFile(ca, []byte("pem"), 0600))

	cfg, err := Load(LoadOptions{
		ClientFile: path,
		Logger:     quietLogger(),
		LookupEnv: envMap(map[string]string{
			EnvAPIBaseURL:         "https://other.example.com///",
			EnvTokenURL:           "https://sso.example.com/token",
			EnvClientID:           "env-client",
			EnvRefreshToken:       "env-refresh",
			EnvInsecureSkipVerify: "no",
			EnvCACertPath:         ca,
			EnvLogLevel:           "debug",
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com", cfg.APIBaseURL)
	assert.Equal(t, "https://sso.example.com/token", cfg.TokenURL)
	assert.Equal(t, "env-client", cfg.ClientID)
	assert.Equal(t, "env-refresh", cfg.RefreshToken)
	assert.Equal(t, TLSPolicy{Mode: TLSCustomCA, CAPath: ca}, cfg.TLS)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadWithoutClientFileUsesDefaults(t *testing.T) {
	cfg, err := Load(LoadOptions{
		ClientFile: filepath.Join(t.TempDir(), "absent.yaml"),
		Logger:     quietLogger(),
		LookupEnv: envMap(map[string]string{
			EnvAPIBaseURL:   "https://api.example.com",
			EnvTokenURL:     "https://auth.example.com/realms/r",
			EnvRefreshToken: "rt",
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultClientID, cfg.ClientID)
	assert.Equal(t, TLSSystem, cfg.TLS.Mode)
	assert.Equal(t, "", cfg.Source)
}

func TestLoadMissingSettings(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantMsg string
	}{
		{"no api", map[string]string{EnvTokenURL: "https://a/t", EnvRefreshToken: "r"}, "API_BASE_URL not configured"},
		{"no token url", map[string]string{EnvAPIBaseURL: "https://a", EnvRefreshToken: "r"}, "OIDC_TOKEN_URL not configured"},
		{"no refresh", map[string]string{EnvAPIBaseURL: "https://a", EnvTokenURL: "https://a/t"}, "REFRESH_TOKEN not configured"},
		{"bad url", map[string]string{EnvAPIBaseURL: "not a url", EnvTokenURL: "https://a/t", EnvRefreshToken: "r"}, "API_BASE_URL is not a valid URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(LoadOptions{
				ClientFile: filepath.Join(t.TempDir(), "absent.yaml"),
				LookupEnv:  envMap(tt.env),
				Logger:     quietLogger(),
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.ErrorIs(t, err, ErrConfiguration)
			assert.Equal(t, apperrors.KindFlightControl, apperrors.KindOf(err))
			assert.Equal(t, apperrors.TagConfiguration, apperrors.TagOf(err))
		})
	}
}

func TestLoadRejectsMalformedClientFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte("service: [unterminated"), 0600))
	_, err := Load(LoadOptions{ClientFile: path, LookupEnv: envMap(nil), Logger: quietLogger()})
	assert.ErrorIs(t, err, ErrClientFile)
}

func TestNormalizeTokenURL(t *testing.T) {
	tests := map[string]string{
		"":                                    "",
		"https://h/realms/r":                  "https://h/realms/r/protocol/openid-connect/token",
		"https://h/realms/r/":                 "https://h/realms/r/protocol/openid-connect/token",
		"http://h:8080/auth/realms/flightctl": "http://h:8080/auth/realms/flightctl/protocol/openid-connect/token",
		"https://h/realms/r/protocol/openid-connect/token": "https://h/realms/r/protocol/openid-connect/token",
		"https://h/oauth/token":                            "https://h/oauth/token",
		"https://h/realms/r/extra":                         "https://h/realms/r/extra",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeTokenURL(in), in)
	}
}

func TestResolveTLSPolicyOrder(t *testing.T) {
	assert.Equal(t, TLSPolicy{Mode: TLSCustomCA, CAPath: "/ca", InsecureSkipVerify: true}, ResolveTLSPolicy("/ca", true))
	assert.Equal(t, TLSPolicy{Mode: TLSCustomCA, CAPath: "/ca"}, ResolveTLSPolicy("/ca", false))
	assert.Equal(t, TLSPolicy{Mode: TLSInsecure, InsecureSkipVerify: true}, ResolveTLSPolicy("", true))
	assert.Equal(t, TLSPolicy{Mode: TLSSystem}, ResolveTLSPolicy("", false))
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"true", "TRUE", "1", "yes", " Yes "} {
		assert.True(t, ParseBool(s), s)
	}
	for _, s := range []string{"", "false", "0", "no", "on"} {
		assert.False(t, ParseBool(s), s)
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("FLIGHTCTL_MCP_TEST_SET=fromfile\nFLIGHTCTL_MCP_TEST_NEW=fromfile\n"), 0600))
	t.Setenv("FLIGHTCTL_MCP_TEST_SET", "fromshell")
	t.Cleanup(func() { os.Unsetenv("FLIGHTCTL_MCP_TEST_NEW") })

	require.NoError(t, LoadDotEnv(dir))
	assert.Equal(t, "fromshell", os.Getenv("FLIGHTCTL_MCP_TEST_SET"))
	assert.Equal(t, "fromfile", os.Getenv("FLIGHTCTL_MCP_TEST_NEW"))

	assert.NoError(t, LoadDotEnv(t.TempDir()))
}

func TestLoadServerConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[mcp]
transport = "sse"
port = 9000
handle_cors = true

[query]
page_size = 250

[console]
default_timeout = "30s"
cli_dir = "/opt/flightctl"
`), 0600))

	cfg, err := LoadServerConfig(path, envMap(map[string]string{
		EnvMCPPath:    "/tools",
		EnvMCPBaseURL: "https://mcp.example.com",
	}))
	require.NoError(t, err)
	assert.Equal(t, TransportSSE, cfg.MCP.Transport)
	assert.Equal(t, "127.0.0.1:9000", cfg.MCP.Address())
	assert.Equal(t, "/tools", cfg.MCP.Path)
	assert.Equal(t, "https://mcp.example.com", cfg.MCP.BaseURL)
	assert.True(t, cfg.MCP.HandleCORS)
	assert.Equal(t, 250, cfg.Query.PageSize)
	assert.Equal(t, DefaultMaxPages, cfg.Query.MaxPages)
	assert.Equal(t, 30*time.Second, cfg.Console.DefaultTimeout.Duration)
	assert.Equal(t, MaxCommandTimeout, cfg.Console.MaxTimeout.Duration)
	assert.Equal(t, "/opt/flightctl", cfg.Console.CLIDir)
}

func TestLoadServerConfigEnvAndValidation(t *testing.T) {
	cfg, err := LoadServerConfig("", envMap(map[string]string{
		EnvMCPTransport: "streamable-http",
		EnvMCPHost:      "0.0.0.0",
		EnvMCPPort:      "8123",
	}))
	require.NoError(t, err)
	assert.Equal(t, TransportStreamableHTTP, cfg.MCP.Transport)
	assert.Equal(t, "0.0.0.0:8123", cfg.MCP.Address())
	assert.Equal(t, DefaultMCPPath, cfg.MCP.Path)

	_, err = LoadServerConfig("", envMap(map[string]string{EnvMCPTransport: "websocket"}))
	assert.ErrorIs(t, err, ErrInvalidSetting)

	_, err = LoadServerConfig("", envMap(map[string]string{EnvMCPBaseURL: "not a url"}))
	assert.ErrorIs(t, err, ErrInvalidSetting)

	_, err = LoadServerConfig("", envMap(map[string]string{EnvMCPPort: "eighty"}))
	assert.ErrorIs(t, err, ErrInvalidSetting)

	_, err = LoadServerConfig(filepath.Join(t.TempDir(), "nope.toml"), envMap(nil))
	assert.ErrorIs(t, err, ErrServerConfig)
}

func TestPersistRefreshTokenKeepsOtherKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeClientFile(t, dir, "/etc/ca.crt")

	require.NoError(t, PersistRefreshToken(path, "rotated"))

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), st.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))
	service := doc["service"].(map[string]any)
	assert.Equal(t, "https://api.flightctl.example.com/", service["server"])
	providerConfig := doc["authentication"].(map[string]any)["auth-provider"].(map[string]any)["config"].(map[string]any)
	assert.Equal(t, "rotated", providerConfig["refresh-token"])
	assert.Equal(t, "custom-client", providerConfig["client-id"])

	fresh := filepath.Join(dir, "sub", "client.yaml")
	require.NoError(t, PersistRefreshToken(fresh, "new"))
	assert.ErrorIs(t, PersistRefreshToken("", "x"), ErrPersist)
}

func TestPersistRefreshTokenPreservesLayout(t *testing.T) {
	original := `# written by flightctl login
service:
  server: https://api.flightctl.example.com/
  insecureSkipVerify: false
authentication:
  auth-provider:
    name: oidc
    config:
      client-id: flightctl # default client
      refresh-token: old-token
      server: https://auth.example.com/realms/flightctl
`
	path := filepath.Join(t.TempDir(), ClientFileName)
	require.NoError(t, os.WriteFile(path, []byte(original), 0600))

	require.NoError(t, PersistRefreshToken(path, "new-token"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "# written by flightctl login")
	assert.Contains(t, out, "# default client")
	assert.Contains(t, out, "refresh-token: new-token")
	assert.NotContains(t, out, "old-token")
	assert.Contains(t, out, "insecureSkipVerify: false")

	// key order is unchanged
	order := []string{"service:", "server: https://api", "authentication:", "name: oidc", "client-id:", "refresh-token:", "server: https://auth"}
	last := -1
	for _, key := range order {
		i := strings.Index(out, key)
		require.NotEqual(t, -1, i, key)
		assert.Greater(t, i, last, key)
		last = i
	}
}
