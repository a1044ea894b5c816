// Package config builds the immutable Configuration for the backend access layer
// and the server settings for the MCP process.
//
// Settings are layered: ~/.config/flightctl/client.yaml first, then environment
// variables (optionally seeded from a .env file) on top.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultClientID is used when neither client.yaml nor OIDC_CLIENT_ID set one.
const DefaultClientID = "flightctl"

const tokenEndpointSuffix = "/protocol/openid-connect/token"

var realmBaseURL = regexp.MustCompile(`^https?://.+/realms/[^/]+$`)

// TLSMode selects how server certificates are verified.
type TLSMode string

const (
	TLSSystem   TLSMode = "system"
	TLSCustomCA TLSMode = "custom-ca"
	TLSInsecure TLSMode = "insecure"
)

// TLSPolicy is the trust policy shared by every outbound connection.
type TLSPolicy struct {
	Mode   TLSMode
	CAPath string
	// InsecureSkipVerify records the raw setting so it can be forwarded to the
	// flightctl CLI even when a custom CA takes precedence.
	InsecureSkipVerify bool
}

// Configuration is the resolved backend configuration. It is built once and
// passed by value.
type Configuration struct {
	APIBaseURL   string `validate:"required,url"`
	TokenURL     string `validate:"required,url"`
	ClientID     string `validate:"required"`
	RefreshToken string `validate:"required"`
	TLS          TLSPolicy
	LogLevel     string
	LogFile      string
	Source       string
}

// LoadOptions controls where Load reads from.
type LoadOptions struct {
	// ClientFile overrides the client.yaml location.
	ClientFile string
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv LookupFunc
	// Logger defaults to the global logger.
	Logger *zerolog.Logger
}

// Load builds and validates a Configuration.
func Load(opts LoadOptions) (Configuration, error) {
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	cfg := Configuration{ClientID: DefaultClientID}

	path := opts.ClientFile
	if path == "" {
		var err error
		path, err = DefaultClientFilePath()
		if err != nil {
			logger.Warn().Str("event", "config_client_file").Err(err).Msg("unable to resolve home directory")
		}
	}
	var insecure bool
	if path != "" {
		cf, found, err := readClientFile(path)
		if err != nil {
			return Configuration{}, err
		}
		if found {
			cfg.Source = path
			cfg.APIBaseURL = trimURL(cf.Service.Server)
			insecure = cf.Service.InsecureSkipVerify
			pc := cf.Authentication.AuthProvider.Config
			cfg.TokenURL = trimURL(pc.Server)
			if pc.ClientID != "" {
				cfg.ClientID = pc.ClientID
			}
			cfg.RefreshToken = pc.RefreshToken
			if pc.CertificateAuthority != "" && fileExists(pc.CertificateAuthority) {
				cfg.TLS.CAPath = pc.CertificateAuthority
			}
			logger.Info().Str("event", "config_client_file").Str("path", path).Msg("loaded flightctl client configuration")
		} else {
			logger.Info().Str("event", "config_client_file").Str("path", path).Msg("no flightctl client configuration found")
		}
	}

	if v, ok := lookupNonEmpty(lookup, EnvAPIBaseURL); ok {
		cfg.APIBaseURL = trimURL(v)
	}
	if v, ok := lookupNonEmpty(lookup, EnvTokenURL); ok {
		cfg.TokenURL = trimURL(v)
	}
	if v, ok := lookupNonEmpty(lookup, EnvClientID); ok {
		cfg.ClientID = v
	}
	if v, ok := lookupNonEmpty(lookup, EnvRefreshToken); ok {
		cfg.RefreshToken = v
	}
	if v, ok := lookupNonEmpty(lookup, EnvInsecureSkipVerify); ok {
		insecure = ParseBool(v)
	}
	if v, ok := lookupNonEmpty(lookup, EnvCACertPath); ok {
		if fileExists(v) {
			cfg.TLS.CAPath = v
		} else {
			logger.Warn().Str("event", "config_ca_missing").Str("path", v).Msg("CA_CERT_PATH points to a non-existent file")
		}
	}
	cfg.LogLevel, _ = lookupNonEmpty(lookup, EnvLogLevel)
	cfg.LogFile, _ = lookupNonEmpty(lookup, EnvLogFile)

	cfg.TokenURL = NormalizeTokenURL(cfg.TokenURL)
	cfg.TLS = ResolveTLSPolicy(cfg.TLS.CAPath, insecure)

	if err := cfg.Validate(); err != nil {
		return Configuration{}, err
	}
	logger.Info().Str("event", "config_loaded").
		Str("api", cfg.APIBaseURL).
		Str("tls_mode", string(cfg.TLS.Mode)).
		Msg("configuration loaded")
	return cfg, nil
}

// NormalizeTokenURL trims trailing slashes and turns a realm base URL into its
// token endpoint.
func NormalizeTokenURL(u string) string {
	u = trimURL(u)
	if u == "" || strings.HasSuffix(u, tokenEndpointSuffix) {
		return u
	}
	if realmBaseURL.MatchString(u) {
		return u + tokenEndpointSuffix
	}
	return u
}

// ResolveTLSPolicy applies the trust order: custom CA, then skip-verification,
// then the system store.
func ResolveTLSPolicy(caPath string, insecure bool) TLSPolicy {
	switch {
	case caPath != "":
		return TLSPolicy{Mode: TLSCustomCA, CAPath: caPath, InsecureSkipVerify: insecure}
	case insecure:
		return TLSPolicy{Mode: TLSInsecure, InsecureSkipVerify: true}
	default:
		return TLSPolicy{Mode: TLSSystem}
	}
}

var validate = validator.New()

var settingSource = map[string]string{
	"APIBaseURL":   EnvAPIBaseURL,
	"TokenURL":     EnvTokenURL,
	"ClientID":     EnvClientID,
	"RefreshToken": EnvRefreshToken,
}

// Validate checks that the required settings are present and well formed.
func (c Configuration) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return ErrInvalidSetting.MsgErr("configuration validation failed", err)
	}
	fe := verrs[0]
	env := settingSource[fe.Field()]
	if fe.Tag() == "required" {
		return ErrMissingSetting.Msg(fmt.Sprintf("%s not configured. Set environment variable or run 'flightctl login'", env))
	}
	return ErrInvalidSetting.Msg(fmt.Sprintf("%s is not a valid URL: %v", env, fe.Value()))
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
