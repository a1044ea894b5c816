package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables recognized by Load.
const (
	EnvAPIBaseURL         = "API_BASE_URL"
	EnvTokenURL           = "OIDC_TOKEN_URL"
	EnvClientID           = "OIDC_CLIENT_ID"
	EnvRefreshToken       = "REFRESH_TOKEN"
	EnvInsecureSkipVerify = "INSECURE_SKIP_VERIFY"
	EnvCACertPath         = "CA_CERT_PATH"
	EnvLogLevel           = "LOG_LEVEL"
	EnvLogFile            = "LOG_FILE"
)

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// LoadDotEnv loads .env from dir into the process environment. Variables that
// are already set win. A missing file is ignored.
func LoadDotEnv(dir string) error {
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		dir = cwd
	}
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return godotenv.Load(path)
}

// lookupNonEmpty treats an empty variable as unset.
func lookupNonEmpty(lookup LookupFunc, key string) (string, bool) {
	v, ok := lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// ParseBool accepts true/1/yes in any case.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true
	}
	return false
}
