package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"os"
	"time"

	"github.com/tansive/flightctl-mcp/internal/config"
)

// DefaultTimeout bounds every request made with a client from NewHTTPClient.
const DefaultTimeout = 30 * time.Second

// TLSConfig builds the TLS settings for policy. A custom CA replaces the system
// pool; skip-verification applies only when no CA is configured.
func TLSConfig(policy config.TLSPolicy) (*tls.Config, error) {
	switch policy.Mode {
	case config.TLSCustomCA:
		pem, err := os.ReadFile(policy.CAPath)
		if err != nil {
			return nil, ErrTLSConfig.MsgErr("unable to read CA certificate "+policy.CAPath, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, ErrTLSConfig.Msg("no certificates found in " + policy.CAPath)
		}
		return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
	case config.TLSInsecure:
		return &tls.Config{InsecureSkipVerify: true}, nil //nolint:gosec
	default:
		return &tls.Config{MinVersion: tls.VersionTLS12}, nil
	}
}

// NewHTTPClient returns the *http.Client shared by the token manager, the
// backend transport and the CLI downloader.
func NewHTTPClient(policy config.TLSPolicy) (*http.Client, error) {
	tlsConfig, err := TLSConfig(policy)
	if err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig
	return &http.Client{
		Transport: transport,
		Timeout:   DefaultTimeout,
	}, nil
}
