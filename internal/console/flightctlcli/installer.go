// Package flightctlcli drives the flightctl command line client. It locates or
// downloads the binary and opens console sessions through it.
package flightctlcli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultAttempts = 3
	DefaultDelay    = 1 * time.Second

	artifactsHostPrefix = "cli-artifacts."
)

// DefaultInstallDir returns ~/.local/bin.
func DefaultInstallDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".local", "bin")
	}
	return filepath.Join(home, ".local", "bin")
}

// ArtifactURL returns the download location of the CLI archive published next
// to the API at apiURL.
func ArtifactURL(apiURL, goos, goarch string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil || u.Hostname() == "" {
		return "", ErrDownload.Msg(fmt.Sprintf("cannot derive artifact host from %q", apiURL))
	}
	host := u.Hostname()
	if _, rest, ok := strings.Cut(host, "api."); ok {
		host = rest
	}
	return fmt.Sprintf("https://%s%s/%s/%s/flightctl-%s-%s.tar.gz",
		artifactsHostPrefix, host, goarch, goos, goos, goarch), nil
}

// Installer finds a usable flightctl binary, downloading it when none is
// installed. The result of the first successful Ensure is cached.
type Installer struct {
	apiURL     string
	installDir string
	goos       string
	goarch     string
	artifact   string
	httpClient *http.Client
	lookPath   func(string) (string, error)
	attempts   uint
	delay      time.Duration
	logger     zerolog.Logger

	mu   sync.Mutex
	path string
}

// InstallerOption customizes an Installer.
type InstallerOption func(*Installer)

// WithInstallDir sets where a downloaded binary is placed.
func WithInstallDir(dir string) InstallerOption {
	return func(i *Installer) {
		if dir != "" {
			i.installDir = dir
		}
	}
}

// WithHTTPClient sets the client used for the download.
func WithHTTPClient(c *http.Client) InstallerOption {
	return func(i *Installer) {
		if c != nil {
			i.httpClient = c
		}
	}
}

// WithArtifactURL overrides the derived download location.
func WithArtifactURL(u string) InstallerOption {
	return func(i *Installer) { i.artifact = u }
}

// WithPlatform overrides the target operating system and architecture.
func WithPlatform(goos, goarch string) InstallerOption {
	return func(i *Installer) {
		i.goos = goos
		i.goarch = goarch
	}
}

// WithRetry sets the download attempts and the initial backoff delay.
func WithRetry(attempts uint, delay time.Duration) InstallerOption {
	return func(i *Installer) {
		if attempts > 0 {
			i.attempts = attempts
		}
		i.delay = delay
	}
}

// WithLookPath replaces exec.LookPath.
func WithLookPath(fn func(string) (string, error)) InstallerOption {
	return func(i *Installer) {
		if fn != nil {
			i.lookPath = fn
		}
	}
}

// WithInstallerLogger sets the logger.
func WithInstallerLogger(l zerolog.Logger) InstallerOption {
	return func(i *Installer) { i.logger = l }
}

// NewInstaller returns an Installer for the deployment serving apiURL.
func NewInstaller(apiURL string, opts ...InstallerOption) *Installer {
	i := &Installer{
		apiURL:     apiURL,
		installDir: DefaultInstallDir(),
		goos:       runtime.GOOS,
		goarch:     runtime.GOARCH,
		httpClient: http.DefaultClient,
		lookPath:   exec.LookPath,
		attempts:   DefaultAttempts,
		delay:      DefaultDelay,
		logger:     log.Logger,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// InstallPath is where a downloaded binary lives.
func (i *Installer) InstallPath() string {
	return filepath.Join(i.installDir, binaryName)
}

// Ensure returns the path of a flightctl binary, looking on PATH, then in the
// install directory, then downloading it.
func (i *Installer) Ensure(ctx context.Context) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.path != "" {
		return i.path, nil
	}

	if p, err := i.lookPath(binaryName); err == nil {
		i.logger.Debug().Str("event", "cli_found").Str("path", p).Msg("using flightctl from PATH")
		i.path = p
		return p, nil
	}

	dest := i.InstallPath()
	if fi, err := os.Stat(dest); err == nil && fi.Mode().IsRegular() && fi.Mode().Perm()&0111 != 0 {
		i.logger.Debug().Str("event", "cli_found").Str("path", dest).Msg("using installed flightctl")
		i.path = dest
		return dest, nil
	}

	src := i.artifact
	if src == "" {
		var err error
		src, err = ArtifactURL(i.apiURL, i.goos, i.goarch)
		if err != nil {
			return "", err
		}
	}
	if err := i.download(ctx, src, dest); err != nil {
		return "", err
	}
	i.logger.Info().Str("event", "cli_installed").Str("path", dest).Str("url", src).Msg("installed flightctl")
	i.path = dest
	return dest, nil
}

func (i *Installer) download(ctx context.Context, src, dest string) error {
	err := retry.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
		if err != nil {
			return retry.Unrecoverable(ErrDownload.MsgErr("invalid artifact url", err))
		}
		resp, err := i.httpClient.Do(req)
		if err != nil {
			return ErrDownload.MsgErr("request failed", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			derr := ErrDownload.Msg(fmt.Sprintf("GET %s returned %s", src, resp.Status)).SetStatusCode(resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return retry.Unrecoverable(derr)
			}
			return derr
		}
		if err := extractBinary(resp.Body, dest); err != nil {
			if errors.Is(err, ErrArchive) {
				return retry.Unrecoverable(err)
			}
			return err
		}
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(i.attempts),
		retry.Delay(i.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			i.logger.Warn().Str("event", "cli_download_retry").Uint("attempt", n+1).Err(err).Msg("retrying flightctl download")
		}),
	)
	return err
}
