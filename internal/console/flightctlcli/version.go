package flightctlcli

import (
	"context"
	"net/url"
	"os/exec"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/tansive/flightctl-mcp/internal/common/apperrors"
	"github.com/tansive/flightctl-mcp/internal/common/httpclient"
	"github.com/tidwall/gjson"
)

// VersionPath is the API endpoint reporting the service version.
const VersionPath = "/api/version"

var clientVersionRe = regexp.MustCompile(`(?m)^Client Version:\s*(\S+)`)

// ParseClientVersion extracts the client version from `flightctl version` output.
func ParseClientVersion(out string) (*semver.Version, error) {
	m := clientVersionRe.FindStringSubmatch(out)
	if m == nil {
		return nil, ErrVersion.Msg("no client version in output")
	}
	v, err := semver.NewVersion(m[1])
	if err != nil {
		return nil, ErrVersion.MsgErr("invalid client version "+m[1], err)
	}
	return v, nil
}

// Compatible reports whether client and server share major and minor versions.
func Compatible(client, server *semver.Version) bool {
	return client.Major() == server.Major() && client.Minor() == server.Minor()
}

// VersionGetter fetches a path from the service. *httpclient.Client implements it.
type VersionGetter interface {
	Get(ctx context.Context, path string, query url.Values) (*httpclient.Response, apperrors.Error)
}

// ServerVersion asks the service for its version.
func ServerVersion(ctx context.Context, g VersionGetter) (string, error) {
	resp, err := g.Get(ctx, VersionPath, nil)
	if err != nil {
		return "", err
	}
	v := gjson.GetBytes(resp.Body, "version").String()
	if v == "" {
		return "", ErrVersion.Msg("service did not report a version")
	}
	return v, nil
}

// CheckVersion runs `flightctl version` and warns when the client does not
// match serverVersion. A mismatch is not an error.
func (i *Installer) CheckVersion(ctx context.Context, path, serverVersion string) (bool, error) {
	// the command may exit non-zero when no server is configured but still
	// prints the client version
	out, _ := exec.CommandContext(ctx, path, "version").CombinedOutput()
	client, err := ParseClientVersion(string(out))
	if err != nil {
		return false, err
	}
	server, err := semver.NewVersion(serverVersion)
	if err != nil {
		return false, ErrVersion.MsgErr("invalid server version "+serverVersion, err)
	}
	if !Compatible(client, server) {
		i.logger.Warn().
			Str("event", "cli_version_mismatch").
			Str("client_version", client.String()).
			Str("server_version", server.String()).
			Msg("flightctl client and service versions differ")
		return false, nil
	}
	return true, nil
}
