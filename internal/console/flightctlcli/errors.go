package flightctlcli

import "github.com/tansive/flightctl-mcp/internal/common/apperrors"

var (
	ErrCLI             apperrors.Error = apperrors.ErrFlightControl.New("flightctl cli error").SetTag(apperrors.TagChannelFailure)
	ErrCLINotAvailable apperrors.Error = ErrCLI.New("flightctl cli not available")
	ErrDownload        apperrors.Error = ErrCLINotAvailable.New("failed to download flightctl cli")
	ErrArchive         apperrors.Error = ErrCLINotAvailable.New("invalid flightctl cli archive")
	ErrNotExecutable   apperrors.Error = ErrArchive.New("archive entry is not an executable")
	ErrLogin           apperrors.Error = ErrCLI.New("flightctl login failed")
	ErrStart           apperrors.Error = ErrCLI.New("failed to start flightctl console")
	ErrVersion         apperrors.Error = ErrCLI.New("failed to determine flightctl version")
)
