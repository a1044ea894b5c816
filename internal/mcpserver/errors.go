package mcpserver

import "github.com/tansive/flightctl-mcp/internal/common/apperrors"

var (
	ErrInvalidArgument apperrors.Error = apperrors.ErrFlightControl.New("invalid tool argument").SetTag(apperrors.TagInvalidArgument)
	ErrBackend         apperrors.Error = apperrors.ErrFlightControl.New("backend unavailable").SetTag(apperrors.TagConfiguration)
	ErrTransport       apperrors.Error = apperrors.ErrFlightControl.New("mcp transport error")
)
