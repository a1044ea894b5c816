package auth

import "github.com/tansive/flightctl-mcp/internal/common/apperrors"

var (
	ErrTokenExchange  apperrors.Error = apperrors.ErrAuthentication.New("token exchange failed").SetTag(apperrors.TagTokenExchange)
	ErrRefreshAborted apperrors.Error = ErrTokenExchange.New("token refresh aborted")
	ErrInvalidOptions apperrors.Error = apperrors.ErrFlightControl.New("invalid token manager options").SetTag(apperrors.TagConfiguration)
)
