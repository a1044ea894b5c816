package httpclient

import "github.com/tansive/flightctl-mcp/internal/common/apperrors"

var (
	ErrTransport      apperrors.Error = apperrors.ErrAPI.New("transport failure").SetTag(apperrors.TagTransportFailure)
	ErrHTTPStatus     apperrors.Error = apperrors.ErrAPI.New("unexpected response status")
	ErrInvalidRequest apperrors.Error = apperrors.ErrAPI.New("invalid request")
	ErrUnauthorized   apperrors.Error = apperrors.ErrAuthentication.New("request unauthorized after token refresh").SetTag(apperrors.TagUnauthorized)
	ErrCredentials    apperrors.Error = apperrors.ErrAuthentication.New("unable to obtain bearer token")
	ErrTLSConfig      apperrors.Error = apperrors.ErrFlightControl.New("invalid TLS configuration").SetTag(apperrors.TagConfiguration)
)
