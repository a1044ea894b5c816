package config

import "github.com/tansive/flightctl-mcp/internal/common/apperrors"

var (
	ErrConfiguration  apperrors.Error = apperrors.ErrFlightControl.New("configuration error").SetTag(apperrors.TagConfiguration)
	ErrMissingSetting apperrors.Error = ErrConfiguration.New("required setting missing")
	ErrInvalidSetting apperrors.Error = ErrConfiguration.New("invalid setting")
	ErrClientFile     apperrors.Error = ErrConfiguration.New("unable to read client configuration")
	ErrServerConfig   apperrors.Error = ErrConfiguration.New("unable to load server configuration")
	ErrPersist        apperrors.Error = ErrConfiguration.New("unable to persist refresh token")
)
