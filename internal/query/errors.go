package query

import "github.com/tansive/flightctl-mcp/internal/common/apperrors"

var (
	ErrInvalidArgument   apperrors.Error = apperrors.ErrFlightControl.New("invalid query argument").SetTag(apperrors.TagInvalidArgument)
	ErrUnsupportedKind   apperrors.Error = ErrInvalidArgument.New("unsupported resource kind")
	ErrInvalidSelector   apperrors.Error = ErrInvalidArgument.New("invalid selector")
	ErrMalformedResponse apperrors.Error = apperrors.ErrAPI.New("malformed response").SetTag(apperrors.TagMalformedResponse)
	ErrPaginationLimit   apperrors.Error = apperrors.ErrAPI.New("pagination limit exceeded").SetTag(apperrors.TagPaginationLimit)
)
