package console

import "github.com/tansive/flightctl-mcp/internal/common/apperrors"

var (
	ErrInvalidArgument  apperrors.Error = apperrors.ErrFlightControl.New("invalid console argument").SetTag(apperrors.TagInvalidArgument)
	ErrDeviceNotFound   apperrors.Error = apperrors.ErrAPI.New("device not found").SetTag(apperrors.TagDeviceNotFound)
	ErrMalformedDevice  apperrors.Error = apperrors.ErrAPI.New("malformed device record").SetTag(apperrors.TagMalformedResponse)
	ErrDeviceOffline    apperrors.Error = apperrors.ErrFlightControl.New("device is not reachable").SetTag(apperrors.TagDeviceOffline)
	ErrChannelFailure   apperrors.Error = apperrors.ErrFlightControl.New("console channel failure").SetTag(apperrors.TagChannelFailure)
	ErrCommandCancelled apperrors.Error = ErrChannelFailure.New("console command cancelled")
	ErrCommandTimeout   apperrors.Error = apperrors.ErrFlightControl.New("console command timed out").SetTag(apperrors.TagCommandTimeout)
)

// PartialOutput returns the output captured before err was raised, if any.
func PartialOutput(err error) string {
	out, _ := apperrors.FieldsOf(err)[apperrors.FieldOutput].(string)
	return out
}
