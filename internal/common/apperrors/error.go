// Package apperrors provides the error taxonomy shared by the backend access layer.
// Errors are chainable: a package derives its own errors from one of the three root
// kinds and every derived error inherits the kind, tag, status code and context
// fields of its parent. It implements the standard error interface and supports
// errors.Is / errors.As across the whole chain.
package apperrors

// Kind identifies which family an error belongs to. Callers switch on the kind to
// decide how to surface a failure.
type Kind string

const (
	KindUnknown        Kind = ""
	KindAuthentication Kind = "AuthenticationError"
	KindAPI            Kind = "APIError"
	KindFlightControl  Kind = "FlightControlError"
)

// Tag narrows a kind down to a stable, machine-readable condition.
type Tag string

const (
	TagNone              Tag = ""
	TagTokenExchange     Tag = "token-exchange"
	TagUnauthorized      Tag = "unauthorized"
	TagTransportFailure  Tag = "transport-failure"
	TagMalformedResponse Tag = "malformed-response"
	TagPaginationLimit   Tag = "pagination-limit"
	TagCommandTimeout    Tag = "command-timeout"
	TagDeviceNotFound    Tag = "device-not-found"
	TagDeviceOffline     Tag = "device-offline"
	TagInvalidArgument   Tag = "invalid-argument"
	TagChannelFailure    Tag = "channel-failure"
	TagConfiguration     Tag = "configuration"
)

// Standard context field keys.
const (
	FieldStatusCode   = "status_code"
	FieldResourceKind = "resource_kind"
	FieldDeviceID     = "device_id"
	FieldPath         = "path"
	FieldBody         = "body"
	FieldOutput       = "output"
)

// Error defines the interface for application errors. It extends the standard error
// interface with additional methods for error wrapping, message manipulation,
// classification and context. All mutating methods return a copy.
type Error interface {
	error
	Unwrap() error // support for errors.Is / errors.As

	New(msg string) Error                  // creates a new error using current as template
	Msg(msg string) Error                  // creates a new error with message and wraps original
	MsgErr(msg string, err ...error) Error // creates error with message and wraps extra errors
	Err(err ...error) Error                // attaches additional errors to current error
	SetExpandError(bool) Error             // controls whether ErrorAll expands wrapped errors
	SetStatusCode(int) Error               // sets the upstream HTTP status code
	StatusCode() int                       // returns the current status code
	SetKind(Kind) Error                    // sets the error family
	Kind() Kind                            // returns the error family
	SetTag(Tag) Error                      // sets the condition tag
	Tag() Tag                              // returns the condition tag
	With(key string, value any) Error      // adds a context field
	Fields() map[string]any                // returns a copy of the context fields
	Prefix(string) Error                   // adds a prefix to the error message
	Suffix(string) Error                   // adds a suffix to the error message
	ErrorAll() string                      // returns full message including wrapped errors
	UnwrapAll() []error                    // returns all wrapped errors
}
