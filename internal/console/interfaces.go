package console

//go:generate mockgen -source=interfaces.go -destination=mock_console.go -package=console

import (
	"context"
	"io"

	"github.com/rs/zerolog"
)

// Handle is everything a Dialer needs to reach a device console.
type Handle struct {
	DeviceID           string
	Server             string
	Token              string
	InsecureSkipVerify bool
	CAPath             string
}

// MarshalZerologObject logs the handle without the bearer token.
func (h Handle) MarshalZerologObject(e *zerolog.Event) {
	e.Str("device_id", h.DeviceID).
		Str("server", h.Server).
		Bool("insecure_skip_verify", h.InsecureSkipVerify).
		Str("ca_path", h.CAPath)
}

// Dialer opens a console channel that runs command on the device.
type Dialer interface {
	Dial(ctx context.Context, h Handle, command string) (Channel, error)
}

// Channel is an open console session.
type Channel interface {
	// Stream copies interleaved stdout and stderr to w until the channel closes
	// and returns the remote exit status.
	Stream(w io.Writer) (int, error)
	// Close releases the channel. Stream returns soon after.
	Close() error
}
