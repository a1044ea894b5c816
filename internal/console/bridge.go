// Package console runs one command on a managed device through a console
// channel and returns the captured output. Every call is bounded by a timeout
// and releases its channel on every exit path.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tansive/flightctl-mcp/internal/common/apperrors"
	"github.com/tansive/flightctl-mcp/internal/common/httpclient"
	"github.com/tansive/flightctl-mcp/internal/config"
	"github.com/tansive/flightctl-mcp/internal/fleetapi"
)

const (
	DefaultTimeout     = 60 * time.Second
	MaxTimeout         = 10 * time.Minute
	DefaultGracePeriod = 2 * time.Second
)

// Backend is the authenticated API access the bridge needs.
// *httpclient.Client implements it.
type Backend interface {
	Do(ctx context.Context, opts httpclient.RequestOptions) (*httpclient.Response, apperrors.Error)
	BaseURL() string
	Tokens() httpclient.TokenSource
}

// Result is the outcome of a command that ran to completion. A non-zero
// ExitStatus is a result, not an error.
type Result struct {
	Output     string
	ExitStatus int
	Elapsed    time.Duration
}

// Bridge negotiates console sessions and runs commands through a Dialer.
type Bridge struct {
	backend        Backend
	dialer         Dialer
	tls            config.TLSPolicy
	defaultTimeout time.Duration
	maxTimeout     time.Duration
	grace          time.Duration
	logger         zerolog.Logger
}

// Option customizes a Bridge.
type Option func(*Bridge)

// WithTimeouts sets the default and maximum command timeouts.
func WithTimeouts(def, max time.Duration) Option {
	return func(b *Bridge) {
		if def > 0 {
			b.defaultTimeout = def
		}
		if max > 0 {
			b.maxTimeout = max
		}
	}
}

// WithGracePeriod sets how long a timed out command may take to wind down.
func WithGracePeriod(d time.Duration) Option {
	return func(b *Bridge) { b.grace = d }
}

// WithTLSPolicy sets the trust settings forwarded to the channel.
func WithTLSPolicy(p config.TLSPolicy) Option {
	return func(b *Bridge) { b.tls = p }
}

// WithLogger sets the logger for session events.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// NewBridge returns a Bridge that looks devices up through backend and opens
// channels with dialer.
func NewBridge(backend Backend, dialer Dialer, opts ...Option) *Bridge {
	b := &Bridge{
		backend:        backend,
		dialer:         dialer,
		defaultTimeout: DefaultTimeout,
		maxTimeout:     MaxTimeout,
		grace:          DefaultGracePeriod,
		logger:         log.Logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.defaultTimeout > b.maxTimeout {
		b.defaultTimeout = b.maxTimeout
	}
	return b
}

// EffectiveTimeout applies the default to non-positive values and caps the
// result at the maximum.
func (b *Bridge) EffectiveTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		timeout = b.defaultTimeout
	}
	if timeout > b.maxTimeout {
		timeout = b.maxTimeout
	}
	return timeout
}

// RunCommand runs command on deviceID and waits for it to finish or for the
// timeout to elapse.
func (b *Bridge) RunCommand(ctx context.Context, deviceID, command string, timeout time.Duration) (*Result, error) {
	deviceID = strings.TrimSpace(deviceID)
	command = strings.TrimSpace(command)
	if err := validateArgs(deviceID, command); err != nil {
		return nil, err
	}
	timeout = b.EffectiveTimeout(timeout)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	handle, err := b.negotiate(ctx, deviceID)
	if err != nil {
		b.logger.Warn().Str("event", "console_negotiation_failed").
			Str("device_id", deviceID).
			Str("error", apperrors.Describe(err)).
			Msg("console negotiation failed")
		return nil, err
	}

	s := newSession(deviceID, command, handle)
	b.logger.Info().Str("event", "console_session_started").
		Object("handle", handle).
		Dur("timeout", timeout).
		Msg("opening console session")

	ch, err := b.dialer.Dial(ctx, handle, command)
	if err != nil {
		if ctx.Err() != nil {
			return nil, b.interrupted(ctx, s)
		}
		return nil, ErrChannelFailure.MsgErr("unable to open console channel: "+err.Error(), err).
			With(apperrors.FieldDeviceID, deviceID)
	}
	s.channel = ch
	defer s.Close()

	type streamResult struct {
		code int
		err  error
	}
	done := make(chan streamResult, 1)
	go func() {
		code, err := ch.Stream(&s.output)
		done <- streamResult{code, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, ErrChannelFailure.MsgErr("console channel failed: "+r.err.Error(), r.err).
				With(apperrors.FieldDeviceID, deviceID).
				With(apperrors.FieldOutput, s.Output())
		}
		res := &Result{Output: s.Output(), ExitStatus: r.code, Elapsed: s.Elapsed()}
		b.logger.Info().Str("event", "console_session_completed").
			Str("device_id", deviceID).
			Int("exit_status", res.ExitStatus).
			Dur("elapsed", res.Elapsed).
			Int("output_bytes", len(res.Output)).
			Msg("console command finished")
		return res, nil
	case <-ctx.Done():
		s.Close()
		select {
		case <-done:
		case <-time.After(b.grace):
			b.logger.Warn().Str("event", "console_stream_lingering").
				Str("device_id", deviceID).
				Msg("console stream did not stop within the grace period")
		}
		return nil, b.interrupted(ctx, s)
	}
}

// interrupted builds the error for a session cut short by its context.
func (b *Bridge) interrupted(ctx context.Context, s *Session) error {
	base := ErrCommandCancelled
	msg := "console command cancelled"
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		base = ErrCommandTimeout
		msg = fmt.Sprintf("command on %s did not finish within the timeout", s.DeviceID)
	}
	b.logger.Warn().Str("event", "console_session_interrupted").
		Str("device_id", s.DeviceID).
		Dur("elapsed", s.Elapsed()).
		Msg(msg)
	return base.Msg(msg).
		With(apperrors.FieldDeviceID, s.DeviceID).
		With(apperrors.FieldOutput, s.Output())
}

// negotiate confirms the device exists and is reachable and prepares the handle.
// No channel is opened here.
func (b *Bridge) negotiate(ctx context.Context, deviceID string) (Handle, error) {
	resp, appErr := b.backend.Do(ctx, httpclient.RequestOptions{
		Method: http.MethodGet,
		Path:   fleetapi.APIPrefix + "devices/" + deviceID,
	})
	if appErr != nil {
		if httpclient.IsNotFound(appErr) {
			return Handle{}, ErrDeviceNotFound.MsgErr(fmt.Sprintf("device %q not found", deviceID), appErr).
				SetStatusCode(http.StatusNotFound).
				With(apperrors.FieldDeviceID, deviceID)
		}
		return Handle{}, appErr
	}

	var device fleetapi.Device
	if err := json.Unmarshal(resp.Body, &device); err != nil {
		return Handle{}, ErrMalformedDevice.MsgErr("unable to decode device "+deviceID, err).
			SetStatusCode(resp.StatusCode).
			With(apperrors.FieldResourceKind, "devices").
			With(apperrors.FieldDeviceID, deviceID)
	}
	if unreachable, state := device.Unreachable(); unreachable {
		return Handle{}, ErrDeviceOffline.Msg(fmt.Sprintf("device %q is %s", deviceID, state)).
			With(apperrors.FieldDeviceID, deviceID)
	}

	token, err := b.backend.Tokens().Token(ctx)
	if err != nil {
		return Handle{}, err
	}
	return Handle{
		DeviceID:           deviceID,
		Server:             b.backend.BaseURL(),
		Token:              token,
		InsecureSkipVerify: b.tls.InsecureSkipVerify,
		CAPath:             b.tls.CAPath,
	}, nil
}

func validateArgs(deviceID, command string) error {
	if deviceID == "" {
		return ErrInvalidArgument.Msg("device name cannot be empty")
	}
	if command == "" {
		return ErrInvalidArgument.Msg("command cannot be empty")
	}
	if strings.ContainsAny(deviceID, "/?#") {
		return ErrInvalidArgument.Msg(fmt.Sprintf("invalid device name %q", deviceID)).
			With(apperrors.FieldDeviceID, deviceID)
	}
	for _, r := range deviceID {
		if r < 0x20 || r == 0x7f {
			return ErrInvalidArgument.Msg("device name contains control characters")
		}
	}
	return nil
}
