package mcpserver

import (
	"math"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/tansive/flightctl-mcp/internal/console"
)

// Tool argument names.
const (
	ArgLabelSelector  = "label_selector"
	ArgFieldSelector  = "field_selector"
	ArgLimit          = "limit"
	ArgMaxResults     = "max_results"
	ArgDeviceName     = "device_name"
	ArgCommand        = "command"
	ArgTimeoutSeconds = "timeout_seconds"
)

type queryArgs struct {
	LabelSelector string `mapstructure:"label_selector"`
	FieldSelector string `mapstructure:"field_selector"`
	Limit         int    `mapstructure:"limit"`
	MaxResults    int    `mapstructure:"max_results"`
}

type commandArgs struct {
	DeviceName     string  `mapstructure:"device_name"`
	Command        string  `mapstructure:"command"`
	TimeoutSeconds float64 `mapstructure:"timeout_seconds"`
}

// Timeout converts TimeoutSeconds; zero selects the default. Values above
// console.MaxTimeout are capped before conversion so they cannot overflow.
func (a commandArgs) Timeout() time.Duration {
	secs := math.Min(a.TimeoutSeconds, console.MaxTimeout.Seconds())
	return time.Duration(secs * float64(time.Second))
}

// decodeArgs decodes tool arguments into out. Numbers may arrive as JSON
// numbers or strings. Unknown keys are rejected.
func decodeArgs(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return ErrInvalidArgument.MsgErr("unable to decode arguments", err)
	}
	if err := dec.Decode(in); err != nil {
		return ErrInvalidArgument.Msg(strings.ReplaceAll(err.Error(), "\n", " "))
	}
	return nil
}

func decodeQueryArgs(in map[string]any, labelSelectable bool) (queryArgs, error) {
	var a queryArgs
	if !labelSelectable {
		if _, ok := in[ArgLabelSelector]; ok {
			return a, ErrInvalidArgument.Msg(ArgLabelSelector + " is not supported for this resource")
		}
	}
	if err := decodeArgs(in, &a); err != nil {
		return a, err
	}
	if a.Limit < 0 {
		return a, ErrInvalidArgument.Msg(ArgLimit + " must not be negative")
	}
	if a.MaxResults < 0 {
		return a, ErrInvalidArgument.Msg(ArgMaxResults + " must not be negative")
	}
	return a, nil
}

func decodeCommandArgs(in map[string]any) (commandArgs, error) {
	var a commandArgs
	if err := decodeArgs(in, &a); err != nil {
		return a, err
	}
	if strings.TrimSpace(a.DeviceName) == "" {
		return a, ErrInvalidArgument.Msg(ArgDeviceName + " is required")
	}
	if strings.TrimSpace(a.Command) == "" {
		return a, ErrInvalidArgument.Msg(ArgCommand + " is required")
	}
	if math.IsNaN(a.TimeoutSeconds) || math.IsInf(a.TimeoutSeconds, 0) {
		return a, ErrInvalidArgument.Msg(ArgTimeoutSeconds + " must be a finite number")
	}
	if a.TimeoutSeconds < 0 {
		return a, ErrInvalidArgument.Msg(ArgTimeoutSeconds + " must not be negative")
	}
	return a, nil
}
