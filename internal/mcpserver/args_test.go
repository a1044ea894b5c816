package mcpserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/flightctl-mcp/internal/common/apperrors"
	"github.com/tansive/flightctl-mcp/internal/console"
)

func TestDecodeCommandArgsTimeout(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want time.Duration
	}{
		{"unset", nil, 0},
		{"number", 30, 30 * time.Second},
		{"fraction string", "1.5", 1500 * time.Millisecond},
		{"above maximum", 1e12, console.MaxTimeout},
		{"largest float", 1.7e308, console.MaxTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := map[string]any{ArgDeviceName: "edge-1", ArgCommand: "uptime"}
			if tt.in != nil {
				in[ArgTimeoutSeconds] = tt.in
			}
			a, err := decodeCommandArgs(in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Timeout())
		})
	}
}

func TestDecodeCommandArgsRejectsNonFiniteTimeout(t *testing.T) {
	for _, v := range []any{"NaN", "Inf", "-Inf"} {
		_, err := decodeCommandArgs(map[string]any{
			ArgDeviceName:     "edge-1",
			ArgCommand:        "uptime",
			ArgTimeoutSeconds: v,
		})
		require.Error(t, err, "timeout %v", v)
		assert.ErrorIs(t, err, ErrInvalidArgument)
		assert.Equal(t, apperrors.TagInvalidArgument, apperrors.TagOf(err))
	}
}

func TestDecodeQueryArgs(t *testing.T) {
	a, err := decodeQueryArgs(map[string]any{ArgLimit: "50", ArgMaxResults: 10}, true)
	require.NoError(t, err)
	assert.Equal(t, queryArgs{Limit: 50, MaxResults: 10}, a)

	_, err = decodeQueryArgs(map[string]any{ArgLabelSelector: "a=b"}, false)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = decodeQueryArgs(map[string]any{"unknown": 1}, true)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
