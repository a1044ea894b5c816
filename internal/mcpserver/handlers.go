package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/tansive/flightctl-mcp/internal/common/apperrors"
	"github.com/tansive/flightctl-mcp/internal/common/logtrace"
	"github.com/tansive/flightctl-mcp/internal/console"
	"github.com/tansive/flightctl-mcp/internal/fleetapi"
	"github.com/tansive/flightctl-mcp/internal/query"
)

// Querier lists resources. *query.Engine implements it.
type Querier interface {
	Query(ctx context.Context, q query.Query) (*query.Result, error)
}

// CommandRunner runs console commands. *console.Bridge implements it.
type CommandRunner interface {
	RunCommand(ctx context.Context, deviceID, command string, timeout time.Duration) (*console.Result, error)
}

// Backend hands out the components behind the tools. Construction may be
// deferred until the first call that needs them.
type Backend interface {
	Querier(ctx context.Context) (Querier, error)
	CommandRunner(ctx context.Context) (CommandRunner, error)
}

// QueryResult is the JSON document returned by the query tools.
type QueryResult struct {
	Kind  fleetapi.Kind       `json:"kind"`
	Count int                 `json:"count"`
	Items []fleetapi.Resource `json:"items"`
}

// CommandResult is the JSON document returned by run_command_on_device.
type CommandResult struct {
	Device         string  `json:"device"`
	ExitStatus     int     `json:"exit_status"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Output         string  `json:"output"`
}

type handlers struct {
	backend Backend
	logger  zerolog.Logger
}

func (h *handlers) queryHandler(t queryTool) server.ToolHandlerFunc {
	info, _ := t.kind.Info()
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logger := h.callLogger(ctx, t.name)
		args, err := decodeQueryArgs(req.GetArguments(), info.LabelSelectable)
		if err != nil {
			return h.errorResult(logger, err), nil
		}
		querier, err := h.backend.Querier(ctx)
		if err != nil {
			return h.errorResult(logger, err), nil
		}
		res, err := querier.Query(ctx, query.Query{
			Kind:          t.kind,
			LabelSelector: args.LabelSelector,
			FieldSelector: args.FieldSelector,
			Limit:         args.Limit,
			MaxItems:      args.MaxResults,
		})
		if err != nil {
			return h.errorResult(logger, err), nil
		}
		items := res.Items
		if items == nil {
			items = []fleetapi.Resource{}
		}
		logger.Info().Str("event", "tool_completed").Int("count", len(items)).Int("pages", res.Pages).Msg("query finished")
		return jsonResult(QueryResult{Kind: res.Kind, Count: len(items), Items: items}, false)
	}
}

func (h *handlers) runCommand(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger := h.callLogger(ctx, ToolRunCommandOnDevice)
	args, err := decodeCommandArgs(req.GetArguments())
	if err != nil {
		return h.errorResult(logger, err), nil
	}
	runner, err := h.backend.CommandRunner(ctx)
	if err != nil {
		return h.errorResult(logger, err), nil
	}
	res, err := runner.RunCommand(ctx, args.DeviceName, args.Command, args.Timeout())
	if err != nil {
		return h.errorResult(logger, err), nil
	}
	logger.Info().Str("event", "tool_completed").Str("device_id", args.DeviceName).Int("exit_status", res.ExitStatus).Msg("command finished")
	return jsonResult(CommandResult{
		Device:         args.DeviceName,
		ExitStatus:     res.ExitStatus,
		ElapsedSeconds: res.Elapsed.Seconds(),
		Output:         res.Output,
	}, res.ExitStatus != 0)
}

func (h *handlers) callLogger(ctx context.Context, tool string) zerolog.Logger {
	c := h.logger.With().Str("tool", tool)
	if id := logtrace.RequestIdFromContext(ctx); id != "" {
		c = c.Str("request_id", id)
	}
	return c.Logger()
}

// errorResult renders err for the caller. Failures are reported in the tool
// result so the model can see them.
func (h *handlers) errorResult(logger zerolog.Logger, err error) *mcp.CallToolResult {
	msg := FormatError(err)
	logger.Warn().Str("event", "tool_failed").
		Str("kind", string(apperrors.KindOf(err))).
		Str("tag", string(apperrors.TagOf(err))).
		Str("error", apperrors.Describe(err)).
		Msg("tool call failed")
	return mcp.NewToolResultError(msg)
}

// FormatError renders err as "<Kind> [<tag>]: <message> (k=v, ...)". Output
// captured before a console timeout is appended.
func FormatError(err error) string {
	msg := apperrors.Describe(err)
	if errors.Is(err, console.ErrCommandTimeout) {
		if out := console.PartialOutput(err); out != "" {
			msg += "\n\npartial output:\n" + out
		}
	}
	return msg
}

func jsonResult(v any, isError bool) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	res := mcp.NewToolResultText(string(b))
	res.IsError = isError
	return res, nil
}
