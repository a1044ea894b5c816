package mcpserver

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tansive/flightctl-mcp/internal/fleetapi"
)

// Tool names.
const (
	ToolQueryDevices            = "query_devices"
	ToolQueryFleets             = "query_fleets"
	ToolQueryEvents             = "query_events"
	ToolQueryEnrollmentRequests = "query_enrollment_requests"
	ToolQueryRepositories       = "query_repositories"
	ToolQueryResourceSyncs      = "query_resource_syncs"
	ToolRunCommandOnDevice      = "run_command_on_device"
)

type queryTool struct {
	name   string
	kind   fleetapi.Kind
	title  string
	fields []string
}

var commonFields = []string{
	"metadata.creationTimestamp",
	"metadata.name",
	"metadata.owner",
}

var queryTools = []queryTool{
	{
		name:  ToolQueryDevices,
		kind:  fleetapi.KindDevice,
		title: "devices",
		fields: []string{
			"metadata.alias",
			"metadata.creationTimestamp",
			"metadata.name",
			"metadata.nameOrAlias",
			"metadata.owner",
			"status.applicationsSummary.status",
			"status.lastSeen",
			"status.lifecycle.status",
			"status.summary.status",
			"status.updated.status",
		},
	},
	{
		name:   ToolQueryFleets,
		kind:   fleetapi.KindFleet,
		title:  "fleets",
		fields: commonFields,
	},
	{
		name:  ToolQueryEvents,
		kind:  fleetapi.KindEvent,
		title: "events",
		fields: []string{
			"actor",
			"involvedObject.kind",
			"involvedObject.name",
			"metadata.creationTimestamp",
			"metadata.name",
			"metadata.owner",
			"reason",
			"type",
		},
	},
	{
		name:  ToolQueryEnrollmentRequests,
		kind:  fleetapi.KindEnrollmentRequest,
		title: "enrollment requests",
		fields: []string{
			"metadata.creationTimestamp",
			"metadata.name",
			"metadata.owner",
			"status.approval.approved",
			"status.certificate",
		},
	},
	{
		name:   ToolQueryRepositories,
		kind:   fleetapi.KindRepository,
		title:  "repositories",
		fields: commonFields,
	},
	{
		name:  ToolQueryResourceSyncs,
		kind:  fleetapi.KindResourceSync,
		title: "resource syncs",
		fields: []string{
			"metadata.creationTimestamp",
			"metadata.name",
			"metadata.owner",
			"spec.repository",
		},
	},
}

const labelSelectorHelp = `Label selectors filter resources on metadata labels:
- '=': exact match (e.g. "env=prod")
- '!=': not equal (e.g. "tier!=frontend")
- 'in (...)': value is in a list (e.g. "region in (us, eu)")
Multiple requirements are joined with commas and must all match.`

const fieldOperatorsHelp = `Supported operators:
- Existence: <field>, !<field>
- Equality: =, ==, !=
- Comparison: >, >=, <, <=
- Set-based: in (...), notin (...)
- Containment: contains, notcontains`

func (t queryTool) description(labelSelectable bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query Flight Control for %s", t.title)
	if labelSelectable {
		b.WriteString(" using label and field selectors. ")
	} else {
		b.WriteString(" using field selectors. ")
	}
	b.WriteString("All pages are fetched and returned as one JSON document {\"kind\", \"count\", \"items\"}.\n\n")
	if labelSelectable {
		b.WriteString(labelSelectorHelp)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Field selectors filter on resource attributes. Supported fields for %s:\n", t.title)
	for _, f := range t.fields {
		b.WriteString("- ")
		b.WriteString(f)
		b.WriteString("\n")
	}
	b.WriteString(fieldOperatorsHelp)
	return b.String()
}

func (t queryTool) tool() mcp.Tool {
	info, _ := t.kind.Info()
	opts := []mcp.ToolOption{
		mcp.WithDescription(t.description(info.LabelSelectable)),
		mcp.WithTitleAnnotation("Query " + t.title),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	}
	if info.LabelSelectable {
		opts = append(opts, mcp.WithString(ArgLabelSelector,
			mcp.Description(`Label selector, e.g. "location=lab"`)))
	}
	opts = append(opts,
		mcp.WithString(ArgFieldSelector,
			mcp.Description(`Field selector, e.g. "metadata.name=edge-1"`)),
		mcp.WithNumber(ArgLimit,
			mcp.Description("Page size requested from the service (default 1000, at most 1000)"),
			mcp.Min(1),
			mcp.Max(1000)),
		mcp.WithNumber(ArgMaxResults,
			mcp.Description("Stop after this many items (default: no limit)"),
			mcp.Min(1)),
	)
	return mcp.NewTool(t.name, opts...)
}

func runCommandTool() mcp.Tool {
	return mcp.NewTool(ToolRunCommandOnDevice,
		mcp.WithDescription(`Run a Linux command on a managed device through a remote console session
(flightctl console device/<device_name> -- <command>).

Useful for live system information (journalctl, ps, df, cat /proc/meminfo; the device
agent logs are in "journalctl -u flightctl-agent"), diagnostics and quick fixes.
The command is split on whitespace; shell quoting and pipes are not interpreted.
Returns JSON {"device", "exit_status", "elapsed_seconds", "output"} with stdout and
stderr interleaved. A non-zero exit status is reported as an error result that still
carries the output.`),
		mcp.WithTitleAnnotation("Run command on device"),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
		mcp.WithString(ArgDeviceName,
			mcp.Required(),
			mcp.Description("Name of the target device resource")),
		mcp.WithString(ArgCommand,
			mcp.Required(),
			mcp.Description("Command to run on the device")),
		mcp.WithNumber(ArgTimeoutSeconds,
			mcp.Description("Seconds to wait before the session is closed (default 60, at most 600)"),
			mcp.Min(1)),
	)
}
