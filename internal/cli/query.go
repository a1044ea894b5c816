package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tansive/flightctl-mcp/internal/config"
	"github.com/tansive/flightctl-mcp/internal/fleetapi"
	"github.com/tansive/flightctl-mcp/internal/mcpserver"
	"github.com/tansive/flightctl-mcp/internal/query"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"sigs.k8s.io/yaml"
)

// Output formats accepted by -o.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

var kindColumns = map[fleetapi.Kind][]string{
	fleetapi.KindDevice:            {"name", "status", "updated", "applications", "lifecycle", "fleet"},
	fleetapi.KindFleet:             {"name", "selector", "devices", "valid"},
	fleetapi.KindEvent:             {"type", "reason", "object", "message"},
	fleetapi.KindEnrollmentRequest: {"name", "approved", "approver"},
	fleetapi.KindRepository:        {"name", "type", "url", "accessible"},
	fleetapi.KindResourceSync:      {"name", "repository", "synced", "commit"},
}

func newQueryCmd() *cobra.Command {
	var (
		q      query.Query
		output string
	)
	cmd := &cobra.Command{
		Use:   "query KIND",
		Short: "List Flight Control resources",
		Long: `List Flight Control resources of one kind.

KIND is one of devices, fleets, events, enrollmentrequests, repositories or
resourcesyncs. Every page is fetched until the listing is exhausted or
--max-results is reached.

Examples:
  flightctl-mcp query devices -l region=eu
  flightctl-mcp query events --field-selector involvedObject.name=edge-1 -o yaml`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: kindNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := fleetapi.ParseKind(args[0])
			if !ok {
				return mcpserver.ErrInvalidArgument.Msg(fmt.Sprintf("unknown kind %q; expected one of %s", args[0], strings.Join(kindNames(), ", ")))
			}
			q.Kind = kind
			if jsonOutput {
				output = outputJSON
			}
			if err := checkOutputFormat(output); err != nil {
				return err
			}
			return runQuery(cmd, q, output)
		},
	}
	cmd.Flags().StringVarP(&q.LabelSelector, "label-selector", "l", "", "Label selector, e.g. key=value,key!=value")
	cmd.Flags().StringVar(&q.FieldSelector, "field-selector", "", "Field selector, e.g. status.summary.status=Online")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "Items requested per page")
	cmd.Flags().IntVar(&q.MaxItems, "max-results", 0, "Stop after this many items")
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format: table, json or yaml")
	return cmd
}

func runQuery(cmd *cobra.Command, q query.Query, output string) error {
	sc, err := loadServerConfig()
	if err != nil {
		return err
	}
	closer, err := setupLogging(false)
	if err != nil {
		return err
	}
	defer closer.Close()

	services := mcpserver.NewServices(loadConfiguration, sc)
	querier, err := services.Querier(cmd.Context())
	if err != nil {
		return err
	}
	res, err := querier.Query(cmd.Context(), q)
	if err != nil {
		return err
	}
	return writeQueryResult(cmd.OutOrStdout(), res, output)
}

func checkOutputFormat(output string) error {
	switch output {
	case outputTable, outputJSON, outputYAML:
		return nil
	}
	return config.ErrInvalidSetting.Msg(fmt.Sprintf("unsupported output format %q", output))
}

func kindNames() []string {
	var names []string
	for _, ki := range fleetapi.Kinds() {
		names = append(names, ki.Plural)
	}
	return names
}

// writeQueryResult renders res in the requested format. JSON and YAML carry
// the same document as the MCP query tools.
func writeQueryResult(w io.Writer, res *query.Result, output string) error {
	items := res.Items
	if items == nil {
		items = []fleetapi.Resource{}
	}
	doc := mcpserver.QueryResult{Kind: res.Kind, Count: len(items), Items: items}

	switch output {
	case outputJSON:
		printJSON(w, doc)
		return nil
	case outputYAML:
		b, err := yaml.Marshal(doc)
		if err != nil {
			return config.ErrInvalidSetting.MsgErr("unable to encode yaml", err)
		}
		_, err = w.Write(b)
		return err
	}

	if len(items) == 0 {
		info, _ := res.Kind.Info()
		fmt.Fprintf(w, "No %s found.\n", info.Plural)
		return nil
	}
	upper := cases.Upper(language.English)
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	var header []string
	for _, col := range kindColumns[res.Kind] {
		header = append(header, upper.String(col))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, item := range items {
		fmt.Fprintln(tw, strings.Join(tableRow(item), "\t"))
	}
	return tw.Flush()
}

func tableRow(r fleetapi.Resource) []string {
	switch v := r.(type) {
	case fleetapi.Device:
		return []string{v.GetName(), dash(v.SummaryStatus()), dash(v.UpdatedStatus()),
			dash(v.ApplicationsStatus()), dash(v.LifecycleStatus()), dash(v.Fleet())}
	case fleetapi.Fleet:
		return []string{v.GetName(), dash(formatLabels(v.SelectorLabels())),
			strconv.FormatInt(v.DeviceCount(), 10), dash(v.Condition("Valid"))}
	case fleetapi.Event:
		return []string{dash(v.Type), dash(v.Reason),
			v.InvolvedObject.Kind + "/" + v.InvolvedObject.Name, v.Message}
	case fleetapi.EnrollmentRequest:
		return []string{v.GetName(), strconv.FormatBool(v.Approved()), dash(v.Approver())}
	case fleetapi.Repository:
		return []string{v.GetName(), dash(v.Type()), dash(v.URL()), dash(v.Accessible())}
	case fleetapi.ResourceSync:
		return []string{v.GetName(), dash(v.Repository()), dash(v.Synced()), dash(v.ObservedCommit())}
	default:
		return []string{r.GetName()}
	}
}

func formatLabels(labels map[string]string) string {
	pairs := make([]string, 0, len(labels))
	for k, v := range labels {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
