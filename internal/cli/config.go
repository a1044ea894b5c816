package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tansive/flightctl-mcp/internal/config"
)

// configView is the printable form of the resolved settings. Secrets are
// redacted.
type configView struct {
	APIBaseURL         string `json:"api_base_url"`
	TokenURL           string `json:"token_url"`
	ClientID           string `json:"client_id"`
	RefreshToken       string `json:"refresh_token"`
	TLSMode            string `json:"tls_mode"`
	CACertPath         string `json:"ca_cert_path,omitempty"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify"`
	Source             string `json:"source,omitempty"`
	Transport          string `json:"transport"`
	Address            string `json:"address,omitempty"`
	Path               string `json:"path,omitempty"`
	PageSize           int    `json:"page_size"`
	MaxPages           int    `json:"max_pages"`
	CommandTimeout     string `json:"command_timeout"`
	MaxCommandTimeout  string `json:"max_command_timeout"`
	CLIDir             string `json:"cli_dir,omitempty"`
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the resolved configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the configuration after merging client.yaml, environment and server config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfiguration()
			if err != nil {
				return err
			}
			sc, err := loadServerConfig()
			if err != nil {
				return err
			}
			view := newConfigView(cfg, sc)
			if jsonOutput {
				printJSON(cmd.OutOrStdout(), view)
				return nil
			}
			return writeConfigView(cmd.OutOrStdout(), view)
		},
	})
	return cmd
}

func newConfigView(cfg config.Configuration, sc config.ServerConfig) configView {
	v := configView{
		APIBaseURL:         cfg.APIBaseURL,
		TokenURL:           cfg.TokenURL,
		ClientID:           cfg.ClientID,
		RefreshToken:       redact(cfg.RefreshToken),
		TLSMode:            string(cfg.TLS.Mode),
		CACertPath:         cfg.TLS.CAPath,
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
		Source:             cfg.Source,
		Transport:          sc.MCP.Transport,
		PageSize:           sc.Query.PageSize,
		MaxPages:           sc.Query.MaxPages,
		CommandTimeout:     sc.Console.DefaultTimeout.String(),
		MaxCommandTimeout:  sc.Console.MaxTimeout.String(),
		CLIDir:             sc.Console.CLIDir,
	}
	if sc.MCP.Transport != config.TransportStdio {
		v.Address = sc.MCP.Address()
		if sc.MCP.Transport == config.TransportStreamableHTTP {
			v.Path = sc.MCP.Path
		}
	}
	return v
}

// redact keeps the last four characters of long secrets.
func redact(secret string) string {
	switch {
	case secret == "":
		return ""
	case len(secret) <= 8:
		return "****"
	default:
		return "****" + secret[len(secret)-4:]
	}
}

func writeConfigView(w io.Writer, v configView) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"API base URL", v.APIBaseURL},
		{"Token URL", v.TokenURL},
		{"Client ID", v.ClientID},
		{"Refresh token", v.RefreshToken},
		{"TLS mode", v.TLSMode},
		{"CA certificate", v.CACertPath},
		{"Insecure skip verify", fmt.Sprint(v.InsecureSkipVerify)},
		{"Source", v.Source},
		{"Transport", v.Transport},
		{"Address", v.Address},
		{"Path", v.Path},
		{"Page size", fmt.Sprint(v.PageSize)},
		{"Max pages", fmt.Sprint(v.MaxPages)},
		{"Command timeout", v.CommandTimeout},
		{"Max command timeout", v.MaxCommandTimeout},
		{"CLI directory", v.CLIDir},
	}
	for _, r := range rows {
		if r[1] == "" {
			continue
		}
		fmt.Fprintf(tw, "%s:\t%s\n", r[0], r[1])
	}
	return tw.Flush()
}
