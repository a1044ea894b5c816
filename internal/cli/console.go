package cli

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/cobra"
	"github.com/tansive/flightctl-mcp/internal/console"
	"github.com/tansive/flightctl-mcp/internal/mcpserver"
)

func newConsoleCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "console DEVICE -- COMMAND [ARGS...]",
		Short: "Run a command on a device",
		Long: `Run a command on a device through the flightctl console and print its
output. The process exits with the remote command's exit status.

The command reaches the device as whitespace-separated words, the same way the
run_command_on_device tool sends it. Arguments that contain whitespace, such as
sh -c "ls /tmp", cannot be passed and are rejected.

Examples:
  flightctl-mcp console edge-1 -- df -h
  flightctl-mcp console edge-1 --timeout 2m -- journalctl -u flightctl-agent -n 50`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if at := cmd.ArgsLenAtDash(); at != -1 && at != 1 {
				return mcpserver.ErrInvalidArgument.Msg("expected exactly one device before --")
			}
			command, err := joinCommand(args[1:])
			if err != nil {
				return err
			}
			return runConsole(cmd, args[0], command, timeout)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, fmt.Sprintf("Command timeout (default %s, at most %s)", console.DefaultTimeout, console.MaxTimeout))
	return cmd
}

// joinCommand flattens argv into the whitespace-separated form the console
// channel accepts. Words that would not survive the round trip are rejected.
func joinCommand(argv []string) (string, error) {
	for _, arg := range argv {
		if arg == "" || strings.IndexFunc(arg, unicode.IsSpace) >= 0 {
			return "", mcpserver.ErrInvalidArgument.Msg(fmt.Sprintf(
				"argument %q cannot be sent: device commands are split on whitespace", arg))
		}
	}
	return strings.Join(argv, " "), nil
}

func runConsole(cmd *cobra.Command, device, command string, timeout time.Duration) error {
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
	runner, err := services.CommandRunner(cmd.Context())
	if err != nil {
		return err
	}
	res, err := runner.RunCommand(cmd.Context(), device, command, timeout)
	if err != nil {
		return err
	}
	writeCommandResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), device, res)
	if res.ExitStatus != 0 {
		return &exitError{code: res.ExitStatus}
	}
	return nil
}

func writeCommandResult(out, errOut io.Writer, device string, res *console.Result) {
	if jsonOutput {
		printJSON(out, mcpserver.CommandResult{
			Device:         device,
			ExitStatus:     res.ExitStatus,
			ElapsedSeconds: res.Elapsed.Seconds(),
			Output:         res.Output,
		})
		return
	}
	io.WriteString(out, res.Output)
	if res.Output != "" && !strings.HasSuffix(res.Output, "\n") {
		io.WriteString(out, "\n")
	}
	if res.ExitStatus == 0 {
		okLabel.Fprintf(errOut, "exit status 0 (%s)\n", res.Elapsed.Round(time.Millisecond))
	} else {
		errorLabel.Fprintf(errOut, "exit status %d (%s)\n", res.ExitStatus, res.Elapsed.Round(time.Millisecond))
	}
}
