package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/netwire/internal/logx"
	"github.com/wesleyorama2/netwire/internal/output"
)

var version = "0.1.0"

// globalOptions holds the flags shared by every command.
type globalOptions struct {
	verbose  bool
	noColor  bool
	format   string
	logLevel string
}

// NewRootCmd builds the command tree. Each call returns fresh commands with
// their own flag state.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:     "netwire",
		Short:   "A terminal HTTP/1.1 client built on raw TCP sockets",
		Version: version,
		Long: `Netwire is a terminal HTTP/1.1 client that talks to servers over its own
TCP transport. Requests run either blocking or driven by a readiness
selector, can be described in YAML or JSON configuration files and can be
repeated as a small benchmark.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			// If no subcommand is provided, print help
			cmd.Help()
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "Enable verbose output")
	pf.BoolVar(&g.noColor, "no-color", false, "Disable colored output")
	pf.StringVarP(&g.format, "output", "o", "text", "Output format: text, json or yaml")
	pf.StringVar(&g.logLevel, "log-level", "warn", "Log level: debug, info, warn or error")

	cmd.AddCommand(
		newGetCmd(g),
		newPostCmd(g),
		newRunCmd(g),
		newBenchCmd(g),
		newServeCmd(g),
	)
	return cmd
}

// Execute runs the command line of the current process with ctx, which
// interrupts requests and bench runs when done.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// logger returns a text logger on the command's stderr.
func (g *globalOptions) logger(cmd *cobra.Command) (*slog.Logger, error) {
	level, err := logx.ParseLevel(g.logLevel)
	if err != nil {
		return nil, err
	}
	return logx.New(cmd.ErrOrStderr(), level), nil
}

// colorless reports whether output to w must be plain text.
func (g *globalOptions) colorless(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return !output.ColorEnabled(g.noColor, f)
	}
	return true
}

func (g *globalOptions) formatter(cmd *cobra.Command) (output.OutputFormat, output.FormatProvider, error) {
	format, err := output.ParseFormat(g.format)
	if err != nil {
		return "", nil, err
	}
	noColor := g.colorless(cmd.OutOrStdout())
	return format, output.GetFormatter(format, g.verbose, noColor), nil
}

// errorf reports a failure on stderr with the error icon.
func (g *globalOptions) errorf(cmd *cobra.Command, format string, args ...interface{}) {
	noColor := g.colorless(cmd.ErrOrStderr())
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", output.ErrorIcon(noColor), fmt.Sprintf(format, args...))
}
