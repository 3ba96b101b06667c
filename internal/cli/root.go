// Package cli implements the relay command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/macropower/relay/pkg/log"
)

const (
	cmdName = "relay"
	cmdDesc = `Run named commands from a terminal UI, the shell, or an MCP client.`
)

// RootArgs holds the flags shared by every subcommand.
type RootArgs struct {
	shutdownTracing func(context.Context) error

	LogLevel      string
	LogFormat     string
	TraceEndpoint string
}

// NewRootArgs creates [RootArgs].
func NewRootArgs() *RootArgs {
	return &RootArgs{}
}

// AddFlags registers the shared flags on cmd.
func (ra *RootArgs) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVar(&ra.LogLevel, "log-level", "info", fmt.Sprintf("Log level, one of: %s", log.AllLevels))
	cmd.PersistentFlags().
		StringVar(&ra.LogFormat, "log-format", "text", fmt.Sprintf("Log format, one of: %s", log.AllFormats))
	cmd.PersistentFlags().
		StringVar(&ra.TraceEndpoint, "trace-endpoint", "", "OTLP gRPC endpoint URL to export traces to")

	must(cmd.RegisterFlagCompletionFunc("log-format",
		cobra.FixedCompletions(log.AllFormats, cobra.ShellCompDirectiveNoFileComp),
	))
	must(cmd.RegisterFlagCompletionFunc("log-level",
		cobra.FixedCompletions(log.AllLevels, cobra.ShellCompDirectiveNoFileComp),
	))
}

// NewRootCmd creates the relay root command. Without a subcommand it behaves
// like "relay run".
func NewRootCmd() *cobra.Command {
	args := NewRootArgs()
	runArgs := NewRunArgs(args)

	runCmd := NewRunCmd(runArgs)
	listCmd := NewListCmd(runArgs)

	cmd := &cobra.Command{
		Use:                cmdName + " [command] [-- args...]",
		Short:              cmdDesc,
		Example:            cmdExamples,
		PersistentPreRunE:  setup(args),
		PersistentPostRunE: teardown(args),
		ValidArgsFunction:  runCompletion(runArgs),
		Args:               runCmd.Args,
		RunE:               runCmd.RunE,
		SilenceUsage:       true,
	}

	args.AddFlags(cmd)
	runArgs.AddFlags(cmd)
	cmd.AddCommand(runCmd, listCmd)

	bindEnvVars(cmd)

	return cmd
}

func setup(ra *RootArgs) func(cmd *cobra.Command, _ []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		logHandler, err := log.CreateHandlerWithStrings(cmd.ErrOrStderr(), ra.LogLevel, ra.LogFormat)
		if err != nil {
			return fmt.Errorf("create log handler: %w", err)
		}

		slog.SetDefault(slog.New(logHandler))

		ra.shutdownTracing, err = setupTracing(cmd.Context(), ra.TraceEndpoint)
		if err != nil {
			return fmt.Errorf("set up tracing: %w", err)
		}

		return nil
	}
}

func teardown(ra *RootArgs) func(cmd *cobra.Command, _ []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		if ra.shutdownTracing == nil {
			return nil
		}

		if err := ra.shutdownTracing(context.WithoutCancel(cmd.Context())); err != nil {
			return fmt.Errorf("shut down tracing: %w", err)
		}

		return nil
	}
}
