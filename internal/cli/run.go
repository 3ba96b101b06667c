package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/macropower/relay/api"
	"github.com/macropower/relay/pkg/config"
	"github.com/macropower/relay/pkg/dispatch"
	"github.com/macropower/relay/pkg/expr"
	"github.com/macropower/relay/pkg/log"
	"github.com/macropower/relay/pkg/mcp"
	"github.com/macropower/relay/pkg/ui"
	"github.com/macropower/relay/pkg/viewmodel"
)

const (
	cmdExamples = `  # Open the terminal UI:
  relay

  # Run a configured command and print its output:
  relay tests

  # Pass arguments to a command:
  relay sleep -- 5

  # Reload the configuration when it changes:
  relay --watch

  # Serve the commands to MCP clients over HTTP next to the UI:
  relay --serve-mcp localhost:8080

  # Serve the commands to an MCP client over stdio:
  relay --serve-mcp stdio`

	// mcpStdio selects the stdio transport for --serve-mcp.
	mcpStdio = "stdio"
)

// RunArgs holds the flags and arguments of "relay run".
type RunArgs struct {
	*RootArgs

	ConfigPath  string
	Command     string
	ServeMCP    string
	Args        []string
	Watch       bool
	WriteConfig bool
	ShowConfig  bool
}

// NewRunArgs creates [RunArgs].
func NewRunArgs(rootArgs *RootArgs) *RunArgs {
	return &RunArgs{
		RootArgs: rootArgs,
	}
}

// AddFlags registers the run flags on cmd.
func (ra *RunArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ra.ConfigPath, "config", "", "Path to the relay configuration file")
	cmd.Flags().StringVar(&ra.ServeMCP, "serve-mcp", "", `Serve the MCP server at the specified address, or "stdio"`)
	cmd.Flags().BoolVarP(&ra.Watch, "watch", "w", false, "Watch the configuration file and reload it on change")
	cmd.Flags().BoolVar(&ra.WriteConfig, "write-config", false, "Write the default configuration files and exit")
	cmd.Flags().BoolVar(&ra.ShowConfig, "show-config", false, "Print the active configuration and exit")

	must(cmd.MarkFlagFilename("config", "yaml", "yml"))
}

// projectConfigNames are searched for in the working directory and its
// parents when --config is not set.
var projectConfigNames = []string{".relay.yaml", ".relay.yml"}

func (ra *RunArgs) configPath() string {
	if ra.ConfigPath != "" {
		return ra.ConfigPath
	}

	path, err := api.FindConfigFile(".", projectConfigNames...)
	if err != nil {
		slog.Debug("search project config", slog.Any("error", err))
	}

	if path != "" {
		return path
	}

	return config.GetPath()
}

// NewRunCmd creates the "run" command.
func NewRunCmd(ra *RunArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [command] [-- args...]",
		Short: "Default command, can be used explicitly if the command name is ambiguous",
		Long: `Without a command name, relay opens the terminal UI. When stdout is not a
terminal it lists the commands instead. With a command name, relay runs
that command once and prints its output.`,
		Example:           cmdExamples,
		Args:              cobra.ArbitraryArgs,
		ValidArgsFunction: runCompletion(ra),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				ra.Command = args[0]
				ra.Args = args[1:]
			}

			return run(cmd, ra)
		},
	}
	ra.AddFlags(cmd)

	bindEnvVars(cmd)

	return cmd
}

// NewListCmd creates the "list" command.
func NewListCmd(ra *RunArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the available commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, env, err := loadConfig(ra.configPath())
			if err != nil {
				return err
			}

			vm := viewmodel.NewMain()
			if err := vm.LoadConfig(cfg, env); err != nil {
				return fmt.Errorf("load commands: %w", err)
			}

			return listCommands(cmd.OutOrStdout(), vm)
		},
	}

	cmd.Flags().StringVar(&ra.ConfigPath, "config", "", "Path to the relay configuration file")

	bindEnvVars(cmd)

	return cmd
}

func runCompletion(ra *RunArgs) func(*cobra.Command, []string, string) ([]cobra.Completion, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, args []string, _ string) ([]cobra.Completion, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveDefault
		}

		cl, err := config.NewLoaderFromFile(ra.configPath())
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		cfg, err := cl.Load()
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		completions := make([]cobra.Completion, 0, len(cfg.Commands))
		for _, cc := range cfg.Commands {
			completions = append(completions, cobra.CompletionWithDesc(cc.Name, cc.Description))
		}

		return completions, cobra.ShellCompDirectiveNoFileComp
	}
}

func run(cmd *cobra.Command, ra *RunArgs) error {
	configPath := ra.configPath()

	err := config.WriteDefault(configPath, false)
	if err != nil {
		slog.Error("write default config", slog.Any("error", err))
	}

	if ra.WriteConfig {
		// Exit early after writing the default config.
		// Also, if there was an error, it should be fatal.
		return err
	}

	cfg, env, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if ra.ShowConfig {
		slog.Info("active configuration", slog.String("path", configPath))

		b, err := cfg.MarshalYAML()
		if err != nil {
			return fmt.Errorf("marshal config yaml: %w", err)
		}

		mustN(fmt.Fprint(cmd.OutOrStdout(), string(b)))

		return nil
	}

	interactive := ra.Command == "" && ra.ServeMCP != mcpStdio && term.IsTerminal(int(os.Stdout.Fd()))

	if interactive {
		// The UI owns the terminal, so logs are held back until it exits.
		logBuf := log.NewBacklog(log.DefaultBacklogSize)

		logHandler, err := log.CreateHandlerWithStrings(logBuf, ra.LogLevel, ra.LogFormat)
		if err != nil {
			return fmt.Errorf("create log handler: %w", err)
		}

		slog.SetDefault(slog.New(logHandler))

		defer flushLogs(cmd.ErrOrStderr(), logBuf)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	loop := dispatch.NewLoop()
	vm := viewmodel.NewMain(
		viewmodel.WithDispatcher(loop),
		viewmodel.WithContext(ctx),
	)

	if err := vm.LoadConfig(cfg, env); err != nil {
		return fmt.Errorf("load commands: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return loop.Run(ctx)
	})

	if ra.Watch {
		w, err := newConfigWatcher(configPath, env, vm, loop)
		if err != nil {
			return err
		}

		defer func() {
			if err := w.Close(); err != nil {
				slog.Warn("close config watcher", slog.Any("error", err))
			}
		}()

		g.Go(func() error {
			return w.Run(ctx)
		})
	}

	switch {
	case ra.Command != "":
		g.Go(func() error {
			defer cancel()

			return runCommand(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), vm, ra.Command, ra.Args)
		})

	case interactive:
		if ra.ServeMCP != "" {
			serveMCP(ctx, g, ra.ServeMCP, vm)
		}

		g.Go(func() error {
			defer cancel()

			return ui.Run(ctx, cfg.UI, vm)
		})

	case ra.ServeMCP != "":
		// Serve until interrupted.
		serveMCP(ctx, g, ra.ServeMCP, vm)

	default:
		cancel()

		if err := listCommands(cmd.OutOrStdout(), vm); err != nil {
			return err
		}
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func loadConfig(path string) (*config.Config, *expr.Environment, error) {
	cl, err := config.NewLoaderFromFile(path)
	if err != nil {
		slog.Warn("could not read config, using defaults", slog.Any("error", err))

		cl, err = config.NewLoaderFromBytes(config.DefaultYAML())
		if err != nil {
			return nil, nil, fmt.Errorf("load default config: %w", err)
		}
	}

	cfg, err := cl.ValidateAndLoad()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid config %q: %w", path, err)
	}

	return cfg, cl.Environment(), nil
}

// newConfigWatcher reloads the configured commands of vm whenever the file at
// path changes. Reloads are applied on the dispatch loop.
func newConfigWatcher(path string, env *expr.Environment, vm *viewmodel.Main, loop *dispatch.Loop) (*config.Watcher, error) {
	w, err := config.NewWatcher(path, func(c *config.Config) {
		loop.Dispatch(func() {
			if err := vm.LoadConfig(c, env); err != nil {
				slog.Error("apply reloaded config", slog.Any("error", err))
			}
		})
	},
		config.WithLoaderOpts(config.WithEnvironment(env)),
		config.WithErrorHandler(func(err error) {
			slog.Error("reload config", slog.String("path", path), slog.Any("error", err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("watch config: %w", err)
	}

	return w, nil
}

func serveMCP(ctx context.Context, g *errgroup.Group, address string, vm *viewmodel.Main) {
	if address == mcpStdio {
		address = ""
	}

	server := mcp.NewServer(address, vm.Registry())
	logger := slog.Default().With(slog.String("component", "mcp"))

	g.Go(func() error {
		return server.Serve(log.NewContext(ctx, logger))
	})
}

// runCommand runs the command named name once and copies its output.
func runCommand(ctx context.Context, stdout, stderr io.Writer, vm *viewmodel.Main, name string, args []string) error {
	t, err := vm.Registry().Run(ctx, name, joinArgs(args))
	if err != nil {
		return err
	}

	err = t.Wait(ctx)

	op, opErr := vm.Operations().Get(t.ID())
	if opErr == nil && op.Result != nil {
		mustN(fmt.Fprint(stdout, op.Result.Stdout))
		mustN(fmt.Fprint(stderr, op.Result.Stderr))
	}

	if err != nil {
		return fmt.Errorf("run %s: %w", name, err)
	}

	if msg := vm.Message(); msg != "" {
		mustN(fmt.Fprintln(stdout, msg))
	}

	return nil
}

func listCommands(w io.Writer, vm *viewmodel.Main) error {
	entries := vm.Registry().List()

	width := 0
	for _, e := range entries {
		width = max(width, len(e.Name))
	}

	for _, e := range entries {
		_, err := fmt.Fprintf(w, "%-*s  %s\n", width, e.Name, e.Description)
		if err != nil {
			return fmt.Errorf("write commands: %w", err)
		}
	}

	return nil
}

// joinArgs joins args into one line that splits back into args with shell
// quoting rules.
func joinArgs(args []string) string {
	quoted := make([]string, len(args))

	for i, a := range args {
		if a != "" && !strings.ContainsAny(a, " \t\n'\"\\$`|&;<>()*?[]#~") {
			quoted[i] = a

			continue
		}

		quoted[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
	}

	return strings.Join(quoted, " ")
}

func flushLogs(w io.Writer, buf *log.Backlog) {
	slog.Debug("flush logs to console",
		slog.Int("count", buf.Len()),
		slog.Int("dropped", buf.Dropped()),
	)

	err := buf.Flush(w)
	if err != nil {
		panic(err)
	}
}
