package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/relay/pkg/task"
	"github.com/macropower/relay/pkg/version"
	"github.com/macropower/relay/pkg/viewmodel"
)

// Commands is the command registry served by [Server].
type Commands interface {
	List() []viewmodel.Entry
	Run(ctx context.Context, name string, arg any) (*task.Task, error)
	Cancel(name string) error
	Operations() *viewmodel.Operations
}

var _ Commands = (*viewmodel.Registry)(nil)

// Server implements the MCP server for relay.
type Server struct {
	commands Commands
	server   *mcp.Server
	tracer   trace.Tracer
	address  string
}

// NewServer creates a new MCP server instance. An empty address serves
// over stdio.
func NewServer(address string, commands Commands) *Server {
	impl := &mcp.Implementation{
		Name:    name,
		Version: version.GetVersion(),
	}

	s := &Server{
		address:  address,
		commands: commands,
		server:   mcp.NewServer(impl, &mcp.ServerOptions{Instructions: instructions}),
		tracer:   otel.Tracer("mcp"),
	}

	s.registerTools()

	return s
}

// registerTools registers all available tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_commands",
		Description: "List the commands of the relay session, whether each can run now, and its most recent run.",
		InputSchema: newObjectSchema(nil),
	}, WithTracing(s.tracer, s.handleListCommands))

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "run_command",
		Description: "Run a command by name. You MUST use a name from the list_commands output EXACTLY.",
		InputSchema: newObjectSchema([]string{"name"}, nameProperty,
			property{"arg", "string", "The command argument. Configured commands append it to their arguments."},
			property{"wait", "boolean", "Wait for the run to finish before returning."},
			property{"timeoutSeconds", "integer", "Maximum number of seconds to wait."},
		),
	}, WithTracing(s.tracer, s.handleRunCommand))

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_operation",
		Description: "Get the status and output of a run by the operation id returned by run_command.",
		InputSchema: newObjectSchema([]string{"id"},
			property{"id", "string", "The operation id."},
			property{"wait", "boolean", "Wait for the run to finish before returning."},
			property{"timeoutSeconds", "integer", "Maximum number of seconds to wait."},
		),
	}, WithTracing(s.tracer, s.handleGetOperation))

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "cancel_command",
		Description: "Cancel the current run of a cancellable command.",
		InputSchema: newObjectSchema([]string{"name"}, nameProperty),
	}, WithTracing(s.tracer, s.handleCancelCommand))
}

// Server returns the underlying MCP server.
func (s *Server) Server() *mcp.Server {
	return s.server
}

// Serve starts the MCP server and blocks until ctx is done or the server
// fails.
func (s *Server) Serve(ctx context.Context) error {
	slog.InfoContext(ctx, "starting MCP server", slog.String("address", s.address))

	if s.address == "" {
		err := s.serveStdio(ctx)
		if err != nil {
			return fmt.Errorf("serve stdio: %w", err)
		}

		return nil
	}

	err := s.serveHTTP(ctx)
	if err != nil {
		return fmt.Errorf("serve HTTP: %w", err)
	}

	return nil
}

func (s *Server) serveHTTP(ctx context.Context) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)

	server := &http.Server{
		Addr:    s.address,
		Handler: handler,

		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.WarnContext(ctx, "shut down MCP server", slog.Any("error", err))
		}
	}()

	err := server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("MCP server failed: %w", err)
	}

	return nil
}

func (s *Server) serveStdio(ctx context.Context) error {
	t := mcp.NewLoggingTransport(mcp.NewStdioTransport(), os.Stderr)

	err := s.server.Run(ctx, t)
	if err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}

	return nil
}
