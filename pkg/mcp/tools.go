package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/macropower/relay/pkg/command"
	"github.com/macropower/relay/pkg/config"
	"github.com/macropower/relay/pkg/viewmodel"
)

const (
	// DefaultWait is how long run_command waits when asked to wait without
	// a timeout.
	DefaultWait = 30 * time.Second

	// MaxWait caps any requested wait.
	MaxWait = 10 * time.Minute
)

// ListCommandsParams defines parameters for the list_commands tool.
type ListCommandsParams struct{}

// CommandInfo describes a registered command.
type CommandInfo struct {
	LastOperation *viewmodel.Operation `json:"lastOperation,omitempty"`
	Name          string               `json:"name"`
	Description   string               `json:"description,omitempty"`
	Source        string               `json:"source"`
	Async         bool                 `json:"async"`
	CanRun        bool                 `json:"canRun"`
	Executing     bool                 `json:"executing"`
}

// ListCommandsResult contains the result of listing commands.
type ListCommandsResult struct {
	Message  string        `json:"message"`
	Commands []CommandInfo `json:"commands"`
	Count    int           `json:"count"`
}

// RunCommandParams defines parameters for the run_command tool.
type RunCommandParams struct {
	Name           string `json:"name"                     jsonschema:"the exact command name from list_commands"`
	Arg            string `json:"arg,omitempty"            jsonschema:"the command argument"`
	Wait           bool   `json:"wait,omitempty"           jsonschema:"wait for the run to finish"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty" jsonschema:"maximum number of seconds to wait"`
}

// RunCommandResult contains the result of running a command.
type RunCommandResult struct {
	Operation *viewmodel.Operation `json:"operation,omitempty"`
	Message   string               `json:"message"`
	Error     string               `json:"error,omitempty"`
	Accepted  bool                 `json:"accepted"`
}

// GetOperationParams defines parameters for the get_operation tool.
type GetOperationParams struct {
	ID             string `json:"id"                       jsonschema:"the operation id returned by run_command"`
	Wait           bool   `json:"wait,omitempty"           jsonschema:"wait for the operation to finish"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty" jsonschema:"maximum number of seconds to wait"`
}

// GetOperationResult contains the result of getting an operation.
type GetOperationResult struct {
	Operation *viewmodel.Operation `json:"operation,omitempty"`
	Message   string               `json:"message"`
	Found     bool                 `json:"found"`
}

// CancelCommandParams defines parameters for the cancel_command tool.
type CancelCommandParams struct {
	Name string `json:"name" jsonschema:"the exact command name from list_commands"`
}

// CancelCommandResult contains the result of canceling a command.
type CancelCommandResult struct {
	Message     string `json:"message"`
	Cancellable bool   `json:"cancellable"`
	Found       bool   `json:"found"`
}

// ListCommands describes every registered command.
func (s *Server) ListCommands(_ context.Context) ListCommandsResult {
	entries := s.commands.List()
	ops := s.commands.Operations()

	result := ListCommandsResult{
		Commands: make([]CommandInfo, 0, len(entries)),
		Count:    len(entries),
	}

	for _, e := range entries {
		info := CommandInfo{
			Name:        e.Name,
			Description: e.Description,
			Source:      e.Source,
			CanRun:      e.Command.CanRun(nil),
		}

		if ac := e.Async(); ac != nil {
			info.Async = true
			info.Executing = ac.IsExecuting()
		}

		if ops != nil {
			if op, ok := ops.Last(e.Name); ok {
				op = trimOperation(op)
				info.LastOperation = &op
			}
		}

		result.Commands = append(result.Commands, info)
	}

	result.Message = fmt.Sprintf("Found %d commands.", result.Count)

	return result
}

// RunCommand runs a command by name. Rejections and unknown names are
// reported in the result rather than as errors.
func (s *Server) RunCommand(ctx context.Context, params RunCommandParams) (RunCommandResult, error) {
	// The run outlives the tool call unless the caller waits for it.
	t, err := s.commands.Run(context.WithoutCancel(ctx), params.Name, params.Arg)

	switch {
	case errors.Is(err, config.ErrUnknownCommand):
		return RunCommandResult{
			Message: fmt.Sprintf("INVALID INPUT ERROR: Command %q not found. Use an EXACT name from the list_commands tool.", params.Name),
			Error:   err.Error(),
		}, nil
	case errors.Is(err, command.ErrRejected):
		return RunCommandResult{
			Message: fmt.Sprintf("Command %q cannot run with argument %q right now.", params.Name, params.Arg),
			Error:   err.Error(),
		}, nil
	case err != nil:
		return RunCommandResult{}, fmt.Errorf("run command %q: %w", params.Name, err)
	}

	result := RunCommandResult{Accepted: true}

	if params.Wait {
		waitCtx, cancel := context.WithTimeout(ctx, waitDuration(params.TimeoutSeconds))
		defer cancel()

		// The run's own error is reported through the operation.
		select {
		case <-t.Done():
		case <-waitCtx.Done():
		}
	}

	op, err := s.operation(t.ID())
	if err != nil {
		return RunCommandResult{}, err
	}

	result.Operation = &op
	result.Message = describe(op)

	return result, nil
}

// GetOperation returns a previous run, optionally waiting for it to finish.
func (s *Server) GetOperation(ctx context.Context, params GetOperationParams) (GetOperationResult, error) {
	ops := s.commands.Operations()
	if ops == nil {
		return GetOperationResult{Message: "No operations are recorded."}, nil
	}

	t, err := ops.Task(params.ID)
	if errors.Is(err, viewmodel.ErrUnknownOperation) {
		return GetOperationResult{
			Message: fmt.Sprintf("INVALID INPUT ERROR: Operation %q not found. Use an id returned by run_command.", params.ID),
		}, nil
	} else if err != nil {
		return GetOperationResult{}, fmt.Errorf("get operation: %w", err)
	}

	if params.Wait {
		waitCtx, cancel := context.WithTimeout(ctx, waitDuration(params.TimeoutSeconds))
		defer cancel()

		select {
		case <-t.Done():
		case <-waitCtx.Done():
		}
	}

	op, err := s.operation(params.ID)
	if err != nil {
		return GetOperationResult{}, err
	}

	return GetOperationResult{
		Operation: &op,
		Found:     true,
		Message:   describe(op),
	}, nil
}

// CancelCommand cancels the current run of a command.
func (s *Server) CancelCommand(_ context.Context, params CancelCommandParams) CancelCommandResult {
	entries := s.commands.List()

	for _, e := range entries {
		if e.Name != params.Name {
			continue
		}

		ac := e.Async()
		if ac == nil || !ac.Cancellable() {
			return CancelCommandResult{
				Found:   true,
				Message: fmt.Sprintf("Command %q is not cancellable.", params.Name),
			}
		}

		if err := s.commands.Cancel(params.Name); err != nil {
			return CancelCommandResult{Found: true, Message: err.Error()}
		}

		return CancelCommandResult{
			Found:       true,
			Cancellable: true,
			Message:     fmt.Sprintf("Canceled the current run of %q.", params.Name),
		}
	}

	return CancelCommandResult{
		Message: fmt.Sprintf("INVALID INPUT ERROR: Command %q not found. Use an EXACT name from the list_commands tool.", params.Name),
	}
}

func (s *Server) operation(id string) (viewmodel.Operation, error) {
	ops := s.commands.Operations()
	if ops == nil {
		return viewmodel.Operation{ID: id, Status: "unknown"}, nil
	}

	op, err := ops.Get(id)
	if err != nil {
		return viewmodel.Operation{}, fmt.Errorf("get operation: %w", err)
	}

	return trimOperation(op), nil
}

func (s *Server) handleListCommands(
	ctx context.Context,
	_ *mcp.ServerSession,
	_ *mcp.CallToolParamsFor[ListCommandsParams],
) (*mcp.CallToolResultFor[ListCommandsResult], error) {
	result := s.ListCommands(ctx)

	return &mcp.CallToolResultFor[ListCommandsResult]{
		Content:           []mcp.Content{&mcp.TextContent{Text: result.Message}},
		StructuredContent: result,
	}, nil
}

func (s *Server) handleRunCommand(
	ctx context.Context,
	_ *mcp.ServerSession,
	params *mcp.CallToolParamsFor[RunCommandParams],
) (*mcp.CallToolResultFor[RunCommandResult], error) {
	result, err := s.RunCommand(ctx, params.Arguments)
	if err != nil {
		return nil, err
	}

	return &mcp.CallToolResultFor[RunCommandResult]{
		Content:           []mcp.Content{&mcp.TextContent{Text: result.Message}},
		StructuredContent: result,
	}, nil
}

func (s *Server) handleGetOperation(
	ctx context.Context,
	_ *mcp.ServerSession,
	params *mcp.CallToolParamsFor[GetOperationParams],
) (*mcp.CallToolResultFor[GetOperationResult], error) {
	result, err := s.GetOperation(ctx, params.Arguments)
	if err != nil {
		return nil, err
	}

	return &mcp.CallToolResultFor[GetOperationResult]{
		Content:           []mcp.Content{&mcp.TextContent{Text: result.Message}},
		StructuredContent: result,
	}, nil
}

func (s *Server) handleCancelCommand(
	ctx context.Context,
	_ *mcp.ServerSession,
	params *mcp.CallToolParamsFor[CancelCommandParams],
) (*mcp.CallToolResultFor[CancelCommandResult], error) {
	result := s.CancelCommand(ctx, params.Arguments)

	return &mcp.CallToolResultFor[CancelCommandResult]{
		Content:           []mcp.Content{&mcp.TextContent{Text: result.Message}},
		StructuredContent: result,
	}, nil
}

func waitDuration(seconds int) time.Duration {
	if seconds <= 0 {
		return DefaultWait
	}

	return min(time.Duration(seconds)*time.Second, MaxWait)
}

// describe formats the message for an operation result.
func describe(op viewmodel.Operation) string {
	switch {
	case !op.Done:
		return fmt.Sprintf("Operation %s of %q is %s. Use get_operation to check on it.", op.ID, op.Command, op.Status)
	case op.Error != "":
		return fmt.Sprintf("Operation %s of %q %s: %s", op.ID, op.Command, op.Status, op.Error)
	default:
		return fmt.Sprintf("Operation %s of %q %s.", op.ID, op.Command, op.Status)
	}
}
