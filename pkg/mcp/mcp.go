// Package mcp serves relay's command registry over the Model Context
// Protocol, so agents can list, run and inspect commands.
package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"github.com/macropower/relay/pkg/viewmodel"
)

const (
	name         = "relay"
	instructions = `MCP Server 'relay' exposes the commands of a running relay session.

When to use these tools:
- Discovering which commands are available and whether they can run right now
- Running a command, optionally waiting for it to finish
- Inspecting the status and output of a previous run

REQUIRED workflow:
1. Use 'list_commands' first and READ which commands can run and what arguments they expect
2. Use 'run_command' with the EXACT name from 'list_commands'
3. If the run did not finish within the wait time, use 'get_operation' with the returned operation id

IMPORTANT: Commands can be rejected when their canRun condition is not met. Do not retry a rejected command without changing its argument or the session state.
`

	// Output kept per stream in tool results.
	maxOutputLen = 4000
)

// truncateString truncates a string to maxLen characters with a marker if
// needed.
func truncateString(str string, maxLen int) string {
	if len(str) > maxLen {
		return str[:maxLen] + "\n[OUTPUT TRUNCATED]"
	}

	return str
}

// trimOperation returns op with its process output truncated.
func trimOperation(op viewmodel.Operation) viewmodel.Operation {
	if op.Result == nil {
		return op
	}

	res := *op.Result
	res.Stdout = truncateString(res.Stdout, maxOutputLen)
	res.Stderr = truncateString(res.Stderr, maxOutputLen)
	op.Result = &res

	return op
}

type property struct {
	name, typ, description string
}

var nameProperty = property{"name", "string", "The exact command name from list_commands."}

// newObjectSchema builds a tool input schema from props.
func newObjectSchema(required []string, props ...property) *jsonschema.Schema {
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{},
		Required:   required,
	}

	for _, p := range props {
		schema.Properties[p.name] = &jsonschema.Schema{
			Type:        p.typ,
			Description: p.description,
		}
	}

	return schema
}
