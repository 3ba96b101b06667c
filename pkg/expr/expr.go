package expr

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Variable names available to predicates.
const (
	VarArg     = "arg"
	VarState   = "state"
	VarRunning = "running"
)

// ErrNotBool is returned when a predicate does not evaluate to a bool.
var ErrNotBool = errors.New("expression did not evaluate to a bool")

// Protect CEL environment creation and compilation from concurrent access.
var celMutex sync.Mutex

// Environment provides a thread-safe wrapper around a [*cel.Env].
type Environment struct {
	env *cel.Env
}

// NewEnvironment creates a new [Environment] declaring the predicate
// variables. Additional options are appended.
func NewEnvironment(opts ...cel.EnvOption) (*Environment, error) {
	celMutex.Lock()
	defer celMutex.Unlock()

	opts = append([]cel.EnvOption{
		cel.Variable(VarArg, cel.DynType),
		cel.Variable(VarState, cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable(VarRunning, cel.BoolType),
		cel.Lib(&lib{}),
	}, opts...)

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &Environment{env: env}, nil
}

// MustNewEnvironment creates a new [Environment] and panics on error.
func MustNewEnvironment(opts ...cel.EnvOption) *Environment {
	env, err := NewEnvironment(opts...)
	if err != nil {
		panic(err)
	}

	return env
}

// Compile compiles a CEL expression and returns a program.
//
//nolint:ireturn // Following CEL's function signature.
func (e *Environment) Compile(expression string) (cel.Program, error) {
	celMutex.Lock()
	defer celMutex.Unlock()

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile expression: %w", issues.Err())
	}

	if !ast.OutputType().IsExactType(cel.BoolType) && !ast.OutputType().IsExactType(cel.DynType) {
		return nil, fmt.Errorf("compile expression: %w: got %s", ErrNotBool, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("create program: %w", err)
	}

	return program, nil
}

// Input holds the values bound to a predicate's variables.
type Input struct {
	Arg     any
	State   map[string]any
	Running bool
}

func (in Input) vars() map[string]any {
	state := in.State
	if state == nil {
		state = map[string]any{}
	}

	return map[string]any{
		VarArg:     ConvertToCELValue(in.Arg),
		VarState:   ConvertToCELValue(state),
		VarRunning: in.Running,
	}
}

// Predicate is a compiled boolean expression.
type Predicate struct {
	program    cel.Program
	expression string
}

// NewPredicate compiles expression in env.
func NewPredicate(env *Environment, expression string) (*Predicate, error) {
	program, err := env.Compile(expression)
	if err != nil {
		return nil, err
	}

	return &Predicate{expression: expression, program: program}, nil
}

// MustNewPredicate compiles expression and panics on error.
func MustNewPredicate(env *Environment, expression string) *Predicate {
	p, err := NewPredicate(env, expression)
	if err != nil {
		panic(err)
	}

	return p
}

// Expression returns the source expression.
func (p *Predicate) Expression() string {
	return p.expression
}

// Eval evaluates the predicate against in.
func (p *Predicate) Eval(in Input) (bool, error) {
	result, _, err := p.program.Eval(in.vars())
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", p.expression, err)
	}

	b, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("evaluate %q: %w: got %T", p.expression, ErrNotBool, result.Value())
	}

	return b, nil
}
