package command

import "errors"

var (
	// ErrUnknownReentrancy is returned when parsing an unknown [Reentrancy].
	ErrUnknownReentrancy = errors.New("unknown reentrancy policy")

	// ErrRejected is returned when a command is invoked by name but its
	// predicate or reentrancy policy does not allow the run.
	ErrRejected = errors.New("command cannot run")
)
