// Package execs runs external processes for commands declared in
// configuration.
//
// A [Spec] describes the process (executable, arguments or a shell-style
// command line, and environment). An [Executor] runs a [Spec] under a
// context, so canceling the command's run kills the process.
package execs
