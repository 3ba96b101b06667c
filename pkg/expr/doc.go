// Package expr provides CEL (Common Expression Language) predicates that
// decide whether a configured command can run.
//
// Expressions have access to variables:
//   - `arg` (dyn): The argument the command would be run with
//   - `state` (map<string, dyn>): View-model state, e.g. `state.selected`
//   - `running` (bool): Whether the command is currently executing
//
// In addition to the standard CEL library and the math, strings and lists
// extensions, expressions may call:
//   - pathBase, pathDir, pathExt: File path operations
//   - lookPath: Whether an executable is found on PATH
//   - yamlPath: Value extraction from a YAML file
package expr
