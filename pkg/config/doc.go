// Package config loads relay's YAML configuration: the commands it exposes
// and settings for the terminal UI.
//
// Configuration is validated twice: against a JSON schema generated from the
// Go types (structure and enums), and by [Config.Validate] for rules the
// schema cannot express, such as unique names and compilable predicates.
package config
