// Package cmd implements the command-line interface for the vosd
// storage engine.
//
// The package is organized into a subpackage per concern:
//
//   - serve: Starts and configures the vosd engine control-plane server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See vosd -help for a list of all commands.
package cmd
