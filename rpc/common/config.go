package common

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds the configuration for the control-plane RPC server:
// the local domain-socket endpoint spec.md §6 names, the per-request
// timeout, and the process-wide log level.
type ServerConfig struct {
	// Endpoint is the local domain socket path the transport listens on
	Endpoint string

	// TimeoutSecond is the per-request read/write timeout
	TimeoutSecond int64

	// LogLevel configures every named logger in the process (debug, info, warn, error)
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
