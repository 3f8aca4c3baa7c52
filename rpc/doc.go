// Package rpc provides the local control-plane RPC system fronting the
// vosd storage engine: the communication layer between an external
// caller and the engine process, implementing the local domain-socket
// protocol named in spec.md §6.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC
//     system, including the Message protocol, ServerConfig, and
//     logging.
//
//   - transport: Server-side transport abstractions with pluggable
//     implementations (currently Unix domain sockets).
//
//   - serializer: Message serialization with multiple format options
//     (Binary, JSON, GOB) for converting between Message objects and
//     byte arrays.
//
//   - server: The control-plane server that handles incoming
//     GetAttachInfo, PoolConnect/Disconnect, PoolMonitor, NotifyExit
//     and SetupClientTelemetry requests against registered engine
//     pools.
package rpc
