// Package unix implements the local domain-socket transport spec.md §6
// names for the engine control plane, built on Unix domain sockets.
//
// This package extends the base transport layer with a Unix
// socket-specific listener while inheriting connection handling, request
// routing, and buffer pooling from the base package.
//
// Key Components:
//
//   - serverConnector: Creates Unix socket listeners; the base transport
//     accepts connections on them
//
// Performance Characteristics:
//
//   - Default buffer size: 64 KB, optimized for local communication patterns
//   - Reduced overhead: Eliminates TCP/IP stack processing for better performance
//   - Lower latency: Direct kernel-mediated IPC avoids network subsystem overhead
package unix
