// Package transport defines the interfaces and abstractions for the
// vosd engine's local control-plane RPC server. It provides a common
// contract that server-transport implementations must fulfill,
// keeping the control-plane server itself independent of how requests
// physically arrive.
//
// The package focuses on:
//   - Defining a clear interface for the server transport layer
//   - Supporting module-id-based request routing
//   - Admitting multiple server transport implementations (currently
//     Unix domain sockets, in rpc/transport/unix)
//
// Key Components:
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receives requests and routes them to appropriate handlers.
//
//   - ServerHandleFunc: Function type for request handling callbacks.
package transport
