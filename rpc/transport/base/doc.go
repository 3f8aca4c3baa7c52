// Package base provides a foundation for server transport layers in the
// control-plane RPC system, implementing core functionality for request
// handling independent of the specific network protocol (Unix sockets,
// etc.). It serves as a base layer that can be extended with
// protocol-specific connectors.
//
// The package focuses on:
//   - Protocol-agnostic server transport implementation
//   - Performance optimization through a buffer pool shared by all connections
//   - Frame-based message protocol with module_id and requestID tracking
//   - A bounded worker pool per connection
//
// Key Components:
//
//   - IServerConnector: Interface for protocol-specific listen operations
//     that allow extending the base transport with different network protocols.
//
//   - serverTransport: Core server implementation that accepts connections and
//     routes requests to the registered handler based on module_id.
//
// Performance Optimizations:
//
//   - Buffer Pooling: The server uses a sync.Pool to reuse buffers, reducing
//     GC pressure and memory allocations.
//
//   - Frame Batching: The transport uses net.Buffers to reduce syscalls when
//     writing frames, combining header and payload into a single write operation.
//
// Thread Safety:
//
//	All public methods are thread-safe. The server creates a dedicated
//	goroutine per connection and a bounded pool of worker goroutines within it.
package base
