// Package common provides the wire protocol and shared configuration
// for the vosd engine's local control-plane RPC: the Message envelope,
// its MessageType catalog, the control-plane ServerConfig, and a
// logging facade shared by every rpc/ subpackage.
//
// The package focuses on:
//   - Message protocol definition for control-plane request/response traffic
//   - ServerConfig for the local domain-socket server
//   - A logging implementation integrated with dragonboat/v4/logger,
//     giving every named logger in the process (rpc, transport/rpc,
//     engine, heap, gc, dtx, object, btree, extent, ilog, hlc) a
//     consistent level set from one place
//
// Key Components:
//
//   - Message: the envelope used for every control-plane call
//     (GetAttachInfo, PoolConnect/Disconnect, PoolMonitor, NotifyExit,
//     SetupClientTelemetry), with factory methods for each response shape.
//
//   - MessageType: enumeration of the control-plane methods.
//
//   - ServerConfig: the local domain-socket endpoint, per-request
//     timeout, and process-wide log level.
//
//   - InitLoggers: applies ServerConfig.LogLevel to every named logger
//     dragonboat/v4/logger tracks for this process.
package common
