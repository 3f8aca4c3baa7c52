// Package server implements spec.md §6's local control-plane RPC
// server: one process-wide endpoint answering GetAttachInfo,
// PoolConnect, PoolDisconnect, PoolMonitor, NotifyExit and
// SetupClientTelemetry against one or more registered engine pools.
//
// Key Components:
//
//   - ControlPlaneServer: routes decoded requests by method to the
//     handler for that control-plane call, keyed against whichever
//     lib/engine.Engine was registered under the request's module_id.
//
//   - NewControlPlaneServer: wires a transport.IRPCServerTransport and
//     serializer.IRPCSerializer pair to an engine fabric configuration.
//
//   - RegisterPool: makes an engine reachable through PoolConnect at a
//     given module_id; a server can host more than one pool.
//
// Usage Example:
//
//	t := unix.NewUnixServerTransport(64 * 1024)
//	s := serializer.NewJSONSerializer()
//	cp := server.NewControlPlaneServer(engineCfg, t, s)
//	cp.RegisterPool(0, eng)
//	if err := cp.Serve(cfg); err != nil {
//	  log.Fatalf("control plane error: %v", err)
//	}
//
// Thread Safety:
//
//	ControlPlaneServer is safe for concurrent use: pool registration and
//	handle bookkeeping are backed by xsync.MapOf, and each request is
//	handled independently of any other in flight.
package server
