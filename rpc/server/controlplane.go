package server

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/vosdb/engine/lib/engine"
	"github.com/vosdb/engine/rpc/common"
	"github.com/vosdb/engine/rpc/serializer"
	"github.com/vosdb/engine/rpc/transport"
)

// AttachInfo is the GetAttachInfo response body (spec.md §6's fabric
// environment fields), JSON-encoded into Message.Meta.
type AttachInfo struct {
	Interface            string `json:"interface"`
	Domain                string `json:"domain"`
	Provider              string `json:"provider"`
	RxmUseSRX             bool   `json:"rxm_use_srx"`
	SecondaryProviderIdx  int    `json:"secondary_provider_idx"`
	CrtTimeoutSeconds     int    `json:"crt_timeout_seconds"`
}

// PoolMonitorInfo is the PoolMonitor response body.
type PoolMonitorInfo struct {
	HeapBytesUsed      uint64 `json:"heap_bytes_used"`
	HeapBytesFree      uint64 `json:"heap_bytes_free"`
	PendingFreeExtents uint64 `json:"pending_free_extents"`
	GCCreditsDrained   uint64 `json:"gc_credits_drained"`
	GCItemsFreed       uint64 `json:"gc_items_freed"`
	DTXRestarts        uint64 `json:"dtx_restarts"`
}

// registeredPool is one engine instance reachable through the control
// plane, keyed by the transport's module_id. refCount tracks open
// PoolConnect handles; the engine's Init/Fini lifecycle itself stays
// owned by whoever registered it (cmd/serve), not by connect/disconnect
// traffic.
type registeredPool struct {
	mu       sync.Mutex
	eng      *engine.Engine
	refCount int
}

// poolHandle is the per-connection state behind an opaque handle id
// returned by PoolConnect.
type poolHandle struct {
	pool *registeredPool
}

// ControlPlaneServer implements spec.md §6's local domain-socket
// protocol: GetAttachInfo, PoolConnect/Disconnect, PoolMonitor,
// NotifyExit, SetupClientTelemetry. It is built on a
// transport.IRPCServerTransport / serializer.IRPCSerializer pair and
// routes on {module_id, method_id, body}: module_id is carried by the
// transport's shardId parameter, one id per registered pool.
type ControlPlaneServer struct {
	cfg        *engine.EngineConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer

	pools   *xsync.MapOf[uint64, *registeredPool]
	handles *xsync.MapOf[string, *poolHandle]
}

// NewControlPlaneServer wires a fabric config (used to answer
// GetAttachInfo) together with a transport/serializer pair.
func NewControlPlaneServer(cfg *engine.EngineConfig, t transport.IRPCServerTransport, s serializer.IRPCSerializer) *ControlPlaneServer {
	return &ControlPlaneServer{
		cfg:        cfg,
		transport:  t,
		serializer: s,
		pools:      xsync.NewMapOf[uint64, *registeredPool](),
		handles:    xsync.NewMapOf[string, *poolHandle](),
	}
}

// RegisterPool makes eng reachable through PoolConnect at module_id.
func (s *ControlPlaneServer) RegisterPool(moduleID uint64, eng *engine.Engine) {
	s.pools.Store(moduleID, &registeredPool{eng: eng})
}

// Serve starts the transport layer.
func (s *ControlPlaneServer) Serve(cfg common.ServerConfig) error {
	s.transport.RegisterHandler(s.handle)
	return s.transport.Listen(cfg)
}

func (s *ControlPlaneServer) handle(moduleID uint64, req []byte) []byte {
	var msg common.Message
	if err := s.serializer.Deserialize(req, &msg); err != nil {
		return s.encode(common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err)))
	}

	var resp *common.Message
	switch msg.MsgType {
	case common.MsgTEngineGetAttachInfo:
		resp = s.getAttachInfo()
	case common.MsgTEnginePoolConnect:
		resp = s.poolConnect(moduleID, &msg)
	case common.MsgTEnginePoolDisconnect:
		resp = s.poolDisconnect(&msg)
	case common.MsgTEnginePoolMonitor:
		resp = s.poolMonitor(&msg)
	case common.MsgTEngineNotifyExit:
		resp = s.notifyExit(&msg)
	case common.MsgTEngineSetupClientTelemetry:
		resp = common.NewSetupClientTelemetryResponse(true, nil)
	default:
		resp = common.NewErrorResponse(fmt.Sprintf("unknown control method: %s", msg.MsgType))
	}

	return s.encode(resp)
}

func (s *ControlPlaneServer) encode(msg *common.Message) []byte {
	val, err := s.serializer.Serialize(*msg)
	if err != nil {
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
	}
	return val
}

// getAttachInfo returns the fabric/provider configuration the server
// was started with — one attach info per server process, not per pool.
func (s *ControlPlaneServer) getAttachInfo() *common.Message {
	info := AttachInfo{
		Interface:            s.cfg.Interface,
		Domain:               s.cfg.Domain,
		Provider:             s.cfg.Provider,
		RxmUseSRX:            s.cfg.RxmUseSRX,
		SecondaryProviderIdx: s.cfg.SecondaryProviderIdx,
		CrtTimeoutSeconds:    int(s.cfg.CrtTimeout.Seconds()),
	}
	body, err := json.Marshal(info)
	if err != nil {
		return common.NewErrorResponse(fmt.Sprintf("failed to encode attach info: %s", err))
	}
	return common.NewGetAttachInfoResponse(body, nil)
}

// poolConnect opens a new handle over the pool registered under
// moduleID.
func (s *ControlPlaneServer) poolConnect(moduleID uint64, req *common.Message) *common.Message {
	pool, ok := s.pools.Load(moduleID)
	if !ok {
		return common.NewPoolConnectResponse(nil, false, fmt.Errorf("no pool registered for module %d", moduleID))
	}

	pool.mu.Lock()
	pool.refCount++
	pool.mu.Unlock()

	id := uuid.NewString()
	s.handles.Store(id, &poolHandle{pool: pool})
	return common.NewPoolConnectResponse([]byte(id), true, nil)
}

func (s *ControlPlaneServer) poolDisconnect(req *common.Message) *common.Message {
	id := string(req.Value)
	h, ok := s.handles.LoadAndDelete(id)
	if !ok {
		return common.NewPoolDisconnectResponse(false, fmt.Errorf("unknown pool handle %q", id))
	}
	h.pool.mu.Lock()
	h.pool.refCount--
	h.pool.mu.Unlock()
	return common.NewPoolDisconnectResponse(true, nil)
}

func (s *ControlPlaneServer) poolMonitor(req *common.Message) *common.Message {
	id := string(req.Value)
	h, ok := s.handles.Load(id)
	if !ok {
		return common.NewErrorResponse(fmt.Sprintf("unknown pool handle %q", id))
	}

	m := h.pool.eng.Metrics
	used, free := m.HeapUsage()
	info := PoolMonitorInfo{
		HeapBytesUsed:      used,
		HeapBytesFree:      free,
		PendingFreeExtents: m.Pending(),
		GCCreditsDrained:   m.GCCreditsDrained.Get(),
		GCItemsFreed:       m.GCItemsFreed.Get(),
		DTXRestarts:        m.DTXRestarts.Get(),
	}
	body, err := json.Marshal(info)
	if err != nil {
		return common.NewErrorResponse(fmt.Sprintf("failed to encode pool monitor info: %s", err))
	}
	return common.NewPoolMonitorResponse(body, nil)
}

// notifyExit acknowledges a client-process exit notification, releasing
// any pool handle it still held open.
func (s *ControlPlaneServer) notifyExit(req *common.Message) *common.Message {
	id := string(req.Value)
	if h, ok := s.handles.LoadAndDelete(id); ok {
		h.pool.mu.Lock()
		h.pool.refCount--
		h.pool.mu.Unlock()
	}
	return common.NewNotifyExitResponse(true, nil)
}
