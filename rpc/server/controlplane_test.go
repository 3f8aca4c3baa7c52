package server

import (
	"encoding/json"
	"testing"

	"github.com/lni/vfs"

	"github.com/vosdb/engine/lib/engine"
	"github.com/vosdb/engine/rpc/common"
	"github.com/vosdb/engine/rpc/serializer"
)

func newTestControlPlane(t *testing.T) (*ControlPlaneServer, *engine.Engine) {
	t.Helper()

	cfg := engine.DefaultEngineConfig()
	cfg.PoolPath = "controlplane-test.vosd"
	cfg.NumZones = 2
	cfg.Interface = "eth0"
	cfg.Domain = "test-domain"
	cfg.Provider = "ofi+tcp"

	eng, err := engine.Init(cfg, vfs.NewMem())
	if err != nil {
		t.Fatalf("engine.Init: %v", err)
	}
	t.Cleanup(func() { _ = eng.Fini() })

	s := NewControlPlaneServer(cfg, nil, serializer.NewJSONSerializer())
	s.RegisterPool(0, eng)
	return s, eng
}

func roundtrip(t *testing.T, s *ControlPlaneServer, moduleID uint64, req *common.Message) common.Message {
	t.Helper()
	reqBytes, err := s.serializer.Serialize(*req)
	if err != nil {
		t.Fatalf("serialize request: %v", err)
	}
	respBytes := s.handle(moduleID, reqBytes)
	var resp common.Message
	if err := s.serializer.Deserialize(respBytes, &resp); err != nil {
		t.Fatalf("deserialize response: %v", err)
	}
	return resp
}

func TestGetAttachInfoReturnsFabricConfig(t *testing.T) {
	s, _ := newTestControlPlane(t)

	resp := roundtrip(t, s, 0, common.NewGetAttachInfoRequest())
	if resp.Err != "" {
		t.Fatalf("GetAttachInfo returned error: %s", resp.Err)
	}

	var info AttachInfo
	if err := json.Unmarshal(resp.Meta, &info); err != nil {
		t.Fatalf("unmarshal attach info: %v", err)
	}
	if info.Interface != "eth0" || info.Domain != "test-domain" || info.Provider != "ofi+tcp" {
		t.Fatalf("AttachInfo = %+v, want eth0/test-domain/ofi+tcp", info)
	}
}

func TestPoolConnectUnknownModuleFails(t *testing.T) {
	s, _ := newTestControlPlane(t)

	resp := roundtrip(t, s, 99, common.NewPoolConnectRequest("whatever"))
	if resp.Ok {
		t.Fatalf("PoolConnect against an unregistered module succeeded")
	}
	if resp.Err == "" {
		t.Fatalf("PoolConnect against an unregistered module returned no error")
	}
}

func TestPoolConnectMonitorDisconnectLifecycle(t *testing.T) {
	s, eng := newTestControlPlane(t)

	connectResp := roundtrip(t, s, 0, common.NewPoolConnectRequest("pool-0"))
	if !connectResp.Ok || connectResp.Err != "" {
		t.Fatalf("PoolConnect failed: ok=%v err=%s", connectResp.Ok, connectResp.Err)
	}
	handle := connectResp.Value
	if len(handle) == 0 {
		t.Fatalf("PoolConnect returned an empty handle")
	}

	eng.Metrics.SetHeapUsage(4096, 1<<20)
	eng.Metrics.RecordGCSlice(3, 1, false)

	monitorResp := roundtrip(t, s, 0, common.NewPoolMonitorRequest(handle))
	if monitorResp.Err != "" {
		t.Fatalf("PoolMonitor returned error: %s", monitorResp.Err)
	}
	var info PoolMonitorInfo
	if err := json.Unmarshal(monitorResp.Meta, &info); err != nil {
		t.Fatalf("unmarshal pool monitor info: %v", err)
	}
	if info.HeapBytesUsed != 4096 || info.HeapBytesFree != 1<<20 {
		t.Fatalf("PoolMonitorInfo = %+v, want heap usage 4096/1048576", info)
	}
	if info.GCCreditsDrained != 3 || info.GCItemsFreed != 1 {
		t.Fatalf("PoolMonitorInfo = %+v, want GC credits=3 items=1", info)
	}

	disconnectResp := roundtrip(t, s, 0, common.NewPoolDisconnectRequest(handle))
	if !disconnectResp.Ok {
		t.Fatalf("PoolDisconnect failed: %s", disconnectResp.Err)
	}

	// A second disconnect on the same, now-released handle must fail.
	secondResp := roundtrip(t, s, 0, common.NewPoolDisconnectRequest(handle))
	if secondResp.Ok {
		t.Fatalf("second PoolDisconnect on a released handle unexpectedly succeeded")
	}
}

func TestNotifyExitReleasesHandle(t *testing.T) {
	s, _ := newTestControlPlane(t)

	connectResp := roundtrip(t, s, 0, common.NewPoolConnectRequest("pool-0"))
	if !connectResp.Ok {
		t.Fatalf("PoolConnect failed: %s", connectResp.Err)
	}

	exitResp := roundtrip(t, s, 0, common.NewNotifyExitRequest(connectResp.Value))
	if !exitResp.Ok {
		t.Fatalf("NotifyExit failed: %s", exitResp.Err)
	}

	// The handle is gone now; PoolMonitor against it must fail.
	monitorResp := roundtrip(t, s, 0, common.NewPoolMonitorRequest(connectResp.Value))
	if monitorResp.Err == "" {
		t.Fatalf("PoolMonitor succeeded against a handle released by NotifyExit")
	}
}

func TestSetupClientTelemetryIsAcknowledgedNoOp(t *testing.T) {
	s, _ := newTestControlPlane(t)

	resp := roundtrip(t, s, 0, common.NewSetupClientTelemetryRequest([]byte(`{"sink":"external"}`)))
	if !resp.Ok {
		t.Fatalf("SetupClientTelemetry was not acknowledged")
	}
}

func TestUnknownControlMethodReturnsError(t *testing.T) {
	s, _ := newTestControlPlane(t)

	resp := roundtrip(t, s, 0, &common.Message{MsgType: common.MsgTKVSet})
	if resp.Err == "" {
		t.Fatalf("expected an error for a non-control-plane message type")
	}
}
