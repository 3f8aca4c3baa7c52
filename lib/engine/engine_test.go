package engine

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/lni/vfs"

	"github.com/vosdb/engine/lib/ilog"
)

func TestInitFiniLifecycle(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.PoolPath = "lifecycle-test.vosd"
	cfg.NumZones = 2

	e, err := Init(cfg, vfs.NewMem())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if e.Heap == nil || e.Pool == nil || e.Clock == nil || e.DTX == nil || e.GC == nil {
		t.Fatalf("Init left a component nil: %+v", e)
	}

	if err := e.Fini(); err != nil {
		t.Fatalf("Fini: %v", err)
	}
}

func TestInitReopensExistingPool(t *testing.T) {
	fs := vfs.NewMem()
	cfg := DefaultEngineConfig()
	cfg.PoolPath = "reopen-test.vosd"
	cfg.NumZones = 2

	e1, err := Init(cfg, fs)
	if err != nil {
		t.Fatalf("first Init: %v", err)
	}
	if err := e1.Fini(); err != nil {
		t.Fatalf("first Fini: %v", err)
	}

	e2, err := Init(cfg, fs)
	if err != nil {
		t.Fatalf("second Init (reopen): %v", err)
	}
	if err := e2.Fini(); err != nil {
		t.Fatalf("second Fini: %v", err)
	}
}

func TestWrapAndKindOfRoundtrip(t *testing.T) {
	err := Wrap(errors.New("disk failed"), KindIO, "engine: write extent")
	kind, ok := KindOf(err)
	if !ok {
		t.Fatalf("KindOf reported not tagged")
	}
	if kind != KindIO {
		t.Fatalf("KindOf = %v, want KindIO", kind)
	}
	if !errors.Is(err, ErrIO) {
		t.Fatalf("errors.Is(err, ErrIO) = false")
	}
}

func TestKindOfUntaggedErrorReturnsFalse(t *testing.T) {
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Fatalf("KindOf reported tagged for a plain error")
	}
}

func TestErrTxRestartAliasesIlog(t *testing.T) {
	if !errors.Is(ilog.ErrTxRestart, ErrTxRestart) {
		t.Fatalf("engine.ErrTxRestart does not alias ilog.ErrTxRestart")
	}
}

func TestEngineConfigApplyEnviron(t *testing.T) {
	env := map[string]string{
		"CRT_TIMEOUT":    "15",
		"D_INTERFACE":    "eth0",
		"OFI_DOMAIN":     "legacy-domain",
		"D_PROVIDER":     "ofi+tcp",
		"FI_OFI_RXM_USE_SRX": "1",
	}
	cfg := DefaultEngineConfig()
	cfg.ApplyEnviron(func(k string) (string, bool) { v, ok := env[k]; return v, ok })

	if cfg.CrtTimeout.Seconds() != 15 {
		t.Fatalf("CrtTimeout = %v, want 15s", cfg.CrtTimeout)
	}
	if cfg.Interface != "eth0" {
		t.Fatalf("Interface = %q, want eth0", cfg.Interface)
	}
	if cfg.Domain != "legacy-domain" {
		t.Fatalf("Domain = %q, want legacy-domain (from deprecated alias)", cfg.Domain)
	}
	if !cfg.RxmUseSRX {
		t.Fatalf("RxmUseSRX = false, want true")
	}
}

func TestEngineConfigApplyEnvironPrefersNonDeprecated(t *testing.T) {
	env := map[string]string{
		"D_DOMAIN":   "preferred",
		"OFI_DOMAIN": "deprecated",
	}
	cfg := DefaultEngineConfig()
	cfg.ApplyEnviron(func(k string) (string, bool) { v, ok := env[k]; return v, ok })

	if cfg.Domain != "preferred" {
		t.Fatalf("Domain = %q, want the non-deprecated D_DOMAIN value", cfg.Domain)
	}
}

func TestSchedulerSubmitAndWait(t *testing.T) {
	sched := NewScheduler(context.Background(), 2)
	defer sched.Close()

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		sched.Submit(func(ctx context.Context) error {
			ran.Add(1)
			return Yield(ctx)
		})
	}
	if err := sched.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if ran.Load() != 5 {
		t.Fatalf("ran = %d, want 5", ran.Load())
	}
}

func TestSchedulerWaitReturnsTaskError(t *testing.T) {
	sched := NewScheduler(context.Background(), 1)
	defer sched.Close()

	boom := errors.New("boom")
	sched.Submit(func(ctx context.Context) error { return boom })

	if err := sched.Wait(); !errors.Is(err, boom) {
		t.Fatalf("Wait() = %v, want boom", err)
	}
}
