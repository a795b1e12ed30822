package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"memwatchd/internal/guard"
	"memwatchd/internal/httpapi"
	"memwatchd/internal/sysprobe"
	"memwatchd/pkg/types"
)

func TestStatusAndMemoryReflectSample(t *testing.T) {
	h := newHarness(t, 50)
	h.tick(t)

	resp, body := httpGet(t, h.srv.URL+"/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/status status=%d", resp.StatusCode)
	}
	var st types.StatusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("status json: %v", err)
	}
	if st.State != types.LevelNormal {
		t.Fatalf("state = %q, want normal", st.State)
	}
	if st.Memory.UsagePercentage != 50 {
		t.Fatalf("usage = %.1f, want 50", st.Memory.UsagePercentage)
	}
	if st.TicksTotal != 1 {
		t.Fatalf("ticks = %d, want 1", st.TicksTotal)
	}
}

func TestWarningEscalatesAndClears(t *testing.T) {
	h := newHarness(t, 60, 80, 60)

	h.tick(t) // 60%, normal
	h.tick(t) // 80%, warning

	var st types.StatusResponse
	_, body := httpGet(t, h.srv.URL+"/status")
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("status json: %v", err)
	}
	if st.State != types.LevelWarning {
		t.Fatalf("state after 80%% = %q, want warning", st.State)
	}

	_, body = httpGet(t, h.srv.URL+"/alerts")
	var alerts struct {
		Alerts []types.MemoryAlert `json:"alerts"`
	}
	if err := json.Unmarshal(body, &alerts); err != nil {
		t.Fatalf("alerts json: %v", err)
	}
	if len(alerts.Alerts) != 1 || alerts.Alerts[0].Level != types.AlertWarning {
		t.Fatalf("alerts = %+v", alerts.Alerts)
	}

	h.tick(t) // 60%, below 75-5 so the tier clears
	_, body = httpGet(t, h.srv.URL+"/status")
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("status json: %v", err)
	}
	if st.State != types.LevelNormal {
		t.Fatalf("state after drop = %q, want normal", st.State)
	}
	_, body = httpGet(t, h.srv.URL+"/alerts")
	if err := json.Unmarshal(body, &alerts); err != nil {
		t.Fatalf("alerts json: %v", err)
	}
	if len(alerts.Alerts) != 0 {
		t.Fatalf("auto-resolve left alerts: %+v", alerts.Alerts)
	}
}

// unloadingHarness extends the basic harness with a succeeding unload callback
// so eviction scenarios remove models for real.
func newUnloadingHarness(t *testing.T, pcts ...float64) (*harness, func() []string) {
	t.Helper()
	probe := &sysprobe.Sequence{}
	for _, p := range pcts {
		probe.Push(sysprobe.Step{Info: sysprobe.SampleAtPct(p)})
	}
	ticker := guard.NewManualTicker()
	var mu sync.Mutex
	var unloaded []string
	wd, err := guard.New(guard.Config{
		Prober:    probe,
		NewTicker: func(time.Duration) guard.Ticker { return ticker },
		GC:        guard.RuntimeGC{},
		Unload: func(ctx context.Context, modelID string) error {
			mu.Lock()
			unloaded = append(unloaded, modelID)
			mu.Unlock()
			return nil
		},
	})
	if err != nil {
		t.Fatalf("construct watchdog: %v", err)
	}
	if err := wd.Start(); err != nil {
		t.Fatalf("start watchdog: %v", err)
	}
	t.Cleanup(wd.Shutdown)
	srv := newServer(t, wd)
	snapshot := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), unloaded...)
	}
	return &harness{srv: srv, wd: wd, probe: probe, ticker: ticker}, snapshot
}

func TestCriticalTriggersProactiveUnload(t *testing.T) {
	h, unloaded := newUnloadingHarness(t, 60, 90)
	h.tick(t)

	registerModel(t, h.srv.URL, "idle-model", 3, 1)

	h.tick(t) // 90% raises warning and critical; critical evicts

	ids := unloaded()
	if len(ids) != 1 || ids[0] != "idle-model" {
		t.Fatalf("unloaded = %v, want [idle-model]", ids)
	}

	_, body := httpGet(t, h.srv.URL+"/models")
	var ms types.ModelMemoryStatus
	if err := json.Unmarshal(body, &ms); err != nil {
		t.Fatalf("models json: %v", err)
	}
	if len(ms.Models) != 0 {
		t.Fatalf("model still registered after unload: %+v", ms.Models)
	}
}

func TestEmergencyCleanupRunsAndRecovers(t *testing.T) {
	h, unloaded := newUnloadingHarness(t, 60, 96, 80)
	h.tick(t)
	registerModel(t, h.srv.URL, "big-model", 4, 1)

	h.tick(t) // 96% walks warning, critical, emergency; cleanup runs

	if len(unloaded()) == 0 {
		t.Fatal("cleanup did not unload anything")
	}
	var st types.StatusResponse
	_, body := httpGet(t, h.srv.URL+"/status")
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("status json: %v", err)
	}
	if st.CleanupsTotal != 1 {
		t.Fatalf("cleanups = %d, want 1", st.CleanupsTotal)
	}
}

func TestProbeFailureMarksSampleStale(t *testing.T) {
	h := newHarness(t, 50)
	h.probe.Push(sysprobe.Step{Err: errors.New("sensor offline")})
	h.tick(t)
	h.tick(t)

	_, body := httpGet(t, h.srv.URL+"/memory")
	var m types.SystemMemoryInfo
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatalf("memory json: %v", err)
	}
	if !m.Stale {
		t.Fatal("sample not marked stale after probe failure")
	}
	if m.UsagePercentage != 50 {
		t.Fatalf("stale sample lost values: %.1f", m.UsagePercentage)
	}
}

func TestEventStreamDeliversMemoryUpdates(t *testing.T) {
	h := newHarness(t, 50)

	wsAddr := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsAddr, nil)
	if err != nil {
		t.Fatalf("dial events: %v", err)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	h.tick(t)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev guard.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Name != guard.EventMemoryUpdate {
		t.Fatalf("first event = %q, want %q", ev.Name, guard.EventMemoryUpdate)
	}
}

func TestModelLifecycleOverAPI(t *testing.T) {
	h := newHarness(t, 50)
	h.tick(t)

	registerModel(t, h.srv.URL, "m1", 1, 5)

	resp, _ := httpPostJSON(t, h.srv.URL+"/models/m1/touch", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("touch status=%d", resp.StatusCode)
	}
	if resp := httpDelete(t, h.srv.URL+"/models/m1"); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status=%d", resp.StatusCode)
	}
	if resp := httpDelete(t, h.srv.URL+"/models/m1"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status=%d", resp.StatusCode)
	}
}

func newServer(t *testing.T, wd *guard.Watchdog) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(httpapi.NewMux(wd))
	t.Cleanup(srv.Close)
	return srv
}
