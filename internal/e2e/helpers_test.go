package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"memwatchd/internal/guard"
	"memwatchd/internal/httpapi"
	"memwatchd/internal/sysprobe"
	"memwatchd/pkg/types"
)

// harness bundles a running watchdog, its HTTP server and the knobs tests
// drive: the scripted prober and the manual tick source.
type harness struct {
	srv    *httptest.Server
	wd     *guard.Watchdog
	probe  *sysprobe.Sequence
	ticker *guard.ManualTicker
}

// newHarness starts a watchdog on a scripted memory sequence behind a real
// HTTP server. The first step is probed on the first tick.
func newHarness(t *testing.T, pcts ...float64) *harness {
	t.Helper()
	probe := &sysprobe.Sequence{}
	for _, p := range pcts {
		probe.Push(sysprobe.Step{Info: sysprobe.SampleAtPct(p)})
	}
	ticker := guard.NewManualTicker()
	wd, err := guard.New(guard.Config{
		Prober:    probe,
		NewTicker: func(time.Duration) guard.Ticker { return ticker },
	})
	if err != nil {
		t.Fatalf("construct watchdog: %v", err)
	}
	if err := wd.Start(); err != nil {
		t.Fatalf("start watchdog: %v", err)
	}
	t.Cleanup(wd.Shutdown)
	srv := httptest.NewServer(httpapi.NewMux(wd))
	t.Cleanup(srv.Close)
	return &harness{srv: srv, wd: wd, probe: probe, ticker: ticker}
}

// tick delivers one tick and waits for the loop to process it, using the
// status tick counter as the completion signal.
func (h *harness) tick(t *testing.T) {
	t.Helper()
	before := h.wd.Status().TicksTotal
	h.ticker.Tick()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.wd.Status().TicksTotal > before {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("tick not processed within deadline")
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpDelete(t *testing.T, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodDelete, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE %s: %v", url, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp
}

// registerModel announces a simple unloadable model over the API.
func registerModel(t *testing.T, base, id string, sizeGiB int, priority int) {
	t.Helper()
	info := types.ModelMemoryInfo{
		ModelID:            id,
		MemoryBytes:        uint64(sizeGiB) << 30,
		IsLoaded:           true,
		CanUnload:          true,
		Priority:           priority,
		UnloadSavingsBytes: uint64(sizeGiB) << 30,
	}
	body, err := json.Marshal(info)
	if err != nil {
		t.Fatalf("marshal model: %v", err)
	}
	resp, raw := httpPostJSON(t, base+"/models", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status=%d body=%s", id, resp.StatusCode, raw)
	}
}
