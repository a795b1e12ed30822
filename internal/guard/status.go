package guard

import (
	"time"

	"memwatchd/pkg/types"
)

// Status builds the aggregated view for GET /status.
func (w *Watchdog) Status() types.StatusResponse {
	w.mu.Lock()
	startedAt, active := w.startedAt, w.active
	w.mu.Unlock()

	var uptime int64
	if active {
		uptime = int64(time.Since(startedAt).Seconds())
	}
	thresholds := make([]types.MemoryThreshold, len(w.cfg.Thresholds))
	copy(thresholds, w.cfg.Thresholds)

	return types.StatusResponse{
		State:              w.thresholds.Overall(),
		States:             w.thresholds.States(),
		Memory:             w.monitor.Current(),
		Models:             w.registry.Summary(),
		Thresholds:         thresholds,
		ActiveAlerts:       w.alerts.Count(),
		UptimeSeconds:      uptime,
		ServerTimeUnix:     time.Now().Unix(),
		TicksTotal:         w.ticks.Load(),
		ProbeFailuresTotal: w.failures.Load(),
		UnloadsTotal:       w.registry.UnloadsTotal(),
		CleanupsTotal:      w.cleanups.Load(),
	}
}
