package guard

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"

	"memwatchd/pkg/types"
)

// GCHook is an optional runtime reclamation collaborator. Available is a
// capability query: a hook that is absent must never be mistaken for a
// successful collection.
type GCHook interface {
	Available() bool
	Run(ctx context.Context) error
}

// RuntimeGC forces a Go garbage collection and returns freed pages to the OS.
type RuntimeGC struct{}

func (RuntimeGC) Available() bool { return true }

func (RuntimeGC) Run(ctx context.Context) error {
	runtime.GC()
	debug.FreeOSMemory()
	return nil
}

// CleanupResult summarizes one emergency cleanup run.
type CleanupResult struct {
	MemorySaved  uint64
	ActionsTaken []string
	Failures     int
}

// Cleaner runs the last-resort reclamation sequence at the emergency tier:
// unload candidates sized to return below critical, the GC hook when one is
// available, then a forced re-sample to measure the outcome. It never
// re-enters threshold evaluation; the next scheduled tick does that.
type Cleaner struct {
	monitor  *Monitor
	registry *Registry
	alerts   *AlertCenter
	gc       GCHook
	pub      EventPublisher
	log      zerolog.Logger
}

// NewCleaner wires the cleanup sequence.
func NewCleaner(m *Monitor, r *Registry, a *AlertCenter, gc GCHook, pub EventPublisher, log zerolog.Logger) *Cleaner {
	if pub == nil {
		pub = noopPublisher{}
	}
	return &Cleaner{monitor: m, registry: r, alerts: a, gc: gc, pub: pub, log: log}
}

// categoryUsage extracts the usage figures a category is evaluated on. The
// gpu category reads the GPU aggregate; everything else reads system RAM. A
// sample without GPU data yields zeros for gpu.
func categoryUsage(sample types.SystemMemoryInfo, category string) (usagePct float64, usedBytes, totalBytes uint64) {
	if category == types.CategoryGPU {
		if sample.GPU == nil {
			return 0, 0, 0
		}
		return sample.GPU.UsagePercentage, sample.GPU.UsedBytes, sample.GPU.TotalBytes
	}
	return sample.UsagePercentage, sample.UsedBytes, sample.TotalBytes
}

// reclaimTarget computes the bytes to shed so usage lands just below the
// critical trigger, with the tier's hysteresis as cushion so the very next
// sample does not re-trigger. usagePct and totalBytes belong to the category
// under pressure, not necessarily system RAM.
func reclaimTarget(usagePct float64, totalBytes uint64, critical Tier) uint64 {
	floor := critical.TriggerPct - critical.Hysteresis
	if floor < 0 {
		floor = 0
	}
	over := usagePct - floor
	if over <= 0 || totalBytes == 0 {
		return 0
	}
	return uint64(over / 100 * float64(totalBytes))
}

// Run executes the cleanup sequence for one emergency tick. Individual unload
// failures are skipped, not fatal; a partial failure is documented in a
// critical alert while completed steps are kept. The result is always
// published as emergency_cleanup_completed.
func (c *Cleaner) Run(ctx context.Context, sample types.SystemMemoryInfo, category string, critical Tier) CleanupResult {
	usagePct, beforeUsed, totalBytes := categoryUsage(sample, category)
	res := CleanupResult{}

	target := reclaimTarget(usagePct, totalBytes, critical)
	plan := c.registry.SelectUnloadCandidates(target)
	c.log.Warn().
		Str("category", category).
		Float64("usage_pct", usagePct).
		Uint64("target_bytes", target).
		Int("candidates", len(plan.Candidates)).
		Uint64("shortfall_bytes", plan.ShortfallBytes).
		Msg("emergency cleanup started")

	var failed []string
	for _, cand := range plan.Candidates {
		if err := c.registry.Unload(ctx, cand.ModelID); err != nil {
			res.Failures++
			failed = append(failed, cand.ModelID)
			c.log.Error().Err(err).Str("model", cand.ModelID).Msg("emergency unload failed")
			continue
		}
		res.MemorySaved += cand.UnloadSavingsBytes
		res.ActionsTaken = append(res.ActionsTaken, "unloaded "+cand.ModelID)
	}

	if c.gc != nil && c.gc.Available() {
		if err := c.gc.Run(ctx); err != nil {
			res.Failures++
			c.log.Error().Err(err).Msg("gc hook failed")
		} else {
			res.ActionsTaken = append(res.ActionsTaken, "triggered gc")
		}
	}

	after, ok, err := c.monitor.Sample(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("post-cleanup resample failed")
	} else if ok {
		res.ActionsTaken = append(res.ActionsTaken, "resampled memory")
		_, afterUsed, afterTotal := categoryUsage(after, category)
		if afterTotal != 0 && afterUsed < beforeUsed {
			if measured := beforeUsed - afterUsed; measured > res.MemorySaved {
				res.MemorySaved = measured
			}
		}
	}

	if res.Failures > 0 {
		cerr := ErrCleanup(res.ActionsTaken, fmt.Errorf("%d of %d steps failed", res.Failures, res.Failures+len(res.ActionsTaken)))
		msg := fmt.Sprintf("Emergency cleanup partially failed: %v.", cerr)
		if len(failed) > 0 {
			msg += " Models still loaded: " + strings.Join(failed, ", ") + "."
		}
		if len(res.ActionsTaken) > 0 {
			msg += " Completed: " + strings.Join(res.ActionsTaken, "; ") + "."
		}
		c.alerts.Create(types.AlertCritical, types.CategoryCleanup, "Emergency cleanup incomplete", msg, nil, false)
	} else {
		c.alerts.Create(types.AlertInfo, types.CategoryCleanup, "Emergency cleanup completed",
			fmt.Sprintf("Reclaimed %d bytes (%s).", res.MemorySaved, strings.Join(res.ActionsTaken, "; ")), nil, true)
	}

	c.pub.Publish(Event{Name: EventCleanupCompleted, Category: types.CategoryCleanup, Fields: map[string]any{
		"memory_saved":  res.MemorySaved,
		"actions_taken": res.ActionsTaken,
		"failures":      res.Failures,
		"category":      category,
	}})
	return res
}
