package guard

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"memwatchd/internal/sysprobe"
	"memwatchd/pkg/types"
)

type fakeGC struct {
	available bool
	runs      int
	err       error
}

func (g *fakeGC) Available() bool { return g.available }
func (g *fakeGC) Run(ctx context.Context) error {
	g.runs++
	return g.err
}

func critTier() Tier {
	return Tier{Level: types.LevelCritical, Rank: 2, TriggerPct: 87.5, Hysteresis: 5}
}

// withGPU attaches a 24 GiB GPU aggregate at pct to a system sample.
func withGPU(info types.SystemMemoryInfo, pct float64) types.SystemMemoryInfo {
	total := 24 * gib
	used := uint64(pct / 100 * float64(total))
	info.GPU = &types.GPUMemoryInfo{
		TotalBytes:      total,
		UsedBytes:       used,
		AvailableBytes:  total - used,
		UsagePercentage: pct,
	}
	return info
}

func TestReclaimTarget(t *testing.T) {
	sample := sysprobe.SampleAtPct(96)
	target := reclaimTarget(sample.UsagePercentage, sample.TotalBytes, critTier())
	// 96% down to 82.5% of 32 GiB.
	wantPct := 96.0 - 82.5
	want := uint64(wantPct / 100 * float64(sample.TotalBytes))
	if target != want {
		t.Fatalf("target = %d, want %d", target, want)
	}
	low := sysprobe.SampleAtPct(50)
	if got := reclaimTarget(low.UsagePercentage, low.TotalBytes, critTier()); got != 0 {
		t.Fatalf("below the floor target should be 0, got %d", got)
	}
}

func TestCategoryUsage(t *testing.T) {
	sample := withGPU(sysprobe.SampleAtPct(50), 96)

	pct, used, total := categoryUsage(sample, types.CategorySystem)
	if pct != 50 || total != sample.TotalBytes || used != sample.UsedBytes {
		t.Fatalf("system usage = (%.1f, %d, %d)", pct, used, total)
	}
	pct, used, total = categoryUsage(sample, types.CategoryGPU)
	if pct != 96 || total != sample.GPU.TotalBytes || used != sample.GPU.UsedBytes {
		t.Fatalf("gpu usage = (%.1f, %d, %d)", pct, used, total)
	}
	pct, used, total = categoryUsage(sysprobe.SampleAtPct(50), types.CategoryGPU)
	if pct != 0 || used != 0 || total != 0 {
		t.Fatalf("gpu usage without gpu data = (%.1f, %d, %d), want zeros", pct, used, total)
	}
}

func TestCleaner_Run_UnloadsGCAndResamples(t *testing.T) {
	seq := &sysprobe.Sequence{Steps: []sysprobe.Step{
		{Info: sysprobe.SampleAtPct(80)}, // post-cleanup resample
	}}
	mon := NewMonitor(seq)
	reg := NewRegistry(0, PriorityLowFirst, func(ctx context.Context, id string) error { return nil })
	reg.Register(model("big", 2*gib, 1, 0, true))
	alerts, pub := newAlertCenter()
	gc := &fakeGC{available: true}
	c := NewCleaner(mon, reg, alerts, gc, pub, zerolog.Nop())

	res := c.Run(context.Background(), sysprobe.SampleAtPct(96), types.CategorySystem, critTier())

	if res.MemorySaved < 2*gib {
		t.Fatalf("memory saved = %d, want >= 2GiB", res.MemorySaved)
	}
	if res.Failures != 0 {
		t.Fatalf("failures = %d", res.Failures)
	}
	if gc.runs != 1 {
		t.Fatalf("gc runs = %d, want 1", gc.runs)
	}
	if _, ok := reg.Get("big"); ok {
		t.Fatalf("model still registered after cleanup")
	}
	if cur := mon.Current(); cur.UsagePercentage >= 87.5 {
		t.Fatalf("resample still at/above critical: %.1f%%", cur.UsagePercentage)
	}
	evts := pub.Named(EventCleanupCompleted)
	if len(evts) != 1 {
		t.Fatalf("cleanup events = %d, want 1", len(evts))
	}
	if saved, ok := evts[0].Fields["memory_saved"].(uint64); !ok || saved < 2*gib {
		t.Fatalf("event memory_saved = %v", evts[0].Fields["memory_saved"])
	}
}

func TestCleaner_Run_GPUPressureSizesTargetFromGPU(t *testing.T) {
	// System RAM is comfortable; only the GPU aggregate is over the limit.
	seq := &sysprobe.Sequence{Steps: []sysprobe.Step{
		{Info: withGPU(sysprobe.SampleAtPct(50), 80)}, // post-cleanup resample
	}}
	mon := NewMonitor(seq)
	reg := NewRegistry(0, PriorityLowFirst, func(ctx context.Context, id string) error { return nil })
	reg.Register(model("vision", 2*gib, 1, 0, true))
	alerts, pub := newAlertCenter()
	c := NewCleaner(mon, reg, alerts, &fakeGC{available: true}, pub, zerolog.Nop())

	res := c.Run(context.Background(), withGPU(sysprobe.SampleAtPct(50), 96), types.CategoryGPU, critTier())

	if res.MemorySaved < 2*gib {
		t.Fatalf("memory saved = %d, want >= 2GiB", res.MemorySaved)
	}
	if _, ok := reg.Get("vision"); ok {
		t.Fatalf("model still registered after gpu cleanup")
	}
	evts := pub.Named(EventCleanupCompleted)
	if len(evts) != 1 {
		t.Fatalf("cleanup events = %d, want 1", len(evts))
	}
	if saved, ok := evts[0].Fields["memory_saved"].(uint64); !ok || saved < 2*gib {
		t.Fatalf("event memory_saved = %v", evts[0].Fields["memory_saved"])
	}
}

func TestCleaner_Run_GCSkippedWhenUnavailable(t *testing.T) {
	seq := &sysprobe.Sequence{Steps: []sysprobe.Step{{Info: sysprobe.SampleAtPct(90)}}}
	mon := NewMonitor(seq)
	reg := NewRegistry(0, PriorityLowFirst, func(ctx context.Context, id string) error { return nil })
	alerts, pub := newAlertCenter()
	gc := &fakeGC{available: false}
	c := NewCleaner(mon, reg, alerts, gc, pub, zerolog.Nop())

	res := c.Run(context.Background(), sysprobe.SampleAtPct(96), types.CategorySystem, critTier())
	if gc.runs != 0 {
		t.Fatalf("unavailable gc hook was invoked")
	}
	for _, a := range res.ActionsTaken {
		if a == "triggered gc" {
			t.Fatalf("gc reported as taken while unavailable")
		}
	}
}

func TestCleaner_Run_PartialFailureKeepsCompletedSteps(t *testing.T) {
	seq := &sysprobe.Sequence{Steps: []sysprobe.Step{{Info: sysprobe.SampleAtPct(92)}}}
	mon := NewMonitor(seq)
	reg := NewRegistry(0, PriorityLowFirst, func(ctx context.Context, id string) error {
		if id == "stuck" {
			return errors.New("engine refused")
		}
		return nil
	})
	reg.Register(model("stuck", 2*gib, 1, 0, true))
	reg.Register(model("ok", 2*gib, 2, 0, true))
	alerts, pub := newAlertCenter()
	c := NewCleaner(mon, reg, alerts, nil, pub, zerolog.Nop())

	res := c.Run(context.Background(), sysprobe.SampleAtPct(96), types.CategorySystem, critTier())

	if res.Failures != 1 {
		t.Fatalf("failures = %d, want 1", res.Failures)
	}
	if _, ok := reg.Get("stuck"); !ok {
		t.Fatalf("failed model should stay registered")
	}
	if _, ok := reg.Get("ok"); ok {
		t.Fatalf("completed unload was rolled back")
	}

	var critAlert bool
	for _, a := range alerts.Active() {
		if a.Level == types.AlertCritical && a.Category == types.CategoryCleanup {
			critAlert = true
		}
	}
	if !critAlert {
		t.Fatalf("partial failure not documented as critical alert; active: %+v", alerts.Active())
	}
	// The completion event still fires with what was achieved.
	if len(pub.Named(EventCleanupCompleted)) != 1 {
		t.Fatalf("cleanup completion event missing")
	}
}

func TestRuntimeGC_IsAvailable(t *testing.T) {
	var gc RuntimeGC
	if !gc.Available() {
		t.Fatalf("runtime gc hook should report available")
	}
	if err := gc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
