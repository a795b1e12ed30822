package guard

import (
	"context"
	"fmt"

	"memwatchd/pkg/types"
)

// run drives ticks until stop closes. One tick runs to completion before the
// next is taken; there are no overlapping ticks.
func (w *Watchdog) run(tk Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ctx := context.Background()
	for {
		select {
		case <-stop:
			return
		case <-tk.C():
			w.safeTick(ctx)
			// A tick that outlived the interval leaves the next one pending;
			// drop it so sampling never piles up.
			select {
			case <-tk.C():
			default:
			}
		}
	}
}

// safeTick isolates a tick: a panic anywhere in evaluation abandons the tick
// and retains the previous threshold state.
func (w *Watchdog) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error().Err(ErrEvaluation("tick", r)).Msg("evaluation tick abandoned")
		}
	}()
	w.tick(ctx)
}

// tick is one pass of sample → evaluate → react.
func (w *Watchdog) tick(ctx context.Context) {
	sample, ok, err := w.monitor.Sample(ctx)
	if err != nil {
		w.failures.Add(1)
		metricProbeFailures.Inc()
		w.log.Warn().Err(err).Bool("stale_reused", ok).Msg("memory probe failed")
		if !ok {
			// Nothing sampled yet; no data to evaluate.
			return
		}
	}

	w.pub.Publish(Event{Name: EventMemoryUpdate, Category: types.CategorySystem, Fields: map[string]any{
		"usage_pct":   sample.UsagePercentage,
		"used_bytes":  sample.UsedBytes,
		"total_bytes": sample.TotalBytes,
		"stale":       sample.Stale,
	}})
	metricUsagePct.WithLabelValues(types.CategorySystem).Set(sample.UsagePercentage)

	w.evaluate(ctx, types.CategorySystem, sample, sample.UsagePercentage)
	if sample.GPU != nil {
		metricUsagePct.WithLabelValues(types.CategoryGPU).Set(sample.GPU.UsagePercentage)
		w.evaluate(ctx, types.CategoryGPU, sample, sample.GPU.UsagePercentage)
	}

	w.ticks.Add(1)
	metricTicks.Inc()
	metricAlertsActive.Set(float64(w.alerts.Count()))
}

// evaluate advances one category's tier state and runs the reactions for
// every tier crossed.
func (w *Watchdog) evaluate(ctx context.Context, category string, sample types.SystemMemoryInfo, usagePct float64) {
	raised, cleared := w.thresholds.Evaluate(category, usagePct)

	for _, t := range raised {
		metricTransitions.WithLabelValues(category, t.Level, "raise").Inc()
		w.pub.Publish(Event{Name: EventThresholdRaised, Category: category, Fields: map[string]any{
			"level":     t.Level,
			"usage_pct": usagePct,
		}})
		w.log.Warn().Str("category", category).Str("level", t.Level).Float64("usage_pct", usagePct).Msg("threshold triggered")
		w.tierAlert(category, t, usagePct)

		switch t.Rank {
		case levelRanks[types.LevelCritical]:
			if err := w.proactiveUnload(ctx, sample, category, t); err != nil {
				w.log.Error().Err(err).Str("category", category).Msg("proactive unload incomplete")
			}
		case levelRanks[types.LevelEmergency]:
			w.runCleanup(ctx, sample, category)
		}
	}

	for _, t := range cleared {
		metricTransitions.WithLabelValues(category, t.Level, "clear").Inc()
		w.pub.Publish(Event{Name: EventThresholdCleared, Category: category, Fields: map[string]any{
			"level":     t.Level,
			"usage_pct": usagePct,
		}})
		w.log.Info().Str("category", category).Str("level", t.Level).Float64("usage_pct", usagePct).Msg("threshold cleared")
		w.alerts.ResolveCleared(tierAlertLevel(t.Level), category)
		if t.Rank == levelRanks[types.LevelEmergency] {
			// The cleanup summary rides on the emergency episode that produced it.
			w.alerts.ResolveCleared(types.AlertInfo, types.CategoryCleanup)
		}
	}
}

// proactiveUnload sheds enough models to land below the critical trigger of
// the pressured category. Individual failures are surfaced as alerts and
// skipped; no same-tick retry.
func (w *Watchdog) proactiveUnload(ctx context.Context, sample types.SystemMemoryInfo, category string, critical Tier) error {
	usagePct, _, totalBytes := categoryUsage(sample, category)
	target := reclaimTarget(usagePct, totalBytes, critical)
	if target == 0 {
		return nil
	}
	plan := w.registry.SelectUnloadCandidates(target)
	if plan.ShortfallBytes > 0 {
		w.log.Warn().Uint64("target_bytes", target).Uint64("shortfall_bytes", plan.ShortfallBytes).
			Msg("unload candidates cannot cover reclaim target")
	}
	var firstErr error
	for _, cand := range plan.Candidates {
		err := w.registry.Unload(ctx, cand.ModelID)
		if err == nil {
			w.pub.Publish(Event{Name: EventModelUnloaded, Category: types.CategoryModel, ModelID: cand.ModelID, Fields: map[string]any{
				"savings_bytes": cand.UnloadSavingsBytes,
			}})
			continue
		}
		if firstErr == nil {
			firstErr = err
		}
		w.log.Error().Err(err).Str("model", cand.ModelID).Msg("unload failed")
		w.alerts.Create(types.AlertWarning, types.CategoryModel, "Model unload failed",
			fmt.Sprintf("Could not unload %s: %v. The model remains loaded.", cand.ModelID, err), nil, false)
	}
	return firstErr
}

// runCleanup executes the emergency sequence for the pressured category. The
// critical tier supplies the reclaim floor; in a configuration without one
// the emergency tier does.
func (w *Watchdog) runCleanup(ctx context.Context, sample types.SystemMemoryInfo, category string) {
	crit, ok := w.thresholds.Tier(types.LevelCritical)
	if !ok {
		crit, _ = w.thresholds.Tier(types.LevelEmergency)
	}
	w.cleaner.Run(ctx, sample, category, crit)
	w.cleanups.Add(1)
	metricCleanups.Inc()
}
