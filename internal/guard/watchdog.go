package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"memwatchd/pkg/types"
)

// Watchdog is the composition root: it owns the tick loop and wires the
// monitor, threshold state machine, model registry, alert store and cleanup
// sequence. Construct with New; the zero value is not usable.
type Watchdog struct {
	cfg Config
	log zerolog.Logger

	monitor    *Monitor
	thresholds *ThresholdManager
	registry   *Registry
	alerts     *AlertCenter
	cleaner    *Cleaner
	bus        *Bus
	pub        EventPublisher

	savedMeta map[string]modelRecord

	mu        sync.Mutex
	active    bool
	ticker    Ticker
	stopCh    chan struct{}
	doneCh    chan struct{}
	startedAt time.Time

	ticks    atomic.Uint64
	failures atomic.Uint64
	cleanups atomic.Uint64
}

// New validates cfg and wires a stopped watchdog. Configuration problems are
// fatal here; nothing later in the lifecycle re-checks them.
func New(cfg Config) (*Watchdog, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	w := &Watchdog{cfg: cfg, log: cfg.Logger, bus: NewBus()}
	w.pub = multiPublisher{cfg.Publisher, w.bus}
	w.monitor = NewMonitor(cfg.Prober)
	w.thresholds = NewThresholdManager(cfg.Thresholds)
	w.registry = NewRegistry(cfg.ModelBudgetBytes, cfg.PriorityOrder, cfg.Unload)
	w.alerts = NewAlertCenter(w.pub, cfg.Logger)
	w.cleaner = NewCleaner(w.monitor, w.registry, w.alerts, cfg.GC, w.pub, cfg.Logger)
	w.loadModelMetadata()
	return w, nil
}

// Start launches the sampling loop. Calling it while already active is a
// no-op.
func (w *Watchdog) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active {
		return nil
	}
	w.ticker = w.cfg.NewTicker(w.cfg.SampleInterval)
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.startedAt = time.Now()
	w.active = true
	go w.run(w.ticker, w.stopCh, w.doneCh)
	w.log.Info().Dur("interval", w.cfg.SampleInterval).Msg("watchdog started")
	return nil
}

// Shutdown stops the loop and releases subscribers. Idempotent. An in-flight
// tick, including an emergency cleanup, runs to completion first; aborting
// mid-sequence could leave models half unloaded.
func (w *Watchdog) Shutdown() {
	w.mu.Lock()
	if !w.active {
		w.mu.Unlock()
		return
	}
	w.active = false
	w.ticker.Stop()
	close(w.stopCh)
	done := w.doneCh
	w.mu.Unlock()

	<-done
	w.saveModelMetadata()
	w.bus.Close()
	w.log.Info().Msg("watchdog stopped")
}

// Active reports whether the sampling loop is running.
func (w *Watchdog) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// CurrentMemory returns the latest memory sample.
func (w *Watchdog) CurrentMemory() types.SystemMemoryInfo { return w.monitor.Current() }

// ModelMemory returns the registry aggregate plus the per-model list.
func (w *Watchdog) ModelMemory() types.ModelMemoryStatus {
	return types.ModelMemoryStatus{Summary: w.registry.Summary(), Models: w.registry.List()}
}

// ActiveAlerts returns all unresolved alerts, newest first.
func (w *Watchdog) ActiveAlerts() []types.MemoryAlert { return w.alerts.Active() }

// AcknowledgeAlert marks an alert acknowledged; unknown ids return false.
func (w *Watchdog) AcknowledgeAlert(id string) bool { return w.alerts.Acknowledge(id) }

// DismissAlert removes an alert outright; unknown ids return false.
func (w *Watchdog) DismissAlert(id string) bool { return w.alerts.Dismiss(id) }

// RegisterModel inserts or replaces the registry record for info.ModelID.
// Persisted restart metadata fills a missing last access timestamp.
func (w *Watchdog) RegisterModel(info types.ModelMemoryInfo) error {
	if info.ModelID == "" {
		return errors.New("model id is required")
	}
	if rec, ok := w.savedMeta[info.ModelID]; ok && info.LastAccessedUnix == 0 {
		info.LastAccessedUnix = rec.LastAccessedUnix
	}
	w.registry.Register(info)
	return nil
}

// UnregisterModel removes the registry record for id.
func (w *Watchdog) UnregisterModel(id string) bool { return w.registry.Unregister(id) }

// TouchModel refreshes the last access timestamp for id.
func (w *Watchdog) TouchModel(id string) bool { return w.registry.Touch(id) }

// UnloadModel asks the inference layer to release id immediately, outside the
// tick loop.
func (w *Watchdog) UnloadModel(ctx context.Context, id string) error {
	return w.registry.Unload(ctx, id)
}

// SelectUnloadCandidates exposes the eviction plan for the given target.
func (w *Watchdog) SelectUnloadCandidates(targetBytes uint64) UnloadPlan {
	return w.registry.SelectUnloadCandidates(targetBytes)
}

// CreateCustomAlert is the entry point for externally-originated warnings
// (the GUI and other subsystems).
func (w *Watchdog) CreateCustomAlert(level types.AlertLevel, category, title, message string, autoResolve bool) types.MemoryAlert {
	return w.alerts.Create(level, category, title, message, nil, autoResolve)
}

// RunAlertAction executes a remediation action on an alert, best-effort.
func (w *Watchdog) RunAlertAction(ctx context.Context, alertID, actionID string) error {
	return w.alerts.RunAction(ctx, alertID, actionID)
}

// Subscribe registers an event listener; the cancel func releases it.
func (w *Watchdog) Subscribe() (<-chan Event, func()) { return w.bus.Subscribe() }

// tierAlertLevel maps a threshold tier name onto the alert severity scale.
func tierAlertLevel(level string) types.AlertLevel { return types.AlertLevel(level) }

// tierAlert raises (or refreshes) the alert for a newly entered tier.
func (w *Watchdog) tierAlert(category string, t Tier, usagePct float64) {
	title := "Memory usage high"
	if category == types.CategoryGPU {
		title = "GPU memory usage high"
	}
	if t.Rank >= levelRanks[types.LevelCritical] {
		title = "Memory pressure " + t.Level
	}
	msg := fmt.Sprintf("%s memory at %.1f%% (%s threshold %.1f%%)", category, usagePct, t.Level, t.TriggerPct)
	var actions []ActionSpec
	if t.Rank >= levelRanks[types.LevelCritical] {
		actions = append(actions, ActionSpec{
			ID:    "unload-idle",
			Label: "Unload idle models",
			Run: func(ctx context.Context) error {
				crit := t
				if c, ok := w.thresholds.Tier(types.LevelCritical); ok {
					crit = c
				}
				return w.proactiveUnload(ctx, w.monitor.Current(), category, crit)
			},
		})
	}
	w.alerts.Create(tierAlertLevel(t.Level), category, title, msg, actions, true)
}
