package guard

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"memwatchd/internal/sysprobe"
	"memwatchd/pkg/types"
)

// UnloadFunc asks the inference layer to release a loaded model. The watchdog
// imposes no timeout: a hung callback counts as still in progress.
type UnloadFunc func(ctx context.Context, modelID string) error

// PriorityOrder selects which end of the priority range is evicted first.
type PriorityOrder string

const (
	// PriorityLowFirst evicts lower priority values first (lower = less
	// important). This is the default convention.
	PriorityLowFirst PriorityOrder = "low-first"
	// PriorityHighFirst evicts higher priority values first.
	PriorityHighFirst PriorityOrder = "high-first"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultSampleInterval = 5 * time.Second
	defaultHysteresisPct  = 5.0
)

// defaultThresholds mirrors the stock desktop configuration.
func defaultThresholds() []types.MemoryThreshold {
	return []types.MemoryThreshold{
		{Level: types.LevelWarning, TriggerPct: 75, HysteresisPct: defaultHysteresisPct},
		{Level: types.LevelCritical, TriggerPct: 87.5, HysteresisPct: defaultHysteresisPct},
		{Level: types.LevelEmergency, TriggerPct: 95, HysteresisPct: defaultHysteresisPct},
	}
}

// Config encapsulates all tunables and collaborators for Watchdog
// construction. Thresholds and budget are fixed for the lifetime of the
// instance; there is no mid-session mutation path.
type Config struct {
	// SampleInterval is the tick period. Defaults to 5s.
	SampleInterval time.Duration
	// Thresholds are the severity tiers, any order; they are sorted and
	// checked at construction. Defaults to 75/87.5/95 with 5pt hysteresis.
	Thresholds []types.MemoryThreshold
	// ModelBudgetBytes caps the model registry for utilization reporting.
	// Zero means no budget.
	ModelBudgetBytes uint64
	// PriorityOrder is the eviction convention. Defaults to PriorityLowFirst.
	PriorityOrder PriorityOrder
	// StateFile persists model eviction metadata across restarts. Empty
	// disables persistence.
	StateFile string

	// Prober reads memory samples. Defaults to sysprobe.New().
	Prober sysprobe.Prober
	// Unload releases a model in the inference layer. Nil makes every unload
	// attempt fail with an unload error rather than silently succeed.
	Unload UnloadFunc
	// GC is the optional runtime reclamation hook. Nil skips the GC step.
	GC GCHook
	// NewTicker builds the tick source. Defaults to NewWallTicker.
	NewTicker func(time.Duration) Ticker
	// Publisher receives all events in addition to bus subscribers.
	Publisher EventPublisher
	// Logger for all watchdog logging. Defaults to a disabled logger.
	Logger zerolog.Logger
}

// withDefaults returns cfg with zero fields replaced by package defaults.
func (cfg Config) withDefaults() Config {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = defaultSampleInterval
	}
	if len(cfg.Thresholds) == 0 {
		cfg.Thresholds = defaultThresholds()
	}
	if cfg.PriorityOrder == "" {
		cfg.PriorityOrder = PriorityLowFirst
	}
	if cfg.Prober == nil {
		cfg.Prober = sysprobe.New()
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = NewWallTicker
	}
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	return cfg
}

// validate rejects configurations the watchdog cannot run with. Everything it
// returns is a configuration error and fatal at construction.
func (cfg Config) validate() error {
	switch cfg.PriorityOrder {
	case PriorityLowFirst, PriorityHighFirst:
	default:
		return ErrConfiguration("unknown priority order %q", cfg.PriorityOrder)
	}
	rank := map[string]int{types.LevelWarning: 1, types.LevelCritical: 2, types.LevelEmergency: 3}
	seen := map[string]bool{}
	for _, t := range cfg.Thresholds {
		if rank[t.Level] == 0 {
			return ErrConfiguration("unknown threshold level %q", t.Level)
		}
		if seen[t.Level] {
			return ErrConfiguration("duplicate threshold level %q", t.Level)
		}
		seen[t.Level] = true
		if t.TriggerPct <= 0 || t.TriggerPct > 100 {
			return ErrConfiguration("threshold %s trigger %.1f%% outside (0,100]", t.Level, t.TriggerPct)
		}
		if t.HysteresisPct < 0 {
			return ErrConfiguration("threshold %s has negative hysteresis", t.Level)
		}
	}
	for _, a := range cfg.Thresholds {
		for _, b := range cfg.Thresholds {
			if rank[a.Level] < rank[b.Level] && a.TriggerPct >= b.TriggerPct {
				return ErrConfiguration("threshold %s (%.1f%%) must trigger below %s (%.1f%%)",
					a.Level, a.TriggerPct, b.Level, b.TriggerPct)
			}
		}
	}
	return nil
}
