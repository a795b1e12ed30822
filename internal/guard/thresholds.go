package guard

import (
	"sort"
	"sync"

	"memwatchd/pkg/types"
)

// Tier is one configured severity level with its rank resolved. Rank 0 is
// normal and never appears in the tier list.
type Tier struct {
	Level      string
	Rank       int
	TriggerPct float64
	Hysteresis float64
}

// levelRanks orders the configurable tier names. Normal is implicit rank 0.
var levelRanks = map[string]int{
	types.LevelWarning:   1,
	types.LevelCritical:  2,
	types.LevelEmergency: 3,
}

// ThresholdManager holds the per-category severity state machine. Tiers are
// immutable after construction; states are written only by the tick loop.
type ThresholdManager struct {
	tiers []Tier // ascending by rank

	mu     sync.RWMutex
	states map[string]int // category -> current rank
}

// NewThresholdManager sorts the configured thresholds into ranked tiers.
// Configurations reach here already validated.
func NewThresholdManager(ts []types.MemoryThreshold) *ThresholdManager {
	tiers := make([]Tier, 0, len(ts))
	for _, t := range ts {
		tiers = append(tiers, Tier{
			Level:      t.Level,
			Rank:       levelRanks[t.Level],
			TriggerPct: t.TriggerPct,
			Hysteresis: t.HysteresisPct,
		})
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Rank < tiers[j].Rank })
	return &ThresholdManager{tiers: tiers, states: make(map[string]int)}
}

// Tiers returns the configured tiers in ascending rank order.
func (tm *ThresholdManager) Tiers() []Tier {
	out := make([]Tier, len(tm.tiers))
	copy(out, tm.tiers)
	return out
}

// Tier returns the configured tier for a level name.
func (tm *ThresholdManager) Tier(level string) (Tier, bool) {
	for _, t := range tm.tiers {
		if t.Level == level {
			return t, true
		}
	}
	return Tier{}, false
}

// State returns the current severity level name for a category.
func (tm *ThresholdManager) State(category string) string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.levelName(tm.states[category])
}

// States returns a copy of all category states by level name.
func (tm *ThresholdManager) States() map[string]string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	out := make(map[string]string, len(tm.states))
	for c, r := range tm.states {
		out[c] = tm.levelName(r)
	}
	return out
}

func (tm *ThresholdManager) levelName(rank int) string {
	for _, t := range tm.tiers {
		if t.Rank == rank {
			return t.Level
		}
	}
	return types.LevelNormal
}

// Evaluate advances the state machine for one category with a fresh usage
// percentage. It returns the tiers newly entered in ascending order, or the
// tiers left in descending order; at most one of the two is non-empty.
//
// Escalation steps through every intermediate tier so a single-tick jump
// across several thresholds surfaces each level in order. De-escalation
// requires usage strictly below trigger − hysteresis and falls directly to
// the highest tier still held.
func (tm *ThresholdManager) Evaluate(category string, usagePct float64) (raised, cleared []Tier) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	cur := tm.states[category]

	exceeded := 0
	for _, t := range tm.tiers {
		if usagePct >= t.TriggerPct {
			exceeded = t.Rank
		}
	}
	if exceeded > cur {
		for _, t := range tm.tiers {
			if t.Rank > cur && t.Rank <= exceeded {
				raised = append(raised, t)
			}
		}
		tm.states[category] = exceeded
		return raised, nil
	}

	held := 0
	for _, t := range tm.tiers {
		if usagePct >= t.TriggerPct-t.Hysteresis {
			held = t.Rank
		}
	}
	if held < cur {
		for i := len(tm.tiers) - 1; i >= 0; i-- {
			t := tm.tiers[i]
			if t.Rank > held && t.Rank <= cur {
				cleared = append(cleared, t)
			}
		}
		tm.states[category] = held
		return nil, cleared
	}
	return nil, nil
}

// Overall returns the highest severity level name across categories.
func (tm *ThresholdManager) Overall() string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	max := 0
	for _, r := range tm.states {
		if r > max {
			max = r
		}
	}
	return tm.levelName(max)
}
