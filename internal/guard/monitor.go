package guard

import (
	"context"
	"sync"

	"memwatchd/internal/sysprobe"
	"memwatchd/pkg/types"
)

// Monitor owns the latest memory sample. Probing happens from the tick loop
// and from emergency cleanup; reads may come from any goroutine.
type Monitor struct {
	prober sysprobe.Prober

	mu   sync.RWMutex
	last types.SystemMemoryInfo
	have bool
}

// NewMonitor wraps a prober.
func NewMonitor(p sysprobe.Prober) *Monitor { return &Monitor{prober: p} }

// Sample probes the host and stores the result. On probe failure the previous
// sample is reused and flagged stale; the returned error is a probe error and
// the returned sample is the stale one (ok reports whether any sample exists).
func (m *Monitor) Sample(ctx context.Context) (types.SystemMemoryInfo, bool, error) {
	info, err := m.prober.Probe(ctx)
	if err != nil {
		m.mu.Lock()
		m.last.Stale = true
		stale, have := m.last, m.have
		m.mu.Unlock()
		return stale, have, ErrProbe(err)
	}
	info.UsagePercentage = sysprobe.ClampPct(info.UsagePercentage)
	m.mu.Lock()
	m.last = info
	m.have = true
	m.mu.Unlock()
	return info, true, nil
}

// Current returns the latest sample without probing. The zero sample is
// returned before the first successful probe.
func (m *Monitor) Current() types.SystemMemoryInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}
