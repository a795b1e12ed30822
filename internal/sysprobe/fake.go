package sysprobe

import (
	"context"
	"runtime"
	"sync"
	"time"

	"memwatchd/pkg/types"
)

// Static returns the same result on every probe. For tests and dry runs.
type Static struct {
	Info types.SystemMemoryInfo
	Err  error
}

func (s *Static) Probe(ctx context.Context) (types.SystemMemoryInfo, error) {
	if s.Err != nil {
		return types.SystemMemoryInfo{}, s.Err
	}
	return s.Info, nil
}

// Step is one scripted probe result.
type Step struct {
	Info types.SystemMemoryInfo
	Err  error
}

// Sequence replays scripted probe results in order, then keeps returning the
// last one. Safe for concurrent use.
type Sequence struct {
	mu    sync.Mutex
	i     int
	Steps []Step
}

func (s *Sequence) Probe(ctx context.Context) (types.SystemMemoryInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Steps) == 0 {
		return types.SystemMemoryInfo{}, nil
	}
	st := s.Steps[s.i]
	if s.i < len(s.Steps)-1 {
		s.i++
	}
	if st.Err != nil {
		return types.SystemMemoryInfo{}, st.Err
	}
	return st.Info, nil
}

// Push appends further steps to the script.
func (s *Sequence) Push(steps ...Step) {
	s.mu.Lock()
	s.Steps = append(s.Steps, steps...)
	s.mu.Unlock()
}

// SampleAtPct builds a plausible sample at the given usage percentage over a
// 32 GiB host. Tests use it to drive threshold transitions.
func SampleAtPct(pct float64) types.SystemMemoryInfo {
	const total = uint64(32) << 30
	used := uint64(float64(total) * ClampPct(pct) / 100)
	return types.SystemMemoryInfo{
		TotalBytes:      total,
		UsedBytes:       used,
		AvailableBytes:  total - used,
		UsagePercentage: ClampPct(pct),
		Platform:        runtime.GOOS,
		SampledAtUnix:   time.Now().Unix(),
	}
}
