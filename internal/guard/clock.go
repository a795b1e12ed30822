package guard

import "time"

// Ticker is the tick source driving the sampling loop. Injected so tests can
// advance time deterministically instead of substituting runtime timers.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// wallTicker wraps time.Ticker.
type wallTicker struct{ t *time.Ticker }

func (w wallTicker) C() <-chan time.Time { return w.t.C }
func (w wallTicker) Stop()               { w.t.Stop() }

// NewWallTicker returns a Ticker backed by real time.
func NewWallTicker(d time.Duration) Ticker { return wallTicker{t: time.NewTicker(d)} }

// ManualTicker delivers ticks on demand. For tests.
type ManualTicker struct{ ch chan time.Time }

func NewManualTicker() *ManualTicker {
	// Buffer of one mirrors time.Ticker: at most one tick is pending while
	// the loop is busy; further ticks are dropped, not queued.
	return &ManualTicker{ch: make(chan time.Time, 1)}
}

func (m *ManualTicker) C() <-chan time.Time { return m.ch }
func (m *ManualTicker) Stop()               {}

// Tick delivers one tick if the loop is ready for it.
func (m *ManualTicker) Tick() {
	select {
	case m.ch <- time.Now():
	default:
	}
}
