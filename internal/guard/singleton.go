package guard

import "sync"

// A process-wide default instance for convenience call sites. The core never
// reads it; everything in this package works on explicit instances.
var (
	defaultMu sync.RWMutex
	defaultWD *Watchdog
)

// SetDefault installs w as the process-wide default instance. Pass nil to
// clear it.
func SetDefault(w *Watchdog) {
	defaultMu.Lock()
	defaultWD = w
	defaultMu.Unlock()
}

// Default returns the process-wide default instance, or nil when none is set.
func Default() *Watchdog {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultWD
}
