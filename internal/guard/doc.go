// Package guard implements the memory-safety watchdog: periodic sampling,
// threshold escalation, model eviction and emergency reclamation. It is
// structured into small files by concern:
//
//   - watchdog.go: core Watchdog type, constructor, public query/command API.
//   - config.go: Config, collaborator injection points, defaults, validation.
//   - loop.go: the tick loop (one tick at a time, late ticks skipped).
//   - clock.go: Ticker abstraction so tests can drive ticks deterministically.
//   - monitor.go: sampling with stale-reuse on probe failure.
//   - thresholds.go: per-category severity state machine with hysteresis.
//   - registry.go: model registry and unload candidate selection.
//   - alerts.go: alert creation, dedup, acknowledgment, auto-resolution.
//   - cleanup.go: the emergency reclamation sequence and the GC hook.
//   - events.go: event names, publisher interface, subscription bus.
//   - errors.go: error types and helpers (IsProbeError, IsUnloadError, ...).
//   - persist.go: model metadata snapshot across restarts.
//   - metrics.go: Prometheus collectors for the domain counters.
//   - status.go: aggregate status reporting.
//   - singleton.go: optional process-wide default instance.
//
// External packages should treat this package as the orchestration layer and
// use the Watchdog methods only. Internal types are subject to change.
package guard
