package guard

import "fmt"

// probeError signals that reading a memory sample failed. Non-fatal: the
// previous sample is reused and flagged stale.
type probeError struct{ err error }

func (e probeError) Error() string { return "memory probe failed: " + e.err.Error() }
func (e probeError) Unwrap() error { return e.err }

// ErrProbe wraps a failed probe read.
func ErrProbe(err error) error { return probeError{err: err} }

// IsProbeError reports whether err indicates a failed memory probe.
func IsProbeError(err error) bool {
	_, ok := err.(probeError)
	return ok
}

// evaluationError signals a panic inside threshold evaluation. Non-fatal:
// the tick is abandoned and the previous state retained.
type evaluationError struct {
	category string
	cause    any
}

func (e evaluationError) Error() string {
	return fmt.Sprintf("threshold evaluation failed for %s: %v", e.category, e.cause)
}

// ErrEvaluation wraps a recovered evaluation panic.
func ErrEvaluation(category string, cause any) error {
	return evaluationError{category: category, cause: cause}
}

// IsEvaluationError reports whether err indicates an abandoned evaluation tick.
func IsEvaluationError(err error) bool {
	_, ok := err.(evaluationError)
	return ok
}

// unloadError signals that the unload callback rejected a model. The model
// stays registered as loaded; no same-tick retry.
type unloadError struct {
	modelID string
	err     error
}

func (e unloadError) Error() string { return "unload " + e.modelID + ": " + e.err.Error() }
func (e unloadError) Unwrap() error { return e.err }

// ErrUnload wraps an unload callback failure for modelID.
func ErrUnload(modelID string, err error) error { return unloadError{modelID: modelID, err: err} }

// IsUnloadError reports whether err indicates a rejected unload callback.
func IsUnloadError(err error) bool {
	_, ok := err.(unloadError)
	return ok
}

// cleanupError signals a partial emergency cleanup failure. Completed steps
// are kept; the failure is documented in a critical alert.
type cleanupError struct {
	completed []string
	err       error
}

func (e cleanupError) Error() string {
	return fmt.Sprintf("emergency cleanup failed after %d steps: %v", len(e.completed), e.err)
}
func (e cleanupError) Unwrap() error { return e.err }

// ErrCleanup wraps a partial cleanup failure with the steps that did complete.
func ErrCleanup(completed []string, err error) error {
	return cleanupError{completed: completed, err: err}
}

// IsCleanupError reports whether err indicates a partial cleanup failure.
func IsCleanupError(err error) bool {
	_, ok := err.(cleanupError)
	return ok
}

// configurationError signals invalid construction parameters. Fatal: the
// watchdog refuses to start.
type configurationError struct{ msg string }

func (e configurationError) Error() string { return "invalid configuration: " + e.msg }

// ErrConfiguration constructs a configuration error from a format string.
func ErrConfiguration(format string, args ...any) error {
	return configurationError{msg: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err indicates invalid construction
// parameters.
func IsConfigurationError(err error) bool {
	_, ok := err.(configurationError)
	return ok
}
