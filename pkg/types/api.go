package types

// ModelSummary aggregates the model registry for status reporting.
type ModelSummary struct {
	// Sum of MemoryBytes over loaded models.
	// example: 10737418240
	UsedBytes uint64 `json:"used_bytes" example:"10737418240"`
	// Configured model memory budget in bytes; zero when unset.
	// example: 17179869184
	BudgetBytes uint64 `json:"budget_bytes" example:"17179869184"`
	// UsedBytes as a percentage of BudgetBytes; zero when no budget is set.
	// example: 62.5
	UtilizationPct float64 `json:"utilization_pct" example:"62.5"`
	// Number of loaded models.
	// example: 2
	LoadedCount int `json:"loaded_count" example:"2"`
	// Number of loaded models the watchdog is allowed to unload.
	// example: 1
	UnloadableCount int `json:"unloadable_count" example:"1"`
}

// ModelMemoryStatus is the full registry view returned by GET /models.
type ModelMemoryStatus struct {
	Summary ModelSummary      `json:"summary"`
	Models  []ModelMemoryInfo `json:"models"`
}

// CreateAlertRequest is the body of POST /alerts.
type CreateAlertRequest struct {
	// Severity level.
	// example: warning
	Level AlertLevel `json:"level" example:"warning" validate:"required,oneof=info warning critical emergency"`
	// Resource or concern the alert is about.
	// example: model
	Category string `json:"category" example:"model" validate:"required"`
	// Short title.
	// example: Model load failed
	Title string `json:"title" example:"Model load failed" validate:"required"`
	// Full message.
	// example: llama-3.1-8b-q4 failed to load: out of memory
	Message string `json:"message" example:"llama-3.1-8b-q4 failed to load: out of memory"`
	// Whether the alert should clear automatically with its tier.
	// example: false
	AutoResolve bool `json:"auto_resolve" example:"false"`
}

// StatusResponse is the aggregated view returned by GET /status.
type StatusResponse struct {
	// Overall severity state, the highest active tier across categories.
	// example: normal
	State string `json:"state" example:"normal"`
	// Per-category severity states.
	States map[string]string `json:"states"`
	// Latest memory sample.
	Memory SystemMemoryInfo `json:"memory"`
	// Model registry aggregate.
	Models ModelSummary `json:"models"`
	// Configured severity tiers.
	Thresholds []MemoryThreshold `json:"thresholds"`
	// Number of active alerts.
	// example: 1
	ActiveAlerts int `json:"active_alerts" example:"1"`
	// Seconds since the watchdog started.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server wall clock in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// Monitoring ticks completed since start.
	// example: 360
	TicksTotal uint64 `json:"ticks_total" example:"360"`
	// Probe failures since start.
	// example: 0
	ProbeFailuresTotal uint64 `json:"probe_failures_total" example:"0"`
	// Successful model unloads since start.
	// example: 2
	UnloadsTotal uint64 `json:"unloads_total" example:"2"`
	// Emergency cleanups since start.
	// example: 0
	CleanupsTotal uint64 `json:"cleanups_total" example:"0"`
}

// ErrorResponse is the uniform error body for non-2xx API responses.
type ErrorResponse struct {
	// Human-readable error message.
	// example: model not found
	Error string `json:"error" example:"model not found"`
	// Stable machine-readable code.
	// example: MODEL_NOT_FOUND
	Code string `json:"code,omitempty" example:"MODEL_NOT_FOUND"`
}
