package types

// Severity level names used by thresholds and the watchdog state machine.
const (
	LevelNormal    = "normal"
	LevelWarning   = "warning"
	LevelCritical  = "critical"
	LevelEmergency = "emergency"
)

// Resource categories tracked by the watchdog. System RAM is always present;
// the GPU category exists only when a GPU probe is available.
const (
	CategorySystem  = "system"
	CategoryGPU     = "gpu"
	CategoryModel   = "model"
	CategoryCleanup = "cleanup"
)

// GPUDeviceUtil describes one GPU device inside a sample.
type GPUDeviceUtil struct {
	// Device index as reported by the driver.
	// example: 0
	Index int `json:"index" example:"0"`
	// Device name.
	// example: NVIDIA GeForce RTX 4090
	Name string `json:"name" example:"NVIDIA GeForce RTX 4090"`
	// Memory used on this device in bytes.
	// example: 8589934592
	MemoryUsedBytes uint64 `json:"memory_used_bytes" example:"8589934592"`
	// Memory total on this device in bytes.
	// example: 25769803776
	MemoryTotalBytes uint64 `json:"memory_total_bytes" example:"25769803776"`
	// Compute utilization percentage for this device.
	// example: 37.5
	UtilizationPct float64 `json:"utilization_pct" example:"37.5"`
}

// GPUMemoryInfo aggregates memory across all visible GPU devices.
type GPUMemoryInfo struct {
	// Total GPU memory in bytes across devices.
	// example: 25769803776
	TotalBytes uint64 `json:"total_bytes" example:"25769803776"`
	// Used GPU memory in bytes across devices.
	// example: 8589934592
	UsedBytes uint64 `json:"used_bytes" example:"8589934592"`
	// Available GPU memory in bytes across devices.
	// example: 17179869184
	AvailableBytes uint64 `json:"available_bytes" example:"17179869184"`
	// Used percentage across devices, clamped to [0,100].
	// example: 33.3
	UsagePercentage float64 `json:"usage_percentage" example:"33.3"`
	// Per-device breakdown.
	Devices []GPUDeviceUtil `json:"devices,omitempty"`
}

// SystemMemoryInfo is one memory sample. It is recomputed on every tick and
// never persisted; Stale marks a reused previous sample after a probe failure.
type SystemMemoryInfo struct {
	// Total physical memory in bytes.
	// example: 34359738368
	TotalBytes uint64 `json:"total_bytes" example:"34359738368"`
	// Used memory in bytes.
	// example: 17179869184
	UsedBytes uint64 `json:"used_bytes" example:"17179869184"`
	// Memory available to programs in bytes.
	// example: 17179869184
	AvailableBytes uint64 `json:"available_bytes" example:"17179869184"`
	// Used percentage, clamped to [0,100].
	// example: 50
	UsagePercentage float64 `json:"usage_percentage" example:"50"`
	// Platform tag (runtime.GOOS of the probe).
	// example: linux
	Platform string `json:"platform" example:"linux"`
	// True when this sample is a reused previous sample after a probe failure.
	// example: false
	Stale bool `json:"stale" example:"false"`
	// Unix seconds when the sample was actually probed.
	// example: 1700000000
	SampledAtUnix int64 `json:"sampled_at_unix" example:"1700000000"`
	// GPU sub-record; absent when no GPU probe is available.
	GPU *GPUMemoryInfo `json:"gpu,omitempty"`
}

// MemoryThreshold is one severity tier. Configured at construction and
// immutable afterwards.
type MemoryThreshold struct {
	// Tier name: warning, critical or emergency.
	// example: critical
	Level string `json:"level" example:"critical"`
	// Usage percentage at which the tier triggers.
	// example: 87.5
	TriggerPct float64 `json:"trigger_pct" example:"87.5"`
	// Percentage points usage must fall below TriggerPct before the tier clears.
	// example: 5
	HysteresisPct float64 `json:"hysteresis_pct" example:"5"`
}

// ModelMemoryInfo is the registry record for one loaded AI model.
type ModelMemoryInfo struct {
	// Stable model identifier; registry key.
	// example: llama-3.1-8b-q4
	ModelID string `json:"model_id" example:"llama-3.1-8b-q4"`
	// Memory attributed to the model in bytes.
	// example: 5368709120
	MemoryBytes uint64 `json:"memory_bytes" example:"5368709120"`
	// Whether the model is currently resident.
	// example: true
	IsLoaded bool `json:"is_loaded" example:"true"`
	// Unix seconds of the last access (inference or touch).
	// example: 1700000000
	LastAccessedUnix int64 `json:"last_accessed_unix" example:"1700000000"`
	// Eviction priority. Under the default low-first policy a lower value
	// means less important, evicted first.
	// example: 3
	Priority int `json:"priority" example:"3"`
	// Whether the model may be unloaded by the watchdog.
	// example: true
	CanUnload bool `json:"can_unload" example:"true"`
	// Bytes expected to be reclaimed by unloading.
	// example: 5368709120
	UnloadSavingsBytes uint64 `json:"unload_savings_bytes" example:"5368709120"`
}

// AlertLevel is the severity of an alert. Alerts carry one extra level below
// the threshold tiers for informational notices.
type AlertLevel string

const (
	AlertInfo      AlertLevel = "info"
	AlertWarning   AlertLevel = "warning"
	AlertCritical  AlertLevel = "critical"
	AlertEmergency AlertLevel = "emergency"
)

// AlertAction is a remediation action offered on an alert. The callback lives
// in-process; over the wire only id and label travel.
type AlertAction struct {
	// Action identifier, unique within the alert.
	// example: unload-idle
	ID string `json:"id" example:"unload-idle"`
	// Human-readable label for the dashboard.
	// example: Unload idle models
	Label string `json:"label" example:"Unload idle models"`
}

// MemoryAlert is one active alert. At most one unacknowledged alert exists per
// (level, category) pair; re-triggers update the record in place.
type MemoryAlert struct {
	// Alert id (uuid).
	// example: 4c7f3a46-9a2e-4b9d-a6a1-2f4f5f0a9c11
	ID string `json:"id" example:"4c7f3a46-9a2e-4b9d-a6a1-2f4f5f0a9c11"`
	// Severity level.
	// example: warning
	Level AlertLevel `json:"level" example:"warning"`
	// Resource or concern the alert is about (system, gpu, model, cleanup, ...).
	// example: system
	Category string `json:"category" example:"system"`
	// Short title.
	// example: Memory usage high
	Title string `json:"title" example:"Memory usage high"`
	// Full message.
	// example: System memory at 80.0% (warning threshold 75.0%)
	Message string `json:"message" example:"System memory at 80.0% (warning threshold 75.0%)"`
	// Unix seconds of creation (or of the latest in-place update).
	// example: 1700000000
	TimestampUnix int64 `json:"timestamp_unix" example:"1700000000"`
	// Whether the alert has been acknowledged.
	// example: false
	Acknowledged bool `json:"acknowledged" example:"false"`
	// Whether the alert is removed automatically when its tier clears.
	// example: true
	AutoResolve bool `json:"auto_resolve" example:"true"`
	// Optional remediation actions.
	Actions []AlertAction `json:"actions,omitempty"`
}
