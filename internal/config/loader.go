package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ThresholdConfig declares one severity tier by name and trigger percentage.
type ThresholdConfig struct {
	Level      string  `json:"level" yaml:"level" toml:"level" validate:"required,oneof=warning critical emergency"`
	TriggerPct float64 `json:"trigger_pct" yaml:"trigger_pct" toml:"trigger_pct" validate:"required,gt=0,lte=100"`
}

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr             string            `json:"addr" yaml:"addr" toml:"addr"`
	SampleIntervalMS int               `json:"sample_interval_ms" yaml:"sample_interval_ms" toml:"sample_interval_ms" validate:"gte=0"`
	HysteresisPct    float64           `json:"hysteresis_pct" yaml:"hysteresis_pct" toml:"hysteresis_pct" validate:"gte=0,lt=100"`
	Thresholds       []ThresholdConfig `json:"thresholds" yaml:"thresholds" toml:"thresholds" validate:"dive"`
	ModelBudgetMB    int               `json:"model_budget_mb" yaml:"model_budget_mb" toml:"model_budget_mb" validate:"gte=0"`
	PriorityOrder    string            `json:"priority_order" yaml:"priority_order" toml:"priority_order" validate:"omitempty,oneof=low-first high-first"`
	StateFile        string            `json:"state_file" yaml:"state_file" toml:"state_file"`
	UnloadWebhook    string            `json:"unload_webhook" yaml:"unload_webhook" toml:"unload_webhook" validate:"omitempty,url"`
	DisableGPU       bool              `json:"disable_gpu" yaml:"disable_gpu" toml:"disable_gpu"`
	LogLevel         string            `json:"log_level" yaml:"log_level" toml:"log_level" validate:"omitempty,oneof=trace debug info warn error off"`
	CORSEnabled      bool              `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins      []string          `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// severityRank orders tier names for the cross-field checks below.
var severityRank = map[string]int{"warning": 1, "critical": 2, "emergency": 3}

// validateThresholds enforces what struct tags cannot: each level appears at
// most once, and triggers are strictly increasing with severity.
func validateThresholds(ts []ThresholdConfig) error {
	seen := make(map[string]float64, len(ts))
	for _, t := range ts {
		if _, dup := seen[t.Level]; dup {
			return fmt.Errorf("duplicate threshold level %q", t.Level)
		}
		seen[t.Level] = t.TriggerPct
	}
	present := make([]string, 0, len(seen))
	for lvl := range seen {
		present = append(present, lvl)
	}
	sort.Slice(present, func(i, j int) bool { return severityRank[present[i]] < severityRank[present[j]] })
	for i := 1; i < len(present); i++ {
		lo, hi := present[i-1], present[i]
		if seen[lo] >= seen[hi] {
			return fmt.Errorf("threshold %q (%.1f%%) must trigger below %q (%.1f%%)", lo, seen[lo], hi, seen[hi])
		}
	}
	return nil
}
