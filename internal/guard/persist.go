package guard

import (
	"encoding/json"
	"os"

	"memwatchd/internal/common/fsutil"
)

// modelRecord is the per-model metadata that survives restarts so eviction
// ordering does not reset to "everything just accessed".
type modelRecord struct {
	LastAccessedUnix int64 `json:"last_accessed_unix"`
	Priority         int   `json:"priority"`
}

// loadModelMetadata reads the state file into the restart cache. Missing or
// unreadable files are ignored; persistence is best-effort.
func (w *Watchdog) loadModelMetadata() {
	if w.cfg.StateFile == "" {
		return
	}
	f, err := os.Open(w.cfg.StateFile)
	if err != nil {
		return
	}
	defer f.Close()
	var data map[string]modelRecord
	if err := json.NewDecoder(f).Decode(&data); err == nil {
		w.savedMeta = data
	}
}

// saveModelMetadata snapshots the registry to the state file.
func (w *Watchdog) saveModelMetadata() {
	if w.cfg.StateFile == "" {
		return
	}
	snap := make(map[string]modelRecord)
	for _, info := range w.registry.List() {
		snap[info.ModelID] = modelRecord{LastAccessedUnix: info.LastAccessedUnix, Priority: info.Priority}
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return
	}
	if err := fsutil.EnsureParentDir(w.cfg.StateFile); err != nil {
		w.log.Warn().Err(err).Str("path", w.cfg.StateFile).Msg("state file dir")
		return
	}
	if err := os.WriteFile(w.cfg.StateFile, b, 0o644); err != nil {
		w.log.Warn().Err(err).Str("path", w.cfg.StateFile).Msg("state file write failed")
	}
}
