package guard

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"memwatchd/pkg/types"
)

// Registry tracks the memory footprint of loaded AI models. Records live in
// a sync.Map so registration, touch and unregistration from API callers never
// contend with an in-flight tick.
type Registry struct {
	models sync.Map // model id -> types.ModelMemoryInfo

	budget uint64
	order  PriorityOrder
	unload UnloadFunc

	unloadsOK atomic.Uint64
}

// NewRegistry builds a registry with the given budget, eviction convention
// and unload callback.
func NewRegistry(budget uint64, order PriorityOrder, unload UnloadFunc) *Registry {
	return &Registry{budget: budget, order: order, unload: unload}
}

// Register inserts or replaces the record for info.ModelID. A missing last
// access timestamp is filled with now.
func (r *Registry) Register(info types.ModelMemoryInfo) {
	if info.LastAccessedUnix == 0 {
		info.LastAccessedUnix = time.Now().Unix()
	}
	r.models.Store(info.ModelID, info)
}

// Unregister removes the record for id. Returns false when id is unknown.
func (r *Registry) Unregister(id string) bool {
	_, ok := r.models.LoadAndDelete(id)
	return ok
}

// Touch refreshes the last access timestamp for id.
func (r *Registry) Touch(id string) bool {
	v, ok := r.models.Load(id)
	if !ok {
		return false
	}
	info := v.(types.ModelMemoryInfo)
	info.LastAccessedUnix = time.Now().Unix()
	r.models.Store(id, info)
	return true
}

// Get returns the record for id.
func (r *Registry) Get(id string) (types.ModelMemoryInfo, bool) {
	v, ok := r.models.Load(id)
	if !ok {
		return types.ModelMemoryInfo{}, false
	}
	return v.(types.ModelMemoryInfo), true
}

// List returns all records ordered by model id.
func (r *Registry) List() []types.ModelMemoryInfo {
	var out []types.ModelMemoryInfo
	r.models.Range(func(_, v any) bool {
		out = append(out, v.(types.ModelMemoryInfo))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out
}

// Summary aggregates the registry for status reporting.
func (r *Registry) Summary() types.ModelSummary {
	s := types.ModelSummary{BudgetBytes: r.budget}
	r.models.Range(func(_, v any) bool {
		info := v.(types.ModelMemoryInfo)
		if !info.IsLoaded {
			return true
		}
		s.UsedBytes += info.MemoryBytes
		s.LoadedCount++
		if info.CanUnload {
			s.UnloadableCount++
		}
		return true
	})
	if r.budget > 0 {
		s.UtilizationPct = float64(s.UsedBytes) / float64(r.budget) * 100
	}
	return s
}

// UnloadPlan is the result of candidate selection: the ordered eviction list
// and how many target bytes no candidate could cover.
type UnloadPlan struct {
	Candidates     []types.ModelMemoryInfo
	PlannedSavings uint64
	ShortfallBytes uint64
}

// SelectUnloadCandidates picks loaded, unloadable models until their summed
// unload savings reach targetBytes. Ordering is fully deterministic: priority
// per the configured convention, then oldest last access, then model id.
func (r *Registry) SelectUnloadCandidates(targetBytes uint64) UnloadPlan {
	var cands []types.ModelMemoryInfo
	r.models.Range(func(_, v any) bool {
		info := v.(types.ModelMemoryInfo)
		if info.IsLoaded && info.CanUnload {
			cands = append(cands, info)
		}
		return true
	})
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Priority != b.Priority {
			if r.order == PriorityHighFirst {
				return a.Priority > b.Priority
			}
			return a.Priority < b.Priority
		}
		if a.LastAccessedUnix != b.LastAccessedUnix {
			return a.LastAccessedUnix < b.LastAccessedUnix
		}
		return a.ModelID < b.ModelID
	})

	plan := UnloadPlan{}
	for _, c := range cands {
		if plan.PlannedSavings >= targetBytes {
			break
		}
		plan.Candidates = append(plan.Candidates, c)
		plan.PlannedSavings += c.UnloadSavingsBytes
	}
	if plan.PlannedSavings < targetBytes {
		plan.ShortfallBytes = targetBytes - plan.PlannedSavings
	}
	return plan
}

// Unload asks the inference layer to release id and removes the record once
// the callback succeeds. On callback failure the model stays registered as
// loaded and an unload error is returned; retry happens only via the next
// natural threshold crossing.
func (r *Registry) Unload(ctx context.Context, id string) error {
	info, ok := r.Get(id)
	if !ok {
		return ErrUnload(id, errors.New("model not registered"))
	}
	if !info.CanUnload {
		return ErrUnload(id, errors.New("model is pinned"))
	}
	if r.unload == nil {
		return ErrUnload(id, errors.New("no unload callback configured"))
	}
	if err := r.unload(ctx, id); err != nil {
		metricUnloads.WithLabelValues("error").Inc()
		return ErrUnload(id, err)
	}
	r.models.Delete(id)
	r.unloadsOK.Add(1)
	metricUnloads.WithLabelValues("ok").Inc()
	return nil
}

// UnloadsTotal reports successful unloads since construction.
func (r *Registry) UnloadsTotal() uint64 { return r.unloadsOK.Load() }
