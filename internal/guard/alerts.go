package guard

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"memwatchd/pkg/types"
)

// ActionSpec is a remediation action offered on an alert. Run stays
// in-process; only ID and Label are exposed over the wire.
type ActionSpec struct {
	ID    string
	Label string
	Run   func(ctx context.Context) error
}

// AlertCenter owns the active alert set. Records live in a sync.Map keyed by
// alert id; a small mutex serializes the writers so the (level, category)
// dedup scan in Create cannot interleave with an acknowledgment or dismissal
// of the record it is refreshing.
type AlertCenter struct {
	alerts  sync.Map // alert id -> types.MemoryAlert
	actions sync.Map // alert id + "/" + action id -> func(ctx) error

	writeMu sync.Mutex
	pub     EventPublisher
	log     zerolog.Logger
}

// NewAlertCenter builds an alert store publishing alert_created events to pub.
func NewAlertCenter(pub EventPublisher, log zerolog.Logger) *AlertCenter {
	if pub == nil {
		pub = noopPublisher{}
	}
	return &AlertCenter{pub: pub, log: log}
}

// Create raises an alert, deduplicating against any existing unacknowledged
// alert of the same (level, category): that record is updated in place and
// keeps its id. Returns the stored alert.
func (a *AlertCenter) Create(level types.AlertLevel, category, title, message string, actions []ActionSpec, autoResolve bool) types.MemoryAlert {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	now := time.Now().Unix()
	var existing *types.MemoryAlert
	a.alerts.Range(func(_, v any) bool {
		al := v.(types.MemoryAlert)
		if !al.Acknowledged && al.Level == level && al.Category == category {
			existing = &al
			return false
		}
		return true
	})

	alert := types.MemoryAlert{
		ID:            uuid.NewString(),
		Level:         level,
		Category:      category,
		Title:         title,
		Message:       message,
		TimestampUnix: now,
		AutoResolve:   autoResolve,
	}
	if existing != nil {
		alert.ID = existing.ID
		a.dropActions(existing.ID)
	}
	for _, spec := range actions {
		alert.Actions = append(alert.Actions, types.AlertAction{ID: spec.ID, Label: spec.Label})
		if spec.Run != nil {
			a.actions.Store(alert.ID+"/"+spec.ID, spec.Run)
		}
	}
	a.alerts.Store(alert.ID, alert)
	if existing == nil {
		a.pub.Publish(Event{Name: EventAlertCreated, Category: category, Fields: map[string]any{
			"alert_id": alert.ID,
			"level":    string(level),
			"title":    title,
		}})
	}
	a.log.Debug().Str("alert", alert.ID).Str("level", string(level)).Str("category", category).Msg("alert raised")
	return alert
}

// Acknowledge marks an alert acknowledged. Unknown ids return false. The
// write lock keeps the load-modify-store atomic against a concurrent Create
// refreshing the same record.
func (a *AlertCenter) Acknowledge(id string) bool {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	v, ok := a.alerts.Load(id)
	if !ok {
		return false
	}
	al := v.(types.MemoryAlert)
	al.Acknowledged = true
	a.alerts.Store(id, al)
	return true
}

// Dismiss removes an alert outright. Unknown ids return false.
func (a *AlertCenter) Dismiss(id string) bool {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	_, ok := a.alerts.LoadAndDelete(id)
	if ok {
		a.dropActions(id)
	}
	return ok
}

// Active returns all unresolved alerts, newest first. Ties on timestamp are
// broken by id to keep the order stable.
func (a *AlertCenter) Active() []types.MemoryAlert {
	var out []types.MemoryAlert
	a.alerts.Range(func(_, v any) bool {
		out = append(out, v.(types.MemoryAlert))
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].TimestampUnix != out[j].TimestampUnix {
			return out[i].TimestampUnix > out[j].TimestampUnix
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Count returns the number of active alerts.
func (a *AlertCenter) Count() int {
	n := 0
	a.alerts.Range(func(_, _ any) bool { n++; return true })
	return n
}

// ResolveCleared removes every auto-resolve alert of the given (level,
// category) after its tier cleared. Acknowledged alerts without auto-resolve
// persist until dismissed.
func (a *AlertCenter) ResolveCleared(level types.AlertLevel, category string) int {
	removed := 0
	a.alerts.Range(func(k, v any) bool {
		al := v.(types.MemoryAlert)
		if al.Level == level && al.Category == category && al.AutoResolve {
			a.alerts.Delete(k)
			a.dropActions(al.ID)
			removed++
		}
		return true
	})
	return removed
}

// RunAction executes a remediation action callback. Best-effort: a failing or
// panicking callback is reported as a new informational alert, never
// propagated to the caller beyond the returned error.
func (a *AlertCenter) RunAction(ctx context.Context, alertID, actionID string) error {
	v, ok := a.actions.Load(alertID + "/" + actionID)
	if !ok {
		return fmt.Errorf("unknown action %s on alert %s", actionID, alertID)
	}
	run := v.(func(ctx context.Context) error)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("action panicked: %v", r)
			}
		}()
		return run(ctx)
	}()
	if err != nil {
		a.log.Warn().Err(err).Str("alert", alertID).Str("action", actionID).Msg("remediation action failed")
		a.Create(types.AlertInfo, types.CategoryModel, "Remediation action failed",
			fmt.Sprintf("Action %q did not complete: %v", actionID, err), nil, true)
	}
	return err
}

func (a *AlertCenter) dropActions(alertID string) {
	prefix := alertID + "/"
	a.actions.Range(func(k, _ any) bool {
		if key := k.(string); len(key) > len(prefix) && key[:len(prefix)] == prefix {
			a.actions.Delete(k)
		}
		return true
	})
}
