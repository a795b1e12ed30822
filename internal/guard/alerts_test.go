package guard

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"memwatchd/pkg/types"
)

func newAlertCenter() (*AlertCenter, *MemoryPublisher) {
	pub := NewMemoryPublisher()
	return NewAlertCenter(pub, zerolog.Nop()), pub
}

func TestCreate_DeduplicatesUnacknowledged(t *testing.T) {
	a, pub := newAlertCenter()
	first := a.Create(types.AlertWarning, types.CategorySystem, "Memory usage high", "at 80%", nil, true)
	second := a.Create(types.AlertWarning, types.CategorySystem, "Memory usage high", "at 82%", nil, true)

	if second.ID != first.ID {
		t.Fatalf("dedup should keep the id: %s vs %s", first.ID, second.ID)
	}
	if n := a.Count(); n != 1 {
		t.Fatalf("active alerts = %d, want 1", n)
	}
	if got := a.Active()[0].Message; got != "at 82%" {
		t.Fatalf("message not updated in place: %q", got)
	}
	// Only the first raise publishes alert_created.
	if n := len(pub.Named(EventAlertCreated)); n != 1 {
		t.Fatalf("alert_created events = %d, want 1", n)
	}
}

func TestCreate_AcknowledgedAlertIsNotDedupTarget(t *testing.T) {
	a, _ := newAlertCenter()
	first := a.Create(types.AlertWarning, types.CategorySystem, "t", "m", nil, true)
	if !a.Acknowledge(first.ID) {
		t.Fatalf("Acknowledge returned false for known id")
	}
	second := a.Create(types.AlertWarning, types.CategorySystem, "t", "m2", nil, true)
	if second.ID == first.ID {
		t.Fatalf("acknowledged alert was updated instead of creating a new one")
	}
	if n := a.Count(); n != 2 {
		t.Fatalf("active alerts = %d, want 2", n)
	}
}

func TestCreate_DifferentLevelOrCategoryNotDeduplicated(t *testing.T) {
	a, _ := newAlertCenter()
	a.Create(types.AlertWarning, types.CategorySystem, "t", "m", nil, true)
	a.Create(types.AlertCritical, types.CategorySystem, "t", "m", nil, true)
	a.Create(types.AlertWarning, types.CategoryGPU, "t", "m", nil, true)
	if n := a.Count(); n != 3 {
		t.Fatalf("active alerts = %d, want 3", n)
	}
}

func TestAcknowledge_UnknownIDReturnsFalse(t *testing.T) {
	a, _ := newAlertCenter()
	if a.Acknowledge("unknown") {
		t.Fatalf("Acknowledge of unknown id returned true")
	}
	if a.Dismiss("unknown") {
		t.Fatalf("Dismiss of unknown id returned true")
	}
}

func TestAcknowledge_SurvivesConcurrentDedupRefresh(t *testing.T) {
	// A racing Create must never write Acknowledged=false over a record that
	// was just acknowledged. Acknowledged records are not dedup targets, so
	// once Acknowledge returns true the stored record stays acknowledged.
	a, _ := newAlertCenter()
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				a.Create(types.AlertWarning, types.CategorySystem, "Memory usage high", "refreshed", nil, true)
			}
		}
	}()

	var acked []string
	for i := 0; i < 500; i++ {
		for _, al := range a.Active() {
			if !al.Acknowledged && a.Acknowledge(al.ID) {
				acked = append(acked, al.ID)
			}
		}
	}
	close(stop)
	wg.Wait()

	for _, id := range acked {
		v, ok := a.alerts.Load(id)
		if !ok {
			t.Fatalf("acknowledged alert %s vanished", id)
		}
		if !v.(types.MemoryAlert).Acknowledged {
			t.Fatalf("acknowledged alert %s reverted to unacknowledged", id)
		}
	}
}

func TestResolveCleared_RemovesAutoResolveOnly(t *testing.T) {
	a, _ := newAlertCenter()
	auto := a.Create(types.AlertWarning, types.CategorySystem, "auto", "m", nil, true)
	a.Acknowledge(auto.ID)
	sticky := a.Create(types.AlertWarning, types.CategorySystem, "sticky", "m", nil, false)

	removed := a.ResolveCleared(types.AlertWarning, types.CategorySystem)
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	left := a.Active()
	if len(left) != 1 || left[0].ID != sticky.ID {
		t.Fatalf("expected only the sticky alert to persist, got %+v", left)
	}
}

func TestActive_NewestFirst(t *testing.T) {
	a, _ := newAlertCenter()
	old := a.Create(types.AlertWarning, types.CategorySystem, "old", "m", nil, true)
	// Force distinct timestamps without sleeping.
	v, _ := a.alerts.Load(old.ID)
	al := v.(types.MemoryAlert)
	al.TimestampUnix -= 10
	a.alerts.Store(old.ID, al)
	fresh := a.Create(types.AlertCritical, types.CategorySystem, "fresh", "m", nil, true)

	got := a.Active()
	if len(got) != 2 || got[0].ID != fresh.ID || got[1].ID != old.ID {
		t.Fatalf("wrong order: %+v", got)
	}
}

func TestRunAction_FailureSurfacesInfoAlert(t *testing.T) {
	a, _ := newAlertCenter()
	al := a.Create(types.AlertCritical, types.CategorySystem, "t", "m", []ActionSpec{{
		ID:    "boom",
		Label: "Blow up",
		Run:   func(ctx context.Context) error { return errors.New("nope") },
	}}, true)

	if err := a.RunAction(context.Background(), al.ID, "boom"); err == nil {
		t.Fatalf("expected action error")
	}
	var info *types.MemoryAlert
	for _, act := range a.Active() {
		if act.Level == types.AlertInfo {
			cp := act
			info = &cp
		}
	}
	if info == nil {
		t.Fatalf("no informational alert after failed action; active: %+v", a.Active())
	}
}

func TestRunAction_PanicIsContained(t *testing.T) {
	a, _ := newAlertCenter()
	al := a.Create(types.AlertCritical, types.CategorySystem, "t", "m", []ActionSpec{{
		ID:    "panic",
		Label: "Panic",
		Run:   func(ctx context.Context) error { panic("kaboom") },
	}}, true)

	if err := a.RunAction(context.Background(), al.ID, "panic"); err == nil {
		t.Fatalf("expected error from panicking action")
	}
	if err := a.RunAction(context.Background(), al.ID, "missing"); err == nil {
		t.Fatalf("expected error for unknown action id")
	}
}
