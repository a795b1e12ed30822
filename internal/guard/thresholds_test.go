package guard

import (
	"testing"

	"memwatchd/pkg/types"
)

func testTiers() []types.MemoryThreshold {
	return []types.MemoryThreshold{
		{Level: types.LevelWarning, TriggerPct: 75, HysteresisPct: 5},
		{Level: types.LevelCritical, TriggerPct: 87.5, HysteresisPct: 5},
		{Level: types.LevelEmergency, TriggerPct: 95, HysteresisPct: 5},
	}
}

func TestEvaluate_SingleStepRaise(t *testing.T) {
	tm := NewThresholdManager(testTiers())
	raised, cleared := tm.Evaluate(types.CategorySystem, 70)
	if len(raised) != 0 || len(cleared) != 0 {
		t.Fatalf("unexpected transitions at 70%%: raised=%v cleared=%v", raised, cleared)
	}
	raised, cleared = tm.Evaluate(types.CategorySystem, 80)
	if len(cleared) != 0 {
		t.Fatalf("unexpected clears at 80%%: %v", cleared)
	}
	if len(raised) != 1 || raised[0].Level != types.LevelWarning {
		t.Fatalf("expected single warning raise, got %v", raised)
	}
	if got := tm.State(types.CategorySystem); got != types.LevelWarning {
		t.Fatalf("state = %q, want warning", got)
	}
}

func TestEvaluate_MultiLevelJump_StepsThroughEachTierAscending(t *testing.T) {
	tm := NewThresholdManager(testTiers())
	tm.Evaluate(types.CategorySystem, 70)
	raised, _ := tm.Evaluate(types.CategorySystem, 90)
	if len(raised) != 2 {
		t.Fatalf("expected 2 raised tiers, got %v", raised)
	}
	if raised[0].Level != types.LevelWarning || raised[1].Level != types.LevelCritical {
		t.Fatalf("wrong order: %s then %s", raised[0].Level, raised[1].Level)
	}

	// Jump straight to emergency from normal: all three in ascending order.
	tm2 := NewThresholdManager(testTiers())
	raised, _ = tm2.Evaluate(types.CategorySystem, 96)
	want := []string{types.LevelWarning, types.LevelCritical, types.LevelEmergency}
	if len(raised) != len(want) {
		t.Fatalf("expected %d raised tiers, got %v", len(want), raised)
	}
	for i, lvl := range want {
		if raised[i].Level != lvl {
			t.Fatalf("raised[%d] = %s, want %s", i, raised[i].Level, lvl)
		}
	}
}

func TestEvaluate_DeescalationRequiresHysteresis(t *testing.T) {
	tm := NewThresholdManager(testTiers())
	tm.Evaluate(types.CategorySystem, 80) // warning (trigger 75, hysteresis 5)

	// At exactly trigger - hysteresis the tier holds.
	raised, cleared := tm.Evaluate(types.CategorySystem, 70)
	if len(raised) != 0 || len(cleared) != 0 {
		t.Fatalf("expected no transition at trigger-hysteresis, got raised=%v cleared=%v", raised, cleared)
	}
	if got := tm.State(types.CategorySystem); got != types.LevelWarning {
		t.Fatalf("state = %q, want warning", got)
	}

	// Strictly below it the tier clears.
	_, cleared = tm.Evaluate(types.CategorySystem, 69.9)
	if len(cleared) != 1 || cleared[0].Level != types.LevelWarning {
		t.Fatalf("expected warning clear, got %v", cleared)
	}
	if got := tm.State(types.CategorySystem); got != types.LevelNormal {
		t.Fatalf("state = %q, want normal", got)
	}
}

func TestEvaluate_DeescalatesDirectlyClearingEachTierAbove(t *testing.T) {
	tm := NewThresholdManager(testTiers())
	tm.Evaluate(types.CategorySystem, 96) // emergency

	_, cleared := tm.Evaluate(types.CategorySystem, 60)
	want := []string{types.LevelEmergency, types.LevelCritical, types.LevelWarning}
	if len(cleared) != len(want) {
		t.Fatalf("expected %d cleared tiers, got %v", len(want), cleared)
	}
	for i, lvl := range want {
		if cleared[i].Level != lvl {
			t.Fatalf("cleared[%d] = %s, want %s", i, cleared[i].Level, lvl)
		}
	}

	// Partial drop: emergency clears but critical holds within hysteresis.
	tm2 := NewThresholdManager(testTiers())
	tm2.Evaluate(types.CategorySystem, 96)
	_, cleared = tm2.Evaluate(types.CategorySystem, 85) // >= 87.5-5
	if len(cleared) != 1 || cleared[0].Level != types.LevelEmergency {
		t.Fatalf("expected only emergency to clear, got %v", cleared)
	}
	if got := tm2.State(types.CategorySystem); got != types.LevelCritical {
		t.Fatalf("state = %q, want critical", got)
	}
}

func TestStates_PerCategoryIndependent(t *testing.T) {
	tm := NewThresholdManager(testTiers())
	tm.Evaluate(types.CategorySystem, 80)
	tm.Evaluate(types.CategoryGPU, 96)
	states := tm.States()
	if states[types.CategorySystem] != types.LevelWarning {
		t.Fatalf("system state = %q", states[types.CategorySystem])
	}
	if states[types.CategoryGPU] != types.LevelEmergency {
		t.Fatalf("gpu state = %q", states[types.CategoryGPU])
	}
	if got := tm.Overall(); got != types.LevelEmergency {
		t.Fatalf("overall = %q, want emergency", got)
	}
}
