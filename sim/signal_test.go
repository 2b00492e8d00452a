package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSignal() *TrafficSignal {
	// 10 tick greens, 3 tick yellows keep cycle tests short
	return NewTrafficSignal("I-101", PhaseNorthSouthGreen, 10, 10, 3)
}

func TestSignal_CycleOrder(t *testing.T) {
	sig := newTestSignal()

	// GIVEN a NORMAL signal in NS green, WHEN the timer expires repeatedly,
	// THEN the phases follow the fixed cycle
	want := []SignalPhase{
		PhaseNorthSouthYellow,
		PhaseEastWestGreen,
		PhaseEastWestYellow,
		PhaseNorthSouthGreen,
	}
	for _, phase := range want {
		changed := false
		for i := 0; i < 1000 && !changed; i++ {
			changed = sig.Advance()
		}
		if !changed {
			t.Fatalf("signal never advanced out of %s", sig.Phase)
		}
		if sig.Phase != phase {
			t.Fatalf("advanced to %s, want %s", sig.Phase, phase)
		}
	}
}

func TestSignal_PhaseDurations(t *testing.T) {
	sig := newTestSignal()

	// NS green lasts exactly its configured 10 ticks
	for i := 0; i < 9; i++ {
		if sig.Advance() {
			t.Fatalf("phase changed after %d ticks, want 10", i+1)
		}
	}
	if !sig.Advance() {
		t.Fatal("phase did not change after 10 ticks")
	}
	assert.Equal(t, PhaseNorthSouthYellow, sig.Phase)
	assert.Equal(t, int64(3), sig.PhaseTimer)
}

func TestSignal_Permits(t *testing.T) {
	tests := []struct {
		phase SignalPhase
		ns    bool
		ew    bool
	}{
		{PhaseNorthSouthGreen, true, false},
		{PhaseNorthSouthYellow, false, false},
		{PhaseEastWestGreen, false, true},
		{PhaseEastWestYellow, false, false},
		{PhaseAllRed, false, false},
	}
	for _, tt := range tests {
		if got := tt.phase.Permits(AxisNorthSouth); got != tt.ns {
			t.Errorf("%s.Permits(NS) = %v, want %v", tt.phase, got, tt.ns)
		}
		if got := tt.phase.Permits(AxisEastWest); got != tt.ew {
			t.Errorf("%s.Permits(EW) = %v, want %v", tt.phase, got, tt.ew)
		}
	}
}

func TestSignal_ForceAdvance(t *testing.T) {
	sig := newTestSignal()

	require.NoError(t, sig.ForceAdvance())
	assert.Equal(t, PhaseNorthSouthYellow, sig.Phase)
	assert.Equal(t, int64(3), sig.PhaseTimer)

	// Not available outside NORMAL mode
	sig.Override(AxisEastWest)
	err := sig.ForceAdvance()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestSignal_OverrideAndRestore(t *testing.T) {
	sig := newTestSignal() // NS green

	sig.Override(AxisEastWest)
	assert.Equal(t, ModeEmergencyOverride, sig.Mode)
	assert.Equal(t, PhaseEastWestGreen, sig.Phase)
	assert.Equal(t, PhaseNorthSouthGreen, sig.SavedPhase)

	// Overridden signals never auto-advance
	for i := 0; i < 100; i++ {
		if sig.Advance() {
			t.Fatal("overridden signal advanced on its own")
		}
	}

	require.NoError(t, sig.Restore(50))
	assert.Equal(t, ModeNormal, sig.Mode)
	assert.Equal(t, PhaseNorthSouthGreen, sig.Phase)
	assert.Equal(t, SignalPhase(""), sig.SavedPhase)
	// Fresh full window, not the interrupted remainder
	assert.Equal(t, sig.NSGreenTicks, sig.PhaseTimer)
}

func TestSignal_OverrideRetargetKeepsSavedPhase(t *testing.T) {
	sig := newTestSignal() // NS green

	// First override captures the pre-override phase
	sig.Override(AxisEastWest)
	// Handoff to a crossing corridor retargets without re-capturing
	sig.Override(AxisNorthSouth)

	assert.Equal(t, PhaseNorthSouthGreen, sig.Phase)
	assert.Equal(t, PhaseNorthSouthGreen, sig.SavedPhase)

	require.NoError(t, sig.Restore(10))
	assert.Equal(t, PhaseNorthSouthGreen, sig.Phase)
}

func TestSignal_RestoreRequiresOverride(t *testing.T) {
	sig := newTestSignal()
	var verr *ValidationError
	require.ErrorAs(t, sig.Restore(0), &verr)
}

func TestSignal_RestoreWithoutSavedPhaseIsInvariantViolation(t *testing.T) {
	sig := newTestSignal()
	sig.Mode = ModeEmergencyOverride
	sig.SavedPhase = ""

	var inv *InvariantViolation
	require.ErrorAs(t, sig.Restore(17), &inv)
	assert.Equal(t, int64(17), inv.TickID)
}

func TestSignal_ManualMode(t *testing.T) {
	sig := newTestSignal()

	require.NoError(t, sig.SetManual(PhaseAllRed))
	assert.Equal(t, ModeManual, sig.Mode)
	assert.Equal(t, PhaseAllRed, sig.Phase)

	for i := 0; i < 100; i++ {
		if sig.Advance() {
			t.Fatal("manual signal advanced on its own")
		}
	}

	require.NoError(t, sig.ReleaseManual())
	assert.Equal(t, ModeNormal, sig.Mode)
	assert.Equal(t, PhaseAllRed, sig.Phase)
	// ALL_RED recovers into NS green on the next expiry
	for !sig.Advance() {
	}
	assert.Equal(t, PhaseNorthSouthGreen, sig.Phase)
}

func TestSignal_ManualRejectedDuringOverride(t *testing.T) {
	sig := newTestSignal()
	sig.Override(AxisEastWest)

	var verr *ValidationError
	require.ErrorAs(t, sig.SetManual(PhaseAllRed), &verr)
	// Override state untouched
	assert.Equal(t, ModeEmergencyOverride, sig.Mode)
	assert.Equal(t, PhaseEastWestGreen, sig.Phase)
}

func TestSignal_ReleaseRequiresManual(t *testing.T) {
	sig := newTestSignal()
	var verr *ValidationError
	require.ErrorAs(t, sig.ReleaseManual(), &verr)
}

func TestSignal_SetGreenTimingsClamped(t *testing.T) {
	sig := newTestSignal()

	sig.SetGreenTimings(5, 500, 10, 60)
	assert.Equal(t, int64(10), sig.NSGreenTicks, "below minimum clamps up")
	assert.Equal(t, int64(60), sig.EWGreenTicks, "above maximum clamps down")

	sig.SetGreenTimings(30, 45, 10, 60)
	assert.Equal(t, int64(30), sig.NSGreenTicks)
	assert.Equal(t, int64(45), sig.EWGreenTicks)
}

func TestSignal_CheckInvariants(t *testing.T) {
	sig := newTestSignal()
	require.NoError(t, sig.CheckInvariants(0))

	sig.Override(AxisNorthSouth)
	require.NoError(t, sig.CheckInvariants(1))

	// Overridden with no saved phase is corrupted state
	sig.SavedPhase = ""
	var inv *InvariantViolation
	require.ErrorAs(t, sig.CheckInvariants(2), &inv)

	// Saved phase lingering outside override is equally corrupted
	sig2 := newTestSignal()
	sig2.SavedPhase = PhaseEastWestGreen
	require.ErrorAs(t, sig2.CheckInvariants(3), &inv)
}
