package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func advisorFixture() (*Advisor, *Config) {
	cfg := DefaultConfig()
	return &Advisor{cfg: cfg}, cfg
}

// stoppedEW returns a stopped eastbound vehicle waiting at the given
// intersection, inside the congestion radius.
func stoppedEW(id, intersection string) VehicleSnapshot {
	return VehicleSnapshot{
		ID:               id,
		NextIntersection: intersection,
		Heading:          HeadingEast,
		Offset:           60.0,
		Velocity:         0.0,
	}
}

func TestAdvisor_SuggestNilWhenDisabled(t *testing.T) {
	a, _ := advisorFixture()
	snap := &Snapshot{
		TickID:    10,
		AIEnabled: false,
		Signals:   []SignalSnapshot{{IntersectionID: "I-101", Mode: ModeNormal, NSGreenTicks: 200, EWGreenTicks: 200}},
		Vehicles:  []VehicleSnapshot{stoppedEW("a", "I-101")},
	}
	assert.Nil(t, a.Suggest(snap))
}

func TestAdvisor_SuggestShiftsGreenTowardCongestedAxis(t *testing.T) {
	a, cfg := advisorFixture()
	snap := &Snapshot{
		TickID:    10,
		AIEnabled: true,
		Signals: []SignalSnapshot{
			{IntersectionID: "I-101", Mode: ModeNormal, NSGreenTicks: 200, EWGreenTicks: 200},
		},
		Vehicles: []VehicleSnapshot{stoppedEW("a", "I-101"), stoppedEW("b", "I-101")},
	}

	cmds := a.Suggest(snap)
	require.Len(t, cmds, 1)
	st := cmds[0].(*SetSignalTiming)
	assert.Equal(t, "I-101", st.IntersectionID)
	assert.Equal(t, int64(10), st.IssuedAt)
	assert.InDelta(t, 10.0+cfg.Advisor.NudgeSeconds, st.EWGreenSeconds, 1e-9)
	assert.InDelta(t, 10.0, st.NSGreenSeconds, 1e-9, "NS green already at the minimum")
}

func TestAdvisor_SuggestClampsAtBounds(t *testing.T) {
	a, cfg := advisorFixture()
	maxTicks := cfg.SecondsToTicks(cfg.Signals.MaxGreenSeconds)
	snap := &Snapshot{
		TickID:    10,
		AIEnabled: true,
		Signals: []SignalSnapshot{
			{IntersectionID: "I-101", Mode: ModeNormal, NSGreenTicks: 200, EWGreenTicks: maxTicks},
		},
		Vehicles: []VehicleSnapshot{stoppedEW("a", "I-101")},
	}

	cmds := a.Suggest(snap)
	require.Len(t, cmds, 1)
	st := cmds[0].(*SetSignalTiming)
	assert.InDelta(t, cfg.Signals.MaxGreenSeconds, st.EWGreenSeconds, 1e-9,
		"EW green saturates at the maximum")
}

func TestAdvisor_SuggestSkipsBalancedAndNonNormal(t *testing.T) {
	a, _ := advisorFixture()
	snap := &Snapshot{
		TickID:    10,
		AIEnabled: true,
		Signals: []SignalSnapshot{
			// Balanced load: no suggestion
			{IntersectionID: "I-101", Mode: ModeNormal, NSGreenTicks: 200, EWGreenTicks: 200},
			// Overridden signals are off limits
			{IntersectionID: "I-102", Mode: ModeEmergencyOverride, NSGreenTicks: 200, EWGreenTicks: 200},
		},
		Vehicles: []VehicleSnapshot{stoppedEW("a", "I-102")},
	}
	assert.Empty(t, a.Suggest(snap))
}

func TestAdvisor_CongestionScoreWeighsStoppedVehicles(t *testing.T) {
	a, _ := advisorFixture()
	snap := &Snapshot{
		Vehicles: []VehicleSnapshot{
			stoppedEW("a", "I-101"), // 1 + 2
			{ID: "b", NextIntersection: "I-101", Heading: HeadingEast, Offset: 60.0, Velocity: 9.0}, // 1
			{ID: "c", NextIntersection: "I-101", Heading: HeadingEast, Offset: 10.0, Velocity: 0.0}, // out of radius
			{ID: "d", NextIntersection: "I-101", Heading: HeadingSouth, Offset: 60.0, Velocity: 0.0},
		},
	}
	assert.InDelta(t, 4.0, a.congestionScore(snap, "I-101", AxisEastWest), 1e-9)
	assert.InDelta(t, 3.0, a.congestionScore(snap, "I-101", AxisNorthSouth), 1e-9)
}
