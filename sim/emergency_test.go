package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManagerFixture(t *testing.T) (*PriorityManager, *SimulationState, *Config) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Vehicles.MinPopulation = 0
	st := NewSimulationState(cfg)
	return NewPriorityManager(cfg, &Metrics{}), st, cfg
}

// registerEmergency spawns an emergency vehicle and feeds the manager the
// request event the orchestrator would deliver.
func registerEmergency(pm *PriorityManager, st *SimulationState, cfg *Config, route []string, requestedAt int64) *Vehicle {
	v := st.addVehicle(cfg, VehicleEmergency, route, cfg.Emergency.EmergencySpeed)
	pm.HandleEvent(EmergencyRequestReceivedEvent{
		BaseEvent: BaseEvent{TickID: requestedAt},
		VehicleID: v.ID,
		Route:     v.Route,
	})
	return v
}

func TestPriorityManager_RequestLifecycle(t *testing.T) {
	pm, st, cfg := newManagerFixture(t)
	v := registerEmergency(pm, st, cfg, []string{"I-103"}, 0)
	require.Equal(t, 1, pm.ActiveRequests())

	// Duplicate request events are idempotent
	pm.HandleEvent(EmergencyRequestReceivedEvent{BaseEvent: BaseEvent{TickID: 4}, VehicleID: v.ID})
	require.Equal(t, 1, pm.ActiveRequests())

	pm.HandleEvent(EmergencyClearedEvent{BaseEvent: BaseEvent{TickID: 9}, VehicleID: v.ID})
	require.Equal(t, 0, pm.ActiveRequests())
}

func TestPriorityManager_GrantsOverrideInRange(t *testing.T) {
	pm, st, cfg := newManagerFixture(t)
	cfg.Emergency.DetectionDistance = 30.0

	v := registerEmergency(pm, st, cfg, []string{"I-103"}, 0)
	v.Offset = 50.0 // 50 units out, beyond detection
	v.Velocity = 10.0

	require.Empty(t, pm.Reevaluate(st), "no override before the vehicle is in range")

	v.Offset = 75.0 // 25 units out
	cmds := pm.Reevaluate(st)
	require.Len(t, cmds, 1)
	ov, ok := cmds[0].(*OverrideSignal)
	require.True(t, ok)
	assert.Equal(t, "I-103", ov.IntersectionID)
	assert.Equal(t, v.ID, ov.VehicleID)
	assert.Equal(t, AxisEastWest, ov.Axis)

	state, tracked := pm.RequestState(v.ID)
	require.True(t, tracked)
	assert.Equal(t, RequestGranted, state)
}

func TestPriorityManager_ContentionMinETAWins(t *testing.T) {
	pm, st, cfg := newManagerFixture(t)

	// Eastbound, 50 units out at 10 u/s
	vSlow := registerEmergency(pm, st, cfg, []string{"I-103"}, 0)
	vSlow.Offset, vSlow.Velocity = 50.0, 10.0
	// Southbound through the same intersection, 20 units out
	vFast := registerEmergency(pm, st, cfg, []string{"I-103", "I-108"}, 0)
	vFast.Offset, vFast.Velocity = 80.0, 10.0

	cmds := pm.Reevaluate(st)
	require.Len(t, cmds, 1)
	ov := cmds[0].(*OverrideSignal)
	assert.Equal(t, vFast.ID, ov.VehicleID)
	assert.Equal(t, AxisNorthSouth, ov.Axis)

	// The loser queues as pending
	state, _ := pm.RequestState(vSlow.ID)
	assert.Equal(t, RequestPending, state)
	assert.Equal(t, 1, pm.metrics.OverridesGranted)
}

func TestPriorityManager_ContentionTieBreaks(t *testing.T) {
	pm, st, cfg := newManagerFixture(t)

	// Identical ETAs; v1 requested earlier
	v1 := registerEmergency(pm, st, cfg, []string{"I-103"}, 0)
	v1.Offset, v1.Velocity = 80.0, 10.0
	v2 := registerEmergency(pm, st, cfg, []string{"I-103", "I-108"}, 5)
	v2.Offset, v2.Velocity = 80.0, 10.0

	cmds := pm.Reevaluate(st)
	require.Len(t, cmds, 1)
	assert.Equal(t, v1.ID, cmds[0].(*OverrideSignal).VehicleID,
		"equal ETA resolves to the earlier request")
}

func TestPriorityManager_EscalatedOutranksCloser(t *testing.T) {
	pm, st, cfg := newManagerFixture(t)

	far := registerEmergency(pm, st, cfg, []string{"I-103"}, 0)
	far.Offset, far.Velocity = 50.0, 10.0
	near := registerEmergency(pm, st, cfg, []string{"I-103", "I-108"}, 0)
	near.Offset, near.Velocity = 80.0, 10.0

	pm.requests[far.ID].Escalated = true

	cmds := pm.Reevaluate(st)
	require.Len(t, cmds, 1)
	assert.Equal(t, far.ID, cmds[0].(*OverrideSignal).VehicleID,
		"an escalated request outranks any non-escalated competitor")
}

func TestPriorityManager_EscalationAfterWaitBound(t *testing.T) {
	pm, st, cfg := newManagerFixture(t)
	v := registerEmergency(pm, st, cfg, []string{"I-103"}, 10)
	req := pm.requests[v.ID]

	st.TickID = 10
	pm.markPending(st, req)
	assert.Equal(t, int64(10), req.PendingSince)
	assert.False(t, req.Escalated)

	// Just under the bound: still pending
	st.TickID = 10 + cfg.SecondsToTicks(cfg.Emergency.EscalateAfterSeconds) - 1
	pm.markPending(st, req)
	assert.False(t, req.Escalated)

	// At the bound: escalated, once
	st.TickID++
	pm.markPending(st, req)
	assert.True(t, req.Escalated)
	pm.markPending(st, req)
	assert.Equal(t, 1, pm.metrics.Escalations)
}

func TestPriorityManager_PendingEscalatesWhileIntersectionHeld(t *testing.T) {
	pm, st, cfg := newManagerFixture(t)
	cfg.Emergency.EscalateAfterSeconds = 2.0
	bound := cfg.SecondsToTicks(cfg.Emergency.EscalateAfterSeconds)

	holder := registerEmergency(pm, st, cfg, []string{"I-103"}, 0)
	holder.Offset, holder.Velocity = 80.0, 10.0
	waiting := registerEmergency(pm, st, cfg, []string{"I-103", "I-108"}, 0)
	waiting.Offset, waiting.Velocity = 60.0, 10.0

	// First pass grants the closer vehicle; the other queues behind it.
	require.Len(t, pm.Reevaluate(st), 1)
	state, _ := pm.RequestState(waiting.ID)
	require.Equal(t, RequestPending, state)

	// The holder never clears the intersection. Re-running arbitration
	// alone must keep the loser's wait clock running.
	req := pm.requests[waiting.ID]
	for st.TickID < bound-1 {
		st.TickID++
		require.Empty(t, pm.Reevaluate(st))
	}
	assert.False(t, req.Escalated, "still under the wait bound")

	st.TickID++
	require.Empty(t, pm.Reevaluate(st))
	assert.True(t, req.Escalated, "wait bound reached while the intersection stayed held")
	assert.Equal(t, 1, pm.metrics.Escalations)

	st.TickID++
	require.Empty(t, pm.Reevaluate(st))
	assert.Equal(t, 1, pm.metrics.Escalations, "escalation counted once")

	// Once the holder passes, the escalated request takes the handoff.
	holder.State = StateDeparted
	st.TickID++
	cmds := pm.Reevaluate(st)
	require.Len(t, cmds, 1)
	ov, ok := cmds[0].(*OverrideSignal)
	require.True(t, ok)
	assert.Equal(t, waiting.ID, ov.VehicleID)
}

func TestPriorityManager_PendingClockStartsAtTickZero(t *testing.T) {
	pm, st, cfg := newManagerFixture(t)
	cfg.Emergency.EscalateAfterSeconds = 1.0
	bound := cfg.SecondsToTicks(cfg.Emergency.EscalateAfterSeconds)

	holder := registerEmergency(pm, st, cfg, []string{"I-103"}, 0)
	holder.Offset, holder.Velocity = 80.0, 10.0
	waiting := registerEmergency(pm, st, cfg, []string{"I-103", "I-108"}, 0)
	waiting.Offset, waiting.Velocity = 60.0, 10.0

	// Losing at tick 0 must start the wait clock there, not leave the
	// request in the never-pending state.
	require.Equal(t, int64(0), st.TickID)
	require.Len(t, pm.Reevaluate(st), 1)
	req := pm.requests[waiting.ID]
	require.Equal(t, int64(0), req.PendingSince)

	for st.TickID < bound {
		st.TickID++
		pm.Reevaluate(st)
	}
	assert.True(t, req.Escalated)
}

func TestPriorityManager_DirectHandoff(t *testing.T) {
	pm, st, cfg := newManagerFixture(t)

	holder := registerEmergency(pm, st, cfg, []string{"I-103"}, 0)
	holder.Offset, holder.Velocity = 80.0, 10.0
	waiting := registerEmergency(pm, st, cfg, []string{"I-103", "I-108"}, 0)
	waiting.Offset, waiting.Velocity = 60.0, 10.0

	// First pass grants the closer vehicle
	first := pm.Reevaluate(st)
	require.Len(t, first, 1)
	require.Equal(t, holder.ID, first[0].(*OverrideSignal).VehicleID)

	// Holder clears the intersection and departs
	holder.State = StateDeparted

	second := pm.Reevaluate(st)
	require.Len(t, second, 1)
	ov, ok := second[0].(*OverrideSignal)
	require.True(t, ok, "handoff must re-override, not restore-then-regrant")
	assert.Equal(t, waiting.ID, ov.VehicleID)
	assert.Equal(t, AxisNorthSouth, ov.Axis)
	assert.Equal(t, 1, pm.metrics.Handoffs)
}

func TestPriorityManager_RestoreWhenNoSuccessor(t *testing.T) {
	pm, st, cfg := newManagerFixture(t)

	v := registerEmergency(pm, st, cfg, []string{"I-103"}, 0)
	v.Offset, v.Velocity = 80.0, 10.0
	require.Len(t, pm.Reevaluate(st), 1)

	v.State = StateDeparted
	cmds := pm.Reevaluate(st)
	require.Len(t, cmds, 1)
	rs, ok := cmds[0].(*RestoreSignal)
	require.True(t, ok)
	assert.Equal(t, "I-103", rs.IntersectionID)
	assert.Equal(t, 0, pm.ActiveRequests())
}

func TestPriorityManager_DeferredManualHeldUntilRestoration(t *testing.T) {
	pm, st, _ := newManagerFixture(t)
	sig := st.Grid.Intersection("I-103").Signal
	sig.Override(AxisEastWest)

	manual := &ManualOverride{IntersectionID: "I-103", Phase: PhaseAllRed}
	pm.DeferManual(manual)
	assert.Equal(t, 1, pm.metrics.ManualDeferred)

	// Still overridden: the manual command stays parked
	require.Empty(t, pm.Reevaluate(st))

	require.NoError(t, sig.Restore(20))
	cmds := pm.Reevaluate(st)
	require.Len(t, cmds, 1)
	assert.Same(t, manual, cmds[0])
	require.Empty(t, pm.Reevaluate(st), "released exactly once")
}
