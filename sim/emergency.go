// Emergency priority manager.
//
// Tracks active emergency preemption requests, resolves contention when
// several requests target the same intersection, and issues override/restore
// commands. The manager never mutates simulation state directly: it reads
// the state during its re-evaluation step and feeds commands back through
// the queue, so its effects always land on the next tick.

package sim

import (
	"math"
	"sort"

	"github.com/sirupsen/logrus"
)

// RequestState tracks whether a request currently holds an override.
type RequestState string

const (
	RequestPending RequestState = "PENDING"
	RequestGranted RequestState = "GRANTED"
)

// EmergencyRequest is the manager's bookkeeping for one emergency vehicle.
type EmergencyRequest struct {
	VehicleID   string
	RequestedAt int64
	Route       []string

	// ETA to the next intersection, in ticks. Recomputed every tick from
	// current kinematics.
	ETA int64

	// PendingSince is the tick the request last lost contention (-1 = never
	// pending, so losing at tick 0 still starts the wait clock).
	PendingSince int64
	// Escalated is set once the pending wait exceeds the configured
	// threshold; escalated requests outrank any non-escalated competitor.
	Escalated bool
}

// candidate is a request's bid for one intersection in the current tick.
type candidate struct {
	req  *EmergencyRequest
	eta  int64
	axis Axis
}

// PriorityManager owns the emergency request set. It subscribes to the
// event bus for request lifecycle events and runs Reevaluate inside every
// tick as step 5 of the protocol.
type PriorityManager struct {
	cfg     *Config
	metrics *Metrics

	requests map[string]*EmergencyRequest // keyed by vehicle ID
	holders  map[string]string            // intersection ID -> granted vehicle ID
	deferred map[string]*ManualOverride   // manual commands parked during override
}

// NewPriorityManager creates an empty manager.
func NewPriorityManager(cfg *Config, metrics *Metrics) *PriorityManager {
	return &PriorityManager{
		cfg:      cfg,
		metrics:  metrics,
		requests: make(map[string]*EmergencyRequest),
		holders:  make(map[string]string),
		deferred: make(map[string]*ManualOverride),
	}
}

// HandleEvent implements Subscriber. Request lifecycle follows the event
// stream: created on EmergencyRequestReceived, removed on EmergencyCleared.
func (pm *PriorityManager) HandleEvent(ev Event) {
	switch e := ev.(type) {
	case EmergencyRequestReceivedEvent:
		if _, exists := pm.requests[e.VehicleID]; exists {
			return
		}
		pm.requests[e.VehicleID] = &EmergencyRequest{
			VehicleID:    e.VehicleID,
			RequestedAt:  e.Tick(),
			Route:        e.Route,
			PendingSince: -1,
		}
		logrus.Infof("emergency request registered for %s at tick %d", e.VehicleID, e.Tick())
	case EmergencyClearedEvent:
		delete(pm.requests, e.VehicleID)
	}
}

// DeferManual parks a manual override targeting an intersection that is
// under active emergency preemption. It is re-issued after restoration; a
// second manual request for the same intersection supersedes the first.
func (pm *PriorityManager) DeferManual(cmd *ManualOverride) {
	pm.deferred[cmd.IntersectionID] = cmd
	pm.metrics.ManualDeferred++
	logrus.Infof("manual override for %s deferred until emergency restoration", cmd.IntersectionID)
}

// ActiveRequests returns the number of tracked emergency requests.
func (pm *PriorityManager) ActiveRequests() int {
	return len(pm.requests)
}

// Reevaluate runs the per-tick arbitration and returns follow-up commands
// for the next tick: override grants, flicker-free handoffs, restorations,
// and released deferred manual overrides.
func (pm *PriorityManager) Reevaluate(st *SimulationState) []Command {
	var cmds []Command

	// Drop requests whose vehicle is gone. Normally EmergencyCleared handles
	// this; the guard keeps the holder logic safe if a vehicle vanishes.
	for vid := range pm.requests {
		if v, ok := st.Vehicles[vid]; !ok || v.State == StateDeparted {
			delete(pm.requests, vid)
		}
	}

	byIntersection := pm.collectCandidates(st)

	// Every in-range candidate that does not hold its target intersection
	// accrues pending wait this tick, whether the intersection is held,
	// handed off, or freshly contested. The wait clock is what drives
	// starvation escalation, so it must run on every arbitration pass.
	for _, iid := range sortedKeys(byIntersection) {
		holder := pm.holders[iid]
		for _, c := range byIntersection[iid] {
			if c.req.VehicleID == holder {
				continue
			}
			pm.markPending(st, c.req)
		}
	}

	// Held intersections: detect passage of the granted vehicle, then hand
	// off or restore.
	released := make(map[string]bool)
	for _, iid := range sortedKeys(pm.holders) {
		holder := pm.holders[iid]
		if !pm.hasPassed(st, holder, iid) {
			continue
		}
		next := pm.winner(byIntersection[iid], holder)
		if next != nil {
			// Direct handoff: the signal stays in EMERGENCY_OVERRIDE, so
			// the corridor never flickers through a NORMAL cycle.
			pm.grant(iid, next)
			cmds = append(cmds, &OverrideSignal{
				IntersectionID: iid,
				VehicleID:      next.req.VehicleID,
				Axis:           next.axis,
			})
			pm.metrics.Handoffs++
		} else {
			delete(pm.holders, iid)
			released[iid] = true
			cmds = append(cmds, &RestoreSignal{IntersectionID: iid})
		}
	}

	// Fresh grants for unheld intersections. Intersections restored this
	// tick are skipped until the restore has actually applied.
	for _, iid := range sortedKeys(byIntersection) {
		if _, held := pm.holders[iid]; held || released[iid] {
			continue
		}
		win := pm.winner(byIntersection[iid], "")
		if win == nil {
			continue
		}
		pm.grant(iid, win)
		cmds = append(cmds, &OverrideSignal{
			IntersectionID: iid,
			VehicleID:      win.req.VehicleID,
			Axis:           win.axis,
		})
		pm.metrics.OverridesGranted++
	}

	// Release deferred manual overrides once the override has fully cleared.
	for _, iid := range sortedKeys(pm.deferred) {
		if _, held := pm.holders[iid]; held || released[iid] {
			continue
		}
		if st.Grid.Intersection(iid).Signal.Mode == ModeEmergencyOverride {
			continue
		}
		cmds = append(cmds, pm.deferred[iid])
		delete(pm.deferred, iid)
	}

	return cmds
}

// collectCandidates recomputes every request's ETA and groups in-range bids
// by target intersection.
func (pm *PriorityManager) collectCandidates(st *SimulationState) map[string][]candidate {
	byIntersection := make(map[string][]candidate)
	dt := pm.cfg.DT()
	for _, vid := range sortedKeys(pm.requests) {
		req := pm.requests[vid]
		v := st.Vehicles[vid]
		target := v.NextIntersectionID()
		if target == "" {
			continue
		}
		dist := pm.cfg.IntersectionSpacing - v.Offset
		speed := math.Max(v.Velocity, 1.0)
		req.ETA = int64(math.Ceil(dist / (speed * dt)))
		if dist > pm.cfg.Emergency.DetectionDistance {
			continue
		}
		byIntersection[target] = append(byIntersection[target], candidate{
			req:  req,
			eta:  req.ETA,
			axis: v.Headings[v.SegmentIndex].Axis(),
		})
	}
	return byIntersection
}

// winner picks the highest-priority candidate, excluding a vehicle ID
// (the departing holder during handoff). Priority: escalated requests
// first, then smallest ETA, then earliest submission, then vehicle ID as a
// total-order tie break.
func (pm *PriorityManager) winner(cands []candidate, exclude string) *candidate {
	var best *candidate
	for i := range cands {
		c := &cands[i]
		if c.req.VehicleID == exclude {
			continue
		}
		if best == nil || beats(c, best) {
			best = c
		}
	}
	return best
}

func beats(a, b *candidate) bool {
	if a.req.Escalated != b.req.Escalated {
		return a.req.Escalated
	}
	if a.eta != b.eta {
		return a.eta < b.eta
	}
	if a.req.RequestedAt != b.req.RequestedAt {
		return a.req.RequestedAt < b.req.RequestedAt
	}
	return a.req.VehicleID < b.req.VehicleID
}

func (pm *PriorityManager) grant(iid string, c *candidate) {
	pm.holders[iid] = c.req.VehicleID
	c.req.PendingSince = -1
	c.req.Escalated = false
}

func (pm *PriorityManager) markPending(st *SimulationState, req *EmergencyRequest) {
	if req.PendingSince < 0 {
		req.PendingSince = st.TickID
		return
	}
	wait := st.TickID - req.PendingSince
	if !req.Escalated && wait >= pm.cfg.SecondsToTicks(pm.cfg.Emergency.EscalateAfterSeconds) {
		req.Escalated = true
		pm.metrics.Escalations++
		logrus.Warnf("emergency request %s escalated after waiting %d ticks", req.VehicleID, wait)
	}
}

// hasPassed reports whether the granted vehicle has cleared the
// intersection: it departed, vanished, or the intersection is no longer
// ahead on its route.
func (pm *PriorityManager) hasPassed(st *SimulationState, vehicleID, intersectionID string) bool {
	v, ok := st.Vehicles[vehicleID]
	if !ok || v.State == StateDeparted {
		return true
	}
	// Kinematics rolls the vehicle onto the next segment the moment it
	// passes the center, so "no longer ahead on the route" means passed.
	return v.RouteIndexOf(intersectionID) == -1
}

// RequestState reports the current state of a request for introspection.
func (pm *PriorityManager) RequestState(vehicleID string) (RequestState, bool) {
	req, ok := pm.requests[vehicleID]
	if !ok {
		return "", false
	}
	for _, holder := range pm.holders {
		if holder == req.VehicleID {
			return RequestGranted, true
		}
	}
	return RequestPending, true
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
