// Vehicle model and per-tick kinematics.
//
// A route is an ordered list of intersection IDs; the vehicle traverses one
// segment per route entry, each Spacing units long and ending at that
// intersection's center. Position is (segment index, offset). Per segment
// and heading, vehicles form a FIFO queue: no overtaking, no collision
// modeling beyond a minimum gap to the leader.

package sim

import (
	"math"
	"sort"
)

// VehicleType distinguishes ordinary traffic from emergency vehicles.
type VehicleType string

const (
	VehicleNormal    VehicleType = "NORMAL"
	VehicleEmergency VehicleType = "EMERGENCY"
)

// VehicleState is the movement state relative to the governing intersection.
type VehicleState string

const (
	StateApproaching VehicleState = "APPROACHING"
	StateCrossing    VehicleState = "CROSSING"
	StateDeparted    VehicleState = "DEPARTED"
)

// Vehicle is a single simulated vehicle. Mutated only inside the tick.
type Vehicle struct {
	ID        string
	Seq       int64 // spawn sequence, total order for deterministic traversal
	SpawnedAt int64
	Type      VehicleType

	Route    []string
	Headings []Heading // travel heading per segment, fixed at spawn

	SegmentIndex int     // current segment, ending at Route[SegmentIndex]
	Offset       float64 // distance along the current segment

	Velocity       float64 // units/second
	TargetVelocity float64 // units/second
	State          VehicleState
}

// NewVehicle creates a vehicle at offset 0 of its entry segment. The route
// must already be validated against the grid.
func NewVehicle(id string, seq, tick int64, vtype VehicleType, route []string, targetSpeed float64, g *Grid) *Vehicle {
	headings := make([]Heading, len(route))
	for i := 1; i < len(route); i++ {
		headings[i] = g.HeadingBetween(route[i-1], route[i])
	}
	// The entry segment runs straight into the first intersection.
	if len(route) > 1 {
		headings[0] = headings[1]
	} else {
		headings[0] = HeadingEast
	}
	return &Vehicle{
		ID:             id,
		Seq:            seq,
		SpawnedAt:      tick,
		Type:           vtype,
		Route:          route,
		Headings:       headings,
		State:          StateApproaching,
		TargetVelocity: targetSpeed,
	}
}

// NextIntersectionID returns the intersection the vehicle is currently
// heading toward, or "" once departed.
func (v *Vehicle) NextIntersectionID() string {
	if v.State == StateDeparted || v.SegmentIndex >= len(v.Route) {
		return ""
	}
	return v.Route[v.SegmentIndex]
}

// DistanceToRouteIndex returns the travel distance from the vehicle's
// current position to the center of Route[k], assuming k has not been
// passed. Segments all have length spacing.
func (v *Vehicle) DistanceToRouteIndex(k int, spacing float64) float64 {
	return (spacing - v.Offset) + float64(k-v.SegmentIndex)*spacing
}

// RouteIndexOf returns the route position of an intersection at or after
// the current segment, or -1.
func (v *Vehicle) RouteIndexOf(intersectionID string) int {
	for k := v.SegmentIndex; k < len(v.Route); k++ {
		if v.Route[k] == intersectionID {
			return k
		}
	}
	return -1
}

// segmentKey identifies the FIFO lane the vehicle currently occupies.
// Opposite headings on the same physical segment queue independently.
func (v *Vehicle) segmentKey() string {
	h := string(v.Headings[v.SegmentIndex])
	if v.SegmentIndex == 0 {
		return "entry:" + h + ":" + v.Route[0]
	}
	return v.Route[v.SegmentIndex-1] + ">" + v.Route[v.SegmentIndex] + ":" + h
}

// advanceVehicles runs one kinematics tick for every active vehicle,
// raising VehicleArrived events as vehicles clear route intersections.
// Traversal order (sorted lane keys, leader-first within the lane) is
// deterministic.
func advanceVehicles(st *SimulationState, cfg *Config, raise func(Event)) {
	dt := cfg.DT()
	spacing := cfg.IntersectionSpacing
	stopLine := spacing - cfg.Vehicles.StopOffset

	lanes := make(map[string][]*Vehicle)
	for _, id := range st.SortedVehicleIDs() {
		v := st.Vehicles[id]
		if v.State == StateDeparted {
			continue
		}
		key := v.segmentKey()
		lanes[key] = append(lanes[key], v)
	}
	laneKeys := make([]string, 0, len(lanes))
	for key := range lanes {
		laneKeys = append(laneKeys, key)
	}
	sort.Strings(laneKeys)

	for _, key := range laneKeys {
		group := lanes[key]
		// Leader first; FIFO arrival order breaks offset ties.
		sort.Slice(group, func(i, j int) bool {
			if group[i].Offset != group[j].Offset {
				return group[i].Offset > group[j].Offset
			}
			return group[i].Seq < group[j].Seq
		})
		for i, v := range group {
			stopTarget := math.Inf(1)
			heldAtLine := false

			// Stop-line clamp: emergency vehicles are assumed pre-cleared by
			// the priority manager and ignore it. The gate is inclusive so a
			// vehicle parked exactly on the line stays held while the phase
			// is non-permissive.
			if v.Type != VehicleEmergency && v.Offset <= stopLine {
				sig := st.Grid.Intersection(v.Route[v.SegmentIndex]).Signal
				if !sig.Phase.Permits(v.Headings[v.SegmentIndex].Axis()) {
					stopTarget = stopLine
					heldAtLine = true
				}
			}
			// Queue behind the leader.
			if v.Type != VehicleEmergency && i > 0 {
				lead := group[i-1].Offset - cfg.Vehicles.MinGap
				if lead < stopTarget {
					stopTarget = lead
				}
			}

			v.step(dt, cfg, stopTarget)

			switch {
			case v.Offset >= spacing:
				arrived := v.Route[v.SegmentIndex]
				final := v.SegmentIndex == len(v.Route)-1
				raise(VehicleArrivedEvent{
					BaseEvent:      BaseEvent{TickID: st.TickID},
					VehicleID:      v.ID,
					IntersectionID: arrived,
					Final:          final,
				})
				if final {
					v.State = StateDeparted
				} else {
					v.SegmentIndex++
					v.Offset -= spacing
					v.State = StateCrossing
				}
			case v.Offset >= stopLine && !heldAtLine:
				v.State = StateCrossing
			case v.State == StateCrossing && v.Offset < cfg.Vehicles.ClearOffset:
				// Still inside the previous intersection's footprint.
			default:
				v.State = StateApproaching
			}
		}
	}
}

// step updates velocity and position for one tick against an optional stop
// target (+Inf means unconstrained). The advance never exceeds velocity*dt
// and never crosses the stop target.
func (v *Vehicle) step(dt float64, cfg *Config, stopTarget float64) {
	if math.IsInf(stopTarget, 1) {
		v.Velocity = math.Min(v.Velocity+cfg.Vehicles.Acceleration*dt, v.TargetVelocity)
	} else {
		dist := stopTarget - v.Offset
		if dist <= 0 {
			v.Velocity = 0
			return
		}
		// Comfortable braking envelope toward the stop target.
		safe := math.Sqrt(2 * cfg.Vehicles.Deceleration * dist)
		v.Velocity = math.Min(math.Min(v.Velocity+cfg.Vehicles.Acceleration*dt, v.TargetVelocity), safe)
	}
	next := v.Offset + v.Velocity*dt
	if next > stopTarget {
		next = stopTarget
		v.Velocity = 0
	}
	v.Offset = next
}

// spawnAmbientTraffic keeps the background population near the configured
// floor using only the tick-derived RNG stream.
func spawnAmbientTraffic(st *SimulationState, cfg *Config, raise func(Event)) {
	if len(st.Vehicles) >= cfg.Vehicles.MinPopulation || len(st.Vehicles) >= cfg.Vehicles.MaxVehicles {
		return
	}
	rng := st.RNG.ForTick(st.TickID)
	if rng.Float64() >= cfg.Vehicles.SpawnChance {
		return
	}
	route := st.Grid.RandomRoute(rng)
	speed := cfg.Vehicles.MinSpeed + rng.Float64()*(cfg.Vehicles.MaxSpeed-cfg.Vehicles.MinSpeed)
	v := st.addVehicle(cfg, VehicleNormal, route, speed)
	raise(VehicleSpawnedEvent{
		BaseEvent:   BaseEvent{TickID: st.TickID},
		VehicleID:   v.ID,
		VehicleType: v.Type,
		Route:       v.Route,
	})
}
