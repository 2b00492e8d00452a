// SimulationState is the authoritative mutable state. It is exclusively
// owned by the orchestrator; every other component sees it only through
// published snapshots. Holding it as an explicit value (rather than ambient
// globals) is what allows multiple independent simulation instances in one
// process.

package sim

import (
	"fmt"
	"sort"
)

// SimulationState aggregates everything the tick protocol mutates.
type SimulationState struct {
	TickID    int64
	Grid      *Grid
	Vehicles  map[string]*Vehicle
	AIEnabled bool

	RNG *TickRNG

	nextVehicleSeq int64
}

// NewSimulationState builds the initial state for a scenario: topology from
// the topology RNG stream, plus an initial ambient vehicle population so the
// grid does not start empty.
func NewSimulationState(cfg *Config) *SimulationState {
	rng := NewTickRNG(NewSimulationKey(cfg.Seed))
	st := &SimulationState{
		TickID:   0,
		Grid:     NewGrid(cfg, rng.ForStream(StreamTopology)),
		Vehicles: make(map[string]*Vehicle),
		RNG:      rng,
	}
	spawnRNG := rng.ForStream(StreamSeedTraffic)
	stopLine := cfg.IntersectionSpacing - cfg.Vehicles.StopOffset
	for i := 0; i < cfg.Vehicles.MinPopulation/2; i++ {
		route := st.Grid.RandomRoute(spawnRNG)
		speed := cfg.Vehicles.MinSpeed + spawnRNG.Float64()*(cfg.Vehicles.MaxSpeed-cfg.Vehicles.MinSpeed)
		v := st.addVehicle(cfg, VehicleNormal, route, speed)
		// Scatter the initial population along their entry segments.
		v.Offset = spawnRNG.Float64() * stopLine
	}
	return st
}

// addVehicle creates and registers a vehicle at the start of its entry
// segment. Callers are responsible for capacity checks.
func (st *SimulationState) addVehicle(cfg *Config, vtype VehicleType, route []string, targetSpeed float64) *Vehicle {
	st.nextVehicleSeq++
	id := fmt.Sprintf("v-%d-%d", st.TickID, st.nextVehicleSeq)
	v := NewVehicle(id, st.nextVehicleSeq, st.TickID, vtype, route, targetSpeed, st.Grid)
	st.Vehicles[id] = v
	return v
}

// SortedVehicleIDs returns vehicle IDs ordered by spawn sequence. Map
// iteration order is never used inside the tick; this ordering keeps every
// per-tick traversal deterministic.
func (st *SimulationState) SortedVehicleIDs() []string {
	ids := make([]string, 0, len(st.Vehicles))
	for id := range st.Vehicles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return st.Vehicles[ids[i]].Seq < st.Vehicles[ids[j]].Seq
	})
	return ids
}
