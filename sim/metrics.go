// Tracks simulation-wide counters for final reporting and telemetry.

package sim

import "fmt"

// Metrics aggregates statistics about the simulation run. Useful for
// evaluating signal policies and debugging behavior over time. Mutated only
// on the orchestrator goroutine.
type Metrics struct {
	VehiclesSpawned  int // vehicles created (commands + ambient)
	VehiclesDeparted int // vehicles that completed their route
	SignalChanges    int // phase/mode transitions emitted
	OverridesGranted int // fresh emergency overrides
	Handoffs         int // direct override handoffs without a NORMAL cycle
	Escalations      int // pending requests escalated past the wait bound
	ManualDeferred   int // manual overrides parked during emergency override
	CommandsApplied  int // commands consumed from the queue
	CommandsRejected int // commands rejected at apply time
	StaleDiscarded   int // advisor suggestions discarded as stale
}

// HandleEvent implements Subscriber so the metrics track the event stream
// without the orchestrator poking counters for every event site.
func (m *Metrics) HandleEvent(ev Event) {
	switch e := ev.(type) {
	case SignalChangedEvent:
		m.SignalChanges++
	case VehicleSpawnedEvent:
		m.VehiclesSpawned++
	case VehicleArrivedEvent:
		if e.Final {
			m.VehiclesDeparted++
		}
	}
}

// Print displays aggregated metrics at the end of the simulation.
func (m *Metrics) Print(ticks int64, droppedFeedEvents int64) {
	fmt.Println("=== Simulation Metrics ===")
	fmt.Printf("Ticks executed       : %d\n", ticks)
	fmt.Printf("Vehicles spawned     : %d\n", m.VehiclesSpawned)
	fmt.Printf("Vehicles departed    : %d\n", m.VehiclesDeparted)
	fmt.Printf("Signal changes       : %d\n", m.SignalChanges)
	fmt.Printf("Overrides granted    : %d\n", m.OverridesGranted)
	fmt.Printf("Override handoffs    : %d\n", m.Handoffs)
	fmt.Printf("Escalations          : %d\n", m.Escalations)
	fmt.Printf("Manual deferred      : %d\n", m.ManualDeferred)
	fmt.Printf("Commands applied     : %d\n", m.CommandsApplied)
	fmt.Printf("Commands rejected    : %d\n", m.CommandsRejected)
	fmt.Printf("Stale suggestions    : %d\n", m.StaleDiscarded)
	fmt.Printf("Feed events dropped  : %d\n", droppedFeedEvents)
}
