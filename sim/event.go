// Domain events raised during a tick and delivered through the event bus.
// Events are immutable and stamped with the tick that produced them.

package sim

// EventType tags an event variant.
type EventType string

const (
	EventSignalChanged            EventType = "signal_changed"
	EventVehicleSpawned           EventType = "vehicle_spawned"
	EventVehicleArrived           EventType = "vehicle_arrived"
	EventEmergencyRequestReceived EventType = "emergency_request_received"
	EventEmergencyCleared         EventType = "emergency_cleared"
)

// Event is the read-only contract for all domain events.
type Event interface {
	Tick() int64
	Type() EventType
}

// BaseEvent provides the common tick stamp.
type BaseEvent struct {
	TickID int64
}

func (e BaseEvent) Tick() int64 { return e.TickID }

// SignalChangedEvent records a signal phase or mode transition.
type SignalChangedEvent struct {
	BaseEvent
	IntersectionID string
	Phase          SignalPhase
	Mode           SignalMode
}

func (SignalChangedEvent) Type() EventType { return EventSignalChanged }

// VehicleSpawnedEvent records a vehicle entering the simulation.
type VehicleSpawnedEvent struct {
	BaseEvent
	VehicleID   string
	VehicleType VehicleType
	Route       []string
}

func (VehicleSpawnedEvent) Type() EventType { return EventVehicleSpawned }

// VehicleArrivedEvent records a vehicle clearing an intersection on its
// route. Final is true when the intersection was the route's last node, at
// which point the vehicle departs the simulation.
type VehicleArrivedEvent struct {
	BaseEvent
	VehicleID      string
	IntersectionID string
	Final          bool
}

func (VehicleArrivedEvent) Type() EventType { return EventVehicleArrived }

// EmergencyRequestReceivedEvent records a new emergency preemption request.
type EmergencyRequestReceivedEvent struct {
	BaseEvent
	VehicleID string
	Route     []string
}

func (EmergencyRequestReceivedEvent) Type() EventType { return EventEmergencyRequestReceived }

// EmergencyClearedEvent records the end of an emergency run, after which all
// overrides held for the vehicle are released or handed off.
type EmergencyClearedEvent struct {
	BaseEvent
	VehicleID string
}

func (EmergencyClearedEvent) Type() EventType { return EventEmergencyCleared }
