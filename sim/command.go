// Command contract: tagged variants submitted by external producers and
// applied by the orchestrator at tick start. Commands are immutable once
// enqueued; structural validation happens at Submit time against the
// immutable grid topology, so a rejected command never touches state.

package sim

// CommandKind tags a command variant.
type CommandKind string

const (
	CmdSpawnVehicle        CommandKind = "spawn_vehicle"
	CmdChangeSignalPhase   CommandKind = "change_signal_phase"
	CmdOverrideSignal      CommandKind = "override_signal"
	CmdRestoreSignal       CommandKind = "restore_signal"
	CmdToggleAI            CommandKind = "toggle_ai"
	CmdManualOverride      CommandKind = "manual_override"
	CmdSetSignalTiming     CommandKind = "set_signal_timing"
	CmdApplyTrafficPattern CommandKind = "apply_traffic_pattern"
)

// Command is the ingress contract. Validate is called against the immutable
// topology before enqueue; apply-time checks that depend on mutable state
// (capacity, signal mode) happen inside the tick.
type Command interface {
	Kind() CommandKind
	Validate(g *Grid) error
}

// SpawnVehicle creates a vehicle on the given route. Emergency-type spawns
// also raise an EmergencyRequestReceived event.
type SpawnVehicle struct {
	VehicleType VehicleType
	Route       []string
	TargetSpeed float64 // units/second; 0 means scenario default
}

func (c *SpawnVehicle) Kind() CommandKind { return CmdSpawnVehicle }

func (c *SpawnVehicle) Validate(g *Grid) error {
	if c.VehicleType != VehicleNormal && c.VehicleType != VehicleEmergency {
		return validationErrorf("vehicle_type", "unknown vehicle type %q", c.VehicleType)
	}
	if c.TargetSpeed < 0 {
		return validationErrorf("target_speed", "must be >= 0, got %v", c.TargetSpeed)
	}
	return g.ValidateRoute(c.Route)
}

// ChangeSignalPhase advances a NORMAL-mode signal to its next phase
// immediately, skipping the remaining timer.
type ChangeSignalPhase struct {
	IntersectionID string
}

func (c *ChangeSignalPhase) Kind() CommandKind { return CmdChangeSignalPhase }

func (c *ChangeSignalPhase) Validate(g *Grid) error {
	return validateIntersection(g, c.IntersectionID)
}

// OverrideSignal pins an intersection green along Axis for an emergency
// vehicle. Issued by the priority manager, never directly by producers.
type OverrideSignal struct {
	IntersectionID string
	VehicleID      string
	Axis           Axis
}

func (c *OverrideSignal) Kind() CommandKind { return CmdOverrideSignal }

func (c *OverrideSignal) Validate(g *Grid) error {
	if c.Axis != AxisNorthSouth && c.Axis != AxisEastWest {
		return validationErrorf("axis", "unknown axis %q", c.Axis)
	}
	if c.VehicleID == "" {
		return validationErrorf("vehicle_id", "must not be empty")
	}
	return validateIntersection(g, c.IntersectionID)
}

// RestoreSignal ends an emergency override, returning the signal to NORMAL.
type RestoreSignal struct {
	IntersectionID string
}

func (c *RestoreSignal) Kind() CommandKind { return CmdRestoreSignal }

func (c *RestoreSignal) Validate(g *Grid) error {
	return validateIntersection(g, c.IntersectionID)
}

// ToggleAI flips the global AI-optimization flag consulted when applying
// advisor timing suggestions.
type ToggleAI struct {
	Enabled bool
}

func (c *ToggleAI) Kind() CommandKind    { return CmdToggleAI }
func (c *ToggleAI) Validate(*Grid) error { return nil }

// ManualOverride pins an explicit phase (Release=false) or returns a MANUAL
// signal to NORMAL cycling (Release=true). Targeting an intersection under
// active emergency override defers the command until restoration.
type ManualOverride struct {
	IntersectionID string
	Phase          SignalPhase
	Release        bool
}

func (c *ManualOverride) Kind() CommandKind { return CmdManualOverride }

func (c *ManualOverride) Validate(g *Grid) error {
	if !c.Release {
		switch c.Phase {
		case PhaseNorthSouthGreen, PhaseNorthSouthYellow, PhaseEastWestGreen, PhaseEastWestYellow, PhaseAllRed:
		default:
			return validationErrorf("phase", "unknown signal phase %q", c.Phase)
		}
	}
	return validateIntersection(g, c.IntersectionID)
}

// SetSignalTiming adjusts per-direction green durations for one
// intersection. IssuedAt is set by the AI advisor so that stale suggestions
// can be discarded at apply time; manually issued timings leave it zero.
type SetSignalTiming struct {
	IntersectionID string
	NSGreenSeconds float64
	EWGreenSeconds float64
	IssuedAt       int64 // tick the suggestion was computed for; 0 = not advisor-sourced
}

func (c *SetSignalTiming) Kind() CommandKind { return CmdSetSignalTiming }

func (c *SetSignalTiming) Validate(g *Grid) error {
	if c.NSGreenSeconds <= 0 || c.EWGreenSeconds <= 0 {
		return validationErrorf("green_seconds", "must be > 0, got ns=%v ew=%v",
			c.NSGreenSeconds, c.EWGreenSeconds)
	}
	return validateIntersection(g, c.IntersectionID)
}

// TrafficPattern names a grid-wide signal timing preset.
type TrafficPattern string

const (
	PatternRushHour  TrafficPattern = "rush_hour"
	PatternNightMode TrafficPattern = "night_mode"
	PatternEvent     TrafficPattern = "event"
	PatternHoliday   TrafficPattern = "holiday"
)

// patternTimings maps each preset to (nsGreenSeconds, ewGreenSeconds).
var patternTimings = map[TrafficPattern][2]float64{
	PatternRushHour:  {40.0, 20.0},
	PatternNightMode: {10.0, 10.0},
	PatternEvent:     {35.0, 35.0},
	PatternHoliday:   {20.0, 20.0},
}

// ApplyTrafficPattern applies a preset's green split to every intersection
// and resets running timers so the preset takes effect immediately.
type ApplyTrafficPattern struct {
	Pattern TrafficPattern
}

func (c *ApplyTrafficPattern) Kind() CommandKind { return CmdApplyTrafficPattern }

func (c *ApplyTrafficPattern) Validate(*Grid) error {
	if _, ok := patternTimings[c.Pattern]; !ok {
		return validationErrorf("pattern", "unknown traffic pattern %q", c.Pattern)
	}
	return nil
}

func validateIntersection(g *Grid, id string) error {
	if g.Intersection(id) == nil {
		return validationErrorf("intersection_id", "unknown intersection %q", id)
	}
	return nil
}
