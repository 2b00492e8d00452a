// Traffic signal state machine.
//
// A signal cycles NS-green -> NS-yellow -> EW-green -> EW-yellow in NORMAL
// mode. EMERGENCY_OVERRIDE pins the phase for a preempting vehicle and
// retains the pre-override phase for restoration. MANUAL pins the phase with
// no auto-advance. There is no direct EMERGENCY_OVERRIDE -> MANUAL
// transition; the priority manager defers manual requests until restoration.

package sim

// SignalPhase is the active phase of a traffic signal.
type SignalPhase string

const (
	PhaseNorthSouthGreen  SignalPhase = "NS_GREEN"
	PhaseNorthSouthYellow SignalPhase = "NS_YELLOW"
	PhaseEastWestGreen    SignalPhase = "EW_GREEN"
	PhaseEastWestYellow   SignalPhase = "EW_YELLOW"
	PhaseAllRed           SignalPhase = "ALL_RED"
)

// Permits reports whether the phase allows travel along the given axis.
// Yellow is treated as stopping, same as red.
func (p SignalPhase) Permits(axis Axis) bool {
	switch axis {
	case AxisNorthSouth:
		return p == PhaseNorthSouthGreen
	case AxisEastWest:
		return p == PhaseEastWestGreen
	}
	return false
}

// GreenPhase returns the green phase for an axis.
func (a Axis) GreenPhase() SignalPhase {
	if a == AxisNorthSouth {
		return PhaseNorthSouthGreen
	}
	return PhaseEastWestGreen
}

// SignalMode is the control mode of a traffic signal.
type SignalMode string

const (
	ModeNormal            SignalMode = "NORMAL"
	ModeEmergencyOverride SignalMode = "EMERGENCY_OVERRIDE"
	ModeManual            SignalMode = "MANUAL"
)

// TrafficSignal holds the mutable signal state for one intersection.
// All durations are in ticks. Green durations are adjustable per direction
// (SetSignalTiming, traffic patterns); yellow is fixed.
type TrafficSignal struct {
	IntersectionID string
	Phase          SignalPhase
	Mode           SignalMode
	PhaseTimer     int64 // ticks remaining in the current phase (NORMAL only)

	// SavedPhase is the pre-override phase, populated exactly while
	// Mode == ModeEmergencyOverride.
	SavedPhase SignalPhase

	NSGreenTicks int64
	EWGreenTicks int64
	YellowTicks  int64
}

// NewTrafficSignal creates a signal in NORMAL mode.
func NewTrafficSignal(intersectionID string, phase SignalPhase, timer, greenTicks, yellowTicks int64) *TrafficSignal {
	return &TrafficSignal{
		IntersectionID: intersectionID,
		Phase:          phase,
		Mode:           ModeNormal,
		PhaseTimer:     timer,
		NSGreenTicks:   greenTicks,
		EWGreenTicks:   greenTicks,
		YellowTicks:    yellowTicks,
	}
}

// nextPhase returns the successor in the fixed cycle. ALL_RED recovers into
// NS green.
func (s *TrafficSignal) nextPhase() SignalPhase {
	switch s.Phase {
	case PhaseNorthSouthGreen:
		return PhaseNorthSouthYellow
	case PhaseNorthSouthYellow:
		return PhaseEastWestGreen
	case PhaseEastWestGreen:
		return PhaseEastWestYellow
	case PhaseEastWestYellow:
		return PhaseNorthSouthGreen
	default: // PhaseAllRed
		return PhaseNorthSouthGreen
	}
}

// phaseDuration returns the configured duration for a phase.
func (s *TrafficSignal) phaseDuration(p SignalPhase) int64 {
	switch p {
	case PhaseNorthSouthGreen:
		return s.NSGreenTicks
	case PhaseEastWestGreen:
		return s.EWGreenTicks
	case PhaseNorthSouthYellow, PhaseEastWestYellow:
		return s.YellowTicks
	default:
		return s.YellowTicks
	}
}

// Advance runs one tick of NORMAL-mode cycling. It returns true when the
// phase changed. Signals in MANUAL or EMERGENCY_OVERRIDE do not auto-advance.
func (s *TrafficSignal) Advance() bool {
	if s.Mode != ModeNormal {
		return false
	}
	s.PhaseTimer--
	if s.PhaseTimer > 0 {
		return false
	}
	s.Phase = s.nextPhase()
	s.PhaseTimer = s.phaseDuration(s.Phase)
	return true
}

// ForceAdvance skips the remaining timer and advances to the next phase in
// the cycle. Only valid in NORMAL mode (ChangeSignalPhase command).
func (s *TrafficSignal) ForceAdvance() error {
	if s.Mode != ModeNormal {
		return validationErrorf("intersection_id",
			"%s: phase advance requires NORMAL mode, signal is %s", s.IntersectionID, s.Mode)
	}
	s.Phase = s.nextPhase()
	s.PhaseTimer = s.phaseDuration(s.Phase)
	return nil
}

// Override pins the signal green for the given axis on behalf of an
// emergency vehicle. The pre-override phase is captured once; a second
// Override while already overridden retargets the pinned direction without
// touching SavedPhase, which is what makes winner-to-winner handoff
// flicker-free.
func (s *TrafficSignal) Override(axis Axis) {
	if s.Mode != ModeEmergencyOverride {
		s.SavedPhase = s.Phase
		s.Mode = ModeEmergencyOverride
	}
	s.Phase = axis.GreenPhase()
	s.PhaseTimer = 0
}

// Restore ends an emergency override, returning to NORMAL with the saved
// phase and a fresh full-duration window. Restoring a signal that is not
// overridden is a command-routing bug on the caller's side.
func (s *TrafficSignal) Restore(tick int64) error {
	if s.Mode != ModeEmergencyOverride {
		return validationErrorf("intersection_id",
			"%s: restore requires EMERGENCY_OVERRIDE mode, signal is %s", s.IntersectionID, s.Mode)
	}
	if s.SavedPhase == "" {
		return &InvariantViolation{
			TickID: tick,
			Detail: s.IntersectionID + ": signal in EMERGENCY_OVERRIDE with no saved phase",
		}
	}
	s.Phase = s.SavedPhase
	s.Mode = ModeNormal
	s.SavedPhase = ""
	// Fresh full window, never the interrupted remainder: resuming a nearly
	// expired timer would re-switch immediately after restoration.
	s.PhaseTimer = s.phaseDuration(s.Phase)
	return nil
}

// SetManual pins an explicit phase with no auto-advance (NORMAL <-> MANUAL
// transitions carry no side state). The caller must not route this to an
// overridden signal; the priority manager defers such requests.
func (s *TrafficSignal) SetManual(phase SignalPhase) error {
	if s.Mode == ModeEmergencyOverride {
		return validationErrorf("intersection_id",
			"%s: manual control is deferred while signal is under emergency override", s.IntersectionID)
	}
	s.Mode = ModeManual
	s.Phase = phase
	s.PhaseTimer = 0
	return nil
}

// ReleaseManual returns a MANUAL signal to NORMAL cycling with a fresh
// window for the current phase.
func (s *TrafficSignal) ReleaseManual() error {
	if s.Mode != ModeManual {
		return validationErrorf("intersection_id",
			"%s: release requires MANUAL mode, signal is %s", s.IntersectionID, s.Mode)
	}
	s.Mode = ModeNormal
	s.PhaseTimer = s.phaseDuration(s.Phase)
	return nil
}

// SetGreenTimings updates the per-direction green durations, clamped to
// [min, max]. The running timer is left untouched; new durations take effect
// from the next phase entry.
func (s *TrafficSignal) SetGreenTimings(nsTicks, ewTicks, minTicks, maxTicks int64) {
	s.NSGreenTicks = clampTicks(nsTicks, minTicks, maxTicks)
	s.EWGreenTicks = clampTicks(ewTicks, minTicks, maxTicks)
}

func clampTicks(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CheckInvariants validates the signal's internal consistency.
func (s *TrafficSignal) CheckInvariants(tick int64) error {
	if s.Mode == ModeEmergencyOverride && s.SavedPhase == "" {
		return &InvariantViolation{
			TickID: tick,
			Detail: s.IntersectionID + ": signal in EMERGENCY_OVERRIDE with no saved phase",
		}
	}
	if s.Mode != ModeEmergencyOverride && s.SavedPhase != "" {
		return &InvariantViolation{
			TickID: tick,
			Detail: s.IntersectionID + ": saved phase retained outside EMERGENCY_OVERRIDE",
		}
	}
	return nil
}
