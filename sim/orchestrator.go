// Simulation orchestrator: the single writer.
//
// Owns SimulationState and drives the fixed-step tick protocol. Producers
// interact with it only through Submit (command queue) and the published
// snapshots; nothing else may mutate state. Re-running the same
// configuration with the same command log reproduces bit-identical
// snapshots because the protocol touches no wall clock and no unordered
// map iteration.

package sim

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Orchestrator drives one simulation instance.
type Orchestrator struct {
	cfg       *Config
	state     *SimulationState
	queue     *CommandQueue
	bus       *EventBus
	manager   *PriorityManager
	publisher *SnapshotPublisher
	metrics   *Metrics
	journal   *CommandLog

	pending  []Event   // events raised by the tick in progress
	internal []Command // manager follow-ups for the next tick
	halted   error
}

// NewOrchestrator validates the config and assembles a ready-to-tick
// instance. The priority manager and metrics are wired to the event bus as
// synchronous subscribers.
func NewOrchestrator(cfg *Config) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	metrics := &Metrics{}
	o := &Orchestrator{
		cfg:       cfg,
		state:     NewSimulationState(cfg),
		queue:     NewCommandQueue(cfg.QueueCapacity),
		bus:       NewEventBus(cfg.FeedBufferSize),
		manager:   NewPriorityManager(cfg, metrics),
		publisher: NewSnapshotPublisher(),
		metrics:   metrics,
	}
	o.bus.Subscribe(o.manager)
	o.bus.Subscribe(metrics)
	return o, nil
}

// Submit validates a command against the immutable topology and enqueues
// it. Safe for any number of concurrent callers. Returns ValidationError or
// QueueFullError without touching simulation state.
func (o *Orchestrator) Submit(cmd Command) error {
	if cmd == nil {
		return validationErrorf("command", "must not be nil")
	}
	if err := cmd.Validate(o.state.Grid); err != nil {
		return err
	}
	return o.queue.Enqueue(cmd)
}

// Latest returns the most recently published snapshot (nil before the
// first tick). Lock-free; never blocks tick progress.
func (o *Orchestrator) Latest() *Snapshot {
	return o.publisher.Latest()
}

// SubscribeFeed attaches an external event feed. Must be called before
// ticking starts.
func (o *Orchestrator) SubscribeFeed() <-chan Event {
	return o.bus.SubscribeFeed()
}

// Metrics returns the run counters.
func (o *Orchestrator) Metrics() *Metrics {
	return o.metrics
}

// DroppedFeedEvents returns how many events were discarded by slow feeds.
func (o *Orchestrator) DroppedFeedEvents() int64 {
	return o.bus.Dropped.Load()
}

// AttachJournal records every drained command batch for later replay.
func (o *Orchestrator) AttachJournal(j *CommandLog) {
	o.journal = j
}

// Config returns the scenario configuration.
func (o *Orchestrator) Config() *Config {
	return o.cfg
}

func (o *Orchestrator) raise(ev Event) {
	o.pending = append(o.pending, ev)
}

// Tick executes one full step of the protocol. A returned
// InvariantViolation halts the orchestrator permanently: continuing with
// corrupted state would silently break the determinism guarantee.
func (o *Orchestrator) Tick() error {
	if o.halted != nil {
		return o.halted
	}

	// (1) Drain: commands submitted from here on belong to the next tick.
	// Only the external batch is journaled; the priority manager's
	// follow-ups are a pure function of state and are regenerated on replay.
	cmds := o.queue.Drain()
	if o.journal != nil && len(cmds) > 0 {
		o.journal.Record(o.state.TickID, cmds)
	}

	// (2) Apply manager follow-ups from the previous tick, then the external
	// batch in submission order.
	followUps := o.internal
	o.internal = nil
	for _, cmd := range append(followUps, cmds...) {
		if err := o.apply(cmd); err != nil {
			var inv *InvariantViolation
			if errors.As(err, &inv) {
				o.halted = err
				return err
			}
			o.metrics.CommandsRejected++
			logrus.Warnf("tick %d: command %s rejected: %v", o.state.TickID, cmd.Kind(), err)
			continue
		}
		o.metrics.CommandsApplied++
	}

	// (3) Advance signal state machines.
	for _, id := range o.state.Grid.IntersectionIDs() {
		sig := o.state.Grid.Intersection(id).Signal
		if err := sig.CheckInvariants(o.state.TickID); err != nil {
			o.halted = err
			return err
		}
		if sig.Advance() {
			o.raise(SignalChangedEvent{
				BaseEvent:      BaseEvent{TickID: o.state.TickID},
				IntersectionID: id,
				Phase:          sig.Phase,
				Mode:           sig.Mode,
			})
		}
	}

	// (4) Advance vehicle kinematics and ambient population.
	advanceVehicles(o.state, o.cfg, o.raise)
	o.removeDeparted()
	spawnAmbientTraffic(o.state, o.cfg, o.raise)

	// (5) Emergency re-evaluation; follow-ups apply at the start of the
	// next tick, ahead of the external batch.
	o.internal = append(o.internal, o.manager.Reevaluate(o.state)...)

	// (6) Deliver the tick's events.
	events := o.pending
	o.pending = nil
	o.bus.Publish(events)

	// (7) Advance the logical clock.
	o.state.TickID++

	// (8) Publish the read model.
	o.publisher.Publish(BuildSnapshot(o.state))
	return nil
}

// apply executes one command against the state. Any returned error means
// the command had no effect.
func (o *Orchestrator) apply(cmd Command) error {
	switch c := cmd.(type) {
	case *SpawnVehicle:
		return o.applySpawn(c)

	case *ChangeSignalPhase:
		sig := o.state.Grid.Intersection(c.IntersectionID).Signal
		if err := sig.ForceAdvance(); err != nil {
			return err
		}
		o.raiseSignalChanged(sig)
		return nil

	case *OverrideSignal:
		sig := o.state.Grid.Intersection(c.IntersectionID).Signal
		sig.Override(c.Axis)
		o.raiseSignalChanged(sig)
		return nil

	case *RestoreSignal:
		sig := o.state.Grid.Intersection(c.IntersectionID).Signal
		if err := sig.Restore(o.state.TickID); err != nil {
			return err
		}
		o.raiseSignalChanged(sig)
		return nil

	case *ToggleAI:
		o.state.AIEnabled = c.Enabled
		logrus.Infof("tick %d: AI optimization %v", o.state.TickID, c.Enabled)
		return nil

	case *ManualOverride:
		sig := o.state.Grid.Intersection(c.IntersectionID).Signal
		if sig.Mode == ModeEmergencyOverride && !c.Release {
			// Never EMERGENCY_OVERRIDE -> MANUAL directly: park it until
			// the restore applies.
			o.manager.DeferManual(c)
			return nil
		}
		if c.Release {
			if err := sig.ReleaseManual(); err != nil {
				return err
			}
		} else if err := sig.SetManual(c.Phase); err != nil {
			return err
		}
		o.raiseSignalChanged(sig)
		return nil

	case *SetSignalTiming:
		if c.IssuedAt > 0 {
			if !o.state.AIEnabled {
				return validationErrorf("issued_at", "AI optimization is disabled")
			}
			staleTicks := o.cfg.SecondsToTicks(o.cfg.Advisor.StaleAfterSeconds)
			if o.state.TickID-c.IssuedAt > staleTicks {
				o.metrics.StaleDiscarded++
				return validationErrorf("issued_at",
					"suggestion from tick %d is stale at tick %d", c.IssuedAt, o.state.TickID)
			}
		}
		sig := o.state.Grid.Intersection(c.IntersectionID).Signal
		sig.SetGreenTimings(
			o.cfg.SecondsToTicks(c.NSGreenSeconds),
			o.cfg.SecondsToTicks(c.EWGreenSeconds),
			o.cfg.SecondsToTicks(o.cfg.Signals.MinGreenSeconds),
			o.cfg.SecondsToTicks(o.cfg.Signals.MaxGreenSeconds),
		)
		return nil

	case *ApplyTrafficPattern:
		timings := patternTimings[c.Pattern]
		ns := o.cfg.SecondsToTicks(timings[0])
		ew := o.cfg.SecondsToTicks(timings[1])
		minT := o.cfg.SecondsToTicks(o.cfg.Signals.MinGreenSeconds)
		maxT := o.cfg.SecondsToTicks(o.cfg.Signals.MaxGreenSeconds)
		for _, id := range o.state.Grid.IntersectionIDs() {
			sig := o.state.Grid.Intersection(id).Signal
			sig.SetGreenTimings(ns, ew, minT, maxT)
			// Presets take effect immediately: restart the running window.
			if sig.Mode == ModeNormal {
				sig.PhaseTimer = sig.phaseDuration(sig.Phase)
			}
		}
		logrus.Infof("tick %d: traffic pattern %s applied", o.state.TickID, c.Pattern)
		return nil

	default:
		return validationErrorf("command", "unknown command kind %q", cmd.Kind())
	}
}

func (o *Orchestrator) applySpawn(c *SpawnVehicle) error {
	if len(o.state.Vehicles) >= o.cfg.Vehicles.MaxVehicles {
		return validationErrorf("route", "no free capacity: %d vehicles active", len(o.state.Vehicles))
	}
	speed := c.TargetSpeed
	if speed == 0 {
		if c.VehicleType == VehicleEmergency {
			speed = o.cfg.Emergency.EmergencySpeed
		} else {
			speed = (o.cfg.Vehicles.MinSpeed + o.cfg.Vehicles.MaxSpeed) / 2
		}
	}
	v := o.state.addVehicle(o.cfg, c.VehicleType, c.Route, speed)
	o.raise(VehicleSpawnedEvent{
		BaseEvent:   BaseEvent{TickID: o.state.TickID},
		VehicleID:   v.ID,
		VehicleType: v.Type,
		Route:       v.Route,
	})
	if v.Type == VehicleEmergency {
		o.raise(EmergencyRequestReceivedEvent{
			BaseEvent: BaseEvent{TickID: o.state.TickID},
			VehicleID: v.ID,
			Route:     v.Route,
		})
	}
	return nil
}

// removeDeparted deletes vehicles that completed their route, raising
// EmergencyCleared for emergency vehicles so held overrides are released.
func (o *Orchestrator) removeDeparted() {
	for _, id := range o.state.SortedVehicleIDs() {
		v := o.state.Vehicles[id]
		if v.State != StateDeparted {
			continue
		}
		if v.Type == VehicleEmergency {
			o.raise(EmergencyClearedEvent{
				BaseEvent: BaseEvent{TickID: o.state.TickID},
				VehicleID: v.ID,
			})
		}
		delete(o.state.Vehicles, id)
	}
}

func (o *Orchestrator) raiseSignalChanged(sig *TrafficSignal) {
	o.raise(SignalChangedEvent{
		BaseEvent:      BaseEvent{TickID: o.state.TickID},
		IntersectionID: sig.IntersectionID,
		Phase:          sig.Phase,
		Mode:           sig.Mode,
	})
}

// RunTicks executes n ticks back to back, stopping early on halt or context
// cancellation. Used by tests and replay.
func (o *Orchestrator) RunTicks(ctx context.Context, n int64) error {
	for i := int64(0); i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.Tick(); err != nil {
			return err
		}
	}
	return nil
}

// RunPaced drives the tick loop at wall-clock rate for live consumption.
// Pacing is purely an outer concern: nothing inside Tick reads the clock,
// so a paced run and a headless run with equal inputs produce identical
// snapshots.
func (o *Orchestrator) RunPaced(ctx context.Context, n int64) error {
	interval := time.Duration(float64(time.Second) * o.cfg.DT())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for i := int64(0); i < n; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := o.Tick(); err != nil {
				return err
			}
		}
	}
	return nil
}
