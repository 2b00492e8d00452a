// AI advisor: the optimization collaborator living outside the tick loop.
//
// It observes published snapshots, scores congestion per approach axis, and
// feeds green-split suggestions back as ordinary SetSignalTiming commands.
// The tick never waits for it; suggestions it failed to deliver in time are
// discarded at apply time via the IssuedAt staleness check.

package sim

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// Advisor computes signal timing suggestions from snapshots.
type Advisor struct {
	cfg  *Config
	o    *Orchestrator
	last int64 // tick of the last snapshot acted on
}

// NewAdvisor creates an advisor bound to one orchestrator.
func NewAdvisor(o *Orchestrator) *Advisor {
	return &Advisor{cfg: o.Config(), o: o}
}

// congestionScore is the demo heuristic: vehicles approaching within the
// detection radius count once, stopped vehicles count twice more.
func (a *Advisor) congestionScore(snap *Snapshot, intersectionID string, axis Axis) float64 {
	spacing := a.cfg.IntersectionSpacing
	approaching := lo.Filter(snap.Vehicles, func(v VehicleSnapshot, _ int) bool {
		return v.NextIntersection == intersectionID &&
			v.Heading.Axis() == axis &&
			spacing-v.Offset < a.cfg.Advisor.CongestionRadius
	})
	stopped := lo.CountBy(approaching, func(v VehicleSnapshot) bool { return v.Velocity < 1.0 })
	return float64(len(approaching)) + 2.0*float64(stopped)
}

// Suggest returns timing nudges for every intersection whose approach load
// is unbalanced. Pure function of the snapshot; trivially testable.
func (a *Advisor) Suggest(snap *Snapshot) []Command {
	if !snap.AIEnabled {
		return nil
	}
	var cmds []Command
	tps := float64(a.cfg.TicksPerSecond)
	nudge := a.cfg.Advisor.NudgeSeconds
	minG, maxG := a.cfg.Signals.MinGreenSeconds, a.cfg.Signals.MaxGreenSeconds
	for _, sig := range snap.Signals {
		if sig.Mode != ModeNormal {
			continue
		}
		nsScore := a.congestionScore(snap, sig.IntersectionID, AxisNorthSouth)
		ewScore := a.congestionScore(snap, sig.IntersectionID, AxisEastWest)
		if nsScore == ewScore {
			continue
		}
		ns := float64(sig.NSGreenTicks) / tps
		ew := float64(sig.EWGreenTicks) / tps
		if nsScore > ewScore {
			ns, ew = min(maxG, ns+nudge), max(minG, ew-nudge)
		} else {
			ew, ns = min(maxG, ew+nudge), max(minG, ns-nudge)
		}
		cmds = append(cmds, &SetSignalTiming{
			IntersectionID: sig.IntersectionID,
			NSGreenSeconds: ns,
			EWGreenSeconds: ew,
			IssuedAt:       snap.TickID,
		})
	}
	return cmds
}

// Run polls the published snapshot at the configured wall interval and
// submits suggestions. Submission failures (backpressure, staleness) are
// collaborator-local: logged, never propagated into the simulation.
func (a *Advisor) Run(ctx context.Context) {
	interval := time.Duration(float64(time.Second) * a.cfg.Advisor.UpdateIntervalSeconds)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := a.o.Latest()
			if snap == nil || snap.TickID == a.last {
				continue
			}
			a.last = snap.TickID
			for _, cmd := range a.Suggest(snap) {
				if err := a.o.Submit(cmd); err != nil {
					logrus.Debugf("advisor suggestion dropped: %v", err)
				}
			}
		}
	}
}
