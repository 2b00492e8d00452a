// Snapshot projection and RCU-style publication.
//
// A Snapshot is an immutable read model built at the end of every tick.
// Readers grab the current pointer without locking and may keep the value
// as long as they like; the orchestrator never mutates a published snapshot,
// it replaces it.

package sim

import (
	"encoding/json"
	"hash/fnv"
	"sort"
	"sync/atomic"

	"github.com/samber/lo"
)

// SignalSnapshot is the read-model projection of one traffic signal.
type SignalSnapshot struct {
	IntersectionID string      `json:"intersection_id"`
	Phase          SignalPhase `json:"phase"`
	Mode           SignalMode  `json:"mode"`
	PhaseTimer     int64       `json:"phase_timer"`
	NSGreenTicks   int64       `json:"ns_green_ticks"`
	EWGreenTicks   int64       `json:"ew_green_ticks"`
}

// VehicleSnapshot is the read-model projection of one vehicle.
type VehicleSnapshot struct {
	ID               string       `json:"id"`
	Type             VehicleType  `json:"type"`
	State            VehicleState `json:"state"`
	NextIntersection string       `json:"next_intersection,omitempty"`
	SegmentIndex     int          `json:"segment_index"`
	Offset           float64      `json:"offset"`
	Velocity         float64      `json:"velocity"`
	Heading          Heading      `json:"heading"`
}

// Snapshot is the immutable projection of SimulationState at one tick.
// Slices are sorted by ID so the encoded form is canonical.
type Snapshot struct {
	TickID    int64             `json:"tick_id"`
	AIEnabled bool              `json:"ai_enabled"`
	Signals   []SignalSnapshot  `json:"signals"`
	Vehicles  []VehicleSnapshot `json:"vehicles"`
}

// BuildSnapshot projects the authoritative state into a new Snapshot.
func BuildSnapshot(st *SimulationState) *Snapshot {
	signals := lo.Map(st.Grid.IntersectionIDs(), func(id string, _ int) SignalSnapshot {
		s := st.Grid.Intersection(id).Signal
		return SignalSnapshot{
			IntersectionID: id,
			Phase:          s.Phase,
			Mode:           s.Mode,
			PhaseTimer:     s.PhaseTimer,
			NSGreenTicks:   s.NSGreenTicks,
			EWGreenTicks:   s.EWGreenTicks,
		}
	})
	vehicles := lo.Map(st.SortedVehicleIDs(), func(id string, _ int) VehicleSnapshot {
		v := st.Vehicles[id]
		return VehicleSnapshot{
			ID:               v.ID,
			Type:             v.Type,
			State:            v.State,
			NextIntersection: v.NextIntersectionID(),
			SegmentIndex:     v.SegmentIndex,
			Offset:           v.Offset,
			Velocity:         v.Velocity,
			Heading:          v.Headings[min(v.SegmentIndex, len(v.Headings)-1)],
		}
	})
	return &Snapshot{
		TickID:    st.TickID,
		AIEnabled: st.AIEnabled,
		Signals:   signals,
		Vehicles:  vehicles,
	}
}

// Hash returns a canonical 64-bit digest of the snapshot. Two runs are
// bit-identical iff their snapshot hashes match tick for tick.
func (s *Snapshot) Hash() uint64 {
	data, err := json.Marshal(s)
	if err != nil {
		// Snapshot contains only marshalable fields; this cannot happen.
		panic(err)
	}
	h := fnv.New64a()
	h.Write(data)
	return h.Sum64()
}

// Signal returns the projection for one intersection, or a zero value.
func (s *Snapshot) Signal(intersectionID string) (SignalSnapshot, bool) {
	return lo.Find(s.Signals, func(sig SignalSnapshot) bool {
		return sig.IntersectionID == intersectionID
	})
}

// Vehicle returns the projection for one vehicle, or a zero value.
func (s *Snapshot) Vehicle(id string) (VehicleSnapshot, bool) {
	return lo.Find(s.Vehicles, func(v VehicleSnapshot) bool { return v.ID == id })
}

// SegmentCongestion summarizes load between two adjacent intersections for
// the grid overview consumers.
type SegmentCongestion struct {
	NextIntersection string  `json:"next_intersection"`
	Heading          Heading `json:"heading"`
	Vehicles         int     `json:"vehicles"`
	Stopped          int     `json:"stopped"`
	Congestion       float64 `json:"congestion"` // 0..1, saturates at 3 vehicles
}

// Overview aggregates per-segment congestion from the vehicle projections.
func (s *Snapshot) Overview() []SegmentCongestion {
	type laneKey struct {
		next    string
		heading Heading
	}
	groups := lo.GroupBy(s.Vehicles, func(v VehicleSnapshot) laneKey {
		return laneKey{next: v.NextIntersection, heading: v.Heading}
	})
	out := make([]SegmentCongestion, 0, len(groups))
	for key, vs := range groups {
		if key.next == "" {
			continue
		}
		stopped := lo.CountBy(vs, func(v VehicleSnapshot) bool { return v.Velocity < 1.0 })
		congestion := float64(len(vs)) / 3.0
		if congestion > 1.0 {
			congestion = 1.0
		}
		out = append(out, SegmentCongestion{
			NextIntersection: key.next,
			Heading:          key.heading,
			Vehicles:         len(vs),
			Stopped:          stopped,
			Congestion:       congestion,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NextIntersection != out[j].NextIntersection {
			return out[i].NextIntersection < out[j].NextIntersection
		}
		return out[i].Heading < out[j].Heading
	})
	return out
}

// SnapshotPublisher atomically publishes the latest snapshot for lock-free
// concurrent readers (read-copy-update).
type SnapshotPublisher struct {
	current atomic.Pointer[Snapshot]
}

// NewSnapshotPublisher creates a publisher with no snapshot yet.
func NewSnapshotPublisher() *SnapshotPublisher {
	return &SnapshotPublisher{}
}

// Publish swaps in the new current snapshot. Called once per tick by the
// orchestrator.
func (p *SnapshotPublisher) Publish(s *Snapshot) {
	p.current.Store(s)
}

// Latest returns the most recently published snapshot, or nil before the
// first tick completes. Never blocks.
func (p *SnapshotPublisher) Latest() *Snapshot {
	return p.current.Load()
}
