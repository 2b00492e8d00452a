// Command journal: records the exact per-tick command batches of a run so
// the run can be replayed bit-identically for debugging or ML training.
// The journal plus the scenario config fully determine a simulation.

package sim

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// CommandRecord is the flat serialized form of a Command. Kind selects the
// variant; unrelated fields stay zero and are omitted from the encoding.
type CommandRecord struct {
	Kind CommandKind `yaml:"kind"`

	VehicleType    VehicleType    `yaml:"vehicle_type,omitempty"`
	Route          []string       `yaml:"route,omitempty"`
	TargetSpeed    float64        `yaml:"target_speed,omitempty"`
	IntersectionID string         `yaml:"intersection_id,omitempty"`
	VehicleID      string         `yaml:"vehicle_id,omitempty"`
	Axis           Axis           `yaml:"axis,omitempty"`
	Enabled        bool           `yaml:"enabled,omitempty"`
	Phase          SignalPhase    `yaml:"phase,omitempty"`
	Release        bool           `yaml:"release,omitempty"`
	NSGreenSeconds float64        `yaml:"ns_green_seconds,omitempty"`
	EWGreenSeconds float64        `yaml:"ew_green_seconds,omitempty"`
	IssuedAt       int64          `yaml:"issued_at,omitempty"`
	Pattern        TrafficPattern `yaml:"pattern,omitempty"`
}

// EncodeCommand flattens a command into its record form.
func EncodeCommand(cmd Command) CommandRecord {
	switch c := cmd.(type) {
	case *SpawnVehicle:
		return CommandRecord{Kind: c.Kind(), VehicleType: c.VehicleType, Route: c.Route, TargetSpeed: c.TargetSpeed}
	case *ChangeSignalPhase:
		return CommandRecord{Kind: c.Kind(), IntersectionID: c.IntersectionID}
	case *OverrideSignal:
		return CommandRecord{Kind: c.Kind(), IntersectionID: c.IntersectionID, VehicleID: c.VehicleID, Axis: c.Axis}
	case *RestoreSignal:
		return CommandRecord{Kind: c.Kind(), IntersectionID: c.IntersectionID}
	case *ToggleAI:
		return CommandRecord{Kind: c.Kind(), Enabled: c.Enabled}
	case *ManualOverride:
		return CommandRecord{Kind: c.Kind(), IntersectionID: c.IntersectionID, Phase: c.Phase, Release: c.Release}
	case *SetSignalTiming:
		return CommandRecord{Kind: c.Kind(), IntersectionID: c.IntersectionID,
			NSGreenSeconds: c.NSGreenSeconds, EWGreenSeconds: c.EWGreenSeconds, IssuedAt: c.IssuedAt}
	case *ApplyTrafficPattern:
		return CommandRecord{Kind: c.Kind(), Pattern: c.Pattern}
	default:
		return CommandRecord{Kind: cmd.Kind()}
	}
}

// Command reconstructs the typed command from its record form.
func (r CommandRecord) Command() (Command, error) {
	switch r.Kind {
	case CmdSpawnVehicle:
		return &SpawnVehicle{VehicleType: r.VehicleType, Route: r.Route, TargetSpeed: r.TargetSpeed}, nil
	case CmdChangeSignalPhase:
		return &ChangeSignalPhase{IntersectionID: r.IntersectionID}, nil
	case CmdOverrideSignal:
		return &OverrideSignal{IntersectionID: r.IntersectionID, VehicleID: r.VehicleID, Axis: r.Axis}, nil
	case CmdRestoreSignal:
		return &RestoreSignal{IntersectionID: r.IntersectionID}, nil
	case CmdToggleAI:
		return &ToggleAI{Enabled: r.Enabled}, nil
	case CmdManualOverride:
		return &ManualOverride{IntersectionID: r.IntersectionID, Phase: r.Phase, Release: r.Release}, nil
	case CmdSetSignalTiming:
		return &SetSignalTiming{IntersectionID: r.IntersectionID,
			NSGreenSeconds: r.NSGreenSeconds, EWGreenSeconds: r.EWGreenSeconds, IssuedAt: r.IssuedAt}, nil
	case CmdApplyTrafficPattern:
		return &ApplyTrafficPattern{Pattern: r.Pattern}, nil
	default:
		return nil, fmt.Errorf("unknown command kind %q", r.Kind)
	}
}

// LogEntry is one tick's drained command batch, in submission order.
type LogEntry struct {
	Tick     int64           `yaml:"tick"`
	Commands []CommandRecord `yaml:"commands"`
}

// CommandLog accumulates per-tick batches during a recorded run.
type CommandLog struct {
	Entries []LogEntry `yaml:"entries"`
}

// Record appends the batch drained at the given tick. Called by the
// orchestrator on its own goroutine; not safe for concurrent use.
func (l *CommandLog) Record(tick int64, cmds []Command) {
	records := make([]CommandRecord, len(cmds))
	for i, cmd := range cmds {
		records[i] = EncodeCommand(cmd)
	}
	l.Entries = append(l.Entries, LogEntry{Tick: tick, Commands: records})
}

// Save writes the journal as YAML.
func (l *CommandLog) Save(path string) error {
	data, err := yaml.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode command log: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadCommandLog reads a journal written by Save.
func LoadCommandLog(path string) (*CommandLog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read command log: %w", err)
	}
	var l CommandLog
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse command log: %w", err)
	}
	return &l, nil
}

// Replay re-runs a recorded command log against a fresh orchestrator built
// from cfg and returns it after n ticks. Identical (cfg, log, n) inputs
// yield identical snapshot sequences.
func Replay(ctx context.Context, cfg *Config, log *CommandLog, n int64) (*Orchestrator, error) {
	o, err := NewOrchestrator(cfg)
	if err != nil {
		return nil, err
	}
	entries := make([]LogEntry, len(log.Entries))
	copy(entries, log.Entries)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Tick < entries[j].Tick })

	idx := 0
	for tick := int64(0); tick < n; tick++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for idx < len(entries) && entries[idx].Tick == tick {
			for _, rec := range entries[idx].Commands {
				cmd, err := rec.Command()
				if err != nil {
					return nil, fmt.Errorf("tick %d: %w", tick, err)
				}
				if err := o.Submit(cmd); err != nil {
					return nil, fmt.Errorf("tick %d: resubmit %s: %w", tick, cmd.Kind(), err)
				}
			}
			idx++
		}
		if err := o.Tick(); err != nil {
			return nil, err
		}
	}
	return o, nil
}
