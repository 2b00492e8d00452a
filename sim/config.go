package sim

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// SignalConfig groups traffic signal timing parameters.
// Durations are in simulated seconds; they are converted to ticks internally.
type SignalConfig struct {
	MinGreenSeconds float64 `yaml:"min_green_seconds"` // lower bound for a green phase (default 10)
	MaxGreenSeconds float64 `yaml:"max_green_seconds"` // upper bound for a green phase (default 60)
	YellowSeconds   float64 `yaml:"yellow_seconds"`    // fixed yellow duration (default 3)
}

// VehicleConfig groups vehicle kinematics and population parameters.
type VehicleConfig struct {
	MaxVehicles   int     `yaml:"max_vehicles"`   // hard cap on concurrent vehicles
	MinPopulation int     `yaml:"min_population"` // ambient spawner keeps at least this many
	SpawnChance   float64 `yaml:"spawn_chance"`   // per-second ambient spawn probability

	MinSpeed     float64 `yaml:"min_speed"`    // units/second
	MaxSpeed     float64 `yaml:"max_speed"`    // units/second
	Acceleration float64 `yaml:"acceleration"` // units/second^2
	Deceleration float64 `yaml:"deceleration"` // units/second^2

	StopOffset  float64 `yaml:"stop_offset"`  // stop line distance before intersection center
	MinGap      float64 `yaml:"min_gap"`      // minimum gap to the vehicle ahead
	ClearOffset float64 `yaml:"clear_offset"` // distance past center before the box is clear
}

// EmergencyConfig groups emergency preemption parameters.
type EmergencyConfig struct {
	DetectionDistance    float64 `yaml:"detection_distance"`     // override when the vehicle is this close
	EscalateAfterSeconds float64 `yaml:"escalate_after_seconds"` // pending requests escalate after this wait
	EmergencySpeed       float64 `yaml:"emergency_speed"`        // target speed for emergency vehicles
}

// AdvisorConfig groups the AI advisor collaborator parameters.
// The advisor runs outside the tick loop and feeds back ordinary commands.
type AdvisorConfig struct {
	UpdateIntervalSeconds float64 `yaml:"update_interval_seconds"` // min simulated time between suggestions
	StaleAfterSeconds     float64 `yaml:"stale_after_seconds"`     // suggestions older than this are discarded
	CongestionRadius      float64 `yaml:"congestion_radius"`       // detection radius for congestion scoring
	NudgeSeconds          float64 `yaml:"nudge_seconds"`           // green time shift per suggestion
}

// Config holds all scenario parameters for one simulation instance.
// The zero value is not usable; start from DefaultConfig or LoadConfig.
type Config struct {
	Seed           int64 `yaml:"seed"`
	TicksPerSecond int64 `yaml:"ticks_per_second"` // fixed logical step rate (default 20, dt=0.05s)

	GridSize            int     `yaml:"grid_size"`            // grid is GridSize x GridSize intersections
	IntersectionSpacing float64 `yaml:"intersection_spacing"` // distance units between adjacent intersections

	QueueCapacity  int `yaml:"queue_capacity"`   // command queue bound
	FeedBufferSize int `yaml:"feed_buffer_size"` // per-subscriber external event feed buffer

	Signals   SignalConfig    `yaml:"signals"`
	Vehicles  VehicleConfig   `yaml:"vehicles"`
	Emergency EmergencyConfig `yaml:"emergency"`
	Advisor   AdvisorConfig   `yaml:"advisor"`
}

// DefaultConfig returns the standard 5x5 demo scenario.
func DefaultConfig() *Config {
	return &Config{
		Seed:                42,
		TicksPerSecond:      20,
		GridSize:            5,
		IntersectionSpacing: 100.0,
		QueueCapacity:       1024,
		FeedBufferSize:      256,
		Signals: SignalConfig{
			MinGreenSeconds: 10.0,
			MaxGreenSeconds: 60.0,
			YellowSeconds:   3.0,
		},
		Vehicles: VehicleConfig{
			MaxVehicles:   50,
			MinPopulation: 20,
			SpawnChance:   0.1,
			MinSpeed:      5.0,
			MaxSpeed:      15.0,
			Acceleration:  10.0,
			Deceleration:  30.0,
			StopOffset:    35.0,
			MinGap:        8.0,
			ClearOffset:   20.0,
		},
		Emergency: EmergencyConfig{
			DetectionDistance:    150.0,
			EscalateAfterSeconds: 30.0,
			EmergencySpeed:       35.0,
		},
		Advisor: AdvisorConfig{
			UpdateIntervalSeconds: 2.0,
			StaleAfterSeconds:     5.0,
			CongestionRadius:      50.0,
			NudgeSeconds:          1.0,
		},
	}
}

// LoadConfig reads a YAML scenario file and overlays it on DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks parameter sanity. Called by NewOrchestrator.
func (c *Config) Validate() error {
	if c.TicksPerSecond <= 0 {
		return fmt.Errorf("ticks_per_second must be > 0, got %d", c.TicksPerSecond)
	}
	if c.GridSize < 1 {
		return fmt.Errorf("grid_size must be >= 1, got %d", c.GridSize)
	}
	if c.IntersectionSpacing <= 0 {
		return fmt.Errorf("intersection_spacing must be > 0, got %v", c.IntersectionSpacing)
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be >= 1, got %d", c.QueueCapacity)
	}
	if c.Signals.MinGreenSeconds <= 0 || c.Signals.MaxGreenSeconds < c.Signals.MinGreenSeconds {
		return fmt.Errorf("signal green bounds invalid: min=%v max=%v",
			c.Signals.MinGreenSeconds, c.Signals.MaxGreenSeconds)
	}
	if c.Signals.YellowSeconds <= 0 {
		return fmt.Errorf("yellow_seconds must be > 0, got %v", c.Signals.YellowSeconds)
	}
	if c.Vehicles.MaxVehicles < 1 {
		return fmt.Errorf("max_vehicles must be >= 1, got %d", c.Vehicles.MaxVehicles)
	}
	if c.Vehicles.StopOffset >= c.IntersectionSpacing {
		return fmt.Errorf("stop_offset %v must be smaller than intersection_spacing %v",
			c.Vehicles.StopOffset, c.IntersectionSpacing)
	}
	return nil
}

// DT returns the fixed simulated duration of one tick, in seconds.
func (c *Config) DT() float64 {
	return 1.0 / float64(c.TicksPerSecond)
}

// SecondsToTicks converts a simulated duration to whole ticks, rounding up
// so that a positive duration never collapses to zero ticks.
func (c *Config) SecondsToTicks(seconds float64) int64 {
	return int64(math.Ceil(seconds * float64(c.TicksPerSecond)))
}
