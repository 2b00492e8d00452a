package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible simulation run.
// Two simulations with the same SimulationKey and identical configuration
// MUST produce bit-for-bit identical snapshot sequences.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// === Stream Constants ===

const (
	// StreamTopology seeds the initial grid signal randomization.
	StreamTopology = "topology"

	// StreamSeedTraffic seeds the initial vehicle population.
	StreamSeedTraffic = "seed_traffic"

	// StreamSpawn seeds ambient vehicle spawning. The per-tick stream name
	// is produced by StreamSpawnAt so that every tick draws from its own
	// deterministic sequence regardless of how many draws earlier ticks made.
	StreamSpawn = "spawn"
)

// StreamSpawnAt returns the spawn stream name for a given tick.
func StreamSpawnAt(tick int64) string {
	return fmt.Sprintf("%s_%d", StreamSpawn, tick)
}

// === TickRNG ===

// TickRNG derives deterministic, isolated RNG instances per named stream.
//
// Derivation formula: streamSeed = masterSeed XOR fnv1a64(streamName).
// The per-tick spawn streams make tick randomness a pure function of
// (seed, tick_id), which is what makes command-log replay bit-identical.
//
// Thread-safety: NOT thread-safe. Only the orchestrator goroutine may call it.
type TickRNG struct {
	key SimulationKey
}

// NewTickRNG creates a TickRNG from a SimulationKey.
func NewTickRNG(key SimulationKey) *TickRNG {
	return &TickRNG{key: key}
}

// ForStream returns a freshly seeded RNG for the named stream.
// The same (key, name) pair always yields the same sequence.
func (t *TickRNG) ForStream(name string) *rand.Rand {
	return rand.New(rand.NewSource(int64(t.key) ^ fnv1a64(name)))
}

// ForTick returns the ambient-spawn RNG for the given tick.
func (t *TickRNG) ForTick(tick int64) *rand.Rand {
	return t.ForStream(StreamSpawnAt(tick))
}

// Key returns the SimulationKey used to create this TickRNG.
func (t *TickRNG) Key() SimulationKey {
	return t.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
