// Package sim provides the core tick-driven simulation engine for Gridlock.
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - state.go: Mutable world state (grid, signals, vehicles) owned by the orchestrator
//   - command.go: The command vocabulary through which all mutation is requested
//   - orchestrator.go: The tick loop and its fixed processing order
//
// # Architecture
//
// The engine is single-writer. External goroutines never touch SimulationState;
// they submit Commands through a bounded CommandQueue and read immutable
// Snapshots published after each tick:
//   - queue.go: Bounded FIFO command queue with validate-before-enqueue
//   - snapshot.go: Deep-copied point-in-time views, swapped atomically
//   - bus.go: Synchronous in-process subscribers plus non-blocking external feeds
//
// Domain behavior lives alongside the kernel:
//   - signal.go: Per-intersection phase state machine (normal, emergency, manual)
//   - vehicle.go: Kinematics, stop-line braking, car-following gaps
//   - emergency.go: Priority manager arbitrating competing preemption requests
//   - advisor.go: Out-of-tick AI timing advisor reading snapshots
//   - journal.go: Command log recording and deterministic replay
//
// # Determinism
//
// A run is fully determined by (Config, command log). All randomness flows
// through named streams derived from the master seed (rng.go), map iteration
// is always over sorted keys, and no wall-clock time enters domain logic;
// RunPaced only throttles tick frequency.
package sim
