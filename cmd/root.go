package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sim "github.com/gridlock-sim/gridlock-sim/sim"
)

var (
	// CLI flags shared by the subcommands
	scenarioPath string  // YAML scenario overlay on the default config
	seed         int64   // Master seed for all randomness streams
	ticks        int64   // Total simulation horizon (in ticks)
	gridSize     int     // Grid dimension (gridSize x gridSize intersections)
	logLevel     string  // Log verbosity level
	recordPath   string  // Where to write the command log (empty = no recording)
	aiEnabled    bool    // Start with the AI timing advisor active
	paced        bool    // Pace ticks against wall-clock time
	logFilePath  string  // Command log to replay
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "gridlock",
	Short: "Deterministic tick-driven traffic network simulator",
}

// loadScenario builds the effective config from the scenario file plus
// explicit flag overrides.
func loadScenario(cmd *cobra.Command) *sim.Config {
	cfg := sim.DefaultConfig()
	if scenarioPath != "" {
		loaded, err := sim.LoadConfig(scenarioPath)
		if err != nil {
			logrus.Fatalf("Invalid scenario %s: %v", scenarioPath, err)
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = seed
	}
	if cmd.Flags().Changed("grid-size") {
		cfg.GridSize = gridSize
	}
	return cfg
}

// runCmd executes the simulation using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the traffic simulation",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		cfg := loadScenario(cmd)

		o, err := sim.NewOrchestrator(cfg)
		if err != nil {
			logrus.Fatalf("Could not start simulation: %v", err)
		}

		journal := &sim.CommandLog{}
		if recordPath != "" {
			o.AttachJournal(journal)
		}
		if aiEnabled {
			if err := o.Submit(&sim.ToggleAI{Enabled: true}); err != nil {
				logrus.Fatalf("Could not enable advisor: %v", err)
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if aiEnabled {
			advisor := sim.NewAdvisor(o)
			go advisor.Run(ctx)
		}

		logrus.Infof("Starting simulation: seed=%d grid=%dx%d horizon=%d ticks",
			cfg.Seed, cfg.GridSize, cfg.GridSize, ticks)
		startTime := time.Now()

		if paced {
			err = o.RunPaced(ctx, ticks)
		} else {
			err = o.RunTicks(ctx, ticks)
		}
		if err != nil && ctx.Err() == nil {
			logrus.Fatalf("Simulation halted: %v", err)
		}

		snap := o.Latest()
		if snap == nil {
			logrus.Warn("Interrupted before the first tick completed")
			return
		}
		logrus.Infof("Simulation complete in %v: tick=%d state=%016x",
			time.Since(startTime), snap.TickID, snap.Hash())
		o.Metrics().Print(snap.TickID, o.DroppedFeedEvents())

		if recordPath != "" {
			if err := journal.Save(recordPath); err != nil {
				logrus.Fatalf("Could not save command log: %v", err)
			}
			logrus.Infof("Command log written to %s", recordPath)
		}
	},
}

// replayCmd re-runs a recorded command log and prints the final state hash,
// so two replays of the same log can be compared bit for bit.
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded command log deterministically",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		if logFilePath == "" {
			logrus.Fatalf("No command log provided. Use --log-file.")
		}
		log, err := sim.LoadCommandLog(logFilePath)
		if err != nil {
			logrus.Fatalf("Could not load command log: %v", err)
		}

		cfg := loadScenario(cmd)

		o, err := sim.Replay(context.Background(), cfg, log, ticks)
		if err != nil {
			logrus.Fatalf("Replay failed: %v", err)
		}

		snap := o.Latest()
		if snap == nil {
			logrus.Warn("Replay executed zero ticks")
			return
		}
		logrus.Infof("Replay complete: tick=%d state=%016x", snap.TickID, snap.Hash())
		o.Metrics().Print(snap.TickID, o.DroppedFeedEvents())
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVar(&scenarioPath, "scenario", "", "YAML scenario file overlaying the default config")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Master seed for all randomness streams")
	runCmd.Flags().Int64Var(&ticks, "ticks", 12000, "Total simulation horizon (in ticks)")
	runCmd.Flags().IntVar(&gridSize, "grid-size", 5, "Grid dimension (NxN intersections)")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().StringVar(&recordPath, "record", "", "Write the command log to this file for later replay")
	runCmd.Flags().BoolVar(&aiEnabled, "ai", false, "Enable the AI signal timing advisor")
	runCmd.Flags().BoolVar(&paced, "paced", false, "Pace ticks against wall-clock time instead of running flat out")

	replayCmd.Flags().StringVar(&scenarioPath, "scenario", "", "YAML scenario file overlaying the default config")
	replayCmd.Flags().Int64Var(&seed, "seed", 42, "Master seed for all randomness streams")
	replayCmd.Flags().Int64Var(&ticks, "ticks", 12000, "Total simulation horizon (in ticks)")
	replayCmd.Flags().IntVar(&gridSize, "grid-size", 5, "Grid dimension (NxN intersections)")
	replayCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	replayCmd.Flags().StringVar(&logFilePath, "log-file", "", "Command log file recorded with run --record")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
}
