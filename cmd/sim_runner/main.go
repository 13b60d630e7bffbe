package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/miretskiy/rrsched/recorder"
	"github.com/miretskiy/rrsched/report"
	"github.com/miretskiy/rrsched/simulator"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sim_runner",
		Short: "Run a round-robin CPU scheduling simulation to completion.",
		Long: `sim_runner loads a process set and scheduling parameters, runs the ` +
			`round-robin scheduler with priority aging until every process ` +
			`completes, and prints the trace and schedule. Without --config the ` +
			`built-in three-process workload is used.`,
		SilenceUsage: true,
		RunE:         run,
	}

	flags := cmd.Flags()
	flags.String("config", "", "Path to JSON or YAML configuration file")
	flags.String("output", "", "Path to output file (prints to stdout if not specified)")
	flags.String("format", "text", "Output format: text or json")
	flags.String("record", "", "Record the trace into this SQLite database (.sqlite3 is appended)")
	flags.Bool("verbose", false, "Enable verbose logging from simulator")
	flags.Int("time-slice", 0, "Override the time slice")
	flags.Int("cst-penalty", 0, "Override the context switch penalty")
	flags.Int("aging-threshold", 0, "Override the aging threshold")
	flags.String("dispatch", "", "Override the dispatch policy: fifo or priority")
	flags.Int("max-ticks", 0, "Abort after this many ticks (0 = unlimited)")
	flags.Int("generate", 0, "Replace the process set with N randomly generated processes")
	flags.Int64("seed", 0, "Seed for --generate (0 = random)")
	flags.String("burst-dist", "uniform", "Burst time distribution for --generate: uniform, exponential, geometric or fixed")
	flags.Int("max-burst", 20, "Largest burst time for --generate")
	flags.Float64("io-fraction", 0.2, "Share of generated processes that start on the I/O queue")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

func run(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()

	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	format, _ := flags.GetString("format")
	if format != "text" && format != "json" {
		return fmt.Errorf("unknown output format %q (want text or json)", format)
	}

	sim, err := simulator.NewSimulator(config)
	if err != nil {
		return fmt.Errorf("error creating simulator: %w", err)
	}

	if verbose, _ := flags.GetBool("verbose"); verbose {
		sim.LogEvent = func(msg string) {
			fmt.Fprintf(os.Stderr, "[SIM] %s\n", msg)
		}
		fmt.Fprintf(os.Stderr, "Verbose logging enabled\n")
	}

	var rec *recorder.SQLiteRecorder
	runID := ""
	if path, _ := flags.GetString("record"); path != "" {
		rec = recorder.NewSQLiteRecorder(path)
		if err := rec.Init(); err != nil {
			return fmt.Errorf("error opening trace database: %w", err)
		}
		defer rec.Close()

		if runID, err = rec.StartRun(config); err != nil {
			return err
		}
		sim.AddSink(rec)
		fmt.Fprintf(os.Stderr, "Recording run %s to %s\n", runID, rec.Filename())
	}

	fmt.Fprintf(os.Stderr, "Starting simulation of %d processes (slice=%d, cst=%d, aging=%d, dispatch=%s)...\n",
		len(config.Processes), config.TimeSlice, config.CSTPenalty, config.AgingThreshold, config.DispatchPolicy)
	startTime := time.Now()

	finalClock, err := sim.Run()
	if err != nil {
		return fmt.Errorf("simulation failed at t=%d: %w", finalClock, err)
	}

	elapsed := time.Since(startTime)
	fmt.Fprintf(os.Stderr, "Simulation completed in %v (final clock %d, %d ticks)\n", elapsed, finalClock, sim.Ticks())

	if rec != nil {
		if err := rec.Flush(); err != nil {
			return fmt.Errorf("error writing trace: %w", err)
		}
		if err := rec.Err(); err != nil {
			return fmt.Errorf("error writing trace: %w", err)
		}
	}

	out := io.Writer(os.Stdout)
	outputFile, _ := flags.GetString("output")
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("error creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	result := sim.Result()
	if format == "json" {
		results := map[string]interface{}{
			"config":     config,
			"finalClock": result.FinalClock,
			"ticks":      result.Ticks,
			"realTime":   elapsed.Seconds(),
			"trace":      result.Trace,
			"processes":  result.Processes,
			"metrics":    result.Metrics,
			"state":      sim.State(),
		}
		if runID != "" {
			results["runId"] = runID
		}

		output, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("error marshaling results: %w", err)
		}
		if _, err := fmt.Fprintln(out, string(output)); err != nil {
			return err
		}
	} else if err := report.WriteAll(out, "Round-robin with priority aging", result); err != nil {
		return err
	}

	if outputFile != "" {
		fmt.Fprintf(os.Stderr, "Results written to %s\n", outputFile)
	}
	return nil
}

// loadConfig reads --config (or the built-in workload) and applies flag overrides
func loadConfig(cmd *cobra.Command) (simulator.SimConfig, error) {
	flags := cmd.Flags()

	config := simulator.DefaultConfig()
	if path, _ := flags.GetString("config"); path != "" {
		loaded, err := simulator.LoadConfig(path)
		if err != nil {
			return config, fmt.Errorf("error loading config: %w", err)
		}
		config = loaded
	}

	if flags.Changed("generate") {
		w := simulator.DefaultWorkloadConfig()
		w.Count, _ = flags.GetInt("generate")
		w.RandomSeed, _ = flags.GetInt64("seed")
		w.MaxBurst, _ = flags.GetInt("max-burst")
		w.IOFraction, _ = flags.GetFloat64("io-fraction")
		name, _ := flags.GetString("burst-dist")
		dist, err := simulator.ParseDistributionType(name)
		if err != nil {
			return config, err
		}
		w.BurstDist = dist

		generated, err := simulator.GenerateProcesses(w)
		if err != nil {
			return config, fmt.Errorf("error generating workload: %w", err)
		}
		config.Processes = generated
		config.Workload = &w
	}

	if flags.Changed("time-slice") {
		config.TimeSlice, _ = flags.GetInt("time-slice")
	}
	if flags.Changed("cst-penalty") {
		config.CSTPenalty, _ = flags.GetInt("cst-penalty")
	}
	if flags.Changed("aging-threshold") {
		config.AgingThreshold, _ = flags.GetInt("aging-threshold")
	}
	if flags.Changed("max-ticks") {
		config.MaxTicks, _ = flags.GetInt("max-ticks")
	}
	if flags.Changed("dispatch") {
		name, _ := flags.GetString("dispatch")
		policy, err := simulator.ParseDispatchPolicy(name)
		if err != nil {
			return config, err
		}
		config.DispatchPolicy = policy
	}

	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
