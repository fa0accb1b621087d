package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"modelsynth/internal/composer"
	"modelsynth/internal/model"
	"modelsynth/internal/perception"
	"modelsynth/internal/run"
	"modelsynth/internal/store"
	"modelsynth/internal/tactile"
	"modelsynth/internal/types"
)

var (
	runAttempts    int
	runConcurrency int
	runOutput      string
	runTemperature float64
	runNoStore     bool
)

// runCmd synthesizes a model's entry point repeatedly
var runCmd = &cobra.Command{
	Use:   "run [model.yaml]",
	Short: "Synthesize the model's entry point and collect test inputs",
	Long: `Runs the configured number of attempts against the model's entry point.

Every attempt regenerates all functions of the model, links them, executes
the program under KLEE and decodes the explored paths. Distinct tuples are
accumulated across attempts and, unless --no-store is given, across runs in
the result database.

Artifacts (prompts, implementations, tests, errors, stats.json) are written
to <output>/<model name>/.`,
	Args: cobra.ExactArgs(1),
	RunE: runSynthesis,
}

func init() {
	runCmd.Flags().IntVarP(&runAttempts, "attempts", "n", 0, "Number of attempts (default from config)")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "Attempts in flight (default from config)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Output directory (default from config)")
	runCmd.Flags().Float64Var(&runTemperature, "temperature", 0, "Fixed temperature; disables the sweep")
	runCmd.Flags().BoolVar(&runNoStore, "no-store", false, "Do not record results in the result database")
}

func runSynthesis(cmd *cobra.Command, args []string) error {
	m, err := model.Load(args[0])
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("attempts") {
		cfg.Run.Attempts = runAttempts
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Run.Concurrency = runConcurrency
	}
	if cmd.Flags().Changed("output") {
		cfg.Run.OutputDir = runOutput
	}
	if cmd.Flags().Changed("temperature") {
		cfg.LLM.Temperature = runTemperature
		cfg.Run.TemperatureSweep = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	gen, err := perception.NewGenerator(ctx, cfg)
	if err != nil {
		return err
	}
	exec, err := tactile.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	exec.SetAuditCallback(func(ev tactile.AuditEvent) {
		logger.Debug("execution step",
			zap.String("stage", string(ev.Stage)),
			zap.String("command", ev.CommandString()),
			zap.Int("exit_code", ev.ExitCode),
			zap.Duration("duration", ev.Duration))
	})

	var results *store.ResultStore
	if !runNoStore {
		results, err = store.NewResultStore(cfg.Run.StorePath)
		if err != nil {
			return err
		}
		defer results.Close()
	}
	return runModel(ctx, cmd.OutOrStdout(), m, modelName(m, args[0]), gen, exec, results)
}

// runModel runs m with the given backends and prints a summary.
func runModel(ctx context.Context, out io.Writer, m *model.Model, name string, gen types.Generator, exec types.Executor, results *store.ResultStore) error {
	dir := filepath.Join(cfg.Run.OutputDir, name)
	logger.Info("Starting run",
		zap.String("model", name),
		zap.Int("attempts", cfg.Run.Attempts),
		zap.String("output", dir))

	start := time.Now()
	report, err := run.Run(ctx, m.Graph, run.Options{
		Generator:    gen,
		Executor:     exec,
		Attempts:     cfg.Run.Attempts,
		Temperature:  cfg.LLM.Temperature,
		Sweep:        cfg.Run.TemperatureSweep,
		Concurrency:  cfg.Run.Concurrency,
		RateLimit:    rate.Limit(cfg.Run.RateLimit),
		RetryBackoff: cfg.GetRetryBackoff(),
		Timeout:      cfg.GetExecutionTimeout(),
		Filters:      m.Filters,
		Constants:    m.Constants,
		Locator:      composer.LocatorFor(cfg.Composer.Locator),
		Artifacts:    store.NewOSArtifacts(dir),
		Results:      results,
	})
	if report != nil {
		printReport(out, report, dir, time.Since(start))
	}
	return err
}

func printReport(out io.Writer, r *run.Report, dir string, elapsed time.Duration) {
	fmt.Fprintf(out, "Run %s: %s\n", r.RunID, r.Function)
	fmt.Fprintf(out, "%-8s %-6s %6s %6s %6s  %s\n", "attempt", "temp", "raw", "unique", "added", "status")
	for _, st := range r.Attempts {
		status := "ok"
		switch {
		case st.TimedOut:
			status = "timeout"
		case st.Error != "":
			status = firstLine(st.Error)
		}
		fmt.Fprintf(out, "%-8d %-6g %6d %6d %6d  %s\n", st.Attempt, st.Temperature, st.RawTests, st.UniqueTests, st.UniqueAdded, status)
	}
	fmt.Fprintf(out, "\n%d unique inputs from %d attempts (%d failed) in %s\n",
		len(r.Unique), len(r.Attempts), r.Failed, elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "Artifacts: %s\n", dir)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// modelName is the model's declared name, or the file name without its
// extension.
func modelName(m *model.Model, path string) string {
	if m.Name != "" {
		return m.Name
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
