// Command synth generates test inputs for model functions. A language model
// writes each function in C and KLEE explores the result.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"modelsynth/internal/config"
	"modelsynth/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "synth",
	Short: "Model-based test input synthesis with LLMs and KLEE",
	Long: `synth turns a model of a protocol function into concrete test inputs.

A language model implements the function in C from its signature and
documentation, a harness makes the inputs symbolic, and KLEE enumerates
the paths. Each path becomes one input/output tuple.

Model files are YAML; see "synth graph" to check one before running.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := logging.Initialize(filepath.Join(cfg.Run.OutputDir, "logs"), cfg.Logging.ToSettings()); err != nil {
			return err
		}
		if verbose {
			logging.UseCore(logger.Core())
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "synth.yaml", "Configuration file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(promptCmd)
	rootCmd.AddCommand(harnessCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(regexCmd)
	rootCmd.AddCommand(decodeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
