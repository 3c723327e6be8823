package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string
	timeout    time.Duration
	testMode   bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "skeptic",
	Short: "skeptic - adversarial market risk analysis for venture documents",
	Long: `skeptic reads a venture's market narrative, pitch deck and market report,
then runs a six-phase analysis:

  1. input        extract text from the source documents
  2. generate     ask several models for Point of Maximum Skepticism questions
  3. consolidate  reduce them to the five most critical questions
  4. risk         score each question by probability and impact
  5. derisk       propose research/test/act strategies for the top risks
  6. reflect      write an I Like / I Wish / I Wonder reflection

Every phase writes one JSON artifact under .skeptic/artifacts, so a session
can be resumed, inspected or reset at phase granularity.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		config.Encoding = "console"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <workspace>/.skeptic/config.yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Overall operation timeout")
	rootCmd.PersistentFlags().BoolVar(&testMode, "test-mode", false, "Use the reduced model list (overrides config)")

	runCmd.Flags().Int("to", 6, "Last phase to run (1-6)")
	runCmd.Flags().String("context", "", "Venture context used by every phase")
	phaseCmd.Flags().String("context", "", "Venture context used by every phase")
	resetCmd.Flags().String("from", "", "First phase to reset (1-6 or name)")
	_ = resetCmd.MarkFlagRequired("from")
	regenerateCmd.Flags().String("model", "", "Model whose questions are regenerated")
	_ = regenerateCmd.MarkFlagRequired("model")
	showCmd.Flags().Bool("render", false, "Render markdown for the terminal")
	showCmd.Flags().String("style", "auto", "Render style: auto, dark, light, notty")
	showCmd.Flags().Int("width", 100, "Render word-wrap width")
	historyCmd.Flags().Int("limit", 20, "Number of runs to list")
	extractCmd.Flags().Int("preview", 500, "Preview length in characters")

	contextCmd.AddCommand(contextSetCmd, contextShowCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(phaseCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(regenerateCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
