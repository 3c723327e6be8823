package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"skeptic/internal/pipeline"
)

// runCmd resumes the pipeline
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every missing phase up to --to",
	Long: `Runs the phases that have no artifact yet, in order, stopping after
phase --to. Completed phases are skipped. A phase that cannot produce an
artifact stops the run; phases whose model calls partly failed still
complete with labelled placeholders.`,
	Args: cobra.NoArgs,
	RunE: runPipeline,
}

// phaseCmd runs a single phase
var phaseCmd = &cobra.Command{
	Use:   "phase [N]",
	Short: "Run one phase (1-6 or name), resetting it and every later phase",
	Args:  cobra.ExactArgs(1),
	RunE:  runSinglePhase,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset a phase and every later phase",
	Long: `Deletes the artifacts of phase --from and all later phases. Earlier
artifacts are kept.

Example:
  skeptic reset --from 4   # keeps input, questions and consolidation`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

var regenerateCmd = &cobra.Command{
	Use:   "regenerate",
	Short: "Regenerate Phase 2 questions for one model",
	Long: `Calls one model again, writes a complete new question set with its
fresh questions, and resets phases 3-6.`,
	Args: cobra.NoArgs,
	RunE: runRegenerate,
}

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Show or edit the venture context",
}

var contextSetCmd = &cobra.Command{
	Use:   "set [text]",
	Short: "Replace the venture context (later phases are kept)",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runContextSet,
}

var contextShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the venture context",
	Args:  cobra.NoArgs,
	RunE:  runContextShow,
}

func runPipeline(cmd *cobra.Command, args []string) error {
	to, _ := cmd.Flags().GetInt("to")
	through := pipeline.Phase(to)
	if !through.Valid() {
		return fmt.Errorf("--to must be between 1 and 6, got %d", to)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()
	s, err := openSession(ctx, cmd, through > pipeline.PhaseInput)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := applyContextFlag(cmd, s); err != nil {
		return err
	}
	logger.Info("Running pipeline", zap.Int("through", to))
	results, err := s.runner.Resume(ctx, through)
	printResults(results)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Printf("Nothing to do: phases 1-%d are complete.\n", to)
	}
	return nil
}

func runSinglePhase(cmd *cobra.Command, args []string) error {
	p, err := pipeline.ParsePhase(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()
	s, err := openSession(ctx, cmd, p != pipeline.PhaseInput)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := applyContextFlag(cmd, s); err != nil {
		return err
	}
	res, err := s.runner.RunPhase(ctx, p)
	if err != nil {
		return err
	}
	printResults([]pipeline.Result{res})
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	from, _ := cmd.Flags().GetString("from")
	p, err := pipeline.ParsePhase(from)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()
	s, err := openSession(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.runner.Reset(p); err != nil {
		return err
	}
	fmt.Printf("Reset phases %d-6. Phases before %d are unchanged.\n", int(p), int(p))
	return nil
}

func runRegenerate(cmd *cobra.Command, args []string) error {
	model, _ := cmd.Flags().GetString("model")

	ctx, cancel := commandContext(cmd)
	defer cancel()
	s, err := openSession(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.runner.RegenerateModel(ctx, model)
	if err != nil {
		return err
	}
	printResults([]pipeline.Result{res})
	fmt.Println("Phases 3-6 were reset.")
	return nil
}

func runContextSet(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	s, err := openSession(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	text := strings.Join(args, " ")
	if s.runner.State().Input == nil {
		return fmt.Errorf("no extracted input yet: pass --context to 'skeptic run' or 'skeptic phase 1'")
	}
	if err := s.runner.SetContext(text); err != nil {
		return err
	}
	fmt.Println("Context updated. Existing artifacts were kept; reset phases to apply it.")
	return nil
}

func runContextShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	s, err := openSession(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	in := s.runner.State().Input
	if in == nil {
		fmt.Println("No extracted input yet.")
		return nil
	}
	if in.Context == "" {
		fmt.Println("(empty context)")
		return nil
	}
	fmt.Println(in.Context)
	return nil
}

// applyContextFlag sets the venture context from --context when given.
func applyContextFlag(cmd *cobra.Command, s *session) error {
	if !cmd.Flags().Changed("context") {
		return nil
	}
	text, _ := cmd.Flags().GetString("context")
	return s.runner.SetContext(text)
}

func printResults(results []pipeline.Result) {
	for _, r := range results {
		line := fmt.Sprintf("%s phase %d %-12s %-11s %s", resultMark(r.Kind), int(r.Phase), r.Phase, r.Kind, r.Duration.Round(time.Millisecond))
		if r.Reason != "" {
			line += "  " + r.Reason
		}
		fmt.Println(line)
	}
}

func resultMark(k pipeline.OutcomeKind) string {
	switch k {
	case pipeline.KindOk:
		return "✓"
	case pipeline.KindPlaceholder:
		return "!"
	default:
		return "✗"
	}
}
