package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"skeptic/internal/artifact"
	"skeptic/internal/brief"
	"skeptic/internal/ingest"
	"skeptic/internal/pipeline"
	"skeptic/internal/store"
)

// statusCmd shows the phase table
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of every phase",
	Args:  cobra.NoArgs,
	RunE:  showStatus,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the assembled risk brief as markdown",
	Args:  cobra.NoArgs,
	RunE:  runShow,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent phase runs from the run ledger",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Extract text from a document and print statistics and a preview",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Report artifact files as they are written or removed",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func showStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	s, err := openSession(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	st := s.runner.State()
	fmt.Println(titleStyle.Render("skeptic session status"))
	fmt.Println(mutedStyle.Render("Workspace: " + s.ws))
	mode := "full"
	if s.cfg.Models.TestMode {
		mode = "test"
	}
	fmt.Println(mutedStyle.Render(fmt.Sprintf("Models: %d (%s mode), high-reasoning %s",
		len(s.cfg.GenerationModels()), mode, s.cfg.Models.HighReasoning)))
	if s.cfg.Gateway.APIKey != "" {
		fmt.Println("✓ OpenRouter API key configured")
	} else {
		fmt.Println("✗ OpenRouter API key not configured")
	}
	fmt.Println()

	rows := [][]string{{"#", "Phase", "Status", "Artifact", "Detail"}}
	for _, p := range pipeline.AllPhases {
		status := st.Status(p)
		rows = append(rows, []string{
			strconv.Itoa(int(p)),
			p.String(),
			statusStyle(status).Render(string(status)),
			string(p.Key()),
			phaseDetail(st, p),
		})
	}
	fmt.Println(renderTable(rows))

	if st.Risks != nil && len(st.Risks.Risks) > 0 {
		fmt.Println()
		risks := [][]string{{"Q", "Score", "Tier", "Category"}}
		for _, r := range st.Risks.Risks {
			risks = append(risks, []string{
				strconv.Itoa(r.QuestionNumber),
				strconv.Itoa(r.RiskScore),
				tierStyle(r.RiskTier).Render(string(r.RiskTier)),
				r.RiskCategory,
			})
		}
		fmt.Println(renderTable(risks))
	}
	return nil
}

func phaseDetail(st pipeline.State, p pipeline.Phase) string {
	switch p {
	case pipeline.PhaseInput:
		if in := st.Input; in != nil {
			return fmt.Sprintf("%d/%d/%d chars", len(in.MarketNarrative), len(in.PitchDeckText), len(in.MarketReportText))
		}
	case pipeline.PhaseGenerate:
		if st.Questions != nil {
			return fmt.Sprintf("%d models", len(st.Questions))
		}
	case pipeline.PhaseConsolidate:
		if st.Consolidated != nil {
			n := 0
			for _, q := range st.Consolidated {
				if q.IsPlaceholder() {
					n++
				}
			}
			return fmt.Sprintf("%d questions, %d placeholders", len(st.Consolidated), n)
		}
	case pipeline.PhaseRisk:
		if st.Risks != nil {
			s := st.Risks.SummaryStats
			return fmt.Sprintf("high %d, medium %d, low %d", s.HighRisks, s.MediumRisks, s.LowRisks)
		}
	case pipeline.PhaseDerisk:
		if st.Derisked != nil {
			n := 0
			for _, r := range st.Derisked {
				if r.DeRiskingPlan != nil && r.DeRiskingPlan.Status == artifact.PlanGenerated {
					n++
				}
			}
			return fmt.Sprintf("%d plans", n)
		}
	case pipeline.PhaseReflect:
		if r := st.Reflection; r != nil {
			return fmt.Sprintf("%d/%d/%d points", len(r.ILike), len(r.IWish), len(r.IWonder))
		}
	}
	return ""
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	s, err := openSession(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	st := s.runner.State()
	src := brief.Sources{
		Input:        st.Input,
		Consolidated: st.Consolidated,
		Derisked:     st.Derisked,
		Reflection:   st.Reflection,
	}
	if st.Risks != nil {
		src.Risks = st.Risks.Risks
	}
	if src.Consolidated == nil && src.Risks == nil {
		fmt.Println("Nothing to show yet. Run 'skeptic run' first.")
		return nil
	}
	md := brief.Markdown(brief.Assemble(src, time.Now()))

	render, _ := cmd.Flags().GetBool("render")
	if !render {
		fmt.Print(md)
		return nil
	}
	style, _ := cmd.Flags().GetString("style")
	width, _ := cmd.Flags().GetInt("width")
	out, err := brief.Render(md, style, width)
	if err != nil {
		logger.Warn("Markdown rendering failed, printing raw", zap.Error(err))
		fmt.Print(md)
		return nil
	}
	fmt.Print(out)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	s, err := openSession(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	if s.ledger == nil {
		fmt.Println("Run ledger is disabled.")
		return nil
	}
	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := s.ledger.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	rows := [][]string{{"Started", "Phase", "Status", "Calls", "Duration", "Detail"}}
	for _, r := range runs {
		dur := "-"
		if !r.FinishedAt.IsZero() {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		rows = append(rows, []string{
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d %s", r.Phase, pipeline.Phase(r.Phase)),
			statusStyle(pipeline.Status(r.Status)).Render(r.Status),
			strconv.Itoa(r.Calls),
			dur,
			artifact.Snippet(r.Detail, 60),
		})
	}
	fmt.Println(renderTable(rows))
	return nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	path := args[0]
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}
	text := ingest.NewFileExtractor().Extract(ctx, path)
	if text == "" {
		fmt.Printf("No text extracted from %s.\n", path)
		return nil
	}

	n, _ := cmd.Flags().GetInt("preview")
	stats := ingest.Measure(text)
	fmt.Printf("File:  %s\n", path)
	fmt.Printf("Words: %d\n", stats.Words)
	fmt.Printf("Lines: %d\n", stats.Lines)
	fmt.Printf("Chars: %d\n", stats.Chars)
	fmt.Println()
	fmt.Println(ingest.Preview(text, n))
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	s, err := openSession(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Printf("Watching %s (Ctrl-C to stop)\n", s.store.Dir())
	return s.store.Watch(ctx, func(ev store.Event) {
		fmt.Printf("%s  %-8s %s\n", time.Now().Format("15:04:05"), ev.Op, ev.Key)
	})
}
