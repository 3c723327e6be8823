package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeOpenRouter answers chat completions by recognising each phase's prompt.
func fakeOpenRouter(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" || r.Header.Get("Authorization") != "Bearer test-key" {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		prompt := req.Messages[len(req.Messages)-1].Content

		var content string
		switch {
		case strings.Contains(prompt, "i_like_reflection"):
			content = `{"i_like_reflection": ["Can the utility pilots scale?"], "i_wish_reflection": ["w"], "i_wonder_reflection": ["x"]}`
		case strings.Contains(prompt, "de_risking_plan"):
			content = `{"de_risking_plan": {"research_strategies": [{"action_title": "Interview buyers", "description": "d", "mitigation_effect": "m", "effort_level": "Low"}], "test_strategies": [], "act_strategies": []}}`
		case strings.Contains(prompt, "risk_assessments"):
			var items []string
			pairs := [][2]int{{4, 5}, {3, 3}, {2, 3}, {1, 2}, {5, 4}}
			for i, p := range pairs {
				items = append(items, fmt.Sprintf(`{"question_number": %d, "risk_category": "Competitive Landscape Risk", "probability": %d, "impact": %d, "justification": "j"}`, i+1, p[0], p[1]))
			}
			content = "```json\n{\"risk_assessments\": [" + strings.Join(items, ",") + "]}\n```"
		case strings.Contains(prompt, "final_questions"):
			var items []string
			for i := 1; i <= 5; i++ {
				items = append(items, fmt.Sprintf(`{"question_number": %d, "question_text": "Critical question %d?", "reasoning": "r"}`, i, i))
			}
			content = `{"final_questions": [` + strings.Join(items, ",") + `]}`
		default:
			var sb strings.Builder
			for i := 1; i <= 10; i++ {
				fmt.Fprintf(&sb, "%s asks %d?\n", req.Model, i)
			}
			content = sb.String()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "gen-1",
			"model":   req.Model,
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
		})
	}))
}

// setupWorkspace writes source documents and a config pointing at baseURL.
func setupWorkspace(t *testing.T, baseURL string) string {
	t.Helper()
	ws := t.TempDir()
	for name, body := range map[string]string{
		"narrative.txt": "We sell grid batteries to municipal utilities.",
		"deck.txt":      "Pitch deck: 40% margins.",
		"report.txt":    "Market report: storage demand grows 20% a year.",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(ws, name), []byte(body), 0644))
	}
	cfg := fmt.Sprintf(`gateway:
  base_url: %s
  api_key: test-key
models:
  test_mode: true
  test: [a/model, b/model]
  high_reasoning: judge/model
pipeline:
  call_delay: 0s
  derisk_min_score: 15
  derisk_max_risks: 3
inputs:
  narrative: narrative.txt
  pitch_deck: deck.txt
  market_report: report.txt
logging:
  level: debug
`, baseURL)
	require.NoError(t, os.MkdirAll(filepath.Join(ws, ".skeptic"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(ws, ".skeptic", "config.yaml"), []byte(cfg), 0644))

	logger = zap.NewNop()
	workspace = ws
	configPath = ""
	t.Setenv("OPENROUTER_API_KEY", "test-key")
	t.Cleanup(func() { workspace = "" })
	return ws
}

func artifactPath(ws, name string) string {
	return filepath.Join(ws, ".skeptic", "artifacts", name)
}

func TestRunShowStatusHistory(t *testing.T) {
	srv := fakeOpenRouter(t)
	defer srv.Close()
	ws := setupWorkspace(t, srv.URL)

	require.NoError(t, runCmd.Flags().Set("context", "Series A grid storage"))
	t.Cleanup(func() { _ = runCmd.Flags().Set("context", ""); runCmd.Flags().Lookup("context").Changed = false })

	out := captureOutput(t, func() {
		require.NoError(t, runPipeline(runCmd, nil))
	})
	for i := 1; i <= 6; i++ {
		assert.Contains(t, out, fmt.Sprintf("phase %d", i))
	}
	for _, name := range []string{"extracted_data.json", "pms_questions.json", "final_questions.json",
		"risk_assessment.json", "detailed_risk_report_with_strategies.json", "strategic_reflection.json"} {
		assert.FileExists(t, artifactPath(ws, name))
	}

	data, err := os.ReadFile(artifactPath(ws, "risk_assessment.json"))
	require.NoError(t, err)
	var risks []map[string]any
	require.NoError(t, json.Unmarshal(data, &risks))
	require.Len(t, risks, 5)
	assert.EqualValues(t, 20, risks[0]["risk_score"])
	assert.Equal(t, "High", risks[0]["risk_tier"])
	assert.Equal(t, "Critical question 1?", risks[0]["question_text"])

	out = captureOutput(t, func() {
		require.NoError(t, showStatus(statusCmd, nil))
	})
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "high 2, medium 1, low 2")

	out = captureOutput(t, func() {
		require.NoError(t, runShow(showCmd, nil))
	})
	assert.Contains(t, out, "**Context:** Series A grid storage")
	assert.Contains(t, out, "### 1. Critical question 1?")
	assert.Contains(t, out, "Interview buyers")
	assert.Contains(t, out, "Can the utility pilots scale?")

	out = captureOutput(t, func() {
		require.NoError(t, runHistory(historyCmd, nil))
	})
	assert.Contains(t, out, "reflect")
	assert.Contains(t, out, "complete")

	// Nothing left to run.
	out = captureOutput(t, func() {
		require.NoError(t, runPipeline(runCmd, nil))
	})
	assert.Contains(t, out, "Nothing to do")
}

func TestRunInputOnlyNeedsNoKey(t *testing.T) {
	ws := setupWorkspace(t, "http://127.0.0.1:0")
	cfgPath := filepath.Join(ws, ".skeptic", "config.yaml")
	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfgPath, []byte(strings.Replace(string(data), "  api_key: test-key\n", "", 1)), 0644))
	t.Setenv("OPENROUTER_API_KEY", "")

	require.NoError(t, runCmd.Flags().Set("to", "1"))
	t.Cleanup(func() { _ = runCmd.Flags().Set("to", "6") })
	captureOutput(t, func() {
		require.NoError(t, runPipeline(runCmd, nil))
	})
	assert.FileExists(t, artifactPath(ws, "extracted_data.json"))

	require.NoError(t, runCmd.Flags().Set("to", "2"))
	err = runPipeline(runCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENROUTER_API_KEY")
	assert.NoFileExists(t, artifactPath(ws, "pms_questions.json"))
}

func TestResetCommandCascades(t *testing.T) {
	srv := fakeOpenRouter(t)
	defer srv.Close()
	ws := setupWorkspace(t, srv.URL)

	captureOutput(t, func() {
		require.NoError(t, runPipeline(runCmd, nil))
	})

	require.NoError(t, resetCmd.Flags().Set("from", "risk"))
	t.Cleanup(func() { _ = resetCmd.Flags().Set("from", "") })
	captureOutput(t, func() {
		require.NoError(t, runReset(resetCmd, nil))
	})

	assert.FileExists(t, artifactPath(ws, "extracted_data.json"))
	assert.FileExists(t, artifactPath(ws, "final_questions.json"))
	assert.NoFileExists(t, artifactPath(ws, "risk_assessment.json"))
	assert.NoFileExists(t, artifactPath(ws, "detailed_risk_report_with_strategies.json"))
	assert.NoFileExists(t, artifactPath(ws, "strategic_reflection.json"))
}

func TestPhaseCommandPrecondition(t *testing.T) {
	srv := fakeOpenRouter(t)
	defer srv.Close()
	setupWorkspace(t, srv.URL)

	err := runSinglePhase(phaseCmd, []string{"4"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream artifact missing")
}

func TestContextSetRequiresInput(t *testing.T) {
	setupWorkspace(t, "http://127.0.0.1:0")
	err := runContextSet(contextSetCmd, []string{"new", "context"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no extracted input")
}

func TestContextSetKeepsDownstream(t *testing.T) {
	srv := fakeOpenRouter(t)
	defer srv.Close()
	ws := setupWorkspace(t, srv.URL)

	captureOutput(t, func() {
		require.NoError(t, runSinglePhase(phaseCmd, []string{"1"}))
		require.NoError(t, runSinglePhase(phaseCmd, []string{"generate"}))
	})
	captureOutput(t, func() {
		require.NoError(t, runContextSet(contextSetCmd, []string{"Pivot", "to", "residential"}))
	})

	out := captureOutput(t, func() {
		require.NoError(t, runContextShow(contextShowCmd, nil))
	})
	assert.Contains(t, out, "Pivot to residential")
	assert.FileExists(t, artifactPath(ws, "pms_questions.json"))
}

func TestExtractCommand(t *testing.T) {
	logger = zap.NewNop()
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("one two three\nfour five\n"), 0644))

	out := captureOutput(t, func() {
		require.NoError(t, runExtract(extractCmd, []string{path}))
	})
	assert.Contains(t, out, "Words: 5")
	assert.Contains(t, out, "Lines: 2")
	assert.Contains(t, out, "one two three")

	assert.Error(t, runExtract(extractCmd, []string{filepath.Join(t.TempDir(), "missing.txt")}))
}

func TestRenderTable(t *testing.T) {
	out := renderTable([][]string{{"#", "Phase"}, {"1", "input"}, {"2", "generate"}})
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[2], "generate")
	assert.Empty(t, renderTable(nil))
}

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	origOut := os.Stdout
	origErr := os.Stderr
	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, rOut)
		_, _ = io.Copy(&buf, rErr)
		done <- buf.String()
	}()

	fn()

	_ = wOut.Close()
	_ = wErr.Close()
	os.Stdout = origOut
	os.Stderr = origErr
	return <-done
}
