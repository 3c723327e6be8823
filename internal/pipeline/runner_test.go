package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skeptic/internal/artifact"
	"skeptic/internal/store"
)

type memLedger struct {
	mu       sync.Mutex
	started  []int
	finished map[string]string
}

func (l *memLedger) StartRun(_ context.Context, phase int) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = append(l.started, phase)
	return "run-" + string(rune('0'+phase)), nil
}

func (l *memLedger) FinishRun(_ context.Context, id, status, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.finished == nil {
		l.finished = map[string]string{}
	}
	l.finished[id] = status
	return nil
}

func happyScript() *script {
	return &script{
		generate:    tenQuestions,
		consolidate: fiveFinal,
		risk: func() (string, error) {
			return riskJSON([2]int{4, 5}, [2]int{3, 5}, [2]int{2, 7}, [2]int{2, 4}, [2]int{1, 3}), nil
		},
		derisk:  func(string) (string, error) { return planJSON, nil },
		reflect: func() (string, error) { return reflectionJSON, nil },
	}
}

func newTestRunner(t *testing.T, s *script, ledger RunLedger) (*Runner, *store.ArtifactStore) {
	t.Helper()
	st, err := store.NewArtifactStore(filepath.Join(t.TempDir(), "artifacts"))
	require.NoError(t, err)
	ex := mapExtractor{"n.txt": "narrative", "d.pdf": "deck", "r.pdf": "report"}
	p := New(s, nil, ex, testOptions("a/model", "b/model"))
	return NewRunner(p, st, ledger, InputPaths{Narrative: "n.txt", PitchDeck: "d.pdf", MarketReport: "r.pdf"}, "Seed-stage grid storage"), st
}

func TestRunnerFullRun(t *testing.T) {
	ledger := &memLedger{}
	r, st := newTestRunner(t, happyScript(), ledger)

	results, err := r.Resume(context.Background(), PhaseReflect)
	require.NoError(t, err)
	require.Len(t, results, 6)
	for _, res := range results {
		assert.Equal(t, KindOk, res.Kind, "phase %d: %s", res.Phase, res.Reason)
		assert.Equal(t, StatusComplete, r.State().Status(res.Phase))
	}
	for _, k := range store.AllKeys {
		assert.Equal(t, store.StateReady, st.Check(k), k)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, ledger.started)
	assert.Equal(t, "complete", ledger.finished["run-6"])

	// Phase 4 is persisted as a flat list sorted by score.
	var risks []artifact.RiskAssessment
	require.NoError(t, st.Load(store.KeyRisks, &risks))
	require.Len(t, risks, 5)
	assert.Equal(t, 20, risks[0].RiskScore)

	// (4,5)=20 and (3,5)=15 qualify; (2,7)=14 does not.
	var derisked []artifact.RiskAssessment
	require.NoError(t, st.Load(store.KeyDerisked, &derisked))
	generated := 0
	for _, d := range derisked {
		if d.DeRiskingPlan.Status == artifact.PlanGenerated {
			generated++
		}
	}
	assert.Equal(t, 2, generated)

	// A second Resume has nothing left to do.
	results, err = r.Resume(context.Background(), PhaseReflect)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRunnerPrecondition(t *testing.T) {
	r, _ := newTestRunner(t, happyScript(), nil)

	_, err := r.RunPhase(context.Background(), PhaseRisk)
	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, []Phase{PhaseInput, PhaseConsolidate}, pe.Missing)
	assert.True(t, errors.Is(err, ErrInputMissing))
	assert.Equal(t, StatusMissing, r.State().Status(PhaseRisk))
}

func TestRunnerStopsOnAbsentInput(t *testing.T) {
	s := happyScript()
	st, err := store.NewArtifactStore(t.TempDir())
	require.NoError(t, err)
	r := NewRunner(New(s, nil, mapExtractor{}, testOptions("a/model")), st, nil, InputPaths{}, "ctx")

	results, err := r.Resume(context.Background(), PhaseReflect)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, KindAbsent, results[0].Kind)
	assert.Equal(t, StatusFailed, r.State().Status(PhaseInput))
	assert.False(t, st.Exists(store.KeyExtracted))
	assert.Empty(t, s.Calls())
}

func TestRunnerReflectionFailureLeavesNoArtifact(t *testing.T) {
	s := happyScript()
	s.reflect = func() (string, error) { return "not json", nil }
	r, st := newTestRunner(t, s, nil)

	results, err := r.Resume(context.Background(), PhaseReflect)
	require.NoError(t, err)
	require.Len(t, results, 6)
	assert.Equal(t, KindAbsent, results[5].Kind)
	assert.Equal(t, StatusFailed, r.State().Status(PhaseReflect))
	assert.False(t, st.Exists(store.KeyReflection))
	assert.True(t, st.Exists(store.KeyDerisked))
}

func TestRunnerResetCascadeDeletesFiles(t *testing.T) {
	r, st := newTestRunner(t, happyScript(), nil)
	_, err := r.Resume(context.Background(), PhaseReflect)
	require.NoError(t, err)

	require.NoError(t, r.Reset(PhaseRisk))
	assert.True(t, st.Exists(store.KeyExtracted))
	assert.True(t, st.Exists(store.KeyQuestions))
	assert.True(t, st.Exists(store.KeyConsolidated))
	assert.False(t, st.Exists(store.KeyRisks))
	assert.False(t, st.Exists(store.KeyDerisked))
	assert.False(t, st.Exists(store.KeyReflection))
	assert.Nil(t, r.State().Risks)
	assert.NotNil(t, r.State().Consolidated)

	// Rerunning a completed phase cascades too.
	_, err = r.Resume(context.Background(), PhaseReflect)
	require.NoError(t, err)
	_, err = r.RunPhase(context.Background(), PhaseConsolidate)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, r.State().Status(PhaseConsolidate))
	assert.Equal(t, StatusMissing, r.State().Status(PhaseRisk))
	assert.False(t, st.Exists(store.KeyRisks))
}

func TestRunnerLoadRoundTrip(t *testing.T) {
	r, st := newTestRunner(t, happyScript(), nil)
	_, err := r.Resume(context.Background(), PhaseReflect)
	require.NoError(t, err)

	before := map[store.Key][]byte{}
	for _, k := range store.AllKeys {
		data, err := os.ReadFile(st.Path(k))
		require.NoError(t, err)
		before[k] = data
	}

	reloaded := NewRunner(r.pipe, st, nil, InputPaths{}, "")
	require.NoError(t, reloaded.Load())
	for _, p := range AllPhases {
		assert.Equal(t, StatusComplete, reloaded.State().Status(p))
	}
	assert.Equal(t, r.State().Consolidated, reloaded.State().Consolidated)
	assert.Equal(t, r.State().Risks.SummaryStats, reloaded.State().Risks.SummaryStats)

	// Re-serializing loaded artifacts reproduces the files byte for byte.
	s := reloaded.State()
	resave := map[store.Key]any{
		store.KeyExtracted:    s.Input,
		store.KeyQuestions:    s.Questions,
		store.KeyConsolidated: s.Consolidated,
		store.KeyRisks:        s.Risks.Risks,
		store.KeyDerisked:     s.Derisked,
		store.KeyReflection:   s.Reflection,
	}
	for k, v := range resave {
		require.NoError(t, st.Save(k, v))
		data, err := os.ReadFile(st.Path(k))
		require.NoError(t, err)
		assert.JSONEq(t, string(before[k]), string(data), k)
		assert.Equal(t, string(before[k]), string(data), k)
	}
}

func TestRunnerLoadTreatsCorruptAsMissing(t *testing.T) {
	r, st := newTestRunner(t, happyScript(), nil)
	_, err := r.Resume(context.Background(), PhaseConsolidate)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(st.Path(store.KeyConsolidated), []byte("{not json"), 0644))

	reloaded := NewRunner(r.pipe, st, nil, InputPaths{}, "")
	require.NoError(t, reloaded.Load())
	assert.Equal(t, StatusComplete, reloaded.State().Status(PhaseGenerate))
	assert.Equal(t, StatusMissing, reloaded.State().Status(PhaseConsolidate))
	assert.Equal(t, "Seed-stage grid storage", reloaded.State().Input.Context)

	// A well-formed file that breaks the five-record invariant is also missing.
	require.NoError(t, st.Save(store.KeyConsolidated, []artifact.ConsolidatedQuestion{{QuestionNumber: 1, QuestionText: "only"}}))
	require.NoError(t, reloaded.Load())
	assert.Equal(t, StatusMissing, reloaded.State().Status(PhaseConsolidate))
}

func TestRunnerSetContextDoesNotCascade(t *testing.T) {
	r, st := newTestRunner(t, happyScript(), nil)
	_, err := r.Resume(context.Background(), PhaseRisk)
	require.NoError(t, err)

	require.NoError(t, r.SetContext("Pivoted to residential"))
	in, err := store.LoadAs[artifact.ExtractedInput](st, store.KeyExtracted)
	require.NoError(t, err)
	assert.Equal(t, "Pivoted to residential", in.Context)
	assert.Equal(t, "narrative", in.MarketNarrative)
	assert.True(t, st.Exists(store.KeyRisks))
	assert.Equal(t, StatusComplete, r.State().Status(PhaseRisk))
}

func TestRunnerRegenerateModel(t *testing.T) {
	s := happyScript()
	failing := true
	s.generate = func(model string) (string, error) {
		if model == "b/model" && failing {
			return "", errors.New("rate limited")
		}
		return tenQuestions(model)
	}
	r, st := newTestRunner(t, s, nil)
	results, err := r.Resume(context.Background(), PhaseRisk)
	require.NoError(t, err)
	assert.Equal(t, KindPlaceholder, results[1].Kind)

	failing = false
	res, err := r.RegenerateModel(context.Background(), "b/model")
	require.NoError(t, err)
	assert.Equal(t, KindOk, res.Kind)

	set, err := store.LoadAs[artifact.RawQuestionSet](st, store.KeyQuestions)
	require.NoError(t, err)
	assert.Equal(t, "b/model question 1?", set["b/model"][0])
	assert.Equal(t, "a/model question 1?", set["a/model"][0])
	assert.False(t, st.Exists(store.KeyConsolidated))
	assert.False(t, st.Exists(store.KeyRisks))
	assert.Equal(t, StatusComplete, r.State().Status(PhaseGenerate))
	assert.Equal(t, StatusMissing, r.State().Status(PhaseConsolidate))

	_, err = r.RegenerateModel(context.Background(), "nobody/model")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestRunnerInterruptedPhaseSavesNothing(t *testing.T) {
	ledger := &memLedger{}
	s := happyScript()
	r, st := newTestRunner(t, s, ledger)
	_, err := r.RunPhase(context.Background(), PhaseInput)
	require.NoError(t, err)

	// The first model's call is cut short; the second sees a cancelled ctx.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.generate = func(model string) (string, error) {
		if model == "a/model" {
			cancel()
			return "", errors.New("connection reset")
		}
		return tenQuestions(model)
	}

	results, err := r.Resume(ctx, PhaseReflect)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
	assert.Equal(t, StatusFailed, r.State().Status(PhaseGenerate))
	assert.Nil(t, r.State().Questions)
	assert.False(t, st.Exists(store.KeyQuestions))
	assert.Equal(t, "failed", ledger.finished["run-2"])

	// A fresh session sees the phase as missing and can run it.
	reloaded := NewRunner(r.pipe, st, nil, InputPaths{}, "")
	require.NoError(t, reloaded.Load())
	assert.Equal(t, StatusComplete, reloaded.State().Status(PhaseInput))
	assert.Equal(t, StatusMissing, reloaded.State().Status(PhaseGenerate))

	s.generate = tenQuestions
	res, err := reloaded.RunPhase(context.Background(), PhaseGenerate)
	require.NoError(t, err)
	assert.Equal(t, KindOk, res.Kind)
}

func TestRunnerInterruptedRegenerateKeepsSet(t *testing.T) {
	r, st := newTestRunner(t, happyScript(), nil)
	_, err := r.Resume(context.Background(), PhaseConsolidate)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.RegenerateModel(ctx, "b/model")
	require.ErrorIs(t, err, context.Canceled)

	set, err := store.LoadAs[artifact.RawQuestionSet](st, store.KeyQuestions)
	require.NoError(t, err)
	assert.Equal(t, "b/model question 1?", set["b/model"][0])
	assert.True(t, st.Exists(store.KeyConsolidated))
	assert.Equal(t, StatusComplete, r.State().Status(PhaseConsolidate))
}

func TestRunnerLoadDropsOrphanedArtifacts(t *testing.T) {
	r, st := newTestRunner(t, happyScript(), nil)
	_, err := r.Resume(context.Background(), PhaseReflect)
	require.NoError(t, err)

	require.NoError(t, os.Remove(st.Path(store.KeyConsolidated)))

	reloaded := NewRunner(r.pipe, st, nil, InputPaths{}, "")
	require.NoError(t, reloaded.Load())
	s := reloaded.State()
	assert.Equal(t, StatusComplete, s.Status(PhaseInput))
	assert.Equal(t, StatusComplete, s.Status(PhaseGenerate))
	for _, p := range []Phase{PhaseConsolidate, PhaseRisk, PhaseDerisk, PhaseReflect} {
		assert.Equal(t, StatusMissing, s.Status(p), p)
	}
	assert.Nil(t, s.Risks)
	assert.Nil(t, s.Derisked)
	assert.Nil(t, s.Reflection)

	_, err = reloaded.RunPhase(context.Background(), PhaseDerisk)
	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, []Phase{PhaseRisk}, pe.Missing)
}

func TestRunnerLoadRejectsInvalidRiskLists(t *testing.T) {
	r, st := newTestRunner(t, happyScript(), nil)
	_, err := r.Resume(context.Background(), PhaseDerisk)
	require.NoError(t, err)
	risks := r.State().Risks.Risks
	derisked := r.State().Derisked

	reload := func() State {
		t.Helper()
		reloaded := NewRunner(r.pipe, st, nil, InputPaths{}, "")
		require.NoError(t, reloaded.Load())
		return reloaded.State()
	}

	t.Run("short risk list", func(t *testing.T) {
		require.NoError(t, st.Save(store.KeyRisks, risks[:1]))
		s := reload()
		assert.Equal(t, StatusComplete, s.Status(PhaseConsolidate))
		assert.Equal(t, StatusMissing, s.Status(PhaseRisk))
		assert.Equal(t, StatusMissing, s.Status(PhaseDerisk))
	})

	t.Run("score not derived", func(t *testing.T) {
		tampered := append([]artifact.RiskAssessment(nil), risks...)
		tampered[0].RiskScore = 3
		require.NoError(t, st.Save(store.KeyRisks, tampered))
		assert.Equal(t, StatusMissing, reload().Status(PhaseRisk))
	})

	t.Run("derisked record without plan", func(t *testing.T) {
		require.NoError(t, st.Save(store.KeyRisks, risks))
		stripped := append([]artifact.RiskAssessment(nil), derisked...)
		stripped[4].DeRiskingPlan = nil
		require.NoError(t, st.Save(store.KeyDerisked, stripped))
		s := reload()
		assert.Equal(t, StatusComplete, s.Status(PhaseRisk))
		assert.Equal(t, StatusMissing, s.Status(PhaseDerisk))
	})
}
