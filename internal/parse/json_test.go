package parse

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const payload = `{"final_questions": [{"question_number": 1, "question_text": "Q?", "reasoning": "R"}]}`

type question struct {
	QuestionNumber int    `json:"question_number"`
	QuestionText   string `json:"question_text"`
	Reasoning      string `json:"reasoning"`
}

func TestJSONObject_EquivalentWrappings(t *testing.T) {
	want, err := JSONObject(payload, "final_questions")
	require.NoError(t, err)

	variants := map[string]string{
		"fenced json":    "```json\n" + payload + "\n```",
		"fenced bare":    "```\n" + payload + "\n```",
		"fence in prose": "Here you go:\n```json\n" + payload + "\n```\nHope this helps.",
		"trailing prose": payload + "\n\nLet me know if you need more detail.",
		"leading prose":  "Sure! " + payload,
		"unclosed fence": "```json\n" + payload,
		"brace in prose": "Scores use the {probability x impact} rule.\n" + payload,
		"earlier object": `Schema: {"type": "object"}` + "\n" + payload,
	}
	for name, content := range variants {
		t.Run(name, func(t *testing.T) {
			got, err := JSONObject(content, "final_questions")
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestJSONObject_Failures(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantKind Kind
	}{
		{"empty", "   ", KindEmpty},
		{"not json", "I cannot help with that.", KindSyntax},
		{"truncated", `{"final_questions": [{"question_number": 1`, KindSyntax},
		{"array", `[1, 2, 3]`, KindSyntax},
		{"missing key", `{"questions": []}`, KindMissingKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := JSONObject(tt.content, "final_questions")
			require.Error(t, err)
			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.wantKind, pe.Kind)
		})
	}
}

func TestDecode(t *testing.T) {
	obj, err := JSONObject(payload, "final_questions")
	require.NoError(t, err)

	qs, err := Decode[[]question](obj, "final_questions")
	require.NoError(t, err)
	assert.Equal(t, []question{{1, "Q?", "R"}}, qs)

	_, err = Decode[map[string]string](obj, "final_questions")
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindShape, pe.Kind)

	_, err = Decode[string](obj, "absent")
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindMissingKey, pe.Kind)
}

func TestJSONObject_NoRangeValidation(t *testing.T) {
	obj, err := JSONObject(`{"risk_assessments": [{"probability": 9}]}`, "risk_assessments")
	require.NoError(t, err)
	recs, err := Decode[[]map[string]int](obj, "risk_assessments")
	require.NoError(t, err)
	assert.Equal(t, 9, recs[0]["probability"])
}
