package salvage_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/worksheet-grader/pkg/salvage"
)

func TestSalvageWrappedSingleQuotedWithTrailingComma(t *testing.T) {
	obj, err := salvage.Salvage(`Sure! {'q1': {'question': 'a', 'answer': 'b'},}`)
	require.NoError(t, err)

	encoded, err := json.Marshal(obj)
	require.NoError(t, err)
	require.JSONEq(t, `{"q1": {"question": "a", "answer": "b"}}`, string(encoded))
}

func TestSalvageSteps(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "valid", in: `{"a": 1}`, want: `{"a": 1}`},
		{name: "fenced", in: "```json\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "prose around object", in: `Here you go: {"a": {"b": 2}} hope it helps`, want: `{"a": {"b": 2}}`},
		{name: "single quotes", in: `{'a': 'x'}`, want: `{"a": "x"}`},
		{name: "trailing commas", in: `{"a": [1, 2,], "b": 3,}`, want: `{"a": [1, 2], "b": 3}`},
		{name: "bare keys", in: `{q1: {question: "2+2", answer: "4"}}`, want: `{"q1": {"question": "2+2", "answer": "4"}}`},
		{name: "everything at once", in: "result:\n{q1: {'question': 'x', answer: 'y',},}\nthanks", want: `{"q1": {"question": "x", "answer": "y"}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			obj, err := salvage.Salvage(tc.in)
			require.NoError(t, err)
			encoded, err := json.Marshal(obj)
			require.NoError(t, err)
			require.JSONEq(t, tc.want, string(encoded))
		})
	}
}

func TestSalvageKeepsKeyOrder(t *testing.T) {
	obj, err := salvage.Salvage(`{"q10": 1, "q2": 2, "q1": 3}`)
	require.NoError(t, err)
	require.Equal(t, []string{"q10", "q2", "q1"}, obj.Keys)

	var value int
	require.NoError(t, obj.Decode("q2", &value))
	require.Equal(t, 2, value)

	_, ok := obj.Get("missing")
	require.False(t, ok)
}

func TestSalvageFailures(t *testing.T) {
	cases := []struct {
		name string
		in   string
		step string
	}{
		{name: "no braces", in: "I could not read the image", step: "extract_object"},
		{name: "reversed braces", in: "} nope {", step: "extract_object"},
		{name: "broken string contents", in: `{"q1": {"answer": "he said "hi""}}`, step: "quote_keys"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := salvage.Salvage(tc.in)
			require.Error(t, err)
			require.ErrorIs(t, err, salvage.ErrUnsalvageable)

			var salvageErr *salvage.Error
			require.True(t, errors.As(err, &salvageErr))
			require.Equal(t, tc.step, salvageErr.Step)
			require.Equal(t, tc.in, salvageErr.Raw)
			require.NotEmpty(t, salvageErr.Reason)
		})
	}
}

func TestUnmarshalIntoStruct(t *testing.T) {
	var payload struct {
		Worksheets map[string][]string `json:"worksheets"`
	}
	err := salvage.Unmarshal("```json\n{'worksheets': {'130': ['4', '9',],},}\n```", &payload)
	require.NoError(t, err)
	require.Equal(t, []string{"4", "9"}, payload.Worksheets["130"])
}

func TestStripCodeFences(t *testing.T) {
	require.Equal(t, `{"a":1}`, salvage.StripCodeFences("```json\n{\"a\":1}\n```"))
	require.Equal(t, `{"a":1}`, salvage.StripCodeFences("```{\"a\":1}```"))
	require.Equal(t, `plain`, salvage.StripCodeFences("  plain  "))
}
