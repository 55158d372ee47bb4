package answerkey

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "books": {
    "12": {"worksheets": {"130": ["late"]}},
    "7": {"worksheets": {
      "130": ["4", {"question": "3 x 3", "answer": "9"}, 12.5],
      "0131": ["a"]
    }}
  }
}`

const sampleYAML = `books:
  7:
    worksheets:
      130:
        - "4"
        - question: 3 x 3
          answer: 9
`

func TestParseMixedReferenceShapes(t *testing.T) {
	idx, err := Parse([]byte(sampleJSON))
	require.NoError(t, err)

	set, ok := idx.Answers(Key{BookID: "7", WorksheetID: "130"})
	require.True(t, ok)
	require.Equal(t, []Reference{
		{Answer: "4"},
		{QuestionText: "3 x 3", Answer: "9"},
		{Answer: "12.5"},
	}, set.References)

	_, ok = idx.Answers(Key{BookID: "7", WorksheetID: "131"})
	require.True(t, ok, "leading zeros are stripped from worksheet ids")

	require.Equal(t, []string{"7", "12"}, idx.Books())
	require.Equal(t, 3, idx.WorksheetCount())
}

func TestFindWorksheetScansBooksInNumericOrder(t *testing.T) {
	idx, err := Parse([]byte(sampleJSON))
	require.NoError(t, err)

	key, ok := idx.FindWorksheet("130")
	require.True(t, ok)
	require.Equal(t, Key{BookID: "7", WorksheetID: "130"}, key)
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"not json":           `{"books":`,
		"missing books":      `{"worksheets": {}}`,
		"missing worksheets": `{"books": {"7": {}}}`,
		"answer not list":    `{"books": {"7": {"worksheets": {"130": "4"}}}}`,
		"object w/o answer":  `{"books": {"7": {"worksheets": {"130": [{"question": "q"}]}}}}`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.ErrorIs(t, err, ErrInvalidIndex)
		})
	}
}

func TestParseYAML(t *testing.T) {
	idx, err := ParseYAML([]byte(sampleYAML))
	require.NoError(t, err)

	set, ok := idx.Answers(Key{BookID: "7", WorksheetID: "130"})
	require.True(t, ok)
	require.Equal(t, []Reference{{Answer: "4"}, {QuestionText: "3 x 3", Answer: "9"}}, set.References)
}

func TestLoadAndSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "answers.yaml")
	require.NoError(t, os.WriteFile(src, []byte(sampleYAML), 0o644))

	idx, err := Load(src)
	require.NoError(t, err)

	out := filepath.Join(dir, "nested", "answers.json")
	require.NoError(t, idx.Save(out))

	reloaded, err := Load(out)
	require.NoError(t, err)
	set, ok := reloaded.Answers(Key{BookID: "7", WorksheetID: "130"})
	require.True(t, ok)
	require.Len(t, set.References, 2)

	_, err = Load(filepath.Join(dir, "answers.txt"))
	require.Error(t, err)

	txt := filepath.Join(dir, "answers.csv")
	require.NoError(t, os.WriteFile(txt, []byte("a,b"), 0o644))
	_, err = Load(txt)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestCanonicalID(t *testing.T) {
	require.Equal(t, "7", CanonicalID("007"))
	require.Equal(t, "0", CanonicalID("000"))
	require.Equal(t, "A1", CanonicalID(" A1 "))
	require.Equal(t, "", CanonicalID(""))
}
