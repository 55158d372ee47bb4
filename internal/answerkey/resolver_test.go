package answerkey

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type lookupStub struct {
	index *Index
	calls []string
}

func (l *lookupStub) FindWorksheet(worksheetID string) (Key, bool) {
	l.calls = append(l.calls, worksheetID)
	return l.index.FindWorksheet(worksheetID)
}

func sampleIndex() *Index {
	idx := NewIndex()
	idx.Set("7", "130", []Reference{{Answer: "4"}})
	idx.Set("10", "370", []Reference{{Answer: "x"}})
	idx.Set("12", "130", []Reference{{Answer: "other"}})
	idx.Set("3", "45", []Reference{{Answer: "9"}})
	return idx
}

func TestResolveNumericNameSearchesBooks(t *testing.T) {
	key, ok := Resolve("130", sampleIndex())
	require.True(t, ok)
	require.Equal(t, Key{BookID: "7", WorksheetID: "130"}, key)
}

func TestResolveBookWorksheetNameSkipsIndex(t *testing.T) {
	lookup := &lookupStub{index: NewIndex()}

	key, ok := Resolve("Book10-Worksheet370", lookup)
	require.True(t, ok)
	require.Equal(t, Key{BookID: "10", WorksheetID: "370"}, key)
	require.Empty(t, lookup.calls)
}

func TestResolveOrder(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want Key
		ok   bool
	}{
		{name: "numeric with padding", in: " 0130 ", want: Key{BookID: "7", WorksheetID: "130"}, ok: true},
		{name: "numeric unknown", in: "999", ok: false},
		{name: "book and worksheet lower case", in: "book 3 worksheet 45", want: Key{BookID: "3", WorksheetID: "45"}, ok: true},
		{name: "book and worksheet not in index", in: "BOOK 99 WORKSHEET 1", want: Key{BookID: "99", WorksheetID: "1"}, ok: true},
		{name: "dashed pair", in: "10-370", want: Key{BookID: "10", WorksheetID: "370"}, ok: true},
		{name: "underscore pair", in: "7_130", want: Key{BookID: "7", WorksheetID: "130"}, ok: true},
		{name: "worksheet token", in: "Worksheet 45", want: Key{BookID: "3", WorksheetID: "45"}, ok: true},
		{name: "largest number first", in: "ws 45 part 130", want: Key{BookID: "7", WorksheetID: "130"}, ok: true},
		{name: "falls back to smaller number", in: "page 999 ws 45", want: Key{BookID: "3", WorksheetID: "45"}, ok: true},
		{name: "no digits", in: "fractions practice", ok: false},
		{name: "empty", in: "", ok: false},
	}

	idx := sampleIndex()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, ok := Resolve(tc.in, idx)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.want, key)
		})
	}
}

func TestHeuristicsIndependently(t *testing.T) {
	idx := sampleIndex()

	_, ok := ByWorksheetNumber("Worksheet 130", idx)
	require.False(t, ok)

	_, ok = ByBookAndWorksheetTokens("Book 1 Worksheet 2 Part 3", idx)
	require.False(t, ok, "three numeric runs must not match")

	_, ok = ByDashedPair("10-370-1", idx)
	require.False(t, ok)

	_, ok = ByWorksheetToken("Worksheet 130 and 131", idx)
	require.False(t, ok)

	key, ok := ByAnyNumber("45 45 45", idx)
	require.True(t, ok)
	require.Equal(t, "3", key.BookID)
}

func TestByAnyNumberTriesEachDistinctValueOnce(t *testing.T) {
	lookup := &lookupStub{index: NewIndex()}

	_, ok := ByAnyNumber("12 7 12 007 300", lookup)
	require.False(t, ok)
	require.Equal(t, []string{"300", "12", "7"}, lookup.calls)
}
