package grading

import (
	"strings"
	"unicode/utf8"
)

// Deduplicate merges entries that ask the same question, typically because
// the same question shows up on more than one image. Entries must be in
// submission order. Within a group a written answer beats a blank one and a
// longer answer beats a shorter one; ties keep the earliest. Output is
// numbered from 1 in the order groups first appear.
func Deduplicate(entries []ExtractedEntry) []CanonicalEntry {
	groups := make(map[string]int, len(entries))
	best := make([]ExtractedEntry, 0, len(entries))

	for _, entry := range entries {
		key := groupKey(entry.QuestionText)
		pos, seen := groups[key]
		if !seen {
			groups[key] = len(best)
			best = append(best, entry)
			continue
		}
		if outranks(entry, best[pos]) {
			best[pos] = entry
		}
	}

	return number(best)
}

// Canonicalize numbers entries without merging anything. Single-image runs
// take this path.
func Canonicalize(entries []ExtractedEntry) []CanonicalEntry {
	return number(entries)
}

func number(entries []ExtractedEntry) []CanonicalEntry {
	out := make([]CanonicalEntry, len(entries))
	for i, entry := range entries {
		out[i] = CanonicalEntry{
			QuestionNumber: i + 1,
			QuestionText:   entry.QuestionText,
			StudentAnswer:  entry.StudentAnswer,
		}
	}
	return out
}

func groupKey(question string) string {
	return strings.Join(strings.Fields(strings.ToLower(question)), " ")
}

// outranks reports whether candidate should replace current.
func outranks(candidate, current ExtractedEntry) bool {
	candidateBlank := isBlank(candidate.StudentAnswer)
	currentBlank := isBlank(current.StudentAnswer)

	switch {
	case candidateBlank:
		return false
	case currentBlank:
		return true
	default:
		return answerLength(candidate.StudentAnswer) > answerLength(current.StudentAnswer)
	}
}

// answerLength counts characters as extracted, surrounding spaces included.
func answerLength(answer string) int {
	return utf8.RuneCountInString(answer)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
