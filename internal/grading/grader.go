package grading

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/noah-isme/worksheet-grader/internal/answerkey"
)

var numericLike = regexp.MustCompile(`^-?(\d+\.?\d*|\.\d+)$`)

// Gap describes a length mismatch between canonical entries and references.
type Gap struct {
	Entries    int
	References int
}

// Grade scores entries against references by position: entry i is checked
// against reference i. Each reference is worth TotalPossible/len(refs)
// points. References with no entry are emitted and counted as unanswered so
// the max_points column always sums to TotalPossible. Entries with no
// reference are unanswered and worth nothing.
func Grade(entries []CanonicalEntry, refs []answerkey.Reference) Result {
	result := Result{
		TotalPossible: TotalPossible,
		GradedBy:      GradedByReference,
	}

	total := len(refs)
	if len(entries) > total {
		total = len(entries)
	}
	if total == 0 {
		return result
	}

	perQuestion := 0.0
	if len(refs) > 0 {
		perQuestion = TotalPossible / float64(len(refs))
	}

	result.QuestionScores = make([]QuestionScore, 0, total)
	for i := 0; i < total; i++ {
		score := QuestionScore{QuestionNumber: i + 1}
		if i < len(entries) {
			score.QuestionNumber = entries[i].QuestionNumber
			score.QuestionText = entries[i].QuestionText
			score.StudentAnswer = entries[i].StudentAnswer
		}

		if i < len(refs) {
			expected := refs[i].Answer
			score.ReferenceAnswer = &expected
			score.MaxPoints = perQuestion
			if score.QuestionText == "" {
				score.QuestionText = refs[i].QuestionText
			}
		}

		switch {
		case score.ReferenceAnswer == nil || !score.Answered():
			result.UnansweredCount++
		case Equivalent(score.StudentAnswer, *score.ReferenceAnswer):
			score.IsCorrect = true
			score.PointsEarned = perQuestion
			result.CorrectCount++
			result.OverallScore += perQuestion
		default:
			result.WrongCount++
		}

		result.QuestionScores = append(result.QuestionScores, score)
	}

	return result
}

// Alignment reports whether entries and references differ in length.
func Alignment(entries []CanonicalEntry, refs []answerkey.Reference) (Gap, bool) {
	gap := Gap{Entries: len(entries), References: len(refs)}
	return gap, gap.Entries != gap.References
}

// Equivalent reports whether a student answer matches the expected one.
// Comparison ignores case and all whitespace; numeric answers also match
// when they parse to the same value ("0.50" and ".5").
func Equivalent(student, expected string) bool {
	if isBlank(student) {
		return false
	}

	a := normalize(student)
	b := normalize(expected)
	if a == b {
		return true
	}

	if !numericLike.MatchString(a) || !numericLike.MatchString(b) {
		return false
	}

	av, errA := strconv.ParseFloat(a, 64)
	bv, errB := strconv.ParseFloat(b, 64)
	return errA == nil && errB == nil && av == bv
}

func normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}
