package answerkey

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Heuristic maps a free-text worksheet name to a key. Heuristics are pure:
// they only read the name and the lookup.
type Heuristic func(name string, idx Lookup) (Key, bool)

const (
	bookToken     = "book"
	worksheetWord = "worksheet"
)

var (
	numericRun   = regexp.MustCompile(`\d+`)
	dashedPair   = regexp.MustCompile(`^(\d+)[-_](\d+)$`)
	wholeNumeric = regexp.MustCompile(`^\d+$`)
)

// Heuristics is the resolution order. The first match wins.
var Heuristics = []Heuristic{
	ByWorksheetNumber,
	ByBookAndWorksheetTokens,
	ByDashedPair,
	ByWorksheetToken,
	ByAnyNumber,
}

// Resolve maps a worksheet name to a book and worksheet id. A false result
// is a resolution miss, which callers handle by grading without a key.
func Resolve(name string, idx Lookup) (Key, bool) {
	for _, heuristic := range Heuristics {
		if key, ok := heuristic(name, idx); ok {
			return key, true
		}
	}
	return Key{}, false
}

// ByWorksheetNumber treats a purely numeric name as a worksheet id and
// searches every book for it.
func ByWorksheetNumber(name string, idx Lookup) (Key, bool) {
	trimmed := strings.TrimSpace(name)
	if !wholeNumeric.MatchString(trimmed) {
		return Key{}, false
	}
	return search(idx, trimmed)
}

// ByBookAndWorksheetTokens reads names such as "Book10-Worksheet370". The
// key is taken as written; the index is not consulted.
func ByBookAndWorksheetTokens(name string, _ Lookup) (Key, bool) {
	lower := strings.ToLower(name)
	if !strings.Contains(lower, bookToken) || !strings.Contains(lower, worksheetWord) {
		return Key{}, false
	}
	runs := numericRun.FindAllString(name, -1)
	if len(runs) != 2 {
		return Key{}, false
	}
	return Key{BookID: CanonicalID(runs[0]), WorksheetID: CanonicalID(runs[1])}, true
}

// ByDashedPair reads "<book>-<worksheet>" or "<book>_<worksheet>" directly.
func ByDashedPair(name string, _ Lookup) (Key, bool) {
	match := dashedPair.FindStringSubmatch(strings.TrimSpace(name))
	if match == nil {
		return Key{}, false
	}
	return Key{BookID: CanonicalID(match[1]), WorksheetID: CanonicalID(match[2])}, true
}

// ByWorksheetToken handles names like "Worksheet 130" that carry exactly one
// number.
func ByWorksheetToken(name string, idx Lookup) (Key, bool) {
	if !strings.Contains(strings.ToLower(name), worksheetWord) {
		return Key{}, false
	}
	runs := numericRun.FindAllString(name, -1)
	if len(runs) != 1 {
		return Key{}, false
	}
	return search(idx, runs[0])
}

// ByAnyNumber tries every distinct number in the name as a worksheet id,
// largest first.
func ByAnyNumber(name string, idx Lookup) (Key, bool) {
	runs := numericRun.FindAllString(name, -1)
	if len(runs) == 0 {
		return Key{}, false
	}

	seen := make(map[string]struct{}, len(runs))
	candidates := make([]string, 0, len(runs))
	for _, run := range runs {
		id := CanonicalID(run)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		candidates = append(candidates, id)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return numericGreater(candidates[i], candidates[j])
	})

	for _, candidate := range candidates {
		if key, ok := search(idx, candidate); ok {
			return key, true
		}
	}
	return Key{}, false
}

func search(idx Lookup, worksheetID string) (Key, bool) {
	if idx == nil {
		return Key{}, false
	}
	return idx.FindWorksheet(CanonicalID(worksheetID))
}

// numericGreater compares canonical digit strings without overflowing on
// very long runs.
func numericGreater(a, b string) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	if an, err := strconv.ParseUint(a, 10, 64); err == nil {
		if bn, err := strconv.ParseUint(b, 10, 64); err == nil {
			return an > bn
		}
	}
	return a > b
}
