package answerkey

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidIndex indicates the answer-key document failed schema validation.
	ErrInvalidIndex = errors.New("invalid answer key index")
	// ErrUnsupportedFormat indicates the file extension is neither JSON nor YAML.
	ErrUnsupportedFormat = errors.New("unsupported answer key format")
)

// Key identifies one worksheet inside one book.
type Key struct {
	BookID      string `json:"book_id"`
	WorksheetID string `json:"worksheet_id"`
}

// IsZero reports whether the key is empty.
func (k Key) IsZero() bool {
	return k.BookID == "" && k.WorksheetID == ""
}

func (k Key) String() string {
	return fmt.Sprintf("book %s / worksheet %s", k.BookID, k.WorksheetID)
}

// Reference is one expected answer. In files it is either a bare answer
// string or an object with question and answer fields.
type Reference struct {
	QuestionText string `json:"question,omitempty" yaml:"question,omitempty"`
	Answer       string `json:"answer" yaml:"answer"`
}

func (r *Reference) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}

	if trimmed[0] != '{' {
		answer, err := scalarAnswer(trimmed)
		if err != nil {
			return err
		}
		r.Answer = answer
		return nil
	}

	var decoded struct {
		Question string          `json:"question"`
		Answer   json.RawMessage `json:"answer"`
	}
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return err
	}
	answer, err := scalarAnswer(decoded.Answer)
	if err != nil {
		return err
	}
	r.QuestionText = decoded.Question
	r.Answer = answer
	return nil
}

func scalarAnswer(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}

	var number json.Number
	if err := json.Unmarshal(raw, &number); err != nil {
		return "", fmt.Errorf("reference answer must be a string or number: %w", err)
	}
	return number.String(), nil
}

func (r *Reference) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		r.Answer = node.Value
		return nil
	}

	type alias Reference
	var decoded alias
	if err := node.Decode(&decoded); err != nil {
		return err
	}
	*r = Reference(decoded)
	return nil
}

// AnswerSet is the ordered reference list for one worksheet.
type AnswerSet struct {
	Key        Key
	References []Reference
}

// Lookup is the read-only view the resolver needs.
type Lookup interface {
	// FindWorksheet returns the first book containing the worksheet.
	FindWorksheet(worksheetID string) (Key, bool)
}

type document struct {
	Books map[string]book `json:"books" yaml:"books"`
}

type book struct {
	Worksheets map[string][]Reference `json:"worksheets" yaml:"worksheets"`
}

// Index maps book ids to worksheet ids to ordered reference answers. An
// Index is built once and then only read, so it is safe for concurrent use.
type Index struct {
	books map[string]map[string][]Reference
	order []string
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{books: map[string]map[string][]Reference{}}
}

// Load reads an index from a .json, .yaml or .yml file.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read answer key: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return Parse(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Parse builds an index from its JSON representation.
func Parse(data []byte) (*Index, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIndex, err)
	}
	if err := indexSchema().Validate(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIndex, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIndex, err)
	}
	return fromDocument(doc), nil
}

// ParseYAML builds an index from YAML. The document is normalised to JSON
// so both formats go through the same schema.
func ParseYAML(data []byte) (*Index, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIndex, err)
	}

	normalised, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIndex, err)
	}
	return Parse(normalised)
}

func fromDocument(doc document) *Index {
	idx := NewIndex()
	for bookID, b := range doc.Books {
		for worksheetID, refs := range b.Worksheets {
			idx.Set(bookID, worksheetID, refs)
		}
	}
	return idx
}

// Set stores the references for a worksheet, replacing any previous entry.
// It must not be called once the index is shared between goroutines.
func (idx *Index) Set(bookID, worksheetID string, refs []Reference) {
	bookID = CanonicalID(bookID)
	worksheetID = CanonicalID(worksheetID)

	worksheets, ok := idx.books[bookID]
	if !ok {
		worksheets = map[string][]Reference{}
		idx.books[bookID] = worksheets
		idx.order = append(idx.order, bookID)
		sort.Slice(idx.order, func(i, j int) bool {
			return lessID(idx.order[i], idx.order[j])
		})
	}
	worksheets[worksheetID] = append([]Reference(nil), refs...)
}

// FindWorksheet scans books in ascending id order and returns the first one
// that contains worksheetID.
func (idx *Index) FindWorksheet(worksheetID string) (Key, bool) {
	if idx == nil {
		return Key{}, false
	}

	worksheetID = CanonicalID(worksheetID)
	for _, bookID := range idx.order {
		if _, ok := idx.books[bookID][worksheetID]; ok {
			return Key{BookID: bookID, WorksheetID: worksheetID}, true
		}
	}
	return Key{}, false
}

// Answers returns the reference set for key.
func (idx *Index) Answers(key Key) (AnswerSet, bool) {
	if idx == nil {
		return AnswerSet{}, false
	}

	key = Key{BookID: CanonicalID(key.BookID), WorksheetID: CanonicalID(key.WorksheetID)}
	refs, ok := idx.books[key.BookID][key.WorksheetID]
	if !ok || len(refs) == 0 {
		return AnswerSet{}, false
	}
	return AnswerSet{Key: key, References: append([]Reference(nil), refs...)}, true
}

// Books returns the book ids in scan order.
func (idx *Index) Books() []string {
	return append([]string(nil), idx.order...)
}

// WorksheetCount reports the number of worksheets across all books.
func (idx *Index) WorksheetCount() int {
	total := 0
	for _, worksheets := range idx.books {
		total += len(worksheets)
	}
	return total
}

// MarshalJSON writes the index in the on-disk document format.
func (idx *Index) MarshalJSON() ([]byte, error) {
	doc := document{Books: make(map[string]book, len(idx.books))}
	for bookID, worksheets := range idx.books {
		doc.Books[bookID] = book{Worksheets: worksheets}
	}
	return json.Marshal(doc)
}

// Save writes the index as indented JSON.
func (idx *Index) Save(path string) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("encode answer key: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create answer key directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write answer key: %w", err)
	}
	return nil
}

// CanonicalID trims the id and strips leading zeros from numeric ids.
func CanonicalID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !isDigits(id) {
		return id
	}
	stripped := strings.TrimLeft(id, "0")
	if stripped == "" {
		return "0"
	}
	return stripped
}

func lessID(a, b string) bool {
	an, aErr := strconv.ParseUint(a, 10, 64)
	bn, bErr := strconv.ParseUint(b, 10, 64)
	switch {
	case aErr == nil && bErr == nil:
		return an < bn
	case aErr == nil:
		return true
	case bErr == nil:
		return false
	default:
		return a < b
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
