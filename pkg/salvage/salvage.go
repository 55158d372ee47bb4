// Package salvage repairs near-valid JSON returned by language models.
//
// Repairs are plain text transforms applied in a fixed order. After each
// transform the text is parsed again and the first successful parse wins.
// Nothing here invents values or fixes broken string contents.
package salvage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// ErrUnsalvageable is wrapped by every *Error.
var ErrUnsalvageable = errors.New("model response is not salvageable json")

// Error reports why a response could not be coerced into a JSON object.
type Error struct {
	Step   string
	Reason string
	Raw    string
}

func (e *Error) Error() string {
	if e.Step == "" {
		return "salvage: " + e.Reason
	}
	return fmt.Sprintf("salvage: %s (after %s)", e.Reason, e.Step)
}

func (e *Error) Unwrap() error {
	return ErrUnsalvageable
}

// Step is one named text repair.
type Step struct {
	Name  string
	Apply func(string) (string, error)
}

var (
	errNoObject = errors.New("no JSON object found")

	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
	bareKeyPattern       = regexp.MustCompile(`([{,])\s*([A-Za-z0-9_]+)\s*:`)
)

// Steps lists the repairs in the order they are tried.
var Steps = []Step{
	{Name: "trim", Apply: trimFences},
	{Name: "extract_object", Apply: extractObject},
	{Name: "single_quotes", Apply: replaceSingleQuotes},
	{Name: "trailing_commas", Apply: removeTrailingCommas},
	{Name: "quote_keys", Apply: quoteBareKeys},
}

// Salvage returns the first JSON object that can be recovered from text.
func Salvage(text string) (Object, error) {
	_, obj, err := repair(text)
	return obj, err
}

// Unmarshal salvages text and decodes the recovered object into v.
func Unmarshal(text string, v any) error {
	repaired, _, err := repair(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return &Error{Reason: err.Error(), Raw: text}
	}
	return nil
}

func repair(text string) (string, Object, error) {
	current := text
	var lastErr error
	lastStep := ""
	for _, step := range Steps {
		next, err := step.Apply(current)
		if err != nil {
			return "", Object{}, &Error{Step: step.Name, Reason: err.Error(), Raw: text}
		}
		current = next
		lastStep = step.Name

		obj, err := parseObject(current)
		if err == nil {
			return current, obj, nil
		}
		lastErr = err
	}

	reason := "unparseable"
	if lastErr != nil {
		reason = lastErr.Error()
	}
	return "", Object{}, &Error{Step: lastStep, Reason: reason, Raw: text}
}

// StripCodeFences removes a surrounding markdown code fence, if any.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if first == "" || !strings.ContainsAny(first, "{[") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func trimFences(s string) (string, error) {
	return StripCodeFences(s), nil
}

func extractObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return "", errNoObject
	}
	return s[start : end+1], nil
}

func replaceSingleQuotes(s string) (string, error) {
	return strings.ReplaceAll(s, "'", `"`), nil
}

func removeTrailingCommas(s string) (string, error) {
	return trailingCommaPattern.ReplaceAllString(s, "$1"), nil
}

func quoteBareKeys(s string) (string, error) {
	return bareKeyPattern.ReplaceAllString(s, `${1}"${2}":`), nil
}

// parseObject decodes a single JSON object and keeps its key order.
func parseObject(s string) (Object, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return Object{}, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return Object{}, errors.New("not a JSON object")
	}

	obj := Object{Values: map[string]json.RawMessage{}}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Object{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return Object{}, fmt.Errorf("unexpected token %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return Object{}, err
		}
		if _, seen := obj.Values[key]; !seen {
			obj.Keys = append(obj.Keys, key)
		}
		obj.Values[key] = raw
	}

	if _, err := dec.Token(); err != nil {
		return Object{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Object{}, errors.New("trailing data after JSON object")
	}

	return obj, nil
}

// Object is a decoded JSON object that remembers key order.
type Object struct {
	Keys   []string
	Values map[string]json.RawMessage
}

// Len reports the number of keys.
func (o Object) Len() int {
	return len(o.Keys)
}

// Get returns the raw value stored under key.
func (o Object) Get(key string) (json.RawMessage, bool) {
	raw, ok := o.Values[key]
	return raw, ok
}

// Decode unmarshals the value under key into v.
func (o Object) Decode(key string, v any) error {
	raw, ok := o.Values[key]
	if !ok {
		return fmt.Errorf("key %q not present", key)
	}
	return json.Unmarshal(raw, v)
}

// MarshalJSON writes the object back out in its original key order.
func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range o.Keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodedKey, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(encodedKey)
		buf.WriteByte(':')
		buf.Write(o.Values[key])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
