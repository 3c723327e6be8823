package parse

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"skeptic/internal/logging"
)

// Kind classifies a ParseError.
type Kind string

const (
	KindEmpty      Kind = "empty"       // no content at all
	KindSyntax     Kind = "syntax"      // no decodable JSON object found
	KindMissingKey Kind = "missing_key" // object decoded, required key absent
	KindShape      Kind = "shape"       // key present, value has the wrong shape
)

// ParseError reports content that did not yield the expected structure.
type ParseError struct {
	Kind    Kind
	Key     string
	Reason  string
	Snippet string
}

func (e *ParseError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("parse %s (%s): %s", e.Kind, e.Key, e.Reason)
	}
	return fmt.Sprintf("parse %s: %s", e.Kind, e.Reason)
}

var fenceRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")

// Object is a decoded top-level JSON object with undecoded values.
type Object map[string]json.RawMessage

// JSONObject locates and decodes one JSON object in content. Candidates are
// tried in order: the first fenced code block, the whole content, then the
// text from each '{' in turn. The first object holding every required key
// wins. Trailing text after the object is ignored.
func JSONObject(content string, required ...string) (Object, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, &ParseError{Kind: KindEmpty, Reason: "empty response"}
	}

	candidates := make([]string, 0, 4)
	if m := fenceRe.FindStringSubmatch(trimmed); m != nil {
		candidates = append(candidates, m[1])
	}
	candidates = append(candidates, trimmed)
	for i := 1; i < len(trimmed); i++ {
		if trimmed[i] == '{' {
			candidates = append(candidates, trimmed[i:])
		}
	}

	var (
		first   Object
		lastErr error
	)
	for _, c := range candidates {
		o, err := decodeObject(c)
		if err != nil {
			lastErr = err
			continue
		}
		if missingKey(o, required) == "" {
			logging.ParseDebug("decoded JSON object with %d keys", len(o))
			return o, nil
		}
		if first == nil {
			first = o
		}
	}
	if first == nil {
		logging.ParseWarn("no JSON object in response (%d chars): %v", len(content), lastErr)
		return nil, &ParseError{Kind: KindSyntax, Reason: lastErr.Error(), Snippet: snippet(trimmed)}
	}
	key := missingKey(first, required)
	logging.ParseWarn("JSON object missing required key %q", key)
	return nil, &ParseError{Kind: KindMissingKey, Key: key, Reason: "required key absent", Snippet: snippet(trimmed)}
}

func decodeObject(s string) (Object, error) {
	var o Object
	if err := json.NewDecoder(strings.NewReader(s)).Decode(&o); err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("top-level value is null")
	}
	return o, nil
}

func missingKey(o Object, required []string) string {
	for _, key := range required {
		if _, ok := o[key]; !ok {
			return key
		}
	}
	return ""
}

// Decode decodes obj[key] into a T.
func Decode[T any](obj Object, key string) (T, error) {
	var v T
	raw, ok := obj[key]
	if !ok {
		return v, &ParseError{Kind: KindMissingKey, Key: key, Reason: "required key absent"}
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, &ParseError{Kind: KindShape, Key: key, Reason: err.Error(), Snippet: snippet(string(raw))}
	}
	return v, nil
}

func snippet(s string) string {
	const max = 200
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
