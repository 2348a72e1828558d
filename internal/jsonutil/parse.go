// Package jsonutil decodes the JSON objects the model returns for digests and
// notification actions. Replies may arrive inside a markdown code fence.
package jsonutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoObject is returned when a reply holds no complete JSON object.
var ErrNoObject = errors.New("no JSON object found")

// Unfence trims a reply and removes a surrounding ``` or ```json fence.
func Unfence(reply string) string {
	s := strings.TrimSpace(reply)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// ObjectSpan returns the first balanced {...} in reply. Braces inside JSON
// strings are skipped, so prose after the object may contain braces too.
func ObjectSpan(reply string) (string, error) {
	start := strings.IndexByte(reply, '{')
	if start < 0 {
		return "", ErrNoObject
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(reply); i++ {
		c := reply[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return reply[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("%w: unterminated object", ErrNoObject)
}

// ParseJSON decodes the first object in a reply into T, tolerating fences,
// surrounding prose and unknown fields. The digest summary uses it.
func ParseJSON[T any](reply string) (T, error) {
	var zero T
	span, err := ObjectSpan(reply)
	if err != nil {
		return zero, fmt.Errorf("%w (raw length: %d)", err, len(reply))
	}

	var result T
	if err := json.Unmarshal([]byte(span), &result); err != nil {
		return zero, fmt.Errorf("invalid JSON: %w (text: %s)", err, preview(span))
	}
	return result, nil
}

// DecodeStrict decodes a reply that must be exactly one JSON value of type T,
// optionally fenced. Unknown fields and any trailing content are rejected.
func DecodeStrict[T any](reply string) (T, error) {
	var zero T
	body := Unfence(reply)
	if body == "" {
		return zero, ErrNoObject
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()

	var result T
	if err := dec.Decode(&result); err != nil {
		return zero, fmt.Errorf("invalid JSON: %w (text: %s)", err, preview(body))
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return zero, fmt.Errorf("unexpected data after JSON value (text: %s)", preview(body))
	}
	return result, nil
}

func preview(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
