// Package extract recovers a JSON object from free-form model output.
package extract

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"
)

var (
	// ErrEmptyOutput means the model produced nothing usable: no text and no inline data.
	ErrEmptyOutput = errors.New("model returned empty output")
	// ErrNoJSON means none of the recovery strategies found a non-empty JSON object.
	ErrNoJSON = errors.New("no JSON object in model output")
)

// Strategy tries to read a JSON object out of cleaned model text.
type Strategy struct {
	Name  string
	Parse func(text string) (json.RawMessage, bool)
}

// Strategies are tried in order on fence-stripped text.
var Strategies = []Strategy{
	{Name: "strict", Parse: ParseStrict},
	{Name: "brace-slice", Parse: ParseBraceSlice},
}

// Candidate picks the text to extract from. Inline base64 data, when present and decodable,
// takes precedence over the text part.
func Candidate(text, inlineData string) string {
	if inlineData != "" {
		if decoded, ok := DecodeInline(inlineData); ok {
			return decoded
		}
	}
	return text
}

// DecodeInline decodes a base64 payload in standard or URL-safe alphabet, padded or not.
func DecodeInline(data string) (string, bool) {
	data = strings.TrimSpace(data)
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(data); err == nil {
			return string(b), true
		}
	}
	return "", false
}

// Object runs the recovery strategies over text and returns the first non-empty object found.
func Object(text string) (json.RawMessage, error) {
	cleaned := StripFences(text)
	if cleaned == "" {
		return nil, ErrEmptyOutput
	}
	for _, s := range Strategies {
		if obj, ok := s.Parse(cleaned); ok {
			return obj, nil
		}
	}
	return nil, ErrNoJSON
}

// IsJSON reports whether text, once fences are stripped, is a single valid JSON value of any kind.
func IsJSON(text string) bool {
	cleaned := StripFences(text)
	return cleaned != "" && gjson.Valid(cleaned)
}

// StripFences removes a leading ```lang marker and a trailing ``` marker.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if i := strings.IndexByte(s, '\n'); i >= 0 && isLanguageTag(s[:i]) {
			s = s[i+1:]
		} else {
			s = strings.TrimLeftFunc(s, unicode.IsLetter)
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func isLanguageTag(s string) bool {
	s = strings.TrimSpace(s)
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

// ParseStrict accepts text that is exactly one non-empty JSON object.
func ParseStrict(text string) (json.RawMessage, bool) {
	return nonEmptyObject(text)
}

// ParseBraceSlice parses the substring between the first '{' and the last '}'.
func ParseBraceSlice(text string) (json.RawMessage, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return nil, false
	}
	return nonEmptyObject(text[start : end+1])
}

func nonEmptyObject(text string) (json.RawMessage, bool) {
	if !gjson.Valid(text) {
		return nil, false
	}
	res := gjson.Parse(text)
	if !res.IsObject() {
		return nil, false
	}
	hasKey := false
	res.ForEach(func(_, _ gjson.Result) bool {
		hasKey = true
		return false
	})
	if !hasKey {
		return nil, false
	}
	return json.RawMessage(strings.TrimSpace(text)), true
}
