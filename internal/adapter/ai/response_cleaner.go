// Package ai provides response cleaning and classification for gateway output.
package ai

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	// fenceRe finds the first fenced block anywhere; wrapRe only matches a
	// fence around the whole text. A language tag needs its own line.
	fenceRe         = regexp.MustCompile("(?s)```(?:[a-zA-Z0-9_-]*[ \t]*\n)?(.*?)```")
	wrapRe          = regexp.MustCompile("(?s)^```(?:[a-zA-Z0-9_-]*[ \t]*\n)?(.*)```$")
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
)

// ResponseCleaner strips the decorations completions tend to wrap around JSON.
type ResponseCleaner struct{}

// NewResponseCleaner creates a new response cleaner.
func NewResponseCleaner() *ResponseCleaner {
	return &ResponseCleaner{}
}

// CleanJSONResponse removes markdown fences and surrounding prose and returns
// the first JSON object in the text. It never fails; callers validate.
func (rc *ResponseCleaner) CleanJSONResponse(response string) string {
	response = strings.TrimSpace(response)
	if m := fenceRe.FindStringSubmatch(response); m != nil {
		response = m[1]
	} else {
		response = rc.unwrapFence(response)
	}
	response = rc.extractJSON(strings.TrimSpace(response))
	if !rc.IsValidJSON(response) {
		response = trailingCommaRe.ReplaceAllString(response, "$1")
	}
	return strings.TrimSpace(response)
}

// StripFences removes a code fence only when it wraps the whole response.
// Fenced snippets inside prose are kept verbatim.
func (rc *ResponseCleaner) StripFences(response string) string {
	return rc.unwrapFence(strings.TrimSpace(response))
}

func (rc *ResponseCleaner) unwrapFence(response string) string {
	if m := wrapRe.FindStringSubmatch(response); m != nil && !strings.Contains(m[1], "```") {
		return strings.TrimSpace(m[1])
	}
	// Unterminated leading fence.
	if strings.HasPrefix(response, "```") && strings.Count(response, "```") == 1 {
		if nl := strings.IndexByte(response, '\n'); nl >= 0 {
			return strings.TrimSpace(response[nl+1:])
		}
		return strings.TrimSpace(strings.TrimLeft(response, "`"))
	}
	return response
}

// extractJSON returns the first balanced {...} object, skipping braces inside strings.
func (rc *ResponseCleaner) extractJSON(response string) string {
	start := strings.IndexByte(response, '{')
	if start == -1 {
		return response
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		c := response[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}
	return response[start:]
}

// IsValidJSON checks if a string is valid JSON.
func (rc *ResponseCleaner) IsValidJSON(response string) bool {
	return json.Valid([]byte(response))
}

// CleanAndValidateJSON cleans a response and reports a JSONValidationError when
// the result still does not parse. The cleaned text is returned either way.
func (rc *ResponseCleaner) CleanAndValidateJSON(response string) (string, error) {
	cleaned := rc.CleanJSONResponse(response)
	if !rc.IsValidJSON(cleaned) {
		return cleaned, &JSONValidationError{
			Original: response,
			Cleaned:  cleaned,
			Message:  "cleaned response is still not valid JSON",
		}
	}
	return cleaned, nil
}

// JSONValidationError represents a JSON validation error.
type JSONValidationError struct {
	Original string
	Cleaned  string
	Message  string
}

func (e *JSONValidationError) Error() string {
	return e.Message
}

var bulletRe = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.+)$`)

// ListItems returns the bullet or numbered lines of a plain-text response with
// markdown emphasis removed.
func ListItems(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		m := bulletRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		item := strings.TrimSpace(strings.ReplaceAll(m[1], "**", ""))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
