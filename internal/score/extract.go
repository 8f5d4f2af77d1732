package score

import (
	"regexp"
	"strings"
)

// fenceRe strips a markdown code fence wrapping the whole payload, with or
// without a language tag.
var fenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")

// topObjectRe is the last-resort grab of something object-shaped.
var topObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// ExtractJSON pulls the first JSON object out of a model response. Models
// asked for JSON still like to wrap it in fences or commentary, so the
// extractor peels a code fence, skips leading prose to the first '{', and
// walks to the matching '}' counting depth. The walk tracks string and
// escape state, so braces inside JSON strings do not confuse it. When the
// object never closes, the widest top-level {...} span is returned instead;
// the caller's JSON parser has the final word on validity.
//
// The second return is false when nothing object-shaped is present at all.
func ExtractJSON(raw string) (string, bool) {
	s := raw
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// braces inside strings are literal
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	// Unbalanced: fall back to the greedy top-level match.
	if m := topObjectRe.FindString(s); m != "" {
		return m, true
	}
	return "", false
}
