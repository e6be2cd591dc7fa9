package parser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractFirstJSON locates the first balanced top-level JSON object in
// text and unmarshals it. Returns (nil, "") when the text contains no
// opening brace at all; a brace that never balances or an object that
// fails to parse returns a warning instead of an error, because missing
// structured fields never abort a run.
func extractFirstJSON(text string) (map[string]interface{}, string) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, ""
	}
	end, ok := scanJSONObject(text, start)
	if !ok {
		return nil, "json object opens but never closes"
	}
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(text[start:end]), &fields); err != nil {
		return nil, fmt.Sprintf("json candidate not parseable: %v", err)
	}
	return fields, ""
}

// scanJSONObject walks text from the opening brace at start, tracking
// brace depth together with string-literal and escape state, and returns
// the index one past the matching close brace. Braces inside string
// literals must not count, so a bare depth counter is not enough.
func scanJSONObject(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	// Quotes, braces, and backslashes are all ASCII, so byte scanning is
	// safe in UTF-8 text.
	for i := start; i < len(text); i++ {
		c := text[i]
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
				return i + 1, true
			}
		}
	}
	return 0, false
}
