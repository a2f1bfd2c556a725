// Package extract turns LLM output into validated statement data. It
// hosts the balanced-brace JSON scanner, the canonical-shape schema
// check, and the agent stage runner.
package extract

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when no parseable JSON object is found in the
// model output.
var ErrNoJSON = errors.New("no JSON object found in model output")

// JSON finds and decodes the first balanced JSON object embedded in s.
// Models often wrap their JSON in prose or markdown fences; the scanner
// tracks brace depth with full string/escape awareness and tries each
// balanced candidate until one decodes. On failure an empty map and
// ErrNoJSON are returned.
func JSON(s string) (map[string]any, error) {
	for start := 0; start < len(s); {
		open := strings.IndexByte(s[start:], '{')
		if open < 0 {
			break
		}
		open += start

		end, ok := scanBalanced(s, open)
		if !ok {
			break
		}

		var out map[string]any
		if err := json.Unmarshal([]byte(s[open:end]), &out); err == nil {
			return out, nil
		}
		start = open + 1
	}
	return map[string]any{}, ErrNoJSON
}

// scanBalanced returns the index just past the brace that closes the
// object opening at start, honoring JSON string literals and escapes.
func scanBalanced(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
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
