package enrich

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var (
	fencedBlock   = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.+?)\\s*```")
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
	bareKey       = regexp.MustCompile(`([{,]\s*)([A-Za-z_]\w*)(\s*:)`)
	controlChars  = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)
)

var errNoJSON = errors.New("no JSON object in model output")

// decodeModelJSON decodes a JSON object out of raw model output. Models in
// JSON mode usually return a bare object, but code fences, a sentence of
// preamble and trailing commas all turn up in practice.
func decodeModelJSON(raw string, target any) error {
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))
	if raw == "" {
		return errNoJSON
	}

	candidates := []string{raw}
	if m := fencedBlock.FindStringSubmatch(raw); len(m) > 1 {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if obj := firstObject(raw); obj != "" {
		candidates = append(candidates, obj, repairJSON(obj))
	}

	var lastErr error
	for _, c := range candidates {
		if c == "" {
			continue
		}
		err := json.Unmarshal([]byte(c), target)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errNoJSON
	}
	return lastErr
}

// firstObject returns the first balanced {...} span, ignoring braces inside
// string literals.
func firstObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// repairJSON fixes the usual model mistakes: trailing commas, unquoted keys
// and stray control characters.
func repairJSON(s string) string {
	s = trailingComma.ReplaceAllString(s, "$1")
	s = bareKey.ReplaceAllString(s, `$1"$2"$3`)
	return controlChars.ReplaceAllString(s, "")
}
