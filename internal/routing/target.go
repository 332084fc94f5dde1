package routing

import (
	"regexp"
	"strings"
)

// targetIDPattern matches a numeric id in (), [] or full-width （） brackets.
var targetIDPattern = regexp.MustCompile(`\((\d+)\)|\[(\d+)\]|（(\d+)）`)

// ExtractTargetID returns the first bracketed numeric id in text.
func ExtractTargetID(text string) (string, bool) {
	m := targetIDPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	for _, g := range m[1:] {
		if g != "" {
			return g, true
		}
	}
	return "", false
}

// resolveTarget prefers an explicit argument, then the quoted message.
func resolveTarget(explicit, quoted string) (string, bool) {
	if id := strings.TrimSpace(explicit); id != "" {
		if inner, ok := ExtractTargetID(id); ok {
			return inner, true
		}
		return id, true
	}
	return ExtractTargetID(quoted)
}
