package policy

import (
	"sort"
	"strings"
)

// Roster is the static set of operators allowed to claim users.
type Roster struct {
	ids map[string]struct{}
}

// NewRoster builds the roster from configured operators. When none are
// configured it falls back to the platform admins, keeping only numeric ids.
func NewRoster(operatorIDs, adminIDs []string) Roster {
	ids := make(map[string]struct{})
	for _, id := range operatorIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids[id] = struct{}{}
		}
	}
	if len(ids) == 0 {
		for _, id := range adminIDs {
			if id = strings.TrimSpace(id); isDigits(id) {
				ids[id] = struct{}{}
			}
		}
	}
	return Roster{ids: ids}
}

func (r Roster) IsOperator(id string) bool {
	_, ok := r.ids[strings.TrimSpace(id)]
	return ok
}

// IDs returns the operators in a stable order.
func (r Roster) IDs() []string {
	out := make([]string, 0, len(r.ids))
	for id := range r.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r Roster) Len() int { return len(r.ids) }

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
