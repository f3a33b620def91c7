package phonelist

import (
	"sort"
	"strings"
)

// Departments returns the distinct departments of cs in ascending order.
func Departments(cs []Contact) []string {
	seen := make(map[string]struct{}, len(cs))
	deps := make([]string, 0, len(cs))
	for _, c := range cs {
		if _, ok := seen[c.Department]; ok {
			continue
		}
		seen[c.Department] = struct{}{}
		deps = append(deps, c.Department)
	}
	sort.Strings(deps)
	return deps
}

// LastNameKey is the second word of the name, or the first one when the
// name has a single word.
func LastNameKey(name string) string {
	fs := strings.Fields(name)
	switch len(fs) {
	case 0:
		return ""
	case 1:
		return fs[0]
	default:
		return fs[1]
	}
}

// SortByLastName sorts in place; contacts with equal keys keep their order.
func SortByLastName(cs []Contact) {
	sort.SliceStable(cs, func(i, j int) bool {
		return LastNameKey(cs[i].Name) < LastNameKey(cs[j].Name)
	})
}
