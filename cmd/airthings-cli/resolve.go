package main

import (
	"fmt"
	"sort"
	"strings"
)

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.NewReplacer(" ", "_", "-", "_").Replace(name)
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	return name
}

// resolveNamedID maps a human label to an ID. Labels are compared after
// normalization, so "Living Room" matches "living-room".
func resolveNamedID(kind, input string, options map[string]string) (string, error) {
	needle := normalizeName(input)
	var matches []string
	for label, id := range options {
		if normalizeName(label) == needle {
			matches = append(matches, id)
		}
	}
	sort.Strings(matches)
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		available := make([]string, 0, len(options))
		for label := range options {
			available = append(available, label)
		}
		sort.Strings(available)
		return "", fmt.Errorf("%s %q not found. Available: %s", kind, input, strings.Join(available, ", "))
	default:
		return "", fmt.Errorf("%s %q is ambiguous: %s", kind, input, strings.Join(matches, ", "))
	}
}
