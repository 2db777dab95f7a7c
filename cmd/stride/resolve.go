package main

import (
	"strings"
)

// resolveTaskID expands a unique id prefix to the full task id. Exact
// matches win over prefix matches; an ambiguous prefix is fatal.
func resolveTaskID(arg string) string {
	tasks := engine.Tasks()

	var matches []string
	for _, t := range tasks {
		if t.ID == arg {
			return arg
		}
		if strings.HasPrefix(t.ID, arg) {
			matches = append(matches, t.ID)
		}
	}

	switch len(matches) {
	case 0:
		// Let the operation report vanished-task semantics itself.
		return arg
	case 1:
		return matches[0]
	default:
		FatalError("ambiguous id %q matches %d tasks", arg, len(matches))
		return ""
	}
}
