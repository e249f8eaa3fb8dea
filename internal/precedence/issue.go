package precedence

import (
	"fmt"
	"sort"
)

// Severity classifies an Issue.
type Severity string

const (
	// SeverityError marks a configuration that must not be deployed.
	SeverityError Severity = "error"

	// SeverityWarning marks something worth a look that does not block.
	SeverityWarning Severity = "warning"
)

func (s Severity) rank() int {
	if s == SeverityError {
		return 0
	}
	return 1
}

// Issue is one finding about a built configuration.
type Issue struct {
	// Path is the dotted location of the value, empty for the root.
	Path string `json:"path" yaml:"path"`

	Severity Severity `json:"severity" yaml:"severity"`

	Message string `json:"message" yaml:"message"`

	// Layer names the layer that supplied the value, when known.
	Layer string `json:"layer,omitempty" yaml:"layer,omitempty"`
}

// String formats the issue for humans.
func (i Issue) String() string {
	path := i.Path
	if path == "" {
		path = "(root)"
	}
	if i.Layer != "" {
		return fmt.Sprintf("%s: %s: %s [%s]", i.Severity, path, i.Message, i.Layer)
	}
	return fmt.Sprintf("%s: %s: %s", i.Severity, path, i.Message)
}

func sortIssues(issues []Issue) {
	sort.SliceStable(issues, func(a, b int) bool {
		x, y := issues[a], issues[b]
		if x.Path != y.Path {
			return x.Path < y.Path
		}
		if x.Severity.rank() != y.Severity.rank() {
			return x.Severity.rank() < y.Severity.rank()
		}
		return x.Message < y.Message
	})
}

func dedupeIssues(issues []Issue) []Issue {
	seen := make(map[Issue]bool, len(issues))
	out := issues[:0]
	for _, is := range issues {
		if seen[is] {
			continue
		}
		seen[is] = true
		out = append(out, is)
	}
	return out
}
