// Package precedence folds prioritized configuration layers into one
// validated configuration object.
//
// Layers are applied from the lowest priority to the highest, so a policy
// layer beats a user layer, which beats the environment, and so on:
//
//	fallback (0) < platform (100) < compliance (200) < environment (300) < user (400) < policy (500)
package precedence

import (
	"sort"

	"github.com/cameronsjo/keel/internal/value"
)

// Standard layer names.
const (
	LayerFallback    = "fallback"
	LayerPlatform    = "platform"
	LayerCompliance  = "compliance"
	LayerEnvironment = "environment"
	LayerUser        = "user"
	LayerPolicy      = "policy"
)

// Standard layer priorities.
const (
	PriorityFallback    = 0
	PriorityPlatform    = 100
	PriorityCompliance  = 200
	PriorityEnvironment = 300
	PriorityUser        = 400
	PriorityPolicy      = 500
)

var standardPriorities = map[string]int{
	LayerFallback:    PriorityFallback,
	LayerPlatform:    PriorityPlatform,
	LayerCompliance:  PriorityCompliance,
	LayerEnvironment: PriorityEnvironment,
	LayerUser:        PriorityUser,
	LayerPolicy:      PriorityPolicy,
}

// StandardPriority returns the priority of a standard layer name.
func StandardPriority(name string) (int, bool) {
	p, ok := standardPriorities[name]
	return p, ok
}

// Layer is one named source of configuration.
type Layer struct {
	Name     string
	Priority int
	Values   value.Value
}

// NewLayer creates a layer with the standard priority for name.
// Unknown names get priority 0.
func NewLayer(name string, values value.Value) Layer {
	p, _ := StandardPriority(name)
	return Layer{Name: name, Priority: p, Values: values}
}

// sortLayers returns layers ordered by ascending priority. Layers with the
// same priority keep their input order, so the later one is applied last.
func sortLayers(layers []Layer) []Layer {
	sorted := make([]Layer, len(layers))
	copy(sorted, layers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})
	return sorted
}
