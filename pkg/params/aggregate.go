// Package params assembles the per-node parameter list carried by a start command.
package params

import (
	"strings"

	"github.com/carverauto/nodesim/pkg/models"
)

// Override is raw operator input for one parameter's bounds. A blank field
// means zero, not "keep the stored value".
type Override struct {
	Min string
	Max string
}

// Aggregate merges bindings with overrides keyed by parameter id. Parameters
// without an override pass through with their stored bounds. Output order
// follows bindings.
func Aggregate(bindings []models.ParameterBinding, overrides map[int]Override) []models.StartParameter {
	out := make([]models.StartParameter, 0, len(bindings))

	for i := range bindings {
		b := &bindings[i]

		p := models.StartParameter{
			Name: b.Name,
			Min:  float64(b.Min),
			Max:  float64(b.Max),
		}

		if o, ok := overrides[b.ID]; ok {
			p.Min = float64(models.ParseBound(o.Min))
			p.Max = float64(models.ParseBound(o.Max))
		}

		out = append(out, p)
	}

	return out
}

// Select keeps only the bindings whose id is in ids, in binding order. A nil
// ids keeps everything.
func Select(bindings []models.ParameterBinding, ids []int) []models.ParameterBinding {
	if ids == nil {
		return bindings
	}

	keep := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}

	out := make([]models.ParameterBinding, 0, len(ids))

	for i := range bindings {
		if _, ok := keep[bindings[i].ID]; ok {
			out = append(out, bindings[i])
		}
	}

	return out
}

// Blank reports whether an override leaves both bounds empty.
func (o Override) Blank() bool {
	return strings.TrimSpace(o.Min) == "" && strings.TrimSpace(o.Max) == ""
}
