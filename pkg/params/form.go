package params

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/carverauto/nodesim/pkg/models"
)

var (
	// ErrUnknownParameter is returned when a form names no known binding.
	ErrUnknownParameter = errors.New("unknown parameter")
	// ErrMalformedBounds is returned when a bounds entry is not "min:max".
	ErrMalformedBounds = errors.New("malformed bounds")
)

// ParseForm reads an operator parameter form against the known bindings.
//
// The form is a space or comma separated list of entries. Each entry names
// a parameter by name or id, optionally followed by "=min:max":
//
//	temperature=0:35 humidity 3=:10
//
// Named parameters are selected; the rest are left out of the start
// command. A blank form selects every parameter with its stored bounds and
// returns nil ids.
func ParseForm(bindings []models.ParameterBinding, form string) ([]int, map[int]Override, error) {
	entries := strings.FieldsFunc(form, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(entries) == 0 {
		return nil, nil, nil
	}

	ids := make([]int, 0, len(entries))
	overrides := make(map[int]Override)
	seen := make(map[int]struct{}, len(entries))

	for _, entry := range entries {
		name, bounds, hasBounds := strings.Cut(entry, "=")

		id, ok := lookup(bindings, name)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrUnknownParameter, name)
		}

		if hasBounds {
			lo, hi, ok := strings.Cut(bounds, ":")
			if !ok {
				return nil, nil, fmt.Errorf("%w: %s", ErrMalformedBounds, entry)
			}

			overrides[id] = Override{Min: lo, Max: hi}
		}

		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	return ids, overrides, nil
}

func lookup(bindings []models.ParameterBinding, key string) (int, bool) {
	if n, err := strconv.Atoi(key); err == nil {
		for i := range bindings {
			if bindings[i].ID == n {
				return n, true
			}
		}

		return 0, false
	}

	for i := range bindings {
		if strings.EqualFold(bindings[i].Name, key) {
			return bindings[i].ID, true
		}
	}

	return 0, false
}
