package gradio

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FunctionMap resolves Gradio api names to their fn_index.
type FunctionMap map[string]int

// descriptor is the subset of GET /config the client needs.
type descriptor struct {
	Dependencies []struct {
		ID      *int    `json:"id"`
		APIName *string `json:"api_name"`
	} `json:"dependencies"`
}

// ParseConfig builds a FunctionMap from a /config response body. Entries
// without an api name are skipped; entries without an id use their position.
func ParseConfig(body []byte) (FunctionMap, error) {
	var d descriptor
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	fm := make(FunctionMap, len(d.Dependencies))
	for i, dep := range d.Dependencies {
		if dep.APIName == nil {
			continue
		}
		name := normalizeName(*dep.APIName)
		if name == "" {
			continue
		}
		idx := i
		if dep.ID != nil {
			idx = *dep.ID
		}
		fm[name] = idx
	}
	return fm, nil
}

// Lookup resolves name, ignoring surrounding spaces and a leading slash.
func (fm FunctionMap) Lookup(name string) (int, bool) {
	idx, ok := fm[normalizeName(name)]
	return idx, ok
}

// Names returns the known function names in sorted order.
func (fm FunctionMap) Names() []string {
	names := make([]string, 0, len(fm))
	for n := range fm {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func normalizeName(name string) string {
	return strings.TrimLeft(strings.TrimSpace(name), "/")
}
