package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ignite/internal/ir"
)

// readParams reads module parameters from a YAML (or JSON) file keyed by
// module id:
//
//	Token:
//	  supply: 1000000
//	  owner: "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
func readParams(path string) (map[string]ir.Object, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read parameters: %w", err)
	}

	var raw map[string]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse parameters %s: %w", path, err)
	}

	params := make(map[string]ir.Object, len(raw))
	for moduleID, values := range raw {
		obj := make(ir.Object, len(values))
		for name, v := range values {
			val, err := ir.FromGo(normalizeYAML(v))
			if err != nil {
				return nil, fmt.Errorf("parameter %s.%s: %w", moduleID, name, err)
			}
			obj[name] = val
		}
		params[moduleID] = obj
	}
	return params, nil
}

// normalizeYAML converts the map[any]any nodes yaml.v3 may produce for
// non-string keys into map[string]any.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, e := range val {
			val[k] = normalizeYAML(e)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[fmt.Sprint(k)] = normalizeYAML(e)
		}
		return out
	case []any:
		for i, e := range val {
			val[i] = normalizeYAML(e)
		}
		return val
	default:
		return v
	}
}
