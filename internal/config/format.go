package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml"
	yaml "go.yaml.in/yaml/v3"
)

// coerceToJSON converts YAML/TOML config to JSON bytes so a single strict
// JSON decoder (DisallowUnknownFields) serves every format.
func coerceToJSON(path string, data []byte) ([]byte, error) {
	var v any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("yaml unmarshal: %w", err)
		}
	case ".toml":
		tree, err := toml.LoadBytes(data)
		if err != nil {
			return nil, fmt.Errorf("toml unmarshal: %w", err)
		}
		v = tree.ToMap()
	default:
		return data, nil
	}

	j, err := json.Marshal(normalize(v))
	if err != nil {
		return nil, fmt.Errorf("config to json: %w", err)
	}
	return j, nil
}

// normalize makes every map key a string so the value can be JSON-marshaled.
func normalize(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalize(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = normalize(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = normalize(x[i])
		}
		return x
	default:
		return in
	}
}
