package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// toStrictJSON funnels the config file through a single representation:
// YAML input is converted to JSON bytes so that both formats go through the
// same DisallowUnknownFields decoder in Manager.Parse. JSON input passes
// through untouched.
//
// The format is decided by extension (.json vs .yaml/.yml); anything else is
// sniffed — delayd is often pointed at paths like "/etc/delayd/config" with
// no extension at all.
func toStrictJSON(path string, data []byte) ([]byte, string, error) {
	if detectFormat(path, data) == "json" {
		return data, "json", nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, "yaml", fmt.Errorf("yaml unmarshal: %w", err)
	}

	v = stringifyKeys(v)

	j, err := json.Marshal(v)
	if err != nil {
		return nil, "yaml", fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, "yaml", nil
}

func detectFormat(path string, data []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	}
	// No recognized extension: a JSON config must open with an object.
	if bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("{")) {
		return "json"
	}
	return "yaml"
}

// stringifyKeys rewrites YAML maps so every key is a string; json.Marshal
// refuses map[any]any, which the YAML decoder produces for non-scalar keys.
func stringifyKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = stringifyKeys(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = stringifyKeys(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = stringifyKeys(x[i])
		}
		return x
	default:
		return in
	}
}
