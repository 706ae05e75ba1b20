// Package cfgutil pulls typed values out of the map[string]any config
// blob each adapter receives from pkg/adapter.AdapterSpec.Config,
// matching the fail-fast "config['key']" access pattern the original
// Python adapters use throughout adapters/input and adapters/output.
package cfgutil

import "fmt"

// String returns cfg[key] as a string, or def if absent.
func String(cfg map[string]any, key, def string) string {
	v, ok := cfg[key]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// RequiredString returns cfg[key] as a string, failing fast if it is
// missing or empty, matching the original's "config['key']" KeyError.
func RequiredString(cfg map[string]any, key string) (string, error) {
	v, ok := cfg[key]
	if !ok {
		return "", fmt.Errorf("missing required config key %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("config key %q must be a non-empty string", key)
	}
	return s, nil
}

// Int returns cfg[key] as an int, or def if absent or the wrong type.
// YAML/JSON decode numeric values as float64, so both are accepted.
func Int(cfg map[string]any, key string, def int) int {
	v, ok := cfg[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return def
	}
}

// Float64 returns cfg[key] as a float64, or def if absent or the wrong type.
func Float64(cfg map[string]any, key string, def float64) float64 {
	v, ok := cfg[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return def
	}
}

// Bool returns cfg[key] as a bool, or def if absent or the wrong type.
func Bool(cfg map[string]any, key string, def bool) bool {
	v, ok := cfg[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// StringMap returns cfg[key] as a map[string]string, skipping any
// entry whose value isn't a string. Used for devices: {name: ip} style
// config blocks.
func StringMap(cfg map[string]any, key string) map[string]string {
	out := map[string]string{}
	raw, ok := cfg[key]
	if !ok {
		return out
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return out
	}
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// StringSlice returns cfg[key] as a []string, skipping non-string
// entries. Accepts both []string and []any (the latter from YAML).
func StringSlice(cfg map[string]any, key string) []string {
	raw, ok := cfg[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
