package galley

import "strconv"

// State is the caller-owned, mutable map of per-instance runtime facts:
// hostname, username, port, ssh_key, password, forward_agent, plus any
// driver-specific keys. A key present with a falsy value is distinguishable
// from the key being absent.
type State map[string]any

// Config is the driver configuration, fixed for the lifetime of a driver
// instance.
type Config map[string]any

// NewConfig returns a Config with driver defaults applied underneath the
// provided values.
func NewConfig(values map[string]any) Config {
	cfg := Config{
		"sudo": true,
		"port": 22,
	}
	for k, v := range values {
		cfg[k] = v
	}

	return cfg
}

// String reads key as a string, returning "" when absent or not a string.
func (c Config) String(key string) string {
	return stringValue(c, key)
}

// Bool reads key as a boolean, treating absence as false.
func (c Config) Bool(key string) bool {
	v, ok := c[key]
	if !ok {
		return false
	}

	return truthy(v)
}

// merged overlays st on top of cfg. State wins for every overlapping key.
func merged(cfg Config, st State) map[string]any {
	m := make(map[string]any, len(cfg)+len(st))
	for k, v := range cfg {
		m[k] = v
	}

	for k, v := range st {
		m[k] = v
	}

	return m
}

func stringValue(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}

	return ""
}

// intValue tolerates the numeric shapes that YAML decoding and flag parsing
// produce for the same key.
func intValue(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}

		return n
	}

	return 0
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true" || b == "yes"
	case nil:
		return false
	}

	return true
}
