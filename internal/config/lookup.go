package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Lookup resolves a dotted key such as "app.upload_folder" against the
// YAML view of the configuration.
func (c *Config) Lookup(key string) (any, bool) {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return nil, false
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, false
	}

	var cur any = tree
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the value at key rendered as a string, or def when the key
// is absent or empty.
func (c *Config) String(key, def string) string {
	v, ok := c.Lookup(key)
	if !ok || v == nil {
		return def
	}
	var s string
	switch tv := v.(type) {
	case string:
		s = tv
	case time.Duration:
		s = tv.String()
	default:
		s = fmt.Sprint(tv)
	}
	if s == "" {
		return def
	}
	return s
}
