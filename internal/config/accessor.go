package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// GetByPath looks up a value by its dot-separated JSON path, e.g.
// "enrichment.retryAttempts" or "providers.gemini.defaultModel".
func GetByPath(cfg *Config, path string) (any, error) {
	tree, err := toTree(cfg)
	if err != nil {
		return nil, err
	}

	var node any = tree
	for _, key := range strings.Split(path, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot descend into %T at %q", node, key)
		}
		node, ok = m[key]
		if !ok {
			return nil, fmt.Errorf("key not found: %s", path)
		}
	}
	return node, nil
}

// Sanitize returns a copy of the config with the bot token and provider API
// keys masked, suitable for printing.
func Sanitize(cfg *Config) *Config {
	data, err := json.Marshal(cfg)
	if err != nil {
		return cfg
	}
	var out Config
	if err := json.Unmarshal(data, &out); err != nil {
		return cfg
	}

	out.Telegram.Token = maskString(out.Telegram.Token)
	for name, pc := range out.Providers {
		pc.APIKey = maskString(pc.APIKey)
		out.Providers[name] = pc
	}
	return &out
}

func toTree(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// maskString keeps the first and last 4 characters of long secrets.
func maskString(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "***"
	default:
		return s[:4] + "****" + s[len(s)-4:]
	}
}
