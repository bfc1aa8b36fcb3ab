package provider

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Override adjusts one provider's default settings. Nil fields keep the
// built-in value.
type Override struct {
	Priority  *int           `yaml:"priority"`
	RateLimit *int           `yaml:"rate_limit"`
	Window    *time.Duration `yaml:"window"`
	CostHint  *float64       `yaml:"cost_hint"`
	Enabled   *bool          `yaml:"enabled"`
}

// Overrides is the PROVIDERS_FILE document:
//
//	providers:
//	  google:
//	    priority: 2
//	    rate_limit: 50
//	  libre:
//	    enabled: false
type Overrides struct {
	Providers map[string]Override `yaml:"providers"`
}

// LoadOverrides reads a YAML overrides file. An empty path yields no overrides.
func LoadOverrides(path string) (Overrides, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Overrides{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Overrides{}, fmt.Errorf("read providers file %s: %w", path, err)
	}
	return ParseOverrides(data)
}

func ParseOverrides(data []byte) (Overrides, error) {
	var out Overrides
	if err := yaml.Unmarshal(data, &out); err != nil {
		return Overrides{}, fmt.Errorf("parse providers file: %w", err)
	}
	normalized := make(map[string]Override, len(out.Providers))
	for id, o := range out.Providers {
		key := normalizeProviderID(id)
		if key == "" {
			return Overrides{}, fmt.Errorf("providers file has an empty provider id")
		}
		if o.RateLimit != nil && *o.RateLimit < 0 {
			return Overrides{}, fmt.Errorf("provider %s: rate_limit must be >= 0", key)
		}
		if o.Window != nil && *o.Window <= 0 {
			return Overrides{}, fmt.Errorf("provider %s: window must be > 0", key)
		}
		normalized[key] = o
	}
	out.Providers = normalized
	return out, nil
}

// Apply returns s with the override for id layered on top.
func (o Overrides) Apply(id string, s Settings) Settings {
	ov, ok := o.Providers[normalizeProviderID(id)]
	if !ok {
		return s
	}
	if ov.Priority != nil {
		s.Priority = *ov.Priority
	}
	if ov.RateLimit != nil {
		s.RateLimit = *ov.RateLimit
	}
	if ov.Window != nil {
		s.Window = *ov.Window
	}
	if ov.CostHint != nil {
		s.CostHint = *ov.CostHint
	}
	if ov.Enabled != nil {
		s.Disabled = !*ov.Enabled
	}
	return s
}
