package jit

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config's tunables in a form `jit.toml` can set; keys
// absent from the file keep DefaultConfig's value, while a key the file
// sets, even to 0 or false, overrides it, so a config file only needs to
// name what it overrides.
type FileConfig struct {
	Enabled           *bool `toml:"enabled"`
	OptimizationLevel *int  `toml:"optimization_level"`
	InlineThreshold   *int  `toml:"inline_threshold"`
	HotspotThreshold  *int  `toml:"hotspot_threshold"`
	MaxSpillSlots     *int  `toml:"max_spill_slots"`
}

// LoadJITConfig reads path as TOML and overlays it onto DefaultConfig.
func LoadJITConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("jit: failed to read config file: %w", err)
	}

	var fc FileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("jit: failed to parse config file: %w", err)
	}

	cfg := DefaultConfig()
	if fc.Enabled != nil {
		cfg.Enabled = *fc.Enabled
	}
	if fc.OptimizationLevel != nil {
		cfg.OptimizationLevel = *fc.OptimizationLevel
	}
	if fc.InlineThreshold != nil {
		cfg.InlineThreshold = *fc.InlineThreshold
	}
	if fc.HotspotThreshold != nil {
		cfg.HotspotThreshold = *fc.HotspotThreshold
	}
	if fc.MaxSpillSlots != nil {
		cfg.MaxSpillSlots = *fc.MaxSpillSlots
	}
	return cfg, nil
}
