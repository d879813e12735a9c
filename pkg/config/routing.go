package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// RoutingConfig holds the provider routing rules. It is loaded once per
// router instance and never mutated by the router; an administrative
// reload rewrites the backing file and constructs a fresh router.
type RoutingConfig struct {
	Providers    map[string]ProviderConfig `json:"providers"`
	StageRouting map[string]StageRoute     `json:"stage_routing"`
	Fallback     FallbackBehavior          `json:"fallback_behavior"`
}

// ProviderConfig is the per-provider switch.
type ProviderConfig struct {
	Enabled  bool `json:"enabled"`
	Priority int  `json:"priority"`
}

// StageRoute is the ordered candidate lists for one task.
type StageRoute struct {
	Primary  []string `json:"primary"`
	Fallback []string `json:"fallback"`
}

// FallbackBehavior controls whole-chain retry.
type FallbackBehavior struct {
	MaxRetries         int   `json:"max_retries"`
	RetryDelayMs       int   `json:"retry_delay_ms"`
	ExponentialBackoff *bool `json:"exponential_backoff,omitempty"`
}

// LoadRoutingConfig reads routing configuration from a JSON file.
func LoadRoutingConfig(path string) (*RoutingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg RoutingConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse routing config: %w", err)
	}

	applyRoutingDefaults(&cfg)
	return &cfg, nil
}

// DefaultRoutingConfig returns the hard-coded routing defaults used when
// no routing file exists: the internal model first, then the external
// providers in priority order.
func DefaultRoutingConfig() *RoutingConfig {
	cfg := &RoutingConfig{
		Providers: map[string]ProviderConfig{
			"internal":   {Enabled: true, Priority: 1},
			"openrouter": {Enabled: true, Priority: 2},
			"gemini":     {Enabled: true, Priority: 3},
			"groq":       {Enabled: true, Priority: 4},
		},
		StageRouting: map[string]StageRoute{
			"stage0_validation":      {Primary: []string{"internal"}, Fallback: []string{"openrouter", "gemini", "groq"}},
			"stage1_normal_abnormal": {Primary: []string{"internal"}, Fallback: []string{"openrouter", "gemini", "groq"}},
			"stage2_category":        {Primary: []string{"gemini"}, Fallback: []string{"openrouter", "internal"}},
			"stage3_diagnosis":       {Primary: []string{"gemini"}, Fallback: []string{"openrouter", "internal"}},
			"stage4_fusion":          {Primary: []string{"openrouter"}, Fallback: []string{"groq", "internal"}},
		},
		Fallback: FallbackBehavior{MaxRetries: 3},
	}

	applyRoutingDefaults(cfg)
	return cfg
}

func applyRoutingDefaults(cfg *RoutingConfig) {
	if cfg == nil {
		return
	}
	if cfg.Fallback.MaxRetries == 0 {
		cfg.Fallback.MaxRetries = 3
	}
	if cfg.Fallback.RetryDelayMs == 0 {
		cfg.Fallback.RetryDelayMs = 500
	}
	if cfg.Fallback.ExponentialBackoff == nil {
		enabled := true
		cfg.Fallback.ExponentialBackoff = &enabled
	}
}

// Route returns the candidate lists for a task; an unconfigured task
// routes to the internal model alone.
func (c *RoutingConfig) Route(task string) StageRoute {
	if c != nil {
		if route, ok := c.StageRouting[task]; ok && len(route.Primary) > 0 {
			return route
		}
		if route, ok := c.StageRouting[task]; ok {
			route.Primary = []string{"internal"}
			return route
		}
	}
	return StageRoute{Primary: []string{"internal"}}
}

// ProviderEnabled reports whether a provider may be used. Providers absent
// from the config default to enabled.
func (c *RoutingConfig) ProviderEnabled(name string) bool {
	if c == nil {
		return true
	}
	pc, ok := c.Providers[name]
	if !ok {
		return true
	}
	return pc.Enabled
}

// ExponentialBackoffEnabled reports whether whole-chain retries back off
// exponentially (the default) or sleep a flat delay.
func (c *RoutingConfig) ExponentialBackoffEnabled() bool {
	if c == nil || c.Fallback.ExponentialBackoff == nil {
		return true
	}
	return *c.Fallback.ExponentialBackoff
}
