// Package config loads and validates the two configuration layers the
// pipeline reads at startup: sources.yaml (the §6 source-configuration
// schema) and a per-machine sentinel.local.toml override, plus a watcher
// that hot-reloads sources.yaml between ingest batches.
package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sentinelrisk/hardstop/internal/sentinelerr"
	"github.com/sentinelrisk/hardstop/internal/types"
)

// RateLimit mirrors §6's defaults.rate_limit block.
type RateLimit struct {
	PerHostMinSeconds int `yaml:"per_host_min_seconds"`
	JitterSeconds     int `yaml:"jitter_seconds"`
}

// Defaults mirrors §6's defaults block.
type Defaults struct {
	RateLimit        RateLimit `yaml:"rate_limit"`
	TimeoutSeconds   int       `yaml:"timeout_seconds"`
	UserAgent        string    `yaml:"user_agent"`
	MaxItemsPerFetch int       `yaml:"max_items_per_fetch"`
}

// SourceEntry is one entry under a tier in §6's source-configuration schema.
type SourceEntry struct {
	ID                  string    `yaml:"id"`
	Type                string    `yaml:"type"`
	URL                 string    `yaml:"url"`
	Tier                types.Tier `yaml:"tier"`
	Enabled             *bool     `yaml:"enabled,omitempty"`
	TrustTier           int       `yaml:"trust_tier,omitempty"`
	ClassificationFloor int       `yaml:"classification_floor,omitempty"`
	WeightingBias       int       `yaml:"weighting_bias,omitempty"`
	Geo                 struct {
		City    string `yaml:"city"`
		State   string `yaml:"state"`
		Country string `yaml:"country"`
	} `yaml:"geo,omitempty"`
}

// SourcesFile is the root of sources.yaml.
type SourcesFile struct {
	Version  string                   `yaml:"version"`
	Defaults Defaults                 `yaml:"defaults"`
	Tiers    map[string][]SourceEntry `yaml:"tiers"`
}

// Validate enforces §6's schema requirements: a version is present, every
// tier key is global, regional, or local, every source needs an id and a
// type, and trust_tier, when set, must be 1-3. An entry's own tier field is
// not checked against the tier key it appears under.
func (f *SourcesFile) Validate() error {
	if f.Version == "" {
		return &sentinelerr.ConfigError{Field: "version", Cause: fmt.Errorf("version is required")}
	}
	for tierKey, entries := range f.Tiers {
		if tierKey != "global" && tierKey != "regional" && tierKey != "local" {
			return &sentinelerr.ConfigError{Field: "tiers", Cause: fmt.Errorf("unknown tier key %q", tierKey)}
		}
		for _, e := range entries {
			if e.ID == "" {
				return &sentinelerr.ConfigError{Field: "tiers." + tierKey + ".id", Cause: fmt.Errorf("source id is required")}
			}
			if e.Type == "" {
				return &sentinelerr.ConfigError{Field: "tiers." + tierKey + ".type", Cause: fmt.Errorf("source %s: type is required", e.ID)}
			}
			if e.TrustTier != 0 && (e.TrustTier < 1 || e.TrustTier > 3) {
				return &sentinelerr.ConfigError{Field: "tiers." + tierKey + ".trust_tier", Cause: fmt.Errorf("source %s: trust_tier must be 1-3, got %d", e.ID, e.TrustTier)}
			}
		}
	}
	return nil
}

// SourceRegistry resolves a source id to its SourceConfig, satisfying
// internal/ingest.SourceResolver.
type SourceRegistry struct {
	byID map[string]types.SourceConfig
}

// Resolve implements ingest.SourceResolver.
func (r *SourceRegistry) Resolve(sourceID string) (types.SourceConfig, bool) {
	cfg, ok := r.byID[sourceID]
	return cfg, ok
}

// Sources returns every enabled source, ordered by tier key (then id) for
// determinism.
func (r *SourceRegistry) Sources() []types.SourceConfig {
	out := make([]types.SourceConfig, 0, len(r.byID))
	for _, cfg := range r.byID {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tier != out[j].Tier {
			return out[i].Tier < out[j].Tier
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// NewSourceRegistry builds a registry from a parsed SourcesFile.
func NewSourceRegistry(f *SourcesFile) *SourceRegistry {
	reg := &SourceRegistry{byID: map[string]types.SourceConfig{}}
	for tierKey, entries := range f.Tiers {
		for _, e := range entries {
			enabled := true
			if e.Enabled != nil {
				enabled = *e.Enabled
			}
			if !enabled {
				continue
			}
			trustTier := e.TrustTier
			if trustTier == 0 {
				trustTier = 2
			}
			tier := e.Tier
			if tier == "" {
				tier = types.Tier(tierKey)
			}
			reg.byID[e.ID] = types.SourceConfig{
				ID:                  e.ID,
				Type:                e.Type,
				URL:                 e.URL,
				Tier:                tier,
				Enabled:             enabled,
				TrustTier:           trustTier,
				ClassificationFloor: e.ClassificationFloor,
				WeightingBias:       e.WeightingBias,
				GeoCity:             e.Geo.City,
				GeoState:            e.Geo.State,
				GeoCountry:          e.Geo.Country,
			}
		}
	}
	return reg
}

// LoadSourcesFile reads and validates sources.yaml at path, using
// gopkg.in/yaml.v3 directly (viper's own yaml codec is used only for the
// merged runtime view returned by LoadSourcesViper).
func LoadSourcesFile(path string) (*SourcesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &sentinelerr.ConfigError{Field: "sources.yaml", Cause: err}
	}
	var f SourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &sentinelerr.ConfigError{Field: "sources.yaml", Cause: err}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadSourcesViper reads sources.yaml through viper, the way the pipeline's
// CLI layer binds config so flags and environment variables can override
// individual defaults (e.g. SENTINEL_DEFAULTS_TIMEOUT_SECONDS) without a
// second parsing pass.
func LoadSourcesViper(path string) (*viper.Viper, *SourcesFile, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SENTINEL")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, &sentinelerr.ConfigError{Field: "sources.yaml", Cause: err}
	}

	var f SourcesFile
	if err := v.Unmarshal(&f); err != nil {
		return nil, nil, &sentinelerr.ConfigError{Field: "sources.yaml", Cause: err}
	}
	if err := f.Validate(); err != nil {
		return nil, nil, err
	}
	return v, &f, nil
}
