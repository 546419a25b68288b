package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/sentinelrisk/hardstop/internal/sentinelerr"
)

// LocalOverrides is the machine-local override file, sentinel.local.toml:
// per-operator tuning of fetch defaults that should never be checked into
// sources.yaml (e.g. a laptop on a slower network raising timeouts).
type LocalOverrides struct {
	RateLimit struct {
		PerHostMinSeconds int `toml:"per_host_min_seconds"`
		JitterSeconds     int `toml:"jitter_seconds"`
	} `toml:"rate_limit"`
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// LoadLocalOverrides reads sentinel.local.toml at path. A missing file is
// not an error: the file is optional, and callers fall back to
// sources.yaml's defaults block.
func LoadLocalOverrides(path string) (*LocalOverrides, error) {
	var out LocalOverrides
	meta, err := toml.DecodeFile(path, &out)
	if err != nil {
		if os.IsNotExist(err) {
			return &LocalOverrides{}, nil
		}
		return nil, &sentinelerr.ConfigError{Field: "sentinel.local.toml", Cause: err}
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, &sentinelerr.ConfigError{Field: "sentinel.local.toml", Cause: fmt.Errorf("unknown keys: %v", undecoded)}
	}
	return &out, nil
}

// ApplyTo overlays non-zero override fields onto d.
func (o *LocalOverrides) ApplyTo(d Defaults) Defaults {
	if o.RateLimit.PerHostMinSeconds != 0 {
		d.RateLimit.PerHostMinSeconds = o.RateLimit.PerHostMinSeconds
	}
	if o.RateLimit.JitterSeconds != 0 {
		d.RateLimit.JitterSeconds = o.RateLimit.JitterSeconds
	}
	if o.TimeoutSeconds != 0 {
		d.TimeoutSeconds = o.TimeoutSeconds
	}
	return d
}
