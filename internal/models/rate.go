package models

import (
	"fmt"
	"time"
)

// Rate limit presets between records
const (
	RatePresetConservative = "conservative"
	RatePresetFast         = "fast"
)

// Duration is a time.Duration encoded as a Go duration string in TOML and JSON
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// RateTier is one weighted band of the randomized inter-record delay
type RateTier struct {
	Weight float64  `json:"weight" toml:"weight"`
	Min    Duration `json:"min" toml:"min"`
	Max    Duration `json:"max" toml:"max"`
}

// RatePolicy selects the randomized delay applied between records.
// Explicit Tiers take precedence over Preset.
type RatePolicy struct {
	Preset string     `json:"preset,omitempty" toml:"preset"`
	Tiers  []RateTier `json:"tiers,omitempty" toml:"tiers"`
}

var ratePresets = map[string][]RateTier{
	RatePresetConservative: {
		{Weight: 0.8, Min: Duration(20 * time.Second), Max: Duration(25 * time.Second)},
		{Weight: 0.2, Min: Duration(25 * time.Second), Max: Duration(30 * time.Second)},
	},
	RatePresetFast: {
		{Weight: 1, Min: Duration(5 * time.Second), Max: Duration(10 * time.Second)},
	},
}

// Resolve returns the tiers in effect
func (p RatePolicy) Resolve() ([]RateTier, error) {
	if len(p.Tiers) > 0 {
		return p.Tiers, nil
	}
	preset := p.Preset
	if preset == "" {
		preset = RatePresetConservative
	}
	tiers, ok := ratePresets[preset]
	if !ok {
		return nil, fmt.Errorf("unknown rate limit preset %q", preset)
	}
	return tiers, nil
}

// Validate checks the preset name or the explicit tiers
func (p RatePolicy) Validate() error {
	tiers, err := p.Resolve()
	if err != nil {
		return err
	}
	for i, t := range tiers {
		if t.Weight <= 0 {
			return fmt.Errorf("tier %d: weight must be positive", i)
		}
		if t.Min < 0 || t.Max < t.Min {
			return fmt.Errorf("tier %d: need 0 <= min <= max", i)
		}
	}
	return nil
}
