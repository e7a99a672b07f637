// Package pipeline runs the inversion chain over single pixels and whole
// tiles: per-day accumulation, temporal fold, prior regularization,
// inversion and albedo derivation.
package pipeline

import (
	"fmt"
	"time"

	"github.com/chrissnell/globalbedo/internal/inversion"
	"github.com/chrissnell/globalbedo/internal/observation"
	"github.com/chrissnell/globalbedo/internal/prior"
	"github.com/chrissnell/globalbedo/internal/temporal"
	"github.com/chrissnell/globalbedo/pkg/config"
	"github.com/chrissnell/globalbedo/pkg/solar"
)

// Mode names the snow handling of a product.
type Mode string

const (
	ModeNoSnow Mode = "nosnow"
	ModeSnow   Mode = "snow"
	ModeMerged Mode = "merged"
)

// Settings is the immutable configuration of the chain.
type Settings struct {
	Temporal          temporal.Params
	Prior             prior.Params
	UsePrior          bool
	StrictInputChecks bool

	// ComputeSnow selects snow mode; MergeSnow runs both modes and blends
	// them and takes precedence.
	ComputeSnow bool
	MergeSnow   bool

	// PreciseZenith evaluates the solar zenith at the true local solar noon
	// of the pixel longitude instead of the fixed 12:00 approximation.
	PreciseZenith bool

	Workers int
}

// DefaultSettings returns the standard chain configuration: snow-free mode
// with the prior enabled.
func DefaultSettings() Settings {
	return Settings{
		Temporal: temporal.DefaultParams(),
		Prior:    prior.DefaultParams(),
		UsePrior: true,
	}
}

// SettingsFromConfig builds Settings from the run configuration.
func SettingsFromConfig(c *config.ConfigData) (Settings, error) {
	s := Settings{
		Temporal: temporal.Params{
			HalfLife: c.Inversion.HalfLife,
			Wings:    c.Inversion.Wings,
		},
		Prior: prior.Params{
			ScaleFactor: c.Inversion.PriorScaleFactor,
			Weight:      c.Inversion.PriorWeight,
		},
		UsePrior:          c.Inversion.UsePrior,
		StrictInputChecks: c.Inversion.StrictInputChecks,
		ComputeSnow:       c.Inversion.ComputeSnow,
		MergeSnow:         c.Inversion.MergeSnow,
		PreciseZenith:     c.Inversion.PreciseZenith,
		Workers:           c.Run.Workers,
	}
	if err := s.Temporal.Validate(); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	if err := s.Prior.Validate(); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	return s, nil
}

// Mode returns the mode of the final product.
func (s Settings) Mode() Mode {
	switch {
	case s.MergeSnow:
		return ModeMerged
	case s.ComputeSnow:
		return ModeSnow
	default:
		return ModeNoSnow
	}
}

// SnowModes lists the snow flags the chain inverts, snow-free first.
func (s Settings) SnowModes() []bool {
	switch s.Mode() {
	case ModeMerged:
		return []bool{false, true}
	case ModeSnow:
		return []bool{true}
	default:
		return []bool{false}
	}
}

// Location is the geographic position of a pixel in degrees, east positive.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Zenith returns the solar zenith angle in degrees used for the albedo of a
// pixel at loc on day.
func (s Settings) Zenith(loc Location, day time.Time) float64 {
	if s.PreciseZenith {
		return solar.TrueNoonZenith(day, loc.Latitude, loc.Longitude)
	}
	return solar.NoonZenith(loc.Latitude, day.YearDay())
}

func (s Settings) observationOptions(snow bool) observation.Options {
	return observation.Options{ComputeSnow: snow, StrictInputChecks: s.StrictInputChecks}
}

func (s Settings) priorParams(snow bool) prior.Params {
	p := s.Prior
	p.ComputeSnow = snow
	return p
}

func (s Settings) inversionOptions() inversion.Options {
	return inversion.Options{UsePrior: s.UsePrior}
}

func modeOf(snow bool) Mode {
	if snow {
		return ModeSnow
	}
	return ModeNoSnow
}
