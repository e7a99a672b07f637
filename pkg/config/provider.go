package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration of an inversion run
type ConfigData struct {
	Inversion InversionData `json:"inversion"`
	Storage   StorageData   `json:"storage"`
	Run       RunData       `json:"run"`
	Logging   LoggingData   `json:"logging,omitempty"`
	Sensors   []string      `json:"sensors"`
}

// InversionData holds the numerical parameters of the inversion
type InversionData struct {
	HalfLife          float64 `json:"half_life"`
	Wings             int     `json:"wings"`
	PriorScaleFactor  float64 `json:"prior_scale_factor"`
	PriorWeight       float64 `json:"prior_weight"`
	UsePrior          bool    `json:"use_prior"`
	ComputeSnow       bool    `json:"compute_snow"`
	StrictInputChecks bool    `json:"strict_input_checks"`
	MergeSnow         bool    `json:"merge_snow"`
	PreciseZenith     bool    `json:"precise_zenith"`
}

// StorageData locates the accumulator files, products and the catalog
type StorageData struct {
	AccumulatorRoot string `json:"accumulator_root"`
	OutputRoot      string `json:"output_root"`
	PriorRoot       string `json:"prior_root,omitempty"`
	Compress        bool   `json:"compress"`
	CatalogPath     string `json:"catalog_path,omitempty"`
}

// RunData selects the tile and target day to invert. Tile rows lie on
// parallels, so latitude is interpolated linearly between the centres of
// the first and last rows. Longitude is that of the tile centre and is only
// used for the precise zenith.
type RunData struct {
	Tile          string  `json:"tile"`
	Year          int     `json:"year"`
	DoY           int     `json:"doy"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	Workers       int     `json:"workers"`
	NorthLatitude float64 `json:"north_latitude"`
	SouthLatitude float64 `json:"south_latitude"`
	Longitude     float64 `json:"longitude"`
}

// LoggingData configures the optional rotating log file
type LoggingData struct {
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
}

// DefaultConfig returns a configuration populated with the standard
// inversion parameters. Providers start from it so that settings missing
// from a source keep their defaults.
func DefaultConfig() *ConfigData {
	return &ConfigData{
		Inversion: InversionData{
			HalfLife:         11.54,
			Wings:            540,
			PriorScaleFactor: 30,
			PriorWeight:      0.01,
			UsePrior:         true,
		},
		Storage: StorageData{
			AccumulatorRoot: "accumulators",
			OutputRoot:      "albedo",
		},
		Run: RunData{
			Width:   1200,
			Height:  1200,
			Workers: runtime.NumCPU(),
		},
		Sensors: []string{"MERIS", "VGT"},
	}
}

// Validate checks the configuration for values the inversion cannot run with
func (c *ConfigData) Validate() error {
	var problems []string

	inv := c.Inversion
	if !(inv.HalfLife > 0) {
		problems = append(problems, fmt.Sprintf("half-life must be positive, got %v", inv.HalfLife))
	}
	if inv.Wings <= 0 {
		problems = append(problems, fmt.Sprintf("wings must be positive, got %d", inv.Wings))
	}
	if !(inv.PriorScaleFactor > 0) {
		problems = append(problems, fmt.Sprintf("prior scale factor must be positive, got %v", inv.PriorScaleFactor))
	}
	if !(inv.PriorWeight > 0) {
		problems = append(problems, fmt.Sprintf("prior weight must be positive, got %v", inv.PriorWeight))
	}
	if inv.UsePrior && c.Storage.PriorRoot == "" {
		problems = append(problems, "use-prior requires storage prior-root")
	}

	if c.Storage.AccumulatorRoot == "" {
		problems = append(problems, "storage accumulator-root is required")
	}
	if c.Storage.OutputRoot == "" {
		problems = append(problems, "storage output-root is required")
	}

	run := c.Run
	if run.Tile == "" {
		problems = append(problems, "run tile is required")
	}
	if run.Year <= 0 {
		problems = append(problems, fmt.Sprintf("run year must be positive, got %d", run.Year))
	}
	if run.DoY < 1 || run.DoY > 366 {
		problems = append(problems, fmt.Sprintf("run doy must be in 1..366, got %d", run.DoY))
	}
	if run.Width <= 0 || run.Height <= 0 {
		problems = append(problems, fmt.Sprintf("tile size must be positive, got %dx%d", run.Width, run.Height))
	}
	if run.Workers < 0 {
		problems = append(problems, fmt.Sprintf("workers must not be negative, got %d", run.Workers))
	}
	if run.NorthLatitude < -90 || run.NorthLatitude > 90 || run.SouthLatitude < -90 || run.SouthLatitude > 90 {
		problems = append(problems, "latitudes must be within [-90, 90]")
	}
	if run.Longitude < -180 || run.Longitude > 180 {
		problems = append(problems, fmt.Sprintf("longitude must be within [-180, 180], got %v", run.Longitude))
	}

	if len(c.Sensors) == 0 {
		problems = append(problems, "at least one sensor is required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
