// Package prior turns a prior BRDF parameter estimate into a diagonal
// normal-equation contribution used to regularize the inversion.
package prior

import (
	"fmt"
	"math"

	"github.com/chrissnell/globalbedo/internal/constants"
	"github.com/chrissnell/globalbedo/internal/types"
)

// Validity flags of a prior pixel.
const (
	FlagValid            = 0.0
	FlagMeanTooLow       = -1.0
	FlagMeanTooHigh      = 1.0
	FlagSnowFractionOdds = -2.0
)

// Params configures the prior contribution.
type Params struct {
	// ScaleFactor and Weight both multiply the prior standard deviation.
	// Weight controls how strongly the prior pulls on the observations:
	// smaller values mean a tighter prior.
	ScaleFactor float64
	Weight      float64
	ComputeSnow bool
}

// DefaultParams returns the standard prior configuration for no-snow mode.
func DefaultParams() Params {
	return Params{
		ScaleFactor: constants.PriorScaleFactor,
		Weight:      constants.PriorWeight,
	}
}

// Validate checks that p describes a usable prior scaling.
func (p Params) Validate() error {
	if !(p.ScaleFactor > 0) {
		return fmt.Errorf("prior scale factor must be positive, got %v", p.ScaleFactor)
	}
	if !(p.Weight > 0) {
		return fmt.Errorf("prior weight must be positive, got %v", p.Weight)
	}
	return nil
}

// Contribution is the normal-equation share of a prior. Mask 0 means the
// prior must not be used for this pixel; it is not an error.
type Contribution struct {
	M    types.Matrix
	V    types.Vector
	Mask int
	Flag float64

	// Covariance is diag(sd²) and Mean the prior mean. The solver falls back
	// to them when the combined system is singular.
	Covariance types.Matrix
	Mean       types.Vector
}

// Usable reports whether c carries a prior contribution.
func (c *Contribution) Usable() bool {
	return c != nil && c.Mask == 1
}

// Regularize builds the contribution of est. A nil estimate, an estimate not
// marked valid, or one failing the snow-fraction or mean checks gives Mask 0.
func Regularize(est *types.PriorEstimate, p Params) Contribution {
	if est == nil || !est.Valid {
		return Contribution{Flag: constants.NoData}
	}

	mean := est.Mean
	sd := est.SD
	for i := range mean {
		if !constants.IsValid(mean[i]) {
			mean[i] = 0
		}
		if !constants.IsValid(sd[i]) {
			sd[i] = 0
		}
	}

	flag := ValidityFlag(mean, est.SnowFraction, p.ComputeSnow)
	c := Contribution{Flag: flag, Mean: mean}
	if flag != FlagValid {
		return c
	}

	for i := range sd {
		if mean[i] > 0 && sd[i] == 0 {
			sd[i] = 1
		}
		s := math.Min(1, sd[i]*p.ScaleFactor*p.Weight)
		c.Covariance[i][i] = s * s
		c.M[i][i] = 1 / (s * s)
		c.V[i] = c.M[i][i] * mean[i]
	}
	c.Mask = 1
	return c
}

// ValidityFlag classifies a prior pixel. A zero mean marks missing prior data
// but does not stop the scan; the first snow-fraction mismatch, mean <= 0 or
// mean > 1 decides the flag.
// A missing snow fraction counts as snow-free.
func ValidityFlag(mean types.Vector, snowFraction float64, computeSnow bool) float64 {
	if !constants.IsValid(snowFraction) {
		snowFraction = 0
	}
	snowOdd := (computeSnow && snowFraction <= constants.SnowFractionMin) ||
		(!computeSnow && snowFraction >= constants.NoSnowFractionMax)

	flag := FlagValid
	for _, m := range mean {
		switch {
		case m == 0:
			flag = constants.NoData
		case snowOdd:
			return FlagSnowFractionOdds
		case m < 0:
			return FlagMeanTooLow
		case m > 1:
			return FlagMeanTooHigh
		}
	}
	return flag
}
