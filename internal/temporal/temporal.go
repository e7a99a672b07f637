// Package temporal folds per-day normal-equation systems into one system for
// a target date, weighting each day by an exponential decay in its distance
// from the target.
package temporal

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/chrissnell/globalbedo/internal/constants"
	"github.com/chrissnell/globalbedo/internal/types"
)

// Params configures the temporal fold.
type Params struct {
	// HalfLife is the decay constant in days.
	HalfLife float64
	// Wings is the number of days included on each side of the target date.
	Wings int
}

// DefaultParams returns the standard fold configuration.
func DefaultParams() Params {
	return Params{
		HalfLife: constants.HalfLife,
		Wings:    constants.DefaultWings,
	}
}

// Validate checks that p can be used for a fold.
func (p Params) Validate() error {
	if !(p.HalfLife > 0) || math.IsInf(p.HalfLife, 0) {
		return fmt.Errorf("half-life must be positive, got %v", p.HalfLife)
	}
	if p.Wings < 0 {
		return errors.New("wings must not be negative")
	}
	return nil
}

// DayContribution is the accumulated system of one day, tagged with its
// offset in days from the target date.
type DayContribution struct {
	Offset int
	System types.NormalEquationSystem
}

// DecayWeight returns exp(-|offset|/halfLife).
func DecayWeight(offset float64, halfLife float64) float64 {
	return math.Exp(-math.Abs(offset) / halfLife)
}

// Fold merges days into one system. M, V and E of every day are scaled by
// the decay weight of its offset; Weight is summed as a raw count. Days
// outside the wings are ignored.
//
// ClosestSampleDistance is min(|offset|+1) over days with a positive weight,
// or 0 when none contributes. The fold is a pure reduction: any order or
// chunking of days gives the same result up to rounding.
func Fold(days []DayContribution, p Params) types.NormalEquationSystem {
	var out types.NormalEquationSystem
	for _, d := range days {
		out = out.Add(Contribution(d, p))
	}
	return out
}

// Contribution returns the weighted share of one day, or the zero system if
// the day lies outside the wings.
func Contribution(d DayContribution, p Params) types.NormalEquationSystem {
	dist := abs(d.Offset)
	if dist > p.Wings {
		return types.NormalEquationSystem{}
	}
	s := d.System.Scale(DecayWeight(float64(d.Offset), p.HalfLife))
	s.ClosestSampleDistance = 0
	if d.System.Weight > 0 {
		s.ClosestSampleDistance = dist + 1
	}
	return s
}

// AddDay adds the weighted share of one day to the running sums in acc, pixel
// by pixel. acc and day must have the same length. Folding days into several
// partial sums and adding those together gives the same result as Fold.
func AddDay(acc, day []types.NormalEquationSystem, offset int, p Params) {
	if abs(offset) > p.Wings {
		return
	}
	for i := range day {
		acc[i] = acc[i].Add(Contribution(DayContribution{Offset: offset, System: day[i]}, p))
	}
}

// DayOffset returns the number of calendar days from target to day. It is
// negative for days before the target and spans year boundaries.
func DayOffset(target, day time.Time) int {
	t := civilDay(target)
	d := civilDay(day)
	return int(math.Round(d.Sub(t).Hours() / 24))
}

// Window lists the calendar days of the fold window around target, earliest
// first.
func Window(target time.Time, p Params) []time.Time {
	t := civilDay(target)
	out := make([]time.Time, 0, 2*p.Wings+1)
	for off := -p.Wings; off <= p.Wings; off++ {
		out = append(out, t.AddDate(0, 0, off))
	}
	return out
}

// DateFromYearDay returns the UTC date of day-of-year doy in year.
func DateFromYearDay(year, doy int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, doy-1)
}

func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
