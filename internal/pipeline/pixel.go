package pipeline

import (
	"sort"
	"time"

	"github.com/chrissnell/globalbedo/internal/albedo"
	"github.com/chrissnell/globalbedo/internal/inversion"
	"github.com/chrissnell/globalbedo/internal/observation"
	"github.com/chrissnell/globalbedo/internal/prior"
	"github.com/chrissnell/globalbedo/internal/temporal"
	"github.com/chrissnell/globalbedo/internal/types"
)

// DatedObservation is an observation of a pixel on a calendar day.
type DatedObservation struct {
	Date        time.Time
	Observation observation.Observation
}

// Priors holds the prior estimates of a pixel for each snow mode. Either may
// be nil.
type Priors struct {
	NoSnow *types.PriorEstimate
	Snow   *types.PriorEstimate
}

func (p Priors) forMode(snow bool) *types.PriorEstimate {
	if snow {
		return p.Snow
	}
	return p.NoSnow
}

// ModeResult is the outcome of one snow mode for a pixel.
type ModeResult struct {
	Mode      Mode
	Full      types.NormalEquationSystem
	Prior     prior.Contribution
	Inversion types.InversionResult
	Albedo    types.AlbedoResult
}

// PixelOutcome is the outcome of the chain for a pixel. Albedo is the final
// product: the merged one in merge mode, else that of the single mode.
type PixelOutcome struct {
	Modes  []ModeResult
	Albedo types.AlbedoResult
}

// AccumulateDays turns the observations of a pixel into one accumulated
// system per calendar day, each tagged with its offset from target, earliest
// first. reasons[i] is the outcome of obs[i].
func AccumulateDays(obs []DatedObservation, target time.Time, opts observation.Options) (days []temporal.DayContribution, reasons []observation.Reason) {
	byOffset := make(map[int]types.NormalEquationSystem)
	reasons = make([]observation.Reason, len(obs))
	for i, o := range obs {
		sys, reason := observation.Accumulate(o.Observation, opts)
		reasons[i] = reason
		if reason != observation.Accepted {
			continue
		}
		off := temporal.DayOffset(target, o.Date)
		byOffset[off] = byOffset[off].Add(sys)
	}

	days = make([]temporal.DayContribution, 0, len(byOffset))
	for off, sys := range byOffset {
		days = append(days, temporal.DayContribution{Offset: off, System: sys})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Offset < days[j].Offset })
	return days, reasons
}

// RunPixel runs the chain for a single pixel at loc for the target date.
func RunPixel(obs []DatedObservation, target time.Time, priors Priors, loc Location, s Settings, stats *Stats) PixelOutcome {
	sza := s.Zenith(loc, target)

	// An observation counts once per pixel: accepted if any mode used it,
	// else rejected for the reason of the first mode.
	var (
		out     PixelOutcome
		reasons []observation.Reason
	)
	for _, snow := range s.SnowModes() {
		days, rs := AccumulateDays(obs, target, s.observationOptions(snow))
		if reasons == nil {
			reasons = rs
		} else {
			for i, r := range rs {
				if r == observation.Accepted {
					reasons[i] = r
				}
			}
		}
		full := temporal.Fold(days, s.Temporal)
		out.Modes = append(out.Modes, invertMode(full, priors.forMode(snow), sza, s, snow, stats))
	}
	if stats != nil {
		for _, r := range reasons {
			stats.countObservation(r)
		}
	}

	out.Albedo = finalAlbedo(out.Modes)
	if stats != nil {
		stats.countProduct(out.Albedo)
	}
	return out
}

// invertMode regularizes, inverts and derives albedo from a folded system.
func invertMode(full types.NormalEquationSystem, est *types.PriorEstimate, sza float64, s Settings, snow bool, stats *Stats) ModeResult {
	res := ModeResult{Mode: modeOf(snow), Full: full}
	if s.UsePrior {
		res.Prior = prior.Regularize(est, s.priorParams(snow))
	}
	res.Inversion = inversion.Solve(full, &res.Prior, s.inversionOptions())
	res.Albedo = albedo.Derive(res.Inversion, sza)
	if stats != nil {
		stats.countInversion(res.Inversion)
	}
	return res
}

// finalAlbedo merges two modes, or returns the only one.
func finalAlbedo(modes []ModeResult) types.AlbedoResult {
	switch len(modes) {
	case 0:
		return types.NoDataAlbedo()
	case 1:
		return modes[0].Albedo
	}

	var snow, noSnow types.AlbedoResult
	for _, m := range modes {
		if m.Mode == ModeSnow {
			snow = m.Albedo
		} else {
			noSnow = m.Albedo
		}
	}
	return albedo.Merge(snow, noSnow)
}
