// Package inversion solves the accumulated normal equations of a pixel for
// its nine BRDF parameters and their covariance.
package inversion

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/chrissnell/globalbedo/internal/constants"
	"github.com/chrissnell/globalbedo/internal/prior"
	"github.com/chrissnell/globalbedo/internal/types"
	"github.com/chrissnell/globalbedo/pkg/linalg"
)

// Options controls the inversion.
type Options struct {
	UsePrior bool
}

// entropyOffset is sqrt(ln(2πe)), added once per parameter.
var entropyOffset = math.Sqrt(math.Log(2 * math.Pi * math.E))

// Solve inverts the folded observation system obs, regularized by pc when
// the prior is enabled and usable.
//
// A singular system falls back to the prior mean and covariance when a prior
// is usable and yields a no-data result otherwise. A pixel without
// observations and without a usable prior is no-data. Solve never fails for
// missing data.
func Solve(obs types.NormalEquationSystem, pc *prior.Contribution, opts Options) types.InversionResult {
	usePrior := opts.UsePrior && pc.Usable()
	if obs.IsEmpty() && !usePrior {
		return types.NoDataInversion(obs.Weight, obs.ClosestSampleDistance)
	}

	mTotal, vTotal := obs.M, obs.V
	if usePrior {
		mTotal = mTotal.Add(pc.M)
		for i := range vTotal {
			vTotal[i] += pc.V[i]
		}
	}
	m := mTotal.Dense()

	res := types.InversionResult{
		WeightedSampleCount:   obs.Weight,
		ClosestSampleDistance: obs.ClosestSampleDistance,
		UsedPrior:             usePrior,
		Valid:                 true,
	}

	if linalg.IsSingular(m) {
		if !usePrior {
			return types.NoDataInversion(obs.Weight, obs.ClosestSampleDistance)
		}
		res.Parameters = pc.Mean
		res.Covariance = pc.Covariance
		res.Fallback = true
		res.Entropy = Entropy(pc.M.Dense())
	} else {
		params, err := linalg.Solve(m, vTotal.Slice())
		if err != nil {
			return types.NoDataInversion(obs.Weight, obs.ClosestSampleDistance)
		}
		res.Parameters = types.VectorFrom(params)

		if inv, err := linalg.Inverse(m); err == nil && !linalg.HasNaN(inv) && !linalg.HasNonPositiveDiagonal(inv) {
			res.Covariance = types.MatrixFrom(inv)
			res.CovarianceValid = true
		} else {
			res.Covariance = types.Fill(constants.NoData)
		}
		res.Entropy = Entropy(m)
	}

	res.RelativeEntropy = RelativeEntropy(res.Entropy)

	res.GoodnessOfFit = 0
	if !obs.IsEmpty() {
		res.GoodnessOfFit = GoodnessOfFit(m, vTotal, obs.E, res.Parameters)
	}
	return res
}

// Entropy returns 0.5·ln(∏ 1/Sᵢ) + n·sqrt(ln(2πe)) over the singular values
// Sᵢ of m, or NoData if m has a zero singular value.
func Entropy(m mat.Matrix) float64 {
	s, err := linalg.SingularValues(m)
	if err != nil || len(s) == 0 {
		return constants.NoData
	}
	// ln(∏ 1/Sᵢ) summed in log space.
	logSum := 0.0
	for _, v := range s {
		if !(v > 0) {
			return constants.NoData
		}
		logSum -= math.Log(v)
	}
	e := 0.5*logSum + float64(len(s))*entropyOffset
	if !constants.IsValid(e) {
		return constants.NoData
	}
	return e
}

// RelativeEntropy returns exp(entropy/9), or NoData for an invalid entropy.
func RelativeEntropy(entropy float64) float64 {
	if !constants.IsValid(entropy) {
		return constants.NoData
	}
	return math.Exp(entropy / constants.NumParameters)
}

// GoodnessOfFit returns pᵀ·M·p + pᵀ·V − 2E.
func GoodnessOfFit(m mat.Matrix, v types.Vector, e float64, p types.Vector) float64 {
	pv := mat.NewVecDense(constants.NumParameters, p.Slice())
	return mat.Inner(pv, m, pv) + mat.Dot(pv, mat.NewVecDense(constants.NumParameters, v.Slice())) - 2*e
}
