// Package albedo derives black-sky and white-sky albedo and their
// uncertainties from inverted BRDF parameters, merges snow and snow-free
// products and averages products over a month.
package albedo

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/chrissnell/globalbedo/internal/constants"
	"github.com/chrissnell/globalbedo/internal/types"
	"github.com/chrissnell/globalbedo/pkg/linalg"
)

// WhiteSkyWeights are the bihemispherical integrals of the isotropic,
// volumetric and geometric kernels.
var WhiteSkyWeights = [constants.NumBRDFParameters]float64{1.0, 0.189184, -1.377622}

// BlackSkyWeights returns the directional-hemispherical kernel integrals for
// a solar zenith angle in degrees.
func BlackSkyWeights(szaDeg float64) [constants.NumBRDFParameters]float64 {
	theta := szaDeg * math.Pi / 180
	t2 := theta * theta
	t3 := t2 * theta
	return [constants.NumBRDFParameters]float64{
		1.0,
		-0.007574 - 0.070887*t2 + 0.307588*t3,
		-1.284909 - 0.166314*t2 + 0.041840*t3,
	}
}

// bandPairs lists the band pairs of the alpha terms in output order.
var bandPairs = [constants.NumBandPairs][2]int{
	{constants.BandVIS, constants.BandNIR},
	{constants.BandVIS, constants.BandSW},
	{constants.BandNIR, constants.BandSW},
}

// Derive computes the albedo product of one pixel. Sigma and alpha terms are
// only computed from a valid covariance and a valid entropy; otherwise they
// are NoData. An invalid inversion gives a NoData result.
func Derive(inv types.InversionResult, szaDeg float64) types.AlbedoResult {
	if !inv.Valid {
		res := types.NoDataAlbedo()
		res.SZA = szaDeg
		if constants.IsValid(inv.WeightedSampleCount) && inv.WeightedSampleCount > 0 {
			res.WeightedSampleCount = inv.WeightedSampleCount
		}
		return res
	}

	res := types.AlbedoResult{
		SigmaBSA:            types.NoDataTriple(),
		SigmaWSA:            types.NoDataTriple(),
		AlphaBSA:            types.NoDataTriple(),
		AlphaWSA:            types.NoDataTriple(),
		WeightedSampleCount: inv.WeightedSampleCount,
		RelativeEntropy:     inv.RelativeEntropy,
		GoodnessOfFit:       inv.GoodnessOfFit,
		SnowFraction:        constants.NoData,
		SZA:                 szaDeg,
	}

	bsa := BlackSkyWeights(szaDeg)
	res.BSA = project(bsa, inv.Parameters)
	res.WSA = project(WhiteSkyWeights, inv.Parameters)

	entropyValid := constants.IsValid(inv.Entropy)
	if entropyValid {
		res.DataMask = 1
	}
	if !entropyValid || !inv.CovarianceValid {
		return res
	}

	cov := inv.Covariance.Dense()
	res.SigmaBSA, res.AlphaBSA = uncertainty(bsa, cov)
	res.SigmaWSA, res.AlphaWSA = uncertainty(WhiteSkyWeights, cov)
	return res
}

// project returns the albedo of every band for the given kernel weights.
func project(w [constants.NumBRDFParameters]float64, p types.Vector) types.BandTriple {
	var out types.BandTriple
	for b := range out {
		for k, wk := range w {
			out[b] += wk * p[b*constants.NumBRDFParameters+k]
		}
	}
	return out
}

// ProjectionMatrix returns the 3x9 matrix whose row b applies w to the
// parameter block of band b.
func ProjectionMatrix(w [constants.NumBRDFParameters]float64) *mat.Dense {
	p := mat.NewDense(constants.NumBands, constants.NumParameters, nil)
	for b := 0; b < constants.NumBands; b++ {
		for k, wk := range w {
			p.Set(b, b*constants.NumBRDFParameters+k, wk)
		}
	}
	return p
}

// uncertainty returns the per-band standard deviation, capped at 1, and the
// band-pair correlation coefficients of the albedo defined by w.
func uncertainty(w [constants.NumBRDFParameters]float64, cov mat.Matrix) (sigma, alpha types.BandTriple) {
	p := ProjectionMatrix(w)
	for b := 0; b < constants.NumBands; b++ {
		u := mat.Row(nil, b, p)
		variance := linalg.QuadraticForm(u, cov)
		sigma[b] = math.Min(1, math.Sqrt(math.Max(variance, 0)))
	}

	cBand := linalg.Sandwich(p, cov)
	for i, pair := range bandPairs {
		denom := math.Sqrt(cBand.At(pair[0], pair[0]) * cBand.At(pair[1], pair[1]))
		if denom > 0 {
			alpha[i] = cBand.At(pair[0], pair[1]) / denom
		} else {
			alpha[i] = constants.NoData
		}
	}
	return sigma, alpha
}
