// Package types holds the per-pixel values passed between the accumulation,
// inversion and albedo stages.
package types

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/chrissnell/globalbedo/internal/constants"
)

// Matrix is a 9x9 parameter-space matrix.
type Matrix [constants.NumParameters][constants.NumParameters]float64

// Vector is a 9-element parameter-space vector.
type Vector [constants.NumParameters]float64

// Dense returns m as a gonum matrix. The result does not alias m.
func (m *Matrix) Dense() *mat.Dense {
	data := make([]float64, 0, constants.NumParameters*constants.NumParameters)
	for i := range m {
		data = append(data, m[i][:]...)
	}
	return mat.NewDense(constants.NumParameters, constants.NumParameters, data)
}

// MatrixFrom copies a 9x9 gonum matrix.
func MatrixFrom(a mat.Matrix) Matrix {
	var m Matrix
	for i := range m {
		for j := range m[i] {
			m[i][j] = a.At(i, j)
		}
	}
	return m
}

// Add returns m + o.
func (m Matrix) Add(o Matrix) Matrix {
	for i := range m {
		for j := range m[i] {
			m[i][j] += o[i][j]
		}
	}
	return m
}

// Fill returns a matrix with every element set to v.
func Fill(v float64) Matrix {
	var m Matrix
	for i := range m {
		for j := range m[i] {
			m[i][j] = v
		}
	}
	return m
}

// Slice returns a copy of v as a slice.
func (v Vector) Slice() []float64 {
	return append([]float64(nil), v[:]...)
}

// VectorFrom copies the first 9 elements of s.
func VectorFrom(s []float64) Vector {
	var v Vector
	copy(v[:], s)
	return v
}

// NormalEquationSystem holds the weighted least-squares sufficient statistics
// of one pixel: information matrix M, information vector V, the weighted sum
// of squared observations E and the number of contributing observations.
type NormalEquationSystem struct {
	M      Matrix
	V      Vector
	E      float64
	Weight float64

	// ClosestSampleDistance is min(|Δdays|+1) over contributing days. Zero
	// means no day has contributed yet.
	ClosestSampleDistance int
}

// Add returns the sum of two systems. Closest sample distances combine by
// taking the smaller defined value, so Add is commutative and associative.
func (s NormalEquationSystem) Add(o NormalEquationSystem) NormalEquationSystem {
	s.M = s.M.Add(o.M)
	for i := range s.V {
		s.V[i] += o.V[i]
	}
	s.E += o.E
	s.Weight += o.Weight
	s.ClosestSampleDistance = MinDistance(s.ClosestSampleDistance, o.ClosestSampleDistance)
	return s
}

// Scale returns s with M, V and E multiplied by w. Weight is a count and is
// left untouched.
func (s NormalEquationSystem) Scale(w float64) NormalEquationSystem {
	for i := range s.M {
		for j := range s.M[i] {
			s.M[i][j] *= w
		}
		s.V[i] *= w
	}
	s.E *= w
	return s
}

// IsEmpty reports whether no observation contributed to s.
func (s NormalEquationSystem) IsEmpty() bool {
	return !(s.Weight > 0)
}

// MinDistance combines two closest-sample distances where 0 is undefined.
func MinDistance(a, b int) int {
	switch {
	case a <= 0:
		return max(b, 0)
	case b <= 0:
		return a
	default:
		return min(a, b)
	}
}

// PriorEstimate is the prior expectation of the BRDF parameters of a pixel.
type PriorEstimate struct {
	Mean         Vector
	SD           Vector
	SnowFraction float64
	Valid        bool
}

// InversionResult is the solved BRDF model of a pixel.
type InversionResult struct {
	Parameters Vector
	Covariance Matrix

	// CovarianceValid is false when Covariance is not the inverse of a
	// well-conditioned information matrix.
	CovarianceValid bool

	Entropy               float64
	RelativeEntropy       float64
	WeightedSampleCount   float64
	ClosestSampleDistance int
	GoodnessOfFit         float64

	Valid     bool
	UsedPrior bool
	Fallback  bool
}

// NoDataInversion returns an invalid result with every value at NoData.
func NoDataInversion(weight float64, closest int) InversionResult {
	var p Vector
	for i := range p {
		p[i] = constants.NoData
	}
	return InversionResult{
		Parameters:            p,
		Covariance:            Fill(constants.NoData),
		Entropy:               constants.NoData,
		RelativeEntropy:       constants.NoData,
		WeightedSampleCount:   weight,
		ClosestSampleDistance: closest,
		GoodnessOfFit:         constants.NoData,
	}
}

// BandTriple holds one value per wave band (VIS, NIR, SW), or one value per
// band pair (VIS-NIR, VIS-SW, NIR-SW) for alpha terms.
type BandTriple [constants.NumBands]float64

// NoDataTriple is a triple of NoData values.
func NoDataTriple() BandTriple {
	return BandTriple{constants.NoData, constants.NoData, constants.NoData}
}

// AlbedoResult is the per-pixel albedo product.
type AlbedoResult struct {
	BSA      BandTriple `msgpack:"bsa"`
	WSA      BandTriple `msgpack:"wsa"`
	SigmaBSA BandTriple `msgpack:"sigma_bsa"`
	SigmaWSA BandTriple `msgpack:"sigma_wsa"`
	AlphaBSA BandTriple `msgpack:"alpha_bsa"`
	AlphaWSA BandTriple `msgpack:"alpha_wsa"`

	WeightedSampleCount float64 `msgpack:"weighted_samples"`
	RelativeEntropy     float64 `msgpack:"relative_entropy"`
	GoodnessOfFit       float64 `msgpack:"goodness_of_fit"`
	SnowFraction        float64 `msgpack:"snow_fraction"`
	DataMask            float64 `msgpack:"data_mask"`
	SZA                 float64 `msgpack:"sza"`
}

// NoDataAlbedo returns an albedo result with every field at NoData and a
// zero data mask.
func NoDataAlbedo() AlbedoResult {
	return AlbedoResult{
		BSA:                 NoDataTriple(),
		WSA:                 NoDataTriple(),
		SigmaBSA:            NoDataTriple(),
		SigmaWSA:            NoDataTriple(),
		AlphaBSA:            NoDataTriple(),
		AlphaWSA:            NoDataTriple(),
		WeightedSampleCount: constants.NoData,
		RelativeEntropy:     constants.NoData,
		GoodnessOfFit:       constants.NoData,
		SnowFraction:        constants.NoData,
		DataMask:            0,
		SZA:                 constants.NoData,
	}
}

// Fields returns pointers to every scalar field of r in a fixed order. It is
// used by the merge and averaging code to treat all fields alike.
func (r *AlbedoResult) Fields() []*float64 {
	out := make([]*float64, 0, 6*constants.NumBands+4)
	for _, t := range []*BandTriple{&r.BSA, &r.WSA, &r.SigmaBSA, &r.SigmaWSA, &r.AlphaBSA, &r.AlphaWSA} {
		for i := range t {
			out = append(out, &t[i])
		}
	}
	return append(out, &r.WeightedSampleCount, &r.RelativeEntropy, &r.GoodnessOfFit, &r.SnowFraction)
}

// Finite reports whether every element of m is a finite number.
func (m *Matrix) Finite() bool {
	for i := range m {
		for j := range m[i] {
			if math.IsNaN(m[i][j]) || math.IsInf(m[i][j], 0) {
				return false
			}
		}
	}
	return true
}
