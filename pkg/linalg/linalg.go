// Package linalg wraps the small dense matrix operations the inversion
// needs on top of gonum: products, inverse, solve, LU singularity test and
// singular values. Matrices here are at most 9x9.
package linalg

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ConditionLimit is the LU condition number above which a matrix is treated
// as singular.
const ConditionLimit = 1e14

// ErrSingular is returned when a matrix cannot be inverted or solved.
var ErrSingular = errors.New("linalg: matrix is singular")

// IsSingular reports whether a is singular according to its LU decomposition.
// An exactly zero pivot, a non-finite entry or a condition number beyond
// ConditionLimit all count as singular.
func IsSingular(a mat.Matrix) bool {
	r, c := a.Dims()
	if r != c || r == 0 {
		return true
	}
	if HasNaN(a) {
		return true
	}

	var lu mat.LU
	lu.Factorize(a)

	var u mat.TriDense
	lu.UTo(&u)
	for i := 0; i < r; i++ {
		if u.At(i, i) == 0 {
			return true
		}
	}

	cond := lu.Cond()
	return math.IsInf(cond, 0) || math.IsNaN(cond) || cond > ConditionLimit
}

// Inverse returns a⁻¹.
func Inverse(a mat.Matrix) (*mat.Dense, error) {
	if IsSingular(a) {
		return nil, ErrSingular
	}
	var inv mat.Dense
	if err := inv.Inverse(a); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("inverse: %w", err)
		}
	}
	return &inv, nil
}

// Solve returns x with a·x = b.
func Solve(a mat.Matrix, b []float64) ([]float64, error) {
	if IsSingular(a) {
		return nil, ErrSingular
	}
	r, _ := a.Dims()
	if len(b) != r {
		return nil, fmt.Errorf("solve: right-hand side has %d entries, want %d", len(b), r)
	}

	var lu mat.LU
	lu.Factorize(a)

	var x mat.VecDense
	if err := lu.SolveVecTo(&x, false, mat.NewVecDense(len(b), append([]float64(nil), b...))); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("solve: %w", err)
		}
	}
	return x.RawVector().Data[:r:r], nil
}

// SingularValues returns the singular values of a in descending order.
func SingularValues(a mat.Matrix) ([]float64, error) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDNone); !ok {
		return nil, errors.New("linalg: SVD did not converge")
	}
	return svd.Values(nil), nil
}

// Product returns the product of the given matrices, left to right.
func Product(a, b mat.Matrix, rest ...mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Product(append([]mat.Matrix{a, b}, rest...)...)
	return &out
}

// Sandwich returns p·c·pᵀ.
func Sandwich(p, c mat.Matrix) *mat.Dense {
	return Product(p, c, p.T())
}

// QuadraticForm returns uᵀ·c·u.
func QuadraticForm(u []float64, c mat.Matrix) float64 {
	v := mat.NewVecDense(len(u), u)
	return mat.Inner(v, c, v)
}

// HasNaN reports whether any element of a is NaN or infinite.
func HasNaN(a mat.Matrix) bool {
	r, c := a.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := a.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return true
			}
		}
	}
	return false
}

// HasNonPositiveDiagonal reports whether any diagonal element of a is <= 0.
func HasNonPositiveDiagonal(a mat.Matrix) bool {
	r, c := a.Dims()
	n := min(r, c)
	for i := 0; i < n; i++ {
		if !(a.At(i, i) > 0) {
			return true
		}
	}
	return false
}
