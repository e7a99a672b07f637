package linalg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestIsSingular(t *testing.T) {
	tests := []struct {
		name     string
		m        *mat.Dense
		singular bool
	}{
		{
			name:     "identity",
			m:        mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}),
			singular: false,
		},
		{
			name:     "rank one",
			m:        mat.NewDense(3, 3, []float64{1, 0.5, 0.5, 0.5, 0.25, 0.25, 0.5, 0.25, 0.25}),
			singular: true,
		},
		{
			name:     "zero",
			m:        mat.NewDense(2, 2, nil),
			singular: true,
		},
		{
			name:     "not square",
			m:        mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6}),
			singular: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.singular, IsSingular(tt.m))
		})
	}
}

func TestInverseAndSolve(t *testing.T) {
	require := require.New(t)

	a := mat.NewDense(3, 3, []float64{
		4, 1, 0,
		1, 3, 1,
		0, 1, 2,
	})
	inv, err := Inverse(a)
	require.NoError(err)

	id := Product(a, inv)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			require.InDelta(want, id.At(i, j), 1e-12)
		}
	}

	x, err := Solve(a, []float64{1, 2, 3})
	require.NoError(err)
	var b mat.VecDense
	b.MulVec(a, mat.NewVecDense(3, x))
	require.InDeltaSlice([]float64{1, 2, 3}, b.RawVector().Data, 1e-12)

	_, err = Solve(mat.NewDense(2, 2, nil), []float64{1, 1})
	require.ErrorIs(err, ErrSingular)

	_, err = Inverse(mat.NewDense(2, 2, nil))
	require.ErrorIs(err, ErrSingular)
}

func TestQuadraticFormAndSandwich(t *testing.T) {
	c := mat.NewDense(2, 2, []float64{2, 0.5, 0.5, 1})
	assert.InDelta(t, 2+2*0.5+1, QuadraticForm([]float64{1, 1}, c), 1e-15)

	p := mat.NewDense(1, 2, []float64{1, 1})
	assert.InDelta(t, 4.0, Sandwich(p, c).At(0, 0), 1e-15)
}

func TestSingularValues(t *testing.T) {
	s, err := SingularValues(mat.NewDense(2, 2, []float64{3, 0, 0, 2}))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{3, 2}, s, 1e-12)
}

func TestDiagnostics(t *testing.T) {
	assert.True(t, HasNonPositiveDiagonal(mat.NewDense(2, 2, []float64{1, 0, 0, 0})))
	assert.False(t, HasNonPositiveDiagonal(mat.NewDense(2, 2, []float64{1, 0, 0, 1})))
	assert.False(t, HasNaN(mat.NewDense(2, 2, []float64{1, 0, 0, 1})))
}
