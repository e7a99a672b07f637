package prior

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/globalbedo/internal/types"
)

func validEstimate() *types.PriorEstimate {
	est := &types.PriorEstimate{SnowFraction: 0.2, Valid: true}
	for i := range est.Mean {
		est.Mean[i] = 0.1 + 0.05*float64(i)
		est.SD[i] = 0.1
	}
	return est
}

func TestRegularize(t *testing.T) {
	require := require.New(t)

	p := DefaultParams()
	c := Regularize(validEstimate(), p)
	require.Equal(1, c.Mask)
	require.Equal(FlagValid, c.Flag)
	require.True(c.Usable())

	sd := 0.1 * p.ScaleFactor * p.Weight
	for i := 0; i < 9; i++ {
		require.InDelta(sd*sd, c.Covariance[i][i], 1e-15)
		require.InDelta(1/(sd*sd), c.M[i][i], 1e-9)
		require.InDelta(c.M[i][i]*c.Mean[i], c.V[i], 1e-9)
		for j := 0; j < 9; j++ {
			if i != j {
				require.Zero(c.M[i][j])
			}
		}
	}
}

func TestRegularizeCapsAndFixesSD(t *testing.T) {
	est := validEstimate()
	est.SD[0] = 0
	est.SD[1] = 50

	c := Regularize(est, Params{ScaleFactor: 30, Weight: 1})
	require.Equal(t, 1, c.Mask)
	// Zero SD with positive mean becomes 1 before scaling, then capped.
	assert.Equal(t, 1.0, c.Covariance[0][0])
	assert.Equal(t, 1.0, c.Covariance[1][1])
	assert.Equal(t, 1.0, c.M[1][1])
}

func TestRegularizeRejects(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*types.PriorEstimate)
		params Params
		flag   float64
	}{
		{
			name:   "snow mode needs snow",
			modify: func(e *types.PriorEstimate) { e.SnowFraction = 0.03 },
			params: Params{ScaleFactor: 30, Weight: 0.01, ComputeSnow: true},
			flag:   FlagSnowFractionOdds,
		},
		{
			name:   "no-snow mode rejects snow-covered prior",
			modify: func(e *types.PriorEstimate) { e.SnowFraction = 0.95 },
			params: DefaultParams(),
			flag:   FlagSnowFractionOdds,
		},
		{
			name:   "negative mean",
			modify: func(e *types.PriorEstimate) { e.Mean[4] = -0.2 },
			params: DefaultParams(),
			flag:   FlagMeanTooLow,
		},
		{
			name:   "mean above one",
			modify: func(e *types.PriorEstimate) { e.Mean[8] = 1.3 },
			params: DefaultParams(),
			flag:   FlagMeanTooHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est := validEstimate()
			tt.modify(est)
			c := Regularize(est, tt.params)
			assert.Equal(t, 0, c.Mask)
			assert.Equal(t, tt.flag, c.Flag)
			assert.False(t, c.Usable())
			assert.Equal(t, types.Matrix{}, c.M)
		})
	}
}

func TestRegularizeMissingPrior(t *testing.T) {
	c := Regularize(nil, DefaultParams())
	assert.Equal(t, 0, c.Mask)
	assert.True(t, math.IsNaN(c.Flag))

	est := validEstimate()
	est.Mean[3] = math.NaN()
	c = Regularize(est, DefaultParams())
	assert.Equal(t, 0, c.Mask)
	assert.True(t, math.IsNaN(c.Flag))

	est = validEstimate()
	est.Valid = false
	c = Regularize(est, DefaultParams())
	assert.False(t, c.Usable())

	var nilContribution *Contribution
	assert.False(t, nilContribution.Usable())
}

func TestSnowModeAcceptsSnowyPrior(t *testing.T) {
	est := validEstimate()
	est.SnowFraction = 0.5
	c := Regularize(est, Params{ScaleFactor: 30, Weight: 0.01, ComputeSnow: true})
	assert.Equal(t, 1, c.Mask)
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())
	assert.Error(t, Params{ScaleFactor: 0, Weight: 1}.Validate())
	assert.Error(t, Params{ScaleFactor: 1, Weight: -1}.Validate())
}
