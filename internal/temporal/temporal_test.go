package temporal

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/globalbedo/internal/types"
)

func unitSystem(weight float64) types.NormalEquationSystem {
	var s types.NormalEquationSystem
	for i := range s.M {
		s.M[i][i] = 1
		s.V[i] = 1
	}
	s.E = 1
	s.Weight = weight
	return s
}

func TestDecayWeightHalvesAtHalfLifeLn2(t *testing.T) {
	hl := DefaultParams().HalfLife
	assert.InDelta(t, 1.0, DecayWeight(0, hl), 1e-15)
	assert.InDelta(t, 0.5, DecayWeight(hl*math.Ln2, hl), 1e-12)
	assert.InDelta(t, 0.5, DecayWeight(-hl*math.Ln2, hl), 1e-12)
}

func TestFoldWeightsSecondDayAtHalf(t *testing.T) {
	// With this half-life an 8-day offset is exactly halfLife·ln2.
	p := Params{HalfLife: 8 / math.Ln2, Wings: 90}

	got := Fold([]DayContribution{
		{Offset: 0, System: unitSystem(1)},
		{Offset: 8, System: unitSystem(1)},
	}, p)

	assert.InDelta(t, 1.5, got.M[4][4], 1e-12)
	assert.InDelta(t, 1.5, got.V[2], 1e-12)
	assert.InDelta(t, 1.5, got.E, 1e-12)
	assert.Equal(t, 2.0, got.Weight, "weight is a raw count")
	assert.Equal(t, 1, got.ClosestSampleDistance)

	second := Contribution(DayContribution{Offset: 8, System: unitSystem(1)}, p)
	first := Contribution(DayContribution{Offset: 0, System: unitSystem(1)}, p)
	assert.InDelta(t, 0.5*first.M[0][0], second.M[0][0], 1e-12)
}

func TestFoldClosestSampleDistance(t *testing.T) {
	p := DefaultParams()

	tests := []struct {
		name     string
		days     []DayContribution
		expected int
	}{
		{
			name:     "no days",
			expected: 0,
		},
		{
			name: "only empty days",
			days: []DayContribution{
				{Offset: 0, System: types.NormalEquationSystem{}},
				{Offset: 3, System: types.NormalEquationSystem{}},
			},
			expected: 0,
		},
		{
			name: "nearest valid day wins regardless of order",
			days: []DayContribution{
				{Offset: 20, System: unitSystem(1)},
				{Offset: 0, System: types.NormalEquationSystem{}},
				{Offset: -4, System: unitSystem(2)},
				{Offset: 9, System: unitSystem(1)},
			},
			expected: 5,
		},
		{
			name: "days beyond the wings are ignored",
			days: []DayContribution{
				{Offset: p.Wings + 1, System: unitSystem(1)},
			},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fold(tt.days, p)
			assert.Equal(t, tt.expected, got.ClosestSampleDistance)

			reversed := make([]DayContribution, len(tt.days))
			for i, d := range tt.days {
				reversed[len(tt.days)-1-i] = d
			}
			assert.Equal(t, tt.expected, Fold(reversed, p).ClosestSampleDistance)
		})
	}
}

func TestFoldIsAssociative(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	p := DefaultParams()

	days := make([]DayContribution, 60)
	for i := range days {
		s := unitSystem(float64(rng.Intn(3)))
		for j := range s.M {
			s.M[j][(j+1)%len(s.M)] = rng.Float64()
		}
		days[i] = DayContribution{Offset: rng.Intn(181) - 90, System: s}
	}

	all := Fold(days, p)
	parts := Fold(days[:17], p).Add(Fold(days[17:41], p)).Add(Fold(days[41:], p))

	if diff := cmp.Diff(all, parts, cmpopts.EquateApprox(1e-12, 1e-12)); diff != "" {
		t.Errorf("chunked fold differs (-all +parts):\n%s", diff)
	}
}

func TestAddDayPartialsMatchFold(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	p := Params{HalfLife: DefaultParams().HalfLife, Wings: 20}
	const pixels = 4

	// Each day is a tile of pixels; some fall outside the wings.
	offsets := make([]int, 30)
	tiles := make([][]types.NormalEquationSystem, len(offsets))
	for d := range offsets {
		offsets[d] = rng.Intn(51) - 25
		tiles[d] = make([]types.NormalEquationSystem, pixels)
		for i := range tiles[d] {
			s := unitSystem(float64(rng.Intn(3)))
			s.V[i] = rng.NormFloat64()
			tiles[d][i] = s
		}
	}

	// Three partial sums filled round robin, then added together.
	partials := make([][]types.NormalEquationSystem, 3)
	for i := range partials {
		partials[i] = make([]types.NormalEquationSystem, pixels)
	}
	for d := range tiles {
		AddDay(partials[d%3], tiles[d], offsets[d], p)
	}
	streamed := make([]types.NormalEquationSystem, pixels)
	for _, part := range partials {
		for i := range streamed {
			streamed[i] = streamed[i].Add(part[i])
		}
	}

	for i := 0; i < pixels; i++ {
		days := make([]DayContribution, len(tiles))
		for d := range tiles {
			days[d] = DayContribution{Offset: offsets[d], System: tiles[d][i]}
		}
		want := Fold(days, p)
		if diff := cmp.Diff(want, streamed[i], cmpopts.EquateApprox(1e-12, 1e-12)); diff != "" {
			t.Errorf("pixel %d: partial sums differ from fold (-fold +partials):\n%s", i, diff)
		}
	}
}

func TestDayOffsetAcrossYears(t *testing.T) {
	target := DateFromYearDay(2005, 1)

	assert.Equal(t, 0, DayOffset(target, target.Add(13*time.Hour)))
	assert.Equal(t, -1, DayOffset(target, DateFromYearDay(2004, 366)))
	assert.Equal(t, 365, DayOffset(target, DateFromYearDay(2006, 1)))
	assert.Equal(t, -366, DayOffset(target, DateFromYearDay(2004, 1)))
}

func TestWindow(t *testing.T) {
	target := DateFromYearDay(2005, 121)
	w := Window(target, Params{HalfLife: 1, Wings: 2})
	require.Len(t, w, 5)
	assert.Equal(t, -2, DayOffset(target, w[0]))
	assert.Equal(t, 2, DayOffset(target, w[4]))
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())
	assert.Error(t, Params{HalfLife: 0, Wings: 1}.Validate())
	assert.Error(t, Params{HalfLife: 1, Wings: -1}.Validate())
}
