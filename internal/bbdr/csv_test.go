package bbdr

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/globalbedo/internal/constants"
	"github.com/chrissnell/globalbedo/internal/observation"
	"github.com/chrissnell/globalbedo/internal/pipeline"
	"github.com/chrissnell/globalbedo/internal/storage"
)

const sampleObservations = `date,vis,nir,sw,sd_vis,sd_nir,sd_sw,c_vis_nir,c_vis_sw,c_nir_sw,kvol_vis,kvol_nir,kvol_sw,kgeo_vis,kgeo_nir,kgeo_sw,land,snow
# first overpass
2005-05-08,0.05,0.3,0.2,0.01,0.01,0.01,0,0,0,0.1,0.1,0.1,-1.2,-1.2,-1.2,true,0
2005129,0.06,0.31,0.21,0.01,0.02,0.01,0.1,0,0,-0.05,-0.05,-0.05,-0.8,-0.8,-0.8,false,1
`

const sampleTile = `x,y,date,vis,nir,sw,sd_vis,sd_nir,sd_sw,c_vis_nir,c_vis_sw,c_nir_sw,kvol_vis,kvol_nir,kvol_sw,kgeo_vis,kgeo_nir,kgeo_sw,land,snow
1,0,2005129,0.05,0.3,0.2,0.01,0.01,0.01,0,0,0,0.1,0.1,0.1,-1.2,-1.2,-1.2,true,0
1,0,2005129,0.06,0.31,0.21,0.01,0.01,0.01,0,0,0,0.2,0.2,0.2,-1.0,-1.0,-1.0,true,0
0,1,2005-05-08,0.07,0.32,0.22,0.01,0.01,0.01,0,0,0,0.1,0.1,0.1,-1.2,-1.2,-1.2,true,1
`

func TestReadObservations(t *testing.T) {
	obs, err := ReadObservations(strings.NewReader(sampleObservations), observation.SensorVGT)
	require.NoError(t, err)
	require.Len(t, obs, 2)

	assert.Equal(t, time.Date(2005, 5, 8, 0, 0, 0, 0, time.UTC), obs[0].Date)
	assert.Equal(t, time.Date(2005, 5, 9, 0, 0, 0, 0, time.UTC), obs[1].Date)

	o := obs[1].Observation
	assert.Equal(t, observation.SensorVGT, o.Sensor)
	assert.Equal(t, 0.31, o.Reflectance[1])
	assert.Equal(t, 0.02, o.SD[1])
	assert.Equal(t, 0.1, o.Correlation[0])
	assert.Equal(t, -0.8, o.KGeo[2])
	assert.False(t, o.Land)
	assert.Equal(t, 0, o.StatusMask)
	assert.Equal(t, 1, o.SnowMask)
	assert.Equal(t, constants.VGTLandBit, obs[0].Observation.StatusMask)
}

func TestReadObservationsErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"wrong header", strings.Replace(sampleObservations, "kvol_vis", "kvol", 1)},
		{"bad date", strings.Replace(sampleObservations, "2005-05-08", "yesterday", 1)},
		{"bad number", strings.Replace(sampleObservations, "0.31", "x", 1)},
		{"bad land", strings.Replace(sampleObservations, "true", "maybe", 1)},
		{"short row", sampleObservations + "2005-05-10,0.1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadObservations(strings.NewReader(tt.input), observation.SensorMERIS)
			require.Error(t, err)
		})
	}
}

func TestReadTile(t *testing.T) {
	days, err := ReadTile(strings.NewReader(sampleTile), observation.SensorMERIS, 2, 2)
	require.NoError(t, err)
	require.Len(t, days, 2)

	assert.Equal(t, time.Date(2005, 5, 8, 0, 0, 0, 0, time.UTC), days[0].Date)
	require.Len(t, days[0].Pixels, 4)
	require.Len(t, days[0].Pixels[2], 1)
	assert.Equal(t, 1, days[0].Pixels[2][0].SnowMask)
	assert.Empty(t, days[0].Pixels[1])

	require.Len(t, days[1].Pixels[1], 2)
	assert.Equal(t, 0.31, days[1].Pixels[1][1].Reflectance[1])
	assert.Empty(t, days[1].Pixels[2])
}

func TestReadTileIntoDailyAccumulators(t *testing.T) {
	days, err := ReadTile(strings.NewReader(sampleTile), observation.SensorMERIS, 2, 2)
	require.NoError(t, err)

	ctx := context.Background()
	store := storage.NewFileStore(storage.Roots{Accumulators: t.TempDir()}, 2, 2, false)
	proc := pipeline.NewProcessor(store, nil, pipeline.DefaultSettings(), nil)

	var total pipeline.Stats
	for _, d := range days {
		key := storage.DayKey{Tile: "h18v04", Sensor: string(observation.SensorMERIS), Date: d.Date}
		stats, err := proc.AccumulateDay(ctx, key, 2, 2, d.Pixels)
		require.NoError(t, err)
		total.Add(stats)
	}
	assert.Equal(t, 3, total.Observations)
	assert.Equal(t, 2, total.Accepted())

	second, err := store.ReadDaily(ctx, storage.DayKey{Tile: "h18v04", Sensor: "MERIS", Date: days[1].Date})
	require.NoError(t, err)
	assert.Equal(t, 2.0, second.Pixels[1].Weight)
	assert.Equal(t, 0.0, second.Pixels[2].Weight)

	// The only observation of the first day is snow, rejected in snow-free mode.
	first, err := store.ReadDaily(ctx, storage.DayKey{Tile: "h18v04", Sensor: "MERIS", Date: days[0].Date})
	require.NoError(t, err)
	assert.Equal(t, 0.0, first.Pixels[2].Weight)

	_, err = store.ReadDaily(ctx, storage.DayKey{Tile: "h18v04", Sensor: "MERIS", Date: days[0].Date, Snow: true})
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestReadTileRejectsPixelOutsideTile(t *testing.T) {
	input := strings.Replace(sampleTile, "\n0,1,", "\n0,2,", 1)
	_, err := ReadTile(strings.NewReader(input), observation.SensorMERIS, 2, 2)
	require.ErrorContains(t, err, "outside 2x2 tile")
}

func TestReadPrior(t *testing.T) {
	input := "f0_vis,f1_vis,f2_vis,f0_nir,f1_nir,f2_nir,f0_sw,f1_sw,f2_sw,sd0,sd1,sd2,sd3,sd4,sd5,sd6,sd7,sd8,snow_fraction\n" +
		"0.1,0.2,0.3,0.4,0.5,0.6,0.7,0.8,0.9,0.01,0.01,0.01,0.02,0.02,0.02,0.03,0.03,0.03,0.25\n"

	est, err := ReadPrior(strings.NewReader(input))
	require.NoError(t, err)
	assert.True(t, est.Valid)
	assert.Equal(t, 0.9, est.Mean[8])
	assert.Equal(t, 0.03, est.SD[8])
	assert.Equal(t, 0.25, est.SnowFraction)
}
