package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/globalbedo/internal/bbdr"
	"github.com/chrissnell/globalbedo/internal/observation"
	"github.com/chrissnell/globalbedo/internal/pipeline"
)

const sampleObservations = `date,vis,nir,sw,sd_vis,sd_nir,sd_sw,c_vis_nir,c_vis_sw,c_nir_sw,kvol_vis,kvol_nir,kvol_sw,kgeo_vis,kgeo_nir,kgeo_sw,land,snow
# first overpass
2005-05-08,0.05,0.3,0.2,0.01,0.01,0.01,0,0,0,0.1,0.1,0.1,-1.2,-1.2,-1.2,true,0
2005129,0.06,0.31,0.21,0.01,0.02,0.01,0.1,0,0,-0.05,-0.05,-0.05,-0.8,-0.8,-0.8,false,1
`

func TestFitPointsFollowModel(t *testing.T) {
	obs, err := bbdr.ReadObservations(strings.NewReader(sampleObservations), observation.SensorMERIS)
	require.NoError(t, err)

	m := pipeline.ModeResult{Mode: pipeline.ModeNoSnow}
	m.Inversion.Valid = true
	for b := 0; b < 3; b++ {
		m.Inversion.Parameters[3*b] = 0.1
		m.Inversion.Parameters[3*b+2] = 0.01
	}

	pts := fitPoints(obs, m, false)
	// The second observation is not land.
	require.Len(t, pts[0], 1)
	assert.Equal(t, 0.05, pts[0][0].X)
	assert.InDelta(t, 0.1-0.012, pts[0][0].Y, 1e-12)

	m.Inversion.Valid = false
	assert.Empty(t, fitPoints(obs, m, false)[1])
}

func TestSavePlot(t *testing.T) {
	obs, err := bbdr.ReadObservations(strings.NewReader(sampleObservations), observation.SensorMERIS)
	require.NoError(t, err)

	m := pipeline.ModeResult{Mode: pipeline.ModeNoSnow}
	m.Inversion.Valid = true
	m.Inversion.Parameters[0] = 0.05

	path := filepath.Join(t.TempDir(), "fit.png")
	require.NoError(t, savePlot(path, obs, m, false))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
