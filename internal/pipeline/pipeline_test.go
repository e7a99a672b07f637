package pipeline

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/globalbedo/internal/albedo"
	"github.com/chrissnell/globalbedo/internal/catalog"
	"github.com/chrissnell/globalbedo/internal/codec"
	"github.com/chrissnell/globalbedo/internal/observation"
	"github.com/chrissnell/globalbedo/internal/storage"
	"github.com/chrissnell/globalbedo/internal/temporal"
	"github.com/chrissnell/globalbedo/internal/types"
	"github.com/chrissnell/globalbedo/pkg/config"
	"github.com/chrissnell/globalbedo/pkg/solar"
)

// brdf holds f0, f1, f2 per band.
type brdf [3][3]float64

var truth = brdf{
	{0.05, 0.02, 0.01},
	{0.30, 0.10, 0.04},
	{0.20, 0.06, 0.03},
}

var geometries = [][2]float64{
	{0.10, -1.20},
	{-0.05, -0.80},
	{0.30, -1.60},
	{0.00, -1.00},
}

func syntheticObservation(kvol, kgeo float64, snow int) observation.Observation {
	o := observation.Observation{
		Sensor:   observation.SensorMERIS,
		Land:     true,
		SnowMask: snow,
	}
	for b := 0; b < 3; b++ {
		o.KVol[b] = kvol
		o.KGeo[b] = kgeo
		o.Reflectance[b] = truth[b][0] + truth[b][1]*kvol + truth[b][2]*kgeo
		o.SD[b] = 0.01
	}
	return o
}

func expectedWSA() types.BandTriple {
	var out types.BandTriple
	for b := 0; b < 3; b++ {
		for k := 0; k < 3; k++ {
			out[b] += albedo.WhiteSkyWeights[k] * truth[b][k]
		}
	}
	return out
}

func noPriorSettings() Settings {
	s := DefaultSettings()
	s.UsePrior = false
	s.Temporal.Wings = 10
	s.Workers = 2
	return s
}

type recordingRegistrar struct {
	mu    sync.Mutex
	kinds []string
}

func (r *recordingRegistrar) RegisterWritten(_ context.Context, _ storage.FileInfo, kind, _, _ string, _, _ int, _ bool, _ uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	return nil
}

func TestRunPixelRecoversAlbedo(t *testing.T) {
	target := time.Date(2005, time.May, 9, 0, 0, 0, 0, time.UTC)

	var obs []DatedObservation
	for i, g := range geometries {
		obs = append(obs, DatedObservation{Date: target.AddDate(0, 0, i-2), Observation: syntheticObservation(g[0], g[1], 0)})
	}
	// Rejected: not land, and snow in snow-free mode.
	sea := syntheticObservation(0.1, -1, 0)
	sea.Land = false
	obs = append(obs,
		DatedObservation{Date: target, Observation: sea},
		DatedObservation{Date: target, Observation: syntheticObservation(0.1, -1, 1)},
	)

	var stats Stats
	out := RunPixel(obs, target, Priors{}, Location{Latitude: 45}, noPriorSettings(), &stats)

	require.Len(t, out.Modes, 1)
	require.True(t, out.Modes[0].Inversion.Valid)
	require.Equal(t, 1.0, out.Albedo.DataMask)
	for b, want := range expectedWSA() {
		assert.InDelta(t, want, out.Albedo.WSA[b], 1e-6, "band %d", b)
	}
	assert.Equal(t, 4.0, out.Albedo.WeightedSampleCount)

	assert.Equal(t, 6, stats.Observations)
	assert.Equal(t, 4, stats.Accepted())
	assert.Equal(t, 1, stats.Rejected[observation.NotLand])
	assert.Equal(t, 1, stats.Rejected[observation.SnowMismatch])
	assert.Equal(t, 1, stats.Pixels)
	assert.Equal(t, 1, stats.ValidPixels)
}

func TestRunPixelMergeWithoutSnowSamples(t *testing.T) {
	target := time.Date(2005, time.May, 9, 0, 0, 0, 0, time.UTC)
	var obs []DatedObservation
	for _, g := range geometries {
		obs = append(obs, DatedObservation{Date: target, Observation: syntheticObservation(g[0], g[1], 0)})
	}

	s := noPriorSettings()
	s.MergeSnow = true
	out := RunPixel(obs, target, Priors{}, Location{Latitude: 45}, s, nil)

	require.Len(t, out.Modes, 2)
	assert.False(t, out.Modes[1].Inversion.Valid, "snow mode has no samples and no prior")
	assert.Equal(t, 0.0, out.Albedo.SnowFraction)
	if diff := cmp.Diff(out.Modes[0].Albedo.BSA, out.Albedo.BSA); diff != "" {
		t.Fatalf("merged BSA differs from snow-free BSA (-want +got):\n%s", diff)
	}
}

func TestRunPixelMergeCountsObservationsOnce(t *testing.T) {
	target := time.Date(2005, time.May, 9, 0, 0, 0, 0, time.UTC)
	var obs []DatedObservation
	for _, g := range geometries {
		obs = append(obs, DatedObservation{Date: target, Observation: syntheticObservation(g[0], g[1], 0)})
	}
	sea := syntheticObservation(0.1, -1, 0)
	sea.Land = false
	obs = append(obs,
		DatedObservation{Date: target, Observation: syntheticObservation(0.1, -1, 1)},
		DatedObservation{Date: target, Observation: sea},
	)

	s := noPriorSettings()
	s.MergeSnow = true
	var stats Stats
	RunPixel(obs, target, Priors{}, Location{Latitude: 45}, s, &stats)

	assert.Equal(t, 6, stats.Observations)
	assert.Equal(t, 5, stats.Accepted())
	assert.Equal(t, map[observation.Reason]int{observation.NotLand: 1}, stats.Rejected)
	assert.Equal(t, 2, stats.Inversions)
	assert.Equal(t, 1, stats.Pixels)
}

func TestSettingsZenith(t *testing.T) {
	day := time.Date(2005, time.May, 9, 0, 0, 0, 0, time.UTC)
	loc := Location{Latitude: 47.5, Longitude: 15}

	s := DefaultSettings()
	assert.Equal(t, solar.NoonZenith(47.5, day.YearDay()), s.Zenith(loc, day))

	s.PreciseZenith = true
	assert.Equal(t, solar.TrueNoonZenith(day, 47.5, 15), s.Zenith(loc, day))
	assert.InDelta(t, solar.NoonZenith(47.5, day.YearDay()), s.Zenith(loc, day), 1.5)
}

func TestRunPixelPriorOnly(t *testing.T) {
	est := &types.PriorEstimate{Valid: true}
	for b := 0; b < 3; b++ {
		for k := 0; k < 3; k++ {
			est.Mean[3*b+k] = math.Abs(truth[b][k])
			est.SD[3*b+k] = 0.05
		}
	}

	out := RunPixel(nil, time.Date(2005, 1, 1, 0, 0, 0, 0, time.UTC), Priors{NoSnow: est}, Location{Latitude: 10}, DefaultSettings(), nil)
	require.True(t, out.Modes[0].Inversion.Valid)
	assert.True(t, out.Modes[0].Inversion.UsedPrior)
	assert.Equal(t, 0.0, out.Modes[0].Inversion.GoodnessOfFit)
	assert.InDelta(t, truth[0][0], out.Modes[0].Inversion.Parameters[0], 1e-9)
}

func TestAccumulateDaysGroupsByDay(t *testing.T) {
	target := time.Date(2005, time.January, 1, 0, 0, 0, 0, time.UTC)
	o := syntheticObservation(0.1, -1, 0)
	obs := []DatedObservation{
		{Date: target.AddDate(0, 0, -1), Observation: o},
		{Date: target, Observation: o},
		{Date: target.Add(6 * time.Hour), Observation: o},
	}

	days, reasons := AccumulateDays(obs, target, observation.Options{})
	assert.Equal(t, []observation.Reason{observation.Accepted, observation.Accepted, observation.Accepted}, reasons)
	require.Len(t, days, 2)
	assert.Equal(t, -1, days[0].Offset)
	assert.Equal(t, 1.0, days[0].System.Weight)
	assert.Equal(t, 0, days[1].Offset)
	assert.Equal(t, 2.0, days[1].System.Weight)
}

func TestSettingsModes(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, ModeNoSnow, s.Mode())
	assert.Equal(t, []bool{false}, s.SnowModes())

	s.ComputeSnow = true
	assert.Equal(t, ModeSnow, s.Mode())
	assert.Equal(t, []bool{true}, s.SnowModes())

	s.MergeSnow = true
	assert.Equal(t, ModeMerged, s.Mode())
	assert.Equal(t, []bool{false, true}, s.SnowModes())
}

func TestJobRowLatitude(t *testing.T) {
	j := Job{Height: 3, NorthLatitude: 50, SouthLatitude: 40}
	assert.Equal(t, 50.0, j.RowLatitude(0))
	assert.Equal(t, 45.0, j.RowLatitude(1))
	assert.Equal(t, 40.0, j.RowLatitude(2))
}

func TestProductRoundTripKeepsNaN(t *testing.T) {
	p := NewProduct(ProductHeader{Tile: "h18v04", Year: 2005, DoY: 129, Mode: ModeMerged, Width: 2, Height: 3})
	p.At(1, 2).WSA = types.BandTriple{0.1, 0.2, 0.3}
	p.At(1, 2).DataMask = 1

	data, err := EncodeProduct(p)
	require.NoError(t, err)

	got, err := DecodeProduct(data)
	require.NoError(t, err)
	if diff := cmp.Diff(p, got, cmpopts.EquateNaNs()); diff != "" {
		t.Fatalf("product round trip mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, math.IsNaN(got.At(0, 0).BSA[0]))
}

func TestProcessTile(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	const w, h = 3, 2

	store := storage.NewFileStore(storage.Roots{
		Accumulators: t.TempDir(),
		Priors:       t.TempDir(),
		Products:     t.TempDir(),
	}, w, h, true)
	reg := &recordingRegistrar{}
	proc := NewProcessor(store, reg, noPriorSettings(), nil)

	target := time.Date(2005, time.May, 9, 0, 0, 0, 0, time.UTC)
	for i, g := range geometries {
		pixels := make([][]observation.Observation, w*h)
		for idx := range pixels {
			// Pixel 0 never sees land.
			o := syntheticObservation(g[0], g[1], 0)
			o.Land = idx != 0
			pixels[idx] = []observation.Observation{o}
		}
		key := storage.DayKey{Tile: "h18v04", Sensor: "MERIS", Date: target.AddDate(0, 0, i-1)}
		stats, err := proc.AccumulateDay(ctx, key, w, h, pixels)
		require.NoError(err)
		require.Equal(1, stats.Rejected[observation.NotLand])
	}

	job := Job{
		Tile: "h18v04", Year: 2005, DoY: target.YearDay(), Width: w, Height: h,
		Sensors: []string{"MERIS", "VGT"}, NorthLatitude: 45, SouthLatitude: 44,
	}
	product, stats, err := proc.ProcessTile(ctx, job)
	require.NoError(err)

	require.Equal(w*h, stats.Pixels)
	require.Equal(w*h-1, stats.ValidPixels)
	require.Equal(0.0, product.At(0, 0).DataMask)
	assert.Equal(t, solar.NoonZenith(45, job.DoY), product.At(1, 0).SZA)
	assert.Equal(t, solar.NoonZenith(44, job.DoY), product.At(1, 1).SZA)
	for idx := 1; idx < w*h; idx++ {
		px := product.Pixels[idx]
		require.Equal(1.0, px.DataMask)
		for b, want := range expectedWSA() {
			assert.InDelta(t, want, px.WSA[b], 1e-4)
		}
	}

	full, err := store.ReadFull(ctx, storage.FullKey{Tile: "h18v04", Year: 2005, DoY: job.DoY})
	require.NoError(err)
	require.Equal(4.0, full.At(1, 0).Weight)
	require.Equal(1, full.At(1, 0).ClosestSampleDistance)
	require.Equal(0, full.At(0, 0).ClosestSampleDistance)

	data, err := store.ReadProduct(ctx, storage.ProductKey{Tile: "h18v04", Year: 2005, DoY: job.DoY, Mode: string(ModeNoSnow)})
	require.NoError(err)
	stored, err := DecodeProduct(data)
	require.NoError(err)
	if diff := cmp.Diff(product, stored, cmpopts.EquateNaNs()); diff != "" {
		t.Fatalf("stored product mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []string{
		catalog.KindDaily, catalog.KindDaily, catalog.KindDaily, catalog.KindDaily,
		catalog.KindFull, catalog.KindProduct,
	}, reg.kinds)

	// Two identical days average to the same monthly values.
	job.DoY++
	_, _, err = proc.ProcessTile(ctx, job)
	require.NoError(err)

	monthly, err := proc.ProcessMonth(ctx, MonthlyJob{Tile: "h18v04", Year: 2005, Month: 5, Mode: ModeNoSnow})
	require.NoError(err)
	require.Equal(5, monthly.Month)
	require.Equal(0.0, monthly.At(0, 0).DataMask)
	// Two of the 31 days of May, on five of the six pixels.
	assert.InDelta(t, 5*(2.0/31)/6, monthly.Coverage, 1e-12)
	for b, want := range expectedWSA() {
		assert.InDelta(t, want, monthly.At(2, 1).WSA[b], 1e-4)
	}

	weighted, err := proc.ProcessMonth(ctx, MonthlyJob{Tile: "h18v04", Year: 2005, Month: 5, Mode: ModeNoSnow, Table: temporal.NewMonthlyWeighting(11.54)})
	require.NoError(err)
	assert.InDelta(t, expectedWSA()[1], weighted.At(1, 1).WSA[1], 1e-4)

	_, err = proc.ProcessMonth(ctx, MonthlyJob{Tile: "h18v04", Year: 2005, Month: 6, Mode: ModeNoSnow})
	require.ErrorIs(err, storage.ErrNotFound)

	precise := noPriorSettings()
	precise.PreciseZenith = true
	job.Longitude = 13
	product, _, err = NewProcessor(store, nil, precise, nil).ProcessTile(ctx, job)
	require.NoError(err)
	day := temporal.DateFromYearDay(2005, job.DoY)
	assert.Equal(t, solar.TrueNoonZenith(day, 45, 13), product.At(2, 0).SZA)
	for b, want := range expectedWSA() {
		assert.InDelta(t, want, product.At(2, 0).WSA[b], 1e-4)
	}
}

// onePixelPrior returns a prior tile whose first pixel has every mean at
// 0.1 and whose other pixels are undefined.
func onePixelPrior(w, h int) *codec.PriorTile {
	pt := codec.NewPriorTile(w, h)
	p := &pt.Pixels[0]
	for i := range p.Mean {
		p.Mean[i] = 0.1
		p.SD[i] = 0.05
	}
	p.Valid = true
	return pt
}

func TestProcessTileUsesPrior(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	const w, h = 2, 1

	store := storage.NewFileStore(storage.Roots{
		Accumulators: t.TempDir(),
		Priors:       t.TempDir(),
		Products:     t.TempDir(),
	}, w, h, false)

	pt := onePixelPrior(w, h)
	_, err := store.WritePrior(ctx, storage.PriorKey{Tile: "h18v04", DoY: 1}, pt)
	require.NoError(err)

	s := DefaultSettings()
	s.Temporal.Wings = 5
	proc := NewProcessor(store, nil, s, nil)

	product, stats, err := proc.ProcessTile(ctx, Job{Tile: "h18v04", Year: 2005, DoY: 1, Width: w, Height: h, Sensors: []string{"MERIS"}, NorthLatitude: 10, SouthLatitude: 10})
	require.NoError(err)

	// Pixel 0 has a valid prior and no observations; pixel 1 has neither.
	require.Equal(1, stats.UsedPrior)
	require.Equal(1.0, product.At(0, 0).DataMask)
	require.Equal(0.0, product.At(1, 0).DataMask)
	require.InDelta(0.1+0.189184*0.1-1.377622*0.1, product.At(0, 0).WSA[0], 1e-6)
}

func TestSettingsFromConfig(t *testing.T) {
	c := config.DefaultConfig()
	c.Inversion.MergeSnow = true
	c.Run.Workers = 3

	s, err := SettingsFromConfig(c)
	require.NoError(t, err)
	assert.Equal(t, ModeMerged, s.Mode())
	assert.Equal(t, 3, s.Workers)
	assert.Equal(t, 540, s.Temporal.Wings)
	assert.True(t, s.priorParams(true).ComputeSnow)

	c.Inversion.HalfLife = 0
	_, err = SettingsFromConfig(c)
	require.ErrorIs(t, err, config.ErrInvalid)
}
