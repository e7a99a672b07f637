// Package bbdr reads broadband directional reflectance observations and
// priors from CSV files.
package bbdr

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chrissnell/globalbedo/internal/constants"
	"github.com/chrissnell/globalbedo/internal/observation"
	"github.com/chrissnell/globalbedo/internal/pipeline"
	"github.com/chrissnell/globalbedo/internal/types"
)

// ObservationColumns is the header of a single-pixel observation file.
var ObservationColumns = []string{
	"date",
	"vis", "nir", "sw",
	"sd_vis", "sd_nir", "sd_sw",
	"c_vis_nir", "c_vis_sw", "c_nir_sw",
	"kvol_vis", "kvol_nir", "kvol_sw",
	"kgeo_vis", "kgeo_nir", "kgeo_sw",
	"land", "snow",
}

// TileColumns is the header of a tile observation file: the pixel position
// followed by the observation columns.
var TileColumns = append([]string{"x", "y"}, ObservationColumns...)

// Day holds the observations of one day of a tile, indexed by y*width + x.
type Day struct {
	Date   time.Time
	Pixels [][]observation.Observation
}

// ReadObservations parses a single-pixel observation file. Dates are
// YYYY-MM-DD or YYYYDDD.
func ReadObservations(r io.Reader, sensor observation.Sensor) ([]pipeline.DatedObservation, error) {
	cr, err := newReader(r, ObservationColumns)
	if err != nil {
		return nil, err
	}

	var out []pipeline.DatedObservation
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)

		obs, err := parseObservation(rec, sensor)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, obs)
	}
}

// ReadTile parses a tile observation file for a width×height tile and groups
// the observations by day, earliest first.
func ReadTile(r io.Reader, sensor observation.Sensor, width, height int) ([]Day, error) {
	cr, err := newReader(r, TileColumns)
	if err != nil {
		return nil, err
	}

	days := make(map[time.Time]*Day)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)

		x, errX := strconv.Atoi(rec[0])
		y, errY := strconv.Atoi(rec[1])
		if errX != nil || errY != nil || x < 0 || x >= width || y < 0 || y >= height {
			return nil, fmt.Errorf("line %d: pixel (%s, %s) outside %dx%d tile", line, rec[0], rec[1], width, height)
		}
		obs, err := parseObservation(rec[2:], sensor)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		d, ok := days[obs.Date]
		if !ok {
			d = &Day{Date: obs.Date, Pixels: make([][]observation.Observation, width*height)}
			days[obs.Date] = d
		}
		idx := y*width + x
		d.Pixels[idx] = append(d.Pixels[idx], obs.Observation)
	}

	out := make([]Day, 0, len(days))
	for _, d := range days {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func newReader(r io.Reader, columns []string) (*csv.Reader, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = len(columns)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	for i, name := range columns {
		if strings.ToLower(header[i]) != name {
			return nil, fmt.Errorf("column %d is %q, expected %q", i+1, header[i], name)
		}
	}
	return cr, nil
}

// parseObservation parses the observation columns of a record.
func parseObservation(rec []string, sensor observation.Sensor) (pipeline.DatedObservation, error) {
	date, err := ParseDate(rec[0])
	if err != nil {
		return pipeline.DatedObservation{}, err
	}

	var v [15]float64
	for i := range v {
		v[i], err = strconv.ParseFloat(rec[i+1], 64)
		if err != nil {
			return pipeline.DatedObservation{}, fmt.Errorf("column %s: %w", ObservationColumns[i+1], err)
		}
	}
	land, err := strconv.ParseBool(rec[16])
	if err != nil {
		return pipeline.DatedObservation{}, fmt.Errorf("column land: %w", err)
	}
	snow, err := strconv.Atoi(rec[17])
	if err != nil {
		return pipeline.DatedObservation{}, fmt.Errorf("column snow: %w", err)
	}

	o := observation.Observation{
		Sensor:      sensor,
		Reflectance: types.BandTriple{v[0], v[1], v[2]},
		SD:          types.BandTriple{v[3], v[4], v[5]},
		Correlation: types.BandTriple{v[6], v[7], v[8]},
		KVol:        types.BandTriple{v[9], v[10], v[11]},
		KGeo:        types.BandTriple{v[12], v[13], v[14]},
		Land:        land,
		SnowMask:    snow,
	}
	if land {
		o.StatusMask = constants.VGTLandBit
	}
	return pipeline.DatedObservation{Date: date, Observation: o}, nil
}

// ParseDate parses a YYYY-MM-DD or YYYYDDD date.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if len(s) == 7 {
		year, err1 := strconv.Atoi(s[:4])
		doy, err2 := strconv.Atoi(s[4:])
		if err1 == nil && err2 == nil && doy >= 1 && doy <= 366 {
			return time.Date(year, time.January, doy, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// ReadPrior parses a prior file: a header line and one row of nine means,
// nine standard deviations and the snow fraction.
func ReadPrior(r io.Reader) (*types.PriorEstimate, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = 2*constants.NumParameters + 1

	if _, err := cr.Read(); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	rec, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading prior: %w", err)
	}

	est := &types.PriorEstimate{Valid: true}
	for i, field := range rec {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("prior column %d: %w", i+1, err)
		}
		switch {
		case i < constants.NumParameters:
			est.Mean[i] = v
		case i < 2*constants.NumParameters:
			est.SD[i-constants.NumParameters] = v
		default:
			est.SnowFraction = v
		}
	}
	return est, nil
}
