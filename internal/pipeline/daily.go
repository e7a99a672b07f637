package pipeline

import (
	"context"
	"fmt"

	"github.com/chrissnell/globalbedo/internal/catalog"
	"github.com/chrissnell/globalbedo/internal/codec"
	"github.com/chrissnell/globalbedo/internal/observation"
	"github.com/chrissnell/globalbedo/internal/storage"
)

// DailyTile accumulates the observations of one day into a tile. pixels is
// indexed by y*width + x and may hold any number of observations per pixel.
func DailyTile(width, height int, pixels [][]observation.Observation, opts observation.Options) (*codec.Tile, Stats, error) {
	if len(pixels) != width*height {
		return nil, Stats{}, fmt.Errorf("%w: %d pixels for %dx%d tile", codec.ErrSizeMismatch, len(pixels), width, height)
	}

	var stats Stats
	t := codec.NewTile(width, height)
	for i, obs := range pixels {
		for _, o := range obs {
			sys, reason := observation.Accumulate(o, opts)
			stats.countObservation(reason)
			if reason == observation.Accepted {
				t.Pixels[i] = t.Pixels[i].Add(sys)
			}
		}
	}
	return t, stats, nil
}

// AccumulateDay builds and stores the daily accumulator of key from the
// observations of each pixel.
func (p *Processor) AccumulateDay(ctx context.Context, key storage.DayKey, width, height int, pixels [][]observation.Observation) (Stats, error) {
	t, stats, err := DailyTile(width, height, pixels, p.settings.observationOptions(key.Snow))
	if err != nil {
		return stats, err
	}

	info, err := p.store.WriteDaily(ctx, key, t)
	if err != nil {
		return stats, fmt.Errorf("writing daily accumulator %s: %w", key, err)
	}

	job := Job{Tile: key.Tile, Year: key.Date.Year(), DoY: key.Date.YearDay()}
	if err := p.register(ctx, info, catalog.KindDaily, job, key.Sensor, key.Snow); err != nil {
		return stats, err
	}

	p.logger.Debugw("daily accumulator written", append([]interface{}{"day", key.String()}, stats.KeysAndValues()...)...)
	return stats, nil
}
