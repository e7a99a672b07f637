package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chrissnell/globalbedo/internal/catalog"
	"github.com/chrissnell/globalbedo/internal/codec"
	"github.com/chrissnell/globalbedo/internal/storage"
	"github.com/chrissnell/globalbedo/internal/temporal"
	"github.com/chrissnell/globalbedo/internal/types"
)

// TileStore is the storage the tile processor reads from and writes to.
type TileStore interface {
	storage.AccumulatorStore
	storage.PriorSource
	storage.ProductStore
	StreamWindow(ctx context.Context, tile string, sensors []string, target time.Time, snow bool, p temporal.Params, workers int, fn func(storage.DayTile) error) (storage.WindowStats, error)
}

// Registrar records written files. *catalog.Catalog implements it.
type Registrar interface {
	RegisterWritten(ctx context.Context, info storage.FileInfo, kind, tile, sensor string, year, doy int, snow bool, runID uuid.UUID) error
}

// Job selects the tile and target day to process. Tile rows lie on
// parallels; the latitude of a row is interpolated between the centres of
// the first and last rows. Longitude is that of the tile centre.
type Job struct {
	Tile          string
	Year          int
	DoY           int
	Width         int
	Height        int
	Sensors       []string
	NorthLatitude float64
	SouthLatitude float64
	Longitude     float64
	RunID         uuid.UUID
}

// RowLatitude returns the latitude of the centre of row y.
func (j Job) RowLatitude(y int) float64 {
	if j.Height <= 1 {
		return j.NorthLatitude
	}
	return j.NorthLatitude + (j.SouthLatitude-j.NorthLatitude)*float64(y)/float64(j.Height-1)
}

// Processor runs the chain over whole tiles.
type Processor struct {
	store     TileStore
	registrar Registrar
	settings  Settings
	logger    *zap.SugaredLogger
}

// NewProcessor creates a tile processor. registrar may be nil.
func NewProcessor(store TileStore, registrar Registrar, settings Settings, logger *zap.SugaredLogger) *Processor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Processor{
		store:     store,
		registrar: registrar,
		settings:  settings,
		logger:    logger,
	}
}

// ProcessTile folds the daily accumulators of the job window, writes the full
// accumulators, inverts every pixel and writes the albedo product.
func (p *Processor) ProcessTile(ctx context.Context, job Job) (*Product, Stats, error) {
	var stats syncStats
	target := temporal.DateFromYearDay(job.Year, job.DoY)
	start := time.Now()

	modes := make([][]ModeResult, job.Width*job.Height)

	for _, snow := range p.settings.SnowModes() {
		full, err := p.foldTile(ctx, job, target, snow)
		if err != nil {
			return nil, stats.s, err
		}

		info, err := p.store.WriteFull(ctx, storage.FullKey{Tile: job.Tile, Year: job.Year, DoY: job.DoY, Snow: snow}, full)
		if err != nil {
			return nil, stats.s, fmt.Errorf("writing full accumulator: %w", err)
		}
		if err := p.register(ctx, info, catalog.KindFull, job, "", snow); err != nil {
			return nil, stats.s, err
		}

		pt, err := p.loadPrior(ctx, job, snow)
		if err != nil {
			return nil, stats.s, err
		}

		err = p.forEachRow(ctx, job.Height, func(y int) error {
			var local Stats
			sza := p.settings.Zenith(Location{Latitude: job.RowLatitude(y), Longitude: job.Longitude}, target)
			for x := 0; x < job.Width; x++ {
				idx := y*job.Width + x
				modes[idx] = append(modes[idx], invertMode(full.Pixels[idx], priorAt(pt, idx), sza, p.settings, snow, &local))
			}
			stats.add(local)
			return nil
		})
		if err != nil {
			return nil, stats.s, err
		}
	}

	product := NewProduct(ProductHeader{
		Tile:   job.Tile,
		Year:   job.Year,
		DoY:    job.DoY,
		Mode:   p.settings.Mode(),
		Width:  job.Width,
		Height: job.Height,
	})
	err := p.forEachRow(ctx, job.Height, func(y int) error {
		var local Stats
		for x := 0; x < job.Width; x++ {
			idx := y*job.Width + x
			product.Pixels[idx] = finalAlbedo(modes[idx])
			local.countProduct(product.Pixels[idx])
		}
		stats.add(local)
		return nil
	})
	if err != nil {
		return nil, stats.s, err
	}

	data, err := EncodeProduct(product)
	if err != nil {
		return nil, stats.s, err
	}
	info, err := p.store.WriteProduct(ctx, storage.ProductKey{Tile: job.Tile, Year: job.Year, DoY: job.DoY, Mode: string(product.Mode)}, data)
	if err != nil {
		return nil, stats.s, fmt.Errorf("writing albedo product: %w", err)
	}
	if err := p.register(ctx, info, catalog.KindProduct, job, "", p.settings.Mode() == ModeSnow); err != nil {
		return nil, stats.s, err
	}

	p.logger.Infow("tile processed", append([]interface{}{
		"tile", job.Tile, "year", job.Year, "doy", job.DoY, "mode", product.Mode,
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	}, stats.s.KeysAndValues()...)...)

	return product, stats.s, nil
}

// foldTile folds the window of daily accumulators per pixel. Each day is
// added to a partial sum as soon as it is read, so at most Settings.Workers
// days and partial sums are held at once; the partials are added together at
// the end.
func (p *Processor) foldTile(ctx context.Context, job Job, target time.Time, snow bool) (*codec.Tile, error) {
	workers := max(p.settings.Workers, 1)
	partials := make(chan *codec.Tile, workers)

	ws, err := p.store.StreamWindow(ctx, job.Tile, job.Sensors, target, snow, p.settings.Temporal, workers, func(d storage.DayTile) error {
		if d.Tile.Width != job.Width || d.Tile.Height != job.Height {
			return fmt.Errorf("%w: day %s is %dx%d, job is %dx%d", codec.ErrSizeMismatch, d.Key, d.Tile.Width, d.Tile.Height, job.Width, job.Height)
		}
		var part *codec.Tile
		select {
		case part = <-partials:
		default:
			part = codec.NewTile(job.Width, job.Height)
		}
		temporal.AddDay(part.Pixels, d.Tile.Pixels, d.Offset, p.settings.Temporal)
		partials <- part
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("folding window: %w", err)
	}
	close(partials)

	full := codec.NewTile(job.Width, job.Height)
	for part := range partials {
		for i := range full.Pixels {
			full.Pixels[i] = full.Pixels[i].Add(part.Pixels[i])
		}
	}

	p.logger.Debugw("folded accumulators", "tile", job.Tile, "snow", snow,
		"days", ws.Loaded, "missing", ws.Missing, "unreadable", ws.Unreadable)
	return full, nil
}

// loadPrior returns the prior tile of the job, or nil when priors are off or
// the tile has none.
func (p *Processor) loadPrior(ctx context.Context, job Job, snow bool) (*codec.PriorTile, error) {
	if !p.settings.UsePrior {
		return nil, nil
	}
	pt, err := p.store.ReadPrior(ctx, storage.PriorKey{Tile: job.Tile, DoY: job.DoY, Snow: snow})
	switch {
	case errors.Is(err, storage.ErrNotFound):
		p.logger.Warnw("no prior for tile, inverting without it", "tile", job.Tile, "doy", job.DoY, "snow", snow)
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("reading prior: %w", err)
	}
	if pt.Width != job.Width || pt.Height != job.Height {
		return nil, fmt.Errorf("%w: prior is %dx%d, job is %dx%d", codec.ErrSizeMismatch, pt.Width, pt.Height, job.Width, job.Height)
	}
	return pt, nil
}

// forEachRow runs fn for every row with at most Settings.Workers rows in
// flight.
func (p *Processor) forEachRow(ctx context.Context, height int, fn func(y int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if p.settings.Workers > 0 {
		g.SetLimit(p.settings.Workers)
	}
	for y := 0; y < height; y++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(y)
		})
	}
	return g.Wait()
}

func (p *Processor) register(ctx context.Context, info storage.FileInfo, kind string, job Job, sensor string, snow bool) error {
	if p.registrar == nil {
		return nil
	}
	if err := p.registrar.RegisterWritten(ctx, info, kind, job.Tile, sensor, job.Year, job.DoY, snow, job.RunID); err != nil {
		return fmt.Errorf("registering %s: %w", info.Path, err)
	}
	return nil
}

func priorAt(pt *codec.PriorTile, idx int) *types.PriorEstimate {
	if pt == nil {
		return nil
	}
	return &pt.Pixels[idx]
}
