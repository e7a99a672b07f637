package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/chrissnell/globalbedo/internal/catalog"
	"github.com/chrissnell/globalbedo/internal/observation"
	"github.com/chrissnell/globalbedo/internal/pipeline"
	"github.com/chrissnell/globalbedo/internal/storage"
	"github.com/chrissnell/globalbedo/pkg/config"
)

// App represents the main application
type App struct {
	config *config.ConfigData
	logger *zap.SugaredLogger
}

// New creates a new application instance
func New(cfg *config.ConfigData, logger *zap.SugaredLogger) *App {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &App{
		config: cfg,
		logger: logger,
	}
}

// Processor builds the tile processor described by the configuration. The
// returned catalog is nil when no catalog path is configured; the caller
// closes it otherwise.
func (a *App) Processor() (*pipeline.Processor, *catalog.Catalog, error) {
	settings, err := pipeline.SettingsFromConfig(a.config)
	if err != nil {
		return nil, nil, err
	}

	st := a.config.Storage
	store := storage.NewFileStore(storage.Roots{
		Accumulators: st.AccumulatorRoot,
		Priors:       st.PriorRoot,
		Products:     st.OutputRoot,
	}, a.config.Run.Width, a.config.Run.Height, st.Compress)

	if st.CatalogPath == "" {
		return pipeline.NewProcessor(store, nil, settings, a.logger), nil, nil
	}

	cat, err := catalog.Open(st.CatalogPath, a.logger)
	if err != nil {
		return nil, nil, err
	}
	return pipeline.NewProcessor(store, cat, settings, a.logger), cat, nil
}

// Sensors returns the configured sensors in canonical form.
func (a *App) Sensors() ([]string, error) {
	out := make([]string, 0, len(a.config.Sensors))
	for _, name := range a.config.Sensors {
		s, err := observation.ParseSensor(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
		}
		out = append(out, string(s))
	}
	return out, nil
}

// Run inverts the configured tile and day. SIGINT and SIGTERM cancel the
// run; partial products are never written.
func (a *App) Run(ctx context.Context) error {
	if err := a.config.Validate(); err != nil {
		return err
	}
	sensors, err := a.Sensors()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	proc, cat, err := a.Processor()
	if err != nil {
		return err
	}
	if cat != nil {
		defer cat.Close()
	}

	r := a.config.Run
	job := pipeline.Job{
		Tile:          r.Tile,
		Year:          r.Year,
		DoY:           r.DoY,
		Width:         r.Width,
		Height:        r.Height,
		Sensors:       sensors,
		NorthLatitude: r.NorthLatitude,
		SouthLatitude: r.SouthLatitude,
		Longitude:     r.Longitude,
	}

	settings, _ := pipeline.SettingsFromConfig(a.config)
	var run *catalog.Run
	if cat != nil {
		run, err = cat.StartRun(ctx, job.Tile, job.Year, job.DoY, string(settings.Mode()))
		if err != nil {
			return err
		}
		job.RunID = run.ID
	}

	a.logger.Infow("starting inversion", "tile", job.Tile, "year", job.Year, "doy", job.DoY,
		"mode", settings.Mode(), "sensors", sensors, "workers", settings.Workers)

	_, stats, runErr := proc.ProcessTile(ctx, job)

	if run != nil {
		// The run context may be cancelled already; the run row must still be closed.
		err := cat.FinishRun(context.WithoutCancel(ctx), run, catalog.RunStats{
			Pixels:         stats.Pixels,
			ValidPixels:    stats.ValidPixels,
			FallbackPixels: stats.Fallback,
		}, runErr)
		if err != nil {
			a.logger.Errorw("failed to close run", "run", run.ID, "error", err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("processing tile %s: %w", job.Tile, runErr)
	}
	a.logger.Info("inversion complete")
	return nil
}
