package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/chrissnell/globalbedo/internal/app"
	"github.com/chrissnell/globalbedo/internal/log"
	"github.com/chrissnell/globalbedo/internal/pipeline"
	"github.com/chrissnell/globalbedo/internal/temporal"
	"github.com/chrissnell/globalbedo/pkg/config"
)

func main() {
	var (
		cfgFile    = flag.String("config", "config.yaml", "Path to configuration source")
		cfgBackend = flag.String("config-backend", "yaml", "Configuration backend type: 'yaml' or 'sqlite'")
		tile       = flag.String("tile", "", "Override the configured tile")
		year       = flag.Int("year", 0, "Override the configured year")
		month      = flag.Int("month", 0, "Month to average (1-12, required)")
		eightDay   = flag.Bool("eight-day", false, "Weigh 8-day products of the whole year by the monthly weighting table")
		debug      = flag.Bool("debug", false, "Turn on debugging output")
	)
	flag.Parse()

	if *month < 1 || *month > 12 {
		fmt.Fprintf(os.Stderr, "Usage: %s -config <config.yaml> -month <1-12>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfgData, err := loadConfig(*cfgFile, *cfgBackend)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *tile != "" {
		cfgData.Run.Tile = *tile
	}
	if *year != 0 {
		cfgData.Run.Year = *year
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := app.New(cfgData, log.GetSugaredLogger())
	proc, cat, err := a.Processor()
	if err != nil {
		log.Fatalf("Failed to set up processor: %v", err)
	}
	if cat != nil {
		defer cat.Close()
	}

	settings, err := pipeline.SettingsFromConfig(cfgData)
	if err != nil {
		log.Fatalf("%v", err)
	}

	job := pipeline.MonthlyJob{
		Tile:  cfgData.Run.Tile,
		Year:  cfgData.Run.Year,
		Month: *month,
		Mode:  settings.Mode(),
	}
	if *eightDay {
		job.Table = temporal.NewMonthlyWeighting(cfgData.Inversion.HalfLife)
	}

	product, err := proc.ProcessMonth(ctx, job)
	if err != nil {
		log.Errorf("Monthly averaging failed: %v", err)
		log.Sync()
		os.Exit(1)
	}

	valid := 0
	for _, px := range product.Pixels {
		if px.DataMask > 0 {
			valid++
		}
	}
	log.Infow("monthly albedo complete", "tile", job.Tile, "year", job.Year, "month", job.Month,
		"pixels", len(product.Pixels), "valid_pixels", valid)
}

func loadConfig(cfgFile, cfgBackend string) (*config.ConfigData, error) {
	filename, _ := filepath.Abs(cfgFile)

	var provider config.ConfigProvider
	var err error
	switch cfgBackend {
	case "yaml":
		provider = config.NewYAMLProvider(filename)
	case "sqlite":
		provider, err = config.NewSQLiteProvider(filename, log.GetSugaredLogger())
		if err != nil {
			return nil, fmt.Errorf("error creating SQLite provider: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported configuration backend: %s", cfgBackend)
	}
	defer provider.Close()

	return provider.LoadConfig()
}
