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
	"github.com/chrissnell/globalbedo/internal/bbdr"
	"github.com/chrissnell/globalbedo/internal/log"
	"github.com/chrissnell/globalbedo/internal/observation"
	"github.com/chrissnell/globalbedo/internal/pipeline"
	"github.com/chrissnell/globalbedo/internal/storage"
	"github.com/chrissnell/globalbedo/pkg/config"
)

func main() {
	var (
		cfgFile    = flag.String("config", "config.yaml", "Path to configuration source")
		cfgBackend = flag.String("config-backend", "yaml", "Configuration backend type: 'yaml' or 'sqlite'")
		obsFile    = flag.String("observations", "", "Tile observation CSV file (required)")
		sensor     = flag.String("sensor", "", "Sensor of the observations (required)")
		tile       = flag.String("tile", "", "Override the configured tile")
		snow       = flag.Bool("snow", false, "Accumulate the snow-mode accumulators")
		debug      = flag.Bool("debug", false, "Turn on debugging output")
	)
	flag.Parse()

	if *obsFile == "" || *sensor == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -config <config.yaml> -observations <tile.csv> -sensor <name>\n", os.Args[0])
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

	sens, err := observation.ParseSensor(*sensor)
	if err != nil {
		log.Fatalf("%v", err)
	}

	f, err := os.Open(*obsFile)
	if err != nil {
		log.Fatalf("Error opening observations: %v", err)
	}
	days, err := bbdr.ReadTile(f, sens, cfgData.Run.Width, cfgData.Run.Height)
	f.Close()
	if err != nil {
		log.Fatalf("Error reading %s: %v", *obsFile, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	proc, cat, err := app.New(cfgData, log.GetSugaredLogger()).Processor()
	if err != nil {
		log.Fatalf("Failed to set up processor: %v", err)
	}
	if cat != nil {
		defer cat.Close()
	}

	var total pipeline.Stats
	for _, d := range days {
		key := storage.DayKey{Tile: cfgData.Run.Tile, Sensor: string(sens), Date: d.Date, Snow: *snow}
		stats, err := proc.AccumulateDay(ctx, key, cfgData.Run.Width, cfgData.Run.Height, d.Pixels)
		if err != nil {
			log.Errorf("Accumulating %s failed: %v", key, err)
			log.Sync()
			os.Exit(1)
		}
		total.Add(stats)
	}

	log.Infow("daily accumulation complete", append([]interface{}{
		"tile", cfgData.Run.Tile, "sensor", sens, "days", len(days),
	}, total.KeysAndValues()...)...)
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
