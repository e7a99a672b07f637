package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chrissnell/globalbedo/internal/log"
	"github.com/chrissnell/globalbedo/pkg/config"
)

func main() {
	var (
		yamlFile   = flag.String("yaml", "", "Path to YAML configuration file (required)")
		sqliteFile = flag.String("sqlite", "", "Path to SQLite database file (required)")
		force      = flag.Bool("force", false, "Overwrite existing SQLite database")
		dryRun     = flag.Bool("dry-run", false, "Show what would be done without executing")
	)
	flag.Parse()

	if *yamlFile == "" || *sqliteFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -yaml <config.yaml> -sqlite <config.db>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	if _, err := os.Stat(*yamlFile); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: YAML file does not exist: %s\n", *yamlFile)
		os.Exit(1)
	}

	if _, err := os.Stat(*sqliteFile); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "Error: SQLite file already exists: %s\n", *sqliteFile)
		fmt.Fprintf(os.Stderr, "Use -force to overwrite or choose a different filename\n")
		os.Exit(1)
	}

	fmt.Printf("Converting YAML configuration to SQLite...\n")
	fmt.Printf("  Source: %s\n", *yamlFile)
	fmt.Printf("  Target: %s\n", *sqliteFile)

	if *dryRun {
		fmt.Println("DRY RUN - No changes will be made")
	}

	fmt.Printf("Loading YAML configuration...\n")
	configData, err := config.NewYAMLProvider(*yamlFile).LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading YAML configuration: %v\n", err)
		os.Exit(1)
	}
	if err := configData.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	if *dryRun {
		printConfigSummary(configData)
		fmt.Println("DRY RUN complete - no database created")
		return
	}

	if *force {
		if err := os.Remove(*sqliteFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error removing existing SQLite file: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("Loading configuration into SQLite database...\n")
	if err := loadConfigIntoSQLite(*sqliteFile, configData); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration into SQLite: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Conversion completed successfully!\n")
	fmt.Printf("You can now use the SQLite backend with: -config-backend sqlite -config %s\n", *sqliteFile)
}

func loadConfigIntoSQLite(dbPath string, configData *config.ConfigData) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// The provider applies the schema migrations on open.
	sqliteProvider, err := config.NewSQLiteProvider(dbPath, log.GetSugaredLogger())
	if err != nil {
		return fmt.Errorf("failed to create SQLite provider: %w", err)
	}
	defer sqliteProvider.Close()

	if err := sqliteProvider.SaveConfig(configData); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Printf("  Configuration successfully inserted into database\n")
	return nil
}

func printConfigSummary(c *config.ConfigData) {
	fmt.Println("\nConfiguration Summary:")
	inv := c.Inversion
	fmt.Printf("Inversion:\n")
	fmt.Printf("  - half-life %.2f days, wings %d days\n", inv.HalfLife, inv.Wings)
	fmt.Printf("  - prior: %v (scale %.1f, weight %.3f)\n", inv.UsePrior, inv.PriorScaleFactor, inv.PriorWeight)
	fmt.Printf("  - snow: compute %v, merge %v\n", inv.ComputeSnow, inv.MergeSnow)

	fmt.Printf("\nStorage:\n")
	fmt.Printf("  - accumulators: %s\n", c.Storage.AccumulatorRoot)
	fmt.Printf("  - products: %s\n", c.Storage.OutputRoot)
	if c.Storage.PriorRoot != "" {
		fmt.Printf("  - priors: %s\n", c.Storage.PriorRoot)
	}
	if c.Storage.CatalogPath != "" {
		fmt.Printf("  - catalog: %s\n", c.Storage.CatalogPath)
	}

	fmt.Printf("\nRun: tile %s, %04d day %03d, %dx%d pixels\n", c.Run.Tile, c.Run.Year, c.Run.DoY, c.Run.Width, c.Run.Height)

	fmt.Printf("\nSensors (%d):\n", len(c.Sensors))
	for _, s := range c.Sensors {
		fmt.Printf("  - %s\n", s)
	}
}
