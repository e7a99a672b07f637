package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/chrissnell/globalbedo/internal/bbdr"
	"github.com/chrissnell/globalbedo/internal/log"
	"github.com/chrissnell/globalbedo/internal/observation"
	"github.com/chrissnell/globalbedo/internal/pipeline"
	"github.com/chrissnell/globalbedo/internal/temporal"
	"github.com/chrissnell/globalbedo/internal/types"
)

func main() {
	var (
		obsFile   = flag.String("observations", "", "Observation CSV file (required)")
		priorFile = flag.String("prior", "", "Optional prior CSV file")
		snowPrior = flag.String("snow-prior", "", "Optional snow prior CSV file (merge and snow modes)")
		sensor    = flag.String("sensor", "MERIS", "Sensor of the observations")
		year      = flag.Int("year", 0, "Target year (required)")
		doy       = flag.Int("doy", 0, "Target day of year (required)")
		latitude  = flag.Float64("latitude", 0, "Pixel latitude in degrees")
		longitude = flag.Float64("longitude", 0, "Pixel longitude in degrees, east positive")
		precise   = flag.Bool("precise-zenith", false, "Use the zenith at true local solar noon")
		wings     = flag.Int("wings", 0, "Days on each side of the target (default 540)")
		snow      = flag.Bool("snow", false, "Invert in snow mode")
		merge     = flag.Bool("merge", false, "Invert both modes and merge them")
		strict    = flag.Bool("strict", false, "Apply the strict input checks")
		csvOutput = flag.String("csv", "", "Optional CSV output file path")
		plotFile  = flag.String("plot", "", "Optional PNG of modelled against observed reflectance")
		debug     = flag.Bool("debug", false, "Turn on debugging output")
	)
	flag.Parse()

	if *obsFile == "" || *year == 0 || *doy == 0 {
		fmt.Fprintf(os.Stderr, "Usage: %s -observations <obs.csv> -year <yyyy> -doy <ddd>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	sens, err := observation.ParseSensor(*sensor)
	if err != nil {
		log.Fatalf("%v", err)
	}

	f, err := os.Open(*obsFile)
	if err != nil {
		log.Fatalf("Error opening observations: %v", err)
	}
	obs, err := bbdr.ReadObservations(f, sens)
	f.Close()
	if err != nil {
		log.Fatalf("Error reading %s: %v", *obsFile, err)
	}

	s := pipeline.DefaultSettings()
	s.UsePrior = *priorFile != "" || *snowPrior != ""
	s.ComputeSnow = *snow
	s.MergeSnow = *merge
	s.StrictInputChecks = *strict
	s.PreciseZenith = *precise
	if *wings > 0 {
		s.Temporal.Wings = *wings
	}

	var priors pipeline.Priors
	if priors.NoSnow, err = loadPrior(*priorFile); err != nil {
		log.Fatalf("Error reading prior: %v", err)
	}
	if priors.Snow, err = loadPrior(*snowPrior); err != nil {
		log.Fatalf("Error reading snow prior: %v", err)
	}

	target := temporal.DateFromYearDay(*year, *doy)
	var stats pipeline.Stats
	out := pipeline.RunPixel(obs, target, priors, pipeline.Location{Latitude: *latitude, Longitude: *longitude}, s, &stats)
	log.Debugw("pixel inverted", stats.KeysAndValues()...)

	for _, m := range out.Modes {
		printInversion(m)
	}
	fmt.Printf("\nAlbedo (%s):\n", s.Mode())
	printAlbedo(os.Stdout, out.Albedo)

	if *plotFile != "" {
		if err := savePlot(*plotFile, obs, out.Modes[0], *strict); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing plot: %v\n", err)
			os.Exit(1)
		}
	}

	if *csvOutput != "" {
		if err := writeCSV(*csvOutput, out); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing CSV: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nResults written to %s\n", *csvOutput)
	}
}

func loadPrior(path string) (*types.PriorEstimate, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return bbdr.ReadPrior(f)
}

func printInversion(m pipeline.ModeResult) {
	inv := m.Inversion
	fmt.Printf("Mode %s:\n", m.Mode)
	fmt.Printf("  Valid:           %v (prior %v, fallback %v)\n", inv.Valid, inv.UsedPrior, inv.Fallback)
	fmt.Printf("  Samples:         %.0f (closest %d days)\n", inv.WeightedSampleCount, inv.ClosestSampleDistance)
	fmt.Printf("  Parameters:      %.5f\n", inv.Parameters[:])
	fmt.Printf("  Entropy:         %.4f (relative %.4f)\n", inv.Entropy, inv.RelativeEntropy)
	fmt.Printf("  Goodness of fit: %.4f\n", inv.GoodnessOfFit)
}

func printAlbedo(w io.Writer, a types.AlbedoResult) {
	fmt.Fprintf(w, "  BSA:        %.5f\n", a.BSA[:])
	fmt.Fprintf(w, "  WSA:        %.5f\n", a.WSA[:])
	fmt.Fprintf(w, "  Sigma BSA:  %.5f\n", a.SigmaBSA[:])
	fmt.Fprintf(w, "  Sigma WSA:  %.5f\n", a.SigmaWSA[:])
	fmt.Fprintf(w, "  SZA:        %.2f°\n", a.SZA)
	fmt.Fprintf(w, "  Snow frac:  %.3f\n", a.SnowFraction)
	fmt.Fprintf(w, "  Data mask:  %.0f\n", a.DataMask)
}

type albedoRow struct {
	mode string
	a    types.AlbedoResult
}

func writeCSV(path string, out pipeline.PixelOutcome) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"mode", "band", "bsa", "wsa", "sigma_bsa", "sigma_wsa", "data_mask"}
	if err := writer.Write(header); err != nil {
		return err
	}

	rows := make([]albedoRow, 0, len(out.Modes)+1)
	for _, m := range out.Modes {
		rows = append(rows, albedoRow{string(m.Mode), m.Albedo})
	}
	if len(out.Modes) > 1 {
		rows = append(rows, albedoRow{string(pipeline.ModeMerged), out.Albedo})
	}

	bands := []string{"vis", "nir", "sw"}
	for _, r := range rows {
		for b, band := range bands {
			rec := []string{
				r.mode, band,
				fmtFloat(r.a.BSA[b]), fmtFloat(r.a.WSA[b]),
				fmtFloat(r.a.SigmaBSA[b]), fmtFloat(r.a.SigmaWSA[b]),
				fmtFloat(r.a.DataMask),
			}
			if err := writer.Write(rec); err != nil {
				return err
			}
		}
	}
	return writer.Error()
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
