package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"

	"github.com/chrissnell/globalbedo/internal/albedo"
	"github.com/chrissnell/globalbedo/internal/catalog"
	"github.com/chrissnell/globalbedo/internal/storage"
	"github.com/chrissnell/globalbedo/internal/temporal"
)

// MonthlyJob selects the products averaged into a monthly product.
type MonthlyJob struct {
	Tile  string
	Year  int
	Month int
	Mode  Mode

	// Table weighs every product of the year by the climatological monthly
	// weighting. Without it only the products of the month count, equally.
	Table *temporal.MonthlyWeighting
	RunID uuid.UUID
}

// candidateDays lists the days of year whose products may contribute.
func (j MonthlyJob) candidateDays() []int {
	first := time.Date(j.Year, time.Month(j.Month), 1, 0, 0, 0, 0, time.UTC)
	if j.Table == nil {
		last := first.AddDate(0, 1, -1)
		days := make([]int, 0, 31)
		for d := first.YearDay(); d <= last.YearDay(); d++ {
			days = append(days, d)
		}
		return days
	}

	n := time.Date(j.Year, time.December, 31, 0, 0, 0, 0, time.UTC).YearDay()
	days := make([]int, 0, n)
	for d := 1; d <= n; d++ {
		if j.Table.Weight(j.Month, d) > 0 {
			days = append(days, d)
		}
	}
	return days
}

func (j MonthlyJob) weights() albedo.WeightFunc {
	if j.Table == nil {
		return albedo.UniformWeights
	}
	return albedo.MonthlyTableWeights(j.Table, j.Month)
}

// ProcessMonth averages the stored daily products of a month into a monthly
// product and stores it. Missing days are skipped.
func (p *Processor) ProcessMonth(ctx context.Context, job MonthlyJob) (*Product, error) {
	if job.Month < 1 || job.Month > 12 {
		return nil, fmt.Errorf("month must be in 1..12, got %d", job.Month)
	}

	weight := job.weights()
	candidates := job.candidateDays()
	nominal := make([]float64, len(candidates))
	for i, doy := range candidates {
		nominal[i] = weight(doy)
	}
	nominalWeight := floats.Sum(nominal)

	var products []*Product
	var doys []int
	for _, doy := range candidates {
		data, err := p.store.ReadProduct(ctx, storage.ProductKey{Tile: job.Tile, Year: job.Year, DoY: doy, Mode: string(job.Mode)})
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading product of day %d: %w", doy, err)
		}
		prod, err := DecodeProduct(data)
		if err != nil {
			p.logger.Warnw("skipping undecodable product", "tile", job.Tile, "year", job.Year, "doy", doy, "error", err)
			continue
		}
		if len(products) > 0 && (prod.Width != products[0].Width || prod.Height != products[0].Height) {
			return nil, fmt.Errorf("product of day %d is %dx%d, earlier products are %dx%d", doy, prod.Width, prod.Height, products[0].Width, products[0].Height)
		}
		products = append(products, prod)
		doys = append(doys, doy)
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("%w: no products for %s %04d-%02d", storage.ErrNotFound, job.Tile, job.Year, job.Month)
	}

	width, height := products[0].Width, products[0].Height
	monthly := NewProduct(ProductHeader{
		Tile:   job.Tile,
		Year:   job.Year,
		Month:  job.Month,
		Mode:   job.Mode,
		Width:  width,
		Height: height,
	})

	rowCoverage := make([]float64, height)
	err := p.forEachRow(ctx, height, func(y int) error {
		dated := make([]albedo.Dated, len(products))
		for x := 0; x < width; x++ {
			idx := y*width + x
			for i, prod := range products {
				dated[i] = albedo.Dated{DoY: doys[i], Result: prod.Pixels[idx]}
			}
			monthly.Pixels[idx] = albedo.MonthlyAverage(dated, weight)
			if nominalWeight > 0 {
				rowCoverage[y] += albedo.TotalWeight(dated, weight) / nominalWeight
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	monthly.Coverage = floats.Sum(rowCoverage) / float64(width*height)

	data, err := EncodeProduct(monthly)
	if err != nil {
		return nil, err
	}
	info, err := p.store.WriteProduct(ctx, storage.ProductKey{Tile: job.Tile, Year: job.Year, Month: job.Month, Mode: string(job.Mode)}, data)
	if err != nil {
		return nil, fmt.Errorf("writing monthly product: %w", err)
	}
	if err := p.register(ctx, info, catalog.KindProduct, Job{Tile: job.Tile, Year: job.Year, RunID: job.RunID}, "", job.Mode == ModeSnow); err != nil {
		return nil, err
	}

	p.logger.Infow("monthly product written", "tile", job.Tile, "year", job.Year, "month", job.Month,
		"mode", job.Mode, "products", len(products), "coverage", monthly.Coverage, "path", info.Path)
	return monthly, nil
}
