package albedo

import (
	"gonum.org/v1/gonum/floats"

	"github.com/chrissnell/globalbedo/internal/constants"
	"github.com/chrissnell/globalbedo/internal/temporal"
	"github.com/chrissnell/globalbedo/internal/types"
)

// Dated is an albedo product of one pixel tagged with its day of year.
type Dated struct {
	DoY    int
	Result types.AlbedoResult
}

// WeightFunc returns the averaging weight of a product with the given day of
// year.
type WeightFunc func(doy int) float64

// UniformWeights weighs every product equally, as for daily inputs.
func UniformWeights(int) float64 { return 1 }

// MonthlyTableWeights weighs 8-day products by the climatological table row
// of month (1-12).
func MonthlyTableWeights(table *temporal.MonthlyWeighting, month int) WeightFunc {
	return func(doy int) float64 {
		return table.Weight(month, doy)
	}
}

// MonthlyAverage returns the weighted mean of the products whose data mask
// is set. Each field is divided by the sum of the weights of the products
// that actually supplied a valid value for it, so missing periods do not bias
// the mean. Without any usable product the result is NoData.
func MonthlyAverage(products []Dated, weight WeightFunc) types.AlbedoResult {
	if weight == nil {
		weight = UniformWeights
	}

	out := types.NoDataAlbedo()
	outFields := out.Fields()
	sums := make([]float64, len(outFields)+1)
	norms := make([]float64, len(outFields)+1)
	used := 0

	for _, p := range products {
		if !(p.Result.DataMask > 0) {
			continue
		}
		w := weight(p.DoY)
		if !(w > 0) {
			continue
		}
		used++

		r := p.Result
		values := append(derefAll(r.Fields()), r.SZA)
		for i, v := range values {
			if !constants.IsValid(v) {
				continue
			}
			sums[i] += w * v
			norms[i] += w
		}
	}

	if used == 0 {
		return out
	}

	means := make([]float64, len(sums))
	for i := range sums {
		means[i] = constants.NoData
		if norms[i] > 0 {
			means[i] = sums[i] / norms[i]
		}
	}
	for i, f := range outFields {
		*f = means[i]
	}
	out.SZA = means[len(means)-1]
	out.DataMask = 1
	return out
}

// TotalWeight returns the sum of the weights MonthlyAverage uses: those of
// the products passing the data mask gate with a positive weight.
func TotalWeight(products []Dated, weight WeightFunc) float64 {
	if weight == nil {
		weight = UniformWeights
	}
	ws := make([]float64, 0, len(products))
	for _, p := range products {
		if w := weight(p.DoY); p.Result.DataMask > 0 && w > 0 {
			ws = append(ws, w)
		}
	}
	return floats.Sum(ws)
}

func derefAll(ps []*float64) []float64 {
	out := make([]float64, len(ps))
	for i, p := range ps {
		out[i] = *p
	}
	return out
}
