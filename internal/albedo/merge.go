package albedo

import (
	"math"

	"github.com/chrissnell/globalbedo/internal/constants"
	"github.com/chrissnell/globalbedo/internal/types"
)

// Merge blends a snow-mode and a snow-free product of the same pixel in
// proportion to their weighted sample counts. When only one side has samples
// its values are taken unchanged. When neither has samples the result is
// NoData, keeping the solar zenith angle.
func Merge(snow, noSnow types.AlbedoResult) types.AlbedoResult {
	nSnow := samples(snow.WeightedSampleCount)
	nNoSnow := samples(noSnow.WeightedSampleCount)

	out := types.NoDataAlbedo()
	out.SZA = noSnow.SZA
	if !constants.IsValid(out.SZA) {
		out.SZA = snow.SZA
	}

	total := nSnow + nNoSnow
	if total == 0 {
		return out
	}
	pSnow := nSnow / total
	pNoSnow := 1 - pSnow

	outFields := out.Fields()
	snowFields := snow.Fields()
	noSnowFields := noSnow.Fields()
	for i := range outFields {
		*outFields[i] = mergeValue(*noSnowFields[i], *snowFields[i], pNoSnow, pSnow)
	}

	out.DataMask = math.Max(mask(snow.DataMask), mask(noSnow.DataMask))
	out.SnowFraction = pSnow
	if out.DataMask == 0 {
		out.WeightedSampleCount = constants.NoData
	}
	return out
}

func mergeValue(noSnow, snow, pNoSnow, pSnow float64) float64 {
	switch {
	case pSnow == 0:
		return noSnow
	case pNoSnow == 0:
		return snow
	case !constants.IsValid(noSnow) || !constants.IsValid(snow):
		return constants.NoData
	default:
		return noSnow*pNoSnow + snow*pSnow
	}
}

func samples(n float64) float64 {
	if !constants.IsValid(n) || n < 0 {
		return 0
	}
	return n
}

func mask(m float64) float64 {
	if !constants.IsValid(m) {
		return 0
	}
	return m
}
