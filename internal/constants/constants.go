// Package constants defines application-wide constants and version information.
package constants

import (
	"math"
	"runtime"
)

// Version holds the application version information
const Version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

// Model dimensions. Parameters are stored band-major: index = 3*band + param.
const (
	NumBands          = 3 // VIS, NIR, SW
	NumBRDFParameters = 3 // f0 (isotropic), f1 (volumetric), f2 (geometric)
	NumParameters     = NumBands * NumBRDFParameters

	// RecordLength is the number of float32 values in one serialized
	// normal-equation record: M (row-major), V, E, weight.
	RecordLength = NumParameters*NumParameters + NumParameters + 2

	// NumBandPairs is the number of distinct band pairs (VIS-NIR, VIS-SW, NIR-SW).
	NumBandPairs = NumBands * (NumBands - 1) / 2
)

// Band indices.
const (
	BandVIS = iota
	BandNIR
	BandSW
)

// Inversion defaults.
const (
	HalfLife     = 11.54
	DefaultWings = 540

	PriorScaleFactor = 30.0
	PriorWeight      = 0.01

	// Snow mode needs a prior snow fraction above SnowFractionMin; no-snow
	// mode needs it below NoSnowFractionMax.
	SnowFractionMin   = 0.03
	NoSnowFractionMax = 0.93

	// FillValue marks missing reflectance in BBDR inputs (both signs occur).
	FillValue = 9999.0

	// VGTLandBit is the land bit of the VGT/PROBA-V status mask.
	VGTLandBit = 8
)

// NoData is the sentinel written for every missing or meaningless output value.
var NoData = math.NaN()

// IsValid reports whether v carries data.
func IsValid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
