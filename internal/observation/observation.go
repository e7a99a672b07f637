// Package observation turns single broadband reflectance observations into
// normal-equation contributions for the BRDF kernel model
//
//	reflectance_b = f0_b + f1_b·Kvol_b + f2_b·Kgeo_b
package observation

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/chrissnell/globalbedo/internal/constants"
	"github.com/chrissnell/globalbedo/internal/types"
	"github.com/chrissnell/globalbedo/pkg/linalg"
)

// Sensor identifies the instrument family an observation comes from. It
// selects the land test.
type Sensor string

const (
	SensorMERIS   Sensor = "MERIS"
	SensorAATSR   Sensor = "AATSR"
	SensorVGT     Sensor = "VGT"
	SensorPROBAV  Sensor = "PROBAV"
	SensorAVHRR   Sensor = "AVHRR"
	SensorGeneric Sensor = "GENERIC"
)

// ParseSensor maps a configured sensor name to a Sensor.
func ParseSensor(name string) (Sensor, error) {
	s := Sensor(strings.ToUpper(strings.TrimSpace(name)))
	switch s {
	case SensorMERIS, SensorAATSR, SensorVGT, SensorPROBAV, SensorAVHRR, SensorGeneric:
		return s, nil
	case "":
		return SensorGeneric, nil
	}
	return "", fmt.Errorf("unknown sensor %q", name)
}

// usesStatusMask reports whether the sensor flags land through the SM status
// bitmask rather than a boolean land flag.
func (s Sensor) usesStatusMask() bool {
	return s == SensorVGT || s == SensorPROBAV
}

// Observation is one BBDR observation of one pixel.
type Observation struct {
	Sensor Sensor

	Reflectance types.BandTriple // VIS, NIR, SW
	SD          types.BandTriple // standard deviations VIS, NIR, SW
	Correlation types.BandTriple // VIS-NIR, VIS-SW, NIR-SW
	KVol        types.BandTriple
	KGeo        types.BandTriple

	Land       bool
	StatusMask int
	SnowMask   int
}

// Options controls the validity filters.
type Options struct {
	ComputeSnow       bool
	StrictInputChecks bool
}

// Reason tells why an observation was accepted or rejected.
type Reason int

const (
	Accepted Reason = iota
	NotLand
	SnowMismatch
	InvalidReflectance
	ZeroUncertainty
	StrictCheckFailed
	SingularCovariance
)

var reasonNames = [...]string{
	Accepted:           "accepted",
	NotLand:            "not land",
	SnowMismatch:       "snow mode mismatch",
	InvalidReflectance: "invalid reflectance",
	ZeroUncertainty:    "zero uncertainty",
	StrictCheckFailed:  "strict input check failed",
	SingularCovariance: "singular covariance",
}

func (r Reason) String() string {
	if r < 0 || int(r) >= len(reasonNames) {
		return fmt.Sprintf("reason(%d)", int(r))
	}
	return reasonNames[r]
}

// Accumulate returns the normal-equation contribution of obs:
//
//	M = Kᵀ·C⁻¹·K
//	V = Kᵀ·diag(C⁻¹)·r
//	E = rᵀ·C⁻¹·r
//
// V deliberately uses only the diagonal of C⁻¹. Rejected observations yield
// the zero system with Weight 0.
func Accumulate(obs Observation, opts Options) (types.NormalEquationSystem, Reason) {
	if reason := Check(obs, opts); reason != Accepted {
		return types.NormalEquationSystem{}, reason
	}

	cInv, err := linalg.Inverse(Covariance(obs))
	if err != nil {
		return types.NormalEquationSystem{}, SingularCovariance
	}

	k := KernelMatrix(obs)
	refl := mat.NewVecDense(constants.NumBands, obs.Reflectance[:])

	m := linalg.Product(k.T(), cInv, k)

	weighted := mat.NewVecDense(constants.NumBands, nil)
	for b := 0; b < constants.NumBands; b++ {
		weighted.SetVec(b, cInv.At(b, b)*obs.Reflectance[b])
	}
	var v mat.VecDense
	v.MulVec(k.T(), weighted)

	return types.NormalEquationSystem{
		M:      types.MatrixFrom(m),
		V:      types.VectorFrom(v.RawVector().Data),
		E:      mat.Inner(refl, cInv, refl),
		Weight: 1,
	}, Accepted
}

// AccumulateAll sums the contributions of a batch of observations of one
// pixel and day.
func AccumulateAll(obs []Observation, opts Options) types.NormalEquationSystem {
	var sum types.NormalEquationSystem
	for _, o := range obs {
		s, reason := Accumulate(o, opts)
		if reason != Accepted {
			continue
		}
		sum = sum.Add(s)
	}
	return sum
}

// Covariance assembles the symmetric 3x3 reflectance covariance from the
// standard deviations and band correlations.
func Covariance(obs Observation) *mat.SymDense {
	c := mat.NewSymDense(constants.NumBands, nil)
	for b := 0; b < constants.NumBands; b++ {
		c.SetSym(b, b, obs.SD[b]*obs.SD[b])
	}
	c.SetSym(constants.BandVIS, constants.BandNIR, obs.Correlation[0]*obs.SD[constants.BandVIS]*obs.SD[constants.BandNIR])
	c.SetSym(constants.BandVIS, constants.BandSW, obs.Correlation[1]*obs.SD[constants.BandVIS]*obs.SD[constants.BandSW])
	c.SetSym(constants.BandNIR, constants.BandSW, obs.Correlation[2]*obs.SD[constants.BandNIR]*obs.SD[constants.BandSW])
	return c
}

// KernelMatrix builds the 3x9 design matrix. Row b holds 1, Kvol_b and Kgeo_b
// in the columns of band b's parameter block.
func KernelMatrix(obs Observation) *mat.Dense {
	k := mat.NewDense(constants.NumBands, constants.NumParameters, nil)
	for b := 0; b < constants.NumBands; b++ {
		col := b * constants.NumBRDFParameters
		k.Set(b, col, 1)
		k.Set(b, col+1, obs.KVol[b])
		k.Set(b, col+2, obs.KGeo[b])
	}
	return k
}

// Check applies the validity filters in order and returns the first that
// rejects obs.
func Check(obs Observation, opts Options) Reason {
	if !isLand(obs) {
		return NotLand
	}
	if snowMismatch(obs, opts.ComputeSnow) {
		return SnowMismatch
	}
	for _, r := range obs.Reflectance {
		if r == 0 || math.IsNaN(r) || isFill(r) {
			return InvalidReflectance
		}
	}
	if obs.SD[0] == 0 && obs.SD[1] == 0 && obs.SD[2] == 0 {
		return ZeroUncertainty
	}
	if opts.StrictInputChecks && !passesStrictChecks(obs) {
		return StrictCheckFailed
	}
	return Accepted
}

func isLand(obs Observation) bool {
	if obs.Sensor.usesStatusMask() {
		return obs.StatusMask&constants.VGTLandBit != 0
	}
	return obs.Land
}

func snowMismatch(obs Observation, computeSnow bool) bool {
	if computeSnow {
		return obs.SnowMask != 1
	}
	return obs.SnowMask == 1
}

func isFill(v float64) bool {
	return math.Abs(v) == constants.FillValue
}

func passesStrictChecks(obs Observation) bool {
	for _, r := range obs.Reflectance {
		if !(r > 0 && r < 1) {
			return false
		}
	}
	for _, sd := range obs.SD {
		if !(sd > 0) || isFill(sd) {
			return false
		}
	}
	for _, c := range obs.Correlation {
		if !(c >= -1 && c <= 1) {
			return false
		}
	}
	for b := 0; b < constants.NumBands; b++ {
		for _, k := range []float64{obs.KVol[b], obs.KGeo[b]} {
			if math.IsNaN(k) || math.IsInf(k, 0) || isFill(k) {
				return false
			}
		}
	}
	return true
}
