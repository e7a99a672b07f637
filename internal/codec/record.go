// Package codec reads and writes normal-equation systems in the flat
// float32 layout shared with existing accumulator archives.
//
// A record is 92 big-endian float32 values: M row-major (81), V (9), E and
// the weight. Tile files store the same values band-sequentially: one plane
// of width×height values per record element, each plane ordered by column
// (x) then row (y). Folded accumulators add a 93rd plane with the closest
// sample distance.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/chrissnell/globalbedo/internal/constants"
	"github.com/chrissnell/globalbedo/internal/types"
)

// RecordSize is the encoded size of one record in bytes.
const RecordSize = constants.RecordLength * 4

var (
	// ErrShortRecord is returned when a buffer is too small for a record or tile.
	ErrShortRecord = errors.New("codec: short record")
	// ErrSizeMismatch is returned when a tile's dimensions do not match its data.
	ErrSizeMismatch = errors.New("codec: size mismatch")
)

// byteOrder is the byte order of every archive value.
var byteOrder = binary.BigEndian

// Values flattens s into the 92-element record layout.
func Values(s types.NormalEquationSystem) [constants.RecordLength]float32 {
	var out [constants.RecordLength]float32
	n := 0
	for i := range s.M {
		for j := range s.M[i] {
			out[n] = float32(s.M[i][j])
			n++
		}
	}
	for i := range s.V {
		out[n] = float32(s.V[i])
		n++
	}
	out[n] = float32(s.E)
	out[n+1] = float32(s.Weight)
	return out
}

// FromValues rebuilds a system from the 92-element record layout. The
// closest sample distance is not part of a record and is left at 0.
func FromValues(v [constants.RecordLength]float32) types.NormalEquationSystem {
	var s types.NormalEquationSystem
	n := 0
	for i := range s.M {
		for j := range s.M[i] {
			s.M[i][j] = float64(v[n])
			n++
		}
	}
	for i := range s.V {
		s.V[i] = float64(v[n])
		n++
	}
	s.E = float64(v[n])
	s.Weight = float64(v[n+1])
	return s
}

// AppendRecord appends the encoded record of s to dst.
func AppendRecord(dst []byte, s types.NormalEquationSystem) []byte {
	for _, v := range Values(s) {
		dst = byteOrder.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

// MarshalRecord encodes s as a 368-byte record.
func MarshalRecord(s types.NormalEquationSystem) []byte {
	return AppendRecord(make([]byte, 0, RecordSize), s)
}

// UnmarshalRecord decodes one record from the start of b.
func UnmarshalRecord(b []byte) (types.NormalEquationSystem, error) {
	if len(b) < RecordSize {
		return types.NormalEquationSystem{}, fmt.Errorf("%w: have %d bytes, need %d", ErrShortRecord, len(b), RecordSize)
	}
	var v [constants.RecordLength]float32
	for i := range v {
		v[i] = math.Float32frombits(byteOrder.Uint32(b[4*i:]))
	}
	return FromValues(v), nil
}
