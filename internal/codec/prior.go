package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/chrissnell/globalbedo/internal/constants"
	"github.com/chrissnell/globalbedo/internal/types"
)

// PriorPlanes is the number of planes in a prior file: nine means, nine
// standard deviations, the snow fraction and a mask (non-zero where the
// prior is defined).
const PriorPlanes = 2*constants.NumParameters + 2

// PriorTile holds the prior estimates of a tile.
type PriorTile struct {
	Width  int
	Height int

	// Pixels is indexed by y*Width + x.
	Pixels []types.PriorEstimate
}

// NewPriorTile allocates a prior tile with every pixel undefined.
func NewPriorTile(width, height int) *PriorTile {
	return &PriorTile{
		Width:  width,
		Height: height,
		Pixels: make([]types.PriorEstimate, width*height),
	}
}

// At returns a pointer to the prior of pixel (x, y).
func (t *PriorTile) At(x, y int) *types.PriorEstimate {
	return &t.Pixels[y*t.Width+x]
}

// PriorTileSize returns the encoded size in bytes of a width×height prior tile.
func PriorTileSize(width, height int) int {
	return PriorPlanes * width * height * 4
}

// WritePriorTile writes t band-sequentially.
func WritePriorTile(w io.Writer, t *PriorTile) error {
	if len(t.Pixels) != t.Width*t.Height {
		return fmt.Errorf("%w: %d pixels for %dx%d prior tile", ErrSizeMismatch, len(t.Pixels), t.Width, t.Height)
	}

	const n = constants.NumParameters
	return writePlanes(w, t.Width, t.Height, PriorPlanes, func(idx, plane int) float32 {
		p := &t.Pixels[idx]
		switch {
		case plane < n:
			return float32(p.Mean[plane])
		case plane < 2*n:
			return float32(p.SD[plane-n])
		case plane == 2*n:
			return float32(p.SnowFraction)
		default:
			if p.Valid {
				return 1
			}
			return 0
		}
	})
}

// ReadPriorTile reads a prior tile written by WritePriorTile.
func ReadPriorTile(r io.Reader, width, height int) (*PriorTile, error) {
	t := NewPriorTile(width, height)

	const n = constants.NumParameters
	err := readPlanes(r, width, height, PriorPlanes, func(idx, plane int, v float32) {
		p := &t.Pixels[idx]
		switch {
		case plane < n:
			p.Mean[plane] = float64(v)
		case plane < 2*n:
			p.SD[plane-n] = float64(v)
		case plane == 2*n:
			p.SnowFraction = float64(v)
		default:
			p.Valid = v != 0 && constants.IsValid(float64(v))
		}
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// EncodePriorTile returns the file contents of t, optionally zstd-compressed.
func EncodePriorTile(t *PriorTile, compress bool) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(PriorTileSize(t.Width, t.Height))
	if err := WritePriorTile(&buf, t); err != nil {
		return nil, err
	}
	if compress {
		return Compress(buf.Bytes()), nil
	}
	return buf.Bytes(), nil
}

// DecodePriorTile parses file contents produced by EncodePriorTile.
func DecodePriorTile(data []byte, width, height int, compressed bool) (*PriorTile, error) {
	if compressed {
		raw, err := Decompress(data)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	if want := PriorTileSize(width, height); len(data) != want {
		return nil, fmt.Errorf("%w: have %d bytes, want %d for %dx%d prior tile", ErrSizeMismatch, len(data), want, width, height)
	}
	return ReadPriorTile(bytes.NewReader(data), width, height)
}
