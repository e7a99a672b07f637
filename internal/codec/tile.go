package codec

import (
	"fmt"
	"io"
	"math"

	"github.com/chrissnell/globalbedo/internal/constants"
	"github.com/chrissnell/globalbedo/internal/types"
)

// Tile is a rectangular block of per-pixel normal-equation systems.
type Tile struct {
	Width  int
	Height int

	// Pixels is indexed by y*Width + x.
	Pixels []types.NormalEquationSystem
}

// NewTile allocates an empty tile.
func NewTile(width, height int) *Tile {
	return &Tile{
		Width:  width,
		Height: height,
		Pixels: make([]types.NormalEquationSystem, width*height),
	}
}

// At returns a pointer to the pixel at (x, y).
func (t *Tile) At(x, y int) *types.NormalEquationSystem {
	return &t.Pixels[y*t.Width+x]
}

// Planes returns the number of planes in a tile file.
func Planes(full bool) int {
	if full {
		return constants.RecordLength + 1
	}
	return constants.RecordLength
}

// TileSize returns the encoded size in bytes of a width×height tile.
func TileSize(width, height int, full bool) int {
	return Planes(full) * width * height * 4
}

// WriteTile writes t band-sequentially. When full is set the closest sample
// distance plane is appended.
func WriteTile(w io.Writer, t *Tile, full bool) error {
	if len(t.Pixels) != t.Width*t.Height {
		return fmt.Errorf("%w: %d pixels for %dx%d tile", ErrSizeMismatch, len(t.Pixels), t.Width, t.Height)
	}

	values := make([][constants.RecordLength]float32, len(t.Pixels))
	for i := range t.Pixels {
		values[i] = Values(t.Pixels[i])
	}

	return writePlanes(w, t.Width, t.Height, Planes(full), func(idx, plane int) float32 {
		if plane < constants.RecordLength {
			return values[idx][plane]
		}
		return float32(t.Pixels[idx].ClosestSampleDistance)
	})
}

// ReadTile reads a width×height tile written by WriteTile.
func ReadTile(r io.Reader, width, height int, full bool) (*Tile, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid tile size %dx%d", ErrSizeMismatch, width, height)
	}

	n := width * height
	values := make([][constants.RecordLength]float32, n)
	closest := make([]float32, n)

	err := readPlanes(r, width, height, Planes(full), func(idx, plane int, v float32) {
		if plane < constants.RecordLength {
			values[idx][plane] = v
		} else {
			closest[idx] = v
		}
	})
	if err != nil {
		return nil, err
	}

	t := NewTile(width, height)
	for i := range t.Pixels {
		t.Pixels[i] = FromValues(values[i])
		if full && !math.IsNaN(float64(closest[i])) {
			t.Pixels[i].ClosestSampleDistance = int(closest[i])
		}
	}
	return t, nil
}
