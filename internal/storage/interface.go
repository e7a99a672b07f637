// Package storage keeps accumulator and prior tiles on disk.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chrissnell/globalbedo/internal/codec"
)

// ErrNotFound is returned when a requested tile file does not exist.
var ErrNotFound = errors.New("storage: tile not found")

// DayKey identifies the daily accumulator of one sensor.
type DayKey struct {
	Tile   string
	Sensor string
	Date   time.Time
	Snow   bool
}

func (k DayKey) String() string {
	s := fmt.Sprintf("%s/%s/%s", k.Tile, k.Sensor, k.Date.Format("2006-01-02"))
	if k.Snow {
		s += "/snow"
	}
	return s
}

// FullKey identifies a temporally folded accumulator.
type FullKey struct {
	Tile string
	Year int
	DoY  int
	Snow bool
}

// PriorKey identifies the prior of a tile for one day of year.
type PriorKey struct {
	Tile string
	DoY  int
	Snow bool
}

// ProductKey identifies an albedo product. A non-zero Month selects the
// monthly product of that month instead of a daily one.
type ProductKey struct {
	Tile  string
	Year  int
	DoY   int
	Month int
	Mode  string
}

// FileInfo describes a tile file that was written.
type FileInfo struct {
	Path   string
	Bytes  int64
	Digest uint64
}

// DayTile is a daily accumulator together with its offset from the target
// date.
type DayTile struct {
	Key    DayKey
	Offset int
	Tile   *codec.Tile
}

// AccumulatorStore reads and writes accumulator tiles.
type AccumulatorStore interface {
	WriteDaily(ctx context.Context, key DayKey, t *codec.Tile) (FileInfo, error)
	ReadDaily(ctx context.Context, key DayKey) (*codec.Tile, error)
	WriteFull(ctx context.Context, key FullKey, t *codec.Tile) (FileInfo, error)
	ReadFull(ctx context.Context, key FullKey) (*codec.Tile, error)
}

// PriorSource provides prior tiles.
type PriorSource interface {
	ReadPrior(ctx context.Context, key PriorKey) (*codec.PriorTile, error)
}

// ProductStore keeps encoded albedo products.
type ProductStore interface {
	WriteProduct(ctx context.Context, key ProductKey, data []byte) (FileInfo, error)
	ReadProduct(ctx context.Context, key ProductKey) ([]byte, error)
}
