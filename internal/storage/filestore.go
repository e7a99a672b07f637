package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/chrissnell/globalbedo/internal/codec"
	"github.com/chrissnell/globalbedo/internal/log"
	"github.com/chrissnell/globalbedo/internal/temporal"
)

const zstdSuffix = ".zst"

// Roots are the directories a FileStore keeps its files in.
type Roots struct {
	Accumulators string
	Priors       string
	Products     string
}

// FileStore keeps tiles as flat files:
//
//	<accumulators>/<tile>/<year>/<sensor>/matrices_<yyyyDDD>[_snow].bin[.zst]
//	<accumulators>/<tile>/<year>/full/matrices_full_<yyyyDDD>[_snow].bin[.zst]
//	<priors>/<tile>/prior_<DDD>_<snow|nosnow>.bin[.zst]
//	<products>/<tile>/<year>/albedo_<yyyyDDD>_<mode>.msgpack[.zst]
//	<products>/<tile>/<year>/albedo_monthly_<yyyyMM>_<mode>.msgpack[.zst]
//
// Reads accept either the compressed or the raw variant.
type FileStore struct {
	roots    Roots
	width    int
	height   int
	compress bool
}

// NewFileStore creates a store for width×height tiles. Files are written
// zstd-compressed when compress is set.
func NewFileStore(roots Roots, width, height int, compress bool) *FileStore {
	return &FileStore{
		roots:    roots,
		width:    width,
		height:   height,
		compress: compress,
	}
}

// DailyPath returns the raw path of a daily accumulator.
func (s *FileStore) DailyPath(key DayKey) string {
	name := fmt.Sprintf("matrices_%04d%03d", key.Date.Year(), key.Date.YearDay())
	if key.Snow {
		name += "_snow"
	}
	return filepath.Join(s.roots.Accumulators, key.Tile, fmt.Sprintf("%04d", key.Date.Year()), key.Sensor, name+".bin")
}

// FullPath returns the raw path of a folded accumulator.
func (s *FileStore) FullPath(key FullKey) string {
	name := fmt.Sprintf("matrices_full_%04d%03d", key.Year, key.DoY)
	if key.Snow {
		name += "_snow"
	}
	return filepath.Join(s.roots.Accumulators, key.Tile, fmt.Sprintf("%04d", key.Year), "full", name+".bin")
}

// PriorPath returns the raw path of a prior tile.
func (s *FileStore) PriorPath(key PriorKey) string {
	mode := "nosnow"
	if key.Snow {
		mode = "snow"
	}
	return filepath.Join(s.roots.Priors, key.Tile, fmt.Sprintf("prior_%03d_%s.bin", key.DoY, mode))
}

// ProductPath returns the raw path of an albedo product.
func (s *FileStore) ProductPath(key ProductKey) string {
	name := fmt.Sprintf("albedo_%04d%03d_%s", key.Year, key.DoY, key.Mode)
	if key.Month > 0 {
		name = fmt.Sprintf("albedo_monthly_%04d%02d_%s", key.Year, key.Month, key.Mode)
	}
	return filepath.Join(s.roots.Products, key.Tile, fmt.Sprintf("%04d", key.Year), name+".msgpack")
}

// WriteDaily stores the daily accumulator t.
func (s *FileStore) WriteDaily(ctx context.Context, key DayKey, t *codec.Tile) (FileInfo, error) {
	if err := s.checkSize(t.Width, t.Height); err != nil {
		return FileInfo{}, err
	}
	data, err := codec.EncodeTile(t, false, s.compress)
	if err != nil {
		return FileInfo{}, fmt.Errorf("encoding daily tile %s: %w", key, err)
	}
	return s.writeFile(ctx, s.DailyPath(key), data)
}

// ReadDaily loads a daily accumulator. It returns ErrNotFound if neither
// variant of the file exists.
func (s *FileStore) ReadDaily(ctx context.Context, key DayKey) (*codec.Tile, error) {
	data, compressed, err := s.readFile(ctx, s.DailyPath(key))
	if err != nil {
		return nil, err
	}
	t, err := codec.DecodeTile(data, s.width, s.height, false, compressed)
	if err != nil {
		return nil, fmt.Errorf("decoding daily tile %s: %w", key, err)
	}
	return t, nil
}

// WriteFull stores a folded accumulator, including its closest sample
// distance plane.
func (s *FileStore) WriteFull(ctx context.Context, key FullKey, t *codec.Tile) (FileInfo, error) {
	if err := s.checkSize(t.Width, t.Height); err != nil {
		return FileInfo{}, err
	}
	data, err := codec.EncodeTile(t, true, s.compress)
	if err != nil {
		return FileInfo{}, fmt.Errorf("encoding full tile %s/%d/%03d: %w", key.Tile, key.Year, key.DoY, err)
	}
	return s.writeFile(ctx, s.FullPath(key), data)
}

// ReadFull loads a folded accumulator.
func (s *FileStore) ReadFull(ctx context.Context, key FullKey) (*codec.Tile, error) {
	data, compressed, err := s.readFile(ctx, s.FullPath(key))
	if err != nil {
		return nil, err
	}
	t, err := codec.DecodeTile(data, s.width, s.height, true, compressed)
	if err != nil {
		return nil, fmt.Errorf("decoding full tile %s/%d/%03d: %w", key.Tile, key.Year, key.DoY, err)
	}
	return t, nil
}

// WritePrior stores a prior tile.
func (s *FileStore) WritePrior(ctx context.Context, key PriorKey, t *codec.PriorTile) (FileInfo, error) {
	if err := s.checkSize(t.Width, t.Height); err != nil {
		return FileInfo{}, err
	}
	data, err := codec.EncodePriorTile(t, s.compress)
	if err != nil {
		return FileInfo{}, fmt.Errorf("encoding prior tile %s/%03d: %w", key.Tile, key.DoY, err)
	}
	return s.writeFile(ctx, s.PriorPath(key), data)
}

// ReadPrior loads a prior tile.
func (s *FileStore) ReadPrior(ctx context.Context, key PriorKey) (*codec.PriorTile, error) {
	data, compressed, err := s.readFile(ctx, s.PriorPath(key))
	if err != nil {
		return nil, err
	}
	t, err := codec.DecodePriorTile(data, s.width, s.height, compressed)
	if err != nil {
		return nil, fmt.Errorf("decoding prior tile %s/%03d: %w", key.Tile, key.DoY, err)
	}
	return t, nil
}

// WriteProduct stores an encoded albedo product.
func (s *FileStore) WriteProduct(ctx context.Context, key ProductKey, data []byte) (FileInfo, error) {
	if s.compress {
		data = codec.Compress(data)
	}
	return s.writeFile(ctx, s.ProductPath(key), data)
}

// ReadProduct returns the encoded albedo product of key.
func (s *FileStore) ReadProduct(ctx context.Context, key ProductKey) ([]byte, error) {
	data, compressed, err := s.readFile(ctx, s.ProductPath(key))
	if err != nil {
		return nil, err
	}
	if compressed {
		return codec.Decompress(data)
	}
	return data, nil
}

// WindowStats counts the daily accumulators of a fold window.
type WindowStats struct {
	Loaded     int
	Missing    int
	Unreadable int
}

// StreamWindow reads the daily accumulators of every sensor within the fold
// window around target and hands each one to fn as soon as it is decoded. At
// most workers reads, and so at most workers decoded tiles, are in flight.
// fn runs concurrently and must not keep the tile. Missing days are skipped;
// days that cannot be decoded are logged and skipped.
func (s *FileStore) StreamWindow(ctx context.Context, tile string, sensors []string, target time.Time, snow bool, p temporal.Params, workers int, fn func(DayTile) error) (WindowStats, error) {
	var (
		mu    sync.Mutex
		stats WindowStats
	)
	count := func(n *int) {
		mu.Lock()
		*n++
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	for _, date := range temporal.Window(target, p) {
		for _, sensor := range sensors {
			key := DayKey{Tile: tile, Sensor: sensor, Date: date, Snow: snow}
			offset := temporal.DayOffset(target, date)

			g.Go(func() error {
				t, err := s.ReadDaily(gctx, key)
				switch {
				case err == nil:
					count(&stats.Loaded)
					return fn(DayTile{Key: key, Offset: offset, Tile: t})
				case errors.Is(err, ErrNotFound):
					count(&stats.Missing)
				case gctx.Err() != nil:
					return gctx.Err()
				default:
					count(&stats.Unreadable)
					log.Warnw("skipping unreadable daily accumulator", "day", key.String(), "error", err)
				}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}

	log.Debugw("read fold window", "tile", tile, "target", target.Format("2006-01-02"),
		"snow", snow, "days", stats.Loaded, "missing", stats.Missing, "unreadable", stats.Unreadable)
	return stats, nil
}

func (s *FileStore) checkSize(width, height int) error {
	if width != s.width || height != s.height {
		return fmt.Errorf("%w: tile is %dx%d, store holds %dx%d", codec.ErrSizeMismatch, width, height, s.width, s.height)
	}
	return nil
}

// writeFile writes data next to path and renames it into place.
func (s *FileStore) writeFile(ctx context.Context, path string, data []byte) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return FileInfo{}, err
	}
	if s.compress {
		path += zstdSuffix
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return FileInfo{}, fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return FileInfo{}, fmt.Errorf("creating temporary file in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return FileInfo{}, fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return FileInfo{}, fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return FileInfo{}, fmt.Errorf("renaming into %s: %w", path, err)
	}

	// The other variant would shadow this file on read.
	other := path + zstdSuffix
	if s.compress {
		other = path[:len(path)-len(zstdSuffix)]
	}
	if err := os.Remove(other); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return FileInfo{}, fmt.Errorf("removing stale %s: %w", other, err)
	}

	return FileInfo{Path: path, Bytes: int64(len(data)), Digest: xxhash.Sum64(data)}, nil
}

// readFile reads the compressed variant of path if present, else path.
func (s *FileStore) readFile(ctx context.Context, path string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(path + zstdSuffix)
	if err == nil {
		return data, true, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, fmt.Errorf("reading %s: %w", path+zstdSuffix, err)
	}

	data, err = os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, false, nil
}

// Digest returns the xxhash digest of the file at path as stored on disk.
func Digest(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, fmt.Errorf("hashing %s: %w", path, err)
	}
	return h.Sum64(), nil
}
