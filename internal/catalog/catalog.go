// Package catalog records inversion runs and the tile files they read and
// write in a SQLite database.
package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/chrissnell/globalbedo/internal/storage"
	"github.com/chrissnell/globalbedo/pkg/migrate"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrations returns the schema migrations of the catalog.
func Migrations() *migrate.FSProvider {
	return migrate.NewFSProvider(migrationFS, "migrations", "schema_migrations")
}

// ErrRunNotFound is returned by GetRun for an unknown run id.
var ErrRunNotFound = errors.New("catalog: run not found")

// Run statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// File kinds.
const (
	KindDaily   = "daily"
	KindFull    = "full"
	KindPrior   = "prior"
	KindProduct = "albedo"
)

// Catalog is a handle on the catalog database.
type Catalog struct {
	db *sql.DB
}

// Run is one inversion of a tile for a target day.
type Run struct {
	ID             uuid.UUID
	Tile           string
	Year           int
	DoY            int
	SnowMode       string
	Status         string
	StartedAt      time.Time
	FinishedAt     time.Time
	Pixels         int
	ValidPixels    int
	FallbackPixels int
	Message        string
}

// RunStats are the per-run counters recorded when a run finishes.
type RunStats struct {
	Pixels         int
	ValidPixels    int
	FallbackPixels int
}

// FileRecord describes a tile file known to the catalog.
type FileRecord struct {
	Path   string
	Kind   string
	Tile   string
	Sensor string
	Year   int
	DoY    int
	Snow   bool
	Bytes  int64
	Digest uint64
	RunID  uuid.NullUUID
}

// Open opens (creating if needed) the catalog at path and applies pending
// migrations.
func Open(path string, logger *zap.SugaredLogger) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	// One writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	migrator := migrate.NewMigrator(db, Migrations(), logger)
	if err := migrator.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate catalog: %w", err)
	}

	return &Catalog{db: db}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// StartRun records the start of a run and returns it with a fresh id.
func (c *Catalog) StartRun(ctx context.Context, tile string, year, doy int, snowMode string) (*Run, error) {
	run := &Run{
		ID:        uuid.New(),
		Tile:      tile,
		Year:      year,
		DoY:       doy,
		SnowMode:  snowMode,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO runs (id, tile, year, doy, snow_mode, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID.String(), run.Tile, run.Year, run.DoY, run.SnowMode, run.Status, run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	return run, nil
}

// FinishRun marks run complete, or failed when runErr is not nil.
func (c *Catalog) FinishRun(ctx context.Context, run *Run, stats RunStats, runErr error) error {
	run.Status = StatusComplete
	run.Message = ""
	if runErr != nil {
		run.Status = StatusFailed
		run.Message = runErr.Error()
	}
	run.FinishedAt = time.Now().UTC()
	run.Pixels = stats.Pixels
	run.ValidPixels = stats.ValidPixels
	run.FallbackPixels = stats.FallbackPixels

	res, err := c.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, finished_at = ?, pixels = ?, valid_pixels = ?, fallback_pixels = ?, message = ?
		WHERE id = ?
	`, run.Status, run.FinishedAt, run.Pixels, run.ValidPixels, run.FallbackPixels, run.Message, run.ID.String())
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", run.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	return nil
}

// GetRun loads a run by id.
func (c *Catalog) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, tile, year, doy, snow_mode, status, started_at, finished_at,
		       pixels, valid_pixels, fallback_pixels, message
		FROM runs WHERE id = ?
	`, id.String())

	var run Run
	var rawID string
	var finished sql.NullTime
	err := row.Scan(&rawID, &run.Tile, &run.Year, &run.DoY, &run.SnowMode, &run.Status, &run.StartedAt, &finished,
		&run.Pixels, &run.ValidPixels, &run.FallbackPixels, &run.Message)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run %s: %w", id, err)
	}

	if run.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("run has malformed id %q: %w", rawID, err)
	}
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return &run, nil
}

// RegisterFile records f, replacing any earlier record of the same path.
func (c *Catalog) RegisterFile(ctx context.Context, f FileRecord) error {
	var runID sql.NullString
	if f.RunID.Valid {
		runID = sql.NullString{String: f.RunID.UUID.String(), Valid: true}
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO files (path, kind, tile, sensor, year, doy, snow, bytes, digest, run_id, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (path) DO UPDATE SET
			kind = excluded.kind, tile = excluded.tile, sensor = excluded.sensor,
			year = excluded.year, doy = excluded.doy, snow = excluded.snow,
			bytes = excluded.bytes, digest = excluded.digest, run_id = excluded.run_id,
			registered_at = excluded.registered_at
	`, f.Path, f.Kind, f.Tile, f.Sensor, f.Year, f.DoY, f.Snow, f.Bytes, formatDigest(f.Digest), runID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", f.Path, err)
	}
	return nil
}

// RegisterWritten records a file returned by a store write.
func (c *Catalog) RegisterWritten(ctx context.Context, info storage.FileInfo, kind, tile, sensor string, year, doy int, snow bool, runID uuid.UUID) error {
	return c.RegisterFile(ctx, FileRecord{
		Path:   info.Path,
		Kind:   kind,
		Tile:   tile,
		Sensor: sensor,
		Year:   year,
		DoY:    doy,
		Snow:   snow,
		Bytes:  info.Bytes,
		Digest: info.Digest,
		RunID:  uuid.NullUUID{UUID: runID, Valid: runID != uuid.Nil},
	})
}

// Files lists the files of a tile and kind ordered by date and path.
func (c *Catalog) Files(ctx context.Context, tile, kind string) ([]FileRecord, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT path, kind, tile, sensor, year, doy, snow, bytes, digest, run_id
		FROM files WHERE tile = ? AND kind = ?
		ORDER BY year, doy, path
	`, tile, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	var files []FileRecord
	for rows.Next() {
		var f FileRecord
		var digest string
		var runID sql.NullString
		if err := rows.Scan(&f.Path, &f.Kind, &f.Tile, &f.Sensor, &f.Year, &f.DoY, &f.Snow, &f.Bytes, &digest, &runID); err != nil {
			return nil, fmt.Errorf("failed to scan file row: %w", err)
		}
		if f.Digest, err = strconv.ParseUint(digest, 16, 64); err != nil {
			return nil, fmt.Errorf("file %s has malformed digest %q: %w", f.Path, digest, err)
		}
		if runID.Valid {
			id, err := uuid.Parse(runID.String)
			if err != nil {
				return nil, fmt.Errorf("file %s has malformed run id %q: %w", f.Path, runID.String, err)
			}
			f.RunID = uuid.NullUUID{UUID: id, Valid: true}
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// Verify reports whether the file on disk still matches its recorded digest.
func (c *Catalog) Verify(f FileRecord) (bool, error) {
	d, err := storage.Digest(f.Path)
	if err != nil {
		return false, err
	}
	return d == f.Digest, nil
}

func formatDigest(d uint64) string {
	return fmt.Sprintf("%016x", d)
}
