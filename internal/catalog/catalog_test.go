package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/globalbedo/internal/storage"
)

func openCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "catalog.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRunLifecycle(t *testing.T) {
	require := require.New(t)
	c := openCatalog(t)
	ctx := context.Background()

	run, err := c.StartRun(ctx, "h18v04", 2005, 129, "merged")
	require.NoError(err)
	require.NotEqual(uuid.Nil, run.ID)

	got, err := c.GetRun(ctx, run.ID)
	require.NoError(err)
	require.Equal(StatusRunning, got.Status)
	require.True(got.FinishedAt.IsZero())
	require.WithinDuration(run.StartedAt, got.StartedAt, time.Second)

	require.NoError(c.FinishRun(ctx, run, RunStats{Pixels: 4, ValidPixels: 3, FallbackPixels: 1}, nil))
	got, err = c.GetRun(ctx, run.ID)
	require.NoError(err)
	require.Equal(StatusComplete, got.Status)
	require.Equal(4, got.Pixels)
	require.Equal(3, got.ValidPixels)
	require.Equal(1, got.FallbackPixels)
	require.False(got.FinishedAt.IsZero())

	failed, err := c.StartRun(ctx, "h18v04", 2005, 137, "nosnow")
	require.NoError(err)
	require.NoError(c.FinishRun(ctx, failed, RunStats{}, errors.New("disk full")))
	got, err = c.GetRun(ctx, failed.ID)
	require.NoError(err)
	require.Equal(StatusFailed, got.Status)
	require.Equal("disk full", got.Message)

	_, err = c.GetRun(ctx, uuid.New())
	require.ErrorIs(err, ErrRunNotFound)
}

func TestRegisterAndVerifyFiles(t *testing.T) {
	require := require.New(t)
	c := openCatalog(t)
	ctx := context.Background()

	run, err := c.StartRun(ctx, "h18v04", 2005, 129, "nosnow")
	require.NoError(err)

	dir := t.TempDir()
	path := filepath.Join(dir, "matrices_2005129.bin")
	data := []byte("accumulator payload")
	require.NoError(os.WriteFile(path, data, 0o644))

	info := storage.FileInfo{Path: path, Bytes: int64(len(data)), Digest: xxhash.Sum64(data)}
	require.NoError(c.RegisterWritten(ctx, info, KindDaily, "h18v04", "MERIS", 2005, 129, false, run.ID))

	// A digest with the top bit set survives the text encoding.
	require.NoError(c.RegisterFile(ctx, FileRecord{
		Path: filepath.Join(dir, "prior_129_snow.bin"), Kind: KindPrior, Tile: "h18v04",
		Year: 2005, DoY: 129, Snow: true, Bytes: 1, Digest: 1 << 63,
	}))

	files, err := c.Files(ctx, "h18v04", KindDaily)
	require.NoError(err)
	require.Len(files, 1)
	require.Equal("MERIS", files[0].Sensor)
	require.Equal(info.Digest, files[0].Digest)
	require.True(files[0].RunID.Valid)
	require.Equal(run.ID, files[0].RunID.UUID)

	ok, err := c.Verify(files[0])
	require.NoError(err)
	require.True(ok)

	require.NoError(os.WriteFile(path, []byte("tampered"), 0o644))
	ok, err = c.Verify(files[0])
	require.NoError(err)
	require.False(ok)

	priors, err := c.Files(ctx, "h18v04", KindPrior)
	require.NoError(err)
	require.Len(priors, 1)
	require.Equal(uint64(1<<63), priors[0].Digest)
	require.True(priors[0].Snow)
	require.False(priors[0].RunID.Valid)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	ctx := context.Background()

	c, err := Open(path, nil)
	require.NoError(t, err)
	run, err := c.StartRun(ctx, "h25v06", 2004, 1, "snow")
	require.NoError(t, err)
	require.NoError(t, c.Close())

	c, err = Open(path, nil)
	require.NoError(t, err)
	defer c.Close()

	got, err := c.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, "h25v06", got.Tile)
}
