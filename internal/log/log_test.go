package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitWithFileWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inversion.log")

	require.NoError(t, InitWithFile(false, FileOptions{Path: path}))
	Infow("tile processed", "tile", "h18v04", "pixels", 1200)
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	require.Contains(t, line, `"msg":"tile processed"`)
	require.Contains(t, line, `"tile":"h18v04"`)
}

func TestGetSugaredLoggerFallback(t *testing.T) {
	log = nil
	baseLogger = nil
	require.NotNil(t, GetSugaredLogger())
	require.NotNil(t, GetZapLogger())
}
