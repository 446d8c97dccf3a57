package artifacts

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/salesi-reporter/internal/browser/browsertest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestStore() (*Store, afero.Fs) {
	fs := afero.NewMemMapFs()
	return NewStore(fs, "screenshots", "logs"), fs
}

func TestFileSafe(t *testing.T) {
	assert.Equal(t, "aaron", FileSafe("Aaron"))
	assert.Equal(t, "kevin-sellers", FileSafe("Kevin Sellers"))
	assert.Equal(t, "matt-kartz", FileSafe("  Matt \t Kartz "))
}

func TestPaths(t *testing.T) {
	s, _ := newTestStore()

	assert.Equal(t, filepath.Join("screenshots", "call-outcome_kevin-sellers_03-01-2024.png"), s.ReportPath("Kevin Sellers", "03/01/2024"))
	assert.Equal(t, filepath.Join("screenshots", "debug-filter-panel.png"), s.DebugPath("debug-filter-panel"))
	assert.Equal(t, filepath.Join("logs", "salesi_2024-03-02T06-00-00-000Z.log"), s.LogPath("2024-03-02T06-00-00-000Z"))

	png, html := s.FatalPaths("RUN1")
	assert.Equal(t, filepath.Join("screenshots", "FATAL_RUN1.png"), png)
	assert.Equal(t, filepath.Join("screenshots", "FATAL_RUN1.html"), html)
}

func TestEnsureDirsIsIdempotent(t *testing.T) {
	s, fs := newTestStore()
	require.NoError(t, s.EnsureDirs())
	require.NoError(t, s.EnsureDirs())

	for _, dir := range []string{"screenshots", "logs"} {
		ok, err := afero.DirExists(fs, dir)
		require.NoError(t, err)
		assert.True(t, ok, dir)
	}
}

func TestWriteReadExists(t *testing.T) {
	s, _ := newTestStore()
	path := s.ReportPath("Aaron", "03/01/2024")

	assert.False(t, s.Exists(path))
	require.NoError(t, s.Write(path, []byte("png")))
	assert.True(t, s.Exists(path))

	data, err := s.Read(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)

	_, err = s.Read("missing.png")
	assert.Error(t, err)
}

func TestCapture(t *testing.T) {
	s, _ := newTestStore()
	page := browsertest.New()

	path := s.ReportPath("Aaron", "03/01/2024")
	require.NoError(t, s.Capture(context.Background(), page, path))
	data, err := s.Read(path)
	require.NoError(t, err)
	assert.Equal(t, browsertest.PNG, data)

	page.ScreenshotErr = errors.New("target closed")
	assert.Error(t, s.Capture(context.Background(), page, s.DebugPath("x")))
	assert.False(t, s.Exists(s.DebugPath("x")))
}

func TestDebuggerIsBestEffort(t *testing.T) {
	s, _ := newTestStore()
	page := browsertest.New()
	core, logs := observer.New(zap.InfoLevel)
	d := NewDebugger(s, page, zap.New(core))

	d.Capture(context.Background(), "debug-wrong-page-aaron")
	assert.True(t, s.Exists(s.DebugPath("debug-wrong-page-aaron")))

	page.ScreenshotErr = errors.New("boom")
	d.Capture(context.Background(), "debug-no-detail-link-aaron")
	assert.False(t, s.Exists(s.DebugPath("debug-no-detail-link-aaron")))
	assert.Equal(t, 1, logs.FilterMessage("Debug screenshot failed").Len())
}
