// Package artifacts owns the files a run leaves behind: report screenshots,
// debug captures, fatal diagnostics and the run log.
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
	"github.com/xkilldash9x/salesi-reporter/internal/browser"
	"go.uber.org/zap"
)

var whitespace = regexp.MustCompile(`\s+`)

// FileSafe lowercases name and replaces runs of whitespace with a dash.
func FileSafe(name string) string {
	return whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// Store resolves and writes run artifacts on fs.
type Store struct {
	fs            afero.Fs
	screenshotDir string
	logDir        string
}

// NewStore returns a store rooted at the given directories.
func NewStore(fs afero.Fs, screenshotDir, logDir string) *Store {
	return &Store{fs: fs, screenshotDir: screenshotDir, logDir: logDir}
}

// EnsureDirs creates the output directories if they do not exist.
func (s *Store) EnsureDirs() error {
	for _, dir := range []string{s.screenshotDir, s.logDir} {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ReportPath is where a representative's report screenshot for date
// (MM/DD/YYYY) is written.
func (s *Store) ReportPath(repName, date string) string {
	name := fmt.Sprintf("call-outcome_%s_%s.png", FileSafe(repName), strings.ReplaceAll(date, "/", "-"))
	return filepath.Join(s.screenshotDir, name)
}

// DebugPath is where a labelled diagnostic screenshot is written.
func (s *Store) DebugPath(label string) string {
	return filepath.Join(s.screenshotDir, label+".png")
}

// FatalPaths returns the screenshot and HTML dump paths for a failed run.
func (s *Store) FatalPaths(runID string) (png, html string) {
	base := filepath.Join(s.screenshotDir, "FATAL_"+runID)
	return base + ".png", base + ".html"
}

// LogPath is the run's log file.
func (s *Store) LogPath(runID string) string {
	return filepath.Join(s.logDir, "salesi_"+runID+".log")
}

// Write stores data at path, creating the parent directory if needed.
func (s *Store) Write(path string, data []byte) error {
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Read returns the contents of path.
func (s *Store) Read(path string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// Exists reports whether path exists.
func (s *Store) Exists(path string) bool {
	_, err := s.fs.Stat(path)
	return err == nil || !os.IsNotExist(err)
}

// Capture writes the page's full screenshot to path.
func (s *Store) Capture(ctx context.Context, page browser.Page, path string) error {
	png, err := page.Screenshot(ctx)
	if err != nil {
		return err
	}
	return s.Write(path, png)
}

// Debugger captures labelled diagnostic screenshots. Failures are logged and
// never returned: a missing debug image must not change a run's outcome.
type Debugger struct {
	store  *Store
	page   browser.Page
	logger *zap.Logger
}

// NewDebugger returns a Debugger capturing page into store.
func NewDebugger(store *Store, page browser.Page, logger *zap.Logger) *Debugger {
	return &Debugger{store: store, page: page, logger: logger}
}

// Capture saves a screenshot named after label, e.g. "debug-no-detail-link-aaron".
func (d *Debugger) Capture(ctx context.Context, label string) {
	path := d.store.DebugPath(label)
	if err := d.store.Capture(ctx, d.page, path); err != nil {
		d.logger.Warn("Debug screenshot failed", zap.String("label", label), zap.Error(err))
		return
	}
	d.logger.Info("Debug screenshot saved", zap.String("path", path))
}
