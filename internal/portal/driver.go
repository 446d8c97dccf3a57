// Package portal signs in to sales-i and brings the report screen up.
package portal

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/xkilldash9x/salesi-reporter/internal/browser"
	"github.com/xkilldash9x/salesi-reporter/internal/config"
	"go.uber.org/zap"
)

// ErrReportTileNotFound is returned when the welcome page offers no way into
// the configured report.
var ErrReportTileNotFound = errors.New("report tile not found")

// Sign-in form controls.
var (
	UsernameInput = browser.Role("textbox", browser.Contains("UserName"))
	NextButton    = browser.Role("button", browser.Contains("Next"))
	PasswordInput = browser.Role("textbox", browser.Contains("Password"))
	SignInButton  = browser.Role("button", browser.Contains("Sign in"))
)

// TileOpener opens the configured report from the welcome page.
type TileOpener interface {
	OpenReportTile(ctx context.Context) (bool, error)
}

// Driver owns the session-level steps of a run.
type Driver struct {
	page   browser.Page
	portal config.PortalConfig
	timing config.TimingConfig
	tiles  TileOpener
	tenant *regexp.Regexp
	logger *zap.Logger
}

// NewDriver compiles the tenant URL pattern and returns a driver for page.
func NewDriver(page browser.Page, portal config.PortalConfig, timing config.TimingConfig, tiles TileOpener, logger *zap.Logger) (*Driver, error) {
	tenant, err := regexp.Compile(portal.TenantPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant pattern %q: %w", portal.TenantPattern, err)
	}
	return &Driver{
		page:   page,
		portal: portal,
		timing: timing,
		tiles:  tiles,
		tenant: tenant,
		logger: logger.Named("portal"),
	}, nil
}

// Login submits the two-step sign-in form and waits for the tenant host.
func (d *Driver) Login(ctx context.Context) error {
	d.logger.Info("Logging in", zap.String("url", d.portal.LoginURL))
	if err := d.page.Goto(ctx, d.portal.LoginURL); err != nil {
		return fmt.Errorf("failed to load login page: %w", err)
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"enter username", func() error { return d.page.Fill(ctx, UsernameInput, d.portal.Username) }},
		{"click next", func() error { return d.page.Click(ctx, NextButton) }},
		{"enter password", func() error { return d.page.Fill(ctx, PasswordInput, d.portal.Password) }},
		{"click sign in", func() error { return d.page.Click(ctx, SignInButton) }},
	}
	for _, s := range steps {
		if err := s.run(); err != nil {
			return fmt.Errorf("login step %q failed: %w", s.name, err)
		}
	}

	if err := d.page.WaitURL(ctx, d.tenant, d.timing.LoginRedirectTimeout); err != nil {
		return fmt.Errorf("login did not reach tenant: %w", err)
	}
	d.settle(ctx)
	d.logger.Info("Logged in")
	return nil
}

// SafeGoto navigates to url, falling back to an in-page redirect after each
// failed attempt. The last error is returned once attempts are used up.
func (d *Driver) SafeGoto(ctx context.Context, url string) error {
	attempts := d.timing.GotoAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := d.page.Goto(ctx, url)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		d.logger.Warn("Navigation failed",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Int("of", attempts),
			zap.Error(err),
		)

		if err := d.page.Sleep(ctx, d.timing.GotoRetryDelay); err != nil {
			return err
		}
		err = d.page.Redirect(ctx, url)
		if err == nil {
			d.logger.Info("Reached page by redirect", zap.String("url", url))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		d.logger.Warn("Redirect failed", zap.String("url", url), zap.Error(err))
	}
	return fmt.Errorf("failed to open %s after %d attempts: %w", url, attempts, lastErr)
}

// OpenReport goes to the welcome page and opens the report tile.
func (d *Driver) OpenReport(ctx context.Context) error {
	if err := d.SafeGoto(ctx, d.portal.WelcomeURL); err != nil {
		return err
	}
	d.settle(ctx)

	ok, err := d.tiles.OpenReportTile(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrReportTileNotFound, d.portal.ReportName)
	}
	d.settle(ctx)
	d.logger.Info("Report opened", zap.String("report", d.portal.ReportName))
	return nil
}

func (d *Driver) settle(ctx context.Context) {
	if err := d.page.WaitIdle(ctx, d.timing.IdleTimeout); err != nil {
		d.logger.Debug("Page did not settle", zap.Error(err))
	}
}
