// Package navigator drives the Call Outcome Report screens of the sales-i
// portal. Every operation locates its target through an ordered list of
// probes, acts on the first visible one exactly once, and retries a bounded
// number of times. Lookup misses are silent; exhausted operations return one
// of the sentinel errors below and end the run.
package navigator

import (
	"context"
	"errors"
	"time"

	"github.com/xkilldash9x/salesi-reporter/internal/browser"
	"github.com/xkilldash9x/salesi-reporter/internal/config"
	"github.com/xkilldash9x/salesi-reporter/internal/retry"
	"go.uber.org/zap"
)

var (
	ErrFilterPanelUnavailable = errors.New("filter panel did not open")
	ErrDateFieldNotFound      = errors.New("date field not found")
	ErrDetailLinkNotFound     = errors.New("detail link not found")
	ErrNotOnDetailView        = errors.New("detail view not reached")
	ErrLandingNotReached      = errors.New("report landing page not reached")
	ErrUserSelectUnavailable  = errors.New("user selector not ready")
)

// pollStep is the interval between rounds when waiting on several locators at once.
const pollStep = 250 * time.Millisecond

// Debugger saves a labelled screenshot of the current page, best-effort.
type Debugger interface {
	Capture(ctx context.Context, label string)
}

// Navigator runs report navigation steps against one page.
type Navigator struct {
	page       browser.Page
	timing     config.TimingConfig
	reportName string
	debug      Debugger
	logger     *zap.Logger
}

// New returns a Navigator for the named report (e.g. "Call Outcome Report").
func New(page browser.Page, timing config.TimingConfig, reportName string, debug Debugger, logger *zap.Logger) *Navigator {
	return &Navigator{
		page:       page,
		timing:     timing,
		reportName: reportName,
		debug:      debug,
		logger:     logger.Named("navigator"),
	}
}

func (n *Navigator) retryPolicy() retry.Policy {
	return retry.Policy{Attempts: n.timing.RetryAttempts, Delay: n.timing.RetryDelay}
}

// settle waits for network quiet. It never fails the caller.
func (n *Navigator) settle(ctx context.Context, timeout time.Duration) {
	if err := n.page.WaitIdle(ctx, timeout); err != nil {
		n.logger.Debug("Page did not settle", zap.Duration("timeout", timeout), zap.Error(err))
	}
}

func (n *Navigator) pause(ctx context.Context, d time.Duration) {
	_ = n.page.Sleep(ctx, d)
}

// waitAny polls locs until one is visible or wait elapses, returning the
// index of the visible locator or -1.
func (n *Navigator) waitAny(ctx context.Context, locs []browser.Locator, wait time.Duration) (int, error) {
	deadline := time.Now().Add(wait)
	for {
		for i, l := range locs {
			ok, err := n.page.Visible(ctx, l, 0)
			if err != nil {
				return -1, err
			}
			if ok {
				return i, nil
			}
		}
		if !time.Now().Before(deadline) {
			return -1, nil
		}
		if err := n.page.Sleep(ctx, pollStep); err != nil {
			return -1, err
		}
	}
}
