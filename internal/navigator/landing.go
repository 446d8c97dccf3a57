package navigator

import (
	"context"
	"fmt"
	"time"

	"github.com/xkilldash9x/salesi-reporter/internal/artifacts"
	"github.com/xkilldash9x/salesi-reporter/internal/config"
	"go.uber.org/zap"
)

// ReturnToLanding navigates from a detail view back to the report's summary
// table. A page showing the summary headers while the detail heading is
// still visible does not count as arrival.
func (n *Navigator) ReturnToLanding(ctx context.Context, rep config.Representative) error {
	attempts := n.timing.LandingAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		n.logger.Info("Returning to report list", zap.String("rep", rep.Name), zap.Int("attempt", attempt), zap.Int("of", attempts))

		if err := n.stepTowardLanding(ctx); err != nil {
			return err
		}
		n.settle(ctx, n.timing.IdleTimeout)

		landed, falsePositive, err := n.waitForLanding(ctx, n.timing.LandingSettle)
		if err != nil {
			return err
		}
		if landed {
			n.logger.Info("Back on report list", zap.Int("attempt", attempt))
			return nil
		}
		if falsePositive {
			n.logger.Warn("Summary headers found but still on detail view", zap.Int("attempt", attempt))
		}

		if attempt == attempts {
			n.debug.Capture(ctx, "debug-navigation-failed-"+artifacts.FileSafe(rep.Name))
			break
		}
		if err := n.page.Sleep(ctx, n.timing.LandingRetryDelay); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w after %s (%d attempts)", ErrLandingNotReached, rep.Name, attempts)
}

// stepTowardLanding prefers the report link, then the breadcrumb item, then
// browser history. Only context errors are returned.
func (n *Navigator) stepTowardLanding(ctx context.Context) error {
	probes := []Probe{
		{"report link", LandingLink(n.reportName)},
		{"report list item", LandingListItem(n.reportName)},
	}
	p, ok, err := FirstVisible(ctx, n.page, probes, n.timing.ProbeTimeout)
	if err != nil {
		return err
	}
	if ok {
		err := n.page.Click(ctx, p.Loc)
		if err == nil {
			n.logger.Debug("Clicked", zap.String("op", "return to list"), zap.String("via", p.Name))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n.logger.Warn("Return click failed; going back instead", zap.String("via", p.Name), zap.Error(err))
	}

	if err := n.page.Back(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n.logger.Warn("Browser back failed", zap.Error(err))
	}
	return nil
}

// waitForLanding polls until the summary headers are visible without the
// detail heading, or wait elapses. falsePositive reports whether headers were
// seen alongside the detail heading.
func (n *Navigator) waitForLanding(ctx context.Context, wait time.Duration) (landed, falsePositive bool, err error) {
	deadline := time.Now().Add(wait)
	for {
		idx, err := n.waitAny(ctx, LandingMarkers, 0)
		if err != nil {
			return false, falsePositive, err
		}
		if idx >= 0 {
			onDetail, err := n.page.Visible(ctx, DetailHeading, 0)
			if err != nil {
				return false, falsePositive, err
			}
			if !onDetail {
				return true, false, nil
			}
			falsePositive = true
		}
		if !time.Now().Before(deadline) {
			return false, falsePositive, nil
		}
		if err := n.page.Sleep(ctx, pollStep); err != nil {
			return false, falsePositive, err
		}
	}
}

// ReopenFilters re-expands the filter panel after returning to the list and
// checks that the user selector is ready for the next representative.
func (n *Navigator) ReopenFilters(ctx context.Context, after config.Representative) error {
	open, err := n.EnsureFilterPanel(ctx)
	if err != nil {
		return err
	}
	if !open {
		n.debug.Capture(ctx, "debug-filter-panel-failed-after-"+artifacts.FileSafe(after.Name))
		return fmt.Errorf("%w after %s", ErrFilterPanelUnavailable, after.Name)
	}

	ready, err := n.page.Visible(ctx, UserSelect, n.timing.UserDropdownTimeout)
	if err != nil {
		return err
	}
	if !ready {
		n.debug.Capture(ctx, "debug-user-dropdown-not-ready-after-"+artifacts.FileSafe(after.Name))
		return fmt.Errorf("%w after %s", ErrUserSelectUnavailable, after.Name)
	}
	return nil
}
