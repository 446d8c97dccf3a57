package navigator

import (
	"context"
	"fmt"
	"time"

	"github.com/xkilldash9x/salesi-reporter/internal/browser"
	"github.com/xkilldash9x/salesi-reporter/internal/config"
	"github.com/xkilldash9x/salesi-reporter/internal/retry"
	"go.uber.org/zap"
)

// OpenReportTile opens the report from the welcome page. It reports false
// when no tile, button or link for the report could be found.
func (n *Navigator) OpenReportTile(ctx context.Context) (bool, error) {
	clicked, err := n.clickFirst(ctx, "open report tile", TileProbes(n.reportName), n.timing.ProbeTimeout)
	if err != nil {
		return false, fmt.Errorf("failed to open %s: %w", n.reportName, err)
	}
	return clicked, nil
}

// filterPanelOpen reports whether any panel control is visible within wait.
func (n *Navigator) filterPanelOpen(ctx context.Context, wait time.Duration) (bool, error) {
	idx, err := n.waitAny(ctx, PanelControls, wait)
	return idx >= 0, err
}

// EnsureFilterPanel makes sure the filter panel is expanded, clicking the
// filter bar for a bounded number of rounds. Exhaustion returns false, nil.
func (n *Navigator) EnsureFilterPanel(ctx context.Context) (bool, error) {
	open, err := n.filterPanelOpen(ctx, 0)
	if err != nil || open {
		return open, err
	}

	rounds := n.timing.FilterPanelRounds
	for round := 1; round <= rounds; round++ {
		clicked, err := n.clickFirst(ctx, "open filter panel", FilterBarProbes, n.timing.FilterProbeTimeout, browser.Force())
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			n.logger.Warn("Filter bar click failed", zap.Int("round", round), zap.Error(err))
		}
		if clicked {
			open, err := n.filterPanelOpen(ctx, n.timing.FilterPanelSettle)
			if err != nil {
				return false, err
			}
			if open {
				n.logger.Info("Filter panel open", zap.Int("round", round))
				return true, nil
			}
		}
		n.logger.Debug("Filter panel still closed", zap.Int("round", round), zap.Int("of", rounds))
		if err := n.page.Sleep(ctx, n.timing.FilterRoundDelay); err != nil {
			return false, err
		}
	}

	n.logger.Warn("Filter panel did not open", zap.Int("rounds", rounds))
	return false, nil
}

// SetDates enters date (MM/DD/YYYY) as both start and end date, then
// dismisses the picker overlay so it cannot cover later targets.
func (n *Navigator) SetDates(ctx context.Context, date string) error {
	for _, field := range []dateField{startDateField, endDateField} {
		f := field
		err := retry.Do(ctx, n.logger, "Set "+f.label, n.retryPolicy(), func(ctx context.Context) error {
			return n.fillDate(ctx, f, date)
		})
		if err != nil {
			return fmt.Errorf("failed to set %s: %w", f.label, err)
		}
	}
	n.logger.Info("Dates set", zap.String("date", date))
	n.DismissDatePicker(ctx)
	return nil
}

func (n *Navigator) fillDate(ctx context.Context, f dateField, date string) error {
	p, ok, err := FirstVisible(ctx, n.page, f.probes, n.timing.ProbeTimeout)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrDateFieldNotFound, f.label)
	}
	if err := n.page.Fill(ctx, p.Loc, date); err != nil {
		return err
	}
	n.logger.Debug("Date entered", zap.String("field", f.label), zap.String("via", p.Name))
	return nil
}

// DismissDatePicker closes any open date picker. Every step is best-effort.
func (n *Navigator) DismissDatePicker(ctx context.Context) {
	if err := n.page.Press(ctx, browser.KeyEscape); err != nil {
		n.logger.Debug("Escape key failed", zap.Error(err))
	}
	n.pause(ctx, n.timing.PickerStepDelay)

	if err := n.page.Click(ctx, Body, browser.Force()); err != nil {
		n.logger.Debug("Off-target click failed", zap.Error(err))
	}
	n.pause(ctx, n.timing.PickerStepDelay)

	if ok, _ := n.page.Visible(ctx, PageTitle, 0); ok {
		if err := n.page.Click(ctx, PageTitle, browser.Force()); err != nil {
			n.logger.Debug("Title click failed", zap.Error(err))
		}
		n.pause(ctx, n.timing.PickerStepDelay)
	}

	if err := n.page.WaitFunction(ctx, pickerHiddenScript, n.timing.PickerDismissTimeout); err != nil {
		n.logger.Warn("Date picker may still be visible", zap.Error(err))
		return
	}
	n.logger.Debug("Date picker closed")
}

// SetUser selects rep in the user filter. When the dedicated selector is
// missing or rejects the value, every select on the page is scanned for an
// option matching the id or name. It reports whether a selection was made.
func (n *Navigator) SetUser(ctx context.Context, rep config.Representative) (bool, error) {
	ok, err := n.page.Visible(ctx, UserSelect, n.timing.ProbeTimeout)
	if err != nil {
		return false, err
	}
	if ok {
		err := n.page.SelectOption(ctx, UserSelect, rep.ID)
		if err == nil {
			n.logger.Info("User selected", zap.String("rep", rep.Name), zap.String("id", rep.ID))
			return true, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		n.logger.Warn("User selector rejected value; scanning all selects", zap.String("rep", rep.Name), zap.Error(err))
	}

	script, err := userFallbackScript(rep)
	if err != nil {
		return false, err
	}
	var selected bool
	if err := n.page.Evaluate(ctx, script, &selected); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		n.logger.Warn("User fallback scan failed", zap.String("rep", rep.Name), zap.Error(err))
		return false, nil
	}
	if selected {
		n.logger.Info("User selected by page scan", zap.String("rep", rep.Name))
	}
	return selected, nil
}

// ApplyFilters submits the filter panel. It reports false when no apply
// control could be found.
func (n *Navigator) ApplyFilters(ctx context.Context) (bool, error) {
	clicked, err := n.clickFirst(ctx, "apply filters", ApplyProbes, n.timing.ProbeTimeout)
	if err != nil || !clicked {
		return clicked, err
	}
	n.settle(ctx, n.timing.IdleTimeout)
	return true, nil
}

// WaitForResults waits for the filtered summary to offer its detail link.
// A miss is only logged; OpenDetail reports the failure.
func (n *Navigator) WaitForResults(ctx context.Context) error {
	locs := make([]browser.Locator, 0, len(DetailProbes))
	for _, p := range DetailProbes {
		locs = append(locs, p.Loc)
	}
	idx, err := n.waitAny(ctx, locs, n.timing.ApplySettle)
	if err != nil {
		return err
	}
	if idx < 0 {
		n.logger.Warn("Results not visible yet", zap.Duration("waited", n.timing.ApplySettle))
	}
	return nil
}
