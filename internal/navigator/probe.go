package navigator

import (
	"context"
	"time"

	"github.com/xkilldash9x/salesi-reporter/internal/browser"
	"go.uber.org/zap"
)

// Probe is one ranked way of finding a target.
type Probe struct {
	Name string
	Loc  browser.Locator
}

// FirstVisible checks probes in order, giving each up to wait to become
// visible, and returns the first that does. Nothing on the page is touched.
func FirstVisible(ctx context.Context, page browser.Page, probes []Probe, wait time.Duration) (Probe, bool, error) {
	for _, p := range probes {
		ok, err := page.Visible(ctx, p.Loc, wait)
		if err != nil {
			return Probe{}, false, err
		}
		if ok {
			return p, true, nil
		}
	}
	return Probe{}, false, nil
}

// clickFirst clicks the first visible probe once. It reports false without
// error when no probe matched.
func (n *Navigator) clickFirst(ctx context.Context, op string, probes []Probe, wait time.Duration, opts ...browser.ActionOption) (bool, error) {
	p, ok, err := FirstVisible(ctx, n.page, probes, wait)
	if err != nil {
		return false, err
	}
	if !ok {
		n.logger.Debug("No candidate visible", zap.String("op", op))
		return false, nil
	}
	if err := n.page.Click(ctx, p.Loc, opts...); err != nil {
		return false, err
	}
	n.logger.Info("Clicked", zap.String("op", op), zap.String("via", p.Name))
	return true, nil
}
