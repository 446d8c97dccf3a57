package navigator

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/salesi-reporter/internal/artifacts"
	"github.com/xkilldash9x/salesi-reporter/internal/browser"
	"github.com/xkilldash9x/salesi-reporter/internal/config"
	"github.com/xkilldash9x/salesi-reporter/internal/retry"
	"go.uber.org/zap"
)

// OpenDetail follows the summary's "Click for detail" link and verifies that
// the detail grid rendered.
func (n *Navigator) OpenDetail(ctx context.Context, rep config.Representative) error {
	err := retry.Do(ctx, n.logger, "Open detail", n.retryPolicy(), func(ctx context.Context) error {
		return n.openDetailOnce(ctx, rep)
	})
	if err != nil {
		return fmt.Errorf("failed to open detail for %s: %w", rep.Name, err)
	}
	return nil
}

func (n *Navigator) openDetailOnce(ctx context.Context, rep config.Representative) error {
	p, ok, err := FirstVisible(ctx, n.page, DetailProbes, n.timing.ProbeTimeout)
	if err != nil {
		return err
	}
	if !ok {
		n.debug.Capture(ctx, "debug-no-detail-link-"+artifacts.FileSafe(rep.Name))
		return ErrDetailLinkNotFound
	}
	if err := n.page.Click(ctx, p.Loc); err != nil {
		return err
	}
	n.logger.Info("Detail link clicked", zap.String("rep", rep.Name), zap.String("via", p.Name))

	n.settle(ctx, n.timing.DetailIdleTimeout)

	ok, err = n.page.Visible(ctx, DetailGridCell, n.timing.DetailVerifyTimeout)
	if err != nil {
		return err
	}
	if !ok {
		n.debug.Capture(ctx, "debug-wrong-page-"+artifacts.FileSafe(rep.Name))
		return ErrNotOnDetailView
	}
	return nil
}

// AdjustColumns hides the given grid columns through the column chooser.
// A grid without a chooser is left as is; individual toggles may fail.
func (n *Navigator) AdjustColumns(ctx context.Context, columns []string) error {
	if len(columns) == 0 {
		return nil
	}
	ok, err := n.page.Visible(ctx, ColumnsButton, n.timing.ColumnsTimeout)
	if err != nil {
		return err
	}
	if !ok {
		n.logger.Info("Column chooser not present; keeping default columns")
		return nil
	}

	err = retry.Do(ctx, n.logger, "Open column chooser", n.retryPolicy(), func(ctx context.Context) error {
		return n.page.Click(ctx, ColumnsButton)
	})
	if err != nil {
		return fmt.Errorf("failed to open column chooser: %w", err)
	}

	for _, col := range columns {
		if err := n.page.SetChecked(ctx, ColumnCheckbox(col), false, browser.Force()); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			n.logger.Warn("Could not hide column", zap.String("column", col), zap.Error(err))
		}
	}

	if err := n.page.Click(ctx, ColumnsOKButton); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n.logger.Warn("Column chooser OK failed", zap.Error(err))
	}
	n.settle(ctx, n.timing.IdleTimeout)
	n.pause(ctx, n.timing.ColumnsSettle)
	n.logger.Info("Columns adjusted", zap.Strings("hidden", columns))
	return nil
}
