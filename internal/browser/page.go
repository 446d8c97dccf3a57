// internal/browser/page.go
package browser

import (
	"context"
	"regexp"
	"time"

	"github.com/chromedp/chromedp/kb"
)

// KeyEscape is the key sent to dismiss pop-ups and pickers.
const KeyEscape = kb.Escape

// Page is the surface the navigation code drives. Implementations auto-wait
// for a located element before acting on it; Visible never acts.
type Page interface {
	// Goto navigates and waits for the document to load.
	Goto(ctx context.Context, url string) error
	// Redirect navigates from inside the page with window.location.assign.
	Redirect(ctx context.Context, url string) error
	Back(ctx context.Context) error
	URL(ctx context.Context) (string, error)
	WaitURL(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) error
	// WaitIdle waits until the document is loaded and resource activity has
	// been quiet for a short period.
	WaitIdle(ctx context.Context, timeout time.Duration) error

	// Visible polls for the element until it is visible or timeout elapses.
	// A zero timeout checks once. Only context errors are returned.
	Visible(ctx context.Context, loc Locator, timeout time.Duration) (bool, error)
	Click(ctx context.Context, loc Locator, opts ...ActionOption) error
	// Fill clears the control and sets its value, firing input and change events.
	Fill(ctx context.Context, loc Locator, value string) error
	SelectOption(ctx context.Context, loc Locator, value string) error
	SetChecked(ctx context.Context, loc Locator, checked bool, opts ...ActionOption) error
	Press(ctx context.Context, key string) error

	Evaluate(ctx context.Context, script string, res any) error
	// WaitFunction polls a boolean expression until it is true.
	WaitFunction(ctx context.Context, script string, timeout time.Duration) error

	// Screenshot captures the full scrollable page as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)
	Sleep(ctx context.Context, d time.Duration) error
}

// ActionOptions tune a single element action.
type ActionOptions struct {
	// Force acts on an attached element without waiting for it to be visible.
	Force bool
}

// ActionOption sets a field on ActionOptions.
type ActionOption func(*ActionOptions)

// Force skips the visibility wait before the action.
func Force() ActionOption {
	return func(o *ActionOptions) { o.Force = true }
}

// ApplyOptions folds opts into an ActionOptions value.
func ApplyOptions(opts ...ActionOption) ActionOptions {
	var o ActionOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
