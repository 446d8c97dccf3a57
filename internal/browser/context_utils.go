// internal/browser/context_utils.go
package browser

import (
	"context"
	"time"
)

// CombineContext creates a new context derived from ctx1 (primary/master context)
// that is canceled when *either* ctx1 or ctx2 (secondary/operational context) is canceled.
// It inherits values from ctx1, which is where chromedp keeps the tab's CDP
// connection, while ctx2 carries the caller's deadline.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(ctx1)

	go func() {
		select {
		case <-ctx2.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}

// valueOnlyContext inherits values from its parent but ignores the parent's
// deadline and cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }

func (valueOnlyContext) Done() <-chan struct{} { return nil }

func (valueOnlyContext) Err() error { return nil }

// Detach returns a context that inherits values from ctx but is not canceled when ctx is.
// Cleanup and failure diagnostics use it so they still run after an interrupt.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
