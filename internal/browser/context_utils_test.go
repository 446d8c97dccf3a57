// internal/browser/context_utils_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type ctxKey struct{}

func TestCombineContext(t *testing.T) {
	t.Run("inherits values from the primary and cancels with the secondary", func(t *testing.T) {
		primary := context.WithValue(context.Background(), ctxKey{}, "tab")
		secondary, cancelSecondary := context.WithCancel(context.Background())

		combined, cancel := CombineContext(primary, secondary)
		defer cancel()

		assert.Equal(t, "tab", combined.Value(ctxKey{}))
		cancelSecondary()

		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context was not canceled with the secondary")
		}
	})

	t.Run("cancels with the primary", func(t *testing.T) {
		primary, cancelPrimary := context.WithCancel(context.Background())
		combined, cancel := CombineContext(primary, context.Background())
		defer cancel()

		cancelPrimary()
		<-combined.Done()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})
}

func TestDetach(t *testing.T) {
	parent, cancel := context.WithTimeout(context.WithValue(context.Background(), ctxKey{}, "v"), time.Millisecond)
	cancel()

	detached := Detach(parent)
	assert.NoError(t, detached.Err())
	assert.Nil(t, detached.Done())
	_, ok := detached.Deadline()
	assert.False(t, ok)
	assert.Equal(t, "v", detached.Value(ctxKey{}))
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), 0))
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}

func TestApplyOptions(t *testing.T) {
	assert.False(t, ApplyOptions().Force)
	assert.True(t, ApplyOptions(Force()).Force)
}
