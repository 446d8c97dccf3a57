package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDo(t *testing.T) {
	boom := errors.New("boom")

	t.Run("succeeds first time", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), zap.NewNop(), "op", Policy{Attempts: 3}, func(context.Context) error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("recovers within the bound and logs each failure", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		calls := 0
		err := Do(context.Background(), zap.New(core), "Set start date", Policy{Attempts: 3}, func(context.Context) error {
			calls++
			if calls < 3 {
				return boom
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)

		failed := logs.FilterMessage("Attempt failed").All()
		require.Len(t, failed, 2)
		assert.Equal(t, "Set start date", failed[0].ContextMap()["op"])
		assert.Equal(t, int64(1), failed[0].ContextMap()["attempt"])
		assert.Equal(t, int64(3), failed[0].ContextMap()["of"])
		assert.Equal(t, 1, logs.FilterMessage("Succeeded after retry").Len())
	})

	t.Run("returns the last error after exhausting attempts", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), zap.NewNop(), "op", Policy{Attempts: 3, Delay: time.Millisecond}, func(context.Context) error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 3, calls)
	})

	t.Run("zero attempts still runs once", func(t *testing.T) {
		calls := 0
		_ = Do(context.Background(), zap.NewNop(), "op", Policy{}, func(context.Context) error {
			calls++
			return boom
		})
		assert.Equal(t, 1, calls)
	})

	t.Run("permanent errors stop immediately", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), zap.NewNop(), "op", Policy{Attempts: 5}, func(context.Context) error {
			calls++
			return Permanent(boom)
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("stops when the context ends", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := Do(ctx, zap.NewNop(), "op", Policy{Attempts: 5, Delay: time.Hour}, func(context.Context) error {
			calls++
			cancel()
			return boom
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}
