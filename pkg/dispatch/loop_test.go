package dispatch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/relay/pkg/dispatch"
	"github.com/macropower/relay/pkg/notify"
)

func start(t *testing.T) (*dispatch.Loop, context.CancelFunc) {
	t.Helper()

	l := dispatch.NewLoop()
	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan struct{})

	go func() {
		defer close(done)

		assert.NoError(t, l.Run(ctx))
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	return l, cancel
}

func TestLoop_Order(t *testing.T) {
	t.Parallel()

	l := dispatch.NewLoop()

	var got []int

	// Queued before Run, and re-entrant posts from the loop itself.
	for i := range 3 {
		l.Dispatch(func() {
			got = append(got, i)
			if i == 0 {
				l.Dispatch(func() {
					got = append(got, 10)
				})
			}
		})
	}

	assert.Equal(t, 3, l.Len())

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	go func() {
		_ = l.Run(ctx)
	}()

	// The first Do may be queued ahead of the re-entrant post.
	require.NoError(t, l.Do(ctx, func() {}))
	require.NoError(t, l.Do(ctx, func() {
		assert.Equal(t, []int{0, 1, 2, 10}, got)
	}))
}

func TestLoop_SingleGoroutine(t *testing.T) {
	t.Parallel()

	l, _ := start(t)

	var (
		wg      sync.WaitGroup
		running int
		maxSeen int
	)

	for range 50 {
		wg.Go(func() {
			require.NoError(t, l.Do(t.Context(), func() {
				running++
				maxSeen = max(maxSeen, running)
				time.Sleep(time.Microsecond)
				running--
			}))
		})
	}

	wg.Wait()

	require.NoError(t, l.Do(t.Context(), func() {
		assert.Equal(t, 1, maxSeen)
	}))
}

func TestLoop_PanicDoesNotStop(t *testing.T) {
	t.Parallel()

	l, _ := start(t)

	l.Dispatch(func() {
		panic("boom")
	})

	ran := false
	require.NoError(t, l.Do(t.Context(), func() {
		ran = true
	}))
	assert.True(t, ran)
}

func TestLoop_Stopped(t *testing.T) {
	t.Parallel()

	l, cancel := start(t)

	require.NoError(t, l.Do(t.Context(), func() {}))
	cancel()

	require.Eventually(t, func() bool {
		return l.Do(t.Context(), func() {}) != nil
	}, time.Second, time.Millisecond)

	require.ErrorIs(t, l.Do(t.Context(), func() {}), dispatch.ErrStopped)
}

func TestLoop_DoCanceled(t *testing.T) {
	t.Parallel()

	// Never run, so Do can only return through ctx.
	l := dispatch.NewLoop()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	require.ErrorIs(t, l.Do(ctx, func() {}), context.Canceled)
}

func TestLoop_Notifier(t *testing.T) {
	t.Parallel()

	l, _ := start(t)

	n := notify.New(nil, "A")
	n.SetDispatcher(l)

	got := make(chan string, 1)

	n.Subscribe(func(e notify.PropertyChanged) {
		got <- e.Name
	})

	n.NotifyProperty("A")

	select {
	case name := <-got:
		assert.Equal(t, "A", name)
	case <-time.After(5 * time.Second):
		t.Fatal("notification was not delivered")
	}
}
