package limiter_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	asseterrors "github.com/input-output-hk/catalyst-forge-libs/assets/errors"
	"github.com/input-output-hk/catalyst-forge-libs/assets/internal/limiter"
)

func TestBoundsConcurrency(t *testing.T) {
	t.Parallel()

	const (
		concurrency = 5
		tasks       = 20
	)

	lim := limiter.New(concurrency)

	var active, peak atomic.Int32
	gate := make(chan struct{})

	results := make([]<-chan error, 0, tasks)
	for i := 0; i < tasks; i++ {
		results = append(results, lim.Submit(func() error {
			now := active.Add(1)
			for {
				old := peak.Load()
				if now <= old || peak.CompareAndSwap(old, now) {
					break
				}
			}
			<-gate
			active.Add(-1)
			return nil
		}))
	}

	close(gate)
	for _, done := range results {
		require.NoError(t, <-done)
	}

	assert.LessOrEqual(t, peak.Load(), int32(concurrency))
	assert.Positive(t, peak.Load())
}

func TestDeliversTaskErrors(t *testing.T) {
	t.Parallel()

	lim := limiter.New(1)
	boom := errors.New("boom")

	ok := lim.Submit(func() error { return nil })
	bad := lim.Submit(func() error { return boom })

	assert.NoError(t, <-ok)
	assert.ErrorIs(t, <-bad, boom)
}

func TestDisposeCancelsQueuedTasks(t *testing.T) {
	t.Parallel()

	lim := limiter.New(1)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	running := lim.Submit(func() error {
		once.Do(func() { close(started) })
		<-release
		return nil
	})
	queued := lim.Submit(func() error { return nil })

	<-started
	lim.Dispose()
	close(release)

	assert.NoError(t, <-running)
	assert.ErrorIs(t, <-queued, asseterrors.ErrTaskCancelled)
}

func TestSubmitAfterDispose(t *testing.T) {
	t.Parallel()

	lim := limiter.New(2)
	lim.Dispose()

	err := <-lim.Submit(func() error { return nil })
	assert.ErrorIs(t, err, asseterrors.ErrTaskCancelled)
}

func TestZeroConcurrencyClampsToOne(t *testing.T) {
	t.Parallel()

	lim := limiter.New(0)
	assert.NoError(t, <-lim.Submit(func() error { return nil }))
}
