package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinatorRunsOneRenewalPerEpisode(t *testing.T) {
	c := NewCoordinator(time.Second)
	release := make(chan struct{})
	var calls atomic.Int32

	renew := func(ctx context.Context) error {
		calls.Add(1)
		<-release
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.RenewAccess(context.Background(), 0, renew)
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, uint64(1), c.AccessGeneration())
	assert.Equal(t, uint64(0), c.CSRFGeneration())
}

func TestCoordinatorSkipsStaleGeneration(t *testing.T) {
	c := NewCoordinator(time.Second)
	require.NoError(t, c.RenewCSRF(context.Background(), 0, func(context.Context) error { return nil }))

	called := false
	err := c.RenewCSRF(context.Background(), 0, func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called, "a request sent before the last renewal must replay without renewing")
	assert.Equal(t, uint64(1), c.CSRFGeneration())
}

func TestCoordinatorFailureFlushesWaiters(t *testing.T) {
	c := NewCoordinator(time.Second)
	boom := errors.New("refresh rejected")
	release := make(chan struct{})

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.RenewAccess(context.Background(), 0, func(context.Context) error {
				<-release
				return boom
			})
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, uint64(0), c.AccessGeneration())

	// The next failure starts a fresh episode.
	var calls int
	require.NoError(t, c.RenewAccess(context.Background(), 0, func(context.Context) error {
		calls++
		return nil
	}))
	assert.Equal(t, 1, calls)
}

func TestCoordinatorRenewalOutlivesCancelledCaller(t *testing.T) {
	c := NewCoordinator(time.Second)
	started := make(chan struct{})
	release := make(chan struct{})
	renewCtxErr := make(chan error, 1)

	ctx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		leaderErr <- c.RenewAccess(ctx, 0, func(rctx context.Context) error {
			close(started)
			<-release
			renewCtxErr <- rctx.Err()
			return nil
		})
	}()

	<-started
	cancel()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	waiterCtx, waiterCancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer waiterCancel()
	err := c.RenewAccess(waiterCtx, 0, func(context.Context) error {
		t.Fatal("a second renewal must not start while one is in flight")
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	assert.NoError(t, <-renewCtxErr)
	require.Eventually(t, func() bool { return c.AccessGeneration() == 1 }, time.Second, 5*time.Millisecond)
}

func TestCoordinatorBoundsRenewal(t *testing.T) {
	c := NewCoordinator(20 * time.Millisecond)
	err := c.RenewAccess(context.Background(), 0, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCoordinatorRecoversPanics(t *testing.T) {
	c := NewCoordinator(time.Second)
	err := c.RenewCSRF(context.Background(), 0, func(context.Context) error {
		panic("bad renewal")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad renewal")
	assert.Equal(t, uint64(0), c.CSRFGeneration())
}
