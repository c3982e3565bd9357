package client

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultRenewTimeout bounds a single renewal call.
const DefaultRenewTimeout = 10 * time.Second

// RenewFunc performs one renewal round trip.
type RenewFunc func(ctx context.Context) error

// Coordinator serializes credential renewals. Access and CSRF renewals are
// independent queues; within a queue, every caller that fails during the same
// episode waits on the single renewal started by the first.
type Coordinator struct {
	renewTimeout time.Duration

	access renewalQueue
	csrf   renewalQueue
}

// NewCoordinator returns a Coordinator whose renewals run for at most
// renewTimeout. Zero selects DefaultRenewTimeout.
func NewCoordinator(renewTimeout time.Duration) *Coordinator {
	if renewTimeout <= 0 {
		renewTimeout = DefaultRenewTimeout
	}
	return &Coordinator{renewTimeout: renewTimeout}
}

// AccessGeneration counts completed access renewals. Read it before sending
// a request and pass it to RenewAccess if the request fails.
func (c *Coordinator) AccessGeneration() uint64 { return c.access.generation() }

// CSRFGeneration counts completed CSRF renewals.
func (c *Coordinator) CSRFGeneration() uint64 { return c.csrf.generation() }

// RenewAccess joins or starts the access renewal for the episode seenGen
// observed. It returns nil without renewing when a renewal already completed
// after seenGen was read.
func (c *Coordinator) RenewAccess(ctx context.Context, seenGen uint64, renew RenewFunc) error {
	return c.access.renew(ctx, seenGen, c.renewTimeout, renew)
}

// RenewCSRF is RenewAccess for the CSRF queue.
func (c *Coordinator) RenewCSRF(ctx context.Context, seenGen uint64, renew RenewFunc) error {
	return c.csrf.renew(ctx, seenGen, c.renewTimeout, renew)
}

type renewalQueue struct {
	mu       sync.Mutex
	inFlight bool
	gen      uint64
	waiters  []chan error
}

func (q *renewalQueue) generation() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.gen
}

func (q *renewalQueue) renew(ctx context.Context, seenGen uint64, timeout time.Duration, fn RenewFunc) error {
	q.mu.Lock()
	if !q.inFlight && q.gen != seenGen {
		q.mu.Unlock()
		return nil
	}

	done := make(chan error, 1)
	q.waiters = append(q.waiters, done)
	if !q.inFlight {
		q.inFlight = true
		go q.run(context.WithoutCancel(ctx), timeout, fn)
	}
	q.mu.Unlock()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run performs the renewal on a context detached from the caller that
// started it, so one cancelled caller cannot fail the others.
func (q *renewalQueue) run(ctx context.Context, timeout time.Duration, fn RenewFunc) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	err := safeRenew(ctx, fn)
	cancel()

	q.mu.Lock()
	if err == nil {
		q.gen++
	}
	waiters := q.waiters
	q.waiters = nil
	q.inFlight = false
	q.mu.Unlock()

	for _, w := range waiters {
		w <- err
	}
}

func safeRenew(ctx context.Context, fn RenewFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("client: renewal panicked: %v", r)
		}
	}()
	return fn(ctx)
}
