package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// dropLogEvery bounds drop warnings under sustained overload: the first drop
// is logged, then one in every dropLogEvery.
const dropLogEvery = 100

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards events when the buffer is full instead of blocking
	// the caller until space frees up or its context ends.
	DropIfFull bool
	Logger     *slog.Logger
}

// Dispatcher relays audit events to a sink from one background goroutine.
//
// Events that never reach the sink are counted by [Dispatcher.Dropped]: a
// full buffer in drop mode, a caller context that ends while blocked, or a
// sink that panics.
type Dispatcher struct {
	sink       Sink
	logger     *slog.Logger
	dropIfFull bool
	queue      chan Event
	stop       chan struct{}
	wg         sync.WaitGroup
	dropped    atomic.Uint64
	closed     atomic.Bool
	closeOnce  sync.Once
}

// NewDispatcher starts a dispatcher around sink. It returns nil when auditing
// is disabled; every method is safe on a nil dispatcher.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	d := &Dispatcher{
		sink:       sink,
		logger:     cfg.Logger.With("component", "audit"),
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan Event, cfg.BufferSize),
		stop:       make(chan struct{}),
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.dropped.Add(1)
			d.logger.Error("audit sink panicked",
				slog.String("event_type", event.EventType),
				slog.Any("panic", r),
			)
		}
	}()
	d.sink.Emit(context.Background(), event)
}

// Emit queues event and reports whether it was accepted. Events emitted after
// Close are ignored without counting as drops.
func (d *Dispatcher) Emit(ctx context.Context, event Event) bool {
	if d == nil || d.closed.Load() {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
			return true
		case <-d.stop:
			return false
		default:
			d.drop(event, "buffer full")
			return false
		}
	}

	select {
	case d.queue <- event:
		return true
	case <-ctx.Done():
		d.drop(event, "context done")
		return false
	case <-d.stop:
		return false
	}
}

func (d *Dispatcher) drop(event Event, reason string) {
	n := d.dropped.Add(1)
	if n == 1 || n%dropLogEvery == 0 {
		d.logger.Warn("audit event dropped",
			slog.String("event_type", event.EventType),
			slog.String("reason", reason),
			slog.Uint64("dropped_total", n),
		)
	}
}

// Close stops intake and flushes queued events to the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.wg.Wait()
	})
}

// Dropped reports events that never reached the sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
