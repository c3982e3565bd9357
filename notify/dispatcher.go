package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DispatcherConfig controls asynchronous delivery.
type DispatcherConfig struct {
	BufferSize  int
	SendTimeout time.Duration
}

// Dispatcher queues messages and delivers them from a background goroutine,
// so request handlers never wait on the mail provider. A full queue drops the
// message and counts it.
type Dispatcher struct {
	cfg       DispatcherConfig
	notifier  Notifier
	logger    *slog.Logger
	ch        chan Message
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	failed    atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts a dispatcher around notifier.
func NewDispatcher(cfg DispatcherConfig, notifier Notifier, logger *slog.Logger) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		cfg:      cfg,
		notifier: notifier,
		logger:   logger,
		ch:       make(chan Message, cfg.BufferSize),
		done:     make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case msg := <-d.ch:
			d.deliver(msg)
		case <-d.done:
			for {
				select {
				case msg := <-d.ch:
					d.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	if err := d.notifier.Send(ctx, msg); err != nil {
		d.failed.Add(1)
		d.logger.Error("email delivery failed",
			slog.String("kind", msg.Kind),
			slog.String("to", msg.To),
			slog.Any("error", err),
		)
	}
}

// Send enqueues msg. It reports false when the message was dropped.
func (d *Dispatcher) Send(_ context.Context, msg Message) bool {
	if d == nil || d.closed.Load() {
		return false
	}
	select {
	case d.ch <- msg:
		return true
	case <-d.done:
		return false
	default:
		d.dropped.Add(1)
		d.logger.Warn("email queue full, message dropped",
			slog.String("kind", msg.Kind),
			slog.String("to", msg.To),
		)
		return false
	}
}

// Close stops accepting messages and drains the queue.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped reports messages rejected because the queue was full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Failed reports messages the notifier could not deliver.
func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}
