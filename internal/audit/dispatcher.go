package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"credit-ledger-go/internal/metrics"

	"go.uber.org/zap"
)

// Config configures the async dispatcher.
type Config struct {
	BufferSize    int           // queued events before Notify starts dropping (default: 1000)
	Workers       int           // parallel deliveries (default: 1)
	NotifyTimeout time.Duration // per-delivery deadline (default: 5s)
}

// Dispatcher wraps a sink with a bounded queue and background workers.
// Notify never blocks: when the queue is full the event is dropped, logged
// and counted. Close drains whatever is queued.
type Dispatcher struct {
	sink    Notifier
	events  chan Event
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

var _ Notifier = (*Dispatcher)(nil)

func NewDispatcher(sink Notifier, cfg Config) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 5 * time.Second
	}

	d := &Dispatcher{
		sink:    sink,
		events:  make(chan Event, cfg.BufferSize),
		timeout: cfg.NotifyTimeout,
	}

	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}

	zap.L().Info("Audit dispatcher started",
		zap.Int("workers", cfg.Workers),
		zap.Int("buffer_size", cfg.BufferSize),
		zap.Duration("notify_timeout", cfg.NotifyTimeout))
	return d
}

// Notify queues an event for delivery (non-blocking).
func (d *Dispatcher) Notify(_ context.Context, event Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		metrics.AuditEvents.WithLabelValues(metrics.ResultDropped).Inc()
		return ErrDispatcherClosed
	}

	select {
	case d.events <- event:
		metrics.AuditQueueDepth.Set(float64(len(d.events)))
		return nil
	default:
		metrics.AuditEvents.WithLabelValues(metrics.ResultDropped).Inc()
		return fmt.Errorf("%w: dropping event for entry %s", ErrQueueFull, event.EntryId)
	}
}

// Close stops accepting events and waits until the queue is drained.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()

	d.wg.Wait()
	zap.L().Info("Audit dispatcher stopped")
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for event := range d.events {
		metrics.AuditQueueDepth.Set(float64(len(d.events)))
		d.deliver(id, event)
	}
}

func (d *Dispatcher) deliver(workerId int, event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			metrics.AuditEvents.WithLabelValues(metrics.ResultError).Inc()
			zap.L().Error("Audit sink panicked",
				zap.Int("worker", workerId),
				zap.String("entry_id", event.EntryId),
				zap.Any("panic", p))
		}
	}()

	if err := d.sink.Notify(ctx, event); err != nil {
		metrics.AuditEvents.WithLabelValues(metrics.ResultError).Inc()
		zap.L().Warn("Failed to deliver audit event",
			zap.Int("worker", workerId),
			zap.String("entry_id", event.EntryId),
			zap.String("user_id", event.UserId),
			zap.String("operation", string(event.Operation)),
			zap.Error(err))
		return
	}
	metrics.AuditEvents.WithLabelValues(metrics.ResultOK).Inc()
}
