package pub

import (
	"context"
	"time"

	"escrow-service/internal/domain"
	"escrow-service/internal/metrics"

	"go.uber.org/zap"
)

// Sink delivers one event to an external channel.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev domain.DomainEvent) error
}

// Dispatcher drains the queue and fans each event out to every sink. A
// failing sink is logged and skipped; it never affects the others.
type Dispatcher struct {
	queue   *Queue
	sinks   []Sink
	timeout time.Duration
	logger  *zap.Logger
}

func NewDispatcher(queue *Queue, logger *zap.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   queue,
		sinks:   sinks,
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

// Run blocks until ctx is done, then flushes what is already queued.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("event dispatcher started", zap.Int("sinks", len(d.sinks)))
	for {
		select {
		case ev := <-d.queue.ch:
			metrics.QueueDepth.Dec()
			d.dispatch(ctx, ev)
		case <-ctx.Done():
			d.drain()
			d.logger.Info("event dispatcher stopped")
			return nil
		}
	}
}

func (d *Dispatcher) drain() {
	flushCtx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	for {
		select {
		case ev := <-d.queue.ch:
			metrics.QueueDepth.Dec()
			d.dispatch(flushCtx, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, ev domain.DomainEvent) {
	for _, s := range d.sinks {
		sctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := s.Deliver(sctx, ev)
		cancel()
		if err != nil {
			metrics.EventsDelivered.WithLabelValues(s.Name(), "error").Inc()
			d.logger.Warn("event delivery failed",
				zap.String("sink", s.Name()),
				zap.String("event_id", ev.ID),
				zap.String("type", string(ev.Type)),
				zap.Error(err))
			continue
		}
		metrics.EventsDelivered.WithLabelValues(s.Name(), "ok").Inc()
	}
}
