package pub

import (
	"escrow-service/internal/domain"
	"escrow-service/internal/metrics"

	"go.uber.org/zap"
)

// Publisher accepts domain events after a commit. Publish never blocks.
type Publisher interface {
	Publish(ev domain.DomainEvent) bool
}

// Queue is a bounded in-process outbox. When full, new events are dropped
// and counted rather than stalling the caller.
type Queue struct {
	ch     chan domain.DomainEvent
	logger *zap.Logger
}

func NewQueue(size int, logger *zap.Logger) *Queue {
	if size <= 0 {
		size = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{ch: make(chan domain.DomainEvent, size), logger: logger}
}

func (q *Queue) Publish(ev domain.DomainEvent) bool {
	select {
	case q.ch <- ev:
		metrics.QueueDepth.Inc()
		return true
	default:
		metrics.EventsDropped.WithLabelValues(string(ev.Type)).Inc()
		q.logger.Warn("event queue full, dropping event",
			zap.String("event_id", ev.ID),
			zap.String("type", string(ev.Type)),
			zap.String("escrow_id", ev.EscrowID))
		return false
	}
}

func (q *Queue) Len() int {
	return len(q.ch)
}

// Discard is a Publisher that drops everything.
type Discard struct{}

func (Discard) Publish(domain.DomainEvent) bool { return true }
