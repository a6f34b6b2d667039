package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/reviewpulse/reviewpulse/pkg/kafka"
)

// Collector buffers activity events and publishes them to Kafka in the
// background. Tracking never blocks a request path: when the buffer is full
// or the collector is shutting down, the event is dropped.
type Collector struct {
	producer  *kafka.Producer
	eventCh   chan any
	logger    *slog.Logger
	stopCh    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewCollector creates a Collector with the given buffer size.
func NewCollector(producer *kafka.Producer, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		producer: producer,
		eventCh:  make(chan any, bufferSize),
		logger:   slog.Default().With("component", "events-collector"),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the publish loop. It returns immediately; the loop runs
// until the context is cancelled or Close is called.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event := <-c.eventCh:
				if err := c.producer.Publish(ctx, kafka.Event{
					Key:   "activity",
					Value: event,
				}); err != nil {
					c.logger.Error("failed to publish event", "error", err)
				}
			case <-c.stopCh:
				c.drainRemaining()
				return
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("events collector started", "buffer_size", cap(c.eventCh))
}

// Track enqueues an event for publishing, dropping it if the buffer is full
// or the collector has been closed. The event channel is never closed, so a
// Track racing with Close cannot panic.
func (c *Collector) Track(event any) {
	select {
	case <-c.stopCh:
		c.logger.Warn("activity event dropped (collector closed)")
		return
	default:
	}
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("activity event dropped (buffer full)")
	}
}

// Close stops accepting events and waits for the publish loop to drain the
// buffer and finish. Safe to call more than once.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		close(c.stopCh)
		<-c.done
	})
}

func (c *Collector) drainRemaining() {
	for {
		select {
		case event := <-c.eventCh:
			if err := c.producer.Publish(context.Background(), kafka.Event{
				Key:   "activity",
				Value: event,
			}); err != nil {
				c.logger.Error("failed to publish remaining event", "error", err)
			}
		default:
			return
		}
	}
}
