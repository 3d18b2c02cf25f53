package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Publisher sends events to the analytics topic, typically a kafka
// producer.
type Publisher interface {
	Publish(ctx context.Context, key string, value any) error
}

// Collector buffers search events and publishes them from a single
// goroutine so request handlers never wait on the broker. Events are
// dropped when the buffer is full.
type Collector struct {
	publisher Publisher
	eventCh   chan SearchEvent
	dropped   atomic.Int64
	logger    *slog.Logger
	stop      chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

func NewCollector(publisher Publisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		publisher: publisher,
		eventCh:   make(chan SearchEvent, bufferSize),
		logger:    slog.Default().With("component", "analytics-collector"),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the publish loop in the background. When ctx is done or Close
// is called the buffered events are flushed before the loop exits.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event := <-c.eventCh:
				c.publish(ctx, event)
			case <-ctx.Done():
				c.drainRemaining()
				return
			case <-c.stop:
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

// Track queues event without blocking.
func (c *Collector) Track(event SearchEvent) {
	select {
	case c.eventCh <- event:
	default:
		if c.dropped.Add(1)%1000 == 1 {
			c.logger.Warn("analytics event dropped (buffer full)", "dropped_total", c.dropped.Load())
		}
	}
}

func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Close flushes the buffer and waits for the publish loop. Events tracked
// afterwards stay in the buffer and are never sent.
func (c *Collector) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

func (c *Collector) publish(ctx context.Context, event SearchEvent) {
	if err := c.publisher.Publish(ctx, event.RequestID, event); err != nil {
		c.logger.Error("failed to publish analytics event", "error", err)
	}
}

func (c *Collector) drainRemaining() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case event := <-c.eventCh:
			c.publish(ctx, event)
		default:
			return
		}
	}
}
