// Package security provides a non-blocking audit publisher for policy
// violations. Events are buffered in memory and flushed to the audit store
// in the background; a full buffer drops the oldest event.
package security

import (
	"context"
	"log/slog"
	"sync"
	"time"

	audit "medcourier/pkg/platform/audit"
)

const (
	defaultFlushInterval = 500 * time.Millisecond
	defaultBatchSize     = 100
)

type Publisher struct {
	store         audit.Store
	buffer        *ringBuffer
	logger        *slog.Logger
	flushInterval time.Duration
	batchSize     int

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithBufferCapacity(n int) Option {
	return func(p *Publisher) {
		p.buffer = newRingBuffer(n)
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

// New starts the background flusher. Call Close to drain and stop it.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:         store,
		buffer:        newRingBuffer(defaultBufferCapacity),
		flushInterval: defaultFlushInterval,
		batchSize:     defaultBatchSize,
		stop:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Emit enqueues the event and returns immediately.
func (p *Publisher) Emit(_ context.Context, event audit.SecurityEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Severity == "" {
		event.Severity = audit.SeverityWarning
	}
	p.buffer.enqueue(event)
}

// Pending returns the number of buffered events.
func (p *Publisher) Pending() int {
	return p.buffer.len()
}

// Dropped returns the number of events lost to overflow.
func (p *Publisher) Dropped() int64 {
	return p.buffer.droppedCount()
}

func (p *Publisher) run() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.flush(context.Background())
		case <-p.stop:
			p.flush(context.Background())
			return
		}
	}
}

func (p *Publisher) flush(ctx context.Context) {
	for {
		batch := p.buffer.dequeueBatch(p.batchSize)
		if len(batch) == 0 {
			return
		}
		for _, e := range batch {
			if err := p.store.Append(ctx, e.ToEvent()); err != nil && p.logger != nil {
				p.logger.WarnContext(ctx, "failed to persist security audit event",
					"action", e.Action,
					"subject_id", e.SubjectID,
					"error", err,
				)
			}
		}
	}
}

// Close drains the buffer and stops the flusher.
func (p *Publisher) Close() error {
	p.once.Do(func() {
		close(p.stop)
		p.wg.Wait()
	})
	return nil
}
