package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"medcourier/internal/platform/metrics"
)

const (
	defaultBatchSize    = 100
	defaultPollInterval = time.Second
)

// Producer is the subset of *kgo.Client the relay needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// TxRunner runs fn inside a transaction carried by ctx.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// Relay moves committed outbox rows to Kafka. Delivery is at-least-once: a
// crash between produce and commit republishes the batch.
type Relay struct {
	store        OutboxStore
	producer     Producer
	runInTx      TxRunner
	logger       *slog.Logger
	metrics      *metrics.Metrics
	batchSize    int
	pollInterval time.Duration
	now          func() time.Time
}

type RelayOption func(*Relay)

func WithLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) RelayOption {
	return func(r *Relay) { r.metrics = m }
}

func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithPollInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

func WithClock(now func() time.Time) RelayOption {
	return func(r *Relay) { r.now = now }
}

func NewRelay(store OutboxStore, producer Producer, runInTx TxRunner, opts ...RelayOption) *Relay {
	r := &Relay{
		store:        store,
		producer:     producer,
		runInTx:      runInTx,
		logger:       slog.Default(),
		batchSize:    defaultBatchSize,
		pollInterval: defaultPollInterval,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run publishes until ctx is cancelled. A full batch is followed immediately
// by another poll; otherwise the relay waits for the poll interval.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		n, err := r.PublishBatch(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "outbox batch failed", "error", err)
		}
		if n == r.batchSize && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PublishBatch claims one batch, produces it and settles each row. Rows Kafka
// rejected stay unpublished with their attempt count bumped. It returns the
// number of rows published.
func (r *Relay) PublishBatch(ctx context.Context) (int, error) {
	start := r.now()
	published := 0

	err := r.runInTx(ctx, func(ctx context.Context) error {
		entries, err := r.store.Claim(ctx, r.batchSize)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		records := make([]*kgo.Record, len(entries))
		byRecord := make(map[*kgo.Record]Entry, len(entries))
		for i, e := range entries {
			records[i] = toRecord(e)
			byRecord[records[i]] = e
		}

		var ok, failed []uuid.UUID
		var firstErr error
		for _, res := range r.producer.ProduceSync(ctx, records...) {
			e := byRecord[res.Record]
			if res.Err != nil {
				failed = append(failed, e.ID)
				if firstErr == nil {
					firstErr = res.Err
				}
				r.incFailed(e.Topic)
				continue
			}
			ok = append(ok, e.ID)
			r.incPublished(e.Topic)
		}

		if err := r.store.MarkPublished(ctx, ok, r.now()); err != nil {
			return err
		}
		if firstErr != nil {
			if err := r.store.MarkFailed(ctx, failed, firstErr.Error()); err != nil {
				return err
			}
			r.logger.WarnContext(ctx, "outbox rows not published",
				"failed", len(failed),
				"published", len(ok),
				"error", firstErr,
			)
		}
		published = len(ok)
		return nil
	})

	if r.metrics != nil {
		r.metrics.ObserveOutboxBatch(r.now().Sub(start))
	}
	return published, err
}

func toRecord(e Entry) *kgo.Record {
	return &kgo.Record{
		Topic: e.Topic,
		Key:   []byte(e.AggregateID),
		Value: e.Payload,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(e.EventType)},
			{Key: "aggregate_type", Value: []byte(e.AggregateType)},
			{Key: "outbox_id", Value: []byte(e.ID.String())},
		},
		Timestamp: e.CreatedAt,
	}
}

func (r *Relay) incPublished(topic string) {
	if r.metrics != nil {
		r.metrics.IncOutboxPublished(topic)
	}
}

func (r *Relay) incFailed(topic string) {
	if r.metrics != nil {
		r.metrics.IncOutboxFailed(topic)
	}
}
