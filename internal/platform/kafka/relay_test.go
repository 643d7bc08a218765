package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"medcourier/internal/platform/metrics"
)

type fakeOutbox struct {
	pending   []Entry
	published []uuid.UUID
	at        time.Time
	failed    []uuid.UUID
	reason    string
	claimErr  error
}

func (f *fakeOutbox) Claim(_ context.Context, limit int) ([]Entry, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeOutbox) MarkPublished(_ context.Context, ids []uuid.UUID, at time.Time) error {
	f.published = append(f.published, ids...)
	f.at = at
	return nil
}

func (f *fakeOutbox) MarkFailed(_ context.Context, ids []uuid.UUID, reason string) error {
	f.failed = append(f.failed, ids...)
	f.reason = reason
	return nil
}

type fakeProducer struct {
	records  []*kgo.Record
	failKeys map[string]error
}

func (p *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	out := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		p.records = append(p.records, r)
		out = append(out, kgo.ProduceResult{Record: r, Err: p.failKeys[string(r.Key)]})
	}
	return out
}

func inline(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func entry(topic, aggregate string) Entry {
	return Entry{
		ID:            uuid.New(),
		Topic:         topic,
		AggregateType: "shipment",
		AggregateID:   aggregate,
		EventType:     "status_changed",
		Payload:       []byte(`{"ok":true}`),
		CreatedAt:     time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

type RelaySuite struct {
	suite.Suite
	outbox   *fakeOutbox
	producer *fakeProducer
	metrics  *metrics.Metrics
	relay    *Relay
}

func TestRelaySuite(t *testing.T) {
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupTest() {
	s.outbox = &fakeOutbox{}
	s.producer = &fakeProducer{failKeys: map[string]error{}}
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.relay = NewRelay(s.outbox, s.producer, inline, WithMetrics(s.metrics), WithBatchSize(10),
		WithClock(func() time.Time { return relayNow }))
}

var relayNow = time.Date(2025, 6, 1, 9, 0, 5, 0, time.UTC)

func (s *RelaySuite) TestPublishesAndSettlesBatch() {
	a, b := entry("medcourier.tracking", "s-1"), entry("medcourier.audit.compliance", "s-2")
	s.outbox.pending = []Entry{a, b}

	n, err := s.relay.PublishBatch(context.Background())
	s.Require().NoError(err)
	s.Equal(2, n)
	s.ElementsMatch([]uuid.UUID{a.ID, b.ID}, s.outbox.published)
	s.Equal(relayNow, s.outbox.at)
	s.Empty(s.outbox.failed)

	s.Require().Len(s.producer.records, 2)
	rec := s.producer.records[0]
	s.Equal("medcourier.tracking", rec.Topic)
	s.Equal([]byte("s-1"), rec.Key, "records are keyed by aggregate for per-shipment ordering")
	s.Contains(rec.Headers, kgo.RecordHeader{Key: "outbox_id", Value: []byte(a.ID.String())})
	s.InDelta(1, testutil.ToFloat64(s.metrics.OutboxPublished.WithLabelValues("medcourier.tracking")), 0)
}

func (s *RelaySuite) TestRejectedRecordsStayPending() {
	good, bad := entry("medcourier.tracking", "s-1"), entry("medcourier.tracking", "s-2")
	s.outbox.pending = []Entry{good, bad}
	s.producer.failKeys["s-2"] = errors.New("broker unavailable")

	n, err := s.relay.PublishBatch(context.Background())
	s.Require().NoError(err)
	s.Equal(1, n)
	s.Equal([]uuid.UUID{good.ID}, s.outbox.published)
	s.Equal([]uuid.UUID{bad.ID}, s.outbox.failed)
	s.Equal("broker unavailable", s.outbox.reason)
	s.InDelta(1, testutil.ToFloat64(s.metrics.OutboxFailed.WithLabelValues("medcourier.tracking")), 0)
}

func (s *RelaySuite) TestEmptyOutboxProducesNothing() {
	n, err := s.relay.PublishBatch(context.Background())
	s.Require().NoError(err)
	s.Zero(n)
	s.Empty(s.producer.records)
}

func (s *RelaySuite) TestClaimErrorIsReturned() {
	s.outbox.claimErr = errors.New("connection reset")
	_, err := s.relay.PublishBatch(context.Background())
	s.ErrorContains(err, "connection reset")
}

func (s *RelaySuite) TestBatchSizeBoundsClaim() {
	for i := 0; i < 15; i++ {
		s.outbox.pending = append(s.outbox.pending, entry("medcourier.tracking", uuid.NewString()))
	}
	n, err := s.relay.PublishBatch(context.Background())
	s.Require().NoError(err)
	s.Equal(10, n)
}

func (s *RelaySuite) TestRunStopsOnCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	relay := NewRelay(s.outbox, s.producer, inline, WithPollInterval(5*time.Millisecond))
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		s.ErrorIs(err, context.Canceled)
	case <-time.After(time.Second):
		s.Fail("relay did not stop")
	}
}
