//go:build integration

package kafka_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"medcourier/internal/platform/config"
	"medcourier/internal/platform/kafka"
	"medcourier/internal/platform/postgres"
	"medcourier/pkg/testutil/containers"
)

type RelayIntegrationSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	redpanda *containers.RedpandaContainer
	client   *kgo.Client
	outbox   *kafka.PostgresOutbox
}

func TestRelayIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RelayIntegrationSuite))
}

func (s *RelayIntegrationSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.redpanda = mgr.GetRedpanda(s.T())

	cl, err := kafka.NewClient(config.KafkaConfig{Brokers: []string{s.redpanda.SeedBroker}})
	s.Require().NoError(err)
	s.client = cl
	s.outbox = kafka.NewPostgresOutbox(s.postgres.DB)
}

func (s *RelayIntegrationSuite) TearDownSuite() {
	if s.client != nil {
		s.client.Close()
	}
}

func (s *RelayIntegrationSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "outbox"))
}

func (s *RelayIntegrationSuite) insertRow(topic, aggregateID string) uuid.UUID {
	id := uuid.New()
	_, err := s.postgres.DB.ExecContext(context.Background(), `
		INSERT INTO outbox (id, topic, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, 'shipment', $3, 'status_changed', '{"to":"SCHEDULED"}', NOW())
	`, id, topic, aggregateID)
	s.Require().NoError(err)
	return id
}

func (s *RelayIntegrationSuite) TestPublishedRowsReachTopicAndAreMarked() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topic := "medcourier.test." + uuid.NewString()[:8]
	s.Require().NoError(kafka.EnsureTopics(ctx, s.client, 1, 1, topic))
	s.Require().NoError(kafka.EnsureTopics(ctx, s.client, 1, 1, topic), "existing topics are tolerated")

	aggregate := uuid.NewString()
	s.insertRow(topic, aggregate)
	s.insertRow(topic, aggregate)

	runInTx := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return postgres.RunInTx(ctx, s.postgres.DB, 0, fn)
	}
	relay := kafka.NewRelay(s.outbox, s.client, runInTx)

	n, err := relay.PublishBatch(ctx)
	s.Require().NoError(err)
	s.Equal(2, n)

	pending, err := s.outbox.Pending(ctx)
	s.Require().NoError(err)
	s.Zero(pending)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.SeedBroker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	var got []*kgo.Record
	for len(got) < 2 && ctx.Err() == nil {
		fetches := consumer.PollFetches(ctx)
		s.Require().Empty(fetches.Errors())
		got = append(got, fetches.Records()...)
	}
	s.Require().Len(got, 2)
	s.Equal(aggregate, string(got[0].Key))
	s.JSONEq(`{"to":"SCHEDULED"}`, string(got[0].Value))
}

func (s *RelayIntegrationSuite) TestConcurrentClaimsSkipLockedRows() {
	ctx := context.Background()
	for range 4 {
		s.insertRow("medcourier.tracking", uuid.NewString())
	}

	err := postgres.RunInTx(ctx, s.postgres.DB, 0, func(ctx context.Context) error {
		first, err := s.outbox.Claim(ctx, 3)
		s.Require().NoError(err)
		s.Len(first, 3)

		// A second relay sees only the row the first did not lock.
		return postgres.RunInTx(context.Background(), s.postgres.DB, 0, func(ctx context.Context) error {
			second, err := s.outbox.Claim(ctx, 10)
			s.Require().NoError(err)
			s.Len(second, 1)
			return nil
		})
	})
	s.Require().NoError(err)
}
