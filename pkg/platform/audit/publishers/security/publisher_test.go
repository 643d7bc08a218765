package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "medcourier/pkg/platform/audit"
	"medcourier/pkg/platform/audit/store/memory"
)

func TestPublisherDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := New(store, WithFlushInterval(time.Hour))

	for range 10 {
		pub.Emit(context.Background(), audit.SecurityEvent{
			SubjectType: "driver",
			SubjectID:   "d-1",
			Action:      audit.EventClockInConflict,
		})
	}
	require.NoError(t, pub.Close())

	events, err := store.ListBySubject(context.Background(), "driver", "d-1")
	require.NoError(t, err)
	require.Len(t, events, 10)
	assert.Equal(t, audit.CategorySecurity, events[0].Category)
	assert.Equal(t, string(audit.SeverityWarning), events[0].Decision)
}

func TestPublisherFlushesInBackground(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := New(store, WithFlushInterval(10*time.Millisecond))
	defer pub.Close()

	pub.Emit(context.Background(), audit.SecurityEvent{SubjectID: "s-1", Action: audit.EventRestrictedFieldEdit})

	assert.Eventually(t, func() bool {
		return len(store.ListByAction(context.Background(), audit.EventRestrictedFieldEdit)) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestRingBufferDropsOldest(t *testing.T) {
	b := newRingBuffer(2)
	b.enqueue(audit.SecurityEvent{SubjectID: "1"})
	b.enqueue(audit.SecurityEvent{SubjectID: "2"})
	b.enqueue(audit.SecurityEvent{SubjectID: "3"})

	assert.Equal(t, int64(1), b.droppedCount())
	batch := b.dequeueBatch(10)
	require.Len(t, batch, 2)
	assert.Equal(t, "2", batch[0].SubjectID)
	assert.Equal(t, "3", batch[1].SubjectID)
	assert.Nil(t, b.dequeueBatch(1))
}

func TestPublisherCountsDroppedEvents(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := New(store, WithBufferCapacity(2), WithFlushInterval(time.Hour))

	for _, id := range []string{"d-1", "d-2", "d-3"} {
		pub.Emit(context.Background(), audit.SecurityEvent{SubjectType: "driver", SubjectID: id, Action: audit.EventOdometerRegression})
	}
	assert.Equal(t, 2, pub.Pending())
	assert.Equal(t, int64(1), pub.Dropped())

	require.NoError(t, pub.Close())
	assert.Len(t, store.ListByAction(context.Background(), audit.EventOdometerRegression), 2)
}
