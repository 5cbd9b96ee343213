package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trailguard/internal/domain"
)

func newStore(t *testing.T) *WALStore {
	t.Helper()
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendAndReplay(t *testing.T) {
	store := newStore(t)

	first := domain.Event{
		ID:        "evt-1",
		Kind:      domain.EventOrderFilled,
		Timestamp: time.Now().UTC().Truncate(time.Second),
		Fields:    map[string]string{"id": "btc_sell", "order_id": "OTX-1"},
	}
	second := domain.Event{
		ID:        "evt-2",
		Kind:      domain.EventInsufficientBalance,
		Timestamp: time.Now().UTC().Truncate(time.Second),
		Fields:    map[string]string{"pair": "XBTUSD"},
	}

	require.NoError(t, store.Append(first))
	require.NoError(t, store.Append(second))

	records, err := store.EventsAfter(0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "evt-1", records[0].Event.ID)
	require.Equal(t, domain.EventOrderFilled, records[0].Event.Kind)
	require.Equal(t, "evt-2", records[1].Event.ID)
}

func TestEventsAfterSkipsConsumed(t *testing.T) {
	store := newStore(t)

	require.NoError(t, store.Append(domain.Event{ID: "evt-1", Kind: domain.EventOrderFailed, Timestamp: time.Now()}))
	cursor := store.CurrentIndex()
	require.NoError(t, store.Append(domain.Event{ID: "evt-2", Kind: domain.EventOrderFilled, Timestamp: time.Now()}))

	records, err := store.EventsAfter(cursor)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "evt-2", records[0].Event.ID)
}

func TestAppendRequiresID(t *testing.T) {
	store := newStore(t)
	require.Error(t, store.Append(domain.Event{Kind: domain.EventOrderFilled}))
}

func TestUninitializedStore(t *testing.T) {
	var store *WALStore
	require.Error(t, store.Append(domain.Event{ID: "evt-1"}))
	_, err := store.EventsAfter(0)
	require.Error(t, err)
}
