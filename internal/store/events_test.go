// ABOUTME: Tests for journal event persistence
// ABOUTME: Covers append, ordering, limits, detail round-trips and best-effort recording

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendEvent_GeneratesIDAndTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := &Event{Kind: EventGatewayStarted, Detail: map[string]any{"pid": 42}}
	require.NoError(t, s.AppendEvent(ctx, e))

	assert.NotEmpty(t, e.ID)
	assert.False(t, e.CreatedAt.IsZero())

	events, err := s.ListEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, e.ID, events[0].ID)
	assert.Equal(t, EventGatewayStarted, events[0].Kind)
	// JSON numbers come back as float64.
	assert.Equal(t, float64(42), events[0].Detail["pid"])
}

func TestListEvents_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.AppendEvent(ctx, &Event{Kind: EventGatewayStarted, CreatedAt: base}))
	require.NoError(t, s.AppendEvent(ctx, &Event{Kind: EventGatewayExited, CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, s.AppendEvent(ctx, &Event{Kind: EventGatewayRestarted, CreatedAt: base.Add(2 * time.Minute)}))

	events, err := s.ListEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, EventGatewayRestarted, events[0].Kind)
	assert.Equal(t, EventGatewayExited, events[1].Kind)
	assert.Equal(t, EventGatewayStarted, events[2].Kind)
}

func TestListEvents_Limit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendEvent(ctx, &Event{Kind: EventOnboardRun}))
	}

	events, err := s.ListEvents(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestListEvents_EmptyIsNotNil(t *testing.T) {
	s := newTestStore(t)

	events, err := s.ListEvents(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestRecord_SwallowsErrors(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	// Must not panic or return anything on a closed database.
	s.Record(context.Background(), EventTokenDrift, map[string]any{"expected": "abc"})
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, 50, normalizeLimit(0))
	assert.Equal(t, 50, normalizeLimit(-3))
	assert.Equal(t, 10, normalizeLimit(10))
	assert.Equal(t, 500, normalizeLimit(10_000))
}

func TestDiscard(t *testing.T) {
	Discard.Record(context.Background(), EventConfigReset, nil)
}
