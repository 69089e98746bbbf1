package kv

import (
	"context"
	"testing"
	"time"

	"github.com/spknetwork/storage-coordinator/testing/assert"
	"github.com/spknetwork/storage-coordinator/testing/require"
	"github.com/spknetwork/storage-coordinator/types"
)

func TestAppendEvent_MonotoneSeq(t *testing.T) {
	store := setupDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Several events land within the same block number.
	for i := 0; i < 3; i++ {
		require.NoError(t, store.AppendEvent(ctx, &types.SettlementEvent{
			BlockNum:    now.Unix(),
			Type:        types.EventTransfer,
			Recipient:   "alice",
			Amount:      "0.001 HBD",
			ChallengeID: "c1",
			CreatedAt:   now,
		}))
	}

	events, err := store.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 3, len(events))
	// Newest first, sequence strictly decreasing.
	assert.Equal(t, true, events[0].Seq > events[1].Seq)
	assert.Equal(t, true, events[1].Seq > events[2].Seq)
}

func TestRecentEvents_Limit(t *testing.T) {
	store := setupDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.AppendEvent(ctx, &types.SettlementEvent{
			BlockNum: now.Unix() + int64(i), Type: types.EventSlash, Reason: "TIMEOUT", CreatedAt: now,
		}))
	}
	events, err := store.RecentEvents(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 2, len(events))
	assert.Equal(t, now.Unix()+4, events[0].BlockNum)
}
