package kv

import (
	"context"
	"testing"
	"time"

	"github.com/spknetwork/storage-coordinator/db/iface"
	"github.com/spknetwork/storage-coordinator/testing/assert"
	"github.com/spknetwork/storage-coordinator/testing/require"
	"github.com/spknetwork/storage-coordinator/types"
)

func TestNodeByPeerID(t *testing.T) {
	store := setupDB(t)
	ctx := context.Background()
	require.NoError(t, store.SaveNode(ctx, &types.StorageNode{ID: "n1", PeerID: "peer1", Status: types.NodeActive}))

	got, err := store.NodeByPeerID(ctx, "peer1")
	require.NoError(t, err)
	assert.Equal(t, "n1", got.ID)

	_, err = store.NodeByPeerID(ctx, "missing")
	if !iface.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNodes_FilterAndOrder(t *testing.T) {
	store := setupDB(t)
	ctx := context.Background()
	require.NoError(t, store.SaveNode(ctx, &types.StorageNode{ID: "low", Reputation: 10, Status: types.NodeActive}))
	require.NoError(t, store.SaveNode(ctx, &types.StorageNode{ID: "high", Reputation: 90, Status: types.NodeActive}))
	require.NoError(t, store.SaveNode(ctx, &types.StorageNode{ID: "banned", Reputation: 0, Status: types.NodeBanned}))

	active, err := store.Nodes(ctx, iface.NodeFilter{Status: types.NodeActive})
	require.NoError(t, err)
	require.Equal(t, 2, len(active))
	// Highest reputation first.
	assert.Equal(t, "high", active[0].ID)
	assert.Equal(t, "low", active[1].ID)

	all, err := store.Nodes(ctx, iface.NodeFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, len(all))
}

func TestUpdateNode_Linearizes(t *testing.T) {
	store := setupDB(t)
	ctx := context.Background()
	require.NoError(t, store.SaveNode(ctx, &types.StorageNode{ID: "n1", Reputation: 50, Status: types.NodeActive}))

	for i := 0; i < 10; i++ {
		require.NoError(t, store.UpdateNode(ctx, "n1", func(n *types.StorageNode) error {
			n.TotalProofs++
			return nil
		}))
	}
	got, err := store.Node(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, 10, got.TotalProofs)
}

func TestRecordAssignmentProof_CreatesAndCounts(t *testing.T) {
	store := setupDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.RecordAssignmentProof(ctx, "f1", "n1", true, now))
	require.NoError(t, store.RecordAssignmentProof(ctx, "f1", "n1", true, now.Add(time.Second)))
	require.NoError(t, store.RecordAssignmentProof(ctx, "f1", "n1", false, now.Add(2*time.Second)))

	a, err := store.Assignment(ctx, "f1", "n1")
	require.NoError(t, err)
	assert.Equal(t, 2, a.ProofCount)
	assert.Equal(t, 1, a.FailCount)

	byNode, err := store.AssignmentsByNode(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, 1, len(byNode))
}
