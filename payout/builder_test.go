package payout

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spknetwork/storage-coordinator/db/kv"
	"github.com/spknetwork/storage-coordinator/testing/assert"
	"github.com/spknetwork/storage-coordinator/testing/require"
	"github.com/spknetwork/storage-coordinator/types"
)

func setupBuilder(t *testing.T) (*Builder, *kv.Store) {
	store, err := kv.NewKVStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return NewBuilder(store), store
}

func seedChallenges(t *testing.T, store *kv.Store, nodeID string, at time.Time, successes, failures int) {
	ctx := context.Background()
	for i := 0; i < successes+failures; i++ {
		c := &types.PoAChallenge{
			ID:        uuid.New().String(),
			NodeID:    nodeID,
			FileID:    "f1",
			Salt:      "aa01",
			CreatedAt: at.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.CreateChallenge(ctx, c))
		result := types.ChallengeSuccess
		reason := ""
		if i >= successes {
			result = types.ChallengeFail
			reason = "TIMEOUT"
		}
		require.NoError(t, store.ResolveChallenge(ctx, c.ID, result, reason, "p", 100))
	}
}

func TestGenerate_TwoRecipients(t *testing.T) {
	builder, store := setupBuilder(t)
	ctx := context.Background()
	windowStart := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, store.SaveNode(ctx, &types.StorageNode{ID: "n1", OperatorName: "alice", Status: types.NodeActive}))
	require.NoError(t, store.SaveNode(ctx, &types.StorageNode{ID: "n2", OperatorName: "bob", Status: types.NodeActive}))
	seedChallenges(t, store, "n1", windowStart.Add(time.Minute), 10, 0)
	seedChallenges(t, store, "n2", windowStart.Add(2*time.Minute), 7, 3)

	result, err := builder.Generate(ctx, "op", windowStart, windowStart.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, "0.017", result.Report.TotalHbd)
	assert.Equal(t, 2, result.Report.RecipientCount)
	assert.Equal(t, types.ReportPending, result.Report.Status)
	assert.Equal(t, 17, result.Summary.ProofCount)

	require.Equal(t, 2, len(result.Items))
	alice, bob := result.Items[0], result.Items[1]
	assert.Equal(t, "alice", alice.Recipient)
	assert.Equal(t, "0.010", alice.HbdAmount)
	assert.Equal(t, 10, alice.ProofCount)
	assert.Equal(t, 100.0, alice.SuccessRate)
	assert.Equal(t, "bob", bob.Recipient)
	assert.Equal(t, "0.007", bob.HbdAmount)
	assert.Equal(t, 7, bob.ProofCount)
	assert.Equal(t, 70.0, bob.SuccessRate)

	// The report and its items are readable back atomically.
	items, err := store.ReportItems(ctx, result.Report.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, len(items))
	assert.Equal(t, true, VerifyTotals(result.Report, items))
}

func TestGenerate_EmptyWindow(t *testing.T) {
	builder, _ := setupBuilder(t)
	start := time.Now().UTC().Add(-time.Hour)

	result, err := builder.Generate(context.Background(), "op", start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "0.000", result.Report.TotalHbd)
	assert.Equal(t, 0, result.Report.RecipientCount)
	assert.Equal(t, 0, len(result.Items))
}

func TestGenerate_PendingChallengesExcluded(t *testing.T) {
	builder, store := setupBuilder(t)
	ctx := context.Background()
	start := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, store.SaveNode(ctx, &types.StorageNode{ID: "n1", OperatorName: "alice", Status: types.NodeActive}))
	require.NoError(t, store.CreateChallenge(ctx, &types.PoAChallenge{
		ID: uuid.New().String(), NodeID: "n1", CreatedAt: start.Add(time.Minute),
	}))

	result, err := builder.Generate(ctx, "op", start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, len(result.Items))
}

func TestGenerate_FallsBackToPeerID(t *testing.T) {
	builder, store := setupBuilder(t)
	ctx := context.Background()
	start := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, store.SaveNode(ctx, &types.StorageNode{ID: "n1", PeerID: "peer1", Status: types.NodeActive}))
	seedChallenges(t, store, "n1", start.Add(time.Minute), 2, 0)

	result, err := builder.Generate(ctx, "op", start, start.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, len(result.Items))
	assert.Equal(t, "peer1", result.Items[0].Recipient)
}

func TestApproveExecuteFlow(t *testing.T) {
	builder, store := setupBuilder(t)
	ctx := context.Background()
	start := time.Now().UTC().Add(-time.Hour)

	result, err := builder.Generate(ctx, "op", start, start.Add(time.Hour))
	require.NoError(t, err)
	id := result.Report.ID

	// Executing before approval is a conflict.
	err = builder.Execute(ctx, id, "tx123")
	assert.ErrorContains(t, "is pending", err)

	require.NoError(t, builder.Approve(ctx, id))
	require.NoError(t, builder.Execute(ctx, id, "tx123"))

	stored, err := store.Report(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.ReportExecuted, stored.Status)
	assert.Equal(t, "tx123", stored.ExecutedTxHash)

	// Approving an executed report is rejected.
	err = builder.Approve(ctx, id)
	assert.ErrorContains(t, "is executed", err)
}

func TestBuildExport_RoundTrip(t *testing.T) {
	builder, store := setupBuilder(t)
	ctx := context.Background()
	windowStart := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveNode(ctx, &types.StorageNode{ID: "n1", OperatorName: "alice", Status: types.NodeActive}))
	seedChallenges(t, store, "n1", windowStart.Add(time.Minute), 10, 0)

	result, err := builder.Generate(ctx, "op", windowStart, windowStart.AddDate(0, 0, 7))
	require.NoError(t, err)

	export, err := builder.BuildExport(ctx, result.Report.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-01_to_2026-08-08", export.Period)
	assert.Equal(t, "op", export.GeneratedBy)
	assert.Equal(t, "0.010", export.TotalHbd)
	require.Equal(t, 1, len(export.Payouts))
	assert.Equal(t, "alice", export.Payouts[0].Username)
	assert.Equal(t, "0.010", export.Payouts[0].Amount)

	// Export, re-import, export again: byte-identical JSON.
	first, err := json.Marshal(export)
	require.NoError(t, err)
	var reimported Export
	require.NoError(t, json.Unmarshal(first, &reimported))
	second, err := json.Marshal(&reimported)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}
