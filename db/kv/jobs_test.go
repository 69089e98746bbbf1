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

func queuedJob(id, owner, permlink string, isShort bool, createdAt time.Time) *types.EncodingJob {
	return &types.EncodingJob{
		ID:          id,
		Owner:       owner,
		Permlink:    permlink,
		InputCID:    "Qm" + id,
		Status:      types.JobQueued,
		IsShort:     isShort,
		MaxAttempts: 3,
		CreatedAt:   createdAt,
	}
}

func TestCreateJob_DuplicatePermlink(t *testing.T) {
	store := setupDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.CreateJob(ctx, queuedJob("j1", "alice", "vid", false, now)))
	err := store.CreateJob(ctx, queuedJob("j2", "alice", "vid", false, now))
	if !iface.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}

	// The same permlink under another owner is fine.
	require.NoError(t, store.CreateJob(ctx, queuedJob("j3", "bob", "vid", false, now)))
}

func TestClaimNextQueuedJob_PriorityOrder(t *testing.T) {
	store := setupDB(t)
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, store.CreateJob(ctx, queuedJob("old-long", "a", "p1", false, base)))
	require.NoError(t, store.CreateJob(ctx, queuedJob("new-long", "a", "p2", false, base.Add(time.Second))))
	require.NoError(t, store.CreateJob(ctx, queuedJob("new-short", "a", "p3", true, base.Add(2*time.Second))))

	lease := base.Add(2 * time.Minute)

	// Shorts first, then oldest long jobs.
	first, err := store.ClaimNextQueuedJob(ctx, "e1", types.EncoderDesktop, lease, base.Add(3*time.Second))
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "new-short", first.ID)

	second, err := store.ClaimNextQueuedJob(ctx, "e1", types.EncoderDesktop, lease, base.Add(3*time.Second))
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "old-long", second.ID)

	third, err := store.ClaimNextQueuedJob(ctx, "e1", types.EncoderDesktop, lease, base.Add(3*time.Second))
	require.NoError(t, err)
	require.NotNil(t, third)
	assert.Equal(t, "new-long", third.ID)

	empty, err := store.ClaimNextQueuedJob(ctx, "e1", types.EncoderDesktop, lease, base.Add(3*time.Second))
	require.NoError(t, err)
	if empty != nil {
		t.Fatalf("expected empty queue, got %v", empty)
	}
}

func TestClaimNextQueuedJob_SetsLease(t *testing.T) {
	store := setupDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, store.CreateJob(ctx, queuedJob("j1", "a", "p1", false, now)))

	lease := now.Add(2 * time.Minute)
	job, err := store.ClaimNextQueuedJob(ctx, "e1", types.EncoderBrowser, lease, now)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, types.JobAssigned, job.Status)
	assert.Equal(t, "e1", job.AssignedEncoderID)
	assert.Equal(t, types.EncoderBrowser, job.EncoderType)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, true, job.LeaseExpiresAt.Equal(lease))
}

func TestClaimNextQueuedJob_SkipsBackoffWindow(t *testing.T) {
	store := setupDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	job := queuedJob("j1", "a", "p1", false, now)
	job.NotBefore = now.Add(time.Minute)
	require.NoError(t, store.CreateJob(ctx, job))

	got, err := store.ClaimNextQueuedJob(ctx, "e1", types.EncoderDesktop, now.Add(2*time.Minute), now)
	require.NoError(t, err)
	if got != nil {
		t.Fatalf("claim should skip jobs inside their backoff window, got %v", got)
	}

	got, err = store.ClaimNextQueuedJob(ctx, "e1", types.EncoderDesktop, now.Add(2*time.Minute), now.Add(2*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "j1", got.ID)
	assert.Equal(t, true, got.NotBefore.IsZero())
}

func TestUpdateJob_RequeueRestoresQueueIndex(t *testing.T) {
	store := setupDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, store.CreateJob(ctx, queuedJob("j1", "a", "p1", false, now)))

	claimed, err := store.ClaimNextQueuedJob(ctx, "e1", types.EncoderDesktop, now.Add(time.Minute), now)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	// Requeue the job; a later claim must find it again.
	require.NoError(t, store.UpdateJob(ctx, "j1", func(j *types.EncodingJob) error {
		j.Status = types.JobQueued
		j.AssignedEncoderID = ""
		return nil
	}))
	reclaimed, err := store.ClaimNextQueuedJob(ctx, "e2", types.EncoderDesktop, now.Add(time.Minute), now)
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, "e2", reclaimed.AssignedEncoderID)
}

func TestJobsWithExpiredLeases(t *testing.T) {
	store := setupDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.CreateJob(ctx, queuedJob("stale", "a", "p1", false, now)))
	require.NoError(t, store.CreateJob(ctx, queuedJob("fresh", "a", "p2", false, now.Add(time.Second))))

	// The older job gets a lease already in the past.
	_, err := store.ClaimNextQueuedJob(ctx, "e1", types.EncoderDesktop, now.Add(-time.Minute), now)
	require.NoError(t, err)
	_, err = store.ClaimNextQueuedJob(ctx, "e2", types.EncoderDesktop, now.Add(time.Hour), now)
	require.NoError(t, err)

	expired, err := store.JobsWithExpiredLeases(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, len(expired))
	assert.Equal(t, "stale", expired[0].ID)
}

func TestQueueStats(t *testing.T) {
	store := setupDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.CreateJob(ctx, queuedJob("q1", "a", "p1", false, now)))
	require.NoError(t, store.CreateJob(ctx, queuedJob("q2", "a", "p2", false, now)))
	_, err := store.ClaimNextQueuedJob(ctx, "e1", types.EncoderDesktop, now.Add(time.Minute), now)
	require.NoError(t, err)
	require.NoError(t, store.UpdateJob(ctx, "q1", func(j *types.EncodingJob) error {
		j.Status = types.JobEncoding
		return nil
	}))

	stats, err := store.QueueStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Queued)
	assert.Equal(t, 0, stats.Assigned)
	assert.Equal(t, 1, stats.Processing)
	assert.Equal(t, 2, stats.TotalPending)
}

func TestJobByOwnerPermlink(t *testing.T) {
	store := setupDB(t)
	ctx := context.Background()
	require.NoError(t, store.CreateJob(ctx, queuedJob("j1", "alice", "vid", false, time.Now().UTC())))

	job, err := store.JobByOwnerPermlink(ctx, "alice", "vid")
	require.NoError(t, err)
	assert.Equal(t, "j1", job.ID)

	_, err = store.JobByOwnerPermlink(ctx, "alice", "other")
	if !iface.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
