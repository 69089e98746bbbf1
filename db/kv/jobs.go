package kv

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/spknetwork/storage-coordinator/db/iface"
	"github.com/spknetwork/storage-coordinator/types"
	bolt "go.etcd.io/bbolt"
)

// permlinkKey is the unique human identifier of a job.
func permlinkKey(owner, permlink string) []byte {
	return []byte(owner + "/" + permlink)
}

// queueKey orders the claimable queue: shorts sort ahead of regular jobs,
// then oldest first. The job id suffix keeps keys unique.
func queueKey(j *types.EncodingJob) []byte {
	key := make([]byte, 1, 9+len(j.ID))
	if j.IsShort {
		key[0] = 0
	} else {
		key[0] = 1
	}
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(j.CreatedAt.UnixNano()))
	key = append(key, ts[:]...)
	return append(key, j.ID...)
}

// CreateJob inserts a queued job, rejecting duplicate (owner, permlink)
// pairs with ErrConflict.
func (s *Store) CreateJob(ctx context.Context, j *types.EncodingJob) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		permIdx := tx.Bucket(jobPermlinkIndex)
		pk := permlinkKey(j.Owner, j.Permlink)
		if existing := permIdx.Get(pk); existing != nil {
			return errors.Wrapf(iface.ErrConflict, "job %s/%s already exists", j.Owner, j.Permlink)
		}
		if err := putJSON(tx.Bucket(jobsBucket), []byte(j.ID), j); err != nil {
			return err
		}
		if err := permIdx.Put(pk, []byte(j.ID)); err != nil {
			return err
		}
		if j.Status == types.JobQueued {
			return tx.Bucket(jobQueueIndex).Put(queueKey(j), []byte(j.ID))
		}
		return nil
	})
}

// Job fetches a job by id.
func (s *Store) Job(ctx context.Context, id string) (*types.EncodingJob, error) {
	j := &types.EncodingJob{}
	err := s.view(ctx, func(tx *bolt.Tx) error {
		ok, err := getJSON(tx.Bucket(jobsBucket), []byte(id), j)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(iface.ErrNotFound, "job %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return j, nil
}

// JobByOwnerPermlink fetches a job through the permlink index.
func (s *Store) JobByOwnerPermlink(ctx context.Context, owner, permlink string) (*types.EncodingJob, error) {
	j := &types.EncodingJob{}
	err := s.view(ctx, func(tx *bolt.Tx) error {
		id := tx.Bucket(jobPermlinkIndex).Get(permlinkKey(owner, permlink))
		if id == nil {
			return errors.Wrapf(iface.ErrNotFound, "job %s/%s", owner, permlink)
		}
		ok, err := getJSON(tx.Bucket(jobsBucket), id, j)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(iface.ErrNotFound, "job %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return j, nil
}

// Jobs lists jobs matching the filter, newest first.
func (s *Store) Jobs(ctx context.Context, f iface.JobFilter) ([]*types.EncodingJob, error) {
	var jobs []*types.EncodingJob
	err := s.view(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(jobsBucket).ForEach(func(_, v []byte) error {
			j := &types.EncodingJob{}
			if err := json.Unmarshal(v, j); err != nil {
				return err
			}
			if f.Owner != "" && j.Owner != f.Owner {
				return nil
			}
			if f.Status != "" && j.Status != f.Status {
				return nil
			}
			jobs = append(jobs, j)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})
	return jobs, nil
}

// ClaimNextQueuedJob atomically hands the highest-priority claimable job
// to the given encoder. Bolt's single-writer transaction guarantees that
// two concurrent claimers can never receive the same job. Jobs whose
// retry backoff has not elapsed are skipped. Returns nil when the queue
// is empty.
func (s *Store) ClaimNextQueuedJob(ctx context.Context, encoderID string, encoderType types.EncoderType, leaseExpiresAt, now time.Time) (*types.EncodingJob, error) {
	var claimed *types.EncodingJob
	err := s.update(ctx, func(tx *bolt.Tx) error {
		queue := tx.Bucket(jobQueueIndex)
		jobsBkt := tx.Bucket(jobsBucket)
		c := queue.Cursor()
		for k, id := c.First(); k != nil; k, id = c.Next() {
			j := &types.EncodingJob{}
			ok, err := getJSON(jobsBkt, id, j)
			if err != nil {
				return err
			}
			if !ok || j.Status != types.JobQueued {
				// Stale queue entry; drop it and move on.
				if err := queue.Delete(k); err != nil {
					return err
				}
				continue
			}
			if !j.NotBefore.IsZero() && now.Before(j.NotBefore) {
				continue
			}
			j.Status = types.JobAssigned
			j.AssignedEncoderID = encoderID
			j.EncoderType = encoderType
			j.LeaseExpiresAt = leaseExpiresAt
			j.Attempts++
			j.NotBefore = time.Time{}
			if err := putJSON(jobsBkt, id, j); err != nil {
				return err
			}
			if err := queue.Delete(k); err != nil {
				return err
			}
			claimed = j
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// UpdateJob applies fn to the job inside one write transaction, keeping
// the queue index in sync with the resulting status.
func (s *Store) UpdateJob(ctx context.Context, id string, fn func(*types.EncodingJob) error) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		jobsBkt := tx.Bucket(jobsBucket)
		j := &types.EncodingJob{}
		ok, err := getJSON(jobsBkt, []byte(id), j)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(iface.ErrNotFound, "job %s", id)
		}
		wasQueued := j.Status == types.JobQueued
		if err := fn(j); err != nil {
			return err
		}
		if err := putJSON(jobsBkt, []byte(id), j); err != nil {
			return err
		}
		queue := tx.Bucket(jobQueueIndex)
		if j.Status == types.JobQueued && !wasQueued {
			return queue.Put(queueKey(j), []byte(j.ID))
		}
		if j.Status != types.JobQueued && wasQueued {
			return queue.Delete(queueKey(j))
		}
		return nil
	})
}

// JobsWithExpiredLeases returns leased jobs whose lease has lapsed as of
// now, for the reaper to recycle.
func (s *Store) JobsWithExpiredLeases(ctx context.Context, now time.Time) ([]*types.EncodingJob, error) {
	var expired []*types.EncodingJob
	err := s.view(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(jobsBucket).ForEach(func(_, v []byte) error {
			j := &types.EncodingJob{}
			if err := json.Unmarshal(v, j); err != nil {
				return err
			}
			if j.Status.IsActive() && !j.LeaseExpiresAt.IsZero() && j.LeaseExpiresAt.Before(now) {
				expired = append(expired, j)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// QueueStats counts jobs by state.
func (s *Store) QueueStats(ctx context.Context) (*iface.QueueStats, error) {
	stats := &iface.QueueStats{}
	err := s.view(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(jobsBucket).ForEach(func(_, v []byte) error {
			j := &types.EncodingJob{}
			if err := json.Unmarshal(v, j); err != nil {
				return err
			}
			switch j.Status {
			case types.JobQueued:
				stats.Queued++
			case types.JobAssigned:
				stats.Assigned++
			case types.JobDownloading, types.JobEncoding, types.JobUploading:
				stats.Processing++
			case types.JobCompleted:
				stats.Completed++
			case types.JobFailed:
				stats.Failed++
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	stats.TotalPending = stats.Queued + stats.Assigned + stats.Processing
	return stats, nil
}

// deleteJobTx removes a job and all its index entries within tx.
func deleteJobTx(tx *bolt.Tx, j *types.EncodingJob) error {
	if err := tx.Bucket(jobQueueIndex).Delete(queueKey(j)); err != nil {
		return err
	}
	if err := tx.Bucket(jobPermlinkIndex).Delete(permlinkKey(j.Owner, j.Permlink)); err != nil {
		return err
	}
	return tx.Bucket(jobsBucket).Delete([]byte(j.ID))
}
