package kv

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/spknetwork/storage-coordinator/db/iface"
	"github.com/spknetwork/storage-coordinator/types"
	bolt "go.etcd.io/bbolt"
)

// CreateChallenge inserts a pending challenge row. The row goes in before
// the outbound request is made, so history never loses an issued
// challenge.
func (s *Store) CreateChallenge(ctx context.Context, c *types.PoAChallenge) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		if err := putJSON(tx.Bucket(challengesBucket), []byte(c.ID), c); err != nil {
			return err
		}
		return tx.Bucket(challengeTimeIndex).Put(timeKey(c.CreatedAt, c.ID), []byte(c.ID))
	})
}

// Challenge fetches a challenge by id.
func (s *Store) Challenge(ctx context.Context, id string) (*types.PoAChallenge, error) {
	c := &types.PoAChallenge{}
	err := s.view(ctx, func(tx *bolt.Tx) error {
		ok, err := getJSON(tx.Bucket(challengesBucket), []byte(id), c)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(iface.ErrNotFound, "challenge %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ResolveChallenge records the terminal result of a challenge. A
// challenge resolves exactly once; a second resolution is a conflict.
func (s *Store) ResolveChallenge(ctx context.Context, id string, result types.ChallengeResult, reason, response string, latencyMs int64) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		bkt := tx.Bucket(challengesBucket)
		c := &types.PoAChallenge{}
		ok, err := getJSON(bkt, []byte(id), c)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(iface.ErrNotFound, "challenge %s", id)
		}
		if c.Result != types.ChallengePending {
			return errors.Wrapf(iface.ErrConflict, "challenge %s already resolved", id)
		}
		c.Result = result
		c.Reason = reason
		c.Response = response
		c.LatencyMs = latencyMs
		c.ResolvedAt = time.Now().UTC()
		return putJSON(bkt, []byte(id), c)
	})
}

// RecentChallenges returns up to limit challenges, newest first.
func (s *Store) RecentChallenges(ctx context.Context, limit int) ([]*types.PoAChallenge, error) {
	var out []*types.PoAChallenge
	err := s.view(ctx, func(tx *bolt.Tx) error {
		idx := tx.Bucket(challengeTimeIndex)
		bkt := tx.Bucket(challengesBucket)
		c := idx.Cursor()
		for k, id := c.Last(); k != nil && len(out) < limit; k, id = c.Prev() {
			ch := &types.PoAChallenge{}
			ok, err := getJSON(bkt, id, ch)
			if err != nil {
				return err
			}
			if ok {
				out = append(out, ch)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ChallengesInRange returns challenges created within [from, to],
// oldest first.
func (s *Store) ChallengesInRange(ctx context.Context, from, to time.Time) ([]*types.PoAChallenge, error) {
	var out []*types.PoAChallenge
	err := s.view(ctx, func(tx *bolt.Tx) error {
		idx := tx.Bucket(challengeTimeIndex)
		bkt := tx.Bucket(challengesBucket)
		c := idx.Cursor()
		min := timeKey(from, "")
		for k, id := c.Seek(min); k != nil; k, id = c.Next() {
			ch := &types.PoAChallenge{}
			ok, err := getJSON(bkt, id, ch)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if ch.CreatedAt.After(to) {
				break
			}
			out = append(out, ch)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PendingChallengeCount counts unresolved challenge rows.
func (s *Store) PendingChallengeCount(ctx context.Context) (int, error) {
	count := 0
	err := s.view(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(challengesBucket).ForEach(func(_, v []byte) error {
			c := &types.PoAChallenge{}
			if err := json.Unmarshal(v, c); err != nil {
				return err
			}
			if c.Result == types.ChallengePending {
				count++
			}
			return nil
		})
	})
	return count, err
}
