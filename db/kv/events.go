package kv

import (
	"context"
	"encoding/binary"
	"encoding/json"

	"github.com/spknetwork/storage-coordinator/types"
	bolt "go.etcd.io/bbolt"
)

// AppendEvent writes one settlement ledger entry. The bucket sequence
// provides the per-block tiebreak, so keys stay strictly increasing even
// when several challenges resolve within the same second.
func (s *Store) AppendEvent(ctx context.Context, e *types.SettlementEvent) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		bkt := tx.Bucket(eventsBucket)
		seq, err := bkt.NextSequence()
		if err != nil {
			return err
		}
		e.Seq = seq
		key := make([]byte, 16)
		binary.BigEndian.PutUint64(key[:8], uint64(e.BlockNum))
		binary.BigEndian.PutUint64(key[8:], seq)
		return putJSON(bkt, key, e)
	})
}

// RecentEvents returns up to limit ledger entries, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]*types.SettlementEvent, error) {
	var out []*types.SettlementEvent
	err := s.view(ctx, func(tx *bolt.Tx) error {
		c := tx.Bucket(eventsBucket).Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			e := &types.SettlementEvent{}
			if err := json.Unmarshal(v, e); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
