package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/spknetwork/storage-coordinator/db/iface"
	"github.com/spknetwork/storage-coordinator/types"
	bolt "go.etcd.io/bbolt"
)

// assignmentKey joins file and node ids; an empty nodeID yields the
// prefix for all of a file's assignments.
func assignmentKey(fileID, nodeID string) []byte {
	key := make([]byte, 0, len(fileID)+1+len(nodeID))
	key = append(key, fileID...)
	key = append(key, '|')
	return append(key, nodeID...)
}

// UpsertAssignment writes a (file, node) assignment row.
func (s *Store) UpsertAssignment(ctx context.Context, a *types.StorageAssignment) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(assignmentsBucket), assignmentKey(a.FileID, a.NodeID), a)
	})
}

// Assignment fetches one (file, node) row.
func (s *Store) Assignment(ctx context.Context, fileID, nodeID string) (*types.StorageAssignment, error) {
	a := &types.StorageAssignment{}
	err := s.view(ctx, func(tx *bolt.Tx) error {
		ok, err := getJSON(tx.Bucket(assignmentsBucket), assignmentKey(fileID, nodeID), a)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(iface.ErrNotFound, "assignment %s/%s", fileID, nodeID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// RecordAssignmentProof bumps the proof or fail counter for the pair,
// creating the row on first sight. Counters only ever grow.
func (s *Store) RecordAssignmentProof(ctx context.Context, fileID, nodeID string, success bool, at time.Time) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		bkt := tx.Bucket(assignmentsBucket)
		key := assignmentKey(fileID, nodeID)
		a := &types.StorageAssignment{FileID: fileID, NodeID: nodeID}
		if _, err := getJSON(bkt, key, a); err != nil {
			return err
		}
		if success {
			a.ProofCount++
			a.LastProofAt = at
		} else {
			a.FailCount++
		}
		return putJSON(bkt, key, a)
	})
}

// AssignmentsByNode lists every assignment held by a node.
func (s *Store) AssignmentsByNode(ctx context.Context, nodeID string) ([]*types.StorageAssignment, error) {
	var out []*types.StorageAssignment
	suffix := []byte("|" + nodeID)
	err := s.view(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(assignmentsBucket).ForEach(func(k, v []byte) error {
			if !bytes.HasSuffix(k, suffix) {
				return nil
			}
			a := &types.StorageAssignment{}
			if err := json.Unmarshal(v, a); err != nil {
				return err
			}
			out = append(out, a)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
