package kv

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
	"github.com/spknetwork/storage-coordinator/db/iface"
	"github.com/spknetwork/storage-coordinator/types"
	bolt "go.etcd.io/bbolt"
)

// SaveNode writes a storage node and its peer-id index entry.
func (s *Store) SaveNode(ctx context.Context, n *types.StorageNode) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		if err := putJSON(tx.Bucket(nodesBucket), []byte(n.ID), n); err != nil {
			return err
		}
		return tx.Bucket(nodePeerIndex).Put([]byte(n.PeerID), []byte(n.ID))
	})
}

// Node fetches a storage node by id.
func (s *Store) Node(ctx context.Context, id string) (*types.StorageNode, error) {
	node := &types.StorageNode{}
	err := s.view(ctx, func(tx *bolt.Tx) error {
		ok, err := getJSON(tx.Bucket(nodesBucket), []byte(id), node)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(iface.ErrNotFound, "node %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// NodeByPeerID fetches a storage node through the peer-id index.
func (s *Store) NodeByPeerID(ctx context.Context, peerID string) (*types.StorageNode, error) {
	node := &types.StorageNode{}
	err := s.view(ctx, func(tx *bolt.Tx) error {
		id := tx.Bucket(nodePeerIndex).Get([]byte(peerID))
		if id == nil {
			return errors.Wrapf(iface.ErrNotFound, "peer %s", peerID)
		}
		ok, err := getJSON(tx.Bucket(nodesBucket), id, node)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(iface.ErrNotFound, "node %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// Nodes lists storage nodes matching the filter, ordered by reputation
// descending.
func (s *Store) Nodes(ctx context.Context, f iface.NodeFilter) ([]*types.StorageNode, error) {
	var nodes []*types.StorageNode
	err := s.view(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(nodesBucket).ForEach(func(_, v []byte) error {
			n := &types.StorageNode{}
			if err := json.Unmarshal(v, n); err != nil {
				return err
			}
			if f.Status != "" && n.Status != f.Status {
				return nil
			}
			nodes = append(nodes, n)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Reputation > nodes[j].Reputation
	})
	return nodes, nil
}

// UpdateNode applies fn to the node inside a single write transaction.
// Bolt serializes writers, so per-node reputation updates linearize.
func (s *Store) UpdateNode(ctx context.Context, id string, fn func(*types.StorageNode) error) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		bkt := tx.Bucket(nodesBucket)
		node := &types.StorageNode{}
		ok, err := getJSON(bkt, []byte(id), node)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(iface.ErrNotFound, "node %s", id)
		}
		if err := fn(node); err != nil {
			return err
		}
		return putJSON(bkt, []byte(id), node)
	})
}
