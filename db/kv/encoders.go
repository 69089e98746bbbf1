package kv

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/spknetwork/storage-coordinator/db/iface"
	"github.com/spknetwork/storage-coordinator/types"
	bolt "go.etcd.io/bbolt"
)

// SaveEncoder writes an encoder worker row.
func (s *Store) SaveEncoder(ctx context.Context, e *types.EncoderNode) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(encodersBucket), []byte(e.ID), e)
	})
}

// Encoder fetches an encoder by id.
func (s *Store) Encoder(ctx context.Context, id string) (*types.EncoderNode, error) {
	e := &types.EncoderNode{}
	err := s.view(ctx, func(tx *bolt.Tx) error {
		ok, err := getJSON(tx.Bucket(encodersBucket), []byte(id), e)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(iface.ErrNotFound, "encoder %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Encoders lists every registered encoder.
func (s *Store) Encoders(ctx context.Context) ([]*types.EncoderNode, error) {
	var out []*types.EncoderNode
	err := s.view(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(encodersBucket).ForEach(func(_, raw []byte) error {
			e := &types.EncoderNode{}
			if err := json.Unmarshal(raw, e); err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateEncoder applies fn to the encoder inside one write transaction,
// creating the row if it does not exist yet.
func (s *Store) UpdateEncoder(ctx context.Context, id string, fn func(*types.EncoderNode) error) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		bkt := tx.Bucket(encodersBucket)
		e := &types.EncoderNode{ID: id}
		if _, err := getJSON(bkt, []byte(id), e); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
		return putJSON(bkt, []byte(id), e)
	})
}
