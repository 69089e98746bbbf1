package kv

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/spknetwork/storage-coordinator/db/iface"
	"github.com/spknetwork/storage-coordinator/types"
	bolt "go.etcd.io/bbolt"
)

// SaveValidator writes an operator row, keyed by username.
func (s *Store) SaveValidator(ctx context.Context, v *types.Validator) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(validatorsBucket), []byte(v.Username), v)
	})
}

// ValidatorByUsername fetches an operator by username.
func (s *Store) ValidatorByUsername(ctx context.Context, username string) (*types.Validator, error) {
	v := &types.Validator{}
	err := s.view(ctx, func(tx *bolt.Tx) error {
		ok, err := getJSON(tx.Bucket(validatorsBucket), []byte(username), v)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(iface.ErrNotFound, "validator %s", username)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Validators lists every registered operator.
func (s *Store) Validators(ctx context.Context) ([]*types.Validator, error) {
	var out []*types.Validator
	err := s.view(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(validatorsBucket).ForEach(func(_, raw []byte) error {
			v := &types.Validator{}
			if err := json.Unmarshal(raw, v); err != nil {
				return err
			}
			out = append(out, v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
