package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
	"github.com/spknetwork/storage-coordinator/db/iface"
	"github.com/spknetwork/storage-coordinator/types"
	bolt "go.etcd.io/bbolt"
)

// SaveFile writes a file row and its cid index entry.
func (s *Store) SaveFile(ctx context.Context, f *types.File) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		if err := putJSON(tx.Bucket(filesBucket), []byte(f.ID), f); err != nil {
			return err
		}
		return tx.Bucket(fileCIDIndex).Put([]byte(f.CID), []byte(f.ID))
	})
}

// File fetches a file by id.
func (s *Store) File(ctx context.Context, id string) (*types.File, error) {
	f := &types.File{}
	err := s.view(ctx, func(tx *bolt.Tx) error {
		ok, err := getJSON(tx.Bucket(filesBucket), []byte(id), f)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(iface.ErrNotFound, "file %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// FileByCID fetches a file through the cid index.
func (s *Store) FileByCID(ctx context.Context, cid string) (*types.File, error) {
	f := &types.File{}
	err := s.view(ctx, func(tx *bolt.Tx) error {
		id := tx.Bucket(fileCIDIndex).Get([]byte(cid))
		if id == nil {
			return errors.Wrapf(iface.ErrNotFound, "cid %s", cid)
		}
		ok, err := getJSON(tx.Bucket(filesBucket), id, f)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(iface.ErrNotFound, "file %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Files lists files, optionally filtered by status, oldest first.
func (s *Store) Files(ctx context.Context, status types.FileStatus) ([]*types.File, error) {
	var files []*types.File
	err := s.view(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(filesBucket).ForEach(func(_, v []byte) error {
			f := &types.File{}
			if err := json.Unmarshal(v, f); err != nil {
				return err
			}
			if status != "" && f.Status != status {
				return nil
			}
			files = append(files, f)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].CreatedAt.Before(files[j].CreatedAt)
	})
	return files, nil
}

// UpdateFile applies fn to the file inside one write transaction.
func (s *Store) UpdateFile(ctx context.Context, id string, fn func(*types.File) error) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		bkt := tx.Bucket(filesBucket)
		f := &types.File{}
		ok, err := getJSON(bkt, []byte(id), f)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(iface.ErrNotFound, "file %s", id)
		}
		if err := fn(f); err != nil {
			return err
		}
		return putJSON(bkt, []byte(id), f)
	})
}

// DeleteFile removes a file row along with its assignments and any
// non-terminal encoding jobs for the same cid. Challenge rows are
// history and stay behind.
func (s *Store) DeleteFile(ctx context.Context, id string) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		filesBkt := tx.Bucket(filesBucket)
		f := &types.File{}
		ok, err := getJSON(filesBkt, []byte(id), f)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(iface.ErrNotFound, "file %s", id)
		}

		// Assignments are keyed fileID|nodeID, so a prefix scan finds them.
		assignBkt := tx.Bucket(assignmentsBucket)
		c := assignBkt.Cursor()
		prefix := assignmentKey(id, "")
		var stale [][]byte
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := assignBkt.Delete(k); err != nil {
				return err
			}
		}

		jobsBkt := tx.Bucket(jobsBucket)
		var staleJobs []*types.EncodingJob
		if err := jobsBkt.ForEach(func(_, v []byte) error {
			j := &types.EncodingJob{}
			if err := json.Unmarshal(v, j); err != nil {
				return err
			}
			if j.InputCID == f.CID && !j.Status.IsTerminal() {
				staleJobs = append(staleJobs, j)
			}
			return nil
		}); err != nil {
			return err
		}
		for _, j := range staleJobs {
			if err := deleteJobTx(tx, j); err != nil {
				return err
			}
		}

		if err := tx.Bucket(fileCIDIndex).Delete([]byte(f.CID)); err != nil {
			return err
		}
		return filesBkt.Delete([]byte(id))
	})
}
