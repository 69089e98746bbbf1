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

func reportItemKey(reportID, recipient string) []byte {
	return []byte(reportID + "|" + recipient)
}

// CreateReportWithItems writes a payout report and all of its line items
// in one transaction, so a report is never observable without its items.
func (s *Store) CreateReportWithItems(ctx context.Context, r *types.PayoutReport, items []*types.PayoutLineItem) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		reports := tx.Bucket(reportsBucket)
		if reports.Get([]byte(r.ID)) != nil {
			return errors.Wrapf(iface.ErrConflict, "report %s already exists", r.ID)
		}
		if err := putJSON(reports, []byte(r.ID), r); err != nil {
			return err
		}
		itemsBkt := tx.Bucket(reportItemsBucket)
		for _, item := range items {
			if err := putJSON(itemsBkt, reportItemKey(item.ReportID, item.Recipient), item); err != nil {
				return err
			}
		}
		return nil
	})
}

// Report fetches a payout report by id.
func (s *Store) Report(ctx context.Context, id string) (*types.PayoutReport, error) {
	r := &types.PayoutReport{}
	err := s.view(ctx, func(tx *bolt.Tx) error {
		ok, err := getJSON(tx.Bucket(reportsBucket), []byte(id), r)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(iface.ErrNotFound, "report %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ReportItems lists a report's line items sorted by recipient.
func (s *Store) ReportItems(ctx context.Context, reportID string) ([]*types.PayoutLineItem, error) {
	var out []*types.PayoutLineItem
	prefix := []byte(reportID + "|")
	err := s.view(ctx, func(tx *bolt.Tx) error {
		c := tx.Bucket(reportItemsBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			item := &types.PayoutLineItem{}
			if err := json.Unmarshal(v, item); err != nil {
				return err
			}
			out = append(out, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Recipient < out[j].Recipient })
	return out, nil
}

// Reports lists all payout reports, newest first.
func (s *Store) Reports(ctx context.Context) ([]*types.PayoutReport, error) {
	var out []*types.PayoutReport
	err := s.view(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(reportsBucket).ForEach(func(_, raw []byte) error {
			r := &types.PayoutReport{}
			if err := json.Unmarshal(raw, r); err != nil {
				return err
			}
			out = append(out, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// UpdateReport applies fn to the report inside one write transaction.
func (s *Store) UpdateReport(ctx context.Context, id string, fn func(*types.PayoutReport) error) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		bkt := tx.Bucket(reportsBucket)
		r := &types.PayoutReport{}
		ok, err := getJSON(bkt, []byte(id), r)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(iface.ErrNotFound, "report %s", id)
		}
		if err := fn(r); err != nil {
			return err
		}
		return putJSON(bkt, []byte(id), r)
	})
}
