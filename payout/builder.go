// Package payout aggregates proven work over a time window into signed,
// exportable settlement reports.
package payout

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spknetwork/storage-coordinator/db/iface"
	"github.com/spknetwork/storage-coordinator/hbd"
	"github.com/spknetwork/storage-coordinator/types"
)

var log = logrus.WithField("prefix", "payout")

// Builder generates payout reports from challenge history.
type Builder struct {
	repo iface.Repository
	now  func() time.Time
}

// NewBuilder wires the builder to the repository.
func NewBuilder(repo iface.Repository) *Builder {
	return &Builder{repo: repo, now: time.Now}
}

// Result bundles a freshly generated report with its line items.
type Result struct {
	Report  *types.PayoutReport     `json:"report"`
	Items   []*types.PayoutLineItem `json:"lineItems"`
	Summary Summary                 `json:"summary"`
}

// Summary is the headline numbers of a generation run.
type Summary struct {
	TotalHbd       string `json:"totalHbd"`
	RecipientCount int    `json:"recipientCount"`
	ProofCount     int    `json:"proofCount"`
}

type recipientAgg struct {
	proofs int
	total  int
}

// Generate aggregates the window's challenges per recipient, prices each
// at the base reward, and writes the report plus line items in one
// atomic operation. Recipients with no challenges in the window produce
// no line item.
func (b *Builder) Generate(ctx context.Context, operator string, periodStart, periodEnd time.Time) (*Result, error) {
	challenges, err := b.repo.ChallengesInRange(ctx, periodStart, periodEnd)
	if err != nil {
		return nil, errors.Wrap(err, "could not load challenges for window")
	}

	aggs := map[string]*recipientAgg{}
	nodeNames := map[string]string{}
	totalProofs := 0
	for _, c := range challenges {
		if c.Result == types.ChallengePending {
			continue
		}
		recipient, ok := nodeNames[c.NodeID]
		if !ok {
			node, err := b.repo.Node(ctx, c.NodeID)
			if err != nil {
				if iface.IsNotFound(err) {
					continue
				}
				return nil, err
			}
			recipient = node.OperatorName
			if recipient == "" {
				recipient = node.PeerID
			}
			nodeNames[c.NodeID] = recipient
		}
		agg := aggs[recipient]
		if agg == nil {
			agg = &recipientAgg{}
			aggs[recipient] = agg
		}
		agg.total++
		if c.Result == types.ChallengeSuccess {
			agg.proofs++
			totalProofs++
		}
	}

	reportID := uuid.New().String()
	recipients := make([]string, 0, len(aggs))
	for r := range aggs {
		recipients = append(recipients, r)
	}
	sort.Strings(recipients)

	var items []*types.PayoutLineItem
	var totalHbd float64
	for _, recipient := range recipients {
		agg := aggs[recipient]
		if agg.total == 0 {
			continue
		}
		amount := hbd.Format3(float64(agg.proofs) * hbd.BaseReward)
		items = append(items, &types.PayoutLineItem{
			ReportID:    reportID,
			Recipient:   recipient,
			HbdAmount:   amount,
			ProofCount:  agg.proofs,
			SuccessRate: 100 * float64(agg.proofs) / float64(agg.total),
		})
		totalHbd = hbd.Add3(totalHbd, amount)
	}

	report := &types.PayoutReport{
		ID:             reportID,
		GeneratedBy:    operator,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		TotalHbd:       hbd.Format3(totalHbd),
		RecipientCount: len(items),
		Status:         types.ReportPending,
		CreatedAt:      b.now().UTC(),
	}
	if err := b.repo.CreateReportWithItems(ctx, report, items); err != nil {
		return nil, errors.Wrap(err, "could not persist report")
	}
	log.WithFields(logrus.Fields{
		"report":     report.ID,
		"totalHbd":   report.TotalHbd,
		"recipients": report.RecipientCount,
	}).Info("Generated payout report")
	return &Result{
		Report: report,
		Items:  items,
		Summary: Summary{
			TotalHbd:       report.TotalHbd,
			RecipientCount: report.RecipientCount,
			ProofCount:     totalProofs,
		},
	}, nil
}

// Approve moves a pending report to approved.
func (b *Builder) Approve(ctx context.Context, reportID string) error {
	return b.repo.UpdateReport(ctx, reportID, func(r *types.PayoutReport) error {
		if r.Status != types.ReportPending {
			return errors.Wrapf(iface.ErrConflict, "report %s is %s", reportID, r.Status)
		}
		r.Status = types.ReportApproved
		return nil
	})
}

// Execute marks an approved report as executed with its transaction
// hash.
func (b *Builder) Execute(ctx context.Context, reportID, txHash string) error {
	return b.repo.UpdateReport(ctx, reportID, func(r *types.PayoutReport) error {
		if r.Status != types.ReportApproved {
			return errors.Wrapf(iface.ErrConflict, "report %s is %s", reportID, r.Status)
		}
		r.Status = types.ReportExecuted
		r.ExecutedTxHash = txHash
		r.ExecutedAt = b.now().UTC()
		return nil
	})
}
