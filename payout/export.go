package payout

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spknetwork/storage-coordinator/hbd"
	"github.com/spknetwork/storage-coordinator/types"
)

// Export is the portable settlement document handed to external payers.
// Monetary fields are three-decimal strings; dates are YYYY-MM-DD.
type Export struct {
	ReportID    string         `json:"reportId"`
	Period      string         `json:"period"`
	GeneratedBy string         `json:"generatedBy"`
	GeneratedAt time.Time      `json:"generatedAt"`
	TotalHbd    string         `json:"totalHbd"`
	Payouts     []ExportPayout `json:"payouts"`
}

// ExportPayout is one recipient's entry in the export document.
type ExportPayout struct {
	Username    string  `json:"username"`
	Amount      string  `json:"amount"`
	Proofs      int     `json:"proofs"`
	SuccessRate float64 `json:"successRate"`
}

const exportDateLayout = "2006-01-02"

// BuildExport assembles the portable JSON for a stored report.
func (b *Builder) BuildExport(ctx context.Context, reportID string) (*Export, error) {
	report, err := b.repo.Report(ctx, reportID)
	if err != nil {
		return nil, err
	}
	items, err := b.repo.ReportItems(ctx, reportID)
	if err != nil {
		return nil, errors.Wrap(err, "could not load report items")
	}
	payouts := make([]ExportPayout, 0, len(items))
	for _, item := range items {
		payouts = append(payouts, ExportPayout{
			Username:    item.Recipient,
			Amount:      item.HbdAmount,
			Proofs:      item.ProofCount,
			SuccessRate: item.SuccessRate,
		})
	}
	return &Export{
		ReportID: report.ID,
		Period: report.PeriodStart.UTC().Format(exportDateLayout) +
			"_to_" + report.PeriodEnd.UTC().Format(exportDateLayout),
		GeneratedBy: report.GeneratedBy,
		GeneratedAt: report.CreatedAt,
		TotalHbd:    report.TotalHbd,
		Payouts:     payouts,
	}, nil
}

// VerifyTotals re-checks that a report's total equals the sum of its
// line items. Used by tests and external auditors.
func VerifyTotals(report *types.PayoutReport, items []*types.PayoutLineItem) bool {
	var sum float64
	for _, item := range items {
		sum = hbd.Add3(sum, item.HbdAmount)
	}
	return report.TotalHbd == hbd.Format3(sum)
}
