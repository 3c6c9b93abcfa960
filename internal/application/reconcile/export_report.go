package reconcile

import (
	"bytes"
	"context"
	"fmt"

	domain "github.com/mohammadpnp/account-reconcile/internal/domain/reconcile"
)

type ExportBatchReportInput struct {
	TargetID string
	BatchID  string
	Format   string
}

type ExportOutput struct {
	Filename    string
	ContentType string
	Content     []byte
}

type ExportBatchReport interface {
	Execute(ctx context.Context, in ExportBatchReportInput) (ExportOutput, error)
}

type exportBatchReport struct {
	ledger batchReader
}

func NewExportBatchReport(ledger batchReader) ExportBatchReport {
	return &exportBatchReport{ledger: ledger}
}

func (uc *exportBatchReport) Execute(ctx context.Context, in ExportBatchReportInput) (ExportOutput, error) {
	format, err := ParseReportFormat(in.Format)
	if err != nil {
		return ExportOutput{}, err
	}

	batch, rows, err := loadBatch(ctx, uc.ledger, in.TargetID, in.BatchID)
	if err != nil {
		return ExportOutput{}, err
	}

	items := make([]domain.PreviewItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.Item)
	}

	var buf bytes.Buffer
	if err := writeReport(&buf, format, items); err != nil {
		return ExportOutput{}, fmt.Errorf("render report: %w", err)
	}

	return ExportOutput{
		Filename:    fmt.Sprintf("preview_%s.%s", batch.ID, format),
		ContentType: format.ContentType(),
		Content:     buf.Bytes(),
	}, nil
}
