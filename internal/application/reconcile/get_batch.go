package reconcile

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	domain "github.com/mohammadpnp/account-reconcile/internal/domain/reconcile"
)

var batchIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[1-5][0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

type GetBatchInput struct {
	TargetID string
	BatchID  string
}

type BatchRowOutput struct {
	ID          string             `json:"id"`
	Item        domain.PreviewItem `json:"item"`
	ApplyStatus domain.ApplyStatus `json:"apply_status"`
	ApplyResult map[string]any     `json:"apply_result"`
	AppliedAt   *time.Time         `json:"applied_at"`
}

type GetBatchOutput struct {
	ID            string                `json:"id"`
	TargetID      string                `json:"target_id"`
	CreatedBy     string                `json:"created_by"`
	Status        domain.BatchStatus    `json:"status"`
	CSVSHA256     string                `json:"csv_sha256"`
	PreviewSHA256 string                `json:"preview_sha256"`
	Summary       domain.PreviewSummary `json:"summary"`
	Meta          domain.BatchMeta      `json:"meta"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
	Rows          []BatchRowOutput      `json:"rows"`
}

type GetBatch interface {
	Execute(ctx context.Context, in GetBatchInput) (GetBatchOutput, error)
}

type batchReader interface {
	GetBatch(ctx context.Context, targetID, batchID string) (*domain.ImportBatch, error)
	ListRows(ctx context.Context, batchID string) ([]domain.ImportRow, error)
}

type getBatch struct {
	ledger batchReader
}

func NewGetBatch(ledger batchReader) GetBatch {
	return &getBatch{ledger: ledger}
}

func (uc *getBatch) Execute(ctx context.Context, in GetBatchInput) (GetBatchOutput, error) {
	batch, rows, err := loadBatch(ctx, uc.ledger, in.TargetID, in.BatchID)
	if err != nil {
		return GetBatchOutput{}, err
	}

	out := GetBatchOutput{
		ID:            batch.ID,
		TargetID:      batch.TargetID,
		CreatedBy:     batch.CreatedBy,
		Status:        batch.Status,
		CSVSHA256:     batch.CSVSHA256,
		PreviewSHA256: batch.PreviewSHA256,
		Summary:       batch.Summary,
		Meta:          batch.Meta,
		CreatedAt:     batch.CreatedAt,
		UpdatedAt:     batch.UpdatedAt,
		Rows:          make([]BatchRowOutput, 0, len(rows)),
	}
	for _, row := range rows {
		out.Rows = append(out.Rows, BatchRowOutput{
			ID:          row.ID,
			Item:        row.Item,
			ApplyStatus: row.ApplyStatus,
			ApplyResult: row.ApplyResult,
			AppliedAt:   row.AppliedAt,
		})
	}
	return out, nil
}

func loadBatch(ctx context.Context, ledger batchReader, targetID, batchID string) (*domain.ImportBatch, []domain.ImportRow, error) {
	if !batchIDPattern.MatchString(batchID) {
		return nil, nil, ErrBatchNotFound
	}

	batch, err := ledger.GetBatch(ctx, targetID, batchID)
	if err != nil {
		if errors.Is(err, domain.ErrBatchNotFound) {
			return nil, nil, ErrBatchNotFound
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrGetBatch, err)
	}

	rows, err := ledger.ListRows(ctx, batch.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrGetBatch, err)
	}
	return batch, rows, nil
}
