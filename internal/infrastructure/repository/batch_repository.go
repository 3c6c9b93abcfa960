package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"

	domain "github.com/mohammadpnp/account-reconcile/internal/domain/reconcile"
	"github.com/mohammadpnp/account-reconcile/internal/infrastructure/db/models"
)

var importRowColumns = []string{
	"id", "batch_id", "row_number", "action", "email", "username", "status",
	"before_state", "after_state", "error", "desired", "diff", "will_apply",
	"apply_status", "apply_result", "applied_at", "created_at",
}

// BatchRepository is the Postgres batch ledger. The batch and its rows are written in one
// pgx transaction; reads and apply-state updates go through gorm.
type BatchRepository struct {
	db   *gorm.DB
	pool *pgxpool.Pool
}

func NewBatchRepository(db *gorm.DB, pool *pgxpool.Pool) *BatchRepository {
	return &BatchRepository{db: db, pool: pool}
}

func (r *BatchRepository) CreateBatch(ctx context.Context, batch domain.ImportBatch, rows []domain.ImportRow) error {
	summary, err := json.Marshal(batch.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	meta, err := json.Marshal(batch.Meta)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}

	copyRows := make([][]any, 0, len(rows))
	for _, row := range rows {
		values, err := importRowValues(row)
		if err != nil {
			return err
		}
		copyRows = append(copyRows, values)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
INSERT INTO import_batches (id, target_id, created_by, status, csv_sha256, csv_bytes, preview_sha256, summary, meta, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9::jsonb, $10, $11)
`,
		batch.ID,
		batch.TargetID,
		batch.CreatedBy,
		string(batch.Status),
		batch.CSVSHA256,
		batch.CSVBytes,
		batch.PreviewSHA256,
		string(summary),
		string(meta),
		batch.CreatedAt,
		batch.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert import batch: %w", err)
	}

	if len(copyRows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"import_rows"}, importRowColumns, pgx.CopyFromRows(copyRows)); err != nil {
			return fmt.Errorf("copy import rows: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit import batch: %w", err)
	}
	return nil
}

func importRowValues(row domain.ImportRow) ([]any, error) {
	desired, err := json.Marshal(row.Item.Desired)
	if err != nil {
		return nil, fmt.Errorf("encode desired for row %d: %w", row.Item.Row, err)
	}
	diff, err := json.Marshal(row.Item.Diff)
	if err != nil {
		return nil, fmt.Errorf("encode diff for row %d: %w", row.Item.Row, err)
	}
	var applyResult any
	if row.ApplyResult != nil {
		raw, err := json.Marshal(row.ApplyResult)
		if err != nil {
			return nil, fmt.Errorf("encode apply result for row %d: %w", row.Item.Row, err)
		}
		applyResult = json.RawMessage(raw)
	}
	applyStatus := row.ApplyStatus
	if applyStatus == "" {
		applyStatus = domain.ApplyPending
	}

	return []any{
		row.ID,
		row.BatchID,
		int32(row.Item.Row),
		row.Item.Action,
		row.Item.Email,
		row.Item.Username,
		string(row.Item.Status),
		row.Item.Before,
		row.Item.After,
		nullableText(row.Item.Error),
		json.RawMessage(desired),
		json.RawMessage(diff),
		row.Item.WillApply,
		string(applyStatus),
		applyResult,
		row.AppliedAt,
		row.CreatedAt,
	}, nil
}

func (r *BatchRepository) GetBatch(ctx context.Context, targetID, batchID string) (*domain.ImportBatch, error) {
	var row models.ImportBatch

	err := r.db.WithContext(ctx).First(&row, "id = ? AND target_id = ?", batchID, targetID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrBatchNotFound
		}
		return nil, fmt.Errorf("get import batch: %w", err)
	}

	return &domain.ImportBatch{
		ID:            row.ID,
		TargetID:      row.TargetID,
		CreatedBy:     row.CreatedBy,
		Status:        domain.BatchStatus(row.Status),
		CSVSHA256:     row.CSVSHA256,
		CSVBytes:      row.CSVBytes,
		PreviewSHA256: row.PreviewSHA256,
		Summary:       row.Summary,
		Meta:          row.Meta,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}, nil
}

func (r *BatchRepository) ListRows(ctx context.Context, batchID string) ([]domain.ImportRow, error) {
	var rows []models.ImportRow

	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("row_number ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list import rows: %w", err)
	}

	out := make([]domain.ImportRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.ImportRow{
			ID:      row.ID,
			BatchID: row.BatchID,
			Item: domain.PreviewItem{
				Row:       row.RowNumber,
				Action:    row.Action,
				Email:     row.Email,
				Username:  row.Username,
				Status:    domain.ItemStatus(row.Status),
				Before:    row.BeforeState,
				After:     row.AfterState,
				Error:     textValue(row.Error),
				Desired:   row.Desired,
				Diff:      row.Diff,
				WillApply: row.WillApply,
			},
			ApplyStatus: domain.ApplyStatus(row.ApplyStatus),
			ApplyResult: row.ApplyResult,
			AppliedAt:   row.AppliedAt,
			CreatedAt:   row.CreatedAt,
		})
	}
	return out, nil
}

// TransitionStatus moves a batch to `to` only if its current status is one of `from` and the
// lifecycle allows the move. The check and the write are a single conditional UPDATE.
func (r *BatchRepository) TransitionStatus(ctx context.Context, batchID string, to domain.BatchStatus, from ...domain.BatchStatus) error {
	allowed := make([]string, 0, len(from))
	for _, status := range from {
		if status.CanTransition(to) {
			allowed = append(allowed, string(status))
		}
	}
	if len(allowed) == 0 {
		return fmt.Errorf("%w: no allowed source status for %s", domain.ErrInvalidTransition, to)
	}

	res := r.db.WithContext(ctx).
		Model(&models.ImportBatch{}).
		Where("id = ? AND status IN ?", batchID, allowed).
		Updates(map[string]any{
			"status":     string(to),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("update batch status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var current models.ImportBatch
		err := r.db.WithContext(ctx).Select("status").First(&current, "id = ?", batchID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrBatchNotFound
		}
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, to)
	}
	return nil
}

// RecordRowResult writes apply state for a row. A row already applied is never rewritten.
func (r *BatchRepository) RecordRowResult(ctx context.Context, rowID string, result domain.RowApplyResult) error {
	raw, err := json.Marshal(result.Result)
	if err != nil {
		return fmt.Errorf("encode apply result: %w", err)
	}

	err = r.db.WithContext(ctx).
		Model(&models.ImportRow{}).
		Where("id = ? AND apply_status <> ?", rowID, string(domain.ApplyApplied)).
		Updates(map[string]any{
			"apply_status": string(result.Status),
			"apply_result": string(raw),
			"applied_at":   result.AppliedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("record row result: %w", err)
	}
	return nil
}

func nullableText(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func textValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
