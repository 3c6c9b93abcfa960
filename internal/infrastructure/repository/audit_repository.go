package repository

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	domain "github.com/mohammadpnp/account-reconcile/internal/domain/reconcile"
	"github.com/mohammadpnp/account-reconcile/internal/infrastructure/db/models"
)

// AuditRepository appends to and reads from audit_log. Rows are never updated or deleted.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Append(ctx context.Context, entry domain.AuditEntry) error {
	row := models.AuditLog{
		ID:        entry.ID,
		TS:        entry.TS,
		Actor:     entry.Actor,
		TargetID:  entry.TargetID,
		BatchID:   nullableText(entry.BatchID),
		RowID:     nullableText(entry.RowID),
		Email:     nullableText(entry.Email),
		Operation: entry.Operation,
		Success:   entry.Success,
		Error:     nullableText(entry.Error),
		Request:   entry.Request,
		Response:  entry.Response,
	}

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (r *AuditRepository) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	query := r.db.WithContext(ctx).Model(&models.AuditLog{})

	if filter.TargetID != "" {
		query = query.Where("target_id = ?", filter.TargetID)
	}
	if filter.BatchID != "" {
		query = query.Where("batch_id::text = ?", filter.BatchID)
	}
	if filter.Actor != "" {
		query = query.Where("actor ILIKE ?", containsPattern(filter.Actor))
	}
	if filter.Operation != "" {
		query = query.Where("operation ILIKE ?", containsPattern(filter.Operation))
	}
	if filter.Email != "" {
		query = query.Where("email ILIKE ?", containsPattern(filter.Email))
	}
	if filter.Success != nil {
		query = query.Where("success = ?", *filter.Success)
	}

	var rows []models.AuditLog
	if err := query.Order("ts DESC").Limit(filter.ClampLimit()).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}

	out := make([]domain.AuditEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.AuditEntry{
			ID:        row.ID,
			TS:        row.TS,
			Actor:     row.Actor,
			TargetID:  row.TargetID,
			BatchID:   textValue(row.BatchID),
			RowID:     textValue(row.RowID),
			Email:     textValue(row.Email),
			Operation: row.Operation,
			Success:   row.Success,
			Error:     textValue(row.Error),
			Request:   row.Request,
			Response:  row.Response,
		})
	}
	return out, nil
}

func containsPattern(s string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
	return "%" + escaped + "%"
}
