package models

import (
	"time"

	domain "github.com/mohammadpnp/account-reconcile/internal/domain/reconcile"
)

type ImportBatch struct {
	ID            string                `gorm:"type:uuid;primaryKey"`
	TargetID      string                `gorm:"type:text;not null;index"`
	CreatedBy     string                `gorm:"type:text;not null"`
	Status        string                `gorm:"type:text;not null"`
	CSVSHA256     string                `gorm:"column:csv_sha256;type:text;not null"`
	CSVBytes      []byte                `gorm:"column:csv_bytes;type:bytea;not null"`
	PreviewSHA256 string                `gorm:"column:preview_sha256;type:text;not null"`
	Summary       domain.PreviewSummary `gorm:"type:jsonb;serializer:json;not null"`
	Meta          domain.BatchMeta      `gorm:"type:jsonb;serializer:json;not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (ImportBatch) TableName() string {
	return "import_batches"
}
