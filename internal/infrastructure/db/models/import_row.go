package models

import (
	"time"

	domain "github.com/mohammadpnp/account-reconcile/internal/domain/reconcile"
)

// ImportRow columns up to WillApply are the write-once plan; a trigger rejects changes to them.
type ImportRow struct {
	ID          string              `gorm:"type:uuid;primaryKey"`
	BatchID     string              `gorm:"type:uuid;not null;index"`
	RowNumber   int                 `gorm:"column:row_number;not null"`
	Action      string              `gorm:"type:text;not null"`
	Email       string              `gorm:"type:text;not null"`
	Username    string              `gorm:"type:text;not null"`
	Status      string              `gorm:"type:text;not null"`
	BeforeState string              `gorm:"column:before_state;type:text;not null"`
	AfterState  string              `gorm:"column:after_state;type:text;not null"`
	Error       *string             `gorm:"type:text"`
	Desired     domain.DesiredState `gorm:"type:jsonb;serializer:json;not null"`
	Diff        domain.PlanDiff     `gorm:"type:jsonb;serializer:json;not null"`
	WillApply   bool                `gorm:"not null"`
	ApplyStatus string              `gorm:"type:text;not null"`
	ApplyResult map[string]any      `gorm:"type:jsonb;serializer:json"`
	AppliedAt   *time.Time
	CreatedAt   time.Time
}

func (ImportRow) TableName() string {
	return "import_rows"
}
