package models

import "time"

type AuditLog struct {
	ID        string         `gorm:"type:uuid;primaryKey"`
	TS        time.Time      `gorm:"column:ts;not null"`
	Actor     string         `gorm:"type:text;not null"`
	TargetID  string         `gorm:"type:text;not null"`
	BatchID   *string        `gorm:"type:uuid"`
	RowID     *string        `gorm:"type:uuid"`
	Email     *string        `gorm:"type:text"`
	Operation string         `gorm:"type:text;not null"`
	Success   bool           `gorm:"not null"`
	Error     *string        `gorm:"type:text"`
	Request   map[string]any `gorm:"type:jsonb;serializer:json"`
	Response  map[string]any `gorm:"type:jsonb;serializer:json"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}
