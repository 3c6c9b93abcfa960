package reconcile

import "time"

// AuditEntry is one append-only record of an attempted mutation.
type AuditEntry struct {
	ID        string
	TS        time.Time
	Actor     string
	TargetID  string
	BatchID   string
	RowID     string
	Email     string
	Operation string
	Success   bool
	Error     string
	Request   map[string]any
	Response  map[string]any
}

type AuditFilter struct {
	TargetID  string
	BatchID   string
	Actor     string
	Operation string
	Email     string
	Success   *bool
	Limit     int
}

const (
	DefaultAuditLimit = 200
	MinAuditLimit     = 25
	MaxAuditLimit     = 1000
)

// ClampLimit keeps the history page size inside the supported range.
func (f AuditFilter) ClampLimit() int {
	switch {
	case f.Limit == 0:
		return DefaultAuditLimit
	case f.Limit < MinAuditLimit:
		return MinAuditLimit
	case f.Limit > MaxAuditLimit:
		return MaxAuditLimit
	}
	return f.Limit
}
