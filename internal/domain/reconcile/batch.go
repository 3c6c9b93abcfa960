package reconcile

import "time"

type BatchStatus string

const (
	BatchPreviewed BatchStatus = "previewed"
	BatchApplying  BatchStatus = "applying"
	BatchApplied   BatchStatus = "applied"
	BatchFailed    BatchStatus = "failed"
)

// CanTransition reports whether the batch lifecycle allows moving from s to next.
// applied is terminal; failed may go back to applying for an operator retry.
func (s BatchStatus) CanTransition(next BatchStatus) bool {
	switch s {
	case BatchPreviewed:
		return next == BatchApplying
	case BatchApplying:
		return next == BatchApplied || next == BatchFailed
	case BatchFailed:
		return next == BatchApplying
	}
	return false
}

// Applicable reports whether an apply run may start from s.
func (s BatchStatus) Applicable() bool {
	return s == BatchPreviewed || s == BatchFailed
}

type BatchMeta struct {
	OrgID   string `json:"org_id"`
	OrgName string `json:"org_name"`
}

type ImportBatch struct {
	ID            string
	TargetID      string
	CreatedBy     string
	Status        BatchStatus
	CSVSHA256     string
	CSVBytes      []byte
	PreviewSHA256 string
	Summary       PreviewSummary
	Meta          BatchMeta
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ImportRow is the persisted plan for one CSV row. Item is write-once; only the apply
// fields change afterwards.
type ImportRow struct {
	ID          string
	BatchID     string
	Item        PreviewItem
	ApplyStatus ApplyStatus
	ApplyResult map[string]any
	AppliedAt   *time.Time
	CreatedAt   time.Time
}

// RowApplyResult is the apply-state update written back for a row.
type RowApplyResult struct {
	Status    ApplyStatus
	Result    map[string]any
	AppliedAt *time.Time
}
