package reconcile

import "errors"

var (
	ErrInvalidCSV           = errors.New("invalid csv")
	ErrFetchRemoteState     = errors.New("failed to fetch remote state")
	ErrPersistBatch         = errors.New("failed to persist batch")
	ErrBatchNotFound        = errors.New("batch not found")
	ErrTargetNotFound       = errors.New("target not found")
	ErrGetBatch             = errors.New("failed to get batch")
	ErrConfirmationRequired = errors.New("apply requires explicit confirmation")
	ErrPlanMismatch         = errors.New("preview hash does not match the stored plan")
	ErrBatchNotApplicable   = errors.New("batch is not in an applicable status")
	ErrPreviewHasErrors     = errors.New("preview contains errors")
	ErrLedgerIntegrity      = errors.New("persisted rows do not match the stored plan")
	ErrTargetLock           = errors.New("failed to acquire target lock")
	ErrTargetChanged        = errors.New("target organization changed since preview")
	ErrApplyAborted         = errors.New("apply aborted")
	ErrInvalidReportFormat  = errors.New("invalid report format")
	ErrListAudit            = errors.New("failed to list audit history")
	ErrBatchNotStranded     = errors.New("batch is not stuck in applying")
)
