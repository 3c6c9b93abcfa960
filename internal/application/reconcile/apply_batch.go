package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/wI2L/jsondiff"

	domain "github.com/mohammadpnp/account-reconcile/internal/domain/reconcile"
)

const deleteDisabledMessage = "deletion is disabled by administrator (ALLOW_DELETE=false)"

type ApplyBatchInput struct {
	TargetID      string
	BatchID       string
	Actor         string
	PreviewSHA256 string
	Confirm       bool
	ConfirmText   string
}

type ApplyRowOutput struct {
	RowID  string             `json:"row_id"`
	Row    int                `json:"row"`
	Action string             `json:"action"`
	Email  string             `json:"email"`
	Status domain.ApplyStatus `json:"status"`
	Reason string             `json:"reason,omitempty"`
	Error  string             `json:"error,omitempty"`
}

type ApplyBatchOutput struct {
	BatchID        string             `json:"batch_id"`
	Status         domain.BatchStatus `json:"status"`
	Applied        int                `json:"applied"`
	Skipped        int                `json:"skipped"`
	Failed         int                `json:"failed"`
	AlreadyApplied int                `json:"already_applied"`
	Rows           []ApplyRowOutput   `json:"rows"`
}

type ApplyBatch interface {
	Execute(ctx context.Context, in ApplyBatchInput) (ApplyBatchOutput, error)
}

type ApplyOptions struct {
	AllowDelete  bool
	SendKeyEmail bool
	// Timeout bounds one run, lock wait included. Zero means no bound.
	Timeout time.Duration
}

type applyBatch struct {
	ledger      domain.BatchLedger
	audit       domain.AuditLog
	lock        domain.TargetLock
	directories domain.DirectoryProvider
	policy      SafetyPolicy
	opts        ApplyOptions
	log         logrus.FieldLogger
	now         func() time.Time
}

func NewApplyBatch(
	ledger domain.BatchLedger,
	audit domain.AuditLog,
	lock domain.TargetLock,
	directories domain.DirectoryProvider,
	policy SafetyPolicy,
	opts ApplyOptions,
	log logrus.FieldLogger,
) ApplyBatch {
	return &applyBatch{
		ledger:      ledger,
		audit:       audit,
		lock:        lock,
		directories: directories,
		policy:      policy,
		opts:        opts,
		log:         log,
		now:         time.Now,
	}
}

func (uc *applyBatch) Execute(ctx context.Context, in ApplyBatchInput) (out ApplyBatchOutput, err error) {
	started := time.Now()
	defer func() {
		applyDuration.Observe(time.Since(started).Seconds())
		if err != nil {
			applyRunsTotal.WithLabelValues(rejectionLabel(err)).Inc()
		} else {
			applyRunsTotal.WithLabelValues(string(out.Status)).Inc()
		}
	}()

	batch, rows, err := uc.checkPreconditions(ctx, in)
	if err != nil {
		return ApplyBatchOutput{}, err
	}

	target, client, err := openDirectory(ctx, uc.directories, batch.TargetID)
	if err != nil {
		return ApplyBatchOutput{}, err
	}

	if uc.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.opts.Timeout)
		defer cancel()
	}
	// Bookkeeping after the row loop must survive a cancelled or timed out run.
	bookCtx := context.WithoutCancel(ctx)

	log := uc.log.WithFields(logrus.Fields{"target": batch.TargetID, "batch": batch.ID})

	lockStarted := time.Now()
	lease, err := uc.lock.Acquire(ctx, batch.TargetID)
	lockWaitDuration.Observe(time.Since(lockStarted).Seconds())
	if err != nil {
		return ApplyBatchOutput{}, fmt.Errorf("%w: %v", ErrTargetLock, err)
	}
	defer func() {
		if releaseErr := lease.Release(bookCtx); releaseErr != nil {
			log.WithError(releaseErr).Error("apply: release target lock failed")
		}
	}()

	// Status is re-checked under the lock: a concurrent run may have finished meanwhile.
	if err := uc.ledger.TransitionStatus(ctx, batch.ID, domain.BatchApplying, domain.BatchPreviewed, domain.BatchFailed); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return ApplyBatchOutput{}, fmt.Errorf("%w: %v", ErrBatchNotApplicable, err)
		}
		return ApplyBatchOutput{}, fmt.Errorf("%w: mark applying: %v", ErrApplyAborted, err)
	}
	log.WithField("actor", actorOrUnknown(in.Actor)).Info("apply started")

	out = ApplyBatchOutput{BatchID: batch.ID, Status: domain.BatchApplying}

	// Row state read before the lock may be stale if another run held it meanwhile.
	rows, err = uc.loadPlanRows(bookCtx, batch)
	if err != nil {
		uc.finish(bookCtx, log, &out, domain.BatchFailed)
		if errors.Is(err, ErrLedgerIntegrity) {
			return out, err
		}
		return out, fmt.Errorf("%w: reload rows: %v", ErrApplyAborted, err)
	}
	out.Rows = make([]ApplyRowOutput, 0, len(rows))

	snapshot, err := fetchSnapshot(ctx, target, client)
	if err != nil {
		uc.finish(bookCtx, log, &out, domain.BatchFailed)
		return out, err
	}
	if batch.Meta.OrgID != "" && snapshot.Org.ID != batch.Meta.OrgID {
		uc.finish(bookCtx, log, &out, domain.BatchFailed)
		return out, fmt.Errorf("%w: previewed %s, now %s", ErrTargetChanged, batch.Meta.OrgID, snapshot.Org.ID)
	}

	run := &applyRun{
		client:       client,
		orgID:        snapshot.Org.ID,
		index:        domain.IndexByEmail(snapshot.Users),
		allowDelete:  uc.opts.AllowDelete,
		sendKeyEmail: uc.opts.SendKeyEmail,
	}

	for _, row := range rows {
		rowOut := ApplyRowOutput{RowID: row.ID, Row: row.Item.Row, Action: row.Item.Action, Email: row.Item.Email}

		if row.ApplyStatus == domain.ApplyApplied {
			rowOut.Status = domain.ApplyApplied
			out.AlreadyApplied++
			out.Rows = append(out.Rows, rowOut)
			continue
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			uc.finish(bookCtx, log, &out, domain.BatchFailed)
			return out, fmt.Errorf("%w: before row %d: %v", ErrApplyAborted, row.Item.Row, ctxErr)
		}

		outcome, attempt := run.applyRowSafely(ctx, row)
		rowLog := log.WithFields(logrus.Fields{"row": row.Item.Row, "action": row.Item.Action})

		if attempt != nil {
			entry := domain.AuditEntry{
				ID:        uuid.NewString(),
				TS:        uc.now().UTC(),
				Actor:     actorOrUnknown(in.Actor),
				TargetID:  batch.TargetID,
				BatchID:   batch.ID,
				RowID:     row.ID,
				Email:     row.Item.Email,
				Operation: attempt.operation,
				Success:   outcome.Status == domain.ApplyApplied,
				Error:     outcome.Error,
				Request:   attempt.request,
				Response:  attempt.response,
			}
			if err := uc.audit.Append(bookCtx, entry); err != nil {
				rowLog.WithError(err).Error("apply: audit append failed")
				uc.finish(bookCtx, log, &out, domain.BatchFailed)
				return out, fmt.Errorf("%w: audit row %d: %v", ErrApplyAborted, row.Item.Row, err)
			}
		}

		result := domain.RowApplyResult{Status: outcome.Status, Result: outcome.Result()}
		if outcome.Status == domain.ApplyApplied {
			at := uc.now().UTC()
			result.AppliedAt = &at
		}
		if err := uc.ledger.RecordRowResult(bookCtx, row.ID, result); err != nil {
			rowLog.WithError(err).Error("apply: record row result failed")
			uc.finish(bookCtx, log, &out, domain.BatchFailed)
			return out, fmt.Errorf("%w: record row %d: %v", ErrApplyAborted, row.Item.Row, err)
		}

		applyRowsTotal.WithLabelValues(row.Item.Action, string(outcome.Status)).Inc()
		rowOut.Status = outcome.Status
		rowOut.Reason = outcome.Reason
		rowOut.Error = outcome.Error
		switch outcome.Status {
		case domain.ApplyApplied:
			out.Applied++
		case domain.ApplySkipped:
			out.Skipped++
		case domain.ApplyFailed:
			out.Failed++
			rowLog.WithField("error", outcome.Error).Warn("apply: row failed")
		}
		out.Rows = append(out.Rows, rowOut)
	}

	final := domain.BatchApplied
	if out.Failed > 0 {
		final = domain.BatchFailed
	}
	if err := uc.finish(bookCtx, log, &out, final); err != nil {
		return out, fmt.Errorf("%w: mark %s: %v", ErrApplyAborted, final, err)
	}
	return out, nil
}

func (uc *applyBatch) checkPreconditions(ctx context.Context, in ApplyBatchInput) (*domain.ImportBatch, []domain.ImportRow, error) {
	if err := uc.policy.CheckConfirmation(in.Confirm, in.ConfirmText); err != nil {
		return nil, nil, err
	}

	if !batchIDPattern.MatchString(in.BatchID) {
		return nil, nil, ErrBatchNotFound
	}
	batch, err := uc.ledger.GetBatch(ctx, in.TargetID, in.BatchID)
	if err != nil {
		if errors.Is(err, domain.ErrBatchNotFound) {
			return nil, nil, ErrBatchNotFound
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrGetBatch, err)
	}
	if batch.PreviewSHA256 != strings.TrimSpace(in.PreviewSHA256) {
		return nil, nil, ErrPlanMismatch
	}
	if batch.Status == domain.BatchApplying {
		return nil, nil, fmt.Errorf("%w: status is applying; if no apply is running, recover the batch to failed first", ErrBatchNotApplicable)
	}
	if !batch.Status.Applicable() {
		return nil, nil, fmt.Errorf("%w: status is %s", ErrBatchNotApplicable, batch.Status)
	}
	if batch.Summary.Errors > 0 {
		return nil, nil, fmt.Errorf("%w: %d row(s) have errors", ErrPreviewHasErrors, batch.Summary.Errors)
	}

	rows, err := uc.loadPlanRows(ctx, batch)
	if err != nil {
		return nil, nil, err
	}

	return batch, rows, nil
}

// loadPlanRows lists the batch rows in row order and checks them against the stored plan hash.
func (uc *applyBatch) loadPlanRows(ctx context.Context, batch *domain.ImportBatch) ([]domain.ImportRow, error) {
	rows, err := uc.ledger.ListRows(ctx, batch.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGetBatch, err)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Item.Row < rows[j].Item.Row })

	items := make([]domain.PreviewItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.Item)
	}
	stored, err := PlanHash(items)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerIntegrity, err)
	}
	if stored != batch.PreviewSHA256 {
		return nil, ErrLedgerIntegrity
	}
	return rows, nil
}

func (uc *applyBatch) finish(ctx context.Context, log logrus.FieldLogger, out *ApplyBatchOutput, status domain.BatchStatus) error {
	if err := uc.ledger.TransitionStatus(ctx, out.BatchID, status, domain.BatchApplying); err != nil {
		log.WithError(err).Errorf("apply: mark batch %s failed", status)
		return err
	}
	out.Status = status
	log.WithFields(logrus.Fields{
		"status":  status,
		"applied": out.Applied,
		"skipped": out.Skipped,
		"failed":  out.Failed,
	}).Info("apply finished")
	return nil
}

func rejectionLabel(err error) string {
	for _, candidate := range []struct {
		err   error
		label string
	}{
		{ErrConfirmationRequired, "unconfirmed"},
		{ErrBatchNotFound, "not_found"},
		{ErrPlanMismatch, "plan_mismatch"},
		{ErrBatchNotApplicable, "not_applicable"},
		{ErrPreviewHasErrors, "preview_errors"},
		{ErrLedgerIntegrity, "ledger_integrity"},
		{ErrTargetLock, "lock"},
		{ErrFetchRemoteState, "fetch_error"},
		{ErrTargetChanged, "target_changed"},
	} {
		if errors.Is(err, candidate.err) {
			return candidate.label
		}
	}
	return "aborted"
}

// applyRun replays rows against one remote snapshot. The snapshot is read once and never
// refreshed between rows.
type applyRun struct {
	client       domain.DirectoryClient
	orgID        string
	index        map[string]domain.RemoteUser
	allowDelete  bool
	sendKeyEmail bool
}

// rowAttempt describes a mutation that was attempted and must be audited.
type rowAttempt struct {
	operation string
	request   map[string]any
	response  map[string]any
}

func (r *applyRun) applyRowSafely(ctx context.Context, row domain.ImportRow) (outcome domain.RowOutcome, attempt *rowAttempt) {
	defer func() {
		if p := recover(); p != nil {
			outcome = domain.Failed(fmt.Sprintf("panic: %v", p))
			if attempt == nil {
				attempt = &rowAttempt{operation: operationFor(row.Item), request: map[string]any{"email": row.Item.Email}}
			}
		}
	}()
	return r.applyRow(ctx, row)
}

func (r *applyRun) applyRow(ctx context.Context, row domain.ImportRow) (domain.RowOutcome, *rowAttempt) {
	item := row.Item
	if !item.WillApply {
		return domain.Skipped(fmt.Sprintf("not applicable: preview status %s", item.Status)), nil
	}

	switch domain.Action(item.Action) {
	case domain.ActionCreate:
		return r.create(ctx, item)
	case domain.ActionUpdate:
		return r.update(ctx, item)
	case domain.ActionUpsert:
		if item.Diff.Create {
			return r.create(ctx, item)
		}
		return r.update(ctx, item)
	case domain.ActionDisable:
		return r.setDisabled(ctx, item, true)
	case domain.ActionEnable:
		return r.setDisabled(ctx, item, false)
	case domain.ActionDelete:
		return r.delete(ctx, item)
	}
	return domain.Skipped(fmt.Sprintf("unsupported action '%s'", item.Action)), nil
}

func (r *applyRun) create(ctx context.Context, item domain.PreviewItem) (domain.RowOutcome, *rowAttempt) {
	if _, exists := r.index[item.Email]; exists {
		return domain.Skipped("idempotent: user already exists"), nil
	}

	name := item.Desired.Username
	if name == "" {
		name = item.Username
	}
	groups := item.Desired.Groups
	if groups == nil {
		groups = []string{}
	}
	attempt := &rowAttempt{
		operation: domain.ActionCreate.Operation(),
		request: map[string]any{
			"org_id":         r.orgID,
			"name":           name,
			"email":          item.Email,
			"groups":         groups,
			"send_key_email": r.sendKeyEmail,
		},
	}
	if name == "" {
		return domain.Failed("create requires username"), attempt
	}

	created, err := r.client.CreateUser(ctx, r.orgID, domain.NewUser{Name: name, Email: item.Email, Groups: groups})
	if err != nil {
		return domain.Failed(truncateReason(err.Error())), attempt
	}
	attempt.response = map[string]any{"user": created.AsMap()}

	if r.sendKeyEmail {
		if created.ID == "" {
			return domain.Failed("create response missing user id; key email not sent"), attempt
		}
		full := created.Clone()
		full.Extra["send_key_email"] = true
		sent, err := r.client.UpdateUserFull(ctx, r.orgID, created.ID, full)
		if err != nil {
			return domain.Failed(truncateReason("user created but key email failed: " + err.Error())), attempt
		}
		attempt.response["email_trigger"] = sent.AsMap()
	}

	return domain.Applied(attempt.response), attempt
}

func (r *applyRun) update(ctx context.Context, item domain.PreviewItem) (domain.RowOutcome, *rowAttempt) {
	current, exists := r.index[item.Email]
	if !exists {
		return domain.Skipped("user not found"), nil
	}

	merged := current.Clone()
	if item.Diff.Name != nil {
		merged.Name = item.Diff.Name.To
	}
	if item.Diff.Groups != nil {
		merged.Groups = append([]string{}, item.Diff.Groups.To...)
	}
	if merged.Name == current.Name && domain.SameGroups(merged.Groups, current.Groups) {
		return domain.Skipped("idempotent: no change"), nil
	}

	attempt := &rowAttempt{
		operation: domain.ActionUpdate.Operation(),
		request:   map[string]any{"org_id": r.orgID, "user_id": current.ID},
	}
	if patch, err := changePatch(current, merged); err == nil {
		attempt.request["patch"] = patch
	}
	if current.ID == "" {
		return domain.Failed("remote user has no id"), attempt
	}

	updated, err := r.client.UpdateUserFull(ctx, r.orgID, current.ID, merged)
	if err != nil {
		return domain.Failed(truncateReason(err.Error())), attempt
	}
	attempt.response = map[string]any{"user": updated.AsMap()}
	return domain.Applied(attempt.response), attempt
}

func (r *applyRun) setDisabled(ctx context.Context, item domain.PreviewItem, disabled bool) (domain.RowOutcome, *rowAttempt) {
	current, exists := r.index[item.Email]
	if !exists {
		return domain.Skipped("user not found"), nil
	}
	if item.Diff.Disabled != nil {
		disabled = item.Diff.Disabled.To
	}
	if current.Disabled == disabled {
		if disabled {
			return domain.Skipped("idempotent: already disabled"), nil
		}
		return domain.Skipped("idempotent: already enabled"), nil
	}

	op := domain.ActionEnable.Operation()
	if disabled {
		op = domain.ActionDisable.Operation()
	}
	attempt := &rowAttempt{
		operation: op,
		request:   map[string]any{"org_id": r.orgID, "user_id": current.ID, "disabled": disabled},
	}
	if current.ID == "" {
		return domain.Failed("remote user has no id"), attempt
	}

	merged := current.Clone()
	merged.Disabled = disabled
	updated, err := r.client.UpdateUserFull(ctx, r.orgID, current.ID, merged)
	if err != nil {
		return domain.Failed(truncateReason(err.Error())), attempt
	}
	attempt.response = map[string]any{"user": updated.AsMap()}
	return domain.Applied(attempt.response), attempt
}

func (r *applyRun) delete(ctx context.Context, item domain.PreviewItem) (domain.RowOutcome, *rowAttempt) {
	attempt := &rowAttempt{
		operation: domain.ActionDelete.Operation(),
		request:   map[string]any{"org_id": r.orgID, "email": item.Email},
	}
	if !r.allowDelete {
		return domain.Failed(deleteDisabledMessage), attempt
	}

	current, exists := r.index[item.Email]
	if !exists {
		return domain.Skipped("user not found"), nil
	}
	attempt.request["user_id"] = current.ID
	if current.ID == "" {
		return domain.Failed("remote user has no id"), attempt
	}

	if err := r.client.DeleteUser(ctx, r.orgID, current.ID); err != nil {
		return domain.Failed(truncateReason(err.Error())), attempt
	}
	attempt.response = map[string]any{"deleted": true, "user_id": current.ID}
	return domain.Applied(attempt.response), attempt
}

func operationFor(item domain.PreviewItem) string {
	action := domain.Action(item.Action)
	if action == domain.ActionUpsert {
		if item.Diff.Create {
			return domain.ActionCreate.Operation()
		}
		return domain.ActionUpdate.Operation()
	}
	return action.Operation()
}

// changePatch renders the change an update makes as a JSON patch for the audit record.
func changePatch(current, merged domain.RemoteUser) ([]any, error) {
	patch, err := jsondiff.Compare(current.AsMap(), merged.AsMap())
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}
	var ops []any
	if err := json.Unmarshal(raw, &ops); err != nil {
		return nil, err
	}
	return ops, nil
}

func truncateReason(reason string) string {
	const maxLen = 1000
	reason = strings.TrimSpace(reason)
	if len(reason) <= maxLen {
		return reason
	}
	return reason[:maxLen]
}
