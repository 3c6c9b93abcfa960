package reconcile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/mohammadpnp/account-reconcile/internal/application/reconcile"
	domain "github.com/mohammadpnp/account-reconcile/internal/domain/reconcile"
)

const csvHeader = "action,email,username,groups_mode,groups\n"

type fixture struct {
	dir    *fakeDirectory
	ledger *fakeLedger
	audit  *fakeAudit
	lock   *fakeLock
	policy app.SafetyPolicy
	opts   app.ApplyOptions
}

func newFixture(users ...domain.RemoteUser) *fixture {
	return &fixture{
		dir:    newFakeDirectory(users...),
		ledger: newFakeLedger(),
		audit:  &fakeAudit{},
		lock:   &fakeLock{},
		opts:   app.ApplyOptions{AllowDelete: true, Timeout: time.Minute},
	}
}

func (f *fixture) preview(t *testing.T, csv string) app.PreviewBatchOutput {
	t.Helper()
	uc := app.NewPreviewBatch(f.dir, f.ledger, f.policy, quietLogger())
	out, err := uc.Execute(context.Background(), app.PreviewBatchInput{TargetID: "t1", Actor: "alice", CSV: []byte(csvHeader + csv)})
	require.NoError(t, err)
	return out
}

func (f *fixture) apply(preview app.PreviewBatchOutput) (app.ApplyBatchOutput, error) {
	uc := app.NewApplyBatch(f.ledger, f.audit, f.lock, f.dir, f.policy, f.opts, quietLogger())
	return uc.Execute(context.Background(), app.ApplyBatchInput{
		TargetID:      "t1",
		BatchID:       preview.BatchID,
		Actor:         "alice",
		PreviewSHA256: preview.PreviewSHA256,
		Confirm:       true,
		ConfirmText:   app.TypedConfirmation,
	})
}

func TestApplyCreateRow(t *testing.T) {
	t.Parallel()

	f := newFixture()
	p := f.preview(t, "create,new@x.com,New User,replace,\"A,B\"\n")
	require.Equal(t, "email=new@x.com, name=New User, disabled=False, groups=A,B", p.Items[0].After)

	out, err := f.apply(p)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchApplied, out.Status)
	assert.Equal(t, 1, out.Applied)

	row := f.ledger.rowByNumber(p.BatchID, 2)
	assert.Equal(t, domain.ApplyApplied, row.ApplyStatus)
	assert.NotNil(t, row.AppliedAt)

	require.Len(t, f.audit.entries, 1)
	entry := f.audit.entries[0]
	assert.Equal(t, "user.create", entry.Operation)
	assert.True(t, entry.Success)
	assert.Equal(t, "alice", entry.Actor)
	assert.Equal(t, row.ID, entry.RowID)

	require.Len(t, f.dir.creates, 1)
	assert.Equal(t, []string{"A", "B"}, f.dir.creates[0].Groups)
	assert.Equal(t, 1, f.lock.acquired)
	assert.Equal(t, 1, f.lock.released)
}

func TestApplyRejectsHashMismatchWithoutRemoteCalls(t *testing.T) {
	t.Parallel()

	f := newFixture()
	p := f.preview(t, "create,new@x.com,New,,\n")
	fetchesAfterPreview := f.dir.fetches

	p.PreviewSHA256 = "deadbeef"
	_, err := f.apply(p)
	require.ErrorIs(t, err, app.ErrPlanMismatch)

	assert.Equal(t, fetchesAfterPreview, f.dir.fetches)
	assert.Zero(t, f.dir.mutations())
	assert.Zero(t, f.lock.acquired)
	assert.Equal(t, domain.BatchPreviewed, f.ledger.status(p.BatchID))
}

func TestApplyUpdateNoChangeIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(john())
	p := f.preview(t, "update,john@x.com,,clear,\n")
	require.Equal(t, domain.ItemOK, p.Items[0].Status)

	out, err := f.apply(p)
	require.NoError(t, err)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, domain.ApplySkipped, out.Rows[0].Status)
	assert.Equal(t, "idempotent: no change", out.Rows[0].Reason)
	assert.Empty(t, f.audit.entries)
	assert.Zero(t, f.dir.mutations())
	assert.Equal(t, domain.BatchApplied, out.Status)
}

func TestApplyDeleteDisabledFailsRowOnly(t *testing.T) {
	t.Parallel()

	f := newFixture(john())
	f.opts.AllowDelete = false
	p := f.preview(t, "delete,john@x.com,,,\ncreate,new@x.com,New,,\n")

	out, err := f.apply(p)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchFailed, out.Status)
	assert.Equal(t, domain.BatchFailed, f.ledger.status(p.BatchID))
	assert.Equal(t, 1, out.Failed)
	assert.Equal(t, 1, out.Applied)

	deleted := f.ledger.rowByNumber(p.BatchID, 2)
	assert.Equal(t, domain.ApplyFailed, deleted.ApplyStatus)
	assert.Contains(t, deleted.ApplyResult["error"], "deletion is disabled")

	created := f.ledger.rowByNumber(p.BatchID, 3)
	assert.Equal(t, domain.ApplyApplied, created.ApplyStatus)

	require.Len(t, f.audit.entries, 2)
	assert.Equal(t, "user.delete", f.audit.entries[0].Operation)
	assert.False(t, f.audit.entries[0].Success)
	assert.Empty(t, f.dir.deletes)
}

func TestApplyRejectsPreviewWithErrors(t *testing.T) {
	t.Parallel()

	f := newFixture()
	p := f.preview(t, "update,ghost@x.com,Ghost,,\n")
	require.Equal(t, 1, p.Summary.Errors)

	_, err := f.apply(p)
	require.ErrorIs(t, err, app.ErrPreviewHasErrors)
	assert.Equal(t, domain.BatchPreviewed, f.ledger.status(p.BatchID))
	assert.Zero(t, f.lock.acquired)
}

func TestApplySecondBatchFromSameSnapshotIsIdempotent(t *testing.T) {
	t.Parallel()

	jane := domain.RemoteUser{ID: "u-jane", Email: "jane@x.com", Name: "Jane"}
	f := newFixture(john(), jane)
	csv := "create,new@x.com,New,replace,A\nupdate,john@x.com,Johnny,,\ndisable,jane@x.com,,,\n"
	first := f.preview(t, csv)
	second := f.preview(t, csv)
	require.Equal(t, first.PreviewSHA256, second.PreviewSHA256)

	_, err := f.apply(first)
	require.NoError(t, err)
	mutations := f.dir.mutations()
	audits := len(f.audit.entries)

	out, err := f.apply(second)
	require.NoError(t, err)
	assert.Equal(t, mutations, f.dir.mutations())
	assert.Equal(t, audits, len(f.audit.entries))
	for _, row := range out.Rows {
		assert.Equal(t, domain.ApplySkipped, row.Status)
		assert.Contains(t, row.Reason, "idempotent")
	}
}

func TestApplyAppliedBatchIsTerminal(t *testing.T) {
	t.Parallel()

	f := newFixture()
	p := f.preview(t, "create,new@x.com,New,,\n")
	_, err := f.apply(p)
	require.NoError(t, err)

	_, err = f.apply(p)
	require.ErrorIs(t, err, app.ErrBatchNotApplicable)
	assert.Len(t, f.dir.creates, 1)
}

func TestApplyRetryLeavesAppliedRowsAlone(t *testing.T) {
	t.Parallel()

	f := newFixture(john())
	f.opts.AllowDelete = false
	p := f.preview(t, "create,new@x.com,New,,\ndelete,john@x.com,,,\n")

	out, err := f.apply(p)
	require.NoError(t, err)
	require.Equal(t, domain.BatchFailed, out.Status)

	f.opts.AllowDelete = true
	out, err = f.apply(p)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchApplied, out.Status)
	assert.Equal(t, 1, out.AlreadyApplied)
	assert.Equal(t, 1, out.Applied)
	assert.Len(t, f.dir.creates, 1)
	assert.Equal(t, []string{"u-john"}, f.dir.deletes)
}

func TestApplyRereadsRowsUnderLock(t *testing.T) {
	t.Parallel()

	f := newFixture(john())
	f.opts.AllowDelete = false
	p := f.preview(t, "create,new@x.com,New,,\ndelete,john@x.com,,,\n")

	out, err := f.apply(p)
	require.NoError(t, err)
	require.Equal(t, domain.BatchFailed, out.Status)
	auditBefore := len(f.audit.entries)

	// Another run finishes the delete row while this one waits for the lock.
	f.opts.AllowDelete = true
	f.lock.onAcquire = func() { f.ledger.setRowStatus(p.BatchID, 3, domain.ApplyApplied) }

	out, err = f.apply(p)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchApplied, out.Status)
	assert.Equal(t, 2, out.AlreadyApplied)
	assert.Zero(t, out.Applied)
	assert.Empty(t, f.dir.deletes)
	assert.Len(t, f.audit.entries, auditBefore)
}

func TestApplyRejectsApplyingBatchWithRecoveryHint(t *testing.T) {
	t.Parallel()

	f := newFixture()
	p := f.preview(t, "create,new@x.com,New,,\n")
	f.ledger.setStatus(p.BatchID, domain.BatchApplying)

	_, err := f.apply(p)
	require.ErrorIs(t, err, app.ErrBatchNotApplicable)
	assert.Contains(t, err.Error(), "recover")
	assert.Zero(t, f.lock.acquired)
}

func TestApplyDisableEnableIdempotence(t *testing.T) {
	t.Parallel()

	off := domain.RemoteUser{ID: "u-off", Email: "off@x.com", Name: "Off", Disabled: true}
	f := newFixture(john(), off)
	p := f.preview(t, "disable,off@x.com,,,\nenable,john@x.com,,,\ndisable,john@x.com,,,\n")

	out, err := f.apply(p)
	require.NoError(t, err)
	require.Len(t, out.Rows, 3)
	assert.Equal(t, "idempotent: already disabled", out.Rows[0].Reason)
	assert.Equal(t, "idempotent: already enabled", out.Rows[1].Reason)
	assert.Equal(t, domain.ApplyApplied, out.Rows[2].Status)

	require.Len(t, f.dir.updates, 1)
	assert.True(t, f.dir.updates[0].Disabled)
	assert.Equal(t, "John", f.dir.updates[0].Name)
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, "user.disable", f.audit.entries[0].Operation)
}

func TestApplyUpdateMergesOntoFreshState(t *testing.T) {
	t.Parallel()

	current := john()
	current.Groups = []string{"old"}
	current.Extra = map[string]any{"auth_type": "local"}
	f := newFixture(current)
	p := f.preview(t, "update,john@x.com,,replace,\"new,extra\"\n")

	// name changed remotely after preview; only groups are flagged in the diff
	f.dir.users[0].Name = "John Renamed"

	out, err := f.apply(p)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Applied)

	require.Len(t, f.dir.updates, 1)
	sent := f.dir.updates[0]
	assert.Equal(t, "John Renamed", sent.Name)
	assert.Equal(t, []string{"new", "extra"}, sent.Groups)
	assert.Equal(t, "local", sent.Extra["auth_type"])

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, "user.update", f.audit.entries[0].Operation)
	assert.NotEmpty(t, f.audit.entries[0].Request["patch"])
}

func TestApplyRowFailuresAreIsolated(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.dir.createErr = errors.New("remote said no")
	p := f.preview(t, "create,a@x.com,A,,\ncreate,b@x.com,B,,\n")

	out, err := f.apply(p)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Failed)
	assert.Equal(t, domain.BatchFailed, out.Status)
	require.Len(t, f.audit.entries, 2)
	for _, e := range f.audit.entries {
		assert.False(t, e.Success)
		assert.Equal(t, "remote said no", e.Error)
	}
}

func TestApplyRecoversFromRowPanic(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.dir.panicOn = "boom@x.com"
	p := f.preview(t, "create,boom@x.com,Boom,,\ncreate,fine@x.com,Fine,,\n")

	out, err := f.apply(p)
	require.NoError(t, err)
	assert.Equal(t, domain.ApplyFailed, out.Rows[0].Status)
	assert.Contains(t, out.Rows[0].Error, "panic")
	assert.Equal(t, domain.ApplyApplied, out.Rows[1].Status)
	assert.Equal(t, 1, f.lock.released)
}

func TestApplyFetchFailureMarksBatchFailed(t *testing.T) {
	t.Parallel()

	f := newFixture()
	p := f.preview(t, "create,new@x.com,New,,\n")
	f.dir.listErr = errors.New("connection refused")

	_, err := f.apply(p)
	require.ErrorIs(t, err, app.ErrFetchRemoteState)
	assert.Equal(t, domain.BatchFailed, f.ledger.status(p.BatchID))
	assert.Zero(t, f.dir.mutations())
	assert.Equal(t, 1, f.lock.released)
}

func TestApplyOrganizationChanged(t *testing.T) {
	t.Parallel()

	f := newFixture()
	p := f.preview(t, "create,new@x.com,New,,\n")
	f.dir.orgs = []domain.Organization{{ID: "org-2", Name: "Staff"}}

	_, err := f.apply(p)
	require.ErrorIs(t, err, app.ErrTargetChanged)
	assert.Zero(t, f.dir.mutations())
}

func TestApplyLockFailure(t *testing.T) {
	t.Parallel()

	f := newFixture()
	p := f.preview(t, "create,new@x.com,New,,\n")
	f.lock.acquireErr = context.DeadlineExceeded

	_, err := f.apply(p)
	require.ErrorIs(t, err, app.ErrTargetLock)
	assert.Equal(t, domain.BatchPreviewed, f.ledger.status(p.BatchID))
	assert.Zero(t, f.dir.mutations())
}

func TestApplyDetectsTamperedRows(t *testing.T) {
	t.Parallel()

	f := newFixture()
	p := f.preview(t, "create,new@x.com,New,,\n")
	f.ledger.rows[p.BatchID][0].Item.Email = "evil@x.com"

	_, err := f.apply(p)
	require.ErrorIs(t, err, app.ErrLedgerIntegrity)
	assert.Zero(t, f.dir.mutations())
}

func TestApplyRequiresConfirmation(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.policy.RequireTypedConfirm = true
	p := f.preview(t, "create,new@x.com,New,,\n")

	uc := app.NewApplyBatch(f.ledger, f.audit, f.lock, f.dir, f.policy, f.opts, quietLogger())
	_, err := uc.Execute(context.Background(), app.ApplyBatchInput{TargetID: "t1", BatchID: p.BatchID, PreviewSHA256: p.PreviewSHA256})
	require.ErrorIs(t, err, app.ErrConfirmationRequired)

	_, err = uc.Execute(context.Background(), app.ApplyBatchInput{TargetID: "t1", BatchID: p.BatchID, PreviewSHA256: p.PreviewSHA256, Confirm: true, ConfirmText: "apply please"})
	require.ErrorIs(t, err, app.ErrConfirmationRequired)
	assert.Zero(t, f.dir.mutations())
}

func TestApplyAuditFailureAbortsRun(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.audit.appendErr = errors.New("disk full")
	p := f.preview(t, "create,a@x.com,A,,\ncreate,b@x.com,B,,\n")

	_, err := f.apply(p)
	require.ErrorIs(t, err, app.ErrApplyAborted)
	assert.Equal(t, domain.BatchFailed, f.ledger.status(p.BatchID))
	assert.Len(t, f.dir.creates, 1)
}

func TestApplyUnknownBatch(t *testing.T) {
	t.Parallel()

	f := newFixture()
	_, err := f.apply(app.PreviewBatchOutput{BatchID: "a3f91a91-7fdd-43bf-bfd2-00bc02f6c53e", PreviewSHA256: "x"})
	require.ErrorIs(t, err, app.ErrBatchNotFound)
}
