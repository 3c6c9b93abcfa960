package reconcile_test

import (
	"context"
	"errors"
	"testing"

	app "github.com/mohammadpnp/account-reconcile/internal/application/reconcile"
	domain "github.com/mohammadpnp/account-reconcile/internal/domain/reconcile"
)

type failingBatchReader struct {
	err error
}

func (f failingBatchReader) GetBatch(ctx context.Context, targetID, batchID string) (*domain.ImportBatch, error) {
	return nil, f.err
}

func (f failingBatchReader) ListRows(ctx context.Context, batchID string) ([]domain.ImportRow, error) {
	return nil, f.err
}

func TestGetBatchSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(john())
	p := f.preview(t, "disable,john@x.com,,,\n")

	out, err := app.NewGetBatch(f.ledger).Execute(context.Background(), app.GetBatchInput{TargetID: "t1", BatchID: p.BatchID})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.ID != p.BatchID || out.PreviewSHA256 != p.PreviewSHA256 {
		t.Fatalf("unexpected batch: %#v", out)
	}
	if len(out.Rows) != 1 || out.Rows[0].ApplyStatus != domain.ApplyPending {
		t.Fatalf("unexpected rows: %#v", out.Rows)
	}
}

func TestGetBatchInvalidID(t *testing.T) {
	t.Parallel()

	_, err := app.NewGetBatch(failingBatchReader{}).Execute(context.Background(), app.GetBatchInput{TargetID: "t1", BatchID: "not-a-uuid"})
	if !errors.Is(err, app.ErrBatchNotFound) {
		t.Fatalf("expected ErrBatchNotFound, got %v", err)
	}
}

func TestGetBatchRepositoryError(t *testing.T) {
	t.Parallel()

	uc := app.NewGetBatch(failingBatchReader{err: errors.New("db down")})
	_, err := uc.Execute(context.Background(), app.GetBatchInput{TargetID: "t1", BatchID: "a3f91a91-7fdd-43bf-bfd2-00bc02f6c53e"})
	if !errors.Is(err, app.ErrGetBatch) {
		t.Fatalf("expected ErrGetBatch, got %v", err)
	}
}

func TestListAuditHistoryClampsLimit(t *testing.T) {
	t.Parallel()

	audit := &fakeAudit{entries: []domain.AuditEntry{{ID: "1", Operation: "user.create", Success: true}}}
	out, err := app.NewListAuditHistory(audit).Execute(context.Background(), domain.AuditFilter{Limit: 5000})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.Limit != domain.MaxAuditLimit {
		t.Fatalf("expected clamped limit, got %d", out.Limit)
	}
	if len(out.Entries) != 1 || out.Entries[0].Operation != "user.create" {
		t.Fatalf("unexpected entries: %#v", out.Entries)
	}
}
