package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	domain "github.com/mohammadpnp/account-reconcile/internal/domain/reconcile"
)

type AuditEntryOutput struct {
	ID        string         `json:"id"`
	TS        time.Time      `json:"ts"`
	Actor     string         `json:"actor"`
	TargetID  string         `json:"target_id"`
	BatchID   string         `json:"batch_id,omitempty"`
	RowID     string         `json:"row_id,omitempty"`
	Email     string         `json:"email,omitempty"`
	Operation string         `json:"operation"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Request   map[string]any `json:"request"`
	Response  map[string]any `json:"response"`
}

type ListAuditHistoryOutput struct {
	Entries []AuditEntryOutput `json:"entries"`
	Limit   int                `json:"limit"`
}

type ListAuditHistory interface {
	Execute(ctx context.Context, filter domain.AuditFilter) (ListAuditHistoryOutput, error)
}

type auditLister interface {
	List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error)
}

type listAuditHistory struct {
	audit auditLister
}

func NewListAuditHistory(audit auditLister) ListAuditHistory {
	return &listAuditHistory{audit: audit}
}

func (uc *listAuditHistory) Execute(ctx context.Context, filter domain.AuditFilter) (ListAuditHistoryOutput, error) {
	filter.TargetID = strings.TrimSpace(filter.TargetID)
	filter.BatchID = strings.TrimSpace(filter.BatchID)
	filter.Actor = strings.TrimSpace(filter.Actor)
	filter.Operation = strings.TrimSpace(filter.Operation)
	filter.Email = strings.TrimSpace(filter.Email)
	filter.Limit = filter.ClampLimit()

	entries, err := uc.audit.List(ctx, filter)
	if err != nil {
		return ListAuditHistoryOutput{}, fmt.Errorf("%w: %v", ErrListAudit, err)
	}

	out := ListAuditHistoryOutput{Entries: make([]AuditEntryOutput, 0, len(entries)), Limit: filter.Limit}
	for _, e := range entries {
		out.Entries = append(out.Entries, AuditEntryOutput{
			ID:        e.ID,
			TS:        e.TS,
			Actor:     e.Actor,
			TargetID:  e.TargetID,
			BatchID:   e.BatchID,
			RowID:     e.RowID,
			Email:     e.Email,
			Operation: e.Operation,
			Success:   e.Success,
			Error:     e.Error,
			Request:   e.Request,
			Response:  e.Response,
		})
	}
	return out, nil
}
