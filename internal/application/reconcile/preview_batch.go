package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	domain "github.com/mohammadpnp/account-reconcile/internal/domain/reconcile"
)

type PreviewBatchInput struct {
	TargetID string
	Actor    string
	CSV      []byte
}

type PreviewBatchOutput struct {
	BatchID       string                `json:"batch_id"`
	TargetID      string                `json:"target_id"`
	Status        domain.BatchStatus    `json:"status"`
	CSVSHA256     string                `json:"csv_sha256"`
	PreviewSHA256 string                `json:"preview_sha256"`
	Summary       domain.PreviewSummary `json:"summary"`
	Meta          domain.BatchMeta      `json:"meta"`
	Warnings      []string              `json:"warnings"`
	Items         []domain.PreviewItem  `json:"items"`
	TotalItems    int                   `json:"total_items"`
}

type PreviewBatch interface {
	Execute(ctx context.Context, in PreviewBatchInput) (PreviewBatchOutput, error)
}

type batchCreator interface {
	CreateBatch(ctx context.Context, batch domain.ImportBatch, rows []domain.ImportRow) error
}

type previewBatch struct {
	directories domain.DirectoryProvider
	ledger      batchCreator
	policy      SafetyPolicy
	log         logrus.FieldLogger
	now         func() time.Time
}

func NewPreviewBatch(directories domain.DirectoryProvider, ledger batchCreator, policy SafetyPolicy, log logrus.FieldLogger) PreviewBatch {
	return &previewBatch{
		directories: directories,
		ledger:      ledger,
		policy:      policy,
		log:         log,
		now:         time.Now,
	}
}

func (uc *previewBatch) Execute(ctx context.Context, in PreviewBatchInput) (PreviewBatchOutput, error) {
	log := uc.log.WithField("target", in.TargetID)

	// Schema problems are reported before anything is read from the target.
	rows, err := DecodeCSV(in.CSV)
	if err != nil {
		previewsTotal.WithLabelValues("invalid_csv").Inc()
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			return PreviewBatchOutput{}, fmt.Errorf("%w: %s", ErrInvalidCSV, verr.Message)
		}
		return PreviewBatchOutput{}, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}

	target, client, err := openDirectory(ctx, uc.directories, in.TargetID)
	if err != nil {
		previewsTotal.WithLabelValues("target_error").Inc()
		return PreviewBatchOutput{}, err
	}
	snapshot, err := fetchSnapshot(ctx, target, client)
	if err != nil {
		previewsTotal.WithLabelValues("fetch_error").Inc()
		log.WithError(err).Warn("preview: fetch remote state failed")
		return PreviewBatchOutput{}, err
	}

	items, summary := Evaluate(rows, snapshot.Users)
	previewHash, err := PlanHash(items)
	if err != nil {
		return PreviewBatchOutput{}, fmt.Errorf("%w: hash plan: %v", ErrPersistBatch, err)
	}

	now := uc.now().UTC()
	batch := domain.ImportBatch{
		ID:            uuid.NewString(),
		TargetID:      in.TargetID,
		CreatedBy:     actorOrUnknown(in.Actor),
		Status:        domain.BatchPreviewed,
		CSVSHA256:     CSVHash(in.CSV),
		CSVBytes:      in.CSV,
		PreviewSHA256: previewHash,
		Summary:       summary,
		Meta:          domain.BatchMeta{OrgID: snapshot.Org.ID, OrgName: snapshot.Org.Name},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	importRows := make([]domain.ImportRow, 0, len(items))
	for _, item := range items {
		importRows = append(importRows, domain.ImportRow{
			ID:          uuid.NewString(),
			BatchID:     batch.ID,
			Item:        item,
			ApplyStatus: domain.ApplyPending,
			CreatedAt:   now,
		})
	}

	if err := uc.ledger.CreateBatch(ctx, batch, importRows); err != nil {
		previewsTotal.WithLabelValues("persist_error").Inc()
		return PreviewBatchOutput{}, fmt.Errorf("%w: %v", ErrPersistBatch, err)
	}

	previewsTotal.WithLabelValues("ok").Inc()
	log.WithFields(logrus.Fields{
		"batch":   batch.ID,
		"rows":    summary.TotalRows,
		"errors":  summary.Errors,
		"preview": previewHash,
	}).Info("preview persisted")

	return PreviewBatchOutput{
		BatchID:       batch.ID,
		TargetID:      batch.TargetID,
		Status:        batch.Status,
		CSVSHA256:     batch.CSVSHA256,
		PreviewSHA256: batch.PreviewSHA256,
		Summary:       summary,
		Meta:          batch.Meta,
		Warnings:      uc.policy.Warnings(summary),
		Items:         UIItems(items),
		TotalItems:    len(items),
	}, nil
}
