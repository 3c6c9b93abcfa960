package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	domain "github.com/mohammadpnp/account-reconcile/internal/domain/reconcile"
)

type RecoverBatchInput struct {
	TargetID string
	BatchID  string
	Actor    string
}

type RecoverBatchOutput struct {
	BatchID string             `json:"batch_id"`
	Status  domain.BatchStatus `json:"status"`
}

// RecoverBatch marks a batch left in applying by a crashed run as failed, so that it can be
// retried. It holds the target lock while doing so: a live run keeps the lock, and once that
// run ends the batch is no longer applying.
type RecoverBatch interface {
	Execute(ctx context.Context, in RecoverBatchInput) (RecoverBatchOutput, error)
}

type recoverBatch struct {
	ledger domain.BatchLedger
	lock   domain.TargetLock
	log    logrus.FieldLogger
}

func NewRecoverBatch(ledger domain.BatchLedger, lock domain.TargetLock, log logrus.FieldLogger) RecoverBatch {
	return &recoverBatch{ledger: ledger, lock: lock, log: log}
}

func (uc *recoverBatch) Execute(ctx context.Context, in RecoverBatchInput) (RecoverBatchOutput, error) {
	if !batchIDPattern.MatchString(in.BatchID) {
		return RecoverBatchOutput{}, ErrBatchNotFound
	}
	batch, err := uc.ledger.GetBatch(ctx, in.TargetID, in.BatchID)
	if err != nil {
		if errors.Is(err, domain.ErrBatchNotFound) {
			return RecoverBatchOutput{}, ErrBatchNotFound
		}
		return RecoverBatchOutput{}, fmt.Errorf("%w: %v", ErrGetBatch, err)
	}
	if batch.Status != domain.BatchApplying {
		return RecoverBatchOutput{}, fmt.Errorf("%w: status is %s", ErrBatchNotStranded, batch.Status)
	}

	lease, err := uc.lock.Acquire(ctx, batch.TargetID)
	if err != nil {
		return RecoverBatchOutput{}, fmt.Errorf("%w: %v", ErrTargetLock, err)
	}
	defer func() { _ = lease.Release(context.WithoutCancel(ctx)) }()

	if err := uc.ledger.TransitionStatus(ctx, batch.ID, domain.BatchFailed, domain.BatchApplying); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return RecoverBatchOutput{}, fmt.Errorf("%w: %v", ErrBatchNotStranded, err)
		}
		return RecoverBatchOutput{}, fmt.Errorf("mark batch failed: %w", err)
	}

	uc.log.WithFields(logrus.Fields{
		"target": batch.TargetID,
		"batch":  batch.ID,
		"actor":  actorOrUnknown(in.Actor),
	}).Warn("stranded batch marked failed")
	return RecoverBatchOutput{BatchID: batch.ID, Status: domain.BatchFailed}, nil
}
