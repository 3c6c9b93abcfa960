package reconcile

import "context"

type DirectoryClient interface {
	ListOrganizations(ctx context.Context) ([]Organization, error)
	ListUsers(ctx context.Context, orgID string) ([]RemoteUser, error)
	CreateUser(ctx context.Context, orgID string, user NewUser) (RemoteUser, error)
	UpdateUserFull(ctx context.Context, orgID, userID string, user RemoteUser) (RemoteUser, error)
	DeleteUser(ctx context.Context, orgID, userID string) error
}

type Target struct {
	ID        string
	Name      string
	BaseURL   string
	OrgName   string
	VerifyTLS bool
}

type DirectoryProvider interface {
	Directory(ctx context.Context, targetID string) (Target, DirectoryClient, error)
}

type BatchLedger interface {
	CreateBatch(ctx context.Context, batch ImportBatch, rows []ImportRow) error
	GetBatch(ctx context.Context, targetID, batchID string) (*ImportBatch, error)
	ListRows(ctx context.Context, batchID string) ([]ImportRow, error)
	TransitionStatus(ctx context.Context, batchID string, to BatchStatus, from ...BatchStatus) error
	RecordRowResult(ctx context.Context, rowID string, result RowApplyResult) error
}

type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
	List(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// TargetLock serializes apply runs per target.
type TargetLock interface {
	Acquire(ctx context.Context, targetID string) (LockLease, error)
}

// LockLease is a held target lock. Release is safe to call more than once.
type LockLease interface {
	Release(ctx context.Context) error
}
