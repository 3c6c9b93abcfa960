package reconcile_test

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	domain "github.com/mohammadpnp/account-reconcile/internal/domain/reconcile"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeDirectory struct {
	mu sync.Mutex

	target domain.Target
	orgs   []domain.Organization
	users  []domain.RemoteUser
	nextID int

	listErr   error
	createErr error
	panicOn   string

	fetches int
	creates []domain.NewUser
	updates []domain.RemoteUser
	deletes []string
}

func newFakeDirectory(users ...domain.RemoteUser) *fakeDirectory {
	return &fakeDirectory{
		target: domain.Target{ID: "t1", Name: "Main VPN"},
		orgs:   []domain.Organization{{ID: "org-1", Name: "Staff"}},
		users:  users,
	}
}

func (f *fakeDirectory) Directory(ctx context.Context, targetID string) (domain.Target, domain.DirectoryClient, error) {
	if targetID != f.target.ID {
		return domain.Target{}, nil, domain.ErrTargetNotFound
	}
	return f.target, f, nil
}

func (f *fakeDirectory) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.Organization{}, f.orgs...), nil
}

func (f *fakeDirectory) ListUsers(ctx context.Context, orgID string) ([]domain.RemoteUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.RemoteUser, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u.Clone())
	}
	return out, nil
}

func (f *fakeDirectory) CreateUser(ctx context.Context, orgID string, user domain.NewUser) (domain.RemoteUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn == user.Email {
		panic("directory exploded")
	}
	if f.createErr != nil {
		return domain.RemoteUser{}, f.createErr
	}
	f.creates = append(f.creates, user)
	f.nextID++
	created := domain.RemoteUser{
		ID:     fmt.Sprintf("new-%d", f.nextID),
		Email:  user.Email,
		Name:   user.Name,
		Groups: append([]string{}, user.Groups...),
		Extra:  map[string]any{},
	}
	f.users = append(f.users, created)
	return created, nil
}

func (f *fakeDirectory) UpdateUserFull(ctx context.Context, orgID, userID string, user domain.RemoteUser) (domain.RemoteUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, user)
	for i := range f.users {
		if f.users[i].ID == userID {
			f.users[i] = user.Clone()
			return user, nil
		}
	}
	return domain.RemoteUser{}, fmt.Errorf("user %s not found", userID)
}

func (f *fakeDirectory) DeleteUser(ctx context.Context, orgID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, userID)
	for i := range f.users {
		if f.users[i].ID == userID {
			f.users = append(f.users[:i], f.users[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("user %s not found", userID)
}

func (f *fakeDirectory) mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates) + len(f.updates) + len(f.deletes)
}

type fakeLedger struct {
	mu        sync.Mutex
	batches   map[string]domain.ImportBatch
	rows      map[string][]domain.ImportRow
	recordErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{batches: map[string]domain.ImportBatch{}, rows: map[string][]domain.ImportRow{}}
}

func (f *fakeLedger) CreateBatch(ctx context.Context, batch domain.ImportBatch, rows []domain.ImportRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches[batch.ID] = batch
	f.rows[batch.ID] = append([]domain.ImportRow{}, rows...)
	return nil
}

func (f *fakeLedger) GetBatch(ctx context.Context, targetID, batchID string) (*domain.ImportBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[batchID]
	if !ok || b.TargetID != targetID {
		return nil, domain.ErrBatchNotFound
	}
	return &b, nil
}

func (f *fakeLedger) ListRows(ctx context.Context, batchID string) ([]domain.ImportRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := append([]domain.ImportRow{}, f.rows[batchID]...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Item.Row < rows[j].Item.Row })
	return rows, nil
}

func (f *fakeLedger) TransitionStatus(ctx context.Context, batchID string, to domain.BatchStatus, from ...domain.BatchStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[batchID]
	if !ok {
		return domain.ErrBatchNotFound
	}
	for _, s := range from {
		if b.Status == s && s.CanTransition(to) {
			b.Status = to
			f.batches[batchID] = b
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, b.Status, to)
}

func (f *fakeLedger) RecordRowResult(ctx context.Context, rowID string, result domain.RowApplyResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	for batchID, rows := range f.rows {
		for i := range rows {
			if rows[i].ID != rowID || rows[i].ApplyStatus == domain.ApplyApplied {
				continue
			}
			rows[i].ApplyStatus = result.Status
			rows[i].ApplyResult = result.Result
			rows[i].AppliedAt = result.AppliedAt
			f.rows[batchID] = rows
			return nil
		}
	}
	return nil
}

func (f *fakeLedger) status(batchID string) domain.BatchStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches[batchID].Status
}

func (f *fakeLedger) setStatus(batchID string, status domain.BatchStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.batches[batchID]
	b.Status = status
	f.batches[batchID] = b
}

func (f *fakeLedger) setRowStatus(batchID string, row int, status domain.ApplyStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows[batchID] {
		if f.rows[batchID][i].Item.Row == row {
			f.rows[batchID][i].ApplyStatus = status
		}
	}
}

func (f *fakeLedger) rowByNumber(batchID string, row int) domain.ImportRow {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows[batchID] {
		if r.Item.Row == row {
			return r
		}
	}
	return domain.ImportRow{}
}

type fakeAudit struct {
	mu        sync.Mutex
	entries   []domain.AuditEntry
	appendErr error
}

func (f *fakeAudit) Append(ctx context.Context, entry domain.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAudit) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.AuditEntry{}, f.entries...), nil
}

type fakeLock struct {
	mu         sync.Mutex
	acquireErr error
	onAcquire  func()
	acquired   int
	released   int
}

func (f *fakeLock) Acquire(ctx context.Context, targetID string) (domain.LockLease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	f.acquired++
	if f.onAcquire != nil {
		f.onAcquire()
	}
	return &fakeLease{lock: f}, nil
}

type fakeLease struct {
	lock *fakeLock
	once sync.Once
}

func (l *fakeLease) Release(ctx context.Context) error {
	l.once.Do(func() {
		l.lock.mu.Lock()
		l.lock.released++
		l.lock.mu.Unlock()
	})
	return nil
}
