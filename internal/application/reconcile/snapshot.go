package reconcile

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/mohammadpnp/account-reconcile/internal/domain/reconcile"
)

const unknownActor = "unknown"

// remoteSnapshot is the organization and user list read from a target at one point in time.
type remoteSnapshot struct {
	Target domain.Target
	Org    domain.Organization
	Users  []domain.RemoteUser
}

func openDirectory(ctx context.Context, directories domain.DirectoryProvider, targetID string) (domain.Target, domain.DirectoryClient, error) {
	target, client, err := directories.Directory(ctx, targetID)
	if err != nil {
		if errors.Is(err, domain.ErrTargetNotFound) {
			return domain.Target{}, nil, fmt.Errorf("%w: %s", ErrTargetNotFound, targetID)
		}
		return domain.Target{}, nil, fmt.Errorf("%w: %v", ErrFetchRemoteState, err)
	}
	return target, client, nil
}

func fetchSnapshot(ctx context.Context, target domain.Target, client domain.DirectoryClient) (remoteSnapshot, error) {
	orgs, err := client.ListOrganizations(ctx)
	if err != nil {
		return remoteSnapshot{}, fmt.Errorf("%w: list organizations: %v", ErrFetchRemoteState, err)
	}
	org, err := domain.ChooseOrganization(orgs, target.OrgName)
	if err != nil {
		return remoteSnapshot{}, fmt.Errorf("%w: %v", ErrFetchRemoteState, err)
	}
	if org.ID == "" {
		return remoteSnapshot{}, fmt.Errorf("%w: organization %q has no id", ErrFetchRemoteState, org.Name)
	}
	users, err := client.ListUsers(ctx, org.ID)
	if err != nil {
		return remoteSnapshot{}, fmt.Errorf("%w: list users: %v", ErrFetchRemoteState, err)
	}
	return remoteSnapshot{Target: target, Org: org, Users: users}, nil
}

func actorOrUnknown(actor string) string {
	if actor == "" {
		return unknownActor
	}
	return actor
}
