package reconcile

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	domain "github.com/mohammadpnp/account-reconcile/internal/domain/reconcile"
)

// exportHeader mirrors the import format. status is informational and ignored on import.
var exportHeader = []string{"action", "email", "username", "groups_mode", "groups", "status"}

type ExportTargetUsersInput struct {
	TargetID string
}

type ExportTargetUsers interface {
	Execute(ctx context.Context, in ExportTargetUsersInput) (ExportOutput, error)
}

type exportTargetUsers struct {
	directories domain.DirectoryProvider
}

func NewExportTargetUsers(directories domain.DirectoryProvider) ExportTargetUsers {
	return &exportTargetUsers{directories: directories}
}

func (uc *exportTargetUsers) Execute(ctx context.Context, in ExportTargetUsersInput) (ExportOutput, error) {
	target, client, err := openDirectory(ctx, uc.directories, in.TargetID)
	if err != nil {
		return ExportOutput{}, err
	}
	snapshot, err := fetchSnapshot(ctx, target, client)
	if err != nil {
		return ExportOutput{}, err
	}

	users := append([]domain.RemoteUser{}, snapshot.Users...)
	sort.SliceStable(users, func(i, j int) bool {
		return domain.NormalizeEmail(users[i].Email) < domain.NormalizeEmail(users[j].Email)
	})

	var buf bytes.Buffer
	if err := WriteUsersCSV(&buf, users); err != nil {
		return ExportOutput{}, fmt.Errorf("render export: %w", err)
	}

	name := target.Name
	if name == "" {
		name = target.ID
	}
	return ExportOutput{
		Filename:    strings.ReplaceAll(name, " ", "_") + "_users.csv",
		ContentType: ReportCSV.ContentType(),
		Content:     buf.Bytes(),
	}, nil
}

// WriteUsersCSV writes users in a form that can be edited and uploaded back as a preview.
func WriteUsersCSV(w io.Writer, users []domain.RemoteUser) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, u := range users {
		status := "enabled"
		if u.Disabled {
			status = "disabled"
		}
		record := []string{
			"",
			strings.TrimSpace(u.Email),
			strings.TrimSpace(u.Name),
			string(domain.GroupsReplace),
			strings.Join(u.Groups, ","),
			status,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
