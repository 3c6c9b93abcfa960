package reconcile

import (
	"fmt"
	"strings"

	domain "github.com/mohammadpnp/account-reconcile/internal/domain/reconcile"
)

// MaxUIItems bounds the item list shown to an operator. Hashing and persistence always use
// the full list.
const MaxUIItems = 200

type PreviewResult struct {
	Summary domain.PreviewSummary
	UIItems []domain.PreviewItem
	Items   []domain.PreviewItem
}

// Preview decodes csv and evaluates it against a snapshot of remote users.
func Preview(csv []byte, users []domain.RemoteUser) (PreviewResult, error) {
	rows, err := DecodeCSV(csv)
	if err != nil {
		return PreviewResult{}, err
	}

	items, summary := Evaluate(rows, users)
	return PreviewResult{Summary: summary, UIItems: UIItems(items), Items: items}, nil
}

// UIItems returns the leading items shown to an operator, at most MaxUIItems.
func UIItems(items []domain.PreviewItem) []domain.PreviewItem {
	if len(items) > MaxUIItems {
		return items[:MaxUIItems]
	}
	return items
}

// Evaluate computes one plan item per desired row, in row order.
func Evaluate(rows []domain.DesiredRow, users []domain.RemoteUser) ([]domain.PreviewItem, domain.PreviewSummary) {
	index := domain.IndexByEmail(users)
	summary := domain.PreviewSummary{}
	items := make([]domain.PreviewItem, 0, len(rows))

	for _, row := range rows {
		summary.TotalRows++
		items = append(items, evaluateRow(row, index, &summary))
	}

	for _, item := range items {
		switch item.Status {
		case domain.ItemError:
			summary.Errors++
		case domain.ItemSkip:
			summary.Skips++
		}
	}

	return items, summary
}

func evaluateRow(row domain.DesiredRow, index map[string]domain.RemoteUser, summary *domain.PreviewSummary) domain.PreviewItem {
	email := domain.NormalizeEmail(row.Email)
	username := strings.TrimSpace(row.Username)
	rawAction := strings.ToLower(strings.TrimSpace(row.Action))

	item := domain.PreviewItem{
		Row:      row.RowNumber,
		Action:   rawAction,
		Email:    email,
		Username: username,
	}

	action, ok := domain.ParseAction(rawAction)
	if !ok {
		return rowError(item, "", fmt.Sprintf("Invalid action '%s'", rawAction))
	}
	item.Action = string(action)

	if action == domain.ActionSkip {
		item.Status = domain.ItemSkip
		return item
	}

	if email == "" {
		return rowError(item, "", "Missing email")
	}

	existing, exists := index[email]
	before := domain.StateNotFound
	if exists {
		before = existing.State()
	}

	mode := domain.GroupsMode(strings.ToLower(strings.TrimSpace(row.GroupsMode)))
	if mode == "" {
		mode = domain.GroupsReplace
	}
	desired := domain.DesiredState{
		Email:      email,
		Username:   username,
		GroupsMode: mode,
		GroupsCell: strings.TrimSpace(row.GroupsCell),
	}

	var proposed []string
	if action == domain.ActionCreate || action == domain.ActionUpdate || action == domain.ActionUpsert {
		switch mode {
		case domain.GroupsClear:
			proposed = []string{}
			summary.Clears++
		case domain.GroupsReplace:
			if desired.GroupsCell != "" {
				proposed = domain.SplitGroups(desired.GroupsCell)
			}
		case domain.GroupsEmpty:
		default:
			return rowError(item, before, fmt.Sprintf("Invalid groups_mode '%s'", mode))
		}
	}

	switch action {
	case domain.ActionCreate:
		summary.ActionedRows++
		summary.Creates++
		if exists {
			return rowError(item, before, "User already exists (email match)")
		}
		return planCreate(item, desired, proposed, "Create requires username")

	case domain.ActionUpdate:
		summary.ActionedRows++
		summary.Updates++
		if !exists {
			return rowError(item, domain.StateNotFound, "User not found for update (email match)")
		}
		return planUpdate(item, desired, existing, proposed)

	case domain.ActionUpsert:
		summary.ActionedRows++
		if exists {
			summary.Updates++
			return planUpdate(item, desired, existing, proposed)
		}
		summary.Creates++
		return planCreate(item, desired, proposed, "Upsert(create) requires username")

	case domain.ActionDisable, domain.ActionEnable:
		summary.ActionedRows++
		target := action == domain.ActionDisable
		if target {
			summary.Disables++
		} else {
			summary.Enables++
		}
		if !exists {
			return rowError(item, domain.StateNotFound, fmt.Sprintf("User not found for %s (email match)", action))
		}
		item.Desired = desired
		item.Diff = domain.PlanDiff{Disabled: &domain.BoolChange{From: existing.Disabled, To: target}}
		return planOK(item, before, domain.FormatState(email, existing.Name, target, existing.Groups))

	case domain.ActionDelete:
		summary.ActionedRows++
		summary.Deletes++
		if !exists {
			return rowError(item, domain.StateNotFound, "User not found for delete (email match)")
		}
		item.Desired = desired
		item.Diff = domain.PlanDiff{Delete: true}
		return planOK(item, before, domain.StateDeleted)
	}

	return rowError(item, before, "Unhandled action")
}

func planCreate(item domain.PreviewItem, desired domain.DesiredState, proposed []string, missingUsername string) domain.PreviewItem {
	if desired.Username == "" {
		return rowError(item, domain.StateNotFound, missingUsername)
	}
	if proposed == nil {
		proposed = []string{}
	}
	desired.Groups = proposed
	item.Desired = desired
	item.Diff = domain.PlanDiff{Create: true}
	return planOK(item, domain.StateNotFound, domain.FormatState(desired.Email, desired.Username, false, proposed))
}

func planUpdate(item domain.PreviewItem, desired domain.DesiredState, existing domain.RemoteUser, proposed []string) domain.PreviewItem {
	finalName := existing.Name
	if desired.Username != "" {
		finalName = desired.Username
	}
	finalGroups := existing.Groups
	if proposed != nil {
		finalGroups = proposed
		desired.Groups = proposed
	}
	desired.FinalName = finalName

	diff := domain.PlanDiff{}
	if finalName != existing.Name {
		diff.Name = &domain.StringChange{From: existing.Name, To: finalName}
	}
	if proposed != nil && !domain.SameGroups(existing.Groups, proposed) {
		from := existing.Groups
		if from == nil {
			from = []string{}
		}
		diff.Groups = &domain.GroupsChange{From: from, To: proposed}
	}

	item.Desired = desired
	item.Diff = diff
	return planOK(item, existing.State(), domain.FormatState(desired.Email, finalName, existing.Disabled, finalGroups))
}

func planOK(item domain.PreviewItem, before, after string) domain.PreviewItem {
	item.Status = domain.ItemOK
	item.Before = before
	item.After = after
	item.WillApply = item.Action != string(domain.ActionSkip)
	return item
}

func rowError(item domain.PreviewItem, before, message string) domain.PreviewItem {
	item.Status = domain.ItemError
	item.Before = before
	item.Error = message
	item.WillApply = false
	return item
}
