package reconcile

import "strings"

type Action string

const (
	ActionSkip    Action = "skip"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionUpsert  Action = "upsert"
	ActionDisable Action = "disable"
	ActionEnable  Action = "enable"
	ActionDelete  Action = "delete"
)

// ParseAction maps a CSV action cell to an Action. An empty cell means skip.
func ParseAction(raw string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ActionSkip:
		return ActionSkip, true
	case ActionCreate:
		return ActionCreate, true
	case ActionUpdate:
		return ActionUpdate, true
	case ActionUpsert:
		return ActionUpsert, true
	case ActionDisable:
		return ActionDisable, true
	case ActionEnable:
		return ActionEnable, true
	case ActionDelete:
		return ActionDelete, true
	}
	return "", false
}

// Operation is the audit operation name for a mutating action.
func (a Action) Operation() string {
	switch a {
	case ActionCreate, ActionUpdate, ActionDisable, ActionEnable, ActionDelete:
		return "user." + string(a)
	}
	return "user.unknown"
}

type GroupsMode string

const (
	GroupsReplace GroupsMode = "replace"
	GroupsClear   GroupsMode = "clear"
	GroupsEmpty   GroupsMode = "empty"
)

type ItemStatus string

const (
	ItemOK    ItemStatus = "ok"
	ItemSkip  ItemStatus = "skip"
	ItemError ItemStatus = "error"
)

type ApplyStatus string

const (
	ApplyPending ApplyStatus = "pending"
	ApplySkipped ApplyStatus = "skipped"
	ApplyApplied ApplyStatus = "applied"
	ApplyFailed  ApplyStatus = "failed"
)
