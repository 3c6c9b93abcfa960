package reconcile

import (
	"fmt"
	"strings"
)

const (
	StateNotFound = "(not found)"
	StateDeleted  = "(deleted)"
)

// DesiredRow is one decoded CSV line.
type DesiredRow struct {
	RowNumber  int
	Action     string
	Email      string
	Username   string
	GroupsMode string
	GroupsCell string
	Extra      map[string]string
}

// DesiredState is the desired side of a plan item as persisted with the row.
type DesiredState struct {
	Email      string     `json:"email"`
	Username   string     `json:"username"`
	GroupsMode GroupsMode `json:"groups_mode"`
	GroupsCell string     `json:"groups_cell"`
	Groups     []string   `json:"groups"`
	FinalName  string     `json:"final_name,omitempty"`
}

type StringChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type GroupsChange struct {
	From []string `json:"from"`
	To   []string `json:"to"`
}

type BoolChange struct {
	From bool `json:"from"`
	To   bool `json:"to"`
}

// PlanDiff records what a row intends to change. Only fields that differ are set.
type PlanDiff struct {
	Create   bool          `json:"create,omitempty"`
	Delete   bool          `json:"delete,omitempty"`
	Name     *StringChange `json:"name,omitempty"`
	Groups   *GroupsChange `json:"groups,omitempty"`
	Disabled *BoolChange   `json:"disabled,omitempty"`
}

func (d PlanDiff) IsEmpty() bool {
	return !d.Create && !d.Delete && d.Name == nil && d.Groups == nil && d.Disabled == nil
}

type PreviewItem struct {
	Row       int          `json:"row"`
	Action    string       `json:"action"`
	Email     string       `json:"email"`
	Username  string       `json:"username"`
	Status    ItemStatus   `json:"status"`
	Before    string       `json:"before"`
	After     string       `json:"after"`
	Error     string       `json:"error"`
	Desired   DesiredState `json:"desired"`
	Diff      PlanDiff     `json:"diff"`
	WillApply bool         `json:"will_apply"`
}

type PreviewSummary struct {
	TotalRows    int `json:"total_rows"`
	ActionedRows int `json:"actioned_rows"`
	Creates      int `json:"creates"`
	Updates      int `json:"updates"`
	Disables     int `json:"disables"`
	Enables      int `json:"enables"`
	Deletes      int `json:"deletes"`
	Clears       int `json:"clears"`
	Skips        int `json:"skips"`
	Errors       int `json:"errors"`
}

// FormatState renders an account the way operators see it in before/after columns.
func FormatState(email, name string, disabled bool, groups []string) string {
	return fmt.Sprintf("email=%s, name=%s, disabled=%s, groups=%s", email, name, boolWord(disabled), strings.Join(groups, ","))
}

func (u RemoteUser) State() string {
	return FormatState(u.Email, u.Name, u.Disabled, u.Groups)
}

func boolWord(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
