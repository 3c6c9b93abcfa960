package reconcile

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// NormalizeEmail is the only form of an email used as an index key or in comparisons.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type Organization struct {
	ID    string
	Name  string
	Extra map[string]any
}

// RemoteUser is a read-only snapshot of one account on the target. Attributes the engine
// does not model are kept in Extra so that full-object updates round-trip them untouched.
type RemoteUser struct {
	ID       string
	Email    string
	Name     string
	Disabled bool
	Groups   []string
	Extra    map[string]any
}

type NewUser struct {
	Name   string
	Email  string
	Groups []string
}

var remoteUserKeys = map[string]struct{}{
	"id": {}, "email": {}, "name": {}, "disabled": {}, "groups": {},
}

func (u RemoteUser) AsMap() map[string]any {
	out := make(map[string]any, len(u.Extra)+5)
	for k, v := range u.Extra {
		out[k] = v
	}
	out["id"] = u.ID
	out["email"] = u.Email
	out["name"] = u.Name
	out["disabled"] = u.Disabled
	if u.Groups == nil {
		out["groups"] = nil
	} else {
		groups := make([]any, 0, len(u.Groups))
		for _, g := range u.Groups {
			groups = append(groups, g)
		}
		out["groups"] = groups
	}
	return out
}

func (u RemoteUser) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.AsMap())
}

func (u *RemoteUser) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := RemoteUserFromMap(raw)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// RemoteUserFromMap lifts a provider payload into a RemoteUser. Groups may arrive as a list,
// a comma separated string or null.
func RemoteUserFromMap(raw map[string]any) (RemoteUser, error) {
	u := RemoteUser{Extra: map[string]any{}}
	for k, v := range raw {
		if _, known := remoteUserKeys[k]; !known {
			u.Extra[k] = v
		}
	}
	u.ID = stringValue(raw["id"])
	u.Email = stringValue(raw["email"])
	u.Name = strings.TrimSpace(stringValue(raw["name"]))
	if d, ok := raw["disabled"]; ok && d != nil {
		b, ok := d.(bool)
		if !ok {
			return RemoteUser{}, fmt.Errorf("user %q: disabled is %T, want bool", u.Email, d)
		}
		u.Disabled = b
	}
	switch g := raw["groups"].(type) {
	case nil:
	case []any:
		u.Groups = make([]string, 0, len(g))
		for _, item := range g {
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				u.Groups = append(u.Groups, s)
			}
		}
	case []string:
		u.Groups = append([]string{}, g...)
	case string:
		u.Groups = SplitGroups(g)
	default:
		return RemoteUser{}, fmt.Errorf("user %q: unexpected groups type %T", u.Email, g)
	}
	return u, nil
}

// Clone returns a deep copy safe to mutate before an update call.
func (u RemoteUser) Clone() RemoteUser {
	out := u
	if u.Groups != nil {
		out.Groups = append([]string{}, u.Groups...)
	}
	out.Extra = make(map[string]any, len(u.Extra))
	for k, v := range u.Extra {
		out.Extra[k] = v
	}
	return out
}

// IndexByEmail keys users by normalized email. The first occurrence of a duplicate email wins;
// users without an email are not indexed.
func IndexByEmail(users []RemoteUser) map[string]RemoteUser {
	idx := make(map[string]RemoteUser, len(users))
	for _, u := range users {
		key := NormalizeEmail(u.Email)
		if key == "" {
			continue
		}
		if _, exists := idx[key]; !exists {
			idx[key] = u
		}
	}
	return idx
}

// SplitGroups splits a comma separated cell, trimming entries and dropping blanks and
// duplicates while keeping first-seen order.
func SplitGroups(cell string) []string {
	out := []string{}
	seen := map[string]struct{}{}
	for _, part := range strings.Split(cell, ",") {
		p := strings.TrimSpace(part)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// SameGroups compares group membership ignoring order and duplicates. Nil and empty are equal.
func SameGroups(a, b []string) bool {
	left := groupSet(a)
	right := groupSet(b)
	if len(left) != len(right) {
		return false
	}
	for i := range left {
		if left[i] != right[i] {
			return false
		}
	}
	return true
}

func groupSet(groups []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		if _, dup := seen[g]; dup {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

func ChooseOrganization(orgs []Organization, name string) (Organization, error) {
	if len(orgs) == 0 {
		return Organization{}, ErrNoOrganizations
	}
	name = strings.TrimSpace(name)
	if name != "" {
		for _, o := range orgs {
			if strings.TrimSpace(o.Name) == name {
				return o, nil
			}
		}
		return Organization{}, fmt.Errorf("%w: %q", ErrOrganizationNotFound, name)
	}
	if len(orgs) == 1 {
		return orgs[0], nil
	}
	return Organization{}, ErrAmbiguousOrganization
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
