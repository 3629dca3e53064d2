// Package types defines the upstream SmartSuite entities the cache
// materializes: solutions, tables (applications), field descriptors,
// records, members, and teams.
package types

import (
	"encoding/json"
	"strings"
)

// Scope identifies one of the cache's invalidation scopes.
type Scope string

const (
	ScopeSolutions Scope = "solutions"
	ScopeTables    Scope = "tables"
	ScopeRecords   Scope = "records"
	ScopeMembers   Scope = "members"
	ScopeTeams     Scope = "teams"
)

// ValidScope reports whether s names a known cache scope.
func ValidScope(s Scope) bool {
	switch s {
	case ScopeSolutions, ScopeTables, ScopeRecords, ScopeMembers, ScopeTeams:
		return true
	}
	return false
}

// Solution is a top-level workspace container.
type Solution struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	LogoIcon  string `json:"logo_icon,omitempty"`
	LogoColor string `json:"logo_color,omitempty"`
}

// UnmarshalJSON accepts both the flat shape and the API shape where the
// logo attributes live under a nested "logo" object.
func (s *Solution) UnmarshalJSON(data []byte) error {
	type alias Solution
	aux := struct {
		*alias
		Logo *struct {
			Icon  string `json:"icon"`
			Color string `json:"color"`
		} `json:"logo,omitempty"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Logo != nil {
		if s.LogoIcon == "" {
			s.LogoIcon = aux.Logo.Icon
		}
		if s.LogoColor == "" {
			s.LogoColor = aux.Logo.Color
		}
	}
	return nil
}

// Field describes one column of an upstream table's structure. Params is
// kept as a loose map because the platform attaches different attributes
// per field type (choices, linked_application, widths, colors, ...).
type Field struct {
	Slug      string         `json:"slug"`
	Label     string         `json:"label"`
	FieldType string         `json:"field_type"`
	Params    map[string]any `json:"params,omitempty"`
}

// IsPrimary reports whether this field is the record's title-like field.
func (f Field) IsPrimary() bool {
	if f.Params == nil {
		return false
	}
	v, ok := f.Params["primary"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// Table is an upstream table ("application"): a structure plus records.
type Table struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	SolutionID string  `json:"solution"`
	Structure  []Field `json:"structure"`
}

// Record is a mapping from field slug to value. Value shapes vary by
// field type; the storage layer decides how each lands in a column.
type Record map[string]any

// ID returns the record's id, or "" when absent or not a string.
func (r Record) ID() string {
	v, ok := r["id"]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Member is a workspace member. Email and status arrive from the API in
// more than one shape; UnmarshalJSON normalizes them to the canonical
// single values.
type Member struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	FullName    string `json:"full_name"`
	JobTitle    string `json:"job_title"`
	Department  string `json:"department"`
	Status      string `json:"status"`
	DeletedDate string `json:"deleted_date,omitempty"`
}

// Active reports whether the member has not been soft-deleted.
func (m Member) Active() bool {
	return strings.TrimSpace(m.DeletedDate) == ""
}

func (m *Member) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	getString := func(key string) string {
		var s string
		if v, ok := raw[key]; ok {
			_ = json.Unmarshal(v, &s)
		}
		return s
	}
	m.ID = getString("id")
	m.Role = getString("role")
	m.JobTitle = getString("job_title")
	m.Department = getString("department")
	m.DeletedDate = getString("deleted_date")

	// email: single string or list; the first entry is canonical
	if v, ok := raw["email"]; ok {
		var one string
		if err := json.Unmarshal(v, &one); err == nil {
			m.Email = one
		} else {
			var many []string
			if err := json.Unmarshal(v, &many); err == nil && len(many) > 0 {
				m.Email = many[0]
			}
		}
	}

	// status: bare string or {value, updated_on} envelope
	if v, ok := raw["status"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			m.Status = s
		} else {
			var env struct {
				Value string `json:"value"`
			}
			if err := json.Unmarshal(v, &env); err == nil {
				m.Status = env.Value
			}
		}
	}

	// names: flat fields or a full_name envelope
	m.FirstName = getString("first_name")
	m.LastName = getString("last_name")
	m.FullName = getString("full_name")
	if v, ok := raw["full_name"]; ok && m.FullName == "" {
		var env struct {
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
			SysRoot   string `json:"sys_root"`
		}
		if err := json.Unmarshal(v, &env); err == nil {
			if m.FirstName == "" {
				m.FirstName = env.FirstName
			}
			if m.LastName == "" {
				m.LastName = env.LastName
			}
			m.FullName = env.SysRoot
		}
	}
	if m.FullName == "" {
		m.FullName = strings.TrimSpace(m.FirstName + " " + m.LastName)
	}
	return nil
}

// Team is a named group of members.
type Team struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	MemberCount int      `json:"member_count"`
	Members     []string `json:"members,omitempty"`
}

// UnmarshalJSON derives the member count from the member list when the
// API omits it.
func (t *Team) UnmarshalJSON(data []byte) error {
	type alias Team
	aux := (*alias)(t)
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if t.MemberCount == 0 {
		t.MemberCount = len(t.Members)
	}
	return nil
}
