package domain

import (
	"encoding/json"
	"time"
)

// Priority orders the three override scopes. Higher values always win when
// resolving the effective record for a user.
type Priority int

const (
	PriorityAdmin         Priority = 1 // company-wide floor, exactly one per company
	PrioritySubDepartment Priority = 2
	PriorityUser          Priority = 3
)

// Valid reports whether p is one of the three known priorities.
func (p Priority) Valid() bool {
	return p == PriorityAdmin || p == PrioritySubDepartment || p == PriorityUser
}

func (p Priority) String() string {
	switch p {
	case PriorityAdmin:
		return "admin"
	case PrioritySubDepartment:
		return "sub_department"
	case PriorityUser:
		return "user"
	}
	return "unknown"
}

// ParsePriority maps the wire names to a Priority.
func ParsePriority(s string) (Priority, bool) {
	switch s {
	case "admin":
		return PriorityAdmin, true
	case "sub_department":
		return PrioritySubDepartment, true
	case "user":
		return PriorityUser, true
	}
	return 0, false
}

// SettingsDomain identifies one of the six independent settings categories
// that share the override/cascade mechanism.
type SettingsDomain string

const (
	DomainAutomatedTask   SettingsDomain = "automated_task"
	DomainBouncedMail     SettingsDomain = "bounced_mail"
	DomainUnsubscribeMail SettingsDomain = "unsubscribe_mail"
	DomainTaskSettings    SettingsDomain = "task"
	DomainSkip            SettingsDomain = "skip"
	DomainLeadScore       SettingsDomain = "lead_score"
)

// OverrideRecord is a stored settings payload at a given priority and scope.
// The payload is opaque to the resolution engine; only domain descriptors
// ever decode it.
type OverrideRecord struct {
	ID        string          `json:"id" db:"id"`
	Domain    SettingsDomain  `json:"domain" db:"domain"`
	Priority  Priority        `json:"priority" db:"priority"`
	CompanyID string          `json:"company_id" db:"company_id"`
	// SubDepartmentID is set for SUB_DEPARTMENT records, and also for USER
	// records (the owner's sub-department, kept for fallback resolution).
	SubDepartmentID *string         `json:"sd_id" db:"sd_id"`
	UserID          *string         `json:"user_id" db:"user_id"`
	Payload         json.RawMessage `json:"payload" db:"payload"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// AssignmentPointer is the per-user, per-domain materialized reference to the
// currently-effective override record. One row per (user, domain); created at
// user provisioning, mutated only by the resolution engine.
type AssignmentPointer struct {
	UserID   string         `json:"user_id" db:"user_id"`
	Domain   SettingsDomain `json:"domain" db:"domain"`
	RecordID string         `json:"record_id" db:"record_id"`
	Priority Priority       `json:"priority" db:"priority"`
}

// Scope names the entity an override record applies to. For SUB_DEPARTMENT
// priority only SubDepartmentID is required; USER priority requires both
// SubDepartmentID and UserID.
type Scope struct {
	CompanyID       string
	SubDepartmentID *string
	UserID          *string
}
