package settings

import (
	"context"
	"encoding/json"

	"github.com/ignite/cadence-settings/internal/domain"
)

// Store defines the persistence contract for the settings engine.
// Implementations must be safe for concurrent use.
//
// WithinTx runs fn inside a single transaction spanning both the override
// records and the assignment pointers; fn returning an error rolls the whole
// transaction back. The two read methods outside the transaction back the
// ResolveEffective fast path.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	// GetPointer returns the assignment pointer for the user. Returns
	// ErrNotFound if the user has no row for the domain.
	GetPointer(ctx context.Context, userID string, d domain.SettingsDomain) (*domain.AssignmentPointer, error)

	// GetRecord returns a record by id. Returns ErrNotFound if absent.
	GetRecord(ctx context.Context, id string) (*domain.OverrideRecord, error)
}

// Tx is the transactional view over both stores.
type Tx interface {
	OverrideTx
	PointerTx
}

// OverrideTx is the override-record side of a transaction.
type OverrideTx interface {
	// GetRecord returns a record by id. Returns ErrNotFound if absent.
	GetRecord(ctx context.Context, id string) (*domain.OverrideRecord, error)

	// FindAdmin returns the company's admin record for the domain. Returns
	// ErrAdminMissing if absent — the admin row is the resolution floor.
	FindAdmin(ctx context.Context, companyID string, d domain.SettingsDomain) (*domain.OverrideRecord, error)

	// FindBySubDepartment returns the sub-department record, or ErrNotFound.
	FindBySubDepartment(ctx context.Context, companyID, sdID string, d domain.SettingsDomain) (*domain.OverrideRecord, error)

	// FindByUser returns the user record, or ErrNotFound.
	FindByUser(ctx context.Context, companyID, userID string, d domain.SettingsDomain) (*domain.OverrideRecord, error)

	// InsertRecord persists a new record. The store's uniqueness constraints
	// on (company, domain, priority, sd) and (company, domain, priority,
	// user) are the authoritative conflict signal: a violation surfaces as
	// ErrConflict, never as a silent overwrite.
	InsertRecord(ctx context.Context, rec *domain.OverrideRecord) error

	// UpdateRecordPayload replaces the payload in place.
	UpdateRecordPayload(ctx context.Context, id string, payload json.RawMessage) error

	// UpdateRecordScope reassigns the record's owning sub-department/user.
	// A uniqueness violation on the new scope surfaces as ErrConflict.
	UpdateRecordScope(ctx context.Context, id string, sdID, userID *string) error

	// DeleteRecord removes a record. Returns ErrNotFound if absent.
	DeleteRecord(ctx context.Context, id string) error
}

// PointerTx is the assignment-pointer side of a transaction.
type PointerTx interface {
	// GetPointer returns the pointer for the user, or ErrNotFound.
	GetPointer(ctx context.Context, userID string, d domain.SettingsDomain) (*domain.AssignmentPointer, error)

	// RepointUser sets the user's pointer to (recordID, priority). Reports
	// whether the pointer actually changed.
	RepointUser(ctx context.Context, userID string, d domain.SettingsDomain, recordID string, p domain.Priority) (bool, error)

	// RepointSubDepartment bulk-repoints every user in the sub-department.
	// With guardUserPriority set, users whose current pointer priority is
	// USER are left untouched so a sub-department sweep never clobbers a
	// concurrent personal override. Returns the ids of users whose pointer
	// changed.
	RepointSubDepartment(ctx context.Context, sdID string, d domain.SettingsDomain, recordID string, p domain.Priority, guardUserPriority bool) ([]string, error)

	// UsersPointingAt returns the ids of users currently assigned to the
	// record.
	UsersPointingAt(ctx context.Context, recordID string, d domain.SettingsDomain) ([]string, error)
}
