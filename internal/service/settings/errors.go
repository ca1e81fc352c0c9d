package settings

import "errors"

// Sentinel errors for the settings engine. Everything up to and including the
// transaction surfaces synchronously through these; post-commit side-effect
// failures never do.
var (
	ErrNotFound        = errors.New("override record not found")
	ErrConflict        = errors.New("an exception already exists for this entity — update it instead")
	ErrInvalidScope    = errors.New("scope does not match the required fields for this priority")
	ErrInvalidPriority = errors.New("invalid priority")
	ErrAdminImmutable  = errors.New("admin-level settings cannot be created or deleted, only updated")
	ErrUnknownDomain   = errors.New("unknown settings domain")
	// ErrAdminMissing indicates the company's admin record is absent. The
	// admin row is provisioned with the company and is the resolution floor;
	// its absence is a persistence-level fault, never a silent fallthrough.
	ErrAdminMissing = errors.New("admin record missing for company")
)
