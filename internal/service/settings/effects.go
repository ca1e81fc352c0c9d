package settings

import (
	"encoding/json"

	"github.com/ignite/cadence-settings/internal/domain"
)

// EffectJob describes the post-commit fan-out for one committed mutation:
// which users' effective settings changed and which recomputations to run.
// Jobs are queued only after the transaction commits and are processed
// detached from the request lifecycle.
type EffectJob struct {
	Domain    domain.SettingsDomain
	CompanyID string

	// UserIDs are the users whose assignment pointer changed (or, for an
	// in-place payload update, the users currently pointing at the record).
	UserIDs []string

	// SubDepartmentIDs carry the sub-department scope for bulk operations so
	// start-time adjustment can run per sub-department instead of per user.
	SubDepartmentIDs []string

	// Effects is the subset of the domain's registered effects that should
	// fire for this mutation.
	Effects []domain.Effect

	// ScopeID, Priority and Payload describe the mutated scope and the
	// now-effective payload, consumed by the lead-score reset call.
	ScopeID  string
	Priority domain.Priority
	Payload  json.RawMessage
}

// Dispatcher receives effect jobs after commit. Implementations must not
// block the caller: the mutation's success is already committed and returned
// regardless of what happens to the job.
type Dispatcher interface {
	Dispatch(job EffectJob)
}

// NopDispatcher drops every job. Used when no downstream consumers are wired
// (tests, one-shot tooling).
type NopDispatcher struct{}

func (NopDispatcher) Dispatch(EffectJob) {}
