package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/cadence-settings/internal/domain"
)

// Service implements the resolution engine for all six settings domains. All
// public methods are safe for concurrent use if the underlying store is
// concurrency-safe; conflicting concurrent creates are arbitrated by the
// store's uniqueness constraints, not by the engine.
type Service struct {
	store      Store
	dispatcher Dispatcher
}

// NewService creates a settings engine backed by the given store. A nil
// dispatcher disables side-effect fan-out.
func NewService(store Store, dispatcher Dispatcher) *Service {
	if dispatcher == nil {
		dispatcher = NopDispatcher{}
	}
	return &Service{store: store, dispatcher: dispatcher}
}

// CreateException creates a sub-department or user scoped override record
// and repoints every affected user to it. Admin records are provisioned with
// the company and cannot be created through this path.
func (s *Service) CreateException(ctx context.Context, d domain.SettingsDomain, priority domain.Priority, scope domain.Scope, payload json.RawMessage) (*domain.OverrideRecord, error) {
	desc, err := domain.Lookup(d)
	if err != nil {
		return nil, ErrUnknownDomain
	}
	if priority == domain.PriorityAdmin {
		return nil, ErrAdminImmutable
	}
	if !priority.Valid() {
		return nil, ErrInvalidPriority
	}
	if err := validateScope(priority, scope); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rec := &domain.OverrideRecord{
		ID:              uuid.New().String(),
		Domain:          d,
		Priority:        priority,
		CompanyID:       scope.CompanyID,
		SubDepartmentID: scope.SubDepartmentID,
		UserID:          scope.UserID,
		Payload:         payload,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var affected []string
	var prior json.RawMessage
	err = s.store.WithinTx(ctx, func(tx Tx) error {
		// Capture what the target scope resolves to today, for the
		// changed-value comparison after commit.
		prior = priorEffectivePayload(ctx, tx, d, priority, scope)

		if err := tx.InsertRecord(ctx, rec); err != nil {
			return err
		}

		switch priority {
		case domain.PriorityUser:
			// A user-level exception always wins: repoint unconditionally.
			changed, err := tx.RepointUser(ctx, *scope.UserID, d, rec.ID, domain.PriorityUser)
			if err != nil {
				return fmt.Errorf("repoint user %s: %w", *scope.UserID, err)
			}
			if changed {
				affected = append(affected, *scope.UserID)
			}
		case domain.PrioritySubDepartment:
			// Guarded sweep: users holding a personal override keep it.
			ids, err := tx.RepointSubDepartment(ctx, *scope.SubDepartmentID, d, rec.ID, domain.PrioritySubDepartment, true)
			if err != nil {
				return fmt.Errorf("repoint sub-department %s: %w", *scope.SubDepartmentID, err)
			}
			affected = ids
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Sub-department ids ride along only for sub-department scoped changes;
	// a personal override must never fan out to the whole sub-department.
	var sdIDs []string
	if priority == domain.PrioritySubDepartment {
		sdIDs = sdList(scope.SubDepartmentID)
	}
	s.queueEffects(desc, rec, affected, sdIDs, prior, rec.Payload, false)
	return rec, nil
}

// UpdateException replaces a record's payload, optionally reassigning its
// owning scope (moving a personal exception between users, or a
// sub-department exception between sub-departments). Reassignment repoints
// the new targets and falls the old targets back to the next applicable
// record.
func (s *Service) UpdateException(ctx context.Context, recordID string, payload json.RawMessage, newScope *domain.Scope) (*domain.OverrideRecord, error) {
	var (
		rec         *domain.OverrideRecord
		desc        *domain.Descriptor
		affected    []string
		sdIDs       []string
		oldPayload  json.RawMessage
		payloadOnly bool
	)

	err := s.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		rec, err = tx.GetRecord(ctx, recordID)
		if err != nil {
			return err
		}
		desc, err = domain.Lookup(rec.Domain)
		if err != nil {
			return ErrUnknownDomain
		}
		oldPayload = rec.Payload

		if newScope == nil || sameScope(rec, *newScope) {
			// Case A: payload-only update, whether the scope is omitted or
			// restated unchanged. Everyone currently resolved to this record
			// sees the change.
			payloadOnly = true
			if err := tx.UpdateRecordPayload(ctx, recordID, payload); err != nil {
				return fmt.Errorf("update payload: %w", err)
			}
			affected, err = tx.UsersPointingAt(ctx, recordID, rec.Domain)
			if err != nil {
				return fmt.Errorf("users pointing at %s: %w", recordID, err)
			}
			if rec.Priority == domain.PrioritySubDepartment && rec.SubDepartmentID != nil {
				sdIDs = append(sdIDs, *rec.SubDepartmentID)
			}
			return nil
		}

		// Case B: scope reassignment.
		if err := validateScope(rec.Priority, *newScope); err != nil {
			return err
		}

		seen := map[string]bool{}
		add := func(ids ...string) {
			for _, id := range ids {
				if !seen[id] {
					seen[id] = true
					affected = append(affected, id)
				}
			}
		}

		switch rec.Priority {
		case domain.PriorityUser:
			// No second record may already own the new user.
			if other, err := tx.FindByUser(ctx, rec.CompanyID, *newScope.UserID, rec.Domain); err == nil && other.ID != rec.ID {
				return ErrConflict
			} else if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			changed, err := tx.RepointUser(ctx, *newScope.UserID, rec.Domain, rec.ID, domain.PriorityUser)
			if err != nil {
				return fmt.Errorf("repoint user %s: %w", *newScope.UserID, err)
			}
			if changed {
				add(*newScope.UserID)
			}
			// Old owner falls back to their sub-department record or admin.
			if rec.UserID != nil && *rec.UserID != *newScope.UserID {
				if err := fallbackUser(ctx, tx, rec, *rec.UserID, rec.SubDepartmentID); err != nil {
					return err
				}
				add(*rec.UserID)
			}
		case domain.PrioritySubDepartment:
			if other, err := tx.FindBySubDepartment(ctx, rec.CompanyID, *newScope.SubDepartmentID, rec.Domain); err == nil && other.ID != rec.ID {
				return ErrConflict
			} else if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			ids, err := tx.RepointSubDepartment(ctx, *newScope.SubDepartmentID, rec.Domain, rec.ID, domain.PrioritySubDepartment, true)
			if err != nil {
				return fmt.Errorf("repoint sub-department %s: %w", *newScope.SubDepartmentID, err)
			}
			add(ids...)
			sdIDs = append(sdIDs, *newScope.SubDepartmentID)
			if rec.SubDepartmentID != nil && *rec.SubDepartmentID != *newScope.SubDepartmentID {
				fbIDs, err := fallbackSubDepartment(ctx, tx, rec, *rec.SubDepartmentID)
				if err != nil {
					return err
				}
				add(fbIDs...)
				sdIDs = append(sdIDs, *rec.SubDepartmentID)
			}
		default:
			// Admin records have no scope to reassign.
			return ErrAdminImmutable
		}

		// A sub-department record carries no owning user; drop any stray
		// user_id from the restated scope.
		newUserID := newScope.UserID
		if rec.Priority == domain.PrioritySubDepartment {
			newUserID = nil
		}
		if err := tx.UpdateRecordScope(ctx, recordID, newScope.SubDepartmentID, newUserID); err != nil {
			return err
		}
		if err := tx.UpdateRecordPayload(ctx, recordID, payload); err != nil {
			return fmt.Errorf("update payload: %w", err)
		}
		rec.SubDepartmentID = newScope.SubDepartmentID
		rec.UserID = newUserID
		return nil
	})
	if err != nil {
		return nil, err
	}

	identical := payloadOnly && bytes.Equal(oldPayload, payload)
	rec.Payload = payload
	rec.UpdatedAt = time.Now().UTC()
	s.queueEffects(desc, rec, affected, sdIDs, oldPayload, payload, identical)
	return rec, nil
}

// DeleteException removes a sub-department or user scoped record and falls
// every affected user back to the next applicable record. Admin records are
// the resolution floor and cannot be deleted.
func (s *Service) DeleteException(ctx context.Context, recordID string) error {
	var (
		rec      *domain.OverrideRecord
		desc     *domain.Descriptor
		affected []string
		fallback json.RawMessage
	)

	err := s.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		rec, err = tx.GetRecord(ctx, recordID)
		if err != nil {
			return err
		}
		if rec.Priority == domain.PriorityAdmin {
			return ErrAdminImmutable
		}
		desc, err = domain.Lookup(rec.Domain)
		if err != nil {
			return ErrUnknownDomain
		}

		switch rec.Priority {
		case domain.PriorityUser:
			if rec.UserID != nil {
				if err := fallbackUser(ctx, tx, rec, *rec.UserID, rec.SubDepartmentID); err != nil {
					return err
				}
				affected = append(affected, *rec.UserID)
			}
		case domain.PrioritySubDepartment:
			if rec.SubDepartmentID != nil {
				ids, err := fallbackSubDepartment(ctx, tx, rec, *rec.SubDepartmentID)
				if err != nil {
					return err
				}
				affected = ids
			}
		}

		// Capture what the targets now resolve to, for the changed-value
		// comparison.
		if len(affected) > 0 {
			if ptr, err := tx.GetPointer(ctx, affected[0], rec.Domain); err == nil {
				if eff, err := tx.GetRecord(ctx, ptr.RecordID); err == nil {
					fallback = eff.Payload
				}
			}
		}

		return tx.DeleteRecord(ctx, recordID)
	})
	if err != nil {
		return err
	}

	var sdIDs []string
	if rec.Priority == domain.PrioritySubDepartment {
		sdIDs = sdList(rec.SubDepartmentID)
	}
	s.queueEffects(desc, rec, affected, sdIDs, rec.Payload, fallback, false)
	return nil
}

// ResolveEffective returns the record currently effective for the user. This
// is a pure read against the materialized pointer; it never cascades.
func (s *Service) ResolveEffective(ctx context.Context, userID string, d domain.SettingsDomain) (*domain.OverrideRecord, error) {
	if _, err := domain.Lookup(d); err != nil {
		return nil, ErrUnknownDomain
	}
	ptr, err := s.store.GetPointer(ctx, userID, d)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.GetRecord(ctx, ptr.RecordID)
	if err != nil {
		// A dangling pointer means the cascade invariant was violated
		// somewhere; surface it loudly rather than resolving to nothing.
		return nil, fmt.Errorf("pointer for user %s references missing record %s: %w", userID, ptr.RecordID, err)
	}
	return rec, nil
}

// fallbackUser repoints a user who just lost their personal exception: to
// their sub-department's record if one exists, else to the company admin
// record.
func fallbackUser(ctx context.Context, tx Tx, rec *domain.OverrideRecord, userID string, sdID *string) error {
	if sdID != nil {
		sdRec, err := tx.FindBySubDepartment(ctx, rec.CompanyID, *sdID, rec.Domain)
		if err == nil {
			if _, err := tx.RepointUser(ctx, userID, rec.Domain, sdRec.ID, domain.PrioritySubDepartment); err != nil {
				return fmt.Errorf("fallback repoint user %s: %w", userID, err)
			}
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	adminRec, err := tx.FindAdmin(ctx, rec.CompanyID, rec.Domain)
	if err != nil {
		return err
	}
	if _, err := tx.RepointUser(ctx, userID, rec.Domain, adminRec.ID, domain.PriorityAdmin); err != nil {
		return fmt.Errorf("fallback repoint user %s: %w", userID, err)
	}
	return nil
}

// fallbackSubDepartment bulk-repoints a sub-department that just lost its
// record straight to the company admin record, skipping users who hold a
// personal exception. A sub-department has at most one record, so no
// alternate sub-department lookup happens here.
func fallbackSubDepartment(ctx context.Context, tx Tx, rec *domain.OverrideRecord, sdID string) ([]string, error) {
	adminRec, err := tx.FindAdmin(ctx, rec.CompanyID, rec.Domain)
	if err != nil {
		return nil, err
	}
	ids, err := tx.RepointSubDepartment(ctx, sdID, rec.Domain, adminRec.ID, domain.PriorityAdmin, true)
	if err != nil {
		return nil, fmt.Errorf("fallback repoint sub-department %s: %w", sdID, err)
	}
	return ids, nil
}

// priorEffectivePayload returns, best-effort, the payload the target scope
// resolves to before a create. Only the changed-value comparison consumes
// it; nil means "unknown" and the effects fire.
func priorEffectivePayload(ctx context.Context, tx Tx, d domain.SettingsDomain, priority domain.Priority, scope domain.Scope) json.RawMessage {
	switch priority {
	case domain.PriorityUser:
		ptr, err := tx.GetPointer(ctx, *scope.UserID, d)
		if err != nil {
			return nil
		}
		cur, err := tx.GetRecord(ctx, ptr.RecordID)
		if err != nil {
			return nil
		}
		return cur.Payload
	case domain.PrioritySubDepartment:
		// A second sub-department record would conflict on insert, so the
		// non-user members currently resolve to the admin record.
		adminRec, err := tx.FindAdmin(ctx, scope.CompanyID, d)
		if err != nil {
			return nil
		}
		return adminRec.Payload
	}
	return nil
}

// queueEffects selects the firing effects for a committed mutation and hands
// the job to the dispatcher. When the domain declares payload equivalence
// (lead score: threshold and reset period unchanged) or the payload is
// byte-identical, everything but cache invalidation is suppressed.
func (s *Service) queueEffects(desc *domain.Descriptor, rec *domain.OverrideRecord, userIDs []string, sdIDs []string, oldPayload, newPayload json.RawMessage, identical bool) {
	if len(userIDs) == 0 {
		return
	}

	suppressed := identical
	if !suppressed && desc.Unchanged != nil && oldPayload != nil && newPayload != nil {
		suppressed = desc.Unchanged(oldPayload, newPayload)
	}

	effects := desc.Effects
	if suppressed {
		effects = []domain.Effect{domain.EffectInvalidateCache}
	}

	job := EffectJob{
		Domain:           desc.ID,
		CompanyID:        rec.CompanyID,
		UserIDs:          userIDs,
		SubDepartmentIDs: sdIDs,
		Effects:          effects,
		Priority:         rec.Priority,
		Payload:          newPayload,
	}
	switch {
	case rec.UserID != nil:
		job.ScopeID = *rec.UserID
	case rec.SubDepartmentID != nil:
		job.ScopeID = *rec.SubDepartmentID
	default:
		job.ScopeID = rec.CompanyID
	}
	s.dispatcher.Dispatch(job)
}

func sdList(sdID *string) []string {
	if sdID == nil {
		return nil
	}
	return []string{*sdID}
}

func validateScope(p domain.Priority, scope domain.Scope) error {
	if scope.CompanyID == "" {
		return ErrInvalidScope
	}
	switch p {
	case domain.PrioritySubDepartment:
		if scope.SubDepartmentID == nil || *scope.SubDepartmentID == "" {
			return ErrInvalidScope
		}
	case domain.PriorityUser:
		if scope.SubDepartmentID == nil || *scope.SubDepartmentID == "" ||
			scope.UserID == nil || *scope.UserID == "" {
			return ErrInvalidScope
		}
	}
	return nil
}

func sameScope(rec *domain.OverrideRecord, s domain.Scope) bool {
	return strPtrEq(rec.SubDepartmentID, s.SubDepartmentID) && strPtrEq(rec.UserID, s.UserID)
}

func strPtrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
