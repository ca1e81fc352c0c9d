// Package memory provides an in-memory implementation of the settings store
// contract. It enforces the same uniqueness invariants as the Postgres store
// (atomically, under one lock) and is used by unit tests and the dev server.
package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/cadence-settings/internal/domain"
	"github.com/ignite/cadence-settings/internal/service/settings"
)

type pointerKey struct {
	userID string
	d      domain.SettingsDomain
}

type userInfo struct {
	companyID string
	sdID      string
}

// Store is an in-memory settings.Store. Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	records  map[string]*domain.OverrideRecord
	pointers map[pointerKey]*domain.AssignmentPointer
	users    map[string]userInfo
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		records:  make(map[string]*domain.OverrideRecord),
		pointers: make(map[pointerKey]*domain.AssignmentPointer),
		users:    make(map[string]userInfo),
	}
}

// ProvisionCompany seeds the admin record for every domain, as company
// provisioning would. Returns the admin record ids keyed by domain.
func (s *Store) ProvisionCompany(companyID string, payloads map[domain.SettingsDomain]json.RawMessage) map[domain.SettingsDomain]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[domain.SettingsDomain]string)
	now := time.Now().UTC()
	for _, d := range domain.AllDomains() {
		payload := payloads[d]
		if payload == nil {
			payload = json.RawMessage(`{}`)
		}
		rec := &domain.OverrideRecord{
			ID:        uuid.New().String(),
			Domain:    d,
			Priority:  domain.PriorityAdmin,
			CompanyID: companyID,
			Payload:   payload,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.records[rec.ID] = rec
		ids[d] = rec.ID
	}
	return ids
}

// ProvisionUser registers a user and points them at the company admin record
// for every domain, as user provisioning would.
func (s *Store) ProvisionUser(userID, sdID, companyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = userInfo{companyID: companyID, sdID: sdID}
	for _, d := range domain.AllDomains() {
		admin := s.findAdminLocked(companyID, d)
		if admin == nil {
			continue
		}
		s.pointers[pointerKey{userID, d}] = &domain.AssignmentPointer{
			UserID:   userID,
			Domain:   d,
			RecordID: admin.ID,
			Priority: domain.PriorityAdmin,
		}
	}
}

// WithinTx runs fn under the store lock with rollback-on-error semantics.
func (s *Store) WithinTx(_ context.Context, fn func(tx settings.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Snapshot for rollback.
	recSnap := make(map[string]*domain.OverrideRecord, len(s.records))
	for k, v := range s.records {
		cp := *v
		recSnap[k] = &cp
	}
	ptrSnap := make(map[pointerKey]*domain.AssignmentPointer, len(s.pointers))
	for k, v := range s.pointers {
		cp := *v
		ptrSnap[k] = &cp
	}

	if err := fn(&tx{s: s}); err != nil {
		s.records = recSnap
		s.pointers = ptrSnap
		return err
	}
	return nil
}

// GetPointer implements the non-transactional read path.
func (s *Store) GetPointer(_ context.Context, userID string, d domain.SettingsDomain) (*domain.AssignmentPointer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pointers[pointerKey{userID, d}]
	if !ok {
		return nil, settings.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// GetRecord implements the non-transactional read path.
func (s *Store) GetRecord(_ context.Context, id string) (*domain.OverrideRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getRecordLocked(id)
}

func (s *Store) getRecordLocked(id string) (*domain.OverrideRecord, error) {
	r, ok := s.records[id]
	if !ok {
		return nil, settings.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) findAdminLocked(companyID string, d domain.SettingsDomain) *domain.OverrideRecord {
	for _, r := range s.records {
		if r.CompanyID == companyID && r.Domain == d && r.Priority == domain.PriorityAdmin {
			return r
		}
	}
	return nil
}

// tx is the transactional view. The store lock is already held for the whole
// transaction, so methods touch state directly.
type tx struct{ s *Store }

func (t *tx) GetRecord(_ context.Context, id string) (*domain.OverrideRecord, error) {
	return t.s.getRecordLocked(id)
}

func (t *tx) FindAdmin(_ context.Context, companyID string, d domain.SettingsDomain) (*domain.OverrideRecord, error) {
	if r := t.s.findAdminLocked(companyID, d); r != nil {
		cp := *r
		return &cp, nil
	}
	return nil, settings.ErrAdminMissing
}

func (t *tx) FindBySubDepartment(_ context.Context, companyID, sdID string, d domain.SettingsDomain) (*domain.OverrideRecord, error) {
	for _, r := range t.s.records {
		if r.CompanyID == companyID && r.Domain == d && r.Priority == domain.PrioritySubDepartment &&
			r.SubDepartmentID != nil && *r.SubDepartmentID == sdID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, settings.ErrNotFound
}

func (t *tx) FindByUser(_ context.Context, companyID, userID string, d domain.SettingsDomain) (*domain.OverrideRecord, error) {
	for _, r := range t.s.records {
		if r.CompanyID == companyID && r.Domain == d && r.Priority == domain.PriorityUser &&
			r.UserID != nil && *r.UserID == userID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, settings.ErrNotFound
}

func (t *tx) InsertRecord(_ context.Context, rec *domain.OverrideRecord) error {
	// Same uniqueness rules the Postgres unique indexes enforce.
	for _, r := range t.s.records {
		if r.CompanyID != rec.CompanyID || r.Domain != rec.Domain || r.Priority != rec.Priority {
			continue
		}
		switch rec.Priority {
		case domain.PriorityAdmin:
			return settings.ErrConflict
		case domain.PrioritySubDepartment:
			if strEq(r.SubDepartmentID, rec.SubDepartmentID) {
				return settings.ErrConflict
			}
		case domain.PriorityUser:
			if strEq(r.UserID, rec.UserID) {
				return settings.ErrConflict
			}
		}
	}
	cp := *rec
	t.s.records[rec.ID] = &cp
	return nil
}

func (t *tx) UpdateRecordPayload(_ context.Context, id string, payload json.RawMessage) error {
	r, ok := t.s.records[id]
	if !ok {
		return settings.ErrNotFound
	}
	r.Payload = payload
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *tx) UpdateRecordScope(_ context.Context, id string, sdID, userID *string) error {
	r, ok := t.s.records[id]
	if !ok {
		return settings.ErrNotFound
	}
	for _, other := range t.s.records {
		if other.ID == id || other.CompanyID != r.CompanyID || other.Domain != r.Domain || other.Priority != r.Priority {
			continue
		}
		if r.Priority == domain.PrioritySubDepartment && strEq(other.SubDepartmentID, sdID) {
			return settings.ErrConflict
		}
		if r.Priority == domain.PriorityUser && strEq(other.UserID, userID) {
			return settings.ErrConflict
		}
	}
	r.SubDepartmentID = sdID
	r.UserID = userID
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *tx) DeleteRecord(_ context.Context, id string) error {
	if _, ok := t.s.records[id]; !ok {
		return settings.ErrNotFound
	}
	delete(t.s.records, id)
	return nil
}

func (t *tx) GetPointer(_ context.Context, userID string, d domain.SettingsDomain) (*domain.AssignmentPointer, error) {
	p, ok := t.s.pointers[pointerKey{userID, d}]
	if !ok {
		return nil, settings.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (t *tx) RepointUser(_ context.Context, userID string, d domain.SettingsDomain, recordID string, p domain.Priority) (bool, error) {
	key := pointerKey{userID, d}
	cur, ok := t.s.pointers[key]
	if ok && cur.RecordID == recordID && cur.Priority == p {
		return false, nil
	}
	t.s.pointers[key] = &domain.AssignmentPointer{
		UserID:   userID,
		Domain:   d,
		RecordID: recordID,
		Priority: p,
	}
	return true, nil
}

func (t *tx) RepointSubDepartment(_ context.Context, sdID string, d domain.SettingsDomain, recordID string, p domain.Priority, guardUserPriority bool) ([]string, error) {
	var changed []string
	for userID, info := range t.s.users {
		if info.sdID != sdID {
			continue
		}
		key := pointerKey{userID, d}
		cur, ok := t.s.pointers[key]
		if !ok {
			continue
		}
		if guardUserPriority && cur.Priority == domain.PriorityUser {
			continue
		}
		if cur.RecordID == recordID && cur.Priority == p {
			continue
		}
		t.s.pointers[key] = &domain.AssignmentPointer{
			UserID:   userID,
			Domain:   d,
			RecordID: recordID,
			Priority: p,
		}
		changed = append(changed, userID)
	}
	return changed, nil
}

func (t *tx) UsersPointingAt(_ context.Context, recordID string, d domain.SettingsDomain) ([]string, error) {
	var out []string
	for key, ptr := range t.s.pointers {
		if key.d == d && ptr.RecordID == recordID {
			out = append(out, key.userID)
		}
	}
	return out, nil
}

func strEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
