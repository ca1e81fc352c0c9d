package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ignite/cadence-settings/internal/domain"
	"github.com/ignite/cadence-settings/internal/service/settings"
)

func TestWithinTxRollsBackOnError(t *testing.T) {
	s := NewStore()
	s.ProvisionCompany("comp-1", nil)
	s.ProvisionUser("u-1", "sd-1", "comp-1")

	before, err := s.GetPointer(context.Background(), "u-1", domain.DomainSkip)
	if err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	sd := "sd-1"
	err = s.WithinTx(context.Background(), func(tx settings.Tx) error {
		rec := &domain.OverrideRecord{
			ID:              "rec-1",
			Domain:          domain.DomainSkip,
			Priority:        domain.PrioritySubDepartment,
			CompanyID:       "comp-1",
			SubDepartmentID: &sd,
			Payload:         json.RawMessage(`{}`),
		}
		if err := tx.InsertRecord(context.Background(), rec); err != nil {
			return err
		}
		if _, err := tx.RepointSubDepartment(context.Background(), "sd-1", domain.DomainSkip, "rec-1", domain.PrioritySubDepartment, true); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	// Record and repoint both rolled back.
	if _, err := s.GetRecord(context.Background(), "rec-1"); !errors.Is(err, settings.ErrNotFound) {
		t.Fatal("inserted record survived rollback")
	}
	after, err := s.GetPointer(context.Background(), "u-1", domain.DomainSkip)
	if err != nil {
		t.Fatal(err)
	}
	if after.RecordID != before.RecordID || after.Priority != before.Priority {
		t.Fatalf("pointer changed across rollback: %+v vs %+v", before, after)
	}
}

func TestInsertRecordEnforcesUniqueness(t *testing.T) {
	s := NewStore()
	s.ProvisionCompany("comp-1", nil)

	sd := "sd-1"
	mk := func(id string) *domain.OverrideRecord {
		return &domain.OverrideRecord{
			ID:              id,
			Domain:          domain.DomainTaskSettings,
			Priority:        domain.PrioritySubDepartment,
			CompanyID:       "comp-1",
			SubDepartmentID: &sd,
			Payload:         json.RawMessage(`{}`),
		}
	}

	err := s.WithinTx(context.Background(), func(tx settings.Tx) error {
		return tx.InsertRecord(context.Background(), mk("rec-1"))
	})
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err = s.WithinTx(context.Background(), func(tx settings.Tx) error {
		return tx.InsertRecord(context.Background(), mk("rec-2"))
	})
	if !errors.Is(err, settings.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}
