package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/ignite/cadence-settings/internal/domain"
	"github.com/ignite/cadence-settings/internal/service/settings"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func strPtr(s string) *string { return &s }

func recordRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "domain", "priority", "company_id", "sd_id", "user_id", "payload", "created_at", "updated_at",
	})
}

func TestWithinTxCommitsOnSuccess(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM settings_overrides").
		WithArgs("rec-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), func(tx settings.Tx) error {
		return tx.DeleteRecord(context.Background(), "rec-1")
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(tx settings.Tx) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestInsertRecordMapsUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)
	rec := &domain.OverrideRecord{
		ID:              "rec-1",
		Domain:          domain.DomainSkip,
		Priority:        domain.PriorityUser,
		CompanyID:       "comp-1",
		SubDepartmentID: strPtr("sd-1"),
		UserID:          strPtr("u-1"),
		Payload:         json.RawMessage(`{}`),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO settings_overrides").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(tx settings.Tx) error {
		return tx.InsertRecord(context.Background(), rec)
	})
	if !errors.Is(err, settings.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateRecordScopeMapsUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE settings_overrides SET sd_id").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(tx settings.Tx) error {
		return tx.UpdateRecordScope(context.Background(), "rec-1", strPtr("sd-2"), strPtr("u-2"))
	})
	if !errors.Is(err, settings.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestGetPointer(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT user_id, domain, record_id, priority").
		WithArgs("u-1", domain.DomainTaskSettings).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "domain", "record_id", "priority"}).
			AddRow("u-1", "task", "rec-1", 3))

	ptr, err := store.GetPointer(context.Background(), "u-1", domain.DomainTaskSettings)
	if err != nil {
		t.Fatalf("GetPointer: %v", err)
	}
	if ptr.RecordID != "rec-1" || ptr.Priority != domain.PriorityUser {
		t.Fatalf("unexpected pointer: %+v", ptr)
	}
}

func TestGetPointerNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT user_id, domain, record_id, priority").
		WithArgs("ghost", domain.DomainSkip).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "domain", "record_id", "priority"}))

	_, err := store.GetPointer(context.Background(), "ghost", domain.DomainSkip)
	if !errors.Is(err, settings.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetRecordScansNullableScope(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("SELECT id, domain, priority, company_id").
		WithArgs("rec-1").
		WillReturnRows(recordRows().
			AddRow("rec-1", "lead_score", 1, "comp-1", nil, nil, []byte(`{"score_threshold":20}`), now, now))

	rec, err := store.GetRecord(context.Background(), "rec-1")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.SubDepartmentID != nil || rec.UserID != nil {
		t.Fatalf("admin record should have nil scope pointers: %+v", rec)
	}
	if rec.Priority != domain.PriorityAdmin || rec.Domain != domain.DomainLeadScore {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestFindAdminMissingIsFatalSentinel(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, domain, priority, company_id").
		WithArgs("comp-1", domain.DomainSkip, domain.PriorityAdmin).
		WillReturnRows(recordRows())
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(tx settings.Tx) error {
		_, err := tx.FindAdmin(context.Background(), "comp-1", domain.DomainSkip)
		return err
	})
	if !errors.Is(err, settings.ErrAdminMissing) {
		t.Fatalf("expected ErrAdminMissing, got %v", err)
	}
}

func TestRepointUserReportsChanged(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	// First repoint changes the row, the second is a no-op.
	mock.ExpectExec("UPDATE settings_assignments").
		WithArgs("u-1", domain.DomainSkip, "rec-1", domain.PriorityUser).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE settings_assignments").
		WithArgs("u-1", domain.DomainSkip, "rec-1", domain.PriorityUser).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), func(tx settings.Tx) error {
		changed, err := tx.RepointUser(context.Background(), "u-1", domain.DomainSkip, "rec-1", domain.PriorityUser)
		if err != nil {
			return err
		}
		if !changed {
			t.Error("first repoint should report changed")
		}
		changed, err = tx.RepointUser(context.Background(), "u-1", domain.DomainSkip, "rec-1", domain.PriorityUser)
		if err != nil {
			return err
		}
		if changed {
			t.Error("identical repoint should be a no-op")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRepointSubDepartmentGuardSkipsUserOverrides(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	// Guard on: the user-priority filter argument is present.
	mock.ExpectQuery("UPDATE settings_assignments a").
		WithArgs("sd-1", domain.DomainTaskSettings, "rec-1", domain.PrioritySubDepartment, domain.PriorityUser).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u-2").AddRow("u-3"))
	mock.ExpectCommit()

	var ids []string
	err := store.WithinTx(context.Background(), func(tx settings.Tx) error {
		var err error
		ids, err = tx.RepointSubDepartment(context.Background(), "sd-1", domain.DomainTaskSettings, "rec-1", domain.PrioritySubDepartment, true)
		return err
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}
	if len(ids) != 2 || ids[0] != "u-2" || ids[1] != "u-3" {
		t.Fatalf("unexpected repointed ids: %v", ids)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDeleteRecordNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM settings_overrides").
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(tx settings.Tx) error {
		return tx.DeleteRecord(context.Background(), "ghost")
	})
	if !errors.Is(err, settings.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
