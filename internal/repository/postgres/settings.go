// Package postgres implements the settings store contract against
// PostgreSQL. The unique indexes on settings_overrides are the authoritative
// conflict signal: a concurrent create for the same scope loses on 23505,
// never by silent overwrite.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/cadence-settings/internal/domain"
	"github.com/ignite/cadence-settings/internal/service/settings"
)

// Store implements settings.Store against PostgreSQL.
type Store struct{ db *sql.DB }

// NewStore creates a Postgres-backed settings store.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// WithinTx runs fn inside one transaction spanning override records and
// assignment pointers.
func (s *Store) WithinTx(ctx context.Context, fn func(tx settings.Tx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback()

	if err := fn(&tx{q: dbTx}); err != nil {
		return err
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetPointer reads the assignment pointer outside any transaction.
func (s *Store) GetPointer(ctx context.Context, userID string, d domain.SettingsDomain) (*domain.AssignmentPointer, error) {
	return scanPointer(s.db.QueryRowContext(ctx, `
		SELECT user_id, domain, record_id, priority
		FROM settings_assignments
		WHERE user_id = $1 AND domain = $2
	`, userID, d))
}

// GetRecord reads a record outside any transaction.
func (s *Store) GetRecord(ctx context.Context, id string) (*domain.OverrideRecord, error) {
	return scanRecord(s.db.QueryRowContext(ctx, selectRecord+` WHERE id = $1`, id))
}

const selectRecord = `
	SELECT id, domain, priority, company_id, sd_id, user_id, payload, created_at, updated_at
	FROM settings_overrides`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*domain.OverrideRecord, error) {
	r := &domain.OverrideRecord{}
	var sdID, userID sql.NullString
	var payload []byte
	err := row.Scan(&r.ID, &r.Domain, &r.Priority, &r.CompanyID, &sdID, &userID, &payload, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, settings.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan override record: %w", err)
	}
	if sdID.Valid {
		r.SubDepartmentID = &sdID.String
	}
	if userID.Valid {
		r.UserID = &userID.String
	}
	r.Payload = json.RawMessage(payload)
	return r, nil
}

func scanPointer(row rowScanner) (*domain.AssignmentPointer, error) {
	p := &domain.AssignmentPointer{}
	err := row.Scan(&p.UserID, &p.Domain, &p.RecordID, &p.Priority)
	if err == sql.ErrNoRows {
		return nil, settings.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan assignment pointer: %w", err)
	}
	return p, nil
}

// isUniqueViolation reports whether err is a Postgres unique-index violation.
func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}

// tx is the transactional view over both stores.
type tx struct{ q *sql.Tx }

func (t *tx) GetRecord(ctx context.Context, id string) (*domain.OverrideRecord, error) {
	return scanRecord(t.q.QueryRowContext(ctx, selectRecord+` WHERE id = $1`, id))
}

func (t *tx) FindAdmin(ctx context.Context, companyID string, d domain.SettingsDomain) (*domain.OverrideRecord, error) {
	rec, err := scanRecord(t.q.QueryRowContext(ctx, selectRecord+`
		WHERE company_id = $1 AND domain = $2 AND priority = $3
	`, companyID, d, domain.PriorityAdmin))
	if err == settings.ErrNotFound {
		// The admin row is provisioned with the company; its absence breaks
		// fallback resolution and must never resolve silently.
		return nil, settings.ErrAdminMissing
	}
	return rec, err
}

func (t *tx) FindBySubDepartment(ctx context.Context, companyID, sdID string, d domain.SettingsDomain) (*domain.OverrideRecord, error) {
	return scanRecord(t.q.QueryRowContext(ctx, selectRecord+`
		WHERE company_id = $1 AND domain = $2 AND priority = $3 AND sd_id = $4
	`, companyID, d, domain.PrioritySubDepartment, sdID))
}

func (t *tx) FindByUser(ctx context.Context, companyID, userID string, d domain.SettingsDomain) (*domain.OverrideRecord, error) {
	return scanRecord(t.q.QueryRowContext(ctx, selectRecord+`
		WHERE company_id = $1 AND domain = $2 AND priority = $3 AND user_id = $4
	`, companyID, d, domain.PriorityUser, userID))
}

func (t *tx) InsertRecord(ctx context.Context, rec *domain.OverrideRecord) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO settings_overrides
			(id, domain, priority, company_id, sd_id, user_id, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`, rec.ID, rec.Domain, rec.Priority, rec.CompanyID, rec.SubDepartmentID, rec.UserID, []byte(rec.Payload))
	if isUniqueViolation(err) {
		return settings.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert override record: %w", err)
	}
	return nil
}

func (t *tx) UpdateRecordPayload(ctx context.Context, id string, payload json.RawMessage) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE settings_overrides SET payload = $2, updated_at = NOW() WHERE id = $1
	`, id, []byte(payload))
	if err != nil {
		return fmt.Errorf("update override payload: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return settings.ErrNotFound
	}
	return nil
}

func (t *tx) UpdateRecordScope(ctx context.Context, id string, sdID, userID *string) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE settings_overrides SET sd_id = $2, user_id = $3, updated_at = NOW() WHERE id = $1
	`, id, sdID, userID)
	if isUniqueViolation(err) {
		return settings.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("update override scope: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return settings.ErrNotFound
	}
	return nil
}

func (t *tx) DeleteRecord(ctx context.Context, id string) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM settings_overrides WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete override record: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return settings.ErrNotFound
	}
	return nil
}

func (t *tx) GetPointer(ctx context.Context, userID string, d domain.SettingsDomain) (*domain.AssignmentPointer, error) {
	return scanPointer(t.q.QueryRowContext(ctx, `
		SELECT user_id, domain, record_id, priority
		FROM settings_assignments
		WHERE user_id = $1 AND domain = $2
	`, userID, d))
}

func (t *tx) RepointUser(ctx context.Context, userID string, d domain.SettingsDomain, recordID string, p domain.Priority) (bool, error) {
	res, err := t.q.ExecContext(ctx, `
		UPDATE settings_assignments
		SET record_id = $3, priority = $4
		WHERE user_id = $1 AND domain = $2
		  AND (record_id <> $3 OR priority <> $4)
	`, userID, d, recordID, p)
	if err != nil {
		return false, fmt.Errorf("repoint user: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (t *tx) RepointSubDepartment(ctx context.Context, sdID string, d domain.SettingsDomain, recordID string, p domain.Priority, guardUserPriority bool) ([]string, error) {
	q := `
		UPDATE settings_assignments a
		SET record_id = $3, priority = $4
		FROM users u
		WHERE a.user_id = u.id
		  AND u.sd_id = $1
		  AND a.domain = $2
		  AND (a.record_id <> $3 OR a.priority <> $4)`
	args := []interface{}{sdID, d, recordID, p}
	if guardUserPriority {
		q += fmt.Sprintf(" AND a.priority <> $%d", len(args)+1)
		args = append(args, domain.PriorityUser)
	}
	q += " RETURNING a.user_id"

	rows, err := t.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("repoint sub-department: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan repointed user: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (t *tx) UsersPointingAt(ctx context.Context, recordID string, d domain.SettingsDomain) ([]string, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT user_id FROM settings_assignments WHERE record_id = $1 AND domain = $2
	`, recordID, d)
	if err != nil {
		return nil, fmt.Errorf("users pointing at: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Interface satisfaction checks.
var (
	_ settings.Store = (*Store)(nil)
	_ settings.Tx    = (*tx)(nil)
)
