package consent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"custodia/internal/sentinel"
	id "custodia/pkg/domain"
)

// PostgresStore persists consent records in PostgreSQL. A partial unique
// index on (user_id, purpose) where status = 'granted' backs the
// one-active-grant invariant under concurrent writers.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgres constructs a PostgreSQL-backed consent store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx constructs a PostgreSQL-backed consent store bound to a transaction.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer() dbExecutor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const consentColumns = `
	id, user_id, purpose, status, version, granted_at, withdrawn_at,
	expires_at, ip_address, user_agent, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("consent record is required")
	}
	if rec.ID.IsNil() {
		rec.ID = id.NewConsentID()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err := s.execer().ExecContext(ctx, `
		INSERT INTO consents (
			id, user_id, purpose, status, version, granted_at, withdrawn_at,
			expires_at, ip_address, user_agent, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		uuid.UUID(rec.ID), uuid.UUID(rec.UserID), string(rec.Purpose),
		string(rec.Status), rec.Version, rec.GrantedAt, rec.WithdrawnAt,
		rec.ExpiresAt, nullString(rec.Meta.IPAddress), nullString(rec.Meta.UserAgent),
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("active consent already exists: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create consent: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetActive(ctx context.Context, userID id.UserID, purpose Purpose) (*Record, error) {
	row := s.execer().QueryRowContext(ctx, `
		SELECT`+consentColumns+`
		FROM consents
		WHERE user_id = $1 AND purpose = $2 AND status = 'granted'
	`, uuid.UUID(userID), string(purpose))
	return scanRecord(row)
}

func (s *PostgresStore) Update(ctx context.Context, rec *Record) error {
	rec.UpdatedAt = time.Now().UTC()

	res, err := s.execer().ExecContext(ctx, `
		UPDATE consents
		SET status = $2, withdrawn_at = $3, updated_at = $4
		WHERE id = $1
	`, uuid.UUID(rec.ID), string(rec.Status), rec.WithdrawnAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update consent: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update consent rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("consent not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID) ([]*Record, error) {
	rows, err := s.execer().QueryContext(ctx, `
		SELECT`+consentColumns+`
		FROM consents
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consents: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) DeleteByUser(ctx context.Context, userID id.UserID) (int, error) {
	res, err := s.execer().ExecContext(ctx,
		`DELETE FROM consents WHERE user_id = $1`, uuid.UUID(userID))
	if err != nil {
		return 0, fmt.Errorf("delete consents: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete consents rows: %w", err)
	}
	return int(rows), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var recID, userID uuid.UUID
	var purpose, status string
	var withdrawnAt, expiresAt sql.NullTime
	var ipAddress, userAgent sql.NullString

	err := row.Scan(
		&recID, &userID, &purpose, &status, &rec.Version, &rec.GrantedAt,
		&withdrawnAt, &expiresAt, &ipAddress, &userAgent, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("consent not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan consent: %w", err)
	}

	rec.ID = id.ConsentID(recID)
	rec.UserID = id.UserID(userID)
	rec.Purpose = Purpose(purpose)
	rec.Status = Status(status)
	if withdrawnAt.Valid {
		rec.WithdrawnAt = &withdrawnAt.Time
	}
	if expiresAt.Valid {
		rec.ExpiresAt = &expiresAt.Time
	}
	rec.Meta = RequestMeta{IPAddress: ipAddress.String, UserAgent: userAgent.String}
	return &rec, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
