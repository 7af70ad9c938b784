package user

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

// PostgresStore persists users in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgres constructs a PostgreSQL-backed user store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx constructs a PostgreSQL-backed user store bound to a transaction.
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

const userColumns = `
	id, email, password_hash, full_name, phone, address, role, is_active,
	last_login_at, deletion_requested_at, scheduled_deletion_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, u *User) error {
	if u == nil {
		return fmt.Errorf("user is required")
	}
	if u.ID.IsNil() {
		u.ID = id.NewUserID()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	_, err := s.execer().ExecContext(ctx, `
		INSERT INTO users (
			id, email, password_hash, full_name, phone, address, role, is_active,
			last_login_at, deletion_requested_at, scheduled_deletion_at, created_at, updated_at
		)
		VALUES ($1, LOWER($2), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		uuid.UUID(u.ID), u.Email, u.PasswordHash, u.FullName, u.Phone, u.Address,
		string(u.Role), u.IsActive, u.LastLoginAt, u.DeletionRequestedAt, u.ScheduledDeletionAt,
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("email already registered: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, userID id.UserID) (*User, error) {
	row := s.execer().QueryRowContext(ctx,
		`SELECT`+userColumns+` FROM users WHERE id = $1`, uuid.UUID(userID))
	return scanUser(row)
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := s.execer().QueryRowContext(ctx,
		`SELECT`+userColumns+` FROM users WHERE email = LOWER($1)`, email)
	return scanUser(row)
}

func (s *PostgresStore) Update(ctx context.Context, u *User) error {
	u.UpdatedAt = time.Now().UTC()

	res, err := s.execer().ExecContext(ctx, `
		UPDATE users
		SET email = LOWER($2), password_hash = $3, full_name = $4, phone = $5,
		    address = $6, role = $7, is_active = $8, last_login_at = $9,
		    deletion_requested_at = $10, scheduled_deletion_at = $11, updated_at = $12
		WHERE id = $1
	`,
		uuid.UUID(u.ID), u.Email, u.PasswordHash, u.FullName, u.Phone, u.Address,
		string(u.Role), u.IsActive, u.LastLoginAt, u.DeletionRequestedAt, u.ScheduledDeletionAt,
		u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("email already registered: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("update user: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID id.UserID) error {
	res, err := s.execer().ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`, uuid.UUID(userID))
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListScheduledForDeletion(ctx context.Context, cutoff time.Time) ([]*User, error) {
	rows, err := s.execer().QueryContext(ctx,
		`SELECT`+userColumns+` FROM users WHERE scheduled_deletion_at <= $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list users scheduled for deletion: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	var userID uuid.UUID
	var role string
	var lastLoginAt, deletionRequestedAt, scheduledDeletionAt sql.NullTime

	err := row.Scan(
		&userID, &u.Email, &u.PasswordHash, &u.FullName, &u.Phone, &u.Address,
		&role, &u.IsActive, &lastLoginAt, &deletionRequestedAt, &scheduledDeletionAt,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	u.ID = id.UserID(userID)
	u.Role = Role(role)
	if lastLoginAt.Valid {
		u.LastLoginAt = &lastLoginAt.Time
	}
	if deletionRequestedAt.Valid {
		u.DeletionRequestedAt = &deletionRequestedAt.Time
	}
	if scheduledDeletionAt.Valid {
		u.ScheduledDeletionAt = &scheduledDeletionAt.Time
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
