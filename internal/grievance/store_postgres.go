package grievance

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

// PostgresStore persists grievances in PostgreSQL. A unique constraint on
// ticket_number turns a generator collision into sentinel.ErrConflict.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgres constructs a PostgreSQL-backed grievance store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx constructs a PostgreSQL-backed grievance store bound to a transaction.
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

const grievanceColumns = `
	id, user_id, ticket_number, subject, description, category, status,
	priority, assigned_to, resolution, resolved_at, sla_deadline,
	escalated_at, escalation_reason, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, g *Grievance) error {
	if g == nil {
		return fmt.Errorf("grievance is required")
	}
	if g.ID.IsNil() {
		g.ID = id.NewGrievanceID()
	}
	now := time.Now().UTC()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now

	_, err := s.execer().ExecContext(ctx, `
		INSERT INTO grievances (
			id, user_id, ticket_number, subject, description, category, status,
			priority, assigned_to, resolution, resolved_at, sla_deadline,
			escalated_at, escalation_reason, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		uuid.UUID(g.ID), uuid.UUID(g.UserID), g.TicketNumber, g.Subject,
		g.Description, string(g.Category), string(g.Status), g.Priority,
		assignedTo(g.AssignedTo), nullString(g.Resolution), g.ResolvedAt,
		g.SLADeadline, g.EscalatedAt, nullString(g.EscalationReason),
		g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("ticket number collision: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create grievance: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetForUser(ctx context.Context, grievanceID id.GrievanceID, userID id.UserID) (*Grievance, error) {
	row := s.execer().QueryRowContext(ctx, `
		SELECT`+grievanceColumns+`
		FROM grievances
		WHERE id = $1 AND user_id = $2
	`, uuid.UUID(grievanceID), uuid.UUID(userID))
	return scanGrievance(row)
}

func (s *PostgresStore) GetByID(ctx context.Context, grievanceID id.GrievanceID) (*Grievance, error) {
	row := s.execer().QueryRowContext(ctx, `
		SELECT`+grievanceColumns+`
		FROM grievances
		WHERE id = $1
	`, uuid.UUID(grievanceID))
	return scanGrievance(row)
}

func (s *PostgresStore) Update(ctx context.Context, g *Grievance) error {
	g.UpdatedAt = time.Now().UTC()

	res, err := s.execer().ExecContext(ctx, `
		UPDATE grievances
		SET status = $2, priority = $3, assigned_to = $4, resolution = $5,
		    resolved_at = $6, escalated_at = $7, escalation_reason = $8,
		    updated_at = $9
		WHERE id = $1
	`,
		uuid.UUID(g.ID), string(g.Status), g.Priority, assignedTo(g.AssignedTo),
		nullString(g.Resolution), g.ResolvedAt, g.EscalatedAt,
		nullString(g.EscalationReason), g.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update grievance: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update grievance rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("grievance not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID) ([]*Grievance, error) {
	rows, err := s.execer().QueryContext(ctx, `
		SELECT`+grievanceColumns+`
		FROM grievances
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("list grievances: %w", err)
	}
	return collectGrievances(rows)
}

func (s *PostgresStore) ListAll(ctx context.Context, filter Filter) ([]*Grievance, int, error) {
	where := " WHERE TRUE"
	var args []any
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Priority != nil {
		args = append(args, *filter.Priority)
		where += fmt.Sprintf(" AND priority = $%d", len(args))
	}

	var total int
	if err := s.execer().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM grievances`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count grievances: %w", err)
	}

	query := `SELECT` + grievanceColumns + ` FROM grievances` + where + ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.execer().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list grievances: %w", err)
	}
	cases, err := collectGrievances(rows)
	if err != nil {
		return nil, 0, err
	}
	return cases, total, nil
}

func (s *PostgresStore) CountByStatus(ctx context.Context, status Status) (int, error) {
	var count int
	err := s.execer().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM grievances WHERE status = $1`, string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count grievances by status: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListOverdue(ctx context.Context, now time.Time) ([]*Grievance, error) {
	rows, err := s.execer().QueryContext(ctx, `
		SELECT`+grievanceColumns+`
		FROM grievances
		WHERE sla_deadline < $1 AND status IN ('pending', 'in_progress')
		ORDER BY created_at DESC
	`, now)
	if err != nil {
		return nil, fmt.Errorf("list overdue grievances: %w", err)
	}
	return collectGrievances(rows)
}

func (s *PostgresStore) DeleteByUser(ctx context.Context, userID id.UserID) (int, error) {
	res, err := s.execer().ExecContext(ctx,
		`DELETE FROM grievances WHERE user_id = $1`, uuid.UUID(userID))
	if err != nil {
		return 0, fmt.Errorf("delete grievances: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete grievances rows: %w", err)
	}
	return int(rows), nil
}

func collectGrievances(rows *sql.Rows) ([]*Grievance, error) {
	defer rows.Close()

	var cases []*Grievance
	for rows.Next() {
		g, err := scanGrievance(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grievances: %w", err)
	}
	return cases, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrievance(row rowScanner) (*Grievance, error) {
	var g Grievance
	var gID, userID uuid.UUID
	var category, status string
	var assigned uuid.NullUUID
	var resolution, escalationReason sql.NullString
	var resolvedAt, escalatedAt sql.NullTime

	err := row.Scan(
		&gID, &userID, &g.TicketNumber, &g.Subject, &g.Description,
		&category, &status, &g.Priority, &assigned, &resolution,
		&resolvedAt, &g.SLADeadline, &escalatedAt, &escalationReason,
		&g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("grievance not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan grievance: %w", err)
	}

	g.ID = id.GrievanceID(gID)
	g.UserID = id.UserID(userID)
	g.Category = Category(category)
	g.Status = Status(status)
	if assigned.Valid {
		assignee := id.UserID(assigned.UUID)
		g.AssignedTo = &assignee
	}
	g.Resolution = resolution.String
	g.EscalationReason = escalationReason.String
	if resolvedAt.Valid {
		g.ResolvedAt = &resolvedAt.Time
	}
	if escalatedAt.Valid {
		g.EscalatedAt = &escalatedAt.Time
	}
	return &g, nil
}

func assignedTo(userID *id.UserID) any {
	if userID == nil {
		return nil
	}
	return uuid.UUID(*userID)
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
