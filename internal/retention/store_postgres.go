package retention

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

// PostgresStore persists retention policies in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed policy store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const policyColumns = `
	id, data_type, retention_period_days, description, legal_basis, is_active,
	last_reviewed_at, reviewed_by, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, p *Policy) error {
	if p == nil {
		return fmt.Errorf("policy is required")
	}
	if p.ID.IsNil() {
		p.ID = id.NewPolicyID()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO data_retention_policies (
			id, data_type, retention_period_days, description, legal_basis, is_active,
			last_reviewed_at, reviewed_by, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		uuid.UUID(p.ID), p.DataType, p.RetentionPeriodDays, p.Description, p.LegalBasis,
		p.IsActive, p.LastReviewedAt, reviewedBy(p), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("policy for data type exists: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create retention policy: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByDataType(ctx context.Context, dataType string) (*Policy, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT`+policyColumns+` FROM data_retention_policies WHERE data_type = $1`, dataType)
	return scanPolicy(row)
}

func (s *PostgresStore) Update(ctx context.Context, p *Policy) error {
	p.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE data_retention_policies
		SET retention_period_days = $2, description = $3, legal_basis = $4,
		    is_active = $5, last_reviewed_at = $6, reviewed_by = $7, updated_at = $8
		WHERE id = $1
	`,
		uuid.UUID(p.ID), p.RetentionPeriodDays, p.Description, p.LegalBasis,
		p.IsActive, p.LastReviewedAt, reviewedBy(p), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update retention policy: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update retention policy rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("retention policy not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Policy, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT`+policyColumns+` FROM data_retention_policies ORDER BY data_type`)
	if err != nil {
		return nil, fmt.Errorf("list retention policies: %w", err)
	}
	defer rows.Close()

	var policies []*Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate retention policies: %w", err)
	}
	return policies, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (*Policy, error) {
	var p Policy
	var policyID uuid.UUID
	var description, legalBasis sql.NullString
	var lastReviewedAt sql.NullTime
	var reviewer uuid.NullUUID

	err := row.Scan(
		&policyID, &p.DataType, &p.RetentionPeriodDays, &description, &legalBasis,
		&p.IsActive, &lastReviewedAt, &reviewer, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("retention policy not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan retention policy: %w", err)
	}

	p.ID = id.PolicyID(policyID)
	p.Description = description.String
	p.LegalBasis = legalBasis.String
	if lastReviewedAt.Valid {
		p.LastReviewedAt = &lastReviewedAt.Time
	}
	if reviewer.Valid {
		reviewerID := id.UserID(reviewer.UUID)
		p.ReviewedBy = &reviewerID
	}
	return &p, nil
}

func reviewedBy(p *Policy) any {
	if p.ReviewedBy == nil {
		return nil
	}
	return uuid.UUID(*p.ReviewedBy)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
