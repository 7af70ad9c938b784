package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"custodia/internal/sentinel"
	id "custodia/pkg/domain"
)

// PostgresStore persists audit entries in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgres constructs a PostgreSQL-backed audit store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx constructs a PostgreSQL-backed audit store bound to a transaction.
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

func (s *PostgresStore) Append(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("audit entry is required")
	}
	if entry.ID.IsNil() {
		entry.ID = id.NewAuditLogID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var details []byte
	if entry.Details != nil {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
	}

	var actorID any
	if entry.ActorID != nil {
		actorID = uuid.UUID(*entry.ActorID)
	}
	var resourceType, resourceID any
	if entry.Resource != nil {
		resourceType = entry.Resource.Type
		resourceID = entry.Resource.ID
	}

	query := `
		INSERT INTO audit_logs (
			id, actor_id, action, category, severity,
			resource_type, resource_id, details,
			ip_address, user_agent, session_id,
			is_anomaly, anomaly_score, siem_sent, siem_sent_at, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := s.execer().ExecContext(ctx, query,
		uuid.UUID(entry.ID),
		actorID,
		entry.Action,
		string(entry.Category),
		string(entry.Severity),
		resourceType,
		resourceID,
		details,
		nullString(entry.Meta.IPAddress),
		nullString(entry.Meta.UserAgent),
		nullString(entry.Meta.SessionID),
		entry.IsAnomaly,
		entry.AnomalyScore,
		entry.SIEMSent,
		entry.SIEMSentAt,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByActor(ctx context.Context, actorID id.UserID, filter *Filter) ([]*Entry, error) {
	query := selectColumns + ` WHERE actor_id = $1`
	args := []any{uuid.UUID(actorID)}
	query, args = applyFilter(query, args, filter)

	return s.queryEntries(ctx, query, args)
}

func (s *PostgresStore) List(ctx context.Context, filter *Filter) ([]*Entry, error) {
	query := selectColumns + ` WHERE TRUE`
	var args []any
	query, args = applyFilter(query, args, filter)

	return s.queryEntries(ctx, query, args)
}

func (s *PostgresStore) MarkForwarded(ctx context.Context, entryID id.AuditLogID, sentAt time.Time) error {
	res, err := s.execer().ExecContext(ctx, `
		UPDATE audit_logs
		SET siem_sent = TRUE, siem_sent_at = $2
		WHERE id = $1 AND siem_sent = FALSE
	`, uuid.UUID(entryID), sentAt)
	if err != nil {
		return fmt.Errorf("mark audit entry forwarded: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark forwarded rows: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *PostgresStore) AnonymizeByActor(ctx context.Context, actorID id.UserID) (int, error) {
	res, err := s.execer().ExecContext(ctx, `
		UPDATE audit_logs
		SET actor_id = NULL, ip_address = NULL, user_agent = NULL, session_id = NULL
		WHERE actor_id = $1
	`, uuid.UUID(actorID))
	if err != nil {
		return 0, fmt.Errorf("anonymize audit entries: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("anonymize rows: %w", err)
	}
	return int(rows), nil
}

const selectColumns = `
	SELECT id, actor_id, action, category, severity,
	       resource_type, resource_id, details,
	       ip_address, user_agent, session_id,
	       is_anomaly, anomaly_score, siem_sent, siem_sent_at, created_at
	FROM audit_logs`

// applyFilter appends filter predicates, ordering, and pagination.
func applyFilter(query string, args []any, filter *Filter) (string, []any) {
	if filter != nil {
		if filter.Category != nil {
			args = append(args, string(*filter.Category))
			query += fmt.Sprintf(" AND category = $%d", len(args))
		}
		if filter.Since != nil {
			args = append(args, *filter.Since)
			query += fmt.Sprintf(" AND created_at >= $%d", len(args))
		}
	}
	query += " ORDER BY created_at DESC"
	if filter != nil && filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter != nil && filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

func (s *PostgresStore) queryEntries(ctx context.Context, query string, args []any) ([]*Entry, error) {
	rows, err := s.execer().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (*Entry, error) {
	var entry Entry
	var entryID uuid.UUID
	var actorID uuid.NullUUID
	var category, severity string
	var resourceType, resourceID, ipAddress, userAgent, sessionID sql.NullString
	var details []byte
	var anomalyScore sql.NullFloat64
	var siemSentAt sql.NullTime

	if err := rows.Scan(
		&entryID, &actorID, &entry.Action, &category, &severity,
		&resourceType, &resourceID, &details,
		&ipAddress, &userAgent, &sessionID,
		&entry.IsAnomaly, &anomalyScore, &entry.SIEMSent, &siemSentAt, &entry.CreatedAt,
	); err != nil {
		return nil, err
	}

	entry.ID = id.AuditLogID(entryID)
	if actorID.Valid {
		actor := id.UserID(actorID.UUID)
		entry.ActorID = &actor
	}
	entry.Category = Category(category)
	entry.Severity = Severity(severity)
	if resourceType.Valid {
		entry.Resource = &Resource{Type: resourceType.String, ID: resourceID.String}
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &entry.Details); err != nil {
			return nil, fmt.Errorf("unmarshal audit details: %w", err)
		}
	}
	entry.Meta = RequestMeta{
		IPAddress: ipAddress.String,
		UserAgent: userAgent.String,
		SessionID: sessionID.String,
	}
	if anomalyScore.Valid {
		entry.AnomalyScore = &anomalyScore.Float64
	}
	if siemSentAt.Valid {
		entry.SIEMSentAt = &siemSentAt.Time
	}
	return &entry, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
