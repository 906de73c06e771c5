package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
)

// DB is the subset of pgxpool.Pool used by PostgresAttemptStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresAttemptStore persists attempts and receipts in postgres.
// The schema is created by MigratePostgres.
type PostgresAttemptStore struct {
	db DB
}

// NewPostgresAttemptStore wraps a pool or transaction.
func NewPostgresAttemptStore(db DB) *PostgresAttemptStore {
	return &PostgresAttemptStore{db: db}
}

const attemptColumns = `id, notification_id, tenant_id, channel, recipient_id, address, status,
	attempt_number, next_attempt_at, sent_at, delivered_at, failed_at,
	external_id, response, error, created_at, updated_at`

func (s *PostgresAttemptStore) SaveAttempt(ctx context.Context, a Attempt) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO delivery_attempts (`+attemptColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			attempt_number = EXCLUDED.attempt_number,
			next_attempt_at = EXCLUDED.next_attempt_at,
			sent_at = EXCLUDED.sent_at,
			delivered_at = EXCLUDED.delivered_at,
			failed_at = EXCLUDED.failed_at,
			external_id = EXCLUDED.external_id,
			response = EXCLUDED.response,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at`,
		a.ID, a.NotificationID, a.TenantID, string(a.Channel), a.RecipientID, a.Address, string(a.Status),
		a.AttemptNumber, a.NextAttemptAt, a.SentAt, a.DeliveredAt, a.FailedAt,
		a.ExternalID, a.Response, a.Error, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save delivery attempt %s: %w", a.ID, err)
	}
	return nil
}

func (s *PostgresAttemptStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	row := s.db.QueryRow(ctx, `SELECT `+attemptColumns+` FROM delivery_attempts WHERE id = $1`, id)
	return scanOne(row, id)
}

func (s *PostgresAttemptStore) FindByExternalID(ctx context.Context, channel notifications.Channel, externalID string) (Attempt, error) {
	if externalID == "" {
		return Attempt{}, ErrAttemptNotFound
	}
	row := s.db.QueryRow(ctx, `
		SELECT `+attemptColumns+` FROM delivery_attempts
		WHERE external_id = $1 AND ($2 = '' OR channel = $2)
		ORDER BY created_at DESC
		LIMIT 1`, externalID, string(channel))
	return scanOne(row, externalID)
}

func (s *PostgresAttemptStore) ListAttempts(ctx context.Context, notificationID string) ([]Attempt, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+attemptColumns+` FROM delivery_attempts
		WHERE notification_id = $1
		ORDER BY created_at, id`, notificationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery attempts: %w", err)
	}
	return collectAttempts(rows)
}

func (s *PostgresAttemptStore) ListStale(ctx context.Context, status Status, cutoff time.Time, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+attemptColumns+` FROM delivery_attempts
		WHERE status = $1 AND updated_at < $2
		ORDER BY created_at, id
		LIMIT $3`, string(status), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale delivery attempts: %w", err)
	}
	return collectAttempts(rows)
}

func (s *PostgresAttemptStore) AppendReceipt(ctx context.Context, r Receipt) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO delivery_receipts (id, attempt_id, notification_id, external_id, channel, event, occurred_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.DeliveryAttemptID, r.NotificationID, r.ExternalID, string(r.Channel), string(r.Event), r.Timestamp, r.Metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to append delivery receipt: %w", err)
	}
	return nil
}

func (s *PostgresAttemptStore) Receipts(ctx context.Context, attemptID string) ([]Receipt, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, attempt_id, notification_id, external_id, channel, event, occurred_at, metadata
		FROM delivery_receipts
		WHERE attempt_id = $1
		ORDER BY recorded_at, id`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery receipts: %w", err)
	}
	defer rows.Close()

	out := []Receipt{}
	for rows.Next() {
		var (
			r       Receipt
			channel string
			event   string
		)
		if err := rows.Scan(&r.ID, &r.DeliveryAttemptID, &r.NotificationID, &r.ExternalID, &channel, &event, &r.Timestamp, &r.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan delivery receipt: %w", err)
		}
		r.Channel = notifications.Channel(channel)
		r.Event = ReceiptEvent(event)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresAttemptStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM delivery_attempts WHERE status <> $1 AND updated_at < $2`,
		string(StatusPending), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to trim delivery attempts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresAttemptStore) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.Query(ctx, `SELECT status, count(*) FROM delivery_attempts GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count delivery attempts: %w", err)
	}
	defer rows.Close()

	out := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan attempt count: %w", err)
		}
		out[Status(status)] = n
	}
	return out, rows.Err()
}

func scanOne(row pgx.Row, key string) (Attempt, error) {
	a, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Attempt{}, ErrAttemptNotFound
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("failed to get delivery attempt %s: %w", key, err)
	}
	return a, nil
}

func collectAttempts(rows pgx.Rows) ([]Attempt, error) {
	defer rows.Close()

	out := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAttempt(row pgx.Row) (Attempt, error) {
	var (
		a       Attempt
		channel string
		status  string
	)
	err := row.Scan(
		&a.ID, &a.NotificationID, &a.TenantID, &channel, &a.RecipientID, &a.Address, &status,
		&a.AttemptNumber, &a.NextAttemptAt, &a.SentAt, &a.DeliveredAt, &a.FailedAt,
		&a.ExternalID, &a.Response, &a.Error, &a.CreatedAt, &a.UpdatedAt,
	)
	a.Channel = notifications.Channel(channel)
	a.Status = Status(status)
	return a, err
}
