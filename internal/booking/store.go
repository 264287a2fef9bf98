package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mindora-health/mindora-platform/internal/timefmt"
	"github.com/mindora-health/mindora-platform/pkg/logging"
)

type querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// claimQuery inserts into the shared slot_claims table. Its primary key spans
// both session kinds, so two concurrent commits for the same
// (provider, date, time) collide here no matter which session table each one
// targets. The per-table partial indexes remain as a same-kind backstop.
const claimQuery = `
	INSERT INTO slot_claims (provider_id, session_date, start_time, kind, session_id)
	VALUES ($1, $2, $3, $4, $5)
`

const releaseClaimQuery = `
	DELETE FROM slot_claims
	WHERE provider_id = $1 AND session_date = $2 AND start_time = $3 AND session_id = $4
`

// Store persists sessions across both session tables. Every write that
// occupies or vacates a slot runs in a transaction together with the
// slot_claims row for that slot; the claim table's unique key, not any
// application-level check, is what makes reservation race-safe across kinds.
type Store struct {
	pool   querier
	logger *logging.Logger
}

// NewStore creates a store backed by pgx pool.
func NewStore(pool *pgxpool.Pool, logger *logging.Logger) *Store {
	if pool == nil {
		panic("booking: pgx pool required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{pool: pool, logger: logger}
}

func newStoreWithQuerier(q querier) *Store {
	if q == nil {
		panic("booking: querier required")
	}
	return &Store{pool: q, logger: logging.Default()}
}

// Insert commits a new session: the slot claim and the session row land in
// one transaction. A unique violation on either comes back as ConflictError;
// two concurrent inserts for the same slot, same kind or not, yield exactly
// one success.
func (s *Store) Insert(ctx context.Context, session *Session) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("booking: begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, claimQuery,
		session.ProviderID, session.Date, session.StartTime, session.Kind, session.ID,
	); err != nil {
		if isUniqueViolation(err) {
			return &ConflictError{Reason: "slot already booked"}
		}
		return fmt.Errorf("booking: claim slot: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, provider_id, client_id, session_date, start_time, status, reminder_sent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, NOW(), NOW())
		RETURNING created_at, updated_at
	`, session.Kind.table())

	err = tx.QueryRow(ctx, query,
		session.ID,
		session.ProviderID,
		session.ClientID,
		session.Date,
		session.StartTime,
		session.Status,
	).Scan(&session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &ConflictError{Reason: "slot already booked"}
		}
		return fmt.Errorf("booking: insert session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("booking: commit insert: %w", err)
	}
	return nil
}

// Get loads a session by kind and id.
func (s *Store) Get(ctx context.Context, kind Kind, id uuid.UUID) (*Session, error) {
	query := fmt.Sprintf(`
		SELECT id, provider_id, client_id, session_date, start_time, status, reminder_sent, created_at, updated_at
		FROM %s
		WHERE id = $1
	`, kind.table())

	session, err := scanSession(s.pool.QueryRow(ctx, query, id), kind)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("booking: load session: %w", err)
	}
	return session, nil
}

// UpdateSchedule atomically moves a session to a new (date, time): it claims
// the target slot, releases the old one, and rewrites the row in one
// transaction, marking it rescheduled and clearing the reminder flag. A held
// target slot of either kind surfaces as ConflictError.
func (s *Store) UpdateSchedule(ctx context.Context, kind Kind, id uuid.UUID, date, startTime string) (*Session, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("booking: begin reschedule: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lockQuery := fmt.Sprintf(`
		SELECT provider_id, session_date, start_time
		FROM %s
		WHERE id = $1
		FOR UPDATE
	`, kind.table())

	var providerID, oldTime string
	var oldDate time.Time
	if err := tx.QueryRow(ctx, lockQuery, id).Scan(&providerID, &oldDate, &oldTime); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("booking: load session for reschedule: %w", err)
	}

	if _, err := tx.Exec(ctx, claimQuery, providerID, date, startTime, kind, id); err != nil {
		if isUniqueViolation(err) {
			return nil, &ConflictError{Reason: "slot already booked"}
		}
		return nil, fmt.Errorf("booking: claim slot: %w", err)
	}
	if _, err := tx.Exec(ctx, releaseClaimQuery,
		providerID, oldDate.Format(time.DateOnly), oldTime, id,
	); err != nil {
		return nil, fmt.Errorf("booking: release old slot: %w", err)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET session_date = $2, start_time = $3, status = $4, reminder_sent = FALSE, updated_at = NOW()
		WHERE id = $1
		RETURNING id, provider_id, client_id, session_date, start_time, status, reminder_sent, created_at, updated_at
	`, kind.table())

	session, err := scanSession(tx.QueryRow(ctx, query, id, date, startTime, StatusRescheduled), kind)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &ConflictError{Reason: "slot already booked"}
		}
		return nil, fmt.Errorf("booking: reschedule session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("booking: commit reschedule: %w", err)
	}
	return session, nil
}

// UpdateStatus sets a session's status. Cancellation releases the slot claim
// in the same transaction so the slot is immediately rebookable by either
// kind.
func (s *Store) UpdateStatus(ctx context.Context, kind Kind, id uuid.UUID, status Status) (*Session, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("booking: begin status update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING id, provider_id, client_id, session_date, start_time, status, reminder_sent, created_at, updated_at
	`, kind.table())

	session, err := scanSession(tx.QueryRow(ctx, query, id, status), kind)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("booking: update status: %w", err)
	}

	if status == StatusCancelled {
		if _, err := tx.Exec(ctx, `DELETE FROM slot_claims WHERE session_id = $1`, id); err != nil {
			return nil, fmt.Errorf("booking: release slot claim: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("booking: commit status update: %w", err)
	}
	return session, nil
}

// BookedTimes returns the canonical start times occupied by active sessions
// of either kind on (provider, date). Legacy rows with unparsable times are
// logged and skipped rather than guessed at.
func (s *Store) BookedTimes(ctx context.Context, providerID, date string) (map[string]struct{}, error) {
	query := `
		SELECT start_time FROM therapy_sessions
		WHERE provider_id = $1 AND session_date = $2 AND status <> 'cancelled'
		UNION ALL
		SELECT start_time FROM assessment_sessions
		WHERE provider_id = $1 AND session_date = $2 AND status <> 'cancelled'
	`
	rows, err := s.pool.Query(ctx, query, providerID, date)
	if err != nil {
		return nil, fmt.Errorf("booking: load booked times: %w", err)
	}
	defer rows.Close()

	times := make(map[string]struct{})
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("booking: scan booked time: %w", err)
		}
		canonical, err := timefmt.Normalize(raw)
		if err != nil {
			s.logger.Warn("booking: unparsable stored session time", "provider_id", providerID, "date", date, "time", raw)
			continue
		}
		times[canonical] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("booking: iterate booked times: %w", err)
	}
	return times, nil
}

func scanSession(row pgx.Row, kind Kind) (*Session, error) {
	var session Session
	var date time.Time
	if err := row.Scan(
		&session.ID,
		&session.ProviderID,
		&session.ClientID,
		&date,
		&session.StartTime,
		&session.Status,
		&session.ReminderSent,
		&session.CreatedAt,
		&session.UpdatedAt,
	); err != nil {
		return nil, err
	}
	session.Date = date.Format(time.DateOnly)
	session.Kind = kind
	return &session, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
