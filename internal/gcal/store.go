package gcal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ConnectionStore persists calendar OAuth connections per provider.
type ConnectionStore struct {
	pool rowQuerier
}

// NewConnectionStore creates a store backed by pgx pool.
func NewConnectionStore(pool *pgxpool.Pool) *ConnectionStore {
	if pool == nil {
		panic("gcal: pgx pool required")
	}
	return &ConnectionStore{pool: pool}
}

func newConnectionStoreWithQuerier(q rowQuerier) *ConnectionStore {
	if q == nil {
		panic("gcal: querier required")
	}
	return &ConnectionStore{pool: q}
}

// Get loads a provider's connection, ErrNotConnected when none exists.
func (s *ConnectionStore) Get(ctx context.Context, providerID string) (Connection, error) {
	query := `
		SELECT provider_id, access_token, refresh_token, token_expiry, needs_reconnect, updated_at
		FROM calendar_connections
		WHERE provider_id = $1
	`
	var conn Connection
	if err := s.pool.QueryRow(ctx, query, providerID).Scan(
		&conn.ProviderID,
		&conn.AccessToken,
		&conn.RefreshToken,
		&conn.TokenExpiry,
		&conn.NeedsReconnect,
		&conn.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Connection{}, ErrNotConnected
		}
		return Connection{}, fmt.Errorf("gcal: load connection: %w", err)
	}
	return conn, nil
}

// ListConnected returns provider ids with a usable connection, for sync passes.
func (s *ConnectionStore) ListConnected(ctx context.Context) ([]string, error) {
	query := `
		SELECT provider_id
		FROM calendar_connections
		WHERE needs_reconnect = FALSE
		ORDER BY provider_id
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("gcal: list connections: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("gcal: scan connection row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("gcal: iterate connections: %w", err)
	}
	return ids, nil
}

// Upsert saves the full connection, clearing any reconnect flag. Used by the
// OAuth callback when a provider (re)connects their calendar.
func (s *ConnectionStore) Upsert(ctx context.Context, conn Connection) error {
	query := `
		INSERT INTO calendar_connections (provider_id, access_token, refresh_token, token_expiry, needs_reconnect, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, NOW())
		ON CONFLICT (provider_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expiry = EXCLUDED.token_expiry,
			needs_reconnect = FALSE,
			updated_at = NOW()
	`
	if _, err := s.pool.Exec(ctx, query, conn.ProviderID, conn.AccessToken, conn.RefreshToken, conn.TokenExpiry); err != nil {
		return fmt.Errorf("gcal: upsert connection: %w", err)
	}
	return nil
}

// SaveTokens updates the rotating credentials after a successful refresh.
func (s *ConnectionStore) SaveTokens(ctx context.Context, conn Connection) error {
	query := `
		UPDATE calendar_connections
		SET access_token = $2, refresh_token = $3, token_expiry = $4, updated_at = NOW()
		WHERE provider_id = $1
	`
	if _, err := s.pool.Exec(ctx, query, conn.ProviderID, conn.AccessToken, conn.RefreshToken, conn.TokenExpiry); err != nil {
		return fmt.Errorf("gcal: save tokens: %w", err)
	}
	return nil
}

// MarkNeedsReconnect flags an expired connection so sync passes skip it and
// the provider is prompted to reconnect.
func (s *ConnectionStore) MarkNeedsReconnect(ctx context.Context, providerID string) error {
	query := `
		UPDATE calendar_connections
		SET needs_reconnect = TRUE, updated_at = NOW()
		WHERE provider_id = $1
	`
	if _, err := s.pool.Exec(ctx, query, providerID); err != nil {
		return fmt.Errorf("gcal: mark needs reconnect: %w", err)
	}
	return nil
}

// Delete removes the connection entirely.
func (s *ConnectionStore) Delete(ctx context.Context, providerID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM calendar_connections WHERE provider_id = $1`, providerID); err != nil {
		return fmt.Errorf("gcal: delete connection: %w", err)
	}
	return nil
}
