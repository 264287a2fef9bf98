package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ClientStore resolves client contact details from the clients table. An
// unknown id yields an empty Contact, which the service treats as "no email
// on file" rather than an error.
type ClientStore struct {
	pool rowQuerier
}

// NewClientStore creates a directory backed by pgx pool.
func NewClientStore(pool *pgxpool.Pool) *ClientStore {
	if pool == nil {
		panic("notify: pgx pool required")
	}
	return &ClientStore{pool: pool}
}

func newClientStoreWithQuerier(q rowQuerier) *ClientStore {
	if q == nil {
		panic("notify: querier required")
	}
	return &ClientStore{pool: q}
}

func (s *ClientStore) Contact(ctx context.Context, clientID string) (Contact, error) {
	var contact Contact
	err := s.pool.QueryRow(ctx,
		`SELECT name, email FROM clients WHERE id = $1`, clientID,
	).Scan(&contact.Name, &contact.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, nil
		}
		return Contact{}, fmt.Errorf("notify: load client: %w", err)
	}
	return contact, nil
}

var _ ClientDirectory = (*ClientStore)(nil)
