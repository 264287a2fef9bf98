package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store persists availability records keyed by (provider, date).
type Store struct {
	pool querier
}

// NewStore creates a store backed by pgx pool.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("availability: pgx pool required")
	}
	return &Store{pool: pool}
}

func newStoreWithQuerier(q querier) *Store {
	if q == nil {
		panic("availability: querier required")
	}
	return &Store{pool: q}
}

// Get loads the record for (provider, date), ErrRecordNotFound when absent.
func (s *Store) Get(ctx context.Context, providerID, date string) (*Record, error) {
	query := `
		SELECT provider_id, date, time_slots, is_available, last_updated
		FROM availability_records
		WHERE provider_id = $1 AND date = $2
	`
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, providerID, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("availability: load record: %w", err)
	}
	return rec, nil
}

// ListRange returns the provider's records with from <= date <= to, ordered
// by date.
func (s *Store) ListRange(ctx context.Context, providerID, from, to string) ([]Record, error) {
	query := `
		SELECT provider_id, date, time_slots, is_available, last_updated
		FROM availability_records
		WHERE provider_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date
	`
	rows, err := s.pool.Query(ctx, query, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("availability: list range: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("availability: scan record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("availability: iterate records: %w", err)
	}
	return records, nil
}

// UpsertSlots replaces the candidate slot list for (provider, date).
func (s *Store) UpsertSlots(ctx context.Context, providerID, date string, slots []string) error {
	query := `
		INSERT INTO availability_records (provider_id, date, time_slots, is_available, last_updated)
		VALUES ($1, $2, $3, TRUE, NOW())
		ON CONFLICT (provider_id, date) DO UPDATE SET
			time_slots = EXCLUDED.time_slots,
			is_available = TRUE,
			last_updated = NOW()
	`
	if _, err := s.pool.Exec(ctx, query, providerID, date, slots); err != nil {
		return fmt.Errorf("availability: upsert slots: %w", err)
	}
	return nil
}

// RemoveSlot drops a single canonical slot from the record, used by the
// reservation protocol's best-effort cleanup after a committed booking.
func (s *Store) RemoveSlot(ctx context.Context, providerID, date, slot string) error {
	query := `
		UPDATE availability_records
		SET time_slots = array_remove(time_slots, $3), last_updated = NOW()
		WHERE provider_id = $1 AND date = $2
	`
	if _, err := s.pool.Exec(ctx, query, providerID, date, slot); err != nil {
		return fmt.Errorf("availability: remove slot: %w", err)
	}
	return nil
}

// AddSlot re-adds a canonical slot (idempotent), used when a booking is
// cancelled or moved away from the slot.
func (s *Store) AddSlot(ctx context.Context, providerID, date, slot string) error {
	query := `
		UPDATE availability_records
		SET time_slots = CASE
				WHEN $3 = ANY(time_slots) THEN time_slots
				ELSE array_append(time_slots, $3)
			END,
			last_updated = NOW()
		WHERE provider_id = $1 AND date = $2
	`
	if _, err := s.pool.Exec(ctx, query, providerID, date, slot); err != nil {
		return fmt.Errorf("availability: add slot: %w", err)
	}
	return nil
}

// RemoveSlotsBatch removes slots across multiple dates for one provider in a
// single batched round trip, one statement per affected date. Sync passes use
// this so a provider's reconciliation is one write, not one per slot.
func (s *Store) RemoveSlotsBatch(ctx context.Context, providerID string, removals map[string][]string) error {
	if len(removals) == 0 {
		return nil
	}

	dates := make([]string, 0, len(removals))
	for date := range removals {
		if len(removals[date]) > 0 {
			dates = append(dates, date)
		}
	}
	if len(dates) == 0 {
		return nil
	}
	sort.Strings(dates)

	query := `
		UPDATE availability_records
		SET time_slots = ARRAY(
				SELECT t.slot FROM unnest(time_slots) WITH ORDINALITY AS t(slot, ord)
				WHERE t.slot <> ALL($3::text[])
				ORDER BY t.ord
			),
			last_updated = NOW()
		WHERE provider_id = $1 AND date = $2
	`
	batch := &pgx.Batch{}
	for _, date := range dates {
		batch.Queue(query, providerID, date, removals[date])
	}

	results := s.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()
	for range dates {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("availability: batch remove slots: %w", err)
		}
	}
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var date time.Time
	if err := row.Scan(&rec.ProviderID, &date, &rec.TimeSlots, &rec.IsAvailable, &rec.LastUpdated); err != nil {
		return nil, err
	}
	rec.Date = date.Format(time.DateOnly)
	return &rec, nil
}

// BlockStore persists recurring weekly blocks, at most one per
// (provider, weekday).
type BlockStore struct {
	pool querier
}

// NewBlockStore creates a block store backed by pgx pool.
func NewBlockStore(pool *pgxpool.Pool) *BlockStore {
	if pool == nil {
		panic("availability: pgx pool required")
	}
	return &BlockStore{pool: pool}
}

func newBlockStoreWithQuerier(q querier) *BlockStore {
	if q == nil {
		panic("availability: querier required")
	}
	return &BlockStore{pool: q}
}

// Upsert creates or replaces the block for (provider, weekday).
func (s *BlockStore) Upsert(ctx context.Context, block RecurringBlock) error {
	if block.DayOfWeek < 0 || block.DayOfWeek > 6 {
		return ErrInvalidDayOfWeek
	}
	query := `
		INSERT INTO recurring_blocks (provider_id, day_of_week, block_entire_day, slots)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider_id, day_of_week) DO UPDATE SET
			block_entire_day = EXCLUDED.block_entire_day,
			slots = EXCLUDED.slots
	`
	if _, err := s.pool.Exec(ctx, query, block.ProviderID, block.DayOfWeek, block.BlockEntireDay, block.Slots); err != nil {
		return fmt.Errorf("availability: upsert block: %w", err)
	}
	return nil
}

// Delete removes the block for (provider, weekday); default slots apply again
// going forward.
func (s *BlockStore) Delete(ctx context.Context, providerID string, dayOfWeek int) error {
	if dayOfWeek < 0 || dayOfWeek > 6 {
		return ErrInvalidDayOfWeek
	}
	query := `DELETE FROM recurring_blocks WHERE provider_id = $1 AND day_of_week = $2`
	if _, err := s.pool.Exec(ctx, query, providerID, dayOfWeek); err != nil {
		return fmt.Errorf("availability: delete block: %w", err)
	}
	return nil
}

// ListByProvider returns all of the provider's blocks.
func (s *BlockStore) ListByProvider(ctx context.Context, providerID string) ([]RecurringBlock, error) {
	query := `
		SELECT provider_id, day_of_week, block_entire_day, slots
		FROM recurring_blocks
		WHERE provider_id = $1
		ORDER BY day_of_week
	`
	rows, err := s.pool.Query(ctx, query, providerID)
	if err != nil {
		return nil, fmt.Errorf("availability: list blocks: %w", err)
	}
	defer rows.Close()

	var blocks []RecurringBlock
	for rows.Next() {
		var block RecurringBlock
		if err := rows.Scan(&block.ProviderID, &block.DayOfWeek, &block.BlockEntireDay, &block.Slots); err != nil {
			return nil, fmt.Errorf("availability: scan block: %w", err)
		}
		blocks = append(blocks, block)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("availability: iterate blocks: %w", err)
	}
	return blocks, nil
}
