package booking

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
)

// memSessionRepo enforces the same slot uniqueness the slot_claims key does:
// one holder per (provider, date, time) regardless of kind, so concurrency
// behavior can be exercised without a database.
type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	slots    map[string]uuid.UUID // provider|date|time -> session id
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{
		sessions: make(map[uuid.UUID]*Session),
		slots:    make(map[string]uuid.UUID),
	}
}

func slotKey(providerID, date, startTime string) string {
	return providerID + "|" + date + "|" + startTime
}

func (r *memSessionRepo) Insert(ctx context.Context, session *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := slotKey(session.ProviderID, session.Date, session.StartTime)
	if _, taken := r.slots[key]; taken {
		return &ConflictError{Reason: "slot already booked"}
	}
	copied := *session
	r.sessions[session.ID] = &copied
	r.slots[key] = session.ID
	return nil
}

func (r *memSessionRepo) Get(ctx context.Context, kind Kind, id uuid.UUID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (r *memSessionRepo) UpdateSchedule(ctx context.Context, kind Kind, id uuid.UUID, date, startTime string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	key := slotKey(session.ProviderID, date, startTime)
	if holder, taken := r.slots[key]; taken && holder != id {
		return nil, &ConflictError{Reason: "slot already booked"}
	}
	delete(r.slots, slotKey(session.ProviderID, session.Date, session.StartTime))
	session.Date = date
	session.StartTime = startTime
	session.Status = StatusRescheduled
	session.ReminderSent = false
	r.slots[key] = id
	copied := *session
	return &copied, nil
}

func (r *memSessionRepo) UpdateStatus(ctx context.Context, kind Kind, id uuid.UUID, status Status) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	session.Status = status
	if status == StatusCancelled {
		delete(r.slots, slotKey(session.ProviderID, session.Date, session.StartTime))
	}
	copied := *session
	return &copied, nil
}

// stubSlots serves a fixed free-slot set per provider|date.
type stubSlots struct {
	free map[string][]string
	err  error
}

func (s *stubSlots) FreeSlots(ctx context.Context, providerID, date string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.free[providerID+"|"+date], nil
}

type recordingCleaner struct {
	mu      sync.Mutex
	removed []string
	added   []string
	err     error
}

func (c *recordingCleaner) RemoveSlot(ctx context.Context, providerID, date, slot string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.removed = append(c.removed, slotKey(providerID, date, slot))
	return nil
}

func (c *recordingCleaner) AddSlot(ctx context.Context, providerID, date, slot string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.added = append(c.added, slotKey(providerID, date, slot))
	return nil
}

type recordingNotifier struct {
	mu          sync.Mutex
	booked      int
	rescheduled int
	err         error
}

func (n *recordingNotifier) SessionBooked(ctx context.Context, session *Session) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.booked++
	return n.err
}

func (n *recordingNotifier) SessionRescheduled(ctx context.Context, session *Session) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rescheduled++
	return n.err
}

func newTestService(t *testing.T, repo SessionRepo, slots SlotSource, cleaner RecordCleaner, notifier Notifier) *Service {
	t.Helper()
	svc, err := NewService(ServiceConfig{
		Sessions: repo,
		Slots:    slots,
		Records:  cleaner,
		Notifier: notifier,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestReserveCommitsFreeSlot(t *testing.T) {
	repo := newMemSessionRepo()
	cleaner := &recordingCleaner{}
	notifier := &recordingNotifier{}
	svc := newTestService(t, repo,
		&stubSlots{free: map[string][]string{"p1|2025-01-10": {"14:00", "15:00", "16:00"}}},
		cleaner, notifier)

	session, err := svc.Reserve(context.Background(), ReserveInput{
		ProviderID: "p1", ClientID: "c1", Date: "2025-01-10", Time: "3:00 PM", Kind: KindTherapy,
	})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if session.StartTime != "15:00" || session.Status != StatusBooked || session.Kind != KindTherapy {
		t.Fatalf("unexpected session: %+v", session)
	}
	if len(cleaner.removed) != 1 || cleaner.removed[0] != "p1|2025-01-10|15:00" {
		t.Errorf("availability cleanup not recorded: %v", cleaner.removed)
	}
	if notifier.booked != 1 {
		t.Errorf("expected one booking notification, got %d", notifier.booked)
	}
}

func TestReserveValidation(t *testing.T) {
	svc := newTestService(t, newMemSessionRepo(), &stubSlots{}, nil, nil)

	cases := []ReserveInput{
		{ProviderID: "", ClientID: "c1", Date: "2025-01-10", Time: "15:00", Kind: KindTherapy},
		{ProviderID: "p1", ClientID: "", Date: "2025-01-10", Time: "15:00", Kind: KindTherapy},
		{ProviderID: "p1", ClientID: "c1", Date: "10/01/2025", Time: "15:00", Kind: KindTherapy},
		{ProviderID: "p1", ClientID: "c1", Date: "2025-01-10", Time: "sometime", Kind: KindTherapy},
		{ProviderID: "p1", ClientID: "c1", Date: "2025-01-10", Time: "15:00", Kind: "couples"},
	}
	for _, input := range cases {
		_, err := svc.Reserve(context.Background(), input)
		if !IsValidation(err) {
			t.Errorf("input %+v: expected ValidationError, got %v", input, err)
		}
	}
}

func TestReserveSlotGoneIsConflict(t *testing.T) {
	svc := newTestService(t, newMemSessionRepo(),
		&stubSlots{free: map[string][]string{"p1|2025-01-10": {"14:00"}}}, nil, nil)

	_, err := svc.Reserve(context.Background(), ReserveInput{
		ProviderID: "p1", ClientID: "c1", Date: "2025-01-10", Time: "15:00", Kind: KindTherapy,
	})
	if !IsConflict(err) {
		t.Fatalf("expected ConflictError for unavailable slot, got %v", err)
	}
}

func TestReserveConcurrentExactlyOneWins(t *testing.T) {
	repo := newMemSessionRepo()
	svc := newTestService(t, repo,
		&stubSlots{free: map[string][]string{"p1|2025-01-10": {"15:00"}}}, nil, nil)

	// Kinds alternate: therapy and assessment compete for the same slot.
	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			kind := KindTherapy
			if n%2 == 1 {
				kind = KindAssessment
			}
			_, err := svc.Reserve(context.Background(), ReserveInput{
				ProviderID: "p1", ClientID: "c" + string(rune('a'+n)), Date: "2025-01-10", Time: "15:00", Kind: kind,
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case IsConflict(err):
			conflicts++
		default:
			t.Fatalf("unexpected error type: %v", err)
		}
	}
	if wins != 1 || conflicts != attempts-1 {
		t.Fatalf("expected exactly one winner, got wins=%d conflicts=%d", wins, conflicts)
	}
}

func TestReserveCrossKindSameSlotConflicts(t *testing.T) {
	repo := newMemSessionRepo()
	svc := newTestService(t, repo,
		&stubSlots{free: map[string][]string{"p1|2025-01-10": {"15:00"}}}, nil, nil)

	if _, err := svc.Reserve(context.Background(), ReserveInput{
		ProviderID: "p1", ClientID: "c1", Date: "2025-01-10", Time: "15:00", Kind: KindTherapy,
	}); err != nil {
		t.Fatalf("Reserve therapy: %v", err)
	}

	// The slot lives in a different table but the same conflict domain.
	_, err := svc.Reserve(context.Background(), ReserveInput{
		ProviderID: "p1", ClientID: "c2", Date: "2025-01-10", Time: "15:00", Kind: KindAssessment,
	})
	if !IsConflict(err) {
		t.Fatalf("expected ConflictError for cross-kind double booking, got %v", err)
	}
}

func TestReserveNotifyFailureIsSwallowed(t *testing.T) {
	repo := newMemSessionRepo()
	notifier := &recordingNotifier{err: errors.New("smtp down")}
	cleaner := &recordingCleaner{err: errors.New("db flake")}
	svc := newTestService(t, repo,
		&stubSlots{free: map[string][]string{"p1|2025-01-10": {"15:00"}}}, cleaner, notifier)

	if _, err := svc.Reserve(context.Background(), ReserveInput{
		ProviderID: "p1", ClientID: "c1", Date: "2025-01-10", Time: "15:00", Kind: KindTherapy,
	}); err != nil {
		t.Fatalf("best-effort failures must not fail the reservation: %v", err)
	}
}

func TestRescheduleMovesAndFreesOldSlot(t *testing.T) {
	repo := newMemSessionRepo()
	cleaner := &recordingCleaner{}
	slots := &stubSlots{free: map[string][]string{
		"p1|2025-01-10": {"15:00"},
		"p1|2025-01-12": {"10:00"},
	}}
	svc := newTestService(t, repo, slots, cleaner, nil)

	session, err := svc.Reserve(context.Background(), ReserveInput{
		ProviderID: "p1", ClientID: "c1", Date: "2025-01-10", Time: "15:00", Kind: KindTherapy,
	})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	moved, err := svc.Reschedule(context.Background(), KindTherapy, session.ID, "2025-01-12", "10:00 AM")
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if moved.Date != "2025-01-12" || moved.StartTime != "10:00" || moved.Status != StatusRescheduled {
		t.Fatalf("unexpected moved session: %+v", moved)
	}
	if moved.ReminderSent {
		t.Error("reminder flag must reset on reschedule")
	}

	// Old slot is free again: a new reservation for it succeeds.
	if _, err := svc.Reserve(context.Background(), ReserveInput{
		ProviderID: "p1", ClientID: "c2", Date: "2025-01-10", Time: "15:00", Kind: KindTherapy,
	}); err != nil {
		t.Fatalf("old slot should be free after reschedule: %v", err)
	}

	found := false
	for _, added := range cleaner.added {
		if added == "p1|2025-01-10|15:00" {
			found = true
		}
	}
	if !found {
		t.Errorf("old slot not restored to availability record: %v", cleaner.added)
	}
}

func TestRescheduleTargetTaken(t *testing.T) {
	repo := newMemSessionRepo()
	slots := &stubSlots{free: map[string][]string{
		"p1|2025-01-10": {"14:00", "15:00"},
	}}
	svc := newTestService(t, repo, slots, nil, nil)

	first, err := svc.Reserve(context.Background(), ReserveInput{
		ProviderID: "p1", ClientID: "c1", Date: "2025-01-10", Time: "14:00", Kind: KindTherapy,
	})
	if err != nil {
		t.Fatalf("Reserve first: %v", err)
	}
	if _, err := svc.Reserve(context.Background(), ReserveInput{
		ProviderID: "p1", ClientID: "c2", Date: "2025-01-10", Time: "15:00", Kind: KindTherapy,
	}); err != nil {
		t.Fatalf("Reserve second: %v", err)
	}

	// The materializer stub still lists 15:00, simulating a stale read; the
	// storage constraint catches it.
	if _, err := svc.Reschedule(context.Background(), KindTherapy, first.ID, "2025-01-10", "15:00"); !IsConflict(err) {
		t.Fatalf("expected ConflictError when target slot is held, got %v", err)
	}
}

func TestRescheduleCancelledSession(t *testing.T) {
	repo := newMemSessionRepo()
	slots := &stubSlots{free: map[string][]string{"p1|2025-01-10": {"15:00"}}}
	svc := newTestService(t, repo, slots, nil, nil)

	session, err := svc.Reserve(context.Background(), ReserveInput{
		ProviderID: "p1", ClientID: "c1", Date: "2025-01-10", Time: "15:00", Kind: KindTherapy,
	})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, err := svc.Cancel(context.Background(), KindTherapy, session.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := svc.Reschedule(context.Background(), KindTherapy, session.ID, "2025-01-10", "15:00"); !IsValidation(err) {
		t.Fatalf("expected ValidationError for cancelled session, got %v", err)
	}
}

func TestCancelRestoresSlot(t *testing.T) {
	repo := newMemSessionRepo()
	cleaner := &recordingCleaner{}
	slots := &stubSlots{free: map[string][]string{"p1|2025-01-10": {"15:00"}}}
	svc := newTestService(t, repo, slots, cleaner, nil)

	session, err := svc.Reserve(context.Background(), ReserveInput{
		ProviderID: "p1", ClientID: "c1", Date: "2025-01-10", Time: "15:00", Kind: KindTherapy,
	})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	cancelled, err := svc.Cancel(context.Background(), KindTherapy, session.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}
	if len(cleaner.added) != 1 || cleaner.added[0] != "p1|2025-01-10|15:00" {
		t.Errorf("cancelled slot not restored: %v", cleaner.added)
	}
}

func TestRescheduleUnknownSession(t *testing.T) {
	svc := newTestService(t, newMemSessionRepo(), &stubSlots{}, nil, nil)
	if _, err := svc.Reschedule(context.Background(), KindTherapy, uuid.New(), "2025-01-10", "15:00"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
