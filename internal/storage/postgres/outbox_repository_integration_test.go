package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vmaslennikov/bms/internal/domain"
)

func TestOutboxRepository_Integration_Lifecycle(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)

	msg := domain.OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: "booking",
		AggregateID:   "booking-1",
		EventType:     domain.AuditBookingCompleted,
		Payload:       []byte(`{"to":"completed"}`),
	}
	if err := repo.Enqueue(msg); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	pending, err := repo.PullPending(10)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != msg.ID {
		t.Fatalf("unexpected pending messages: %+v", pending)
	}
	if pending[0].Status != domain.OutboxStatusPending {
		t.Fatalf("expected pending status, got %s", pending[0].Status)
	}

	if err := repo.MarkSent(msg.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Pending != 0 || stats.Sent != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if err := repo.MarkFailed(uuid.NewString(), "boom"); !errors.Is(err, domain.ErrOutboxMessageNotFound) {
		t.Fatalf("expected ErrOutboxMessageNotFound, got %v", err)
	}
}

func TestScheduleRepository_Integration_UpsertAndDue(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewScheduleRepository(store)

	now := time.Now().UTC().Truncate(time.Microsecond)
	sc := domain.ScheduledConfirmation{
		BookingID: uuid.NewString(),
		DueAt:     now.Add(-time.Minute),
	}
	if err := repo.Schedule(sc); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	// Повторная регистрация обновляет дедлайн, не создавая дубликата.
	sc.DueAt = now.Add(time.Hour)
	if err := repo.Schedule(sc); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	due, err := repo.DuePending(now, 10)
	if err != nil {
		t.Fatalf("due pending: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("rescheduled entry must not be due yet, got %+v", due)
	}

	due, err = repo.DuePending(now.Add(2*time.Hour), 10)
	if err != nil {
		t.Fatalf("due pending: %v", err)
	}
	if len(due) != 1 || due[0].BookingID != sc.BookingID {
		t.Fatalf("unexpected due entries: %+v", due)
	}

	if err := repo.MarkAttempt(sc.BookingID); err != nil {
		t.Fatalf("mark attempt: %v", err)
	}
	due, err = repo.DuePending(now.Add(2*time.Hour), 10)
	if err != nil {
		t.Fatalf("due pending: %v", err)
	}
	if due[0].Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", due[0].Attempts)
	}

	if err := repo.Remove(sc.BookingID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	// Повторное снятие отсутствующей записи ошибкой не считается.
	if err := repo.Remove(sc.BookingID); err != nil {
		t.Fatalf("remove missing: %v", err)
	}

	if err := repo.MarkAttempt(sc.BookingID); !errors.Is(err, domain.ErrScheduleNotFound) {
		t.Fatalf("expected ErrScheduleNotFound, got %v", err)
	}
}

func TestAuditRepository_Integration_AppendAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewAuditRepository(store)

	bookingID := uuid.NewString()
	events := []domain.AuditEvent{
		{
			BookingID: bookingID,
			Type:      domain.AuditBookingCreated,
			To:        domain.BookingStatusPending,
			Actor:     "buyer",
			CreatedAt: time.Now().UTC().Add(-time.Minute).Truncate(time.Microsecond),
		},
		{
			BookingID: bookingID,
			Type:      domain.AuditBookingCompleted,
			From:      domain.BookingStatusPending,
			To:        domain.BookingStatusCompleted,
			Actor:     "system",
			CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
		},
	}
	for _, event := range events {
		if err := repo.Append(event); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := repo.ListByBooking(bookingID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Type != domain.AuditBookingCreated || got[1].Type != domain.AuditBookingCompleted {
		t.Fatalf("events out of order: %+v", got)
	}
	if got[0].ID == "" {
		t.Fatal("event id must be generated on append")
	}
}
