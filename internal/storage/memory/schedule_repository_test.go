package memory

import (
	"errors"
	"testing"
	"time"

	"github.com/vmaslennikov/bms/internal/domain"
)

func TestScheduleRepository_ScheduleIsIdempotent(t *testing.T) {
	repo := NewScheduleRepository()
	now := time.Now()

	if err := repo.Schedule(domain.ScheduledConfirmation{BookingID: "b-1", DueAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	// Повторная регистрация обновляет DueAt, не создавая дубликата.
	if err := repo.Schedule(domain.ScheduledConfirmation{BookingID: "b-1", DueAt: now.Add(-time.Minute)}); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	due, err := repo.DuePending(now, 10)
	if err != nil {
		t.Fatalf("due pending: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("len = %d, want 1", len(due))
	}
	if due[0].BookingID != "b-1" {
		t.Errorf("booking id = %s, want b-1", due[0].BookingID)
	}
}

func TestScheduleRepository_DuePendingOrderAndLimit(t *testing.T) {
	repo := NewScheduleRepository()
	now := time.Now()

	ids := []struct {
		id  string
		due time.Duration
	}{
		{"b-late", -time.Minute},
		{"b-early", -time.Hour},
		{"b-future", time.Hour},
	}
	for _, s := range ids {
		if err := repo.Schedule(domain.ScheduledConfirmation{BookingID: s.id, DueAt: now.Add(s.due)}); err != nil {
			t.Fatalf("schedule %s: %v", s.id, err)
		}
	}

	due, err := repo.DuePending(now, 10)
	if err != nil {
		t.Fatalf("due pending: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("len = %d, want 2", len(due))
	}
	if due[0].BookingID != "b-early" || due[1].BookingID != "b-late" {
		t.Errorf("order = %s, %s; want b-early, b-late", due[0].BookingID, due[1].BookingID)
	}

	due, _ = repo.DuePending(now, 1)
	if len(due) != 1 || due[0].BookingID != "b-early" {
		t.Errorf("limited pull must return the oldest entry, got %v", due)
	}
}

func TestScheduleRepository_MarkAttemptAndRemove(t *testing.T) {
	repo := NewScheduleRepository()
	now := time.Now()

	if err := repo.MarkAttempt("missing"); !errors.Is(err, domain.ErrScheduleNotFound) {
		t.Fatalf("mark attempt on missing: %v, want ErrScheduleNotFound", err)
	}

	if err := repo.Schedule(domain.ScheduledConfirmation{BookingID: "b-1", DueAt: now.Add(-time.Minute)}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := repo.MarkAttempt("b-1"); err != nil {
		t.Fatalf("mark attempt: %v", err)
	}
	due, _ := repo.DuePending(now, 10)
	if len(due) != 1 || due[0].Attempts != 1 {
		t.Fatalf("attempts not recorded: %v", due)
	}

	if err := repo.Remove("b-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := repo.Remove("b-1"); err != nil {
		t.Fatalf("repeated remove must be a no-op, got %v", err)
	}
	if due, _ := repo.DuePending(now, 10); len(due) != 0 {
		t.Fatalf("entry survived removal: %v", due)
	}
}
