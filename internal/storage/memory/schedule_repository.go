package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vmaslennikov/bms/internal/domain"
)

// ScheduleRepository — in-memory хранилище отложенных подтверждений.
type ScheduleRepository struct {
	mu   sync.Mutex
	byID map[string]domain.ScheduledConfirmation
}

// NewScheduleRepository создаёт пустое хранилище.
func NewScheduleRepository() *ScheduleRepository {
	return &ScheduleRepository{byID: make(map[string]domain.ScheduledConfirmation)}
}

// Schedule регистрирует или обновляет запись по BookingID.
func (r *ScheduleRepository) Schedule(sc domain.ScheduledConfirmation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if existing, ok := r.byID[sc.BookingID]; ok {
		existing.DueAt = sc.DueAt
		existing.UpdatedAt = now
		r.byID[sc.BookingID] = existing
		return nil
	}

	sc.CreatedAt = now
	sc.UpdatedAt = now
	r.byID[sc.BookingID] = sc
	return nil
}

// DuePending возвращает записи, чьё время наступило, старые первыми.
func (r *ScheduleRepository) DuePending(now time.Time, limit int) ([]domain.ScheduledConfirmation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []domain.ScheduledConfirmation
	for _, sc := range r.byID {
		if !sc.DueAt.After(now) {
			due = append(due, sc)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].DueAt.Before(due[j].DueAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// MarkAttempt увеличивает счётчик срабатываний.
func (r *ScheduleRepository) MarkAttempt(bookingID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sc, ok := r.byID[bookingID]
	if !ok {
		return domain.ErrScheduleNotFound
	}
	sc.Attempts++
	sc.UpdatedAt = time.Now()
	r.byID[bookingID] = sc
	return nil
}

// Remove снимает запись; отсутствие записи не ошибка.
func (r *ScheduleRepository) Remove(bookingID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byID, bookingID)
	return nil
}
