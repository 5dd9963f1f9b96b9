package memory

import (
	"sync"
	"time"

	"github.com/vmaslennikov/bms/internal/domain"
)

// AuditRepository — in-memory журнал переходов.
type AuditRepository struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

// NewAuditRepository создаёт пустой журнал.
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

// Append добавляет событие в журнал.
func (r *AuditRepository) Append(event domain.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	r.events = append(r.events, event)
	return nil
}

// ListByBooking возвращает события брони в порядке записи.
func (r *AuditRepository) ListByBooking(bookingID string) ([]domain.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.AuditEvent
	for _, e := range r.events {
		if e.BookingID == bookingID {
			result = append(result, e)
		}
	}
	return result, nil
}
