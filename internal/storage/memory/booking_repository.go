// Package memory содержит эталонные in-memory реализации хранилищ.
// Используются в тестах и в dev-режиме без внешних зависимостей; семантика
// условных обновлений совпадает с postgres-реализациями.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vmaslennikov/bms/internal/domain"
)

// BookingRepository — потокобезопасное in-memory хранилище броней.
type BookingRepository struct {
	mu    sync.RWMutex
	byID  map[string]domain.Booking
	byKey map[string]string
}

// NewBookingRepository создаёт пустое хранилище.
func NewBookingRepository() *BookingRepository {
	return &BookingRepository{
		byID:  make(map[string]domain.Booking),
		byKey: make(map[string]string),
	}
}

// Create сохраняет бронь, резервируя её ключ идемпотентности.
func (r *BookingRepository) Create(booking domain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKey[booking.IdempotencyKey]; exists {
		return domain.ErrDuplicateIdempotencyKey
	}

	now := time.Now()
	booking.Version = 1
	booking.CreatedAt = now
	booking.UpdatedAt = now

	r.byID[booking.ID] = cloneBooking(booking)
	r.byKey[booking.IdempotencyKey] = booking.ID
	return nil
}

// Get возвращает копию брони.
func (r *BookingRepository) Get(id string) (domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.byID[id]
	if !ok {
		return domain.Booking{}, domain.ErrBookingNotFound
	}
	return cloneBooking(b), nil
}

// GetByIdempotencyKey возвращает бронь по клиентскому ключу.
func (r *BookingRepository) GetByIdempotencyKey(key string) (domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byKey[key]
	if !ok {
		return domain.Booking{}, domain.ErrBookingNotFound
	}
	return cloneBooking(r.byID[id]), nil
}

// ListByBuyer возвращает брони покупателя, новые первыми.
func (r *BookingRepository) ListByBuyer(buyerID string, limit, offset int) ([]domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Booking
	for _, b := range r.byID {
		if b.BuyerID == buyerID {
			result = append(result, cloneBooking(b))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListByStatus возвращает брони в заданном статусе.
func (r *BookingRepository) ListByStatus(status domain.BookingStatus, limit int) ([]domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Booking
	for _, b := range r.byID {
		if b.Status == status {
			result = append(result, cloneBooking(b))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// UpdateStatus — CAS-переход from → to под общим замком хранилища.
func (r *BookingRepository) UpdateStatus(id string, from, to domain.BookingStatus) (domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.byID[id]
	if !ok {
		return domain.Booking{}, domain.ErrBookingNotFound
	}
	if b.Status != from {
		return domain.Booking{}, domain.ErrInvalidState
	}

	b.Status = to
	b.Version++
	b.UpdatedAt = time.Now()
	r.byID[id] = b
	return cloneBooking(b), nil
}

// Complete — CAS pending → completed с привязкой платежа и дедлайна.
func (r *BookingRepository) Complete(id string, payment domain.PaymentRecord, deadline time.Time) (domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.byID[id]
	if !ok {
		return domain.Booking{}, domain.ErrBookingNotFound
	}
	if b.Status != domain.BookingStatusPending {
		return domain.Booking{}, domain.ErrInvalidState
	}

	p := payment
	b.Status = domain.BookingStatusCompleted
	b.Payment = &p
	b.ConfirmDeadline = deadline
	b.Version++
	b.UpdatedAt = time.Now()
	r.byID[id] = b
	return cloneBooking(b), nil
}

func cloneBooking(b domain.Booking) domain.Booking {
	out := b
	out.Items = make([]domain.BookingItem, len(b.Items))
	copy(out.Items, b.Items)
	for i, item := range b.Items {
		if item.Stay != nil {
			stay := *item.Stay
			out.Items[i].Stay = &stay
		}
	}
	if b.Payment != nil {
		p := *b.Payment
		out.Payment = &p
	}
	return out
}
