package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vmaslennikov/bms/internal/domain"
)

// OutboxRepository — in-memory очередь исходящих событий.
type OutboxRepository struct {
	mu       sync.Mutex
	messages map[string]domain.OutboxMessage
}

// NewOutboxRepository создаёт пустую очередь.
func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{messages: make(map[string]domain.OutboxMessage)}
}

// Enqueue добавляет запись в статусе pending.
func (r *OutboxRepository) Enqueue(msg domain.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	msg.Status = domain.OutboxStatusPending
	msg.CreatedAt = now
	msg.UpdatedAt = now
	r.messages[msg.ID] = msg
	return nil
}

// PullPending возвращает pending-записи, старые первыми.
func (r *OutboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []domain.OutboxMessage
	for _, msg := range r.messages {
		if msg.Status == domain.OutboxStatusPending {
			pending = append(pending, msg)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// MarkSent помечает запись опубликованной.
func (r *OutboxRepository) MarkSent(id string) error {
	return r.update(id, func(msg *domain.OutboxMessage) {
		msg.Status = domain.OutboxStatusSent
		msg.Attempts++
	})
}

// MarkFailed помечает запись невосстановимо сбойной.
func (r *OutboxRepository) MarkFailed(id string, reason string) error {
	return r.update(id, func(msg *domain.OutboxMessage) {
		msg.Status = domain.OutboxStatusFailed
		msg.Attempts++
		msg.LastError = reason
	})
}

// Stats возвращает срез состояния очереди.
func (r *OutboxRepository) Stats() (domain.OutboxStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats domain.OutboxStats
	for _, msg := range r.messages {
		switch msg.Status {
		case domain.OutboxStatusPending:
			stats.Pending++
			if stats.OldestPendingAt.IsZero() || msg.CreatedAt.Before(stats.OldestPendingAt) {
				stats.OldestPendingAt = msg.CreatedAt
			}
		case domain.OutboxStatusSent:
			stats.Sent++
		case domain.OutboxStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (r *OutboxRepository) update(id string, apply func(*domain.OutboxMessage)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.messages[id]
	if !ok {
		return domain.ErrOutboxMessageNotFound
	}
	apply(&msg)
	msg.UpdatedAt = time.Now()
	r.messages[id] = msg
	return nil
}
