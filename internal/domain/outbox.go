package domain

import "time"

// OutboxStatus — состояние записи транзакционного outbox.
type OutboxStatus string

const (
	// OutboxStatusPending — запись ждёт публикации.
	OutboxStatusPending OutboxStatus = "pending"
	// OutboxStatusSent — запись успешно опубликована в брокер.
	OutboxStatusSent OutboxStatus = "sent"
	// OutboxStatusFailed — публикация исчерпала попытки, запись ушла в DLQ.
	OutboxStatusFailed OutboxStatus = "failed"
)

// OutboxMessage — событие, записанное вместе с изменением брони и
// публикуемое в брокер отдельным воркером.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	// Payload — сериализованное тело события (JSON).
	Payload   []byte
	Status    OutboxStatus
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OutboxStats — срез состояния outbox для метрик воркера.
type OutboxStats struct {
	Pending int
	Sent    int
	Failed  int
	// OldestPendingAt — время создания самой старой pending-записи;
	// ноль, если очередь пуста.
	OldestPendingAt time.Time
}
