package domain

import "time"

// BookingRepository — единственный источник истины по статусу брони.
// Реализации сами ограничивают время операций; все смены статуса проходят
// через условные обновления на паре (id, ожидаемый статус).
type BookingRepository interface {
	// Create сохраняет новую бронь. Возвращает ErrDuplicateIdempotencyKey,
	// если ключ идемпотентности уже занят другой бронью.
	Create(booking Booking) error

	// Get возвращает бронь вместе с позициями и платёжной записью.
	Get(id string) (Booking, error)

	// GetByIdempotencyKey возвращает бронь по клиентскому ключу.
	GetByIdempotencyKey(key string) (Booking, error)

	// ListByBuyer возвращает брони покупателя, новые первыми.
	ListByBuyer(buyerID string, limit, offset int) ([]Booking, error)

	// ListByStatus возвращает брони в заданном статусе; используется
	// восстановлением очереди автоподтверждений после рестарта.
	ListByStatus(status BookingStatus, limit int) ([]Booking, error)

	// UpdateStatus выполняет CAS-переход from → to. Возвращает обновлённую
	// бронь либо ErrInvalidState, если текущий статус не равен from.
	UpdateStatus(id string, from, to BookingStatus) (Booking, error)

	// Complete — CAS-переход pending → completed с одновременной привязкой
	// платёжной записи и дедлайна автоподтверждения. Одно атомарное условное
	// обновление: либо всё, либо ErrInvalidState.
	Complete(id string, payment PaymentRecord, deadline time.Time) (Booking, error)
}

// ScheduleRepository хранит долговечные записи отложенных подтверждений.
type ScheduleRepository interface {
	// Schedule регистрирует автоподтверждение. Идемпотентна по BookingID:
	// повторный вызов обновляет DueAt, не плодя дубликатов.
	Schedule(sc ScheduledConfirmation) error

	// DuePending возвращает записи с DueAt <= now, старые первыми.
	DuePending(now time.Time, limit int) ([]ScheduledConfirmation, error)

	// MarkAttempt увеличивает счётчик срабатываний записи.
	MarkAttempt(bookingID string) error

	// Remove снимает запись после перехода брони в терминальный статус.
	// Отсутствие записи ошибкой не считается.
	Remove(bookingID string) error
}

// OutboxRepository — персистентная очередь исходящих событий.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) error
	PullPending(limit int) ([]OutboxMessage, error)
	MarkSent(id string) error
	MarkFailed(id string, reason string) error
	Stats() (OutboxStats, error)
}

// AuditRepository — append-only журнал переходов брони.
type AuditRepository interface {
	Append(event AuditEvent) error
	ListByBooking(bookingID string) ([]AuditEvent, error)
}
