package domain

import "time"

// Типы событий аудита. Каждый переход статуса порождает ровно одно событие;
// сверх переходов журнал фиксирует сбои компенсации.
const (
	AuditBookingCreated   = "booking.created"
	AuditBookingCompleted = "booking.completed"
	AuditBookingConfirmed = "booking.confirmed"
	AuditBookingCanceled  = "booking.canceled"

	// AuditReleaseFailed — сбой освобождения инвентаря при компенсации или
	// отмене. Не переход статуса: From/To пусты, детали позиции в Reason.
	// По этим событиям работает ручная сверка инвентаря.
	AuditReleaseFailed = "booking.release_failed"
)

// AuditEvent — структурированная запись о переходе брони между статусами.
// Журнал append-only: события не изменяются и не удаляются.
type AuditEvent struct {
	ID        string
	BookingID string
	Type      string
	// From и To — статусы до и после перехода; From пуст для booking.created.
	From BookingStatus
	To   BookingStatus
	// Actor — инициатор: buyer, scheduler, admin, system.
	Actor string
	// Reason — человекочитаемое пояснение (например причина отмены).
	Reason    string
	CreatedAt time.Time
}
