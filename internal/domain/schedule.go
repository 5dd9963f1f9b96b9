package domain

import "time"

// ScheduledConfirmation — долговечная запись отложенного автоподтверждения.
// Создаётся при переходе брони в completed и переживает рестарты процесса:
// DueAt дублирует ConfirmDeadline брони, по нему воркер восстанавливает очередь.
type ScheduledConfirmation struct {
	BookingID string
	DueAt     time.Time
	// Attempts — число срабатываний воркера по записи; повторные срабатывания
	// безопасны, их гасит CAS-переход completed → confirmed.
	Attempts  int
	CreatedAt time.Time
	UpdatedAt time.Time
}
