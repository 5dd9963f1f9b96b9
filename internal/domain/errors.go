package domain

import "errors"

// Ошибки валидации: возвращаются списком из ValidateInvariants и
// схлопываются в ValidationError на границе API.
var (
	ErrIdempotencyKeyRequired  = errors.New("idempotency key is required")
	ErrBuyerRequired           = errors.New("buyer id is required")
	ErrCurrencyRequired        = errors.New("currency is required")
	ErrItemsRequired           = errors.New("booking must contain at least one item")
	ErrAmountInvalid           = errors.New("total amount must be positive")
	ErrItemKindInvalid         = errors.New("unknown product kind")
	ErrItemProductRequired     = errors.New("item product reference is required")
	ErrItemQtyInvalid          = errors.New("item quantity must be positive")
	ErrItemStayRequired        = errors.New("accommodation item requires a stay range")
	ErrItemStayInvalid         = errors.New("stay range must contain at least one night")
	ErrItemStayUnexpected      = errors.New("stay range is only valid for accommodation items")
	ErrPaymentRecordMissing    = errors.New("completed booking must carry a payment record")
	ErrPaymentRecordUnexpected = errors.New("payment record is not allowed before completion")

	ErrPaymentExternalIDRequired = errors.New("payment external id is required")
	ErrPaymentAmountInvalid      = errors.New("payment amount must be positive")
)

// Таксономия ошибок движка. Каждая категория различима на границе API
// через errors.Is.
var (
	// ErrValidation оборачивает нарушения инвариантов входных данных.
	ErrValidation = errors.New("validation failed")
	// ErrBookingNotFound — бронь с указанным идентификатором не существует.
	ErrBookingNotFound = errors.New("booking not found")
	// ErrInvalidState — операция неприменима к текущему статусу брони,
	// либо CAS-переход проиграл гонку.
	ErrInvalidState = errors.New("operation not allowed in current booking state")
	// ErrAmountMismatch — сумма платежа не равна итоговой цене брони
	// (недоплата и переплата не различаются).
	ErrAmountMismatch = errors.New("payment amount does not match booking total")
	// ErrInventoryUnavailable — недостаточно ёмкости хотя бы по одной позиции.
	ErrInventoryUnavailable = errors.New("insufficient inventory")
	// ErrPaymentLookupFailed — платёжный шлюз недоступен или платёж не найден.
	ErrPaymentLookupFailed = errors.New("payment lookup failed")
	// ErrStorage — инфраструктурный сбой хранилища; детали остаются в логах.
	ErrStorage = errors.New("storage failure")
)

// Вспомогательные ошибки уровня хранилищ и воркеров.
var (
	// ErrDuplicateIdempotencyKey — попытка создать вторую бронь с тем же ключом.
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")
	// ErrScheduleNotFound — отложенное подтверждение для брони не зарегистрировано.
	ErrScheduleNotFound = errors.New("scheduled confirmation not found")
	// ErrOutboxMessageNotFound — запись outbox не существует.
	ErrOutboxMessageNotFound = errors.New("outbox message not found")
	// ErrPaymentTokenRejected — шлюз отверг учётные данные при выпуске токена.
	ErrPaymentTokenRejected = errors.New("payment gateway rejected credentials")
)
