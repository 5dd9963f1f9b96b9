package domain

import "context"

// InventoryAdapter скрывает представление «ёмкости» конкретного вида продукта.
// Reserve и Release обязаны выполнять декремент/инкремент условным обновлением
// на уровне хранилища: никаких read-modify-write последовательностей.
type InventoryAdapter interface {
	// Kind — вид продукта, который обслуживает адаптер.
	Kind() ProductKind
	// Reserve атомарно уменьшает ёмкость под позицию. Возвращает
	// ErrInventoryUnavailable, если ёмкости не хватает хотя бы частично.
	Reserve(ctx context.Context, item BookingItem) error
	// Release возвращает ёмкость. Вызывается при компенсации и отмене;
	// ошибки не откатывают отмену, только логируются вызывающей стороной.
	Release(ctx context.Context, item BookingItem) error
}

// PaymentGateway — клиент внешнего платёжного шлюза.
type PaymentGateway interface {
	// GetPayment возвращает платёж по внешнему идентификатору.
	// ErrPaymentLookupFailed покрывает и недоступность шлюза, и отсутствие платежа.
	GetPayment(ctx context.Context, externalID string) (PaymentRecord, error)
}

// MileageLedger — клиент сервиса накопления миль. Начисление строго best-effort:
// сбой не влияет на результат подтверждения брони.
type MileageLedger interface {
	// Credit начисляет мили и возвращает баланс покупателя после начисления.
	Credit(ctx context.Context, buyerID string, amountMinor int64, reason string) (int64, error)
}

// OutboxPublisher публикует записи outbox во внешний брокер.
type OutboxPublisher interface {
	Publish(msg OutboxMessage) error
}
