package domain

import "time"

// PaymentRecord — неизменяемый снимок сверенного платежа. Привязывается к
// брони ровно один раз, при переходе pending → completed.
type PaymentRecord struct {
	// ExternalID — идентификатор платежа на стороне шлюза.
	ExternalID string
	// AmountMinor — сумма платежа в минимальных денежных единицах.
	AmountMinor int64
	// Method — способ оплаты в терминах шлюза (card, transfer, ...).
	Method string
	// PaidAt — момент оплаты по данным шлюза.
	PaidAt time.Time
	// VerifiedAt — момент успешной сверки движком.
	VerifiedAt time.Time
}

// Validate проверяет заполненность платёжной записи.
func (p *PaymentRecord) Validate() []error {
	var errs []error
	if p.ExternalID == "" {
		errs = append(errs, ErrPaymentExternalIDRequired)
	}
	if p.AmountMinor <= 0 {
		errs = append(errs, ErrPaymentAmountInvalid)
	}
	return errs
}
