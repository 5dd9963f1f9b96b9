package domain

import "time"

// BookingStatus описывает жизненный цикл брони в BMS.
type BookingStatus string

const (
	// BookingStatusPending — бронь создана, оплата ещё не подтверждена, инвентарь не зарезервирован.
	BookingStatusPending BookingStatus = "pending"
	// BookingStatusCompleted — оплата сверена, инвентарь зарезервирован, ждём автоподтверждения.
	BookingStatusCompleted BookingStatus = "completed"
	// BookingStatusConfirmed — бронь финализирована; отмена через движок невозможна.
	BookingStatusConfirmed BookingStatus = "confirmed"
	// BookingStatusCanceled — бронь отменена; запись сохраняется для аудита.
	BookingStatusCanceled BookingStatus = "canceled"
)

// Terminal возвращает true для статусов, из которых нет дальнейших переходов.
func (s BookingStatus) Terminal() bool {
	return s == BookingStatusConfirmed || s == BookingStatusCanceled
}

// CanTransition проверяет допустимость перехода по state machine:
// pending → completed → confirmed; pending/completed → canceled.
func (s BookingStatus) CanTransition(to BookingStatus) bool {
	switch s {
	case BookingStatusPending:
		return to == BookingStatusCompleted || to == BookingStatusCanceled
	case BookingStatusCompleted:
		return to == BookingStatusConfirmed || to == BookingStatusCanceled
	default:
		return false
	}
}

// ProductKind определяет вид продукта, на который оформлена позиция брони.
type ProductKind string

const (
	ProductKindFlight        ProductKind = "flight"
	ProductKindAccommodation ProductKind = "accommodation"
	ProductKindTourTicket    ProductKind = "tour_ticket"
	ProductKindTravelItem    ProductKind = "travel_item"
)

// Valid проверяет, что вид продукта относится к поддерживаемым значениям.
func (k ProductKind) Valid() bool {
	switch k {
	case ProductKindFlight, ProductKindAccommodation, ProductKindTourTicket, ProductKindTravelItem:
		return true
	default:
		return false
	}
}

// StayRange описывает период проживания для размещения: ночи [CheckIn, CheckOut).
type StayRange struct {
	CheckIn  time.Time
	CheckOut time.Time
}

// Nights возвращает число ночей в периоде.
func (r StayRange) Nights() int {
	return int(r.CheckOut.Sub(r.CheckIn).Hours() / 24)
}

// Valid проверяет, что период содержит хотя бы одну ночь.
func (r StayRange) Valid() bool {
	return !r.CheckIn.IsZero() && !r.CheckOut.IsZero() && r.CheckOut.After(r.CheckIn)
}

// BookingItem представляет одну позицию брони. Каждая позиция несёт свой вид
// продукта, ссылку и количество — вместо параллельных массивов исходной модели.
type BookingItem struct {
	// ID позиции нужен для однозначной идентификации и аудита.
	ID string
	// Kind — вид продукта (перелёт, размещение, билет, товар).
	Kind ProductKind
	// ProductRef — внешний идентификатор продукта в каталоге.
	ProductRef string
	// RoomRef — идентификатор номера; заполняется только для размещения.
	RoomRef string
	// Quantity — количество единиц (мест, билетов, номеров).
	Quantity int32
	// Stay — период проживания; обязателен для размещения, отсутствует для остальных видов.
	Stay *StayRange
	// CreatedAt фиксирует момент добавления позиции в бронь.
	CreatedAt time.Time
}

// Validate проверяет корректность заполнения позиции.
func (i *BookingItem) Validate() []error {
	var errs []error

	if !i.Kind.Valid() {
		errs = append(errs, ErrItemKindInvalid)
	}
	if i.ProductRef == "" {
		errs = append(errs, ErrItemProductRequired)
	}
	if i.Quantity <= 0 {
		errs = append(errs, ErrItemQtyInvalid)
	}
	if i.Kind == ProductKindAccommodation {
		switch {
		case i.Stay == nil:
			errs = append(errs, ErrItemStayRequired)
		case !i.Stay.Valid():
			errs = append(errs, ErrItemStayInvalid)
		}
	} else if i.Stay != nil {
		errs = append(errs, ErrItemStayUnexpected)
	}

	return errs
}

// BuyerContact — снимок контактных данных покупателя на момент оформления.
// Намеренно отвязан от живого профиля пользователя.
type BuyerContact struct {
	Name    string
	Email   string
	Phone   string
	Address string
}

// Booking агрегирует состояние брони и её позиции.
type Booking struct {
	ID string
	// IdempotencyKey — клиентский ключ; глобально уникален, ровно одна бронь на ключ.
	IdempotencyKey string
	BuyerID        string
	Contact        BuyerContact
	Status         BookingStatus
	Currency       string
	// TotalMinor — итоговая цена в минимальных денежных единицах; при сверке
	// оплаты требуется точное равенство с суммой платежа.
	TotalMinor int64
	Items      []BookingItem
	// Payment заполняется только после успешной сверки и далее неизменяем.
	Payment *PaymentRecord
	// ConfirmDeadline устанавливается при переходе в completed; по нему
	// восстанавливаются отложенные подтверждения после рестарта.
	ConfirmDeadline time.Time
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ValidateInvariants проверяет базовые инварианты брони и возвращает список замечаний.
func (b *Booking) ValidateInvariants() []error {
	var errs []error

	if b.IdempotencyKey == "" {
		errs = append(errs, ErrIdempotencyKeyRequired)
	}
	if b.BuyerID == "" {
		errs = append(errs, ErrBuyerRequired)
	}
	if b.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(b.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if b.TotalMinor <= 0 {
		errs = append(errs, ErrAmountInvalid)
	}

	for _, item := range b.Items {
		errs = append(errs, item.Validate()...)
	}

	// Платёжная запись существует тогда и только тогда, когда инвентарь зарезервирован.
	paid := b.Status == BookingStatusCompleted || b.Status == BookingStatusConfirmed
	if paid && b.Payment == nil {
		errs = append(errs, ErrPaymentRecordMissing)
	}
	if !paid && b.Payment != nil {
		errs = append(errs, ErrPaymentRecordUnexpected)
	}

	return errs
}
