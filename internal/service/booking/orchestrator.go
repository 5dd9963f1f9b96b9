// Package booking содержит оркестратор жизненного цикла брони:
// создание с идемпотентностью, сверку оплаты с резервированием инвентаря
// и компенсацией, подтверждение и отмену.
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vmaslennikov/bms/internal/domain"
	"github.com/vmaslennikov/bms/internal/inventory"
	"github.com/vmaslennikov/bms/internal/metrics"
)

// Deps — зависимости оркестратора.
type Deps struct {
	Bookings  domain.BookingRepository
	Schedules domain.ScheduleRepository
	Outbox    domain.OutboxRepository
	Audit     domain.AuditRepository
	Inventory *inventory.Registry
	Payments  domain.PaymentGateway
	Mileage   domain.MileageLedger

	// ConfirmDelay — задержка автоподтверждения после completed.
	ConfirmDelay time.Duration
	// MileageRatePermille — доля суммы брони, начисляемая милями, в промилле.
	// Ноль отключает начисление.
	MileageRatePermille int64

	Logger  *log.Entry
	Metrics *metrics.BookingMetrics
}

// Orchestrator управляет переходами брони. Все смены статуса проходят через
// CAS-обновления хранилища, поэтому конкурирующие вызовы безопасны: проигравший
// получает ErrInvalidState.
type Orchestrator struct {
	deps Deps
}

// NewOrchestrator создаёт рабочий экземпляр оркестратора.
func NewOrchestrator(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = log.New().WithField("component", "booking")
	}
	return &Orchestrator{deps: deps}
}

// CreateRequest — запрос на создание брони.
type CreateRequest struct {
	IdempotencyKey string
	BuyerID        string
	Contact        domain.BuyerContact
	Currency       string
	TotalMinor     int64
	Items          []ItemRequest
}

// ItemRequest — одна позиция запроса.
type ItemRequest struct {
	Kind       domain.ProductKind
	ProductRef string
	RoomRef    string
	Quantity   int32
	Stay       *domain.StayRange
}

// CreateBooking создаёт бронь в статусе pending. Повторный вызов с тем же
// ключом идемпотентности возвращает уже созданную бронь без побочных эффектов.
func (o *Orchestrator) CreateBooking(ctx context.Context, req CreateRequest) (domain.Booking, error) {
	if req.IdempotencyKey != "" {
		if existing, err := o.deps.Bookings.GetByIdempotencyKey(req.IdempotencyKey); err == nil {
			o.deps.Logger.WithFields(log.Fields{
				"booking_id":      existing.ID,
				"idempotency_key": req.IdempotencyKey,
			}).Debug("create replayed by idempotency key")
			return existing, nil
		}
	}

	booking := domain.Booking{
		ID:             uuid.NewString(),
		IdempotencyKey: req.IdempotencyKey,
		BuyerID:        req.BuyerID,
		Contact:        req.Contact,
		Status:         domain.BookingStatusPending,
		Currency:       req.Currency,
		TotalMinor:     req.TotalMinor,
	}
	now := time.Now()
	for _, item := range req.Items {
		booking.Items = append(booking.Items, domain.BookingItem{
			ID:         uuid.NewString(),
			Kind:       item.Kind,
			ProductRef: item.ProductRef,
			RoomRef:    item.RoomRef,
			Quantity:   item.Quantity,
			Stay:       item.Stay,
			CreatedAt:  now,
		})
	}

	if errs := booking.ValidateInvariants(); len(errs) > 0 {
		return domain.Booking{}, fmt.Errorf("%w: %s", domain.ErrValidation, joinErrors(errs))
	}

	if err := o.deps.Bookings.Create(booking); err != nil {
		if errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
			// Проиграли гонку конкурентному создателю с тем же ключом.
			existing, getErr := o.deps.Bookings.GetByIdempotencyKey(req.IdempotencyKey)
			if getErr != nil {
				return domain.Booking{}, fmt.Errorf("%w: %v", domain.ErrStorage, getErr)
			}
			return existing, nil
		}
		return domain.Booking{}, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	created, err := o.deps.Bookings.Get(booking.ID)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordBookingCreated()
	}
	o.emitTransition(&created, domain.AuditBookingCreated, "", created.Status, "buyer", "")
	o.deps.Logger.WithFields(log.Fields{
		"booking_id": created.ID,
		"buyer_id":   created.BuyerID,
		"items":      len(created.Items),
	}).Info("booking created")
	return created, nil
}

// VerifyPayment сверяет оплату и резервирует инвентарь.
// Последовательность: загрузка платежа из шлюза, точная сверка суммы, резерв
// позиций в порядке их следования, CAS pending → completed с привязкой платежа
// и дедлайна. Любой сбой после частичного резерва компенсируется освобождением
// уже занятых позиций в обратном порядке.
func (o *Orchestrator) VerifyPayment(ctx context.Context, bookingID, externalPaymentID string) (domain.Booking, error) {
	start := time.Now()
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordVerifyStarted()
	}
	defer func() {
		if o.deps.Metrics != nil {
			o.deps.Metrics.RecordVerifyFinished()
			o.deps.Metrics.RecordVerifyDuration(time.Since(start))
		}
	}()

	logger := o.deps.Logger.WithFields(log.Fields{
		"booking_id": bookingID,
		"payment_id": externalPaymentID,
	})

	booking, err := o.deps.Bookings.Get(bookingID)
	if err != nil {
		return domain.Booking{}, err
	}
	if booking.Status != domain.BookingStatusPending {
		o.recordVerifyFailed("invalid_state")
		return domain.Booking{}, fmt.Errorf("%w: booking is %s", domain.ErrInvalidState, booking.Status)
	}

	payment, err := o.deps.Payments.GetPayment(ctx, externalPaymentID)
	if err != nil {
		logger.WithError(err).Warn("payment lookup failed")
		o.recordVerifyFailed("lookup")
		if errors.Is(err, domain.ErrPaymentLookupFailed) {
			return domain.Booking{}, err
		}
		return domain.Booking{}, fmt.Errorf("%w: %v", domain.ErrPaymentLookupFailed, err)
	}

	if payment.AmountMinor != booking.TotalMinor {
		logger.WithFields(log.Fields{
			"paid":     payment.AmountMinor,
			"expected": booking.TotalMinor,
		}).Warn("payment amount mismatch")
		o.recordVerifyFailed("amount_mismatch")
		return domain.Booking{}, fmt.Errorf("%w: paid %d, booking total %d",
			domain.ErrAmountMismatch, payment.AmountMinor, booking.TotalMinor)
	}

	reserved, err := o.reserveItems(ctx, booking.Items)
	if err != nil {
		o.releaseItems(ctx, bookingID, reserved)
		logger.WithError(err).Warn("inventory reservation failed")
		o.recordVerifyFailed("inventory")
		return domain.Booking{}, err
	}

	payment.VerifiedAt = time.Now()
	deadline := time.Now().Add(o.deps.ConfirmDelay)
	completed, err := o.deps.Bookings.Complete(bookingID, payment, deadline)
	if err != nil {
		// Бронь увели из pending, пока шла сверка. Резерв не наш — отдаём обратно.
		o.releaseItems(ctx, bookingID, reserved)
		logger.WithError(err).Warn("completion lost the status race")
		o.recordVerifyFailed("status_race")
		return domain.Booking{}, err
	}

	if err := o.deps.Schedules.Schedule(domain.ScheduledConfirmation{
		BookingID: completed.ID,
		DueAt:     deadline,
	}); err != nil {
		// Запись восстановится из дедлайна брони при следующем проходе воркера.
		logger.WithError(err).Error("failed to register scheduled confirmation")
	}

	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordBookingCompleted()
	}
	o.emitTransition(&completed, domain.AuditBookingCompleted,
		domain.BookingStatusPending, completed.Status, "system", "")
	logger.WithField("confirm_deadline", deadline.UTC().Format(time.RFC3339)).
		Info("payment verified, inventory reserved")
	return completed, nil
}

// ConfirmBooking переводит бронь completed → confirmed. Вызывается воркером
// автоподтверждения либо вручную; повторные вызовы гасятся CAS-переходом.
func (o *Orchestrator) ConfirmBooking(ctx context.Context, bookingID, actor string) (domain.Booking, error) {
	confirmed, err := o.deps.Bookings.UpdateStatus(bookingID,
		domain.BookingStatusCompleted, domain.BookingStatusConfirmed)
	if err != nil {
		return domain.Booking{}, err
	}

	if err := o.deps.Schedules.Remove(bookingID); err != nil {
		o.deps.Logger.WithError(err).WithField("booking_id", bookingID).
			Warn("failed to remove scheduled confirmation")
	}

	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordBookingConfirmed()
	}
	o.emitTransition(&confirmed, domain.AuditBookingConfirmed,
		domain.BookingStatusCompleted, confirmed.Status, actor, "")
	o.creditMileage(ctx, &confirmed)

	o.deps.Logger.WithFields(log.Fields{
		"booking_id": bookingID,
		"actor":      actor,
	}).Info("booking confirmed")
	return confirmed, nil
}

// CancelBooking отменяет бронь из pending или completed. Сначала выполняется
// CAS-переход в canceled, затем best-effort освобождение инвентаря: сбой
// освобождения не откатывает отмену, расхождения чинит сверка инвентаря.
func (o *Orchestrator) CancelBooking(ctx context.Context, bookingID, actor, reason string) (domain.Booking, error) {
	booking, err := o.deps.Bookings.Get(bookingID)
	if err != nil {
		return domain.Booking{}, err
	}
	if !booking.Status.CanTransition(domain.BookingStatusCanceled) {
		return domain.Booking{}, fmt.Errorf("%w: booking is %s", domain.ErrInvalidState, booking.Status)
	}
	from := booking.Status

	canceled, err := o.deps.Bookings.UpdateStatus(bookingID, from, domain.BookingStatusCanceled)
	if err != nil {
		return domain.Booking{}, err
	}

	// Инвентарь резервируется только на переходе в completed.
	if from == domain.BookingStatusCompleted {
		o.releaseItems(ctx, bookingID, canceled.Items)
		if err := o.deps.Schedules.Remove(bookingID); err != nil {
			o.deps.Logger.WithError(err).WithField("booking_id", bookingID).
				Warn("failed to remove scheduled confirmation")
		}
	}

	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordBookingCanceled()
	}
	o.emitTransition(&canceled, domain.AuditBookingCanceled, from, canceled.Status, actor, reason)
	o.deps.Logger.WithFields(log.Fields{
		"booking_id": bookingID,
		"from":       from,
		"actor":      actor,
	}).Info("booking canceled")
	return canceled, nil
}

// GetBooking возвращает бронь по идентификатору.
func (o *Orchestrator) GetBooking(ctx context.Context, bookingID string) (domain.Booking, error) {
	return o.deps.Bookings.Get(bookingID)
}

// ListBookings возвращает брони покупателя, новые первыми.
func (o *Orchestrator) ListBookings(ctx context.Context, buyerID string, limit, offset int) ([]domain.Booking, error) {
	return o.deps.Bookings.ListByBuyer(buyerID, limit, offset)
}

// BookingAudit возвращает журнал переходов брони.
func (o *Orchestrator) BookingAudit(ctx context.Context, bookingID string) ([]domain.AuditEvent, error) {
	if _, err := o.deps.Bookings.Get(bookingID); err != nil {
		return nil, err
	}
	return o.deps.Audit.ListByBooking(bookingID)
}

// reserveItems резервирует позиции в порядке их следования. При сбое возвращает
// список уже зарезервированных позиций для компенсации.
func (o *Orchestrator) reserveItems(ctx context.Context, items []domain.BookingItem) ([]domain.BookingItem, error) {
	var reserved []domain.BookingItem
	for _, item := range items {
		adapter, err := o.deps.Inventory.Adapter(item.Kind)
		if err != nil {
			return reserved, fmt.Errorf("%w: %v", domain.ErrInventoryUnavailable, err)
		}
		if err := adapter.Reserve(ctx, item); err != nil {
			return reserved, err
		}
		reserved = append(reserved, item)
	}
	return reserved, nil
}

// releaseItems освобождает позиции в обратном порядке. Ошибка освобождения не
// прерывает обход: позиция фиксируется в аудите для ручной сверки инвентаря.
func (o *Orchestrator) releaseItems(ctx context.Context, bookingID string, items []domain.BookingItem) {
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		adapter, err := o.deps.Inventory.Adapter(item.Kind)
		if err != nil {
			o.deps.Logger.WithError(err).WithFields(log.Fields{
				"booking_id": bookingID,
				"item_id":    item.ID,
			}).Error("no adapter to release item")
			o.recordReleaseFailure(bookingID, item, err)
			continue
		}
		if err := adapter.Release(ctx, item); err != nil {
			o.deps.Logger.WithError(err).WithFields(log.Fields{
				"booking_id": bookingID,
				"item_id":    item.ID,
				"kind":       item.Kind,
			}).Error("release failed")
			o.recordReleaseFailure(bookingID, item, err)
		}
	}
}

// recordReleaseFailure пишет в аудит событие о неосвобождённой позиции
// со всеми деталями, нужными для ручной сверки.
func (o *Orchestrator) recordReleaseFailure(bookingID string, item domain.BookingItem, cause error) {
	detail := fmt.Sprintf("item %s kind=%s product=%s qty=%d", item.ID, item.Kind, item.ProductRef, item.Quantity)
	if item.RoomRef != "" {
		detail += " room=" + item.RoomRef
	}
	event := domain.AuditEvent{
		ID:        uuid.NewString(),
		BookingID: bookingID,
		Type:      domain.AuditReleaseFailed,
		Actor:     "system",
		Reason:    detail + ": " + cause.Error(),
		CreatedAt: time.Now().UTC(),
	}
	if err := o.deps.Audit.Append(event); err != nil {
		o.deps.Logger.WithError(err).WithFields(log.Fields{
			"booking_id": bookingID,
			"item_id":    item.ID,
		}).Error("append release failure audit event failed")
	}
}

// creditMileage начисляет мили за подтверждённую бронь. Строго best-effort.
func (o *Orchestrator) creditMileage(ctx context.Context, booking *domain.Booking) {
	if o.deps.Mileage == nil || o.deps.MileageRatePermille <= 0 {
		return
	}
	amount := booking.TotalMinor * o.deps.MileageRatePermille / 1000
	if amount <= 0 {
		return
	}
	balance, err := o.deps.Mileage.Credit(ctx, booking.BuyerID, amount, "booking "+booking.ID)
	if err != nil {
		o.deps.Logger.WithError(err).WithFields(log.Fields{
			"booking_id": booking.ID,
			"buyer_id":   booking.BuyerID,
		}).Warn("mileage credit failed")
		return
	}
	o.deps.Logger.WithFields(log.Fields{
		"booking_id": booking.ID,
		"buyer_id":   booking.BuyerID,
		"amount":     amount,
		"balance":    balance,
	}).Debug("mileage credited")
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordMileageCredit()
	}
}

func (o *Orchestrator) recordVerifyFailed(reason string) {
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordVerifyFailed(reason)
	}
}

// emitTransition пишет событие аудита и ставит его в outbox.
func (o *Orchestrator) emitTransition(booking *domain.Booking, eventType string, from, to domain.BookingStatus, actor, reason string) {
	now := time.Now().UTC()
	event := domain.AuditEvent{
		ID:        uuid.NewString(),
		BookingID: booking.ID,
		Type:      eventType,
		From:      from,
		To:        to,
		Actor:     actor,
		Reason:    reason,
		CreatedAt: now,
	}
	if err := o.deps.Audit.Append(event); err != nil {
		o.deps.Logger.WithError(err).WithFields(log.Fields{
			"booking_id": booking.ID,
			"event":      eventType,
		}).Error("append audit event failed")
	} else if o.deps.Metrics != nil {
		o.deps.Metrics.RecordAuditEvent()
	}

	payload := map[string]interface{}{
		"booking_id": booking.ID,
		"buyer_id":   booking.BuyerID,
		"from":       string(from),
		"to":         string(to),
		"actor":      actor,
		"ts":         now.Format(time.RFC3339Nano),
	}
	if reason != "" {
		payload["reason"] = reason
	}
	data, err := json.Marshal(payload)
	if err != nil {
		o.deps.Logger.WithError(err).WithFields(log.Fields{
			"booking_id": booking.ID,
			"event":      eventType,
		}).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: "booking",
		AggregateID:   booking.ID,
		EventType:     eventType,
		Payload:       data,
	}
	if err := o.deps.Outbox.Enqueue(msg); err != nil {
		o.deps.Logger.WithError(err).WithFields(log.Fields{
			"booking_id": booking.ID,
			"event":      eventType,
		}).Error("enqueue event failed")
	} else if o.deps.Metrics != nil {
		o.deps.Metrics.RecordOutboxEvent()
	}
}

func joinErrors(errs []error) string {
	parts := make([]string, 0, len(errs))
	for _, err := range errs {
		parts = append(parts, err.Error())
	}
	return strings.Join(parts, "; ")
}
