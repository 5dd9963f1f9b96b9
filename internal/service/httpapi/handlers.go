// Package httpapi — HTTP-фасад движка бронирований поверх gin.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vmaslennikov/bms/internal/domain"
	"github.com/vmaslennikov/bms/internal/service/booking"
)

// BookingService — операции оркестратора, доступные через HTTP.
type BookingService interface {
	CreateBooking(ctx context.Context, req booking.CreateRequest) (domain.Booking, error)
	VerifyPayment(ctx context.Context, bookingID, externalPaymentID string) (domain.Booking, error)
	ConfirmBooking(ctx context.Context, bookingID, actor string) (domain.Booking, error)
	CancelBooking(ctx context.Context, bookingID, actor, reason string) (domain.Booking, error)
	CancelBookings(ctx context.Context, ids []string, actor, reason string) []booking.CancelResult
	GetBooking(ctx context.Context, bookingID string) (domain.Booking, error)
	ListBookings(ctx context.Context, buyerID string, limit, offset int) ([]domain.Booking, error)
	BookingAudit(ctx context.Context, bookingID string) ([]domain.AuditEvent, error)
}

// BookingHandler обслуживает HTTP-маршруты жизненного цикла брони.
type BookingHandler struct {
	service BookingService
	logger  *log.Entry
}

// NewBookingHandler создаёт HTTP-обработчик.
func NewBookingHandler(service BookingService, logger *log.Entry) *BookingHandler {
	if logger == nil {
		logger = log.New().WithField("component", "httpapi")
	}
	return &BookingHandler{service: service, logger: logger}
}

// Register вешает маршруты на группу роутера.
func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("/bookings", h.create)
	router.GET("/bookings", h.list)
	router.GET("/bookings/:id", h.get)
	router.GET("/bookings/:id/audit", h.audit)
	router.POST("/bookings/:id/verify", h.verify)
	router.POST("/bookings/:id/confirm", h.confirm)
	router.POST("/bookings/:id/cancel", h.cancel)
	router.POST("/bookings/cancel", h.cancelBulk)
}

type itemRequest struct {
	Kind       string `json:"kind"`
	ProductRef string `json:"product_ref"`
	RoomRef    string `json:"room_ref,omitempty"`
	Quantity   int32  `json:"quantity"`
	CheckIn    string `json:"check_in,omitempty"`
	CheckOut   string `json:"check_out,omitempty"`
}

type createBookingRequest struct {
	BuyerID        string        `json:"buyer_id"`
	ContactName    string        `json:"contact_name"`
	ContactEmail   string        `json:"contact_email"`
	ContactPhone   string        `json:"contact_phone"`
	ContactAddress string        `json:"contact_address"`
	Currency       string        `json:"currency"`
	TotalMinor     int64         `json:"total_minor"`
	Items          []itemRequest `json:"items"`
}

type verifyPaymentRequest struct {
	PaymentID string `json:"payment_id"`
}

type confirmRequest struct {
	Actor string `json:"actor"`
}

type cancelRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

type bulkCancelRequest struct {
	BookingIDs []string `json:"booking_ids"`
	Actor      string   `json:"actor"`
	Reason     string   `json:"reason"`
}

type itemResponse struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	ProductRef string `json:"product_ref"`
	RoomRef    string `json:"room_ref,omitempty"`
	Quantity   int32  `json:"quantity"`
	CheckIn    string `json:"check_in,omitempty"`
	CheckOut   string `json:"check_out,omitempty"`
}

type paymentResponse struct {
	ExternalID  string `json:"external_id"`
	AmountMinor int64  `json:"amount_minor"`
	Method      string `json:"method"`
	PaidAt      string `json:"paid_at"`
	VerifiedAt  string `json:"verified_at"`
}

type bookingResponse struct {
	ID              string           `json:"id"`
	BuyerID         string           `json:"buyer_id"`
	Status          string           `json:"status"`
	Currency        string           `json:"currency"`
	TotalMinor      int64            `json:"total_minor"`
	Items           []itemResponse   `json:"items"`
	Payment         *paymentResponse `json:"payment,omitempty"`
	ConfirmDeadline string           `json:"confirm_deadline,omitempty"`
	CreatedAt       string           `json:"created_at"`
	UpdatedAt       string           `json:"updated_at"`
}

type auditEventResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	From      string `json:"from,omitempty"`
	To        string `json:"to"`
	Actor     string `json:"actor"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt string `json:"created_at"`
}

type cancelResultResponse struct {
	BookingID string           `json:"booking_id"`
	Booking   *bookingResponse `json:"booking,omitempty"`
	Error     *errorBody       `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *BookingHandler) create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorBody{Code: "bad_request", Message: err.Error()}})
		return
	}

	create := booking.CreateRequest{
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
		BuyerID:        req.BuyerID,
		Contact: domain.BuyerContact{
			Name:    req.ContactName,
			Email:   req.ContactEmail,
			Phone:   req.ContactPhone,
			Address: req.ContactAddress,
		},
		Currency:   req.Currency,
		TotalMinor: req.TotalMinor,
	}
	for _, item := range req.Items {
		parsed, err := parseItem(item)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errorBody{Code: "bad_request", Message: err.Error()}})
			return
		}
		create.Items = append(create.Items, parsed)
	}

	created, err := h.service.CreateBooking(c.Request.Context(), create)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toBookingResponse(created))
}

func (h *BookingHandler) verify(c *gin.Context) {
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PaymentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorBody{Code: "bad_request", Message: "payment_id is required"}})
		return
	}

	completed, err := h.service.VerifyPayment(c.Request.Context(), c.Param("id"), req.PaymentID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toBookingResponse(completed))
}

func (h *BookingHandler) confirm(c *gin.Context) {
	var req confirmRequest
	// Тело опционально: ручное подтверждение по умолчанию идёт от admin.
	_ = c.ShouldBindJSON(&req)
	if req.Actor == "" {
		req.Actor = "admin"
	}

	confirmed, err := h.service.ConfirmBooking(c.Request.Context(), c.Param("id"), req.Actor)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toBookingResponse(confirmed))
}

func (h *BookingHandler) cancel(c *gin.Context) {
	var req cancelRequest
	_ = c.ShouldBindJSON(&req)
	if req.Actor == "" {
		req.Actor = "buyer"
	}

	canceled, err := h.service.CancelBooking(c.Request.Context(), c.Param("id"), req.Actor, req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toBookingResponse(canceled))
}

func (h *BookingHandler) cancelBulk(c *gin.Context) {
	var req bulkCancelRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.BookingIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorBody{Code: "bad_request", Message: "booking_ids are required"}})
		return
	}
	if req.Actor == "" {
		req.Actor = "admin"
	}

	results := h.service.CancelBookings(c.Request.Context(), req.BookingIDs, req.Actor, req.Reason)

	response := make([]cancelResultResponse, 0, len(results))
	for _, result := range results {
		item := cancelResultResponse{BookingID: result.BookingID}
		if result.Err != nil {
			code, _ := classifyError(result.Err)
			item.Error = &errorBody{Code: code, Message: result.Err.Error()}
		} else {
			resp := toBookingResponse(result.Booking)
			item.Booking = &resp
		}
		response = append(response, item)
	}

	// 207: часть отмен могла завершиться ошибкой, клиент разбирает каждую.
	c.JSON(http.StatusMultiStatus, gin.H{"results": response})
}

func (h *BookingHandler) get(c *gin.Context) {
	found, err := h.service.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toBookingResponse(found))
}

func (h *BookingHandler) list(c *gin.Context) {
	buyerID := c.Query("buyer_id")
	if buyerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorBody{Code: "bad_request", Message: "buyer_id is required"}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	bookings, err := h.service.ListBookings(c.Request.Context(), buyerID, limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		response = append(response, toBookingResponse(b))
	}
	c.JSON(http.StatusOK, gin.H{"bookings": response})
}

func (h *BookingHandler) audit(c *gin.Context) {
	events, err := h.service.BookingAudit(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	response := make([]auditEventResponse, 0, len(events))
	for _, event := range events {
		response = append(response, auditEventResponse{
			ID:        event.ID,
			Type:      event.Type,
			From:      string(event.From),
			To:        string(event.To),
			Actor:     event.Actor,
			Reason:    event.Reason,
			CreatedAt: event.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	c.JSON(http.StatusOK, gin.H{"events": response})
}

// writeError переводит ошибку таксономии движка в HTTP-статус и машинно
// различимый код.
func (h *BookingHandler) writeError(c *gin.Context, err error) {
	code, status := classifyError(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	c.JSON(status, gin.H{"error": errorBody{Code: code, Message: err.Error()}})
}

func classifyError(err error) (string, int) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "validation_failed", http.StatusBadRequest
	case errors.Is(err, domain.ErrBookingNotFound):
		return "booking_not_found", http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state", http.StatusConflict
	case errors.Is(err, domain.ErrAmountMismatch):
		return "amount_mismatch", http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInventoryUnavailable):
		return "inventory_unavailable", http.StatusConflict
	case errors.Is(err, domain.ErrPaymentLookupFailed):
		return "payment_lookup_failed", http.StatusBadGateway
	default:
		return "internal_error", http.StatusInternalServerError
	}
}

func parseItem(item itemRequest) (booking.ItemRequest, error) {
	parsed := booking.ItemRequest{
		Kind:       domain.ProductKind(item.Kind),
		ProductRef: item.ProductRef,
		RoomRef:    item.RoomRef,
		Quantity:   item.Quantity,
	}
	if item.CheckIn != "" || item.CheckOut != "" {
		checkIn, err := time.Parse("2006-01-02", item.CheckIn)
		if err != nil {
			return booking.ItemRequest{}, errors.New("check_in must be formatted as YYYY-MM-DD")
		}
		checkOut, err := time.Parse("2006-01-02", item.CheckOut)
		if err != nil {
			return booking.ItemRequest{}, errors.New("check_out must be formatted as YYYY-MM-DD")
		}
		parsed.Stay = &domain.StayRange{CheckIn: checkIn, CheckOut: checkOut}
	}
	return parsed, nil
}

func toBookingResponse(b domain.Booking) bookingResponse {
	resp := bookingResponse{
		ID:         b.ID,
		BuyerID:    b.BuyerID,
		Status:     string(b.Status),
		Currency:   b.Currency,
		TotalMinor: b.TotalMinor,
		Items:      make([]itemResponse, 0, len(b.Items)),
		CreatedAt:  b.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:  b.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	for _, item := range b.Items {
		itemResp := itemResponse{
			ID:         item.ID,
			Kind:       string(item.Kind),
			ProductRef: item.ProductRef,
			RoomRef:    item.RoomRef,
			Quantity:   item.Quantity,
		}
		if item.Stay != nil {
			itemResp.CheckIn = item.Stay.CheckIn.UTC().Format("2006-01-02")
			itemResp.CheckOut = item.Stay.CheckOut.UTC().Format("2006-01-02")
		}
		resp.Items = append(resp.Items, itemResp)
	}
	if b.Payment != nil {
		resp.Payment = &paymentResponse{
			ExternalID:  b.Payment.ExternalID,
			AmountMinor: b.Payment.AmountMinor,
			Method:      b.Payment.Method,
			PaidAt:      b.Payment.PaidAt.UTC().Format(time.RFC3339Nano),
			VerifiedAt:  b.Payment.VerifiedAt.UTC().Format(time.RFC3339Nano),
		}
	}
	if !b.ConfirmDeadline.IsZero() {
		resp.ConfirmDeadline = b.ConfirmDeadline.UTC().Format(time.RFC3339Nano)
	}
	return resp
}
