package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/vmaslennikov/bms/internal/domain"
	"github.com/vmaslennikov/bms/internal/service/booking"
)

type mockBookingService struct {
	mock.Mock
}

func (m *mockBookingService) CreateBooking(ctx context.Context, req booking.CreateRequest) (domain.Booking, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.Booking), args.Error(1)
}

func (m *mockBookingService) VerifyPayment(ctx context.Context, bookingID, externalPaymentID string) (domain.Booking, error) {
	args := m.Called(ctx, bookingID, externalPaymentID)
	return args.Get(0).(domain.Booking), args.Error(1)
}

func (m *mockBookingService) ConfirmBooking(ctx context.Context, bookingID, actor string) (domain.Booking, error) {
	args := m.Called(ctx, bookingID, actor)
	return args.Get(0).(domain.Booking), args.Error(1)
}

func (m *mockBookingService) CancelBooking(ctx context.Context, bookingID, actor, reason string) (domain.Booking, error) {
	args := m.Called(ctx, bookingID, actor, reason)
	return args.Get(0).(domain.Booking), args.Error(1)
}

func (m *mockBookingService) CancelBookings(ctx context.Context, ids []string, actor, reason string) []booking.CancelResult {
	args := m.Called(ctx, ids, actor, reason)
	return args.Get(0).([]booking.CancelResult)
}

func (m *mockBookingService) GetBooking(ctx context.Context, bookingID string) (domain.Booking, error) {
	args := m.Called(ctx, bookingID)
	return args.Get(0).(domain.Booking), args.Error(1)
}

func (m *mockBookingService) ListBookings(ctx context.Context, buyerID string, limit, offset int) ([]domain.Booking, error) {
	args := m.Called(ctx, buyerID, limit, offset)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *mockBookingService) BookingAudit(ctx context.Context, bookingID string) ([]domain.AuditEvent, error) {
	args := m.Called(ctx, bookingID)
	return args.Get(0).([]domain.AuditEvent), args.Error(1)
}

func sampleBooking(status domain.BookingStatus) domain.Booking {
	now := time.Now().UTC()
	return domain.Booking{
		ID:         "booking-1",
		BuyerID:    "buyer-1",
		Status:     status,
		Currency:   "RUB",
		TotalMinor: 100_000,
		Items: []domain.BookingItem{
			{ID: "item-1", Kind: domain.ProductKindFlight, ProductRef: "FL-1", Quantity: 2, CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newTestContext(t *testing.T) (*httptest.ResponseRecorder, *gin.Context) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	return w, c
}

func TestBookingHandler_Create(t *testing.T) {
	mockService := &mockBookingService{}
	handler := NewBookingHandler(mockService, nil)

	w, c := newTestContext(t)

	body, _ := json.Marshal(createBookingRequest{
		BuyerID:    "buyer-1",
		Currency:   "RUB",
		TotalMinor: 100_000,
		Items: []itemRequest{
			{Kind: "flight", ProductRef: "FL-1", Quantity: 2},
		},
	})
	c.Request = httptest.NewRequest("POST", "/api/v1/bookings", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Request.Header.Set("Idempotency-Key", "key-123")

	mockService.On("CreateBooking", mock.Anything, mock.MatchedBy(func(req booking.CreateRequest) bool {
		return req.IdempotencyKey == "key-123" && req.BuyerID == "buyer-1" && len(req.Items) == 1
	})).Return(sampleBooking(domain.BookingStatusPending), nil)

	handler.create(c)

	assert.Equal(t, http.StatusCreated, w.Code)

	var response bookingResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "booking-1", response.ID)
	assert.Equal(t, "pending", response.Status)
	assert.Len(t, response.Items, 1)

	mockService.AssertExpectations(t)
}

func TestBookingHandler_Create_ValidationError(t *testing.T) {
	mockService := &mockBookingService{}
	handler := NewBookingHandler(mockService, nil)

	w, c := newTestContext(t)

	body, _ := json.Marshal(createBookingRequest{BuyerID: "buyer-1"})
	c.Request = httptest.NewRequest("POST", "/api/v1/bookings", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	mockService.On("CreateBooking", mock.Anything, mock.Anything).
		Return(domain.Booking{}, fmt.Errorf("%w: items are missing", domain.ErrValidation))

	handler.create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation_failed")
}

func TestBookingHandler_Create_BadStayFormat(t *testing.T) {
	handler := NewBookingHandler(&mockBookingService{}, nil)

	w, c := newTestContext(t)

	body, _ := json.Marshal(createBookingRequest{
		BuyerID:    "buyer-1",
		Currency:   "RUB",
		TotalMinor: 1,
		Items: []itemRequest{
			{Kind: "accommodation", ProductRef: "hotel-1", RoomRef: "room-1", Quantity: 1, CheckIn: "not-a-date", CheckOut: "2026-09-05"},
		},
	})
	c.Request = httptest.NewRequest("POST", "/api/v1/bookings", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "check_in")
}

func TestBookingHandler_Verify(t *testing.T) {
	mockService := &mockBookingService{}
	handler := NewBookingHandler(mockService, nil)

	w, c := newTestContext(t)

	body, _ := json.Marshal(verifyPaymentRequest{PaymentID: "pay-1"})
	c.Params = gin.Params{{Key: "id", Value: "booking-1"}}
	c.Request = httptest.NewRequest("POST", "/api/v1/bookings/booking-1/verify", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	completed := sampleBooking(domain.BookingStatusCompleted)
	completed.Payment = &domain.PaymentRecord{ExternalID: "pay-1", AmountMinor: 100_000, Method: "card"}
	mockService.On("VerifyPayment", mock.Anything, "booking-1", "pay-1").Return(completed, nil)

	handler.verify(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var response bookingResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "completed", response.Status)
	assert.NotNil(t, response.Payment)
	assert.Equal(t, "pay-1", response.Payment.ExternalID)
}

func TestBookingHandler_Verify_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"amount mismatch", domain.ErrAmountMismatch, http.StatusUnprocessableEntity, "amount_mismatch"},
		{"inventory unavailable", domain.ErrInventoryUnavailable, http.StatusConflict, "inventory_unavailable"},
		{"invalid state", domain.ErrInvalidState, http.StatusConflict, "invalid_state"},
		{"gateway down", domain.ErrPaymentLookupFailed, http.StatusBadGateway, "payment_lookup_failed"},
		{"not found", domain.ErrBookingNotFound, http.StatusNotFound, "booking_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &mockBookingService{}
			handler := NewBookingHandler(mockService, nil)

			w, c := newTestContext(t)

			body, _ := json.Marshal(verifyPaymentRequest{PaymentID: "pay-1"})
			c.Params = gin.Params{{Key: "id", Value: "booking-1"}}
			c.Request = httptest.NewRequest("POST", "/api/v1/bookings/booking-1/verify", bytes.NewReader(body))
			c.Request.Header.Set("Content-Type", "application/json")

			mockService.On("VerifyPayment", mock.Anything, "booking-1", "pay-1").
				Return(domain.Booking{}, tt.err)

			handler.verify(c)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantCode)
		})
	}
}

func TestBookingHandler_Confirm_DefaultActor(t *testing.T) {
	mockService := &mockBookingService{}
	handler := NewBookingHandler(mockService, nil)

	w, c := newTestContext(t)

	c.Params = gin.Params{{Key: "id", Value: "booking-1"}}
	c.Request = httptest.NewRequest("POST", "/api/v1/bookings/booking-1/confirm", nil)

	mockService.On("ConfirmBooking", mock.Anything, "booking-1", "admin").
		Return(sampleBooking(domain.BookingStatusConfirmed), nil)

	handler.confirm(c)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestBookingHandler_Cancel(t *testing.T) {
	mockService := &mockBookingService{}
	handler := NewBookingHandler(mockService, nil)

	w, c := newTestContext(t)

	body, _ := json.Marshal(cancelRequest{Reason: "changed plans"})
	c.Params = gin.Params{{Key: "id", Value: "booking-1"}}
	c.Request = httptest.NewRequest("POST", "/api/v1/bookings/booking-1/cancel", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	mockService.On("CancelBooking", mock.Anything, "booking-1", "buyer", "changed plans").
		Return(sampleBooking(domain.BookingStatusCanceled), nil)

	handler.cancel(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var response bookingResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "canceled", response.Status)
}

func TestBookingHandler_CancelBulk(t *testing.T) {
	mockService := &mockBookingService{}
	handler := NewBookingHandler(mockService, nil)

	w, c := newTestContext(t)

	body, _ := json.Marshal(bulkCancelRequest{
		BookingIDs: []string{"booking-1", "booking-2"},
		Reason:     "fraud",
	})
	c.Request = httptest.NewRequest("POST", "/api/v1/bookings/cancel", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	results := []booking.CancelResult{
		{BookingID: "booking-1", Booking: sampleBooking(domain.BookingStatusCanceled)},
		{BookingID: "booking-2", Err: domain.ErrInvalidState},
	}
	mockService.On("CancelBookings", mock.Anything, []string{"booking-1", "booking-2"}, "admin", "fraud").
		Return(results)

	handler.cancelBulk(c)

	assert.Equal(t, http.StatusMultiStatus, w.Code)

	var response struct {
		Results []cancelResultResponse `json:"results"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Len(t, response.Results, 2)
	assert.NotNil(t, response.Results[0].Booking)
	assert.Nil(t, response.Results[0].Error)
	assert.NotNil(t, response.Results[1].Error)
	assert.Equal(t, "invalid_state", response.Results[1].Error.Code)
}

func TestBookingHandler_Get_NotFound(t *testing.T) {
	mockService := &mockBookingService{}
	handler := NewBookingHandler(mockService, nil)

	w, c := newTestContext(t)

	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	c.Request = httptest.NewRequest("GET", "/api/v1/bookings/missing", nil)

	mockService.On("GetBooking", mock.Anything, "missing").
		Return(domain.Booking{}, domain.ErrBookingNotFound)

	handler.get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "booking_not_found")
}

func TestBookingHandler_List(t *testing.T) {
	mockService := &mockBookingService{}
	handler := NewBookingHandler(mockService, nil)

	w, c := newTestContext(t)

	c.Request = httptest.NewRequest("GET", "/api/v1/bookings?buyer_id=buyer-1&limit=10", nil)

	mockService.On("ListBookings", mock.Anything, "buyer-1", 10, 0).
		Return([]domain.Booking{sampleBooking(domain.BookingStatusPending)}, nil)

	handler.list(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Bookings []bookingResponse `json:"bookings"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Len(t, response.Bookings, 1)
}

func TestBookingHandler_Audit(t *testing.T) {
	mockService := &mockBookingService{}
	handler := NewBookingHandler(mockService, nil)

	w, c := newTestContext(t)

	c.Params = gin.Params{{Key: "id", Value: "booking-1"}}
	c.Request = httptest.NewRequest("GET", "/api/v1/bookings/booking-1/audit", nil)

	events := []domain.AuditEvent{
		{ID: "ev-1", BookingID: "booking-1", Type: domain.AuditBookingCreated, To: domain.BookingStatusPending, Actor: "buyer", CreatedAt: time.Now().UTC()},
		{ID: "ev-2", BookingID: "booking-1", Type: domain.AuditBookingCanceled, From: domain.BookingStatusPending, To: domain.BookingStatusCanceled, Actor: "buyer", Reason: "changed plans", CreatedAt: time.Now().UTC()},
	}
	mockService.On("BookingAudit", mock.Anything, "booking-1").Return(events, nil)

	handler.audit(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Events []auditEventResponse `json:"events"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Len(t, response.Events, 2)
	assert.Equal(t, "booking.created", response.Events[0].Type)
	assert.Equal(t, "changed plans", response.Events[1].Reason)
}
