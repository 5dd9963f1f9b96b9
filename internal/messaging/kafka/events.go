package kafka

import "time"

// Topics брокера.
const (
	// TopicBookingEvents — события переходов брони; ключ — booking_id,
	// события одной брони попадают в одну партицию и сохраняют порядок.
	TopicBookingEvents = "bms.booking.events"
	// TopicDeadLetterQueue — сообщения, не пережившие retry.
	TopicDeadLetterQueue = "bms.dlq"
)

// Kafka headers для retry логики.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// BookingEvent — событие перехода брони, доступное внешним подписчикам
// (нотификации, чат, аналитика).
type BookingEvent struct {
	EventType string                 `json:"event_type"`
	BookingID string                 `json:"booking_id"`
	BuyerID   string                 `json:"buyer_id"`
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewBookingEvent создаёт событие брони.
func NewBookingEvent(eventType, bookingID, buyerID, status string, metadata map[string]interface{}) *BookingEvent {
	return &BookingEvent{
		EventType: eventType,
		BookingID: bookingID,
		BuyerID:   buyerID,
		Status:    status,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}
