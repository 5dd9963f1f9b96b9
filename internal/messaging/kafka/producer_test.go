package kafka

import (
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func TestProducer_PublishEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageAndSucceed()

	event := NewBookingEvent(
		"booking.completed",
		"booking-123",
		"buyer-1",
		"completed",
		map[string]interface{}{"total": 100000},
	)

	err := producer.PublishEvent(TopicBookingEvents, "booking-123", event)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	event := NewBookingEvent("booking.canceled", "booking-123", "buyer-1", "canceled", nil)

	err := producer.PublishEvent(TopicBookingEvents, "booking-123", event)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewBookingEvent(t *testing.T) {
	metadata := map[string]interface{}{"reason": "fraud"}

	event := NewBookingEvent("booking.canceled", "booking-123", "buyer-1", "canceled", metadata)

	if event.EventType != "booking.canceled" {
		t.Errorf("expected event type booking.canceled, got %s", event.EventType)
	}
	if event.BookingID != "booking-123" {
		t.Errorf("expected booking id booking-123, got %s", event.BookingID)
	}
	if event.BuyerID != "buyer-1" {
		t.Errorf("expected buyer id buyer-1, got %s", event.BuyerID)
	}
	if event.Metadata["reason"] != "fraud" {
		t.Error("metadata not set correctly")
	}
	if event.Timestamp.IsZero() {
		t.Error("timestamp should not be zero")
	}
	if time.Since(event.Timestamp) > time.Second {
		t.Error("timestamp should be close to current time")
	}
}
