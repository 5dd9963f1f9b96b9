package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

type mockSession struct {
	ctx    context.Context
	marked []*sarama.ConsumerMessage
}

func (m *mockSession) Claims() map[string][]int32                                               { return nil }
func (m *mockSession) MemberID() string                                                         { return "test-member" }
func (m *mockSession) GenerationID() int32                                                      { return 1 }
func (m *mockSession) MarkOffset(topic string, partition int32, offset int64, metadata string)  {}
func (m *mockSession) Commit()                                                                  {}
func (m *mockSession) ResetOffset(topic string, partition int32, offset int64, metadata string) {}
func (m *mockSession) MarkMessage(msg *sarama.ConsumerMessage, metadata string) {
	m.marked = append(m.marked, msg)
}
func (m *mockSession) Context() context.Context { return m.ctx }

type mockClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (m *mockClaim) Topic() string                            { return TopicBookingEvents }
func (m *mockClaim) Partition() int32                         { return 0 }
func (m *mockClaim) InitialOffset() int64                     { return 0 }
func (m *mockClaim) HighWaterMarkOffset() int64               { return 0 }
func (m *mockClaim) Messages() <-chan *sarama.ConsumerMessage { return m.messages }

func newTestConsumer(handler MessageHandler, dlq *Producer, maxRetries int) *Consumer {
	return &Consumer{
		handler:     handler,
		logger:      log.WithField("component", "kafka-consumer-test"),
		dlqProducer: dlq,
		maxRetries:  maxRetries,
	}
}

func TestConsumer_ConsumeClaim(t *testing.T) {
	var handled []*sarama.ConsumerMessage
	handler := func(ctx context.Context, message *sarama.ConsumerMessage) error {
		handled = append(handled, message)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	session := &mockSession{ctx: ctx}
	claim := &mockClaim{messages: make(chan *sarama.ConsumerMessage, 1)}

	message := &sarama.ConsumerMessage{
		Topic: TopicBookingEvents,
		Key:   []byte("booking-123"),
		Value: []byte(`{"event_type":"booking.confirmed"}`),
	}
	claim.messages <- message

	consumer := newTestConsumer(handler, nil, 3)

	done := make(chan error, 1)
	go func() {
		done <- consumer.ConsumeClaim(session, claim)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("ConsumeClaim returned error: %v", err)
	}
	if len(handled) != 1 {
		t.Fatalf("expected 1 handled message, got %d", len(handled))
	}
	if len(session.marked) != 1 {
		t.Fatalf("expected 1 marked message, got %d", len(session.marked))
	}
}

func TestConsumer_ConsumeClaim_FailedMessageNotMarked(t *testing.T) {
	handler := func(ctx context.Context, message *sarama.ConsumerMessage) error {
		return errors.New("processing failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	session := &mockSession{ctx: ctx}
	claim := &mockClaim{messages: make(chan *sarama.ConsumerMessage, 1)}
	claim.messages <- &sarama.ConsumerMessage{
		Topic: TopicBookingEvents,
		Value: []byte(`{}`),
	}

	consumer := newTestConsumer(handler, nil, 3)

	done := make(chan error, 1)
	go func() {
		done <- consumer.ConsumeClaim(session, claim)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if len(session.marked) != 0 {
		t.Fatalf("failed message must not be marked, got %d marked", len(session.marked))
	}
}

func TestConsumer_HandleMessageWithRetry(t *testing.T) {
	t.Run("success on first attempt", func(t *testing.T) {
		consumer := newTestConsumer(func(ctx context.Context, message *sarama.ConsumerMessage) error {
			return nil
		}, nil, 3)

		err := consumer.handleMessageWithRetry(context.Background(), &sarama.ConsumerMessage{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("below retry limit returns error for redelivery", func(t *testing.T) {
		consumer := newTestConsumer(func(ctx context.Context, message *sarama.ConsumerMessage) error {
			return errors.New("transient failure")
		}, nil, 3)

		message := &sarama.ConsumerMessage{
			Headers: []*sarama.RecordHeader{
				{Key: []byte(HeaderRetryCount), Value: []byte("1")},
			},
		}

		if err := consumer.handleMessageWithRetry(context.Background(), message); err == nil {
			t.Fatal("expected error so the message is redelivered")
		}
	})

	t.Run("at retry limit without DLQ returns error", func(t *testing.T) {
		consumer := newTestConsumer(func(ctx context.Context, message *sarama.ConsumerMessage) error {
			return errors.New("permanent failure")
		}, nil, 3)

		message := &sarama.ConsumerMessage{
			Headers: []*sarama.RecordHeader{
				{Key: []byte(HeaderRetryCount), Value: []byte("3")},
			},
		}

		if err := consumer.handleMessageWithRetry(context.Background(), message); err == nil {
			t.Fatal("expected error when DLQ is not configured")
		}
	})

	t.Run("at retry limit sends to DLQ", func(t *testing.T) {
		mockProducer := mocks.NewSyncProducer(t, nil)
		mockProducer.ExpectSendMessageAndSucceed()

		dlq := &Producer{
			producer: mockProducer,
			logger:   log.WithField("component", "kafka-producer-test"),
		}

		consumer := newTestConsumer(func(ctx context.Context, message *sarama.ConsumerMessage) error {
			return errors.New("permanent failure")
		}, dlq, 3)

		message := &sarama.ConsumerMessage{
			Topic: TopicBookingEvents,
			Key:   []byte("booking-123"),
			Value: []byte(`{"event_type":"booking.confirmed"}`),
			Headers: []*sarama.RecordHeader{
				{Key: []byte(HeaderRetryCount), Value: []byte("3")},
			},
		}

		if err := consumer.handleMessageWithRetry(context.Background(), message); err != nil {
			t.Fatalf("expected message to be absorbed by DLQ, got %v", err)
		}

		if err := mockProducer.Close(); err != nil {
			t.Fatal(err)
		}
	})
}

func TestConsumer_GetRetryCount(t *testing.T) {
	consumer := newTestConsumer(nil, nil, 3)

	tests := []struct {
		name    string
		headers []*sarama.RecordHeader
		want    int
	}{
		{"no headers", nil, 0},
		{"retry header", []*sarama.RecordHeader{{Key: []byte(HeaderRetryCount), Value: []byte("2")}}, 2},
		{"malformed header", []*sarama.RecordHeader{{Key: []byte(HeaderRetryCount), Value: []byte("abc")}}, 0},
		{"other headers ignored", []*sarama.RecordHeader{{Key: []byte(HeaderOriginalTopic), Value: []byte("x")}}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			message := &sarama.ConsumerMessage{Headers: tt.headers}
			if got := consumer.getRetryCount(message); got != tt.want {
				t.Errorf("getRetryCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseBookingEvent(t *testing.T) {
	message := &sarama.ConsumerMessage{
		Value: []byte(`{"event_type":"booking.confirmed","booking_id":"booking-123","buyer_id":"buyer-1","status":"confirmed"}`),
	}

	event, err := ParseBookingEvent(message)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if event.EventType != "booking.confirmed" {
		t.Errorf("expected event type booking.confirmed, got %s", event.EventType)
	}
	if event.BookingID != "booking-123" {
		t.Errorf("expected booking id booking-123, got %s", event.BookingID)
	}

	if _, err := ParseBookingEvent(&sarama.ConsumerMessage{Value: []byte("not json")}); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
