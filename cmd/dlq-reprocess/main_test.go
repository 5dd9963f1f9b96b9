package main

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
)

type fakeOffsetClient struct {
	partitions []int32
	oldest     map[int32]int64
	newest     map[int32]int64
}

func (c *fakeOffsetClient) GetOffset(_ string, partition int32, at int64) (int64, error) {
	if at == sarama.OffsetOldest {
		return c.oldest[partition], nil
	}
	return c.newest[partition], nil
}

func (c *fakeOffsetClient) Partitions(string) ([]int32, error) {
	return c.partitions, nil
}

func (c *fakeOffsetClient) Close() error { return nil }

type fakePartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
}

func (c *fakePartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return c.messages }
func (c *fakePartitionConsumer) Errors() <-chan *sarama.ConsumerError    { return c.errors }
func (c *fakePartitionConsumer) Close() error                             { return nil }

type fakeConsumerSource struct {
	byPartition map[int32][]*sarama.ConsumerMessage
}

func (s *fakeConsumerSource) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	msgs := s.byPartition[partition]
	pc := &fakePartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage, len(msgs)+1),
		errors:   make(chan *sarama.ConsumerError, 1),
	}
	for _, msg := range msgs {
		if msg.Offset >= offset {
			pc.messages <- msg
		}
	}
	return pc, nil
}

func (s *fakeConsumerSource) Close() error { return nil }

type fakeProducer struct {
	sent    []*sarama.ProducerMessage
	sendErr error
}

func (p *fakeProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	if p.sendErr != nil {
		return 0, 0, p.sendErr
	}
	p.sent = append(p.sent, msg)
	return 0, int64(len(p.sent)), nil
}

func (p *fakeProducer) Close() error { return nil }

func consumerDLQMessage(t *testing.T, offset int64, topic, key, value string) *sarama.ConsumerMessage {
	t.Helper()

	body, err := json.Marshal(map[string]string{
		"original_topic": topic,
		"original_key":   key,
		"original_value": value,
		"error_message":  "handler failed",
	})
	if err != nil {
		t.Fatalf("marshal dlq payload: %v", err)
	}
	return &sarama.ConsumerMessage{Topic: "bms.dlq", Partition: 0, Offset: offset, Value: body}
}

func outboxDLQMessage(t *testing.T, offset int64, bookingID, eventType string) *sarama.ConsumerMessage {
	t.Helper()

	body, err := json.Marshal(outboxEnvelope{
		ID:            fmt.Sprintf("msg-%d", offset),
		AggregateType: "booking",
		AggregateID:   bookingID,
		EventType:     eventType,
		Payload:       json.RawMessage(`{"booking_id":"` + bookingID + `"}`),
		PublishedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("marshal outbox envelope: %v", err)
	}
	return &sarama.ConsumerMessage{Topic: "bms.dlq", Partition: 0, Offset: offset, Value: body}
}

func testReplayConfig(execute bool) replayConfig {
	return replayConfig{
		brokers:     []string{"localhost:9092"},
		sourceTopic: "bms.dlq",
		targetTopic: "bms.booking.events",
		limit:       10,
		execute:     execute,
		idleTimeout: 50 * time.Millisecond,
	}
}

func TestRunReplay_DryRunCountsCandidates(t *testing.T) {
	client := &fakeOffsetClient{
		partitions: []int32{0},
		oldest:     map[int32]int64{0: 0},
		newest:     map[int32]int64{0: 3},
	}
	source := &fakeConsumerSource{byPartition: map[int32][]*sarama.ConsumerMessage{
		0: {
			consumerDLQMessage(t, 0, "bms.booking.events", "booking-1", `{"event_type":"booking_completed"}`),
			outboxDLQMessage(t, 1, "booking-2", "booking.confirmed"),
			{Topic: "bms.dlq", Partition: 0, Offset: 2, Value: []byte("not json")},
		},
	}}

	if err := runReplay(context.Background(), testReplayConfig(false), client, source, nil); err != nil {
		t.Fatalf("runReplay: %v", err)
	}
}

func TestRunReplay_ExecutePublishesToTargetTopics(t *testing.T) {
	client := &fakeOffsetClient{
		partitions: []int32{0},
		oldest:     map[int32]int64{0: 0},
		newest:     map[int32]int64{0: 2},
	}
	source := &fakeConsumerSource{byPartition: map[int32][]*sarama.ConsumerMessage{
		0: {
			consumerDLQMessage(t, 0, "bms.booking.events", "booking-1", `{"event_type":"booking_completed"}`),
			outboxDLQMessage(t, 1, "booking-2", "booking.confirmed"),
		},
	}}
	producer := &fakeProducer{}

	if err := runReplay(context.Background(), testReplayConfig(true), client, source, producer); err != nil {
		t.Fatalf("runReplay: %v", err)
	}

	if len(producer.sent) != 2 {
		t.Fatalf("expected 2 replayed messages, got %d", len(producer.sent))
	}
	for _, msg := range producer.sent {
		if msg.Topic != "bms.booking.events" {
			t.Errorf("unexpected target topic: %s", msg.Topic)
		}
	}
}

func TestRunReplay_ExecuteRequiresProducer(t *testing.T) {
	client := &fakeOffsetClient{partitions: []int32{0}, oldest: map[int32]int64{}, newest: map[int32]int64{}}
	source := &fakeConsumerSource{}

	if err := runReplay(context.Background(), testReplayConfig(true), client, source, nil); err == nil {
		t.Fatal("expected error when execute mode has no producer")
	}
}

func TestRunReplay_HonorsLimit(t *testing.T) {
	client := &fakeOffsetClient{
		partitions: []int32{0},
		oldest:     map[int32]int64{0: 0},
		newest:     map[int32]int64{0: 5},
	}
	msgs := make([]*sarama.ConsumerMessage, 0, 5)
	for i := int64(0); i < 5; i++ {
		msgs = append(msgs, outboxDLQMessage(t, i, fmt.Sprintf("booking-%d", i), "booking.canceled"))
	}
	source := &fakeConsumerSource{byPartition: map[int32][]*sarama.ConsumerMessage{0: msgs}}
	producer := &fakeProducer{}

	cfg := testReplayConfig(true)
	cfg.limit = 2

	if err := runReplay(context.Background(), cfg, client, source, producer); err != nil {
		t.Fatalf("runReplay: %v", err)
	}
	if len(producer.sent) != 2 {
		t.Fatalf("expected limit of 2 replayed messages, got %d", len(producer.sent))
	}
}

func TestExtractReplayMessage_ConsumerPayload(t *testing.T) {
	msg := consumerDLQMessage(t, 0, "bms.booking.events", "booking-1", `{"event_type":"booking_completed"}`)

	replay, ok, err := extractReplayMessage(msg, "fallback.topic")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !ok {
		t.Fatal("expected message to be replayable")
	}
	if replay.topic != "bms.booking.events" {
		t.Errorf("expected original topic, got %s", replay.topic)
	}
	if replay.key != "booking-1" {
		t.Errorf("expected original key, got %s", replay.key)
	}
	if string(replay.value) != `{"event_type":"booking_completed"}` {
		t.Errorf("unexpected replay body: %s", replay.value)
	}
}

func TestExtractReplayMessage_OutboxEnvelope(t *testing.T) {
	msg := outboxDLQMessage(t, 7, "booking-7", "booking.confirmed")

	replay, ok, err := extractReplayMessage(msg, "bms.booking.events")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !ok {
		t.Fatal("expected message to be replayable")
	}
	if replay.topic != "bms.booking.events" {
		t.Errorf("expected default topic, got %s", replay.topic)
	}
	if replay.key != "booking-7" {
		t.Errorf("expected aggregate id key, got %s", replay.key)
	}

	var envelope outboxEnvelope
	if err := json.Unmarshal(replay.value, &envelope); err != nil {
		t.Fatalf("decode replay envelope: %v", err)
	}
	if envelope.EventType != "booking.confirmed" {
		t.Errorf("unexpected event type: %s", envelope.EventType)
	}
	if envelope.PublishedAt.IsZero() {
		t.Error("expected fresh published_at")
	}
}

func TestExtractReplayMessage_UnknownFormatSkipped(t *testing.T) {
	msg := &sarama.ConsumerMessage{Value: []byte(`{"unrelated":true}`)}

	_, ok, err := extractReplayMessage(msg, "bms.booking.events")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if ok {
		t.Fatal("expected unknown message to be skipped")
	}
}

func TestParseBrokers(t *testing.T) {
	brokers := parseBrokers(" broker-1:9092 ,, broker-2:9092 ")
	if len(brokers) != 2 || brokers[0] != "broker-1:9092" || brokers[1] != "broker-2:9092" {
		t.Fatalf("unexpected brokers: %v", brokers)
	}
	if got := parseBrokers("  "); len(got) != 0 {
		t.Fatalf("expected no brokers, got %v", got)
	}
}
