package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

type fakeClient struct {
	partitions []int32
	oldest     int64
	newest     int64
	err        error
	closed     bool
}

func (c *fakeClient) GetOffset(_ string, _ int32, at int64) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	if at == sarama.OffsetOldest {
		return c.oldest, nil
	}
	return c.newest, nil
}

func (c *fakeClient) Partitions(string) ([]int32, error) { return c.partitions, c.err }
func (c *fakeClient) Close() error                       { c.closed = true; return nil }

type fakePartition struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
}

func (p *fakePartition) Messages() <-chan *sarama.ConsumerMessage { return p.messages }
func (p *fakePartition) Errors() <-chan *sarama.ConsumerError     { return p.errors }
func (p *fakePartition) Close() error                             { return nil }

type fakeSource struct {
	byPartition map[int32][]*sarama.ConsumerMessage
	offsets     map[int32]int64
}

func (s *fakeSource) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	if s.offsets == nil {
		s.offsets = make(map[int32]int64)
	}
	s.offsets[partition] = offset

	msgs := s.byPartition[partition]
	pc := &fakePartition{
		messages: make(chan *sarama.ConsumerMessage, len(msgs)),
		errors:   make(chan *sarama.ConsumerError),
	}
	for _, m := range msgs {
		if m.Offset >= offset {
			pc.messages <- m
		}
	}
	return pc, nil
}

func (s *fakeSource) Close() error { return nil }

type sentMessage struct {
	topic   string
	key     string
	value   []byte
	headers map[string]string
}

type fakeSender struct {
	sent []sentMessage
	err  error
}

func (s *fakeSender) PublishRaw(topic, key string, value []byte, headers map[string]string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMessage{topic: topic, key: key, value: value, headers: headers})
	return nil
}

func (s *fakeSender) Close() error { return nil }

func consumerDLQ(t *testing.T, offset int64, key, value string) *sarama.ConsumerMessage {
	t.Helper()
	raw, err := json.Marshal(kafka.DLQMessage{
		OriginalTopic: kafka.TopicOrderStatus,
		OriginalKey:   key,
		OriginalValue: value,
		ErrorMessage:  "boom",
		RetryCount:    3,
	})
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Offset: offset, Value: raw}
}

func outboxDLQ(t *testing.T, offset int64, orderID, eventType string) *sarama.ConsumerMessage {
	t.Helper()
	inner, err := json.Marshal(map[string]any{
		"outbox_id":      "ob-" + orderID,
		"aggregate_type": "order",
		"aggregate_id":   orderID,
		"event_type":     eventType,
		"payload":        json.RawMessage(`{"order_id":"` + orderID + `"}`),
		"publish_error":  "broker down",
	})
	require.NoError(t, err)
	raw, err := json.Marshal(kafka.OutboxEnvelope{
		ID:          "ob-" + orderID,
		AggregateID: orderID,
		EventType:   eventType,
		Payload:     inner,
		OccurredAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Offset: offset, Value: raw}
}

func testOptions() options {
	return options{
		brokers:     []string{"localhost:9092"},
		dlqTopic:    kafka.TopicDeadLetterQueue,
		eventsTopic: kafka.TopicOrderEvents,
		limit:       100,
		idleTimeout: 200 * time.Millisecond,
	}
}

func TestParseOptions(t *testing.T) {
	t.Setenv("STOREFRONT_KAFKA_BROKERS", "env-broker:9092")

	opts, err := parseOptions([]string{"-limit", "5", "-event-type", " order.placed "}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, []string{"env-broker:9092"}, opts.brokers)
	assert.Equal(t, kafka.TopicDeadLetterQueue, opts.dlqTopic)
	assert.Equal(t, kafka.TopicOrderEvents, opts.eventsTopic)
	assert.Equal(t, 5, opts.limit)
	assert.Equal(t, "order.placed", opts.eventType)
	assert.False(t, opts.execute)

	opts, err = parseOptions([]string{"-brokers", "a:1, b:2", "-execute"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, []string{"a:1", "b:2"}, opts.brokers)
	assert.True(t, opts.execute)
}

func TestParseOptions_Invalid(t *testing.T) {
	tests := map[string][]string{
		"no brokers":   {"-brokers", " , "},
		"zero limit":   {"-brokers", "a:1", "-limit", "0"},
		"empty dlq":    {"-brokers", "a:1", "-dlq-topic", " "},
		"zero idle":    {"-brokers", "a:1", "-idle-timeout", "0s"},
		"unknown flag": {"-nope"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseOptions(args, io.Discard)
			assert.Error(t, err)
		})
	}
}

func TestExtractReplayMessage_ConsumerDLQ(t *testing.T) {
	msg := consumerDLQ(t, 0, "order-1", `{"order_id":"order-1","status":"PAID"}`)

	replay, ok, err := extractReplayMessage(msg, kafka.TopicOrderEvents)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, kafka.TopicOrderStatus, replay.topic)
	assert.Equal(t, "order-1", replay.key)
	assert.JSONEq(t, `{"order_id":"order-1","status":"PAID"}`, string(replay.value))
}

func TestExtractReplayMessage_OutboxDLQ(t *testing.T) {
	msg := outboxDLQ(t, 0, "order-2", "order.placed")

	replay, ok, err := extractReplayMessage(msg, "events")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "events", replay.topic)
	assert.Equal(t, "order-2", replay.key)
	assert.Equal(t, "order.placed", replay.eventType)

	var envelope kafka.OutboxEnvelope
	require.NoError(t, json.Unmarshal(replay.value, &envelope))
	assert.Equal(t, "ob-order-2", envelope.ID)
	assert.Equal(t, "order", envelope.AggregateType)
	assert.JSONEq(t, `{"order_id":"order-2"}`, string(envelope.Payload))
	assert.False(t, envelope.PublishedAt.IsZero())
}

func TestExtractReplayMessage_Unrecognized(t *testing.T) {
	for _, value := range []string{`not json`, `{}`, `{"id":"x"}`} {
		_, ok, err := extractReplayMessage(&sarama.ConsumerMessage{Value: []byte(value)}, "events")
		assert.NoError(t, err)
		assert.False(t, ok, value)
	}

	broken, err := json.Marshal(kafka.OutboxEnvelope{ID: "x", Payload: json.RawMessage(`{"outbox_id":"x"}`)})
	require.NoError(t, err)
	_, ok, err := extractReplayMessage(&sarama.ConsumerMessage{Value: broken}, "events")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestReplayer_DryRunDoesNotPublish(t *testing.T) {
	sender := &fakeSender{}
	r := &replayer{
		opts:   testOptions(),
		client: &fakeClient{partitions: []int32{0}, newest: 2},
		source: &fakeSource{byPartition: map[int32][]*sarama.ConsumerMessage{
			0: {consumerDLQ(t, 0, "o-1", `{}`), outboxDLQ(t, 1, "o-2", "order.placed")},
		}},
		producer: sender,
	}

	stats, err := r.run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, replayStats{processed: 2, replayed: 2}, stats)
	assert.Empty(t, sender.sent)
}

func TestReplayer_ExecuteFiltersByEventType(t *testing.T) {
	opts := testOptions()
	opts.execute = true
	opts.eventType = "order.placed"

	sender := &fakeSender{}
	r := &replayer{
		opts:   opts,
		client: &fakeClient{partitions: []int32{1, 0}, newest: 3},
		source: &fakeSource{byPartition: map[int32][]*sarama.ConsumerMessage{
			0: {outboxDLQ(t, 0, "o-1", "order.placed"), outboxDLQ(t, 1, "o-2", "order.cancelled"), {Offset: 2, Value: []byte("garbage")}},
			1: {consumerDLQ(t, 0, "o-3", `{}`)},
		}},
		producer: sender,
	}

	stats, err := r.run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.replayed)
	assert.Equal(t, 3, stats.skipped)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, kafka.TopicOrderEvents, sender.sent[0].topic)
	assert.Equal(t, "o-1", sender.sent[0].key)
	assert.Equal(t, "order.placed", sender.sent[0].headers[kafka.HeaderEventType])
}

func TestReplayer_RespectsLimitAndFromNewest(t *testing.T) {
	opts := testOptions()
	opts.limit = 2
	opts.fromNewest = true

	source := &fakeSource{byPartition: map[int32][]*sarama.ConsumerMessage{
		0: {consumerDLQ(t, 0, "a", `{}`), consumerDLQ(t, 1, "b", `{}`), consumerDLQ(t, 2, "c", `{}`), consumerDLQ(t, 3, "d", `{}`)},
	}}
	r := &replayer{opts: opts, client: &fakeClient{partitions: []int32{0}, newest: 4}, source: source}

	stats, err := r.run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.processed)
	assert.Equal(t, int64(2), source.offsets[0])
}

func TestReplayer_EmptyPartitionIsSkipped(t *testing.T) {
	source := &fakeSource{}
	r := &replayer{opts: testOptions(), client: &fakeClient{partitions: []int32{0}, oldest: 5, newest: 5}, source: source}

	stats, err := r.run(t.Context())
	require.NoError(t, err)
	assert.Zero(t, stats.processed)
	assert.Empty(t, source.offsets)
}

func TestReplayer_Errors(t *testing.T) {
	ctx := t.Context()

	_, err := (&replayer{opts: testOptions()}).run(ctx)
	require.ErrorContains(t, err, "required")

	opts := testOptions()
	opts.execute = true
	_, err = (&replayer{opts: opts, client: &fakeClient{}, source: &fakeSource{}}).run(ctx)
	require.ErrorContains(t, err, "producer is required")

	_, err = (&replayer{opts: testOptions(), client: &fakeClient{err: errors.New("metadata")}, source: &fakeSource{}}).run(ctx)
	require.ErrorContains(t, err, "metadata")

	r := &replayer{
		opts:   opts,
		client: &fakeClient{partitions: []int32{0}, newest: 1},
		source: &fakeSource{byPartition: map[int32][]*sarama.ConsumerMessage{
			0: {consumerDLQ(t, 0, "a", `{}`)},
		}},
		producer: &fakeSender{err: errors.New("broker down")},
	}
	_, err = r.run(ctx)
	require.ErrorContains(t, err, "broker down")
}

func TestReplayer_StopsOnIdleAndCancel(t *testing.T) {
	opts := testOptions()
	opts.idleTimeout = 20 * time.Millisecond
	// newest=5, но в партиции только одно сообщение: выход по idle.
	r := &replayer{
		opts:   opts,
		client: &fakeClient{partitions: []int32{0}, newest: 5},
		source: &fakeSource{byPartition: map[int32][]*sarama.ConsumerMessage{0: {consumerDLQ(t, 0, "a", `{}`)}}},
	}
	stats, err := r.run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.processed)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	opts.idleTimeout = time.Minute
	r = &replayer{opts: opts, client: &fakeClient{partitions: []int32{0}, newest: 5}, source: &fakeSource{}}
	_, err = r.run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReplayer_CloseIsNilSafe(t *testing.T) {
	client := &fakeClient{}
	r := &replayer{client: client, source: &fakeSource{}}
	r.close()
	assert.True(t, client.closed)
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "  ", "b", "c"))
	assert.Empty(t, firstNonEmpty())
}
