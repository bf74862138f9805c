package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const defaultClientID = "storefront"

var errProducerClosed = errors.New("kafka producer is not initialized")

// Producer: синхронный idempotent producer для событий заказов и DLQ.
type Producer struct {
	sync   sarama.SyncProducer
	logger *log.Entry
	now    func() time.Time
}

type producerOptions struct {
	clientID string
	logger   *log.Entry
}

// ProducerOption настраивает Producer.
type ProducerOption func(*producerOptions)

// WithClientID задаёт client.id, по которому producer виден в метриках брокера.
func WithClientID(clientID string) ProducerOption {
	return func(o *producerOptions) {
		if clientID != "" {
			o.clientID = clientID
		}
	}
}

func WithProducerLogger(logger *log.Entry) ProducerOption {
	return func(o *producerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewProducer подключается к брокерам.
func NewProducer(brokers []string, opts ...ProducerOption) (*Producer, error) {
	o := producerOptions{
		clientID: defaultClientID,
		logger:   log.WithField("component", "kafka-producer"),
	}
	for _, opt := range opts {
		opt(&o)
	}

	sync, err := sarama.NewSyncProducer(brokers, producerConfig(o.clientID))
	if err != nil {
		return nil, fmt.Errorf("create kafka producer %s: %w", o.clientID, err)
	}
	return newProducer(sync, o.logger.WithField("client_id", o.clientID)), nil
}

func newProducer(sync sarama.SyncProducer, logger *log.Entry) *Producer {
	return &Producer{
		sync:   sync,
		logger: logger,
		now:    time.Now,
	}
}

func producerConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	// idempotent producer требует одного in-flight запроса
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	return config
}

// PublishJSON сериализует v и отправляет его с заголовками.
func (p *Producer) PublishJSON(topic, key string, v any, headers map[string]string) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message for %s: %w", topic, err)
	}
	return p.PublishRaw(topic, key, value, headers)
}

// PublishRaw отправляет готовое тело. Ключ определяет партицию, поэтому
// события одного заказа всегда приходят по порядку.
func (p *Producer) PublishRaw(topic, key string, value []byte, headers map[string]string) error {
	if p == nil || p.sync == nil {
		return errProducerClosed
	}

	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(value),
		Timestamp: p.now(),
	}
	for _, name := range slices.Sorted(maps.Keys(headers)) {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(name), Value: []byte(headers[name])})
	}

	fields := log.Fields{"topic": topic, "key": key}
	partition, offset, err := p.sync.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Error("kafka send failed")
		return fmt.Errorf("send to %s: %w", topic, err)
	}

	fields["partition"] = partition
	fields["offset"] = offset
	p.logger.WithFields(fields).Debug("kafka message sent")
	return nil
}

func (p *Producer) Close() error {
	if p == nil || p.sync == nil {
		return nil
	}
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
