package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// ErrPoisonMessage помечает сообщение, которое бессмысленно обрабатывать повторно.
var ErrPoisonMessage = errors.New("kafka: unprocessable message")

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 200 * time.Millisecond
	maxConsumeDelay    = 5 * time.Second
)

// MessageHandler обрабатывает одно сообщение топика.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// Consumer читает топик в consumer group и складывает необработанное в DLQ.
type Consumer struct {
	group   sarama.ConsumerGroup
	topics  []string
	handler MessageHandler
	logger  *log.Entry
	now     func() time.Time
	wg      sync.WaitGroup

	dlq         *Producer
	dlqTopic    string
	maxAttempts int
	retryDelay  time.Duration
}

// ConsumerOption настраивает Consumer.
type ConsumerOption func(*Consumer)

// WithDeadLetter включает отправку в DLQ после исчерпания попыток.
// Пустой topic означает TopicDeadLetterQueue.
func WithDeadLetter(producer *Producer, topic string) ConsumerOption {
	return func(c *Consumer) {
		c.dlq = producer
		if topic != "" {
			c.dlqTopic = topic
		}
	}
}

// WithMaxAttempts ограничивает число попыток обработки, включая первую.
func WithMaxAttempts(n int) ConsumerOption {
	return func(c *Consumer) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithRetryDelay задаёт паузу перед второй попыткой; дальше она удваивается.
func WithRetryDelay(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if d >= 0 {
			c.retryDelay = d
		}
	}
}

func WithConsumerLogger(logger *log.Entry) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewConsumer подключается к брокерам как участник группы groupID.
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler, opts ...ConsumerOption) (*Consumer, error) {
	group, err := sarama.NewConsumerGroup(brokers, groupID, consumerConfig())
	if err != nil {
		return nil, fmt.Errorf("create consumer group %s: %w", groupID, err)
	}
	return newConsumer(group, topics, handler, opts...), nil
}

func newConsumer(group sarama.ConsumerGroup, topics []string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		group:       group,
		topics:      topics,
		handler:     handler,
		logger:      log.WithField("component", "kafka-consumer"),
		now:         func() time.Time { return time.Now().UTC() },
		dlqTopic:    TopicDeadLetterQueue,
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func consumerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = defaultClientID
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Return.Errors = true
	return cfg
}

// Start запускает чтение в фоне и сразу возвращается.
func (c *Consumer) Start(ctx context.Context) error {
	if c == nil || c.group == nil {
		return errors.New("kafka consumer is not initialized")
	}

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		for {
			// Consume возвращается на каждом rebalance
			if err := c.group.Consume(ctx, c.topics, c); err != nil {
				c.logger.WithError(err).Error("consume session failed")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.logger.WithError(err).Warn("consumer group error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop закрывает группу и ждёт фоновые горутины.
func (c *Consumer) Stop() error {
	if c == nil || c.group == nil {
		return nil
	}
	if err := c.group.Close(); err != nil {
		return fmt.Errorf("close consumer group: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim обрабатывает partition до закрытия канала или конца сессии.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			entry := c.logger.WithFields(log.Fields{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
			})
			entry.Debug("message received")

			if err := c.process(ctx, message); err != nil {
				// offset не коммитим, сообщение перечитается после rebalance
				entry.WithError(err).Error("message left unprocessed")
				continue
			}
			session.MarkMessage(message, "")
		}
	}
}

// process делает до maxAttempts попыток с учётом уже сделанных (x-retry-count),
// затем отдаёт сообщение в DLQ. nil означает, что offset можно коммитить.
func (c *Consumer) process(ctx context.Context, message *sarama.ConsumerMessage) error {
	attempt := retryCount(message)
	delay := c.retryDelay

	var err error
	for {
		attempt++
		if err = c.handler(ctx, message); err == nil {
			return nil
		}
		if errors.Is(err, ErrPoisonMessage) || attempt >= c.maxAttempts {
			break
		}

		c.logger.WithError(err).WithFields(log.Fields{
			"topic":   message.Topic,
			"attempt": attempt,
		}).Warn("message handling failed, retrying")

		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = min(delay*2, maxConsumeDelay)
		}
	}

	if c.dlq == nil {
		return err
	}
	if dlqErr := c.deadLetter(message, err, attempt); dlqErr != nil {
		return fmt.Errorf("dead-letter %s/%d: %w", message.Topic, message.Offset, dlqErr)
	}
	c.logger.WithFields(log.Fields{
		"topic":    message.Topic,
		"attempts": attempt,
		"dlq":      c.dlqTopic,
	}).Warn("message moved to dead letter queue")
	return nil
}

func (c *Consumer) deadLetter(message *sarama.ConsumerMessage, cause error, attempts int) error {
	failedAt := c.now().Format(time.RFC3339)
	record := DLQMessage{
		OriginalTopic:     message.Topic,
		OriginalPartition: message.Partition,
		OriginalOffset:    message.Offset,
		OriginalKey:       string(message.Key),
		OriginalValue:     string(message.Value),
		ErrorMessage:      cause.Error(),
		FailedAt:          failedAt,
		RetryCount:        attempts,
	}
	return c.dlq.PublishJSON(c.dlqTopic, string(message.Key), record, map[string]string{
		HeaderOriginalTopic: message.Topic,
		HeaderErrorMessage:  cause.Error(),
		HeaderFailedAt:      failedAt,
		HeaderRetryCount:    strconv.Itoa(attempts),
	})
}

// retryCount читает x-retry-count; мусор в заголовке считается нулём.
func retryCount(message *sarama.ConsumerMessage) int {
	for _, h := range message.Headers {
		if h == nil || string(h.Key) != HeaderRetryCount {
			continue
		}
		if n, err := strconv.Atoi(string(h.Value)); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// ParseStatusUpdate декодирует StatusUpdate бэкенда. Битые сообщения помечаются ErrPoisonMessage.
func ParseStatusUpdate(message *sarama.ConsumerMessage) (*StatusUpdate, error) {
	var update StatusUpdate
	if err := json.Unmarshal(message.Value, &update); err != nil {
		return nil, fmt.Errorf("%w: unmarshal status update: %v", ErrPoisonMessage, err)
	}
	if update.OrderID == "" || update.Status == "" {
		return nil, fmt.Errorf("%w: status update without order_id or status", ErrPoisonMessage)
	}
	return &update, nil
}
