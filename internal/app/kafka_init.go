package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
)

// kafkaRuntime: producer, паблишеры outbox и consumer статусов заказов.
type kafkaRuntime struct {
	producer     *kafka.Producer
	publisher    domain.OutboxPublisher
	dlqPublisher domain.OutboxPublisher
	consumer     *kafka.Consumer
}

// initKafkaProducer создаёт producer, если brokers не пустой.
// Пустой brokers не ошибка, возвращается nil, nil.
func initKafkaProducer(brokers, clientID string, logger *log.Entry) (*kafka.Producer, error) {
	brokerList := kafkaBrokerList(brokers)
	if len(brokerList) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokerList,
		kafka.WithClientID(clientID),
		kafka.WithProducerLogger(logger.WithField("component", "kafka-producer")),
	)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// initKafka поднимает producer и consumer статусов. Без брокеров события
// outbox пишутся в лог; при недоступной Kafka сервис работает без неё.
func initKafka(cfg Config, applier kafka.StatusApplier, logger *log.Entry) *kafkaRuntime {
	rt := &kafkaRuntime{publisher: outbox.NewLogPublisher(logger.WithField("component", "outbox-log-publisher"))}

	producer, err := initKafkaProducer(cfg.KafkaBrokers, cfg.KafkaClientID, logger)
	if err != nil || producer == nil {
		return rt
	}
	rt.producer = producer
	rt.publisher = kafka.NewOutboxPublisher(producer, cfg.OrderEventsTopic)
	rt.dlqPublisher = kafka.NewOutboxPublisher(producer, cfg.DLQTopic)

	consumerLogger := logger.WithField("component", "order-status-consumer")
	consumer, err := kafka.NewConsumer(
		kafkaBrokerList(cfg.KafkaBrokers),
		cfg.KafkaConsumerGroup,
		[]string{cfg.OrderStatusTopic},
		kafka.NewStatusUpdateHandler(applier, consumerLogger),
		kafka.WithDeadLetter(producer, cfg.DLQTopic),
		kafka.WithMaxAttempts(cfg.KafkaMaxRetries),
		kafka.WithConsumerLogger(consumerLogger),
	)
	if err != nil {
		logger.WithError(err).Warn("failed to create order status consumer, remote status sync is disabled")
		return rt
	}
	rt.consumer = consumer
	return rt
}

func (rt *kafkaRuntime) start(ctx context.Context, logger *log.Entry) {
	if rt == nil || rt.consumer == nil {
		return
	}
	if err := rt.consumer.Start(ctx); err != nil {
		logger.WithError(err).Warn("failed to start order status consumer")
	}
}

func (rt *kafkaRuntime) close(logger *log.Entry) {
	if rt == nil {
		return
	}
	if rt.consumer != nil {
		if err := rt.consumer.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop order status consumer")
		}
	}
	closeKafka(rt.producer, logger)
}

// closeKafka закрывает producer, если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
