// Command dlq-replay перечитывает Dead Letter Queue и возвращает сообщения
// в исходные топики. По умолчанию работает в режиме dry-run.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/app"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

type options struct {
	brokers     []string
	dlqTopic    string
	eventsTopic string
	limit       int
	execute     bool
	fromNewest  bool
	eventType   string
	idleTimeout time.Duration
}

// replayMessage: сообщение, готовое к повторной публикации.
type replayMessage struct {
	topic     string
	key       string
	eventType string
	value     []byte
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type messageSender interface {
	PublishRaw(topic, key string, value []byte, headers map[string]string) error
	Close() error
}

type saramaSource struct {
	consumer sarama.Consumer
}

func (s saramaSource) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	return s.consumer.ConsumePartition(topic, partition, offset)
}

func (s saramaSource) Close() error { return s.consumer.Close() }

// replayer проходит по партициям DLQ и публикует подходящие сообщения.
type replayer struct {
	opts     options
	client   offsetClient
	source   partitionSource
	producer messageSender
	logger   *log.Entry
}

type replayStats struct {
	processed int
	replayed  int
	skipped   int
}

func (s *replayStats) add(other replayStats) {
	s.processed += other.processed
	s.replayed += other.replayed
	s.skipped += other.skipped
}

var dialKafka = func(opts options) (*replayer, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.ClientID = "storefront-dlq-replay"
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(opts.brokers, consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	r := &replayer{opts: opts, client: client, source: saramaSource{consumer: consumer}}
	if !opts.execute {
		return r, nil
	}

	producer, err := kafka.NewProducer(opts.brokers, kafka.WithClientID("storefront-dlq-replay"))
	if err != nil {
		_ = consumer.Close()
		_ = client.Close()
		return nil, err
	}
	r.producer = producer
	return r, nil
}

func main() {
	log.SetFormatter(&log.JSONFormatter{})

	opts, err := parseOptions(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.WithError(err).Fatal("invalid options")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := dialKafka(opts)
	if err != nil {
		log.WithError(err).Fatal("connect to kafka")
	}
	defer r.close()

	if _, err := r.run(ctx); err != nil {
		log.WithError(err).Fatal("dlq replay failed")
	}
}

// parseOptions читает флаги; брокеры и топики по умолчанию берутся из конфигурации сервиса.
func parseOptions(args []string, output io.Writer) (options, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		cfg = app.DefaultConfig()
	}

	fs := flag.NewFlagSet("dlq-replay", flag.ContinueOnError)
	fs.SetOutput(output)

	var (
		opts       options
		brokersRaw string
	)
	fs.StringVar(&brokersRaw, "brokers", cfg.KafkaBrokers, "comma-separated Kafka brokers (default STOREFRONT_KAFKA_BROKERS)")
	fs.StringVar(&opts.dlqTopic, "dlq-topic", cfg.DLQTopic, "dead letter topic to scan")
	fs.StringVar(&opts.eventsTopic, "events-topic", cfg.OrderEventsTopic, "topic for replayed outbox events")
	fs.IntVar(&opts.limit, "limit", defaultReplayLimit, "max messages to scan")
	fs.BoolVar(&opts.execute, "execute", false, "publish messages; dry-run otherwise")
	fs.BoolVar(&opts.fromNewest, "from-newest", false, "scan the newest messages of each partition")
	fs.StringVar(&opts.eventType, "event-type", "", "replay only outbox events of this type, e.g. order.placed")
	fs.DurationVar(&opts.idleTimeout, "idle-timeout", defaultIdleTimeout, "stop reading a partition after this idle period")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.brokers = parseBrokers(brokersRaw)
	opts.eventType = strings.TrimSpace(opts.eventType)
	switch {
	case len(opts.brokers) == 0:
		return options{}, errors.New("kafka brokers are required (-brokers or STOREFRONT_KAFKA_BROKERS)")
	case strings.TrimSpace(opts.dlqTopic) == "":
		return options{}, errors.New("dlq-topic is required")
	case strings.TrimSpace(opts.eventsTopic) == "":
		return options{}, errors.New("events-topic is required")
	case opts.limit <= 0:
		return options{}, errors.New("limit must be > 0")
	case opts.idleTimeout <= 0:
		return options{}, errors.New("idle-timeout must be > 0")
	}
	return opts, nil
}

func parseBrokers(raw string) []string {
	var brokers []string
	for _, chunk := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func (r *replayer) close() {
	for _, c := range []io.Closer{r.producer, r.source, r.client} {
		if c != nil {
			_ = c.Close()
		}
	}
}

func (r *replayer) log() *log.Entry {
	if r.logger == nil {
		r.logger = log.WithField("component", "dlq-replay")
	}
	return r.logger
}

func (r *replayer) run(ctx context.Context) (replayStats, error) {
	var total replayStats
	if r.client == nil || r.source == nil {
		return total, errors.New("kafka client and consumer are required")
	}
	if r.opts.execute && r.producer == nil {
		return total, errors.New("producer is required in execute mode")
	}

	mode := "dry-run"
	if r.opts.execute {
		mode = "execute"
	}
	r.log().WithFields(log.Fields{
		"dlq_topic":  r.opts.dlqTopic,
		"limit":      r.opts.limit,
		"mode":       mode,
		"event_type": r.opts.eventType,
	}).Info("starting dlq replay")

	partitions, err := r.client.Partitions(r.opts.dlqTopic)
	if err != nil {
		return total, fmt.Errorf("list partitions of %s: %w", r.opts.dlqTopic, err)
	}
	slices.Sort(partitions)

	for _, partition := range partitions {
		if total.processed >= r.opts.limit {
			break
		}
		stats, err := r.replayPartition(ctx, partition, r.opts.limit-total.processed)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	r.log().WithFields(log.Fields{
		"mode":      mode,
		"processed": total.processed,
		"replayed":  total.replayed,
		"skipped":   total.skipped,
	}).Info("dlq replay finished")
	return total, nil
}

func (r *replayer) replayPartition(ctx context.Context, partition int32, limit int) (replayStats, error) {
	var stats replayStats

	oldest, err := r.client.GetOffset(r.opts.dlqTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("oldest offset of partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(r.opts.dlqTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("newest offset of partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if r.opts.fromNewest {
		start = max(newest-int64(limit), oldest)
	}

	pc, err := r.source.ConsumePartition(r.opts.dlqTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.opts.idleTimeout)
	defer idle.Stop()

	for stats.processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case cerr := <-pc.Errors():
			if cerr != nil {
				return stats, fmt.Errorf("partition %d: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			idle.Reset(r.opts.idleTimeout)

			stats.processed++
			if err := r.handle(msg, &stats); err != nil {
				return stats, err
			}
			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

func (r *replayer) handle(msg *sarama.ConsumerMessage, stats *replayStats) error {
	fields := log.Fields{"partition": msg.Partition, "offset": msg.Offset}

	replay, ok, err := extractReplayMessage(msg, r.opts.eventsTopic)
	switch {
	case err != nil:
		stats.skipped++
		r.log().WithError(err).WithFields(fields).Warn("skip malformed dlq message")
		return nil
	case !ok, r.opts.eventType != "" && replay.eventType != r.opts.eventType:
		stats.skipped++
		return nil
	}

	fields["target_topic"] = replay.topic
	fields["key"] = replay.key
	if !r.opts.execute {
		stats.replayed++
		r.log().WithFields(fields).Info("dlq replay candidate")
		return nil
	}

	var headers map[string]string
	if replay.eventType != "" {
		headers = map[string]string{kafka.HeaderEventType: replay.eventType}
	}
	if err := r.producer.PublishRaw(replay.topic, replay.key, replay.value, headers); err != nil {
		return fmt.Errorf("publish replay to %s: %w", replay.topic, err)
	}
	stats.replayed++
	r.log().WithFields(fields).Debug("dlq message replayed")
	return nil
}

// extractReplayMessage распознаёт два формата DLQ: сообщение consumer'а статусов
// (kafka.DLQMessage) и событие outbox, не опубликованное после всех попыток.
// ok=false означает, что формат не распознан.
func extractReplayMessage(msg *sarama.ConsumerMessage, eventsTopic string) (replayMessage, bool, error) {
	var consumed kafka.DLQMessage
	if err := json.Unmarshal(msg.Value, &consumed); err == nil && consumed.OriginalValue != "" {
		topic := strings.TrimSpace(consumed.OriginalTopic)
		if topic == "" {
			topic = kafka.TopicOrderStatus
		}
		return replayMessage{topic: topic, key: consumed.OriginalKey, value: []byte(consumed.OriginalValue)}, true, nil
	}

	var envelope kafka.OutboxEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil || len(envelope.Payload) == 0 {
		return replayMessage{}, false, nil
	}

	var failed outbox.DeadLetter
	if err := json.Unmarshal(envelope.Payload, &failed); err != nil {
		return replayMessage{}, false, fmt.Errorf("decode outbox dlq payload: %w", err)
	}
	if len(failed.Payload) == 0 {
		return replayMessage{}, false, errors.New("outbox dlq payload has no original event")
	}

	replay := kafka.OutboxEnvelope{
		ID:            firstNonEmpty(failed.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(failed.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(failed.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(failed.EventType, envelope.EventType),
		Payload:       failed.Payload,
		OccurredAt:    envelope.OccurredAt,
		PublishedAt:   time.Now().UTC(),
	}
	encoded, err := json.Marshal(replay)
	if err != nil {
		return replayMessage{}, false, fmt.Errorf("encode replay envelope: %w", err)
	}
	return replayMessage{
		topic:     eventsTopic,
		key:       firstNonEmpty(replay.AggregateID, replay.ID),
		eventType: replay.EventType,
		value:     encoded,
	}, true, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
