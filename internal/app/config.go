package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	envPrefix = "STOREFRONT"
)

// Config описывает настройки запуска витрины.
type Config struct {
	GRPCAddr    string
	MetricsAddr string
	LogLevel    string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// RedisAddr включает хранение корзин в Redis; если пусто, корзины в памяти.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CartTTL       time.Duration

	// BackendURL: адрес бэкенда магазина, если пусто, работают встроенные заглушки.
	BackendURL     string
	BackendTimeout time.Duration

	// KafkaBrokers: список брокеров через запятую, если пусто, сервис работает без Kafka.
	KafkaBrokers       string
	KafkaClientID      string
	KafkaConsumerGroup string
	KafkaMaxRetries    int
	OrderEventsTopic   string
	OrderStatusTopic   string
	DLQTopic           string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// OutboxMaxPending: порог очереди outbox, выше которого сервис degraded.
	OutboxMaxPending int

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	PreviewDebounce time.Duration
	PreviewTimeout  time.Duration
	PaymentWindow   time.Duration

	// Тарифы доставки в минимальных единицах валюты.
	ShippingPerKm int64
	ShippingPerKg int64
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",
		LogLevel:    "info",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		CartTTL: 7 * 24 * time.Hour,

		BackendTimeout: 10 * time.Second,

		KafkaClientID:      "storefront",
		KafkaConsumerGroup: "storefront-order-status",
		KafkaMaxRetries:    3,
		OrderEventsTopic:   kafka.TopicOrderEvents,
		OrderStatusTopic:   kafka.TopicOrderStatus,
		DLQTopic:           kafka.TopicDeadLetterQueue,

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  5,
		OutboxRetryDelay:   200 * time.Millisecond,
		OutboxMaxPending:   1000,

		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,

		PreviewDebounce: 300 * time.Millisecond,
		PreviewTimeout:  10 * time.Second,
		PaymentWindow:   24 * time.Hour,

		ShippingPerKm: 2000,
		ShippingPerKg: 1000,
	}
}

// LoadConfig читает настройки из окружения с префиксом STOREFRONT_.
// Файл .env подхватывается, если он есть.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	cfg := Config{
		GRPCAddr:    v.GetString("grpc.addr"),
		MetricsAddr: v.GetString("metrics.addr"),
		LogLevel:    v.GetString("log.level"),

		StorageDriver:       strings.ToLower(strings.TrimSpace(v.GetString("storage.driver"))),
		PostgresDSN:         v.GetString("postgres.dsn"),
		PostgresAutoMigrate: v.GetBool("postgres.automigrate"),

		RedisAddr:     v.GetString("redis.addr"),
		RedisPassword: v.GetString("redis.password"),
		RedisDB:       v.GetInt("redis.db"),
		CartTTL:       v.GetDuration("cart.ttl"),

		BackendURL:     v.GetString("backend.url"),
		BackendTimeout: v.GetDuration("backend.timeout"),

		KafkaBrokers:       v.GetString("kafka.brokers"),
		KafkaClientID:      v.GetString("kafka.clientid"),
		KafkaConsumerGroup: v.GetString("kafka.group"),
		KafkaMaxRetries:    v.GetInt("kafka.maxretries"),
		OrderEventsTopic:   v.GetString("kafka.topic.events"),
		OrderStatusTopic:   v.GetString("kafka.topic.status"),
		DLQTopic:           v.GetString("kafka.topic.dlq"),

		OutboxPollInterval: v.GetDuration("outbox.pollinterval"),
		OutboxBatchSize:    v.GetInt("outbox.batchsize"),
		OutboxMaxAttempts:  v.GetInt("outbox.maxattempts"),
		OutboxRetryDelay:   v.GetDuration("outbox.retrydelay"),
		OutboxMaxPending:   v.GetInt("outbox.maxpending"),

		IdempotencyCleanupInterval:  v.GetDuration("idempotency.cleanupinterval"),
		IdempotencyCleanupBatchSize: v.GetInt("idempotency.cleanupbatchsize"),

		PreviewDebounce: v.GetDuration("preview.debounce"),
		PreviewTimeout:  v.GetDuration("preview.timeout"),
		PaymentWindow:   v.GetDuration("payment.window"),

		ShippingPerKm: v.GetInt64("shipping.perkm"),
		ShippingPerKg: v.GetInt64("shipping.perkg"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	defaults := map[string]any{
		"grpc.addr":                    d.GRPCAddr,
		"metrics.addr":                 d.MetricsAddr,
		"log.level":                    d.LogLevel,
		"storage.driver":               d.StorageDriver,
		"postgres.dsn":                 d.PostgresDSN,
		"postgres.automigrate":         d.PostgresAutoMigrate,
		"redis.addr":                   d.RedisAddr,
		"redis.password":               d.RedisPassword,
		"redis.db":                     d.RedisDB,
		"cart.ttl":                     d.CartTTL,
		"backend.url":                  d.BackendURL,
		"backend.timeout":              d.BackendTimeout,
		"kafka.brokers":                d.KafkaBrokers,
		"kafka.clientid":               d.KafkaClientID,
		"kafka.group":                  d.KafkaConsumerGroup,
		"kafka.maxretries":             d.KafkaMaxRetries,
		"kafka.topic.events":           d.OrderEventsTopic,
		"kafka.topic.status":           d.OrderStatusTopic,
		"kafka.topic.dlq":              d.DLQTopic,
		"outbox.pollinterval":          d.OutboxPollInterval,
		"outbox.batchsize":             d.OutboxBatchSize,
		"outbox.maxattempts":           d.OutboxMaxAttempts,
		"outbox.retrydelay":            d.OutboxRetryDelay,
		"outbox.maxpending":            d.OutboxMaxPending,
		"idempotency.cleanupinterval":  d.IdempotencyCleanupInterval,
		"idempotency.cleanupbatchsize": d.IdempotencyCleanupBatchSize,
		"preview.debounce":             d.PreviewDebounce,
		"preview.timeout":              d.PreviewTimeout,
		"payment.window":               d.PaymentWindow,
		"shipping.perkm":               d.ShippingPerKm,
		"shipping.perkg":               d.ShippingPerKg,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.GRPCAddr) == "" {
		errs = append(errs, errors.New("grpc addr is required"))
	}
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}
	if c.OutboxBatchSize <= 0 || c.OutboxMaxAttempts <= 0 || c.OutboxPollInterval <= 0 {
		errs = append(errs, errors.New("outbox poll interval, batch size and max attempts must be positive"))
	}
	if c.IdempotencyCleanupInterval <= 0 || c.IdempotencyCleanupBatchSize <= 0 {
		errs = append(errs, errors.New("idempotency cleanup interval and batch size must be positive"))
	}
	if c.PreviewDebounce < 0 || c.PaymentWindow <= 0 {
		errs = append(errs, errors.New("preview debounce must be non-negative and payment window positive"))
	}
	if c.ShippingPerKm < 0 || c.ShippingPerKg < 0 {
		errs = append(errs, errors.New("shipping rates must be non-negative"))
	}
	if c.KafkaBrokers != "" && (c.OrderEventsTopic == "" || c.OrderStatusTopic == "" || c.DLQTopic == "") {
		errs = append(errs, errors.New("kafka topics are required when brokers are set"))
	}
	return errors.Join(errs...)
}

// kafkaBrokerList разбирает список брокеров, отбрасывая пробелы и пустые элементы.
func kafkaBrokerList(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
