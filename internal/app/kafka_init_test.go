package app

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestInitKafkaProducer_EmptyBrokers(t *testing.T) {
	logger := log.WithField("test", "kafka")

	for _, brokers := range []string{"", " ", " , "} {
		producer, err := initKafkaProducer(brokers, "storefront", logger)
		require.NoError(t, err)
		assert.Nil(t, producer)
	}
}

func TestInitKafkaProducer_UnreachableBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("dials a closed port")
	}
	producer, err := initKafkaProducer("127.0.0.1:1", "storefront", log.WithField("test", "kafka"))

	require.Error(t, err)
	assert.Nil(t, producer)
}

func TestInitKafka_WithoutBrokersLogsOutbox(t *testing.T) {
	cfg := DefaultConfig()
	rt := initKafka(cfg, nil, log.WithField("test", "kafka"))

	assert.Nil(t, rt.producer)
	assert.Nil(t, rt.consumer)
	assert.Nil(t, rt.dlqPublisher)
	assert.IsType(t, &outbox.LogPublisher{}, rt.publisher)

	// без consumer и producer start/close ничего не делают
	rt.start(t.Context(), log.WithField("test", "kafka"))
	rt.close(log.WithField("test", "kafka"))
}

func TestKafkaRuntime_NilSafe(t *testing.T) {
	logger := log.WithField("test", "kafka")
	var rt *kafkaRuntime

	rt.start(t.Context(), logger)
	rt.close(logger)
	closeKafka(nil, logger)
}

func TestOutboxBacklogCheck(t *testing.T) {
	repo := memory.NewOutboxRepository()
	check := outboxBacklogCheck(repo, 1)

	require.NoError(t, check(t.Context()))

	for _, id := range []string{"o-1", "o-2"} {
		_, err := repo.Enqueue(outboxMessage(id))
		require.NoError(t, err)
	}
	assert.ErrorContains(t, check(t.Context()), "outbox backlog 2 exceeds 1")

	assert.NoError(t, outboxBacklogCheck(repo, 0)(t.Context()))
}
