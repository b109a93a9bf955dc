package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/ProjectChat/config"
)

func testConfig() *config.KafkaConfig {
	return &config.KafkaConfig{
		Enabled:        true,
		Brokers:        []string{"127.0.0.1:9092"},
		Topic:          "chat.analytics",
		MaxRetries:     2,
		RetryBackoffMs: 1,
	}
}

func TestProduce(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"event":"message_sent"}` {
			return errors.New("unexpected payload " + string(val))
		}
		return nil
	})

	p := NewProducerWith(sp, testConfig())
	_, _, err := p.Produce(context.Background(), "chat.analytics", []byte("42"), []byte(`{"event":"message_sent"}`))
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestProduce_Error(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerWith(sp, testConfig())
	_, _, err := p.Produce(context.Background(), "chat.analytics", nil, []byte("x"))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestProduce_CanceledContext(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	p := NewProducerWith(sp, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := p.Produce(ctx, "chat.analytics", nil, []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, p.Close())
}

func TestRetryingProducer(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)
	sp.ExpectSendMessageAndSucceed()

	p := RetryingProducer{NewProducerWith(sp, testConfig())}
	_, _, err := p.Produce(context.Background(), "chat.analytics", []byte("k"), []byte("v"))
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestProduceWithRetry_GivesUp(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	for range 3 {
		sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	}

	p := NewProducerWith(sp, testConfig())
	_, _, err := p.ProduceWithRetry(context.Background(), "chat.analytics", nil, []byte("v"), 2)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}
