package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffrey-bowles/uspto/internal/config"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	apperrors "github.com/jeffrey-bowles/uspto/pkg/errors"
)

type mockKafkaWriter struct {
	writeFunc func(ctx context.Context, msgs ...kafka.Message) error
	written   []kafka.Message
	closes    int
}

func (m *mockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.writeFunc != nil {
		if err := m.writeFunc(ctx, msgs...); err != nil {
			return err
		}
	}
	m.written = append(m.written, msgs...)
	return nil
}

func (m *mockKafkaWriter) Close() error {
	m.closes++
	return nil
}

func newTestProducer(w WriterInterface) *Producer {
	return NewProducerWithWriter(w, ProducerConfig{
		Brokers:         []string{"localhost:9092"},
		MaxMessageBytes: 64,
	}, logging.NewNopLogger())
}

func TestPublish_Success(t *testing.T) {
	w := &mockKafkaWriter{}
	p := newTestProducer(w)

	err := p.Publish(context.Background(), &ProducerMessage{
		Topic:   DefaultIndexTopic,
		Key:     []byte("k"),
		Value:   []byte("v"),
		Headers: map[string]string{"h": "1"},
	})
	require.NoError(t, err)
	require.Len(t, w.written, 1)
	assert.Equal(t, DefaultIndexTopic, w.written[0].Topic)
	assert.Equal(t, "1", string(w.written[0].Headers[0].Value))
	assert.False(t, w.written[0].Time.IsZero())

	sent, failed := p.Metrics()
	assert.Equal(t, int64(1), sent)
	assert.Zero(t, failed)
}

func TestPublish_Validation(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{})
	ctx := context.Background()

	assert.True(t, apperrors.IsValidation(p.Publish(ctx, &ProducerMessage{Value: []byte("v")})))
	assert.True(t, apperrors.IsValidation(p.Publish(ctx, &ProducerMessage{Topic: "t"})))
	big := []byte(strings.Repeat("x", 65))
	assert.True(t, apperrors.IsValidation(p.Publish(ctx, &ProducerMessage{Topic: "t", Value: big})))
}

func TestPublish_WriterError(t *testing.T) {
	w := &mockKafkaWriter{writeFunc: func(ctx context.Context, msgs ...kafka.Message) error {
		return errors.New("broker down")
	}}
	p := newTestProducer(w)

	err := p.Publish(context.Background(), &ProducerMessage{Topic: "t", Value: []byte("v")})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeMessagingError))
	_, failed := p.Metrics()
	assert.Equal(t, int64(1), failed)
}

func TestPublish_AfterClose(t *testing.T) {
	w := &mockKafkaWriter{}
	p := newTestProducer(w)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, w.closes)

	err := p.Publish(context.Background(), &ProducerMessage{Topic: "t", Value: []byte("v")})
	assert.Equal(t, ErrProducerClosed, err)
}

func TestPublishEvent_WrapsEnvelope(t *testing.T) {
	w := &mockKafkaWriter{}
	p := NewProducerWithWriter(w, ProducerConfig{Brokers: []string{"b:9092"}}, logging.NewNopLogger())
	built := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	err := p.PublishEvent(context.Background(), DefaultIndexTopic, EventIndexRebuilt, IndexRebuiltPayload{
		RunID:   "run-1",
		BuiltAt: built,
		Sets:    map[string]int{"four_year": 10},
	})
	require.NoError(t, err)
	require.Len(t, w.written, 1)

	var env EventEnvelope
	require.NoError(t, json.Unmarshal(w.written[0].Value, &env))
	assert.Equal(t, EventIndexRebuilt, env.EventType)
	assert.Equal(t, SourcePipeline, env.Source)
	assert.NotEmpty(t, env.EventID)

	var payload IndexRebuiltPayload
	require.NoError(t, env.DecodePayload(&payload))
	assert.Equal(t, "run-1", payload.RunID)
	assert.True(t, built.Equal(payload.BuiltAt))
	assert.Equal(t, 10, payload.Sets["four_year"])
}

func TestValidateProducerConfig(t *testing.T) {
	assert.Error(t, ValidateProducerConfig(ProducerConfig{}))
	assert.Error(t, ValidateProducerConfig(ProducerConfig{Brokers: []string{"b"}, MaxRetries: -1}))
	assert.NoError(t, ValidateProducerConfig(ProducerConfigFrom(config.KafkaConfig{Brokers: []string{"b"}})))
}
