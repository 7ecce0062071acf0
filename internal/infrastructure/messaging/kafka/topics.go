package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/jeffrey-bowles/uspto/internal/config"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

const (
	DefaultIndexTopic = "uspto.index.rebuilt"
	DefaultJobsTopic  = "uspto.pipeline.jobs"

	EventIndexRebuilt = "index.rebuilt"
	EventPipelineJob  = "pipeline.job"

	SourcePipeline = "uspto-pipeline"
	SourceCLI      = "ptoctl"
)

// Job kinds accepted on the jobs topic.
const (
	JobCycle = "cycle"
	JobDaily = "daily"
	JobSync  = "sync"
	JobIndex = "index"
)

// IndexTopic returns the configured index topic or its default.
func IndexTopic(cfg config.KafkaConfig) string {
	if cfg.IndexTopic != "" {
		return cfg.IndexTopic
	}
	return DefaultIndexTopic
}

// JobsTopic returns the configured jobs topic or its default.
func JobsTopic(cfg config.KafkaConfig) string {
	if cfg.JobsTopic != "" {
		return cfg.JobsTopic
	}
	return DefaultJobsTopic
}

// EventEnvelope standardizes event messages.
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion string          `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// IndexRebuiltPayload announces a completed index build.
type IndexRebuiltPayload struct {
	RunID   string         `json:"run_id"`
	BuiltAt time.Time      `json:"built_at"`
	Sets    map[string]int `json:"sets"`
}

// JobPayload requests a pipeline run.
type JobPayload struct {
	Kind        string    `json:"kind"`
	RequestedAt time.Time `json:"requested_at"`
	RequestedBy string    `json:"requested_by,omitempty"`
}

// ValidJobKind reports whether kind names a runnable job.
func ValidJobKind(kind string) bool {
	switch kind {
	case JobCycle, JobDaily, JobSync, JobIndex:
		return true
	}
	return false
}

func NewEventEnvelope(eventType, source string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: "v1",
		Payload:       data,
	}, nil
}

func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return errors.New(errors.ErrCodeValidation, "empty event payload").WithDetail("event=" + e.EventType)
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode payload")
	}
	return nil
}

func (e *EventEnvelope) ToMessage(topic string) (*ProducerMessage, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	return &ProducerMessage{
		Topic: topic,
		Key:   []byte(e.EventType),
		Value: val,
		Headers: map[string]string{
			"event_type":     e.EventType,
			"source_service": e.Source,
			"schema_version": e.SchemaVersion,
		},
		Timestamp: e.Timestamp,
	}, nil
}

func MessageToEventEnvelope(msg *Message) (*EventEnvelope, error) {
	if len(msg.Value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal envelope")
	}
	return &env, nil
}

// TopicConfig describes a topic to create.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	RetentionMs       int64
}

// ConnInterface abstracts kafka.Conn for testing.
type ConnInterface interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// TopicManager creates the pipeline topics.
type TopicManager struct {
	conn   ConnInterface
	logger logging.Logger
}

func NewTopicManager(brokers []string, logger logging.Logger) (*TopicManager, error) {
	if len(brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "brokers required")
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMessagingError, "failed to dial kafka")
	}
	return NewTopicManagerWithConn(conn, logger), nil
}

func NewTopicManagerWithConn(conn ConnInterface, logger logging.Logger) *TopicManager {
	return &TopicManager{conn: conn, logger: logger}
}

func (m *TopicManager) CreateTopic(ctx context.Context, cfg TopicConfig) error {
	if cfg.Name == "" {
		return errors.New(errors.ErrCodeValidation, "topic name required")
	}
	if cfg.NumPartitions <= 0 || cfg.ReplicationFactor <= 0 {
		return errors.New(errors.ErrCodeValidation, "partitions and replication factor must be > 0")
	}
	if exists, _ := m.TopicExists(ctx, cfg.Name); exists {
		return nil
	}

	kCfg := kafka.TopicConfig{
		Topic:             cfg.Name,
		NumPartitions:     cfg.NumPartitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}
	if cfg.RetentionMs > 0 {
		kCfg.ConfigEntries = append(kCfg.ConfigEntries, kafka.ConfigEntry{
			ConfigName:  "retention.ms",
			ConfigValue: strconv.FormatInt(cfg.RetentionMs, 10),
		})
	}
	if err := m.conn.CreateTopics(kCfg); err != nil {
		if errors.Is(err, kafka.TopicAlreadyExists) {
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeMessagingError, "create topic failed").WithDetail("topic=" + cfg.Name)
	}
	m.logger.Info("topic created", logging.String("topic", cfg.Name))
	return nil
}

func (m *TopicManager) TopicExists(ctx context.Context, name string) (bool, error) {
	partitions, err := m.conn.ReadPartitions(name)
	if err != nil {
		return false, nil
	}
	return len(partitions) > 0, nil
}

func (m *TopicManager) EnsureTopics(ctx context.Context, topics []TopicConfig) error {
	for _, topic := range topics {
		if err := m.CreateTopic(ctx, topic); err != nil {
			return err
		}
	}
	return nil
}

func (m *TopicManager) Close() error {
	return m.conn.Close()
}

// PipelineTopics returns the index and jobs topics for cfg.
func PipelineTopics(cfg config.KafkaConfig) []TopicConfig {
	const day = int64(24 * 3600 * 1000)
	return []TopicConfig{
		{Name: IndexTopic(cfg), NumPartitions: 1, ReplicationFactor: 1, RetentionMs: 7 * day},
		{Name: JobsTopic(cfg), NumPartitions: 1, ReplicationFactor: 1, RetentionMs: 3 * day},
	}
}
