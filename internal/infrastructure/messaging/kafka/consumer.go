package kafka

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

var (
	ErrAlreadyRunning = errors.New(errors.ErrCodeConflict, "consumer already running")
)

// RetryConfig defines handler retry behavior.
type RetryConfig struct {
	MaxRetries      int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
}

// ConsumerConfig holds configuration for the Consumer.
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topics  []string
	// Latest starts a new group at the end of the log instead of the beginning.
	Latest      bool
	RetryConfig RetryConfig
}

// ConsumerMetrics holds consumer counters.
type ConsumerMetrics struct {
	MessagesConsumed  atomic.Int64
	MessagesProcessed atomic.Int64
	MessagesFailed    atomic.Int64
	MessagesRetried   atomic.Int64
}

// ReaderInterface abstracts kafka.Reader for testing.
type ReaderInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer dispatches messages to per-topic handlers.
type Consumer struct {
	reader ReaderInterface
	config ConsumerConfig
	logger logging.Logger

	handlers map[string]MessageHandler
	mu       sync.RWMutex

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	metrics *ConsumerMetrics
}

// NewConsumer creates a group consumer over cfg.Topics.
func NewConsumer(cfg ConsumerConfig, logger logging.Logger) (*Consumer, error) {
	if err := ValidateConsumerConfig(cfg); err != nil {
		return nil, err
	}
	start := kafka.FirstOffset
	if cfg.Latest {
		start = kafka.LastOffset
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		GroupTopics:    cfg.Topics,
		MinBytes:       1,
		MaxBytes:       10 * 1024 * 1024,
		MaxWait:        time.Second,
		SessionTimeout: 30 * time.Second,
		StartOffset:    start,
	})
	return NewConsumerWithReader(reader, cfg, logger), nil
}

// NewConsumerWithReader wraps an existing reader.
func NewConsumerWithReader(r ReaderInterface, cfg ConsumerConfig, logger logging.Logger) *Consumer {
	return &Consumer{
		reader:   r,
		config:   cfg,
		logger:   logger,
		handlers: make(map[string]MessageHandler),
		metrics:  &ConsumerMetrics{},
	}
}

// Subscribe registers handler for topic, replacing any previous one.
func (c *Consumer) Subscribe(topic string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = handler
	c.logger.Info("subscribed to topic", logging.String("topic", topic))
}

// Start runs the consume loop in the background.
func (c *Consumer) Start(ctx context.Context) error {
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.Info("kafka consumer started", logging.String("group", c.config.GroupID))
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("fetch message failed", logging.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		c.metrics.MessagesConsumed.Add(1)

		msg := fromKafkaMessage(m)
		c.mu.RLock()
		handler, ok := c.handlers[m.Topic]
		c.mu.RUnlock()

		if !ok {
			c.logger.Warn("no handler for topic", logging.String("topic", m.Topic))
		} else if err := c.processMessage(ctx, msg, handler); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.metrics.MessagesFailed.Add(1)
		} else {
			c.metrics.MessagesProcessed.Add(1)
		}

		// Failed messages are committed too; a poisoned job must not block the group.
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Error("commit failed", logging.Err(err), logging.Int64("offset", m.Offset))
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg *Message, handler MessageHandler) error {
	err := handler(ctx, msg)
	if err == nil {
		return nil
	}

	maxRetries := c.config.RetryConfig.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	backoff := c.config.RetryConfig.RetryBackoff
	if backoff == 0 {
		backoff = time.Second
	}
	maxBackoff := c.config.RetryConfig.MaxRetryBackoff
	if maxBackoff == 0 {
		maxBackoff = 30 * time.Second
	}

	for i := 0; i < maxRetries; i++ {
		// Lock contention is not retried here; another run already holds the pipeline.
		if errors.IsCode(err, errors.ErrCodePipelineLocked) {
			break
		}
		c.metrics.MessagesRetried.Add(1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if err = handler(ctx, msg); err == nil {
			return nil
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	c.logger.Error("message processing failed",
		logging.String("topic", msg.Topic),
		logging.Int64("offset", msg.Offset),
		logging.Err(err))
	return err
}

// Processed returns processed/failed counters.
func (c *Consumer) Processed() (processed, failed int64) {
	return c.metrics.MessagesProcessed.Load(), c.metrics.MessagesFailed.Load()
}

// Close stops the loop and closes the reader.
func (c *Consumer) Close() error {
	if !c.running.CompareAndSwap(true, false) {
		return c.reader.Close()
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	err := c.reader.Close()
	c.logger.Info("kafka consumer closed",
		logging.Int64("consumed", c.metrics.MessagesConsumed.Load()))
	return err
}

func fromKafkaMessage(m kafka.Message) *Message {
	msg := &Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Timestamp: m.Time,
		Headers:   make(map[string]string, len(m.Headers)),
	}
	for _, h := range m.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}
	return msg
}

// ValidateConsumerConfig validates configuration.
func ValidateConsumerConfig(cfg ConsumerConfig) error {
	if len(cfg.Brokers) == 0 {
		return errors.New(errors.ErrCodeValidation, "brokers required")
	}
	if cfg.GroupID == "" {
		return errors.New(errors.ErrCodeValidation, "GroupID required")
	}
	if len(cfg.Topics) == 0 {
		return errors.New(errors.ErrCodeValidation, "at least one topic required")
	}
	return nil
}
