package source

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// messageFetcher matches the kafka.Reader methods the source uses.
type messageFetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource adapts a consumer-group reader to the Source contract.
// Acknowledge commits the message's offset; unacknowledged messages are
// redelivered after a rebalance or restart, so at-least-once holds.
// Note that committing offset N also covers everything before it on the
// same partition, which is the usual Kafka trade-off for retry ordering.
type KafkaSource struct {
	reader messageFetcher
	logger *log.Logger

	mu      sync.Mutex
	pending map[string]kafka.Message
}

func NewKafkaSource(brokers []string, topic, group string, logger *log.Logger) *KafkaSource {
	if logger == nil {
		logger = log.Default()
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        group,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit only
	})

	return &KafkaSource{
		reader:  reader,
		logger:  logger,
		pending: make(map[string]kafka.Message),
	}
}

func (s *KafkaSource) Receive(ctx context.Context, opts ReceiveOptions) ([]Message, error) {
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = 1
	}

	fetchCtx, cancel := context.WithTimeout(ctx, opts.WaitTime)
	defer cancel()

	msgs := make([]Message, 0, opts.MaxMessages)
	for len(msgs) < opts.MaxMessages {
		m, err := s.reader.FetchMessage(fetchCtx)
		if err != nil {
			// The wait deadline elapsing with a partial (or empty)
			// batch is a normal long-poll result.
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return msgs, nil
			}
			if len(msgs) > 0 {
				return msgs, nil
			}
			return nil, fmt.Errorf("fetch message: %w", err)
		}

		handle := uuid.NewString()
		s.mu.Lock()
		s.pending[handle] = m
		s.mu.Unlock()

		msgs = append(msgs, Message{
			ID:         kafkaMessageID(m),
			Body:       m.Value,
			Attributes: flattenKafkaHeaders(m.Headers),
			Handle:     handle,
		})
	}
	return msgs, nil
}

func (s *KafkaSource) Acknowledge(ctx context.Context, handle string) error {
	s.mu.Lock()
	m, ok := s.pending[handle]
	if ok {
		delete(s.pending, handle)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown lease %q", handle)
	}
	return s.reader.CommitMessages(ctx, m)
}

func (s *KafkaSource) Close() error {
	return s.reader.Close()
}

func kafkaMessageID(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == "message_id" && len(h.Value) > 0 {
			return string(h.Value)
		}
	}
	if len(m.Key) > 0 {
		return string(m.Key)
	}
	return fmt.Sprintf("%s-%d-%d", m.Topic, m.Partition, m.Offset)
}

func flattenKafkaHeaders(headers []kafka.Header) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		out[h.Key] = string(h.Value)
	}
	return out
}
