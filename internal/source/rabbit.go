package source

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ConsumingChannel is the slice of *amqp.Channel the source needs, kept as
// an interface so tests can stand in for a live broker.
type ConsumingChannel interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

type lease struct {
	delivery amqp.Delivery
	timer    *time.Timer
}

// RabbitSource consumes a queue with manual acknowledgments. Each received
// delivery is held under a lease: if the caller does not acknowledge within
// the visibility timeout, the delivery is Nack-requeued so the broker hands
// it to someone else.
type RabbitSource struct {
	conn       *amqp.Connection
	ch         ConsumingChannel
	deliveries <-chan amqp.Delivery
	queue      string
	logger     *log.Logger

	mu     sync.Mutex
	leases map[string]*lease
	closed bool
}

func NewRabbitSource(uri, queue string, logger *log.Logger) (*RabbitSource, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq connection failed: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel creation failed: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare failed: %w", err)
	}

	src, err := newRabbitSource(ch, queue, logger)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	src.conn = conn
	return src, nil
}

// newRabbitSource starts consuming over an already opened channel. Split
// from NewRabbitSource so the consume setup can be driven through a
// ConsumingChannel without a live broker.
func newRabbitSource(ch ConsumingChannel, queue string, logger *log.Logger) (*RabbitSource, error) {
	if logger == nil {
		logger = log.Default()
	}

	deliveries, err := ch.Consume(
		queue,
		"",
		false, // manual ack only
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("consume failed: %w", err)
	}

	return &RabbitSource{
		ch:         ch,
		deliveries: deliveries,
		queue:      queue,
		logger:     logger,
		leases:     make(map[string]*lease),
	}, nil
}

func (s *RabbitSource) Receive(ctx context.Context, opts ReceiveOptions) ([]Message, error) {
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = 1
	}

	wait := time.NewTimer(opts.WaitTime)
	defer wait.Stop()

	msgs := make([]Message, 0, opts.MaxMessages)
	for len(msgs) < opts.MaxMessages {
		select {
		case <-ctx.Done():
			return msgs, ctx.Err()
		case <-wait.C:
			return msgs, nil
		case d, ok := <-s.deliveries:
			if !ok {
				if len(msgs) > 0 {
					return msgs, nil
				}
				return nil, fmt.Errorf("consume channel for %q closed", s.queue)
			}
			msgs = append(msgs, s.lease(d, opts.VisibilityTimeout))
		}
	}
	return msgs, nil
}

func (s *RabbitSource) lease(d amqp.Delivery, visibility time.Duration) Message {
	handle := uuid.NewString()

	id := d.MessageId
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	s.leases[handle] = &lease{
		delivery: d,
		timer:    time.AfterFunc(visibility, func() { s.expire(handle) }),
	}
	s.mu.Unlock()

	return Message{
		ID:         id,
		Body:       d.Body,
		Attributes: flattenHeaders(d.Headers),
		Handle:     handle,
	}
}

// expire returns an unacknowledged delivery to the queue once its
// visibility timeout has passed.
func (s *RabbitSource) expire(handle string) {
	s.mu.Lock()
	l, ok := s.leases[handle]
	if ok {
		delete(s.leases, handle)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	if err := l.delivery.Nack(false, true); err != nil {
		s.logger.Printf("lease expiry requeue failed for %s: %v", l.delivery.MessageId, err)
		return
	}
	s.logger.Printf("lease expired, requeued message %s", l.delivery.MessageId)
}

func (s *RabbitSource) Acknowledge(_ context.Context, handle string) error {
	s.mu.Lock()
	l, ok := s.leases[handle]
	if ok {
		l.timer.Stop()
		delete(s.leases, handle)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown or expired lease %q", handle)
	}
	return l.delivery.Ack(false)
}

// Close requeues everything still leased so the broker can redeliver
// promptly instead of waiting for the connection teardown.
func (s *RabbitSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	pending := make([]*lease, 0, len(s.leases))
	for handle, l := range s.leases {
		l.timer.Stop()
		pending = append(pending, l)
		delete(s.leases, handle)
	}
	s.mu.Unlock()

	for _, l := range pending {
		_ = l.delivery.Nack(false, true)
	}

	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func flattenHeaders(headers amqp.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if str, ok := v.(string); ok {
			out[k] = str
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
