package audit

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPSink publishes events as persistent JSON messages to a durable queue.
type AMQPSink struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	mu      sync.Mutex
}

// DialAMQP connects to url and declares queue.
func DialAMQP(url, queue string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &AMQPSink{conn: conn, channel: ch, queue: queue}, nil
}

// EncodeEvent renders e as the message body published to the queue.
func EncodeEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}

func (s *AMQPSink) Record(ctx context.Context, e Event) error {
	body, err := EncodeEvent(e)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID.String(),
		Timestamp:    e.At,
		Type:         e.TargetType + "." + e.Action,
		Body:         body,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.channel.PublishWithContext(ctx, "", s.queue, false, false, msg); err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}
	return nil
}

func (s *AMQPSink) Close() error {
	if err := s.channel.Close(); err != nil {
		s.conn.Close()
		return err
	}
	return s.conn.Close()
}
