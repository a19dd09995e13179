package events

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var ErrProducerClosed = errors.New("producer closed")

// Producer buffers messages in memory and hands them to an async kafka
// writer from a single goroutine.
type Producer struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closing chan struct{}
	closeCh chan struct{}
	once    sync.Once
	logger  *zap.Logger
}

func NewProducer(brokers []string, topic string, buf int, logger *zap.Logger) *Producer {
	p := &Producer{
		inbox:   make(chan kafka.Message, buf),
		closing: make(chan struct{}),
		closeCh: make(chan struct{}),
		logger:  logger,
	}
	p.w = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		Completion:   p.completion,
	}
	return p
}

func (p *Producer) completion(messages []kafka.Message, err error) {
	if err == nil {
		return
	}
	for _, m := range messages {
		p.logger.Error("kafka write failed",
			zap.String("topic", p.w.Topic),
			zap.ByteString("key", m.Key),
			zap.Error(err),
		)
	}
}

// Start runs the writer loop in its own goroutine. Cancelling ctx closes the
// producer the same way Close does.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case m := <-p.inbox:
				p.write(m)
			case <-ctx.Done():
				p.Close()
				p.drain()
				return
			case <-p.closing:
				p.drain()
				return
			}
		}
	}()
}

func (p *Producer) drain() {
	for {
		select {
		case m := <-p.inbox:
			p.write(m)
		default:
			if err := p.w.Close(); err != nil {
				p.logger.Warn("close kafka writer", zap.Error(err))
			}
			return
		}
	}
}

func (p *Producer) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		p.logger.Error("kafka enqueue failed", zap.ByteString("key", m.Key), zap.Error(err))
	}
}

func (p *Producer) Send(ctx context.Context, key, value []byte, headers ...kafka.Header) error {
	select {
	case <-p.closing:
		return ErrProducerClosed
	default:
	}

	m := kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}

	select {
	case p.inbox <- m:
		return nil
	case <-p.closing:
		return ErrProducerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish keys messages by correlation id so one order's events stay on one
// partition in order.
func (p *Producer) Publish(ctx context.Context, ev Envelope) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	return p.Send(ctx, []byte(ev.CorrelationID), value,
		kafka.Header{Key: "x-event-type", Value: []byte(ev.EventType)},
		kafka.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(ev.EventVersion))},
	)
}

// Close stops accepting messages; the writer goroutine flushes what is
// buffered and exits.
func (p *Producer) Close() {
	p.once.Do(func() { close(p.closing) })
}

func (p *Producer) WaitClosed() { <-p.closeCh }
