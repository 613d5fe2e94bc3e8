package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// ErrQueueFull is returned by AMQPPublisher.Publish when the send buffer is full.
var ErrQueueFull = errors.New("amqp publish queue full")

const (
	publishBuffer = 256
	dialTimeout   = 5 * time.Second
)

// AMQPPublisher publishes events as JSON to a topic exchange, routed by event type.
// Publish only enqueues; Run owns the connection and does the actual send.
type AMQPPublisher struct {
	mu       sync.Mutex
	amqpURL  string
	exchange string
	conn     *amqp.Connection
	channel  *amqp.Channel
	queue    chan Event
	send     func(Event) error
	logger   *zap.Logger
}

func NewAMQPPublisher(amqpURL, exchange string, logger *zap.Logger) (*AMQPPublisher, error) {
	p := newAMQPPublisher(amqpURL, exchange, publishBuffer, logger)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

func newAMQPPublisher(amqpURL, exchange string, buffer int, logger *zap.Logger) *AMQPPublisher {
	p := &AMQPPublisher{
		amqpURL:  amqpURL,
		exchange: exchange,
		queue:    make(chan Event, buffer),
		logger:   logger,
	}
	p.send = p.publishNow
	return p
}

// Publish 非阻塞入队，队列满时丢弃并返回 ErrQueueFull
func (p *AMQPPublisher) Publish(_ context.Context, e Event) error {
	select {
	case p.queue <- e:
		return nil
	default:
		return fmt.Errorf("%w: dropping %s %s", ErrQueueFull, e.Type, e.SubjectID)
	}
}

// Run 后台发送队列中的事件，ctx 结束时尽量发完已入队的事件
func (p *AMQPPublisher) Run(ctx context.Context) {
	for {
		select {
		case e := <-p.queue:
			p.deliver(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-p.queue:
					p.deliver(e)
				default:
					return
				}
			}
		}
	}
}

func (p *AMQPPublisher) deliver(e Event) {
	if err := p.send(e); err != nil {
		p.logger.Warn("amqp publish failed, event dropped",
			zap.String("type", string(e.Type)),
			zap.String("subject_id", e.SubjectID),
			zap.Error(err))
	}
}

func (p *AMQPPublisher) publishNow(e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	publishing := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.At,
		Type:         string(e.Type),
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() || p.channel == nil {
		p.closeLocked()
		if err := p.connectLocked(); err != nil {
			return err
		}
	}

	err = p.channel.Publish(p.exchange, string(e.Type), false, false, publishing)
	if err != nil && isConnClosedErr(err) {
		p.logger.Warn("amqp channel closed, reconnecting", zap.Error(err))
		p.closeLocked()
		if connErr := p.connectLocked(); connErr != nil {
			return fmt.Errorf("failed to publish event: %w (reconnect failed: %v)", err, connErr)
		}
		err = p.channel.Publish(p.exchange, string(e.Type), false, false, publishing)
	}
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.channel != nil {
		err = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		if connErr := p.conn.Close(); connErr != nil && err == nil {
			err = connErr
		}
		p.conn = nil
	}
	return err
}

func (p *AMQPPublisher) connectLocked() error {
	conn, err := amqp.DialConfig(p.amqpURL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.conn = conn
	p.channel = ch
	return nil
}

func (p *AMQPPublisher) closeLocked() {
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func isConnClosedErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp.ErrClosed) {
		return true
	}
	return strings.Contains(err.Error(), "channel/connection is not open")
}
