// Package events ships fleet lifecycle events to RabbitMQ for downstream
// consumers such as alerting and audit.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"signage-fleet-server/internal/metrics"
)

const (
	TypeDevicePaired             = "device.paired"
	TypeDeviceRevoked            = "device.revoked"
	TypeDeviceReactivated        = "device.reactivated"
	TypeDeviceDeleted            = "device.deleted"
	TypeSessionCompromised       = "device.session.compromised"
	TypeCampaignStatusTransition = "campaign.status"
)

type Event struct {
	Type       string            `json:"type"`
	DeviceID   string            `json:"device_id,omitempty"`
	CompanyID  string            `json:"company_id,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Detail     map[string]string `json:"detail,omitempty"`
}

// Publisher is fire-and-forget. Implementations must not block callers.
type Publisher interface {
	Publish(ev Event)
}

type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}

// AMQPPublisher buffers events and delivers them from a single goroutine
// holding a long-lived broker connection.
type AMQPPublisher struct {
	url    string
	queue  string
	events chan Event
	log    *logrus.Entry
}

func NewAMQPPublisher(url, queue string, buffer int) *AMQPPublisher {
	if buffer <= 0 {
		buffer = 1024
	}
	return &AMQPPublisher{
		url:    url,
		queue:  queue,
		events: make(chan Event, buffer),
		log:    logrus.WithField("component", "events"),
	}
}

func (p *AMQPPublisher) Publish(ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	select {
	case p.events <- ev:
	default:
		metrics.EventsPublishedTotal.WithLabelValues("dropped").Inc()
		p.log.WithField("type", ev.Type).Warn("Event buffer full, dropping event")
	}
}

// Run connects with backoff and drains the buffer until ctx is cancelled.
func (p *AMQPPublisher) Run(ctx context.Context) {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			p.log.WithError(err).WithField("retry_in", backoff).Warn("Failed to dial broker")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = p.publishLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		p.log.WithError(err).Warn("Publish loop ended, reconnecting")
	}
}

func (p *AMQPPublisher) publishLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			return fmt.Errorf("connection closed: %v", amqpErr)
		case ev := <-p.events:
			if err := p.publish(ctx, ch, ev); err != nil {
				metrics.EventsPublishedTotal.WithLabelValues("failed").Inc()
				return err
			}
			metrics.EventsPublishedTotal.WithLabelValues("ok").Inc()
		}
	}
}

func (p *AMQPPublisher) publish(ctx context.Context, ch *amqp.Channel, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return ch.PublishWithContext(pubCtx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.OccurredAt,
		Type:         ev.Type,
		Body:         body,
	})
}
