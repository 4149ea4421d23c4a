package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xavierca1/ligue-crm/internal/entity"
	"github.com/xavierca1/ligue-crm/internal/pipeline"
)

const (
	EventLeadCreated       = "lead.created"
	EventLeadUpdated       = "lead.updated"
	EventLeadStatusChanged = "lead.status_changed"
	EventLeadDeleted       = "lead.deleted"
)

// LeadEvent is the message body on the CRM exchange. The routing key is Type.
type LeadEvent struct {
	Type       string        `json:"type"`
	LeadID     string        `json:"lead_id"`
	Lead       *entity.Lead  `json:"lead,omitempty"`
	From       entity.Status `json:"from,omitempty"`
	To         entity.Status `json:"to,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// ChannelPublisher is satisfied by *amqp.Channel.
type ChannelPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type RabbitMQProducer struct {
	Ch ChannelPublisher
}

func NewProducer(ch ChannelPublisher) *RabbitMQProducer {
	return &RabbitMQProducer{Ch: ch}
}

func (p *RabbitMQProducer) PublishLeadEvent(ctx context.Context, event LeadEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode lead event: %w", err)
	}

	err = p.Ch.PublishWithContext(ctx,
		ExchangeName,
		event.Type,
		false, // Mandatory
		false, // Immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    event.LeadID + ":" + event.Type + ":" + event.OccurredAt.Format(time.RFC3339Nano),
			Timestamp:    event.OccurredAt,
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}

	return nil
}

// PublishStatusChanged makes the producer a pipeline.StatusChangePublisher.
func (p *RabbitMQProducer) PublishStatusChanged(ctx context.Context, change pipeline.StatusChange) error {
	return p.PublishLeadEvent(ctx, LeadEvent{
		Type:       EventLeadStatusChanged,
		LeadID:     change.LeadID,
		From:       change.From,
		To:         change.To,
		OccurredAt: change.At,
	})
}
