package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xavierca1/ligue-crm/internal/entity"
)

// EventHandler reacts to lead events. Kommo sync and mail notifications
// implement it.
type EventHandler interface {
	Name() string
	HandleLeadEvent(ctx context.Context, event LeadEvent) error
}

type LeadFinder interface {
	FindByID(ctx context.Context, id string) (*entity.Lead, error)
}

// Consumer is satisfied by *amqp.Channel.
type Consumer interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// errPoison marks messages that can never succeed and must not be retried.
var errPoison = errors.New("poison message")

type Worker struct {
	Channel  Consumer
	Leads    LeadFinder
	Handlers []EventHandler
	logger   *zap.Logger
}

func NewWorker(ch Consumer, leads LeadFinder, logger *zap.Logger, handlers ...EventHandler) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		Channel:  ch,
		Leads:    leads,
		Handlers: handlers,
		logger:   logger,
	}
}

// Start consumes queueName until ctx is done or the channel closes.
func (w *Worker) Start(ctx context.Context, queueName string) error {
	msgs, err := w.Channel.Consume(
		queueName, // fila
		"",        // consumer
		false,     // auto-ack (manual é mais seguro)
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	w.logger.Info("worker waiting for lead events", zap.String("queue", queueName))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped", zap.String("queue", queueName))
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			w.deliver(ctx, d)
		}
	}
}

func (w *Worker) deliver(ctx context.Context, d amqp.Delivery) {
	err := w.Process(ctx, d.Body)
	switch {
	case err == nil:
		d.Ack(false)
	case errors.Is(err, errPoison):
		w.logger.Error("dropping malformed lead event", zap.Error(err))
		d.Nack(false, false)
	default:
		// Uma tentativa extra; na segunda falha vai para a DLQ
		w.logger.Warn("lead event handling failed",
			zap.String("routing_key", d.RoutingKey),
			zap.Bool("redelivered", d.Redelivered),
			zap.Error(err))
		d.Nack(false, !d.Redelivered)
	}
}

// Process decodes one message body and fans it out to every handler.
func (w *Worker) Process(ctx context.Context, body []byte) error {
	var event LeadEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: %v", errPoison, err)
	}
	if event.Type == "" || event.LeadID == "" {
		return fmt.Errorf("%w: missing type or lead_id", errPoison)
	}

	if event.Lead == nil && event.Type != EventLeadDeleted && w.Leads != nil {
		lead, err := w.Leads.FindByID(ctx, event.LeadID)
		if errors.Is(err, entity.ErrLeadNotFound) {
			w.logger.Info("lead vanished before its event was handled", zap.String("lead_id", event.LeadID))
			return nil
		}
		if err != nil {
			return fmt.Errorf("load lead %s: %w", event.LeadID, err)
		}
		event.Lead = lead
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range w.Handlers {
		h := h
		g.Go(func() error {
			if err := h.HandleLeadEvent(gctx, event); err != nil {
				return fmt.Errorf("%s: %w", h.Name(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w.logger.Debug("lead event handled", zap.String("type", event.Type), zap.String("lead_id", event.LeadID))
	return nil
}
