package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/pulselink/emergency-alert-backend/internal/model"
	"github.com/pulselink/emergency-alert-backend/internal/repository"
	"github.com/pulselink/emergency-alert-backend/internal/service"
)

// RequestSource reads back the authoritative emergency-request row
// announced by a trigger message.
type RequestSource interface {
	GetRequest(ctx context.Context, eventID string) (model.EmergencyRequest, error)
}

// Consumers owns the two trigger-queue consume loops. Each loop runs a
// reconnect cycle with exponential backoff and only stops when the
// context is cancelled. A message whose handler fails is rejected
// without requeue so a poison message cannot put the consumer into a
// tight loop; the failure is already terminally recorded on the
// request row by the core handler.
type Consumers struct {
	url         string
	processor   *service.EmergencyProcessor
	invitations *service.InvitationService
	requests    RequestSource
	logger      *zap.Logger
}

// NewConsumers wires the consumers over the core services.
func NewConsumers(url string, processor *service.EmergencyProcessor, invitations *service.InvitationService, requests RequestSource, logger *zap.Logger) *Consumers {
	return &Consumers{
		url:         url,
		processor:   processor,
		invitations: invitations,
		requests:    requests,
		logger:      logger,
	}
}

// Run starts both consume loops and blocks until the context is
// cancelled.
func (c *Consumers) Run(ctx context.Context) {
	go c.runQueue(ctx, EmergencyRequestQueue, c.handleEmergencyRequest)
	go c.runQueue(ctx, LinkRequestQueue, c.handleLinkRequest)
	<-ctx.Done()
}

// runQueue connects to the broker, declares the durable queue and
// consumes it until the connection drops, then reconnects with
// exponential backoff capped at 30s.
func (c *Consumers) runQueue(ctx context.Context, queueName string, handle func(context.Context, []byte) error) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.logger.Warn("broker dial failed, retrying",
				zap.String("queue", queueName),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
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
		backoff = time.Second // reset after successful connect

		if err := c.consumeLoop(ctx, conn, queueName, handle); err != nil {
			c.logger.Warn("consume loop ended, reconnecting",
				zap.String("queue", queueName),
				zap.Error(err),
			)
		}
		_ = conn.Close()
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func (c *Consumers) consumeLoop(ctx context.Context, conn *amqp.Connection, queueName string, handle func(context.Context, []byte) error) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		c.logger.Warn("set QoS failed", zap.String("queue", queueName), zap.Error(err))
	}

	if _, err = ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handle(ctx, d.Body); err != nil {
				c.logger.Error("message handling failed",
					zap.String("queue", queueName),
					zap.Error(err),
				)
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// handleEmergencyRequest re-reads the announced request row and hands
// it to the processor. A request already terminally marked (broker
// redelivery) is acknowledged without reprocessing.
func (c *Consumers) handleEmergencyRequest(ctx context.Context, body []byte) error {
	var ev EmergencyRequestCreated
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	req, err := c.requests.GetRequest(ctx, ev.EmergencyEventID)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			c.logger.Warn("trigger for unknown emergency request",
				zap.String("emergency_event_id", ev.EmergencyEventID))
			return nil
		}
		return err
	}
	if req.Processed != nil {
		c.logger.Info("skipping already-processed emergency request",
			zap.String("emergency_event_id", ev.EmergencyEventID))
		return nil
	}
	return c.processor.Process(ctx, req)
}

func (c *Consumers) handleLinkRequest(ctx context.Context, body []byte) error {
	var ev LinkRequestCreated
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return c.invitations.HandleLinkRequest(ctx, model.LinkRequest{
		ID:               ev.ID,
		InviterUserID:    ev.InviterUserID,
		InviterFirstName: ev.InviterFirstName,
		InvitationCode:   ev.InvitationCode,
		Timestamp:        ev.Timestamp,
	})
}
