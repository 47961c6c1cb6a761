package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeBuild     MessageType = "build.pending"
	MessageTypeExecution MessageType = "execution.pending"
	MessageTypeEvent     MessageType = "event.updated"
	MessageTypeUsage     MessageType = "usage.recorded"
)

// Message — конверт сообщения.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			string(routingKey),
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishJSON публикует произвольный payload в новом конверте.
func (p *Publisher) PublishJSON(ctx context.Context, exchange Exchange, msgType MessageType, payload any) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	return p.Publish(ctx, exchange, RoutingKeyPending, msg)
}

// PublishBuild ставит задание на сборку. Потребитель: forge-builds.
func (p *Publisher) PublishBuild(ctx context.Context, job BuildJob) error {
	return p.PublishJSON(ctx, ExchangeBuilds, MessageTypeBuild, job)
}

// PublishExecution ставит задание на выполнение. Потребитель: forge-functions.
func (p *Publisher) PublishExecution(ctx context.Context, job ExecutionJob) error {
	return p.PublishJSON(ctx, ExchangeFunctions, MessageTypeExecution, job)
}

// PublishEvent публикует событие "ресурс обновлён".
func (p *Publisher) PublishEvent(ctx context.Context, tenantID string, events []string, payload any) error {
	return p.PublishJSON(ctx, ExchangeEvents, MessageTypeEvent, EventPayload{
		TenantID: tenantID,
		Events:   events,
		Payload:  payload,
	})
}

// PublishUsage публикует метрику потребления.
func (p *Publisher) PublishUsage(ctx context.Context, usage UsagePayload) error {
	return p.PublishJSON(ctx, ExchangeUsage, MessageTypeUsage, usage)
}
