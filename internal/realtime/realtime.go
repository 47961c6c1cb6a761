// Package realtime публикует снимки сборок и выполнений живым подписчикам.
//
// Транспорт до браузера вне этого пакета: здесь только publish
// в Redis канал, который читает realtime шлюз.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Forge/internal/domain"
)

// Channel — Redis канал, из которого читает realtime шлюз.
const Channel = "realtime"

// ConsoleProject — проект консоли, подписчики которого видят все тенанты.
const ConsoleProject = "console"

// Message — событие для подписчиков.
type Message struct {
	Project   string    `json:"project"`
	Roles     []string  `json:"roles"`
	Events    []string  `json:"events"`
	Channels  []string  `json:"channels"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Publisher публикует сообщение.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// RedisPublisher публикует сообщения в Redis pub/sub.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher создаёт RedisPublisher.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client, channel: Channel}
}

// Publish сериализует сообщение в JSON и публикует его.
func (p *RedisPublisher) Publish(ctx context.Context, msg Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal realtime message: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		return fmt.Errorf("publish realtime message: %w", err)
	}
	return nil
}

// Connect открывает клиент Redis по URL и проверяет соединение.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Notifier рассылает обновления сборок и выполнений.
//
// Ошибки публикации логируются: живые подписчики не влияют на исход задания.
type Notifier struct {
	pub    Publisher
	logger *slog.Logger
}

// NewNotifier создаёт Notifier. pub может быть nil — тогда рассылка выключена.
func NewNotifier(pub Publisher, logger *slog.Logger) *Notifier {
	return &Notifier{pub: pub, logger: logger}
}

// BuildUpdated публикует снимок сборки в консоль.
func (n *Notifier) BuildUpdated(ctx context.Context, tenantID string, events []string, build *domain.Build) {
	n.send(ctx, Message{
		Project:  ConsoleProject,
		Roles:    []string{"tenant:" + tenantID},
		Events:   events,
		Channels: []string{"console", "builds." + build.ID},
		Payload:  build,
	})
}

// ExecutionUpdated публикует снимок выполнения в консоль и тенанту.
func (n *Notifier) ExecutionUpdated(ctx context.Context, events []string, exec *domain.Execution, roles []string) {
	channels := []string{"executions", "executions." + exec.ID, "functions." + exec.FunctionID}

	n.send(ctx, Message{
		Project:  ConsoleProject,
		Roles:    []string{"tenant:" + exec.TenantID},
		Events:   events,
		Channels: append([]string{"console"}, channels...),
		Payload:  exec,
	})
	n.send(ctx, Message{
		Project:  exec.TenantID,
		Roles:    roles,
		Events:   events,
		Channels: channels,
		Payload:  exec,
	})
}

func (n *Notifier) send(ctx context.Context, msg Message) {
	if n == nil || n.pub == nil {
		return
	}
	if err := n.pub.Publish(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
		n.logger.Warn("failed to publish realtime message",
			"project", msg.Project,
			"event", firstOr(msg.Events, ""),
			"error", err,
		)
	}
}

func firstOr(s []string, def string) string {
	if len(s) == 0 {
		return def
	}
	return s[0]
}
