package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	heartbeat         = 10 * time.Second
	maxReconnectDelay = 30 * time.Second
)

var errConnectionClosed = errors.New("connection closed")

// Connection — AMQP соединение Forge с автоматическим reconnect.
//
// Топология forge.* объявляется при каждом подключении, до того как новый
// канал увидят publisher и consumers: после рестарта брокера очереди
// и DLQ-привязки восстанавливаются без участия сервисов.
//
// Пока соединение восстанавливается, Channel возвращает nil,
// а WithChannel — ErrNoChannel.
type Connection struct {
	url    string
	name   string
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool

	// reconnected закрывается и заменяется новым при каждом переподключении,
	// поэтому сигнал получают все consumers соединения.
	reconnected chan struct{}
	done        chan struct{}
}

// NewConnection подключается к RabbitMQ и объявляет топологию Forge.
func NewConnection(url string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connection{
		url:         url,
		name:        filepath.Base(os.Args[0]),
		logger:      logger,
		reconnected: make(chan struct{}),
		done:        make(chan struct{}),
	}

	lost, err := c.open()
	if err != nil {
		return nil, err
	}
	logger.Info("connected to RabbitMQ", "connection_name", c.name)
	logger.Debug("rabbitmq topology declared", "topology", TopologyInfo())

	go c.supervise(lost)
	return c, nil
}

// open подключается, объявляет топологию и делает канал доступным.
// Возвращает канал уведомления о разрыве соединения.
func (c *Connection) open() (<-chan *amqp.Error, error) {
	conn, err := amqp.DialConfig(c.url, amqp.Config{
		Heartbeat:  heartbeat,
		Properties: amqp.Table{"connection_name": c.name},
	})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareTopology(ch); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare topology: %w", err)
	}
	lost := conn.NotifyClose(make(chan *amqp.Error, 1))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		conn.Close()
		return nil, errConnectionClosed
	}
	c.conn, c.channel = conn, ch
	return lost, nil
}

// supervise ждёт разрыва и переподключается, пока не вызван Close.
func (c *Connection) supervise(lost <-chan *amqp.Error) {
	for {
		select {
		case <-c.done:
			return
		case err := <-lost:
			if c.isClosed() {
				return
			}
			c.logger.Warn("rabbitmq connection lost", "error", err)
		}

		c.mu.Lock()
		c.conn, c.channel = nil, nil
		c.mu.Unlock()

		next, ok := c.redial()
		if !ok {
			return
		}
		lost = next

		c.logger.Info("reconnected to RabbitMQ", "connection_name", c.name)
		c.signalReconnect()
	}
}

// redial повторяет подключение с растущей задержкой. false — соединение
// закрыто через Close.
func (c *Connection) redial() (<-chan *amqp.Error, bool) {
	for attempt := 0; ; attempt++ {
		select {
		case <-c.done:
			return nil, false
		case <-time.After(reconnectDelay(attempt)):
		}

		lost, err := c.open()
		if errors.Is(err, errConnectionClosed) {
			return nil, false
		}
		if err == nil {
			return lost, true
		}
		c.logger.Warn("reconnect failed",
			"attempt", attempt+1,
			"retry_in", reconnectDelay(attempt+1),
			"error", err,
		)
	}
}

// reconnectDelay — пауза перед попыткой: 1s, 2s, 4s и далее до 30s.
func reconnectDelay(attempt int) time.Duration {
	return min(time.Second<<min(attempt, 5), maxReconnectDelay)
}

func (c *Connection) signalReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	close(c.reconnected)
	c.reconnected = make(chan struct{})
}

func (c *Connection) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Channel возвращает текущий канал или nil, пока идёт переподключение.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// ReconnectNotify возвращает канал, который закроется при ближайшем
// переподключении. Получать его нужно до попытки работы с каналом,
// иначе можно пропустить переподключение.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reconnected
}

// WithChannel выполняет fn с текущим каналом.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	ch := c.Channel()
	if ch == nil {
		return ErrNoChannel
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ch)
}

// Close закрывает соединение и останавливает переподключение.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	c.conn, c.channel = nil, nil

	if err := errors.Join(errs...); err != nil {
		return err
	}
	c.logger.Info("rabbitmq connection closed")
	return nil
}
