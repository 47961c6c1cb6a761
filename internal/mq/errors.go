package mq

import "errors"

var (
	// ErrDiscard — обработчик отказывается от сообщения навсегда:
	// consumer делает nack без requeue, и сообщение уходит в DLQ.
	ErrDiscard = errors.New("discard message")

	// ErrNoChannel — AMQP канал недоступен (соединение ещё не восстановлено).
	ErrNoChannel = errors.New("no channel available")
)
