// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация заданий, событий и метрик
//   - consumer.go   — потребление сообщений и политика ack/nack
//   - jobs.go       — payload'ы заданий
//
// Типы сообщений:
//   - build.pending     — деплоймент ожидает сборки
//   - execution.pending — выполнение функции или рассылка события
//   - event.updated     — ресурс обновлён (сборка, выполнение)
//   - usage.recorded    — метрика потребления
//
// Exchanges:
//   - forge.builds, forge.functions, forge.events, forge.usage
//   - forge.dlq — dead letter queue для отклонённых заданий
package mq
