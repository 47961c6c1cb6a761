package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeBuilds    Exchange = "forge.builds"
	ExchangeFunctions Exchange = "forge.functions"
	ExchangeEvents    Exchange = "forge.events"
	ExchangeUsage     Exchange = "forge.usage"
	ExchangeDLQ       Exchange = "forge.dlq"
)

// Queues — имена очередей.
const (
	QueueBuildsPending    Queue = "builds.pending"
	QueueFunctionsPending Queue = "functions.pending"
	QueueEventsPending    Queue = "events.pending"
	QueueUsagePending     Queue = "usage.pending"
	QueueDLQJobs          Queue = "dlq.jobs"
)

// Routing keys.
const (
	RoutingKeyPending RoutingKey = "pending"
	RoutingKeyDLQJobs RoutingKey = "jobs"
)

// declareTopology объявляет обменники, очереди и привязки. Идемпотентна;
// Connection вызывает её при каждом подключении.
func declareTopology(ch *amqp.Channel) error {
	if err := declareExchanges(ch); err != nil {
		return err
	}
	if err := declareQueues(ch); err != nil {
		return err
	}
	return bindQueues(ch)
}

func declareExchanges(ch *amqp.Channel) error {
	for _, name := range []Exchange{ExchangeBuilds, ExchangeFunctions, ExchangeEvents, ExchangeUsage, ExchangeDLQ} {
		err := ch.ExchangeDeclare(
			string(name), // name
			"direct",     // type
			true,         // durable
			false,        // auto-deleted
			false,        // internal
			false,        // no-wait
			nil,          // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}
	return nil
}

func declareQueues(ch *amqp.Channel) error {
	// Задания, отклонённые без requeue (ErrDiscard), попадают в dlq.jobs.
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQJobs),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		{QueueBuildsPending, dlqArgs},
		{QueueFunctionsPending, dlqArgs},
		{QueueEventsPending, dlqArgs},
		{QueueUsagePending, nil},
		{QueueDLQJobs, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueBuildsPending, RoutingKeyPending, ExchangeBuilds},
		{QueueFunctionsPending, RoutingKeyPending, ExchangeFunctions},
		{QueueEventsPending, RoutingKeyPending, ExchangeEvents},
		{QueueUsagePending, RoutingKeyPending, ExchangeUsage},
		{QueueDLQJobs, RoutingKeyDLQJobs, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Forge RabbitMQ Topology:

    forge.builds (direct)
    └── builds.pending [routing: pending]      Consumer: forge-builds      DLQ: dlq.jobs
    forge.functions (direct)
    └── functions.pending [routing: pending]   Consumer: forge-functions   DLQ: dlq.jobs
    forge.events (direct)
    └── events.pending [routing: pending]      Consumer: external event bus
    forge.usage (direct)
    └── usage.pending [routing: pending]       Consumer: usage aggregation
    forge.dlq (direct)
    └── dlq.jobs [routing: jobs]               Manual processing
`
}
