package rabbitmq

import (
	"fmt"

	"github.com/streadway/amqp"
)

// AnomaliesQueue очередь аномалий реконсилиации. Публикация идёт
// через exchange по умолчанию, поэтому ключ маршрутизации совпадает
// с именем очереди.
const AnomaliesQueue = "billing.anomalies"

// QueueConfig описание очереди и ключа маршрутизации.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetBillingQueues возвращает очереди биллинговых событий.
func GetBillingQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: AnomaliesQueue, RoutingKey: AnomaliesQueue},
	}
}

// SetupQueues объявляет очереди и биндит их к exchange по умолчанию.
func SetupQueues(ch *amqp.Channel, queues []QueueConfig) error {
	const op = "rabbitmq.SetupQueues"
	for _, q := range queues {
		if _, err := ch.QueueDeclare(q.QueueName, true, false, false, false, nil); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}
