package rabbitmq

import (
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/ai-chat-metering/internal/services/reconciler"
)

// AnomalyPublisher публикует аномалии реконсилиации в очередь
// для ручного разбора.
type AnomalyPublisher struct {
	ch *amqp.Channel
}

// NewAnomalyPublisher создает публикатор поверх открытого канала.
func NewAnomalyPublisher(ch *amqp.Channel) *AnomalyPublisher {
	return &AnomalyPublisher{ch: ch}
}

// PublishAnomaly отправляет аномалию в очередь billing.anomalies.
func (p *AnomalyPublisher) PublishAnomaly(anomaly reconciler.Anomaly) error {
	return PublishMessage(p.ch, "", AnomaliesQueue, anomaly)
}
