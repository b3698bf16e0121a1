package kafka

import (
	"context"
	"encoding/json"

	retry "github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/ostapkh/cloud-hibernator/internal/models"
)

// Notifier publishes lifecycle events to the platform bus. Publishing is
// best-effort: a broker outage must never hold up a wake or hibernate run.
type Notifier struct {
	writer *kafka.Writer
}

func NewNotifier(brokers []string, topic string) *Notifier {
	return &Notifier{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
	}
}

func (n *Notifier) NotifyLifecycle(ctx context.Context, event models.LifecycleEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode lifecycle event")
		return
	}
	err = retry.Do(
		func() error {
			return n.writer.WriteMessages(ctx, kafka.Message{
				Key:   []byte(event.RunID),
				Value: payload,
			})
		},
		retry.Context(ctx),
		retry.Attempts(3),
	)
	if err != nil {
		log.Error().Err(err).Msgf("failed to publish lifecycle event %s/%s, dropping it", event.Flow, event.Stage)
	}
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}
