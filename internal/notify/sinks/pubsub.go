package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/geo-report-client/internal/notify"
)

// PubSubSink exports notifications as JSON messages on a Pub/Sub topic.
type PubSubSink struct {
	topic  *pubsub.Topic
	logger *zap.Logger
}

// NewPubSubSink publishes to topic. Close stops the topic's publisher goroutines.
func NewPubSubSink(topic *pubsub.Topic, logger *zap.Logger) *PubSubSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PubSubSink{topic: topic, logger: logger}
}

// Consume publishes the batch and waits for every message to be acknowledged
// by the server or for ctx to expire.
func (s *PubSubSink) Consume(ctx context.Context, batch []notify.Notification) error {
	results := make([]*pubsub.PublishResult, 0, len(batch))
	var errs []error
	for _, n := range batch {
		msg, err := message(n)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, s.topic.Publish(ctx, msg))
	}
	for _, res := range results {
		id, err := res.Get(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish notification: %w", err))
			continue
		}
		s.logger.Debug("notification published", zap.String("message_id", id))
	}
	return errors.Join(errs...)
}

// Close flushes and stops the topic publisher.
func (s *PubSubSink) Close(context.Context) error {
	s.topic.Stop()
	return nil
}

func message(n notify.Notification) (*pubsub.Message, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal notification: %w", err)
	}
	return &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"job_id": n.JobID,
			"kind":   string(n.Kind),
		},
	}, nil
}
