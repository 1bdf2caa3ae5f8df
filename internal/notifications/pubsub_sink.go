package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

const defaultPublishTimeout = 5 * time.Second

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
}

// PubSubSink publishes each event as a JSON envelope to a topic, ordered per
// recipient so a client never sees "completed" before "ready_for_delivery".
type PubSubSink struct {
	pub     publisher
	timeout time.Duration
}

// NewPubSubSink wraps a Pub/Sub v2 publisher.
func NewPubSubSink(p *gcppubsub.Publisher) (*PubSubSink, error) {
	if p == nil {
		return nil, fmt.Errorf("pubsub publisher required")
	}
	return newPubSubSink(&gcpPublisher{Publisher: p}), nil
}

func newPubSubSink(pub publisher) *PubSubSink {
	return &PubSubSink{pub: pub, timeout: defaultPublishTimeout}
}

func (s *PubSubSink) Name() string { return "pubsub" }

func (s *PubSubSink) Deliver(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	key := event.UserID.String()
	msg := &gcppubsub.Message{
		Data:        data,
		OrderingKey: key,
		Attributes:  map[string]string{
			"event_id":    event.ID.String(),
			"kind":        event.Kind.String(),
			"user_id":     key,
			"occurred_at": event.OccurredAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	result := s.pub.Publish(publishCtx, msg)
	if result == nil {
		return errors.New("publisher returned nil result")
	}
	if _, err := result.Get(publishCtx); err != nil {
		// a failed ordered publish pauses the key until resumed
		s.pub.ResumePublish(key)
		return err
	}
	return nil
}

// Stop flushes pending messages and releases the publisher.
func (s *PubSubSink) Stop() {
	if gp, ok := s.pub.(*gcpPublisher); ok && gp.Publisher != nil {
		gp.Publisher.Stop()
	}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
