package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// StreamSpec names the Pub/Sub resources the processor and simulator use.
type StreamSpec struct {
	TopicID            string
	SubscriptionID     string
	AckDeadlineSeconds int
	Labels             map[string]string
}

// PubSubProvisioner creates missing topics and subscriptions. Existing
// resources are left untouched.
type PubSubProvisioner struct {
	client *pubsub.Client
	logger zerolog.Logger
}

func NewPubSubProvisioner(client *pubsub.Client, logger zerolog.Logger) (*PubSubProvisioner, error) {
	if client == nil {
		return nil, errors.New("pubsub client cannot be nil for provisioner")
	}
	return &PubSubProvisioner{
		client: client,
		logger: logger.With().Str("component", "PubSubProvisioner").Logger(),
	}, nil
}

// EnsureStream makes sure the topic exists and, when a subscription ID is
// given, that a subscription is attached to it.
func (p *PubSubProvisioner) EnsureStream(ctx context.Context, spec StreamSpec) error {
	if spec.TopicID == "" {
		return errors.New("topic ID is required")
	}
	topic := p.client.Topic(spec.TopicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return fmt.Errorf("failed to check for topic '%s': %w", spec.TopicID, err)
	}
	if !exists {
		topic, err = p.client.CreateTopicWithConfig(ctx, spec.TopicID, &pubsub.TopicConfig{Labels: spec.Labels})
		if err != nil {
			return fmt.Errorf("failed to create topic '%s': %w", spec.TopicID, err)
		}
		p.logger.Info().Str("topic_id", spec.TopicID).Msg("Topic created.")
	} else {
		p.logger.Info().Str("topic_id", spec.TopicID).Msg("Topic already exists.")
	}

	if spec.SubscriptionID == "" {
		return nil
	}
	sub := p.client.Subscription(spec.SubscriptionID)
	exists, err = sub.Exists(ctx)
	if err != nil {
		return fmt.Errorf("failed to check for subscription '%s': %w", spec.SubscriptionID, err)
	}
	if exists {
		p.logger.Info().Str("subscription_id", spec.SubscriptionID).Msg("Subscription already exists.")
		return nil
	}

	subCfg := pubsub.SubscriptionConfig{Topic: topic, Labels: spec.Labels}
	if spec.AckDeadlineSeconds > 0 {
		subCfg.AckDeadline = time.Duration(spec.AckDeadlineSeconds) * time.Second
	}
	if _, err := p.client.CreateSubscription(ctx, spec.SubscriptionID, subCfg); err != nil {
		return fmt.Errorf("failed to create subscription '%s': %w", spec.SubscriptionID, err)
	}
	p.logger.Info().Str("subscription_id", spec.SubscriptionID).Str("topic_id", spec.TopicID).Msg("Subscription created.")
	return nil
}
