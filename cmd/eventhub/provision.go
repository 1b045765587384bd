package main

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/eventhub-processor/pkg/config"
	"github.com/illmade-knight/eventhub-processor/pkg/provision"
	"github.com/spf13/cobra"
)

func newProvisionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Create the Pub/Sub topic, subscription and store schema if missing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runProvision(cmd.Context())
		},
	}
}

func (a *app) runProvision(ctx context.Context) error {
	if err := a.cfg.ValidateSimulator(); err != nil {
		return err
	}
	if a.cfg.Stream.Transport != config.TransportPubSub {
		return fmt.Errorf("provisioning supports the %s transport only, got %q", config.TransportPubSub, a.cfg.Stream.Transport)
	}

	client, err := pubsub.NewClient(ctx, a.cfg.Stream.ConnectionString)
	if err != nil {
		return fmt.Errorf("pubsub.NewClient: %w", err)
	}
	defer client.Close()

	p, err := provision.NewPubSubProvisioner(client, a.logger)
	if err != nil {
		return err
	}
	if err := p.EnsureStream(ctx, provision.StreamSpec{
		TopicID:        a.cfg.Stream.Name,
		SubscriptionID: a.cfg.Stream.SubscriptionID,
	}); err != nil {
		return err
	}

	// Building the store creates its table when needed.
	_, closeStore, err := buildStore(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	closeStore()
	a.logger.Info().Msg("Provisioning complete.")
	return nil
}
