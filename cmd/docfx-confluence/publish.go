package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tintoy/confluence-docfx-import/pkg/mapping"
	"github.com/tintoy/confluence-docfx-import/pkg/metrics"
	"github.com/tintoy/confluence-docfx-import/pkg/publish"
)

func newPublishCmd(opts *options) *cobra.Command {
	var (
		manifest    string
		dryRun      bool
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a DocFX site to a Confluence space",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if manifest == "" {
				return fmt.Errorf("Must specify the DocFX manifest using --docfx-manifest argument.")
			}
			if cfg.Confluence.Space == "" {
				return fmt.Errorf("Must specify the target space using --confluence-space argument.")
			}
			if cmd.Flags().Changed("concurrency") {
				cfg.Publish.Concurrency = concurrency
			}
			if dryRun {
				cfg.Publish.DryRun = true
			}

			m := metrics.NewMetrics(prometheus.NewRegistry())
			client, err := newClient(cfg, logger, m)
			if err != nil {
				return err
			}

			store, err := mapping.NewStore(cfg.Mappings)
			if err != nil {
				return err
			}
			defer store.Close()

			publisher, err := publish.New(client, store, publish.Options{
				ManifestPath:       manifest,
				SpaceKey:           cfg.Confluence.Space,
				Concurrency:        cfg.Publish.Concurrency,
				PlaceholderContent: cfg.Publish.PlaceholderContent,
				LanguageMap:        cfg.Publish.LanguageMap,
				DryRun:             cfg.Publish.DryRun,
				Logger:             logger,
				Metrics:            m,
			})
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(context.Background())
			defer cancel()

			result, err := publisher.Run(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created %d, updated %d, skipped %d pages.\n", result.Created, result.Updated, result.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVar(&manifest, "docfx-manifest", "", "the DocFX manifest file describing the site to publish")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log what would change without writing to Confluence")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of pages updated in parallel, overrides publish.concurrency")
	return cmd
}
