package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tintoy/confluence-docfx-import/pkg/mapping"
	"github.com/tintoy/confluence-docfx-import/pkg/metrics"
)

func newExtractCmd(opts *options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "extract-mappings",
		Short: "Write the DocFX page mappings found in Confluence as YAML",
		Long:  "extract-mappings lists every Confluence page carrying DocFX properties, or only those of --confluence-space when given, and writes the mappings as YAML.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			client, err := newClient(cfg, logger, metrics.Discard())
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(context.Background())
			defer cancel()

			var mappings []mapping.Mapping
			if cfg.Confluence.Space != "" {
				mappings, err = client.SpaceMappings(ctx, cfg.Confluence.Space)
			} else {
				mappings, err = client.AllMappings(ctx)
			}
			if err != nil {
				return err
			}

			var out io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				file, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer file.Close()
				out = file
			}

			logger.WithField("mappings", len(mappings)).Info("Extracted page mappings")
			return mapping.WriteYAML(out, cfg.Confluence.Address, mappings)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write the mappings to (default stdout)")
	return cmd
}
