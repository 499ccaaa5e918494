package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/tintoy/confluence-docfx-import/pkg/host"
	"github.com/tintoy/confluence-docfx-import/plugins/docfximport"
)

func newServeCmd(opts *options) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the plugin host with the docfx-import plugin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}

			ctx, cancel := signalContext(context.Background())
			defer cancel()

			h := host.New(cfg, logger)
			if cfg.Plugins.Enabled {
				if err := h.LoadPlugins(ctx, docfximport.New()); err != nil {
					return err
				}
			}
			if err := h.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			logger.Info("Shutdown signal received")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()
			return h.Stop(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "HTTP listen address, overrides server.bind")
	return cmd
}
