package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tintoy/confluence-docfx-import/pkg/component"
	"github.com/tintoy/confluence-docfx-import/pkg/host"
	"github.com/tintoy/confluence-docfx-import/pkg/mapping"
	"github.com/tintoy/confluence-docfx-import/pkg/plugin"
	"github.com/tintoy/confluence-docfx-import/plugins/docfximport"
)

func newNameCmd(opts *options) *cobra.Command {
	var (
		displayName   string
		noApplication bool
	)

	cmd := &cobra.Command{
		Use:   "name",
		Short: "Print the name of the exported plugin component",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("display-name") {
				cfg.Application.DisplayName = displayName
			}
			if noApplication {
				cfg.Application.Enabled = false
			}

			h := host.New(cfg, logger)
			ctx := context.Background()
			if err := h.LoadPlugins(ctx, docfximport.New(docfximport.WithStore(mapping.NewMemoryStore()))); err != nil {
				return err
			}
			defer h.Stop(ctx)

			c, err := plugin.LookupAs[component.PluginComponent](h.Services(), component.ServiceName)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), c.Name())
			return nil
		},
	}

	cmd.Flags().StringVar(&displayName, "display-name", "", "application display name, overrides application.displayName")
	cmd.Flags().BoolVar(&noApplication, "no-application", false, "run without application properties")
	return cmd
}
