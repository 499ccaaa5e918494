package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tintoy/confluence-docfx-import/config"
	"github.com/tintoy/confluence-docfx-import/pkg/confluence"
	"github.com/tintoy/confluence-docfx-import/pkg/metrics"
)

// options holds the flags shared by every command
type options struct {
	configFile string
	logLevel   string

	address  string
	user     string
	password string
	space    string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "docfx-confluence",
		Short:         "Publish DocFX documentation to Confluence",
		Long:          "docfx-confluence publishes a generated DocFX site into a Confluence space, extracts the resulting page mappings and hosts the docfx-import plugin.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "docfx-confluence.toml", "config file path")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level, overrides logging.level")
	flags.StringVar(&opts.address, "confluence-address", "", "base address of the Confluence server (default $"+config.EnvConfluenceAddress+")")
	flags.StringVar(&opts.user, "confluence-user", "", "user name for authentication to Confluence (default $"+config.EnvConfluenceUser+")")
	flags.StringVar(&opts.password, "confluence-password", "", "password for authentication to Confluence (default $"+config.EnvConfluencePassword+")")
	flags.StringVar(&opts.space, "confluence-space", "", "key (short name) of the target space in Confluence")

	cmd.AddCommand(newNameCmd(opts))
	cmd.AddCommand(newPublishCmd(opts))
	cmd.AddCommand(newExtractCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	return cmd
}

// load reads the config file and layers flags and environment on top
func (o *options) load() (*config.Config, *log.Logger, error) {
	cfg, err := config.LoadConfig(o.configFile)
	if err != nil {
		return nil, nil, err
	}

	if o.address != "" {
		cfg.Confluence.Address = o.address
	}
	if o.user != "" {
		cfg.Confluence.User = o.user
	}
	if o.password != "" {
		cfg.Confluence.Password = o.password
	}
	if o.space != "" {
		cfg.Confluence.Space = o.space
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newLogger(cfg config.LoggingConfig) (*log.Logger, error) {
	logger := log.New()
	logger.SetOutput(os.Stderr)

	if cfg.Level != "" {
		level, err := log.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		logger.SetLevel(level)
	}
	if cfg.Format == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

func newClient(cfg *config.Config, logger *log.Logger, m *metrics.Metrics) (*confluence.Client, error) {
	if err := cfg.ValidateConfluence(); err != nil {
		return nil, err
	}
	return confluence.NewClient(cfg.Confluence.Address, cfg.Confluence.User, cfg.Confluence.Password,
		confluence.WithTimeout(cfg.Confluence.Timeout),
		confluence.WithPageSize(cfg.Confluence.PageSize),
		confluence.WithLogger(logger),
		confluence.WithMetrics(m),
	)
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
