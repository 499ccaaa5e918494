package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Environment variables consulted for Confluence credentials
const (
	EnvConfluenceAddress  = "CONFLUENCE_ADDR"
	EnvConfluenceUser     = "CONFLUENCE_USER"
	EnvConfluencePassword = "CONFLUENCE_PASSWORD"
)

// Config represents the main application configuration
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Application ApplicationConfig `toml:"application"`
	Confluence  ConfluenceConfig  `toml:"confluence"`
	Publish     PublishConfig     `toml:"publish"`
	Mappings    MappingsConfig    `toml:"mappings"`
	Plugins     PluginsConfig     `toml:"plugins"`
	Logging     LoggingConfig     `toml:"logging"`
}

// ServerConfig contains plugin host listener configuration
type ServerConfig struct {
	Bind     string `toml:"bind"`
	GRPCBind string `toml:"grpcBind"`
}

// ApplicationConfig describes the host application exposed to plugins
// through the application properties service. When Enabled is false the
// service is not provided at all.
type ApplicationConfig struct {
	Enabled     bool   `toml:"enabled"`
	DisplayName string `toml:"displayName"`
	BaseURL     string `toml:"baseURL"`
	Version     string `toml:"version"`
}

// ConfluenceConfig contains Confluence REST API connection settings
type ConfluenceConfig struct {
	Address  string        `toml:"address"`
	User     string        `toml:"user"`
	Password string        `toml:"password"`
	Space    string        `toml:"space"`
	PageSize int           `toml:"pageSize"`
	Timeout  time.Duration `toml:"timeout"`
}

// PublishConfig controls how a DocFX site is published
type PublishConfig struct {
	Concurrency        int               `toml:"concurrency"`
	PlaceholderContent string            `toml:"placeholderContent"`
	LanguageMap        map[string]string `toml:"languageMap"`
	DryRun             bool              `toml:"dryRun"`
}

// MappingsConfig selects the mapping store backend
type MappingsConfig struct {
	Backend string      `toml:"backend"`
	Redis   RedisConfig `toml:"redis"`
}

// RedisConfig contains Redis connection settings for the mapping store
type RedisConfig struct {
	Addr         string        `toml:"addr"`
	Password     string        `toml:"password"`
	DB           int           `toml:"db"`
	PoolSize     int           `toml:"poolSize"`
	DialTimeout  time.Duration `toml:"dialTimeout"`
	ReadTimeout  time.Duration `toml:"readTimeout"`
	WriteTimeout time.Duration `toml:"writeTimeout"`
	KeyPrefix    string        `toml:"keyPrefix"`
}

// PluginsConfig contains plugin system configuration
type PluginsConfig struct {
	Enabled bool                      `toml:"enabled"`
	Config  map[string]map[string]any `toml:"config"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Bind: ":8090",
		},
		Application: ApplicationConfig{
			Enabled:     true,
			DisplayName: "Confluence",
			BaseURL:     "http://localhost:1990/confluence",
		},
		Confluence: ConfluenceConfig{
			PageSize: 50,
			Timeout:  30 * time.Second,
		},
		Publish: PublishConfig{
			Concurrency:        4,
			PlaceholderContent: "<h1>Placeholder</h1>\nThis page is a placeholder.",
			LanguageMap: map[string]string{
				"csharp": "c#",
			},
		},
		Mappings: MappingsConfig{
			Backend: "memory",
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "docfx:mappings:",
			},
		},
		Plugins: PluginsConfig{
			Enabled: true,
			Config: map[string]map[string]any{
				"docfx-import": {
					"syncInterval": "0s",
				},
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from a TOML file
func LoadConfig(filename string) (*Config, error) {
	config := DefaultConfig()

	if filename == "" {
		return config, nil
	}

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return config, nil
	}

	if _, err := toml.DecodeFile(filename, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filename, err)
	}

	return config, nil
}

// SaveConfig saves configuration to a TOML file
func SaveConfig(config *Config, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return toml.NewEncoder(file).Encode(config)
}

// ApplyEnv fills empty Confluence credentials from the environment
func (c *Config) ApplyEnv() {
	if c.Confluence.Address == "" {
		c.Confluence.Address = os.Getenv(EnvConfluenceAddress)
	}
	if c.Confluence.User == "" {
		c.Confluence.User = os.Getenv(EnvConfluenceUser)
	}
	if c.Confluence.Password == "" {
		c.Confluence.Password = os.Getenv(EnvConfluencePassword)
	}
}

// ValidateConfluence checks that everything needed to talk to Confluence
// is present. The messages name both the flag and the environment variable.
func (c *Config) ValidateConfluence() error {
	if c.Confluence.Address == "" {
		return fmt.Errorf("Must specify address of Confluence server using --confluence-address argument or %s environment variable.", EnvConfluenceAddress)
	}
	if c.Confluence.User == "" {
		return fmt.Errorf("Must specify user name for authentication to Confluence server using --confluence-user argument or %s environment variable.", EnvConfluenceUser)
	}
	if c.Confluence.Password == "" {
		return fmt.Errorf("Must specify password for authentication to Confluence server using --confluence-password argument or %s environment variable.", EnvConfluencePassword)
	}
	return nil
}

// Validate checks the configuration for values the rest of the program
// cannot work with
func (c *Config) Validate() error {
	if c.Confluence.PageSize <= 0 {
		return fmt.Errorf("confluence.pageSize must be positive, got %d", c.Confluence.PageSize)
	}
	if c.Publish.Concurrency <= 0 {
		return fmt.Errorf("publish.concurrency must be positive, got %d", c.Publish.Concurrency)
	}
	switch c.Mappings.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown mappings backend: %s", c.Mappings.Backend)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown logging format: %s", c.Logging.Format)
	}
	return nil
}

// PluginConfig returns the configuration section for the named plugin,
// never nil
func (c *Config) PluginConfig(name string) map[string]any {
	if c.Plugins.Config != nil {
		if cfg, ok := c.Plugins.Config[name]; ok && cfg != nil {
			return cfg
		}
	}
	return make(map[string]any)
}
