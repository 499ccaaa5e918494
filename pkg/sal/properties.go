// Package sal describes the host services a plugin may consume
package sal

import "github.com/tintoy/confluence-docfx-import/config"

// ApplicationProperties exposes host-supplied facts about the running
// application instance
type ApplicationProperties interface {
	// DisplayName is the human-readable name of the application instance
	DisplayName() string

	// BaseURL is the externally visible address of the application
	BaseURL() string

	// Version is the host application version
	Version() string
}

// Properties is a static ApplicationProperties
type Properties struct {
	displayName string
	baseURL     string
	version     string
}

// NewProperties creates static application properties
func NewProperties(displayName, baseURL, version string) *Properties {
	return &Properties{
		displayName: displayName,
		baseURL:     baseURL,
		version:     version,
	}
}

// FromConfig returns the application properties described by cfg, or nil
// when the host is configured not to provide them.
func FromConfig(cfg config.ApplicationConfig) ApplicationProperties {
	if !cfg.Enabled {
		return nil
	}
	return NewProperties(cfg.DisplayName, cfg.BaseURL, cfg.Version)
}

// Normalize returns nil for props holding a nil *Properties, so callers
// can test for absence with a plain nil comparison
func Normalize(props ApplicationProperties) ApplicationProperties {
	if p, ok := props.(*Properties); ok && p == nil {
		return nil
	}
	return props
}

func (p *Properties) DisplayName() string { return p.displayName }
func (p *Properties) BaseURL() string     { return p.baseURL }
func (p *Properties) Version() string     { return p.version }
