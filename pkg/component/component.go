// Package component contains the plugin component exported to the host's
// service registry.
package component

import "github.com/tintoy/confluence-docfx-import/pkg/sal"

const (
	// ServiceName is the name the component is exported under
	ServiceName = "pluginComponent"

	// NamePrefix precedes the application display name in Name
	NamePrefix = ServiceName + ":"
)

// PluginComponent is the service contract exported by this plugin
type PluginComponent interface {
	Name() string
}

// Component names itself after the host application it runs in.
// It holds no mutable state and is safe for concurrent use.
type Component struct {
	props sal.ApplicationProperties
}

var _ PluginComponent = (*Component)(nil)

// New creates a component. props may be nil when the host does not provide
// application properties.
func New(props sal.ApplicationProperties) *Component {
	return &Component{props: sal.Normalize(props)}
}

// Name returns "pluginComponent:<display name>", or "pluginComponent" when
// no application properties were injected.
func (c *Component) Name() string {
	if c.props != nil {
		return NamePrefix + c.props.DisplayName()
	}
	return ServiceName
}
