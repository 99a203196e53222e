// Package connector defines the pluggable capability contract workflow nodes
// execute through, and the registry that maps node_type to a connector
// factory. Connectors share a single operation (transform zero-or-more
// input envelopes plus config into one output envelope), with the three
// structural roles distinguished only by arity convention: sources take no
// inputs, processors take at least one, destinations consume inputs and
// return a zero-record receipt.
package connector

import (
	"context"

	"github.com/calder-io/flume/internal/flume"
	"github.com/calder-io/flume/internal/schema"
)

// Connector is the capability a node_type resolves to.
type Connector interface {
	// ID is the node_type this connector is registered under.
	ID() string
	// Name is the human-readable connector name.
	Name() string
	// Kind is the structural role this connector fills.
	Kind() flume.NodeRole
	// ConfigSchema declares the connector's config object, or nil when the
	// connector accepts anything.
	ConfigSchema() *schema.ConfigSchema
	// Configure validates and stores the node's config before execution.
	Configure(config map[string]any) error
	// Execute transforms the input envelopes into one output envelope. The
	// context carries the run's deadline and cancellation signal; connectors
	// that block on I/O should observe it.
	Execute(ctx context.Context, inputs []*flume.DataEnvelope) (*flume.DataEnvelope, error)
}

// SchemaAware is implemented by connectors whose output schema is known
// statically from config and the input schema. Connectors without it have
// dynamic schemas: the validator exempts their edges and flags a warning, and
// compatibility is re-checked at run time against actual envelopes.
type SchemaAware interface {
	OutputSchema(input *flume.DataSchema) (*flume.DataSchema, error)
}

// Base carries the descriptor fields and config handling shared by connector
// implementations. Embed it and override Execute.
type Base struct {
	ConnID     string
	ConnName   string
	ConnKind   flume.NodeRole
	ConnSchema *schema.ConfigSchema
	Config     map[string]any
}

func (b *Base) ID() string                         { return b.ConnID }
func (b *Base) Name() string                       { return b.ConnName }
func (b *Base) Kind() flume.NodeRole               { return b.ConnKind }
func (b *Base) ConfigSchema() *schema.ConfigSchema { return b.ConnSchema }

// Configure checks config against the declared schema and stores it. The
// first schema violation is returned as a ConnectorConfigError.
func (b *Base) Configure(config map[string]any) error {
	if config == nil {
		config = map[string]any{}
	}
	if errs := b.ConnSchema.ValidateConfig(config); len(errs) > 0 {
		return flume.NewConnectorConfigError("", b.ConnID, errs[0].Error())
	}
	b.Config = config
	return nil
}

// String returns the string config value for key, or def when absent.
func (b *Base) String(key, def string) string {
	if v, ok := b.Config[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Int returns the numeric config value for key, or def when absent. JSON
// decoding yields float64 for numbers, so both forms are accepted.
func (b *Base) Int(key string, def int) int {
	switch v := b.Config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// Bool returns the boolean config value for key, or def when absent.
func (b *Base) Bool(key string, def bool) bool {
	if v, ok := b.Config[key].(bool); ok {
		return v
	}
	return def
}
