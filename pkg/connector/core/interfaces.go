// Package core defines the contracts between the pipeline and the
// connectors it drives: the Source and Destination interfaces, the
// channel-based record streams they exchange, and the schema and
// state types that travel with a sync.
package core

import (
	"context"
	"time"

	"github.com/parallaxworks/parallax/pkg/config"
	"github.com/parallaxworks/parallax/pkg/pool"
)

// ConnectorType distinguishes the two ends of a pipeline.
type ConnectorType string

const (
	ConnectorTypeSource      ConnectorType = "source"
	ConnectorTypeDestination ConnectorType = "destination"
)

// Connector is the lifecycle shared by both ends: construct, then
// Initialize, use, and Close. Health and Metrics stay callable for
// the whole window in between.
type Connector interface {
	Name() string
	Type() ConnectorType
	Version() string

	Initialize(ctx context.Context, config *config.BaseConfig) error
	Close(ctx context.Context) error

	Health(ctx context.Context) error
	Metrics() map[string]interface{}
}

// Source produces records. Read streams them one at a time while
// ReadBatch groups them at the source; both stay open until the
// source is drained or ctx is cancelled. Position and State let the
// pipeline checkpoint and resume incremental syncs.
type Source interface {
	Initialize(ctx context.Context, config *config.BaseConfig) error
	Discover(ctx context.Context) (*Schema, error)
	Read(ctx context.Context) (*RecordStream, error)
	ReadBatch(ctx context.Context, batchSize int) (*BatchStream, error)
	Close(ctx context.Context) error

	GetPosition() Position
	SetPosition(position Position) error
	GetState() State
	SetState(state State) error

	SupportsIncremental() bool
	SupportsBatch() bool

	Health(ctx context.Context) error
	Metrics() map[string]interface{}
}

// Destination consumes records. CreateSchema runs once before the
// first write; Write and WriteBatch then drain the streams handed to
// them, returning only on completion, stream error, or cancellation.
type Destination interface {
	Initialize(ctx context.Context, config *config.BaseConfig) error
	CreateSchema(ctx context.Context, schema *Schema) error
	Write(ctx context.Context, stream *RecordStream) error
	WriteBatch(ctx context.Context, stream *BatchStream) error
	Close(ctx context.Context) error

	SupportsBatch() bool
	SupportsStreaming() bool

	Health(ctx context.Context) error
	Metrics() map[string]interface{}
}

// RecordStream carries records from a producer to one consumer. The
// producer closes both channels when done; a value on Errors ends the
// stream early.
type RecordStream struct {
	Records <-chan *pool.Record
	Errors  <-chan error
}

// BatchStream is the batched form of RecordStream. Ownership of each
// batch slice passes to the receiver.
type BatchStream struct {
	Batches <-chan []*pool.Record
	Errors  <-chan error
}

// State is the connector-defined checkpoint payload persisted between
// syncs.
type State map[string]interface{}

// Position is a comparable point in a source's stream.
type Position interface {
	String() string
	// Compare returns -1, 0, or 1 as this position falls before, at,
	// or after other.
	Compare(other Position) int
}

// Schema describes the shape of the records a source emits.
type Schema struct {
	Name        string
	Description string
	Fields      []Field
}

// Field is one named value in a schema.
type Field struct {
	Name        string
	Type        FieldType
	Description string
	Nullable    bool
}

// FieldType names the wire type of a field.
type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeInt       FieldType = "int"
	FieldTypeFloat     FieldType = "float"
	FieldTypeBool      FieldType = "bool"
	FieldTypeTimestamp FieldType = "timestamp"
	FieldTypeJSON      FieldType = "json"
)

// HealthStatus is a point-in-time health report for a connector.
type HealthStatus struct {
	Status    string                 `json:"status"` // healthy, degraded, or unhealthy
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details"`
	Error     error                  `json:"error,omitempty"`
}
