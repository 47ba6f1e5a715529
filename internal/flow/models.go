package flow

import "time"

// ParamType is the declared type of a block parameter.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
	ParamAny     ParamType = "any"
)

// Marker parameters written by the optimizer.
const (
	ParamParallelExecution = "parallel_execution"
	ParamCacheEnabled      = "cache_enabled"
	ParamCacheTTL          = "cache_ttl"
)

// Parameter is a named, typed block setting.
type Parameter struct {
	Name     string    `json:"name" yaml:"name" validate:"required"`
	Type     ParamType `json:"type" yaml:"type" validate:"omitempty,oneof=string number boolean any"`
	Value    any       `json:"value,omitempty" yaml:"value,omitempty"`
	Required bool      `json:"required,omitempty" yaml:"required,omitempty"`
}

// Position is display-only and ignored by every algorithm.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// BlockConnections lists the connection ids attached to a block.
type BlockConnections struct {
	Inputs  []string `json:"inputs" yaml:"inputs"`
	Outputs []string `json:"outputs" yaml:"outputs"`
}

// Block is a typed unit of work.
type Block struct {
	ID          string           `json:"id" yaml:"id" validate:"required"`
	Kind        BlockKind        `json:"kind" yaml:"kind" validate:"required"`
	Label       string           `json:"label" yaml:"label"`
	Parameters  []Parameter      `json:"parameters" yaml:"parameters" validate:"dive"`
	Position    Position         `json:"position" yaml:"position"`
	Connections BlockConnections `json:"connections" yaml:"connections"`
}

// Param returns the named parameter, or nil.
func (b *Block) Param(name string) *Parameter {
	for i := range b.Parameters {
		if b.Parameters[i].Name == name {
			return &b.Parameters[i]
		}
	}
	return nil
}

// Flag reports whether a boolean parameter is present and true.
func (b *Block) Flag(name string) bool {
	p := b.Param(name)
	if p == nil {
		return false
	}
	v, ok := p.Value.(bool)
	return ok && v
}

// Endpoint is one end of a connection.
type Endpoint struct {
	BlockID string `json:"block_id" yaml:"block_id" validate:"required"`
	Port    string `json:"port" yaml:"port"`
}

// Connection is a directed data edge between two block ports.
type Connection struct {
	ID       string   `json:"id" yaml:"id" validate:"required"`
	Source   Endpoint `json:"source" yaml:"source"`
	Target   Endpoint `json:"target" yaml:"target"`
	DataType string   `json:"data_type,omitempty" yaml:"data_type,omitempty"`
}

// Metadata carries bookkeeping for a flow.
type Metadata struct {
	Language  string    `json:"language,omitempty" yaml:"language,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
	Version   int       `json:"version" yaml:"version"`
}

// Flow is a block graph. It is not guaranteed to be acyclic.
type Flow struct {
	ID          string       `json:"id" yaml:"id" validate:"required"`
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Blocks      []Block      `json:"blocks" yaml:"blocks" validate:"dive"`
	Connections []Connection `json:"connections" yaml:"connections" validate:"dive"`
	Metadata    Metadata     `json:"metadata" yaml:"metadata"`
}
