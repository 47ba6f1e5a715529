package flow

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Option configures a new Flow.
type Option func(*Flow)

// WithID overrides the generated flow id.
func WithID(id string) Option {
	return func(f *Flow) { f.ID = id }
}

// WithDescription sets the flow description.
func WithDescription(desc string) Option {
	return func(f *Flow) { f.Description = desc }
}

// WithLanguage sets the source language tag.
func WithLanguage(lang string) Option {
	return func(f *Flow) { f.Metadata.Language = lang }
}

// now is swapped in tests that need deterministic timestamps.
var now = func() time.Time { return time.Now().UTC() }

// New creates an empty flow.
func New(name string, opts ...Option) *Flow {
	ts := now()
	f := &Flow{
		ID:          uuid.NewString(),
		Name:        name,
		Blocks:      []Block{},
		Connections: []Connection{},
		Metadata: Metadata{
			CreatedAt: ts,
			UpdatedAt: ts,
			Version:   1,
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// touch records a mutation.
func (f *Flow) touch() {
	f.Metadata.UpdatedAt = now()
	f.Metadata.Version++
}

// BlockSpec describes a block to add.
type BlockSpec struct {
	ID         string // generated when empty
	Kind       BlockKind
	Label      string // template label when empty
	Parameters map[string]any
	Position   Position
}

// AddBlock instantiates a block from the kind's template and appends it.
// The returned pointer is valid until the next mutation of f.
func (f *Flow) AddBlock(spec BlockSpec) (*Block, error) {
	tmpl, err := LookupTemplate(spec.Kind)
	if err != nil {
		return nil, err
	}
	params, err := tmpl.instantiate(spec.Parameters)
	if err != nil {
		return nil, err
	}

	id := spec.ID
	if id == "" {
		id = fmt.Sprintf("%s_%s", spec.Kind, uuid.NewString()[:8])
	}
	if f.blockIndex(id) >= 0 {
		return nil, &ValidationError{Field: "id", Reason: fmt.Sprintf("block %q already exists", id)}
	}

	label := spec.Label
	if label == "" {
		label = tmpl.Label
	}

	f.Blocks = append(f.Blocks, Block{
		ID:          id,
		Kind:        spec.Kind,
		Label:       label,
		Parameters:  params,
		Position:    spec.Position,
		Connections: BlockConnections{Inputs: []string{}, Outputs: []string{}},
	})
	f.touch()
	return &f.Blocks[len(f.Blocks)-1], nil
}

// Connect adds a directed edge between two block ports.
func (f *Flow) Connect(from, to Endpoint, dataType string) (*Connection, error) {
	si := f.blockIndex(from.BlockID)
	if si < 0 {
		return nil, &NotFoundError{Entity: "block", ID: from.BlockID}
	}
	ti := f.blockIndex(to.BlockID)
	if ti < 0 {
		return nil, &NotFoundError{Entity: "block", ID: to.BlockID}
	}
	if from.Port == "" {
		from.Port = "out"
	}
	if to.Port == "" {
		to.Port = "in"
	}

	conn := Connection{
		ID:       "conn_" + uuid.NewString()[:8],
		Source:   from,
		Target:   to,
		DataType: dataType,
	}
	f.Connections = append(f.Connections, conn)
	f.Blocks[si].Connections.Outputs = append(f.Blocks[si].Connections.Outputs, conn.ID)
	f.Blocks[ti].Connections.Inputs = append(f.Blocks[ti].Connections.Inputs, conn.ID)
	f.touch()
	return &f.Connections[len(f.Connections)-1], nil
}

// UpdateParameter sets an existing parameter's value.
func (f *Flow) UpdateParameter(blockID, name string, value any) error {
	i := f.blockIndex(blockID)
	if i < 0 {
		return &NotFoundError{Entity: "block", ID: blockID}
	}
	p := f.Blocks[i].Param(name)
	if p == nil {
		return &NotFoundError{Entity: "parameter", ID: blockID + "." + name}
	}
	if value == nil && p.Required {
		return &ValidationError{Field: name, Reason: "required parameter cannot be cleared"}
	}
	v, err := normalizeValue(name, p.Type, value)
	if err != nil {
		return err
	}
	p.Value = v
	f.touch()
	return nil
}

// SetParameter adds or replaces a parameter without template checks. The
// optimizer uses it to attach marker parameters.
func (f *Flow) SetParameter(blockID string, param Parameter) error {
	i := f.blockIndex(blockID)
	if i < 0 {
		return &NotFoundError{Entity: "block", ID: blockID}
	}
	if p := f.Blocks[i].Param(param.Name); p != nil {
		*p = param
	} else {
		f.Blocks[i].Parameters = append(f.Blocks[i].Parameters, param)
	}
	f.touch()
	return nil
}

// RemoveBlock deletes a block and every connection touching it.
func (f *Flow) RemoveBlock(id string) error {
	i := f.blockIndex(id)
	if i < 0 {
		return &NotFoundError{Entity: "block", ID: id}
	}

	kept := f.Connections[:0]
	var dropped []string
	for _, c := range f.Connections {
		if c.Source.BlockID == id || c.Target.BlockID == id {
			dropped = append(dropped, c.ID)
			continue
		}
		kept = append(kept, c)
	}
	f.Connections = kept
	f.Blocks = append(f.Blocks[:i], f.Blocks[i+1:]...)
	for _, cid := range dropped {
		f.detachConnection(cid)
	}
	f.touch()
	return nil
}

// RemoveConnection deletes a single connection.
func (f *Flow) RemoveConnection(id string) error {
	for i, c := range f.Connections {
		if c.ID == id {
			f.Connections = append(f.Connections[:i], f.Connections[i+1:]...)
			f.detachConnection(id)
			f.touch()
			return nil
		}
	}
	return &NotFoundError{Entity: "connection", ID: id}
}

// Relink rebuilds every block's input and output connection lists from
// f.Connections. Loaders call it after decoding a flow whose per-block
// lists may be missing or stale. Dangling endpoints are left for Validate.
func (f *Flow) Relink() {
	pos := make(map[string]int, len(f.Blocks))
	for i := range f.Blocks {
		pos[f.Blocks[i].ID] = i
		f.Blocks[i].Connections = BlockConnections{Inputs: []string{}, Outputs: []string{}}
	}
	for _, c := range f.Connections {
		if i, ok := pos[c.Source.BlockID]; ok {
			f.Blocks[i].Connections.Outputs = append(f.Blocks[i].Connections.Outputs, c.ID)
		}
		if i, ok := pos[c.Target.BlockID]; ok {
			f.Blocks[i].Connections.Inputs = append(f.Blocks[i].Connections.Inputs, c.ID)
		}
	}
}

func (f *Flow) detachConnection(cid string) {
	for i := range f.Blocks {
		f.Blocks[i].Connections.Inputs = without(f.Blocks[i].Connections.Inputs, cid)
		f.Blocks[i].Connections.Outputs = without(f.Blocks[i].Connections.Outputs, cid)
	}
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

// Block returns the block with the given id.
func (f *Flow) Block(id string) (*Block, error) {
	i := f.blockIndex(id)
	if i < 0 {
		return nil, &NotFoundError{Entity: "block", ID: id}
	}
	return &f.Blocks[i], nil
}

// Connection returns the connection with the given id.
func (f *Flow) Connection(id string) (*Connection, error) {
	for i := range f.Connections {
		if f.Connections[i].ID == id {
			return &f.Connections[i], nil
		}
	}
	return nil, &NotFoundError{Entity: "connection", ID: id}
}

// HasBlock reports whether a block id exists.
func (f *Flow) HasBlock(id string) bool {
	return f.blockIndex(id) >= 0
}

func (f *Flow) blockIndex(id string) int {
	for i := range f.Blocks {
		if f.Blocks[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the flow.
func (f *Flow) Clone() *Flow {
	if f == nil {
		return nil
	}
	out := *f
	out.Blocks = make([]Block, len(f.Blocks))
	for i, b := range f.Blocks {
		nb := b
		nb.Parameters = make([]Parameter, len(b.Parameters))
		for j, p := range b.Parameters {
			p.Value = cloneValue(p.Value)
			nb.Parameters[j] = p
		}
		nb.Connections = BlockConnections{
			Inputs:  append([]string{}, b.Connections.Inputs...),
			Outputs: append([]string{}, b.Connections.Outputs...),
		}
		out.Blocks[i] = nb
	}
	out.Connections = append([]Connection{}, f.Connections...)
	return &out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, x := range t {
			m[k] = cloneValue(x)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, x := range t {
			s[i] = cloneValue(x)
		}
		return s
	default:
		return v
	}
}
