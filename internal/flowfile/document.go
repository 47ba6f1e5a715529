// Package flowfile reads and writes flow definitions as JSON, YAML or HCL
// documents and watches directories of them.
package flowfile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/efebarandurmaz/flowlens/internal/flow"
)

// Document is the on-disk shape of a flow. Connections reference blocks by
// id; per-block connection lists are derived on load.
type Document struct {
	ID          string          `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string          `json:"name" yaml:"name" validate:"required"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Language    string          `json:"language,omitempty" yaml:"language,omitempty"`
	Blocks      []BlockDoc      `json:"blocks" yaml:"blocks" validate:"dive"`
	Connections []ConnectionDoc `json:"connections,omitempty" yaml:"connections,omitempty" validate:"dive"`
}

// BlockDoc is one block. An empty ID is generated on load.
type BlockDoc struct {
	ID     string         `json:"id,omitempty" yaml:"id,omitempty"`
	Kind   string         `json:"kind" yaml:"kind" validate:"required,block_kind"`
	Label  string         `json:"label,omitempty" yaml:"label,omitempty"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	X      float64        `json:"x,omitempty" yaml:"x,omitempty"`
	Y      float64        `json:"y,omitempty" yaml:"y,omitempty"`
}

// ConnectionDoc is one edge.
type ConnectionDoc struct {
	ID       string `json:"id,omitempty" yaml:"id,omitempty"`
	From     string `json:"from" yaml:"from" validate:"required"`
	FromPort string `json:"from_port,omitempty" yaml:"from_port,omitempty"`
	To       string `json:"to" yaml:"to" validate:"required"`
	ToPort   string `json:"to_port,omitempty" yaml:"to_port,omitempty"`
	DataType string `json:"data_type,omitempty" yaml:"data_type,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("block_kind", func(fl validator.FieldLevel) bool {
		return flow.BlockKind(fl.Field().String()).Valid()
	})
	return v
}

// checkDocument runs struct validation and reports the first failure as a
// flow.ValidationError.
func checkDocument(doc *Document) error {
	err := validate.Struct(doc)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := strings.TrimPrefix(fe.Namespace(), "Document.")
		reason := fmt.Sprintf("failed %q check", fe.Tag())
		if fe.Tag() == "block_kind" {
			reason = fmt.Sprintf("unknown block kind %q", fe.Value())
		}
		return &flow.ValidationError{Field: field, Reason: reason}
	}
	return err
}

// Build turns a document into a flow. Template parameters go through the
// block catalog; any other parameter, such as an optimizer marker, is kept
// as is.
func Build(doc *Document) (*flow.Flow, error) {
	if err := checkDocument(doc); err != nil {
		return nil, err
	}

	var opts []flow.Option
	if doc.ID != "" {
		opts = append(opts, flow.WithID(doc.ID))
	}
	if doc.Description != "" {
		opts = append(opts, flow.WithDescription(doc.Description))
	}
	if doc.Language != "" {
		opts = append(opts, flow.WithLanguage(doc.Language))
	}
	f := flow.New(doc.Name, opts...)

	for i, bd := range doc.Blocks {
		kind := flow.BlockKind(bd.Kind)
		tmpl, err := flow.LookupTemplate(kind)
		if err != nil {
			return nil, err
		}
		known := make(map[string]any, len(bd.Params))
		extra := make(map[string]any)
		for name, v := range bd.Params {
			if templateHas(tmpl, name) {
				known[name] = normalizeNumber(v)
			} else {
				extra[name] = normalizeNumber(v)
			}
		}
		b, err := f.AddBlock(flow.BlockSpec{
			ID:         bd.ID,
			Kind:       kind,
			Label:      bd.Label,
			Parameters: known,
			Position:   flow.Position{X: bd.X, Y: bd.Y},
		})
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		id := b.ID
		for _, name := range sortedKeys(extra) {
			v := extra[name]
			if err := f.SetParameter(id, flow.Parameter{Name: name, Type: inferType(v), Value: v}); err != nil {
				return nil, fmt.Errorf("block %s: %w", id, err)
			}
		}
	}

	for i, cd := range doc.Connections {
		c, err := f.Connect(
			flow.Endpoint{BlockID: cd.From, Port: cd.FromPort},
			flow.Endpoint{BlockID: cd.To, Port: cd.ToPort},
			cd.DataType,
		)
		if err != nil {
			return nil, fmt.Errorf("connection %d: %w", i, err)
		}
		if cd.ID != "" {
			c.ID = cd.ID
		}
	}
	f.Relink()

	f.Metadata.Version = 1
	f.Metadata.UpdatedAt = f.Metadata.CreatedAt
	return f, nil
}

// FromFlow converts a flow to its document form. Parameters without a
// value are omitted.
func FromFlow(f *flow.Flow) *Document {
	doc := &Document{
		ID:          f.ID,
		Name:        f.Name,
		Description: f.Description,
		Language:    f.Metadata.Language,
		Blocks:      make([]BlockDoc, 0, len(f.Blocks)),
	}
	for _, b := range f.Blocks {
		bd := BlockDoc{ID: b.ID, Kind: string(b.Kind), Label: b.Label, X: b.Position.X, Y: b.Position.Y}
		for _, p := range b.Parameters {
			if p.Value == nil {
				continue
			}
			if bd.Params == nil {
				bd.Params = make(map[string]any)
			}
			bd.Params[p.Name] = p.Value
		}
		doc.Blocks = append(doc.Blocks, bd)
	}
	for _, c := range f.Connections {
		doc.Connections = append(doc.Connections, ConnectionDoc{
			ID:       c.ID,
			From:     c.Source.BlockID,
			FromPort: c.Source.Port,
			To:       c.Target.BlockID,
			ToPort:   c.Target.Port,
			DataType: c.DataType,
		})
	}
	return doc
}

func templateHas(t flow.Template, name string) bool {
	for _, p := range t.Parameters {
		if p.Name == name {
			return true
		}
	}
	return false
}

// normalizeNumber maps the integer types YAML produces to float64.
func normalizeNumber(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	}
	return v
}

func inferType(v any) flow.ParamType {
	switch v.(type) {
	case string:
		return flow.ParamString
	case bool:
		return flow.ParamBoolean
	case float64:
		return flow.ParamNumber
	}
	return flow.ParamAny
}
