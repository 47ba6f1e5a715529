package flowfile

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// hclFile is the HCL layout:
//
//	name = "etl"
//	block "load" {
//	  kind   = "database"
//	  params = { query = "SELECT 1" }
//	}
//	connection {
//	  from = "load"
//	  to   = "out"
//	}
type hclFile struct {
	ID          string          `hcl:"id,optional"`
	Name        string          `hcl:"name"`
	Description string          `hcl:"description,optional"`
	Language    string          `hcl:"language,optional"`
	Blocks      []hclBlock      `hcl:"block,block"`
	Connections []hclConnection `hcl:"connection,block"`
}

type hclBlock struct {
	ID     string    `hcl:"id,label"`
	Kind   string    `hcl:"kind"`
	Label  string    `hcl:"label,optional"`
	Params cty.Value `hcl:"params,optional"`
	X      float64   `hcl:"x,optional"`
	Y      float64   `hcl:"y,optional"`
}

type hclConnection struct {
	ID       string `hcl:"id,optional"`
	From     string `hcl:"from"`
	FromPort string `hcl:"from_port,optional"`
	To       string `hcl:"to"`
	ToPort   string `hcl:"to_port,optional"`
	DataType string `hcl:"data_type,optional"`
}

func decodeHCL(data []byte, filename string) (*Document, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse hcl: %w", diags)
	}
	var hf hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &hf); diags.HasErrors() {
		return nil, fmt.Errorf("decode hcl: %w", diags)
	}

	doc := &Document{ID: hf.ID, Name: hf.Name, Description: hf.Description, Language: hf.Language}
	for _, b := range hf.Blocks {
		params, err := paramsFromCty(b.Params)
		if err != nil {
			return nil, fmt.Errorf("block %q params: %w", b.ID, err)
		}
		doc.Blocks = append(doc.Blocks, BlockDoc{ID: b.ID, Kind: b.Kind, Label: b.Label, Params: params, X: b.X, Y: b.Y})
	}
	for _, c := range hf.Connections {
		doc.Connections = append(doc.Connections, ConnectionDoc(c))
	}
	return doc, nil
}

func encodeHCL(doc *Document) ([]byte, error) {
	file := hclwrite.NewEmptyFile()
	body := file.Body()
	if doc.ID != "" {
		body.SetAttributeValue("id", cty.StringVal(doc.ID))
	}
	body.SetAttributeValue("name", cty.StringVal(doc.Name))
	if doc.Description != "" {
		body.SetAttributeValue("description", cty.StringVal(doc.Description))
	}
	if doc.Language != "" {
		body.SetAttributeValue("language", cty.StringVal(doc.Language))
	}

	for _, b := range doc.Blocks {
		body.AppendNewline()
		bb := body.AppendNewBlock("block", []string{b.ID}).Body()
		bb.SetAttributeValue("kind", cty.StringVal(b.Kind))
		if b.Label != "" {
			bb.SetAttributeValue("label", cty.StringVal(b.Label))
		}
		if len(b.Params) > 0 {
			v, err := paramsToCty(b.Params)
			if err != nil {
				return nil, fmt.Errorf("block %q params: %w", b.ID, err)
			}
			bb.SetAttributeValue("params", v)
		}
		if b.X != 0 || b.Y != 0 {
			bb.SetAttributeValue("x", cty.NumberFloatVal(b.X))
			bb.SetAttributeValue("y", cty.NumberFloatVal(b.Y))
		}
	}

	for _, c := range doc.Connections {
		body.AppendNewline()
		cb := body.AppendNewBlock("connection", nil).Body()
		if c.ID != "" {
			cb.SetAttributeValue("id", cty.StringVal(c.ID))
		}
		cb.SetAttributeValue("from", cty.StringVal(c.From))
		if c.FromPort != "" {
			cb.SetAttributeValue("from_port", cty.StringVal(c.FromPort))
		}
		cb.SetAttributeValue("to", cty.StringVal(c.To))
		if c.ToPort != "" {
			cb.SetAttributeValue("to_port", cty.StringVal(c.ToPort))
		}
		if c.DataType != "" {
			cb.SetAttributeValue("data_type", cty.StringVal(c.DataType))
		}
	}
	return file.Bytes(), nil
}

// paramsFromCty converts an object value through its JSON form, which
// yields the same Go types the JSON decoder does.
func paramsFromCty(v cty.Value) (map[string]any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.Type().IsObjectType() && !v.Type().IsMapType() {
		return nil, fmt.Errorf("expected an object, got %s", v.Type().FriendlyName())
	}
	data, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func paramsToCty(params map[string]any) (cty.Value, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return cty.NilVal, err
	}
	t, err := ctyjson.ImpliedType(data)
	if err != nil {
		return cty.NilVal, err
	}
	return ctyjson.Unmarshal(data, t)
}
