package flow

import "fmt"

// ParameterSpec declares one parameter of a block template.
type ParameterSpec struct {
	Name     string
	Type     ParamType
	Required bool
	Default  any // nil means no default
}

// Template is the catalog entry for a block kind.
type Template struct {
	Kind       BlockKind
	Label      string
	Parameters []ParameterSpec
}

func (t Template) spec(name string) (ParameterSpec, bool) {
	for _, p := range t.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterSpec{}, false
}

var catalog = map[BlockKind]Template{
	KindInput: {Kind: KindInput, Label: "Input", Parameters: []ParameterSpec{
		{Name: "source", Type: ParamString, Required: true, Default: "stdin"},
		{Name: "format", Type: ParamString, Default: "json"},
	}},
	KindTransform: {Kind: KindTransform, Label: "Transform", Parameters: []ParameterSpec{
		{Name: "expression", Type: ParamString, Required: true, Default: "identity"},
	}},
	KindFilter: {Kind: KindFilter, Label: "Filter", Parameters: []ParameterSpec{
		{Name: "predicate", Type: ParamString, Required: true, Default: "true"},
	}},
	KindAggregate: {Kind: KindAggregate, Label: "Aggregate", Parameters: []ParameterSpec{
		{Name: "function", Type: ParamString, Required: true, Default: "count"},
		{Name: "group_by", Type: ParamString},
	}},
	KindCondition: {Kind: KindCondition, Label: "Condition", Parameters: []ParameterSpec{
		{Name: "expression", Type: ParamString, Required: true, Default: "true"},
	}},
	KindLoop: {Kind: KindLoop, Label: "Loop", Parameters: []ParameterSpec{
		{Name: "over", Type: ParamString, Required: true, Default: "items"},
		{Name: "max_iterations", Type: ParamNumber, Default: float64(0)},
	}},
	KindExternalCall: {Kind: KindExternalCall, Label: "External Call", Parameters: []ParameterSpec{
		{Name: "url", Type: ParamString, Required: true},
		{Name: "method", Type: ParamString, Default: "GET"},
		{Name: "timeout_ms", Type: ParamNumber, Default: float64(5000)},
	}},
	KindDatabase: {Kind: KindDatabase, Label: "Database", Parameters: []ParameterSpec{
		{Name: "query", Type: ParamString, Required: true},
		{Name: "connection", Type: ParamString, Default: "default"},
	}},
	KindCustom: {Kind: KindCustom, Label: "Custom", Parameters: []ParameterSpec{
		{Name: "code", Type: ParamString, Default: ""},
		{Name: "config", Type: ParamAny},
	}},
	KindOutput: {Kind: KindOutput, Label: "Output", Parameters: []ParameterSpec{
		{Name: "destination", Type: ParamString, Required: true, Default: "stdout"},
	}},
}

// LookupTemplate returns the catalog template for a kind.
func LookupTemplate(kind BlockKind) (Template, error) {
	t, ok := catalog[kind]
	if !ok {
		return Template{}, &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown block template %q", kind)}
	}
	return t, nil
}

// normalizeValue coerces numeric values to float64 and checks the declared
// type.
func normalizeValue(name string, typ ParamType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch typ {
	case ParamString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case ParamBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case ParamNumber:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int32:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case uint:
			return float64(n), nil
		case uint64:
			return float64(n), nil
		}
	case ParamAny, "":
		return v, nil
	}
	return nil, &ValidationError{
		Field:  name,
		Reason: fmt.Sprintf("expected %s, got %T", typ, v),
	}
}

// instantiate builds the parameter list for a new block from its template
// and the caller's values.
func (t Template) instantiate(values map[string]any) ([]Parameter, error) {
	for name := range values {
		if _, ok := t.spec(name); !ok {
			return nil, &ValidationError{Field: name, Reason: fmt.Sprintf("unknown parameter for %s block", t.Kind)}
		}
	}

	params := make([]Parameter, 0, len(t.Parameters))
	for _, ps := range t.Parameters {
		raw, given := values[ps.Name]
		if !given {
			raw = ps.Default
		}
		if raw == nil && ps.Required {
			return nil, &ValidationError{Field: ps.Name, Reason: "required parameter is missing"}
		}
		v, err := normalizeValue(ps.Name, ps.Type, raw)
		if err != nil {
			return nil, err
		}
		params = append(params, Parameter{
			Name:     ps.Name,
			Type:     ps.Type,
			Value:    v,
			Required: ps.Required,
		})
	}
	return params, nil
}
