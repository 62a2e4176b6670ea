package provider

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/invopop/jsonschema"

	"github.com/syarbeats/mcp-playground/internal/jsonrpc"
	"github.com/syarbeats/mcp-playground/mcp"
)

// reflectInputSchema reflects A into the simplified tool input schema. Unknown
// fields are always rejected.
func reflectInputSchema[A any]() mcp.ToolInputSchema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(new(A))

	if s == nil || s.Type != "object" {
		return mcp.ToolInputSchema{Type: "object", Properties: map[string]mcp.SchemaProperty{}}
	}

	props := make(map[string]mcp.SchemaProperty)
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			props[el.Key] = toProperty(el.Value)
		}
	}
	var required []string
	if len(s.Required) > 0 {
		required = append(required, s.Required...)
	}
	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

func toProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{
		Type:        s.Type,
		Description: s.Description,
		Default:     s.Default,
	}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	return p
}

// FieldError describes why a single argument was rejected. It is carried in
// the data member of InvalidArguments errors.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// validateArguments checks args against schema and fills defaults for absent
// optional properties. It never calls into tool code.
func validateArguments(schema mcp.ToolInputSchema, args map[string]any) *Error {
	for _, name := range schema.Required {
		v, ok := args[name]
		if !ok || v == nil {
			return invalidField(name, "required")
		}
	}

	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prop, ok := schema.Properties[name]
		if !ok {
			if schema.AdditionalProperties {
				continue
			}
			return invalidField(name, "unknown field")
		}
		v := args[name]
		if v == nil && !slices.Contains(schema.Required, name) {
			delete(args, name)
			continue
		}
		if !kindMatches(prop.Type, v) {
			return invalidField(name, fmt.Sprintf("expected %s", prop.Type))
		}
		if len(prop.Enum) > 0 && !enumContains(prop.Enum, v) {
			return invalidField(name, fmt.Sprintf("must be one of %v", prop.Enum))
		}
	}

	for name, prop := range schema.Properties {
		if _, ok := args[name]; !ok && prop.Default != nil {
			args[name] = prop.Default
		}
	}
	return nil
}

func invalidField(field, reason string) *Error {
	return &Error{
		Code:    jsonrpc.ErrorCodeInvalidArguments,
		Message: fmt.Sprintf("invalid arguments: %s: %s", field, reason),
		Data:    FieldError{Field: field, Reason: reason},
	}
}

// kindMatches compares a decoded JSON value against a JSON Schema type name.
func kindMatches(typ string, v any) bool {
	switch typ {
	case "":
		return true
	case "string":
		_, ok := v.(string)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "number":
		_, ok := v.(float64)
		return ok
	case "integer":
		f, ok := v.(float64)
		return ok && f == math.Trunc(f)
	case "object":
		_, ok := v.(map[string]any)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	}
	return false
}

func enumContains(enum []any, v any) bool {
	for _, e := range enum {
		if e == v {
			return true
		}
	}
	return false
}
