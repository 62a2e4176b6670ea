package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yosida95/uritemplate/v3"

	"github.com/syarbeats/mcp-playground/mcp"
)

// MimeTypeJSON is the MIME type of JSON resource contents.
const MimeTypeJSON = "application/json"

// ResourceHandler produces the contents of a static resource.
type ResourceHandler func(ctx context.Context, uri string) (*mcp.ReadResourceResult, error)

// TemplateHandler produces the contents of a templated resource. value is the
// text bound to the template's variable.
type TemplateHandler func(ctx context.Context, uri, value string) (*mcp.ReadResourceResult, error)

// Resource is a static, exactly-addressed resource.
type Resource struct {
	Descriptor mcp.Resource
	Read       ResourceHandler
}

// Template is a resource family addressed by a URI template with exactly one
// variable, such as task://{task_id}.
type Template struct {
	Descriptor mcp.ResourceTemplate
	Read       TemplateHandler

	tmpl    *uritemplate.Template
	varname string
}

// NewTemplate parses desc.URITemplate. Templates with zero or several
// variables are rejected.
func NewTemplate(desc mcp.ResourceTemplate, fn TemplateHandler) (Template, error) {
	tmpl, err := uritemplate.New(desc.URITemplate)
	if err != nil {
		return Template{}, fmt.Errorf("parse uri template %q: %w", desc.URITemplate, err)
	}
	names := tmpl.Varnames()
	if len(names) != 1 {
		return Template{}, fmt.Errorf("uri template %q must have exactly one variable, has %d", desc.URITemplate, len(names))
	}
	return Template{Descriptor: desc, Read: fn, tmpl: tmpl, varname: names[0]}, nil
}

// MustTemplate is NewTemplate that panics on a malformed template. Use it
// for templates that are compile-time constants.
func MustTemplate(desc mcp.ResourceTemplate, fn TemplateHandler) Template {
	t, err := NewTemplate(desc, fn)
	if err != nil {
		panic(err)
	}
	return t
}

// match binds the template variable from uri. The template's literal parts
// must match exactly and the bound value must be a non-empty run of RFC 3986
// unreserved characters, so it can never span a '/'.
func (t Template) match(uri string) (string, bool) {
	if t.tmpl == nil {
		return "", false
	}
	values := t.tmpl.Match(uri)
	if values == nil {
		return "", false
	}
	v := values.Get(t.varname)
	if !v.Valid() || v.T != uritemplate.ValueTypeString {
		return "", false
	}
	s := v.String()
	if s == "" || !isUnreserved(s) {
		return "", false
	}
	expanded, err := t.tmpl.Expand(uritemplate.Values{t.varname: uritemplate.String(s)})
	if err != nil || expanded != uri {
		return "", false
	}
	return s, true
}

func isUnreserved(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		case c == '-', c == '.', c == '_', c == '~':
		default:
			return false
		}
	}
	return true
}

// JSONContents renders v as indented JSON resource contents for uri.
func JSONContents(uri string, v any) (*mcp.ReadResourceResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal resource %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []mcp.ResourceContents{{URI: uri, MimeType: MimeTypeJSON, Text: string(b)}},
	}, nil
}
