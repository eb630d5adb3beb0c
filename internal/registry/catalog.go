// File: internal/registry/catalog.go
package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/easel/internal/mcp"
)

// Kind is the coercion class of a declared parameter.
type Kind string

const (
	KindInteger Kind = "integer"
	KindNumber  Kind = "number"
	KindString  Kind = "string"
	KindArray   Kind = "array"
	KindOther   Kind = "other" // anything else, passed through as raw text
)

func kindOf(schemaType string) Kind {
	switch schemaType {
	case "integer":
		return KindInteger
	case "number":
		return KindNumber
	case "string":
		return KindString
	case "array":
		return KindArray
	default:
		return KindOther
	}
}

// Parameter is one declared input of a tool.
type Parameter struct {
	Name string
	// Type is the schema type as declared, empty when the schema omits it.
	Type string
	Kind Kind
}

// ToolDescriptor is a tool as the agent sees it: its name, description and
// parameters in declaration order.
type ToolDescriptor struct {
	Name        string
	Description string
	Parameters  []Parameter
	// HasSchema is false when the tool declares no properties at all.
	HasSchema bool
	// Err is set when the input schema could not be read. Such a tool stays
	// in the catalog but cannot be coerced against.
	Err error
}

// ErrEmptyCatalog is returned when the tool server advertises no tools.
var ErrEmptyCatalog = errors.New("tool server advertised no tools")

// ToolLister is the part of a tool executor needed to build a catalog.
type ToolLister interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
}

// Catalog is the immutable set of tools fetched at startup.
type Catalog struct {
	tools []ToolDescriptor
	index map[string]int
}

// Fetch lists the executor's tools once and builds the catalog. An
// unreachable executor or an empty tool set is an error; there is no retry.
func Fetch(ctx context.Context, lister ToolLister, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tools, err := lister.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	if len(tools) == 0 {
		return nil, ErrEmptyCatalog
	}

	catalog := NewCatalog(tools)
	for _, d := range catalog.tools {
		if d.Err != nil {
			logger.Warn("Tool schema unreadable", zap.String("tool", d.Name), zap.Error(d.Err))
		}
	}
	logger.Info("Tool catalog fetched", zap.Int("tools", len(catalog.tools)))
	return catalog, nil
}

// NewCatalog builds a catalog from advertised tools without any I/O.
func NewCatalog(tools []mcp.Tool) *Catalog {
	c := &Catalog{
		tools: make([]ToolDescriptor, 0, len(tools)),
		index: make(map[string]int, len(tools)),
	}
	for _, t := range tools {
		d := describe(t)
		if _, dup := c.index[d.Name]; !dup {
			// First declaration wins for lookups.
			c.index[d.Name] = len(c.tools)
		}
		c.tools = append(c.tools, d)
	}
	return c
}

// Tools returns the descriptors in advertised order.
func (c *Catalog) Tools() []ToolDescriptor {
	out := make([]ToolDescriptor, len(c.tools))
	copy(out, c.tools)
	return out
}

// Len is the number of tools in the catalog.
func (c *Catalog) Len() int { return len(c.tools) }

// Lookup finds a tool by exact name.
func (c *Catalog) Lookup(name string) (ToolDescriptor, bool) {
	i, ok := c.index[name]
	if !ok {
		return ToolDescriptor{}, false
	}
	return c.tools[i], true
}

// Render produces the prompt form of the catalog, one 1-indexed line per
// tool:
//
//	1. draw_rectangle(x1:integer, y1:integer) - Draw a rectangle
//
// Unreadable tools render as "<i>. Error reading tool".
func (c *Catalog) Render() string {
	lines := make([]string, len(c.tools))
	for i, d := range c.tools {
		lines[i] = renderLine(i+1, d)
	}
	return strings.Join(lines, "\n")
}

func renderLine(n int, d ToolDescriptor) string {
	if d.Err != nil {
		return fmt.Sprintf("%d. Error reading tool", n)
	}

	params := "no parameters"
	if d.HasSchema {
		parts := make([]string, len(d.Parameters))
		for i, p := range d.Parameters {
			typ := p.Type
			if typ == "" {
				typ = "unknown"
			}
			parts[i] = p.Name + ":" + typ
		}
		params = strings.Join(parts, ", ")
	}

	desc := d.Description
	if desc == "" {
		desc = "No description"
	}
	name := d.Name
	if name == "" {
		name = fmt.Sprintf("tool_%d", n-1)
	}
	return fmt.Sprintf("%d. %s(%s) - %s", n, name, params, desc)
}

func describe(t mcp.Tool) ToolDescriptor {
	d := ToolDescriptor{Name: t.Name, Description: t.Description}
	params, hasProps, err := readParameters(t.InputSchema)
	if err != nil {
		d.Err = err
		return d
	}
	d.Parameters = params
	d.HasSchema = hasProps
	return d
}

// readParameters walks the schema's "properties" object in document order.
// A map decode would lose that order, and positional arguments depend on it.
func readParameters(schema []byte) ([]Parameter, bool, error) {
	if len(bytes.TrimSpace(schema)) == 0 {
		return nil, false, nil
	}

	iter := jsoniter.ParseBytes(jsoniter.ConfigCompatibleWithStandardLibrary, schema)
	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return nil, false, errors.New("input schema is not a JSON object")
	}

	var (
		params   []Parameter
		hasProps bool
	)
	iter.ReadObjectCB(func(it *jsoniter.Iterator, field string) bool {
		if field != "properties" {
			it.Skip()
			return it.Error == nil
		}
		if it.WhatIsNext() != jsoniter.ObjectValue {
			it.ReportError("readParameters", "properties is not an object")
			return false
		}
		hasProps = true
		params = params[:0]
		it.ReadObjectCB(func(pit *jsoniter.Iterator, name string) bool {
			typ := readType(pit)
			params = append(params, Parameter{Name: name, Type: typ, Kind: kindOf(typ)})
			return pit.Error == nil
		})
		return it.Error == nil
	})

	if iter.Error != nil {
		return nil, false, fmt.Errorf("malformed input schema: %w", iter.Error)
	}
	return params, hasProps, nil
}

// readType extracts the "type" of one property schema. For a type union the
// first non-null member is used.
func readType(it *jsoniter.Iterator) string {
	if it.WhatIsNext() != jsoniter.ObjectValue {
		it.Skip()
		return ""
	}
	var typ string
	it.ReadObjectCB(func(fit *jsoniter.Iterator, field string) bool {
		if field != "type" {
			fit.Skip()
			return fit.Error == nil
		}
		switch fit.WhatIsNext() {
		case jsoniter.StringValue:
			typ = fit.ReadString()
		case jsoniter.ArrayValue:
			fit.ReadArrayCB(func(ait *jsoniter.Iterator) bool {
				if ait.WhatIsNext() != jsoniter.StringValue {
					ait.Skip()
					return ait.Error == nil
				}
				if s := ait.ReadString(); typ == "" && s != "null" {
					typ = s
				}
				return ait.Error == nil
			})
		default:
			fit.Skip()
		}
		return fit.Error == nil
	})
	return typ
}
