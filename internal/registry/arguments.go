// File: internal/registry/arguments.go
package registry

import (
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

// Arguments is the typed argument record for one tool call. It remembers
// the order parameters were declared in so it renders deterministically.
// Values are int64, float64, string or []any.
type Arguments struct {
	names  []string
	values map[string]any
}

func (a *Arguments) set(name string, v any) {
	if a.values == nil {
		a.values = make(map[string]any)
	}
	if _, exists := a.values[name]; !exists {
		a.names = append(a.names, name)
	}
	a.values[name] = v
}

// Len is the number of coerced parameters.
func (a Arguments) Len() int { return len(a.names) }

// Names lists the coerced parameters in declaration order.
func (a Arguments) Names() []string {
	return append([]string(nil), a.names...)
}

// Get returns the value for name.
func (a Arguments) Get(name string) (any, bool) {
	v, ok := a.values[name]
	return v, ok
}

// Map returns a copy suitable for sending to the tool executor.
func (a Arguments) Map() map[string]any {
	out := make(map[string]any, len(a.values))
	for k, v := range a.values {
		out[k] = v
	}
	return out
}

// String renders the arguments as {name: value, ...} in declaration order,
// quoting strings.
func (a Arguments) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, name := range a.names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(name)
		b.WriteString(": ")
		writeValue(&b, a.values[name])
	}
	b.WriteByte('}')
	return b.String()
}

func writeValue(b *strings.Builder, v any) {
	switch val := v.(type) {
	case string:
		b.WriteString(strconv.Quote(val))
	case int64:
		b.WriteString(strconv.FormatInt(val, 10))
	case float64:
		b.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case bool:
		b.WriteString(strconv.FormatBool(val))
	case []any:
		b.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				b.WriteString(", ")
			}
			writeValue(b, e)
		}
		b.WriteByte(']')
	default:
		raw, _ := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(val)
		b.WriteString(raw)
	}
}

// MarshalYAML exports the arguments as a mapping in declaration order.
func (a Arguments) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range a.names {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name}
		val := &yaml.Node{}
		if err := val.Encode(a.values[name]); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, key, val)
	}
	return node, nil
}

// MarshalJSON exports the arguments as an object in declaration order.
func (a Arguments) MarshalJSON() ([]byte, error) {
	stream := jsoniter.ConfigCompatibleWithStandardLibrary.BorrowStream(nil)
	defer jsoniter.ConfigCompatibleWithStandardLibrary.ReturnStream(stream)

	stream.WriteObjectStart()
	for i, name := range a.names {
		if i > 0 {
			stream.WriteMore()
		}
		stream.WriteObjectField(name)
		stream.WriteVal(a.values[name])
	}
	stream.WriteObjectEnd()
	if stream.Error != nil {
		return nil, stream.Error
	}
	return append([]byte(nil), stream.Buffer()...), nil
}
