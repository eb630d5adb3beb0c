// File: internal/registry/coerce.go
package registry

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// Coordinate bounds applied to integer parameters. Names containing "x" use
// the horizontal range, everything else the vertical one.
const (
	MinX = 20
	MaxX = 1800
	MinY = 200
	MaxY = 900
)

// CoercionError reports a raw argument that could not be converted to its
// declared kind.
type CoercionError struct {
	Tool      string
	Parameter string
	Kind      Kind
	Raw       string
	Err       error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("cannot coerce %q to %s for %s.%s: %v", e.Raw, e.Kind, e.Tool, e.Parameter, e.Err)
}

func (e *CoercionError) Unwrap() error { return e.Err }

// ErrNonFinite rejects NaN and infinities, which have no JSON encoding.
var ErrNonFinite = errors.New("value is not a finite number")

// ErrUnreadableSchema is returned when coercing against a tool whose schema
// failed to load.
var ErrUnreadableSchema = errors.New("tool schema could not be read")

// Coerce pairs raw arguments with the tool's declared parameters by
// position and converts each to its declared kind. Surplus raw arguments
// are ignored and parameters without a raw argument are left out; neither
// is an error.
func Coerce(tool ToolDescriptor, raw []string) (Arguments, error) {
	if tool.Err != nil {
		return Arguments{}, fmt.Errorf("%s: %w: %v", tool.Name, ErrUnreadableSchema, tool.Err)
	}

	n := min(len(raw), len(tool.Parameters))
	args := Arguments{names: make([]string, 0, n), values: make(map[string]any, n)}

	for i := 0; i < n; i++ {
		p := tool.Parameters[i]
		v, err := coerceValue(p, raw[i])
		if err != nil {
			return Arguments{}, &CoercionError{Tool: tool.Name, Parameter: p.Name, Kind: p.Kind, Raw: raw[i], Err: err}
		}
		args.set(p.Name, v)
	}
	return args, nil
}

func coerceValue(p Parameter, raw string) (any, error) {
	switch p.Kind {
	case KindInteger:
		// Out-of-range input saturates at the int64 bounds and is clamped
		// like any other value.
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return nil, err
		}
		return ClampCoordinate(p.Name, n), nil
	case KindNumber:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, ErrNonFinite
		}
		return f, nil
	case KindArray:
		return ParseArrayLiteral(raw)
	default:
		return raw, nil
	}
}

// ClampCoordinate keeps generated coordinates inside the usable canvas.
// The axis is inferred from the parameter name: any name containing a
// lowercase "x" is horizontal.
func ClampCoordinate(name string, v int64) int64 {
	if strings.Contains(name, "x") {
		return clamp(v, MinX, MaxX)
	}
	return clamp(v, MinY, MaxY)
}

func clamp(v, lo, hi int64) int64 {
	return max(lo, min(hi, v))
}

var literalJSON = jsoniter.Config{UseNumber: true}.Froze()

// ParseArrayLiteral reads a JSON array whose elements are numbers, strings,
// booleans or nested arrays of the same. Objects, null and anything that is
// not a single well-formed array are rejected. Integral numbers come back
// as int64, others as float64.
func ParseArrayLiteral(raw string) ([]any, error) {
	text := bytes.TrimSpace([]byte(raw))
	if len(text) == 0 || text[0] != '[' {
		return nil, errors.New("not an array literal")
	}

	iter := jsoniter.ParseBytes(literalJSON, text)
	out, err := readArray(iter, 0)
	if err != nil {
		return nil, err
	}
	if iter.Error != nil {
		return nil, fmt.Errorf("malformed array literal: %w", iter.Error)
	}
	if iter.WhatIsNext() != jsoniter.InvalidValue {
		return nil, errors.New("unexpected text after array literal")
	}
	return out, nil
}

// maxArrayDepth bounds nesting so hostile input cannot exhaust the stack.
const maxArrayDepth = 32

func readArray(iter *jsoniter.Iterator, depth int) ([]any, error) {
	if depth >= maxArrayDepth {
		return nil, errors.New("array literal nested too deeply")
	}

	out := []any{}
	var elemErr error
	iter.ReadArrayCB(func(it *jsoniter.Iterator) bool {
		v, err := readLiteral(it, depth)
		if err != nil {
			elemErr = err
			return false
		}
		out = append(out, v)
		return it.Error == nil
	})
	if elemErr != nil {
		return nil, elemErr
	}
	if iter.Error != nil {
		return nil, fmt.Errorf("malformed array literal: %w", iter.Error)
	}
	return out, nil
}

func readLiteral(it *jsoniter.Iterator, depth int) (any, error) {
	switch it.WhatIsNext() {
	case jsoniter.NumberValue:
		num := it.ReadNumber()
		if n, err := num.Int64(); err == nil {
			return n, nil
		}
		f, err := num.Float64()
		if err != nil {
			return nil, fmt.Errorf("bad number %q: %w", num.String(), err)
		}
		return f, nil
	case jsoniter.StringValue:
		return it.ReadString(), nil
	case jsoniter.BoolValue:
		return it.ReadBool(), nil
	case jsoniter.ArrayValue:
		return readArray(it, depth+1)
	case jsoniter.NilValue:
		return nil, errors.New("null is not allowed in array literals")
	case jsoniter.ObjectValue:
		return nil, errors.New("objects are not allowed in array literals")
	default:
		return nil, errors.New("malformed array literal")
	}
}
