package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/easel/internal/mcp"
)

type stubLister struct {
	tools []mcp.Tool
	err   error
	calls int
}

func (s *stubLister) ListTools(context.Context) ([]mcp.Tool, error) {
	s.calls++
	return s.tools, s.err
}

func paintTools() []mcp.Tool {
	return []mcp.Tool{
		{Name: "open_paint", Description: "Open Microsoft Paint", InputSchema: []byte(`{"type":"object","properties":{}}`)},
		{
			Name:        "draw_rectangle",
			Description: "Draw a rectangle",
			// Deliberately not alphabetical.
			InputSchema: []byte(`{"type":"object","properties":{"x1":{"type":"integer"},"y1":{"type":"integer"},"x2":{"type":"integer"},"y2":{"type":"integer"}},"required":["x1","y1","x2","y2"]}`),
		},
		{
			Name:        "add_text_in_paint",
			Description: "Add text",
			InputSchema: []byte(`{"properties":{"text":{"type":"string","title":"Text"},"x1":{"default":700,"type":"integer"},"y1":{"type":["integer","null"]}}}`),
		},
	}
}

func TestFetch(t *testing.T) {
	t.Run("builds descriptors in declaration order", func(t *testing.T) {
		lister := &stubLister{tools: paintTools()}
		catalog, err := Fetch(context.Background(), lister, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.Equal(t, 1, lister.calls)

		want := []ToolDescriptor{
			{Name: "open_paint", Description: "Open Microsoft Paint", HasSchema: true},
			{Name: "draw_rectangle", Description: "Draw a rectangle", HasSchema: true, Parameters: []Parameter{
				{Name: "x1", Type: "integer", Kind: KindInteger},
				{Name: "y1", Type: "integer", Kind: KindInteger},
				{Name: "x2", Type: "integer", Kind: KindInteger},
				{Name: "y2", Type: "integer", Kind: KindInteger},
			}},
			{Name: "add_text_in_paint", Description: "Add text", HasSchema: true, Parameters: []Parameter{
				{Name: "text", Type: "string", Kind: KindString},
				{Name: "x1", Type: "integer", Kind: KindInteger},
				{Name: "y1", Type: "integer", Kind: KindInteger},
			}},
		}
		if diff := cmp.Diff(want, catalog.Tools(), cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("catalog mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("empty tool set is fatal", func(t *testing.T) {
		_, err := Fetch(context.Background(), &stubLister{}, nil)
		assert.ErrorIs(t, err, ErrEmptyCatalog)
	})

	t.Run("unreachable executor is fatal", func(t *testing.T) {
		boom := errors.New("connection refused")
		lister := &stubLister{err: boom}
		_, err := Fetch(context.Background(), lister, nil)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, lister.calls, "no retry")
	})
}

func TestCatalog_Lookup(t *testing.T) {
	catalog := NewCatalog(paintTools())

	d, ok := catalog.Lookup("draw_rectangle")
	require.True(t, ok)
	assert.Len(t, d.Parameters, 4)

	_, ok = catalog.Lookup("Draw_Rectangle")
	assert.False(t, ok, "lookup is exact")
	_, ok = catalog.Lookup("draw")
	assert.False(t, ok)
}

func TestCatalog_Render(t *testing.T) {
	tools := append(paintTools(),
		mcp.Tool{Name: "fill_color_in_paint", InputSchema: []byte(`{"properties":{"x":{"default":400},"y":{"type":"integer"}}}`)},
		mcp.Tool{Name: "broken", Description: "Bad schema", InputSchema: []byte(`{"properties": [1, 2]}`)},
		mcp.Tool{Name: "truncated", InputSchema: []byte(`{"properties": {"a": {"type": "inte`)},
		mcp.Tool{Name: "ping", Description: "No schema at all"},
	)

	got := NewCatalog(tools).Render()

	want := "1. open_paint() - Open Microsoft Paint\n" +
		"2. draw_rectangle(x1:integer, y1:integer, x2:integer, y2:integer) - Draw a rectangle\n" +
		"3. add_text_in_paint(text:string, x1:integer, y1:integer) - Add text\n" +
		"4. fill_color_in_paint(x:unknown, y:integer) - No description\n" +
		"5. Error reading tool\n" +
		"6. Error reading tool\n" +
		"7. ping(no parameters) - No schema at all"
	assert.Equal(t, want, got)
}

func TestCatalog_RenderIsDeterministic(t *testing.T) {
	a := NewCatalog(paintTools()).Render()
	for i := 0; i < 20; i++ {
		assert.Equal(t, a, NewCatalog(paintTools()).Render())
	}
}

func TestReadParameters_NonObjectSchema(t *testing.T) {
	_, _, err := readParameters([]byte(`"string"`))
	assert.Error(t, err)

	params, hasProps, err := readParameters([]byte(`{"type":"object"}`))
	require.NoError(t, err)
	assert.False(t, hasProps)
	assert.Empty(t, params)

	params, hasProps, err = readParameters([]byte(`{"properties":{"flag":true,"n":{"type":"number"}}}`))
	require.NoError(t, err)
	assert.True(t, hasProps)
	assert.Equal(t, []Parameter{{Name: "flag", Kind: KindOther}, {Name: "n", Type: "number", Kind: KindNumber}}, params)
}
