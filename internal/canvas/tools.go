// internal/canvas/tools.go
package canvas

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/easel/internal/mcp"
)

// Tool names exposed by Register.
const (
	ToolOpen      = "open_paint"
	ToolRectangle = "draw_rectangle"
	ToolText      = "add_text_in_paint"
	ToolFill      = "fill_color_in_paint"
)

const notOpenText = "Call open_paint first."

type openInput struct{}

type rectangleInput struct {
	X1 int `json:"x1" jsonschema:"description=X of the first corner"`
	Y1 int `json:"y1" jsonschema:"description=Y of the first corner"`
	X2 int `json:"x2" jsonschema:"description=X of the opposite corner"`
	Y2 int `json:"y2" jsonschema:"description=Y of the opposite corner"`
}

type textInput struct {
	Text string `json:"text" jsonschema:"description=Text to write"`
	X1   int    `json:"x1,omitempty" jsonschema:"default=700"`
	Y1   int    `json:"y1,omitempty" jsonschema:"default=350"`
}

type fillInput struct {
	X int `json:"x,omitempty" jsonschema:"default=400"`
	Y int `json:"y,omitempty" jsonschema:"default=400"`
}

// Register adds the Paint tools backed by c to srv.
func Register(srv *mcp.Server, c *Canvas, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handlers{canvas: c, logger: logger.Named("canvas")}

	open, err := mcp.NewTool[openInput](ToolOpen, "Open Microsoft Paint")
	if err != nil {
		return err
	}
	rect, err := mcp.NewTool[rectangleInput](ToolRectangle, "Draw a rectangle in Paint from (x1,y1) to (x2,y2)")
	if err != nil {
		return err
	}
	text, err := mcp.NewTool[textInput](ToolText, "Add text in Paint at (x1,y1)")
	if err != nil {
		return err
	}
	fill, err := mcp.NewTool[fillInput](ToolFill, "Fill the region around (x,y) with colour")
	if err != nil {
		return err
	}

	for _, reg := range []struct {
		tool    mcp.Tool
		handler mcp.ToolHandler
	}{
		{open, h.open},
		{rect, h.drawRectangle},
		{text, h.addText},
		{fill, h.fill},
	} {
		if err := srv.AddTool(reg.tool, reg.handler); err != nil {
			return err
		}
	}
	return nil
}

type handlers struct {
	canvas *Canvas
	logger *zap.Logger
}

func (h *handlers) open(context.Context, map[string]any) (*mcp.CallToolResult, error) {
	if h.canvas.Open() {
		return mcp.TextResult("Paint is already open and maximized."), nil
	}
	h.logger.Info("Canvas opened.")
	return mcp.TextResult("Paint opened successfully and maximized."), nil
}

func (h *handlers) drawRectangle(_ context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	var in rectangleInput
	if err := mcp.BindArguments(args, &in); err != nil {
		return nil, err
	}
	r, err := h.canvas.DrawRectangle(Point{X: in.X1, Y: in.Y1}, Point{X: in.X2, Y: in.Y2})
	if errors.Is(err, ErrNotOpen) {
		return mcp.TextResult(notOpenText), nil
	}
	if err != nil {
		return nil, err
	}
	h.logger.Debug("Rectangle drawn.", zap.Any("rectangle", r))
	return mcp.TextResult(fmt.Sprintf("Rectangle drawn (%d,%d) -> (%d,%d)", in.X1, in.Y1, in.X2, in.Y2)), nil
}

func (h *handlers) addText(_ context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	in := textInput{X1: 700, Y1: 350}
	if err := mcp.BindArguments(args, &in); err != nil {
		return nil, err
	}
	err := h.canvas.AddText(in.Text, Point{X: in.X1, Y: in.Y1})
	if errors.Is(err, ErrNotOpen) {
		return mcp.TextResult(notOpenText), nil
	}
	if err != nil {
		return nil, err
	}
	return mcp.TextResult(fmt.Sprintf("Text '%s' added.", in.Text)), nil
}

func (h *handlers) fill(_ context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	in := fillInput{X: 400, Y: 400}
	if err := mcp.BindArguments(args, &in); err != nil {
		return nil, err
	}
	f, err := h.canvas.FillAt(Point{X: in.X, Y: in.Y})
	if errors.Is(err, ErrNotOpen) {
		return mcp.TextResult(notOpenText), nil
	}
	if err != nil {
		return nil, err
	}
	h.logger.Debug("Region filled.", zap.Int("target", f.Target))
	return mcp.TextResult(fmt.Sprintf("Color filled at (%d, %d).", in.X, in.Y)), nil
}
