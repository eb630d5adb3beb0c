package agent

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/easel/internal/llmclient"
	"github.com/xkilldash9x/easel/internal/mcp"
)

// MockToolExecutor mocks the ToolExecutor interface.
type MockToolExecutor struct {
	mock.Mock
}

func (m *MockToolExecutor) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	args := m.Called(ctx)
	tools, _ := args.Get(0).([]mcp.Tool)
	return tools, args.Error(1)
}

func (m *MockToolExecutor) CallTool(ctx context.Context, name string, arguments map[string]any) (string, error) {
	args := m.Called(ctx, name, arguments)
	return args.String(0), args.Error(1)
}

// scriptedInvoker replays completions in order and repeats the last one
// once the script runs out.
type scriptedInvoker struct {
	mu       sync.Mutex
	script   []llmclient.Completion
	prompts  []string
	timeouts []time.Duration
}

func newScriptedInvoker(texts ...string) *scriptedInvoker {
	s := &scriptedInvoker{}
	for _, text := range texts {
		s.script = append(s.script, llmclient.Completion{Text: text, OK: true})
	}
	return s
}

func (s *scriptedInvoker) Complete(_ context.Context, prompt string, timeout time.Duration) llmclient.Completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	s.timeouts = append(s.timeouts, timeout)
	i := len(s.prompts) - 1
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	return s.script[i]
}

func (s *scriptedInvoker) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// blockingGenerator never answers before its context ends.
type blockingGenerator struct{}

func (blockingGenerator) Generate(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func paintCatalog() []mcp.Tool {
	return []mcp.Tool{
		{Name: "open_paint", Description: "Open Microsoft Paint", InputSchema: []byte(`{"type":"object","properties":{}}`)},
		{
			Name:        "draw_rectangle",
			Description: "Draw a rectangle in Paint",
			InputSchema: []byte(`{"type":"object","properties":{"x1":{"type":"integer"},"y1":{"type":"integer"},"x2":{"type":"integer"},"y2":{"type":"integer"}}}`),
		},
		{
			Name:        "add_text_in_paint",
			Description: "Add text in Paint",
			InputSchema: []byte(`{"type":"object","properties":{"text":{"type":"string"},"x1":{"type":"integer"},"y1":{"type":"integer"}}}`),
		},
	}
}
