// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/xkilldash9x/easel/internal/config"
	"github.com/xkilldash9x/easel/internal/llmclient"
)

// executeCommand runs a fresh command tree and captures its output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// scriptedGenerator answers prompts from a fixed script and repeats the
// last entry once it runs out.
type scriptedGenerator struct {
	mu      sync.Mutex
	script  []string
	prompts []string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	i := min(len(g.prompts), len(g.script)) - 1
	return g.script[i], nil
}

func (g *scriptedGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

// useGenerator swaps the model client factory for the duration of the test.
func useGenerator(t *testing.T, gen llmclient.Generator, err error) {
	t.Helper()
	original := newGenerator
	newGenerator = func(context.Context, config.LLMModelConfig, *zap.Logger) (llmclient.Generator, error) {
		if err != nil {
			return nil, err
		}
		return gen, nil
	}
	t.Cleanup(func() { newGenerator = original })
}
