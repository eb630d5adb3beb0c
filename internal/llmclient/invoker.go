// internal/llmclient/invoker.go
package llmclient

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds a model call when the caller passes no timeout.
const DefaultTimeout = 15 * time.Second

// Generator produces one completion for one prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Cause says why a Completion carries no text.
type Cause string

const (
	CauseNone    Cause = ""
	CauseTimeout Cause = "timeout"
	CauseFault   Cause = "fault"
	CauseEmpty   Cause = "empty"
)

// Completion is the outcome of one bounded model call. When OK is false
// the loop treats it as no response; Cause and Err are for logging.
type Completion struct {
	Text    string
	OK      bool
	Cause   Cause
	Err     error
	Elapsed time.Duration
}

// Invoker runs a Generator under a per-call deadline.
type Invoker struct {
	gen    Generator
	logger *zap.Logger
}

// NewInvoker wraps gen.
func NewInvoker(gen Generator, logger *zap.Logger) *Invoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invoker{gen: gen, logger: logger.Named("invoker")}
}

type generation struct {
	text string
	err  error
}

// Complete sends prompt and waits at most timeout for the text. A timeout
// of zero or less means DefaultTimeout. On deadline the call's context is
// cancelled and its result, if any, is discarded.
func (i *Invoker) Complete(ctx context.Context, prompt string, timeout time.Duration) Completion {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan generation, 1)
	go func() {
		text, err := i.gen.Generate(callCtx, prompt)
		done <- generation{text: text, err: err}
	}()

	var out Completion
	select {
	case g := <-done:
		out = classify(g)
	case <-callCtx.Done():
		out = Completion{Cause: CauseFault, Err: callCtx.Err()}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			out.Cause = CauseTimeout
		}
	}
	out.Elapsed = time.Since(start)

	if !out.OK {
		i.logger.Warn("No usable completion from model.",
			zap.String("cause", string(out.Cause)),
			zap.Duration("timeout", timeout),
			zap.Duration("elapsed", out.Elapsed),
			zap.Error(out.Err))
	}
	return out
}

func classify(g generation) Completion {
	if g.err != nil {
		if errors.Is(g.err, context.DeadlineExceeded) {
			return Completion{Cause: CauseTimeout, Err: g.err}
		}
		return Completion{Cause: CauseFault, Err: g.err}
	}
	text := strings.TrimSpace(g.text)
	if text == "" {
		return Completion{Cause: CauseEmpty}
	}
	return Completion{Text: text, OK: true}
}
