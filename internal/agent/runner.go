// internal/agent/runner.go
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/easel/internal/config"
	"github.com/xkilldash9x/easel/internal/llmclient"
	"github.com/xkilldash9x/easel/internal/llmutil"
	"github.com/xkilldash9x/easel/internal/registry"
)

// logTruncateLen caps model text and observations in log fields.
const logTruncateLen = 2048

// ModelInvoker is a bounded model call. *llmclient.Invoker satisfies it.
type ModelInvoker interface {
	Complete(ctx context.Context, prompt string, timeout time.Duration) llmclient.Completion
}

// ToolExecutor lists and runs tools. *mcp.Client satisfies it.
type ToolExecutor interface {
	registry.ToolLister
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// RunResult is everything a finished run produced.
type RunResult struct {
	RunID      string            `json:"run_id" yaml:"run_id"`
	Query      string            `json:"query" yaml:"query"`
	Reason     TerminationReason `json:"reason" yaml:"reason"`
	Error      string            `json:"error,omitempty" yaml:"error,omitempty"`
	Answer     string            `json:"answer,omitempty" yaml:"answer,omitempty"`
	Iterations int               `json:"iterations" yaml:"iterations"`
	Transcript []TurnRecord      `json:"transcript" yaml:"transcript"`
	StartedAt  time.Time         `json:"started_at" yaml:"started_at"`
	Duration   time.Duration     `json:"duration" yaml:"duration"`

	// Err is the terminal error behind Reason, nil on completion.
	Err error `json:"-" yaml:"-"`
}

// ExitCode is the process status for this result.
func (r *RunResult) ExitCode() int { return r.Reason.ExitCode() }

// Runner drives the request, parse, dispatch, observe loop.
type Runner struct {
	invoker  ModelInvoker
	executor ToolExecutor
	cfg      config.AgentConfig
	logger   *zap.Logger
}

// NewRunner wires a runner. A zero MaxIterations falls back to the default.
func NewRunner(invoker ModelInvoker, executor ToolExecutor, cfg config.AgentConfig, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = config.DefaultMaxIterations
	}
	return &Runner{
		invoker:  invoker,
		executor: executor,
		cfg:      cfg,
		logger:   logger.Named("runner"),
	}
}

// Run executes one task. An error is returned only when the loop never
// started (the catalog could not be fetched) or ctx was cancelled, whether
// between turns or during a model or tool call; every other outcome is described by the result's Reason.
func (r *Runner) Run(ctx context.Context, query string) (*RunResult, error) {
	if query == "" {
		query = r.cfg.Query
	}
	result := &RunResult{
		RunID:     uuid.New().String(),
		Query:     query,
		StartedAt: time.Now(),
	}
	logger := r.logger.With(zap.String("run_id", result.RunID))

	catalog, err := registry.Fetch(ctx, r.executor, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tool catalog: %w", err)
	}
	prompts := NewPromptBuilder(catalog.Render(), r.cfg.ExtraRules)
	logger.Info("Agent run starting.",
		zap.Int("tools", catalog.Len()),
		zap.Int("max_iterations", r.cfg.MaxIterations),
		zap.Duration("model_timeout", r.cfg.ModelTimeout))

	state := newLoopState()
	defer func() {
		result.Iterations = state.Iteration
		result.Transcript = state.Transcript
		result.Reason = state.Reason
		result.Err = state.Err
		if state.Err != nil {
			result.Error = state.Err.Error()
		}
		result.Duration = time.Since(result.StartedAt)
	}()

	for !state.Terminated() {
		if err := state.checkInvariant(); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			logger.Warn("Run interrupted.", zap.Int("iterations", state.Iteration), zap.Error(err))
			return result, fmt.Errorf("run interrupted: %w", err)
		}
		if state.Iteration >= r.cfg.MaxIterations {
			logger.Warn("Iteration limit reached.", zap.Int("iterations", state.Iteration))
			state.terminate(ReasonMaxIterationsReached, nil)
			break
		}

		answer := r.step(ctx, logger, prompts, catalog, query, state)
		if answer != nil {
			result.Answer = *answer
		}
	}

	logger.Info("Agent run finished.",
		zap.String("reason", string(state.Reason)),
		zap.Int("iterations", state.Iteration),
		zap.Error(state.Err))
	return result, nil
}

// step runs one iteration. It either records a turn or terminates the
// state. The final answer text is returned on completion.
func (r *Runner) step(ctx context.Context, logger *zap.Logger, prompts *PromptBuilder, catalog *registry.Catalog, query string, state *LoopState) *string {
	turn := state.Iteration + 1
	logger = logger.With(zap.Int("iteration", turn))
	logger.Info(fmt.Sprintf("--- Iteration %d ---", turn))

	current := CurrentQuery(query, state.Transcript)
	logger.Debug("Query context.", zap.String("query", llmutil.Truncate(current, logTruncateLen)))

	state.State = StateAwaitingModel
	completion := r.invoker.Complete(ctx, prompts.Build(query, state.Transcript), r.cfg.ModelTimeout)
	// Cancellation is not the model's fault; Run reports it on the next pass.
	if ctx.Err() != nil {
		return nil
	}
	if !completion.OK {
		sentinel := ErrModelTimeout
		if completion.Cause == llmclient.CauseFault {
			sentinel = ErrModelFault
		}
		err := fmt.Errorf("%w (cause: %s)", sentinel, completion.Cause)
		if completion.Err != nil {
			err = fmt.Errorf("%w (cause: %s): %v", sentinel, completion.Cause, completion.Err)
		}
		logger.Error("No response from LLM, stopping.", zap.String("cause", string(completion.Cause)))
		state.terminate(ReasonModelTimeout, err)
		return nil
	}
	logger.Info("LLM response received.", zap.String("response", llmutil.Truncate(completion.Text, logTruncateLen)))

	action := llmutil.ParseAction(completion.Text)
	switch action.Kind {
	case llmutil.ActionComplete:
		logger.Info("=== Final Answer Received ===", zap.String("answer", action.Answer))
		state.terminate(ReasonCompleted, nil)
		return &action.Answer

	case llmutil.ActionUnparsable:
		logger.Error("LLM response not recognized. Stopping.", zap.String("response", llmutil.Truncate(action.RawText, logTruncateLen)))
		state.terminate(ReasonUnparsableResponse, fmt.Errorf("%w: %q", ErrUnparsableResponse, llmutil.Truncate(action.RawText, 200)))
		return nil
	}

	tool, ok := catalog.Lookup(action.ToolName)
	if !ok {
		logger.Error("Unknown tool.", zap.String("tool", action.ToolName))
		state.terminate(ReasonUnknownTool, fmt.Errorf("%w: %s", ErrUnknownTool, action.ToolName))
		return nil
	}

	if len(action.RawArgs) != len(tool.Parameters) {
		logger.Warn("Argument count does not match the tool's parameters.",
			zap.String("tool", tool.Name),
			zap.Int("given", len(action.RawArgs)),
			zap.Int("declared", len(tool.Parameters)))
	}

	args, err := registry.Coerce(tool, action.RawArgs)
	if err != nil {
		logger.Error("Argument coercion failed.", zap.Error(err))
		state.terminate(ReasonCoercionError, err)
		return nil
	}

	logger.Info("Calling MCP tool.", zap.String("tool", tool.Name), zap.Stringer("arguments", args))
	state.State = StateAwaitingTool
	observation, err := r.executor.CallTool(ctx, tool.Name, args.Map())
	if err != nil && ctx.Err() != nil {
		return nil
	}
	if err != nil {
		logger.Error("Tool dispatch failed.", zap.String("tool", tool.Name), zap.Error(err))
		state.terminate(ReasonDispatchFault, fmt.Errorf("%w: %s: %v", ErrToolDispatch, tool.Name, err))
		return nil
	}

	state.record(tool.Name, args, observation)
	logger.Info("Tool result.", zap.String("observation", llmutil.Truncate(observation, logTruncateLen)))
	return nil
}
