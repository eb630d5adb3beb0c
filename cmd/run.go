// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/easel/internal/agent"
	"github.com/xkilldash9x/easel/internal/config"
	"github.com/xkilldash9x/easel/internal/llmclient"
	"github.com/xkilldash9x/easel/internal/mcp"
	"github.com/xkilldash9x/easel/internal/observability"
)

// newGenerator builds the model client. Tests replace it with a stub.
var newGenerator = llmclient.NewClient

type runOptions struct {
	serverCmd  string
	transcript string
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	runCmd := &cobra.Command{
		Use:   "run [query]",
		Short: "Run the agent loop against the tool server until the task completes",
		Long: `Run prompts the model with the tool catalog and the task, executes the
single tool call it asks for, and feeds the result back until the model
answers or a stop condition is reached. The exit status reports why the
run stopped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.SetAgentQuery(args[0])
			}
			if fields := strings.Fields(opts.serverCmd); len(fields) > 0 {
				cfg.SetToolServerCommand(fields[0], fields[1:])
			}
			return runAgent(cmd.Context(), cfg, opts, cmd.OutOrStdout())
		},
	}

	runCmd.Flags().StringP("query", "q", "", "task for the agent (default is the configured query)")
	runCmd.Flags().IntP("max-iterations", "n", 0, fmt.Sprintf("maximum number of model turns (default %d)", config.DefaultMaxIterations))
	runCmd.Flags().Duration("model-timeout", 0, fmt.Sprintf("deadline for each model call (default %s)", config.DefaultModelTimeout))
	runCmd.Flags().Bool("inproc", false, "serve the canvas tools in-process instead of spawning a tool server")
	runCmd.Flags().StringVar(&opts.serverCmd, "server-cmd", "", "command line of the MCP tool server to spawn")
	runCmd.Flags().StringVarP(&opts.transcript, "transcript", "t", "", "write the run transcript to this file (.json or .yaml)")

	return runCmd
}

// runAgent wires the model, the tool session and the loop for one run.
func runAgent(ctx context.Context, cfg *config.Config, opts runOptions, out io.Writer) error {
	logger := observability.GetLogger()

	gen, err := newGenerator(ctx, cfg.LLM(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	invoker := llmclient.NewInvoker(gen, logger)

	var result *agent.RunResult
	err = withToolSession(ctx, cfg.ToolServer(), cfg.Canvas(), logger, func(ctx context.Context, client *mcp.Client) error {
		runner := agent.NewRunner(invoker, client, cfg.Agent(), logger)
		var runErr error
		result, runErr = runner.Run(ctx, cfg.Agent().Query)
		return runErr
	})
	if result == nil {
		return err
	}

	printResult(out, result)
	if opts.transcript != "" {
		if werr := agent.WriteTranscript(opts.transcript, result); werr != nil {
			logger.Error("Failed to write transcript.", zap.String("path", opts.transcript), zap.Error(werr))
			if err == nil {
				err = werr
			}
		} else {
			logger.Info("Transcript written.", zap.String("path", opts.transcript))
		}
	}
	if err != nil {
		return err
	}

	if result.Reason.Failed() {
		return &ExitError{Code: result.ExitCode(), Err: result.Err}
	}
	return nil
}

func printResult(out io.Writer, result *agent.RunResult) {
	fmt.Fprintf(out, "Run %s finished: %s after %d iteration(s) in %s\n",
		result.RunID, result.Reason, result.Iterations, result.Duration.Round(time.Millisecond))
	if result.Answer != "" {
		fmt.Fprintf(out, "Answer: %s\n", result.Answer)
	}
	if result.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", result.Error)
	}
}
