// File: cmd/run_test.go
package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/easel/internal/agent"
)

func TestRunCommand_InProcessCompletes(t *testing.T) {
	gen := &scriptedGenerator{script: []string{
		"FUNCTION_CALL: open_paint",
		"FUNCTION_CALL: draw_rectangle|300|350|1200|700",
		"2. FUNCTION_CALL: add_text_in_paint|School of AI|700|500",
		"FINAL_ANSWER: done",
	}}
	useGenerator(t, gen, nil)
	transcript := filepath.Join(t.TempDir(), "run.json")

	out, err := executeCommand(t, "run", "--inproc", "-q", "Draw a labelled box", "--transcript", transcript)
	require.NoError(t, err)

	assert.Contains(t, out, "finished: completed after 3 iteration(s)")
	assert.Contains(t, out, "Answer: done")
	assert.Equal(t, 4, gen.calls(), "three tool turns plus the final answer")

	data, err := os.ReadFile(transcript)
	require.NoError(t, err)
	var got struct {
		Query      string `json:"query"`
		Reason     string `json:"reason"`
		Iterations int    `json:"iterations"`
		Transcript []struct {
			Index       int            `json:"index"`
			Tool        string         `json:"tool"`
			Arguments   map[string]any `json:"arguments"`
			Observation string         `json:"observation"`
		} `json:"transcript"`
	}
	require.NoError(t, jsoniter.Unmarshal(data, &got))
	assert.Equal(t, "Draw a labelled box", got.Query)
	assert.Equal(t, "completed", got.Reason)
	require.Len(t, got.Transcript, 3)
	assert.Equal(t, "open_paint", got.Transcript[0].Tool)
	assert.Equal(t, "Paint opened successfully and maximized.", got.Transcript[0].Observation)
	assert.Equal(t, "Rectangle drawn (300,350) -> (1200,700)", got.Transcript[1].Observation)
	assert.Equal(t, "Text 'School of AI' added.", got.Transcript[2].Observation)
}

func TestRunCommand_PositionalQueryAndYAMLTranscript(t *testing.T) {
	gen := &scriptedGenerator{script: []string{"FINAL_ANSWER: nothing to do"}}
	useGenerator(t, gen, nil)
	transcript := filepath.Join(t.TempDir(), "run.yaml")

	_, err := executeCommand(t, "run", "--inproc", "--transcript", transcript, "Say hello")
	require.NoError(t, err)

	require.Equal(t, 1, gen.calls())
	assert.Contains(t, gen.prompts[0], "\nQuery: Say hello")

	data, err := os.ReadFile(transcript)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, "completed", got["reason"])
	assert.Equal(t, "nothing to do", got["answer"])
}

func TestRunCommand_FailureExitCodes(t *testing.T) {
	tests := []struct {
		name   string
		script []string
		args   []string
		reason agent.TerminationReason
	}{
		{
			name:   "unknown tool",
			script: []string{"FUNCTION_CALL: erase_everything|now"},
			reason: agent.ReasonUnknownTool,
		},
		{
			name:   "unparsable response",
			script: []string{"I think I should open paint first."},
			reason: agent.ReasonUnparsableResponse,
		},
		{
			name:   "coercion failure",
			script: []string{"FUNCTION_CALL: open_paint", "FUNCTION_CALL: draw_rectangle|left|300|600|700"},
			reason: agent.ReasonCoercionError,
		},
		{
			name:   "iteration limit",
			script: []string{"FUNCTION_CALL: open_paint"},
			args:   []string{"--max-iterations", "2"},
			reason: agent.ReasonMaxIterationsReached,
		},
		{
			name:   "empty completion",
			script: []string{"   "},
			reason: agent.ReasonModelTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useGenerator(t, &scriptedGenerator{script: tt.script}, nil)

			args := append([]string{"run", "--inproc", "-q", "task"}, tt.args...)
			out, err := executeCommand(t, args...)
			require.Error(t, err)

			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, tt.reason.ExitCode(), exitErr.Code)
			assert.Equal(t, tt.reason.ExitCode(), ExitCode(err))
			assert.Contains(t, out, "finished: "+string(tt.reason))
		})
	}
}

func TestRunCommand_GeneratorStartupFailure(t *testing.T) {
	useGenerator(t, nil, errors.New("Gemini API key is required (set GEMINI_API_KEY)"))

	_, err := executeCommand(t, "run", "--inproc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize LLM client")
	assert.Equal(t, agent.ExitCodeStartupFailure, ExitCode(err))
}

func TestRunCommand_MissingToolServer(t *testing.T) {
	useGenerator(t, &scriptedGenerator{script: []string{"FINAL_ANSWER: done"}}, nil)

	_, err := executeCommand(t, "run", "--server-cmd", "easel-no-such-server --stdio")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `tool server "easel-no-such-server" not found`)
	assert.Equal(t, 1, ExitCode(err))
}
