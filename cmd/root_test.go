// File: cmd/root_test.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"exit error", &ExitError{Code: 4, Err: errors.New("unknown tool")}, 4},
		{"wrapped exit error", fmt.Errorf("outer: %w", &ExitError{Code: 6}), 6},
		{"cancelled", context.Canceled, 0},
		{"plain error", errors.New("boom"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestExitError_Message(t *testing.T) {
	assert.Equal(t, "exit status 5", (&ExitError{Code: 5}).Error())
	inner := errors.New("model response not recognized")
	err := &ExitError{Code: 5, Err: inner}
	assert.Equal(t, inner.Error(), err.Error())
	assert.ErrorIs(t, err, inner)
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"run", "serve", "tools", "version"}, names)
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "easel "+Version+"\n", out)
}

func TestRootCommand_ConfigErrors(t *testing.T) {
	t.Run("missing explicit config file", func(t *testing.T) {
		_, err := executeCommand(t, "tools", "--inproc", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to initialize configuration")
		assert.Equal(t, 1, ExitCode(err))
	})

	t.Run("non-positive iteration limit", func(t *testing.T) {
		_, err := executeCommand(t, "run", "--inproc", "--max-iterations", "-1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_iterations must be a positive integer")
	})

	t.Run("malformed model timeout", func(t *testing.T) {
		_, err := executeCommand(t, "run", "--inproc", "--model-timeout", "soon")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid argument")
	})
}

func TestConfigFromContext_Missing(t *testing.T) {
	_, err := configFromContext(context.Background())
	assert.EqualError(t, err, "configuration not initialized")
}
