// internal/agent/state.go
package agent

import (
	"fmt"

	"github.com/xkilldash9x/easel/internal/registry"
)

// State is the position of the loop within one iteration.
type State string

const (
	StateRunning       State = "running"
	StateAwaitingModel State = "awaiting_model"
	StateAwaitingTool  State = "awaiting_tool"
	StateTerminated    State = "terminated"
)

// TurnRecord is one completed dispatch. Records are appended to the
// transcript and never modified.
type TurnRecord struct {
	// Index is 1-based.
	Index       int                `json:"index" yaml:"index"`
	ToolName    string             `json:"tool" yaml:"tool"`
	Arguments   registry.Arguments `json:"arguments" yaml:"arguments"`
	Observation string             `json:"observation" yaml:"observation"`
}

// Render formats the record the way it is folded into later prompts.
func (r TurnRecord) Render() string {
	return fmt.Sprintf("Iteration %d: called %s(%s), result=%s", r.Index, r.ToolName, r.Arguments, r.Observation)
}

// LoopState is owned by a single Run call and threaded through each step.
type LoopState struct {
	Iteration       int
	Transcript      []TurnRecord
	LastObservation *string
	State           State
	Reason          TerminationReason
	Err             error
}

func newLoopState() *LoopState {
	return &LoopState{State: StateRunning}
}

// Terminated reports whether the run has stopped.
func (s *LoopState) Terminated() bool { return s.State == StateTerminated }

func (s *LoopState) terminate(reason TerminationReason, err error) {
	s.State = StateTerminated
	s.Reason = reason
	s.Err = err
}

// record appends the turn and advances the iteration counter together so
// the transcript length always equals the iteration at the loop head.
func (s *LoopState) record(toolName string, args registry.Arguments, observation string) TurnRecord {
	turn := TurnRecord{
		Index:       s.Iteration + 1,
		ToolName:    toolName,
		Arguments:   args,
		Observation: observation,
	}
	s.Transcript = append(s.Transcript, turn)
	obs := observation
	s.LastObservation = &obs
	s.Iteration++
	s.State = StateRunning
	return turn
}

func (s *LoopState) checkInvariant() error {
	if len(s.Transcript) != s.Iteration {
		return fmt.Errorf("loop state corrupted: %d turns recorded at iteration %d", len(s.Transcript), s.Iteration)
	}
	return nil
}
