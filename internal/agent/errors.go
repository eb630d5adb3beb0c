// internal/agent/errors.go
package agent

import (
	"errors"

	"github.com/xkilldash9x/easel/internal/registry"
)

// Terminal failures of a run. None of them is retried: the run stops at
// the first one. Coercion failures surface as *registry.CoercionError.
var (
	ErrModelTimeout       = errors.New("no response from model")
	ErrModelFault         = errors.New("model call failed")
	ErrUnparsableResponse = errors.New("model response not recognized")
	ErrUnknownTool        = errors.New("unknown tool")
	ErrToolDispatch       = errors.New("tool dispatch failed")
)

// TerminationReason records why a run stopped.
type TerminationReason string

const (
	ReasonNone                 TerminationReason = ""
	ReasonCompleted            TerminationReason = "completed"
	ReasonMaxIterationsReached TerminationReason = "maxIterationsReached"
	ReasonModelTimeout         TerminationReason = "modelTimeout"
	ReasonUnknownTool          TerminationReason = "unknownTool"
	ReasonUnparsableResponse   TerminationReason = "unparsableResponse"
	ReasonCoercionError        TerminationReason = "coercionError"
	ReasonDispatchFault        TerminationReason = "dispatchFault"
)

// ExitCodeStartupFailure is returned when a run never reaches the loop:
// bad configuration, an unreachable tool server or an empty catalog.
const ExitCodeStartupFailure = 1

var exitCodes = map[TerminationReason]int{
	ReasonCompleted:            0,
	ReasonMaxIterationsReached: 2,
	ReasonModelTimeout:         3,
	ReasonUnknownTool:          4,
	ReasonUnparsableResponse:   5,
	ReasonCoercionError:        6,
	ReasonDispatchFault:        7,
}

// ExitCode maps a termination reason to the process exit status.
func (r TerminationReason) ExitCode() int {
	if code, ok := exitCodes[r]; ok {
		return code
	}
	return ExitCodeStartupFailure
}

// Failed reports whether the reason is anything other than completion.
func (r TerminationReason) Failed() bool { return r != ReasonCompleted }

// ReasonFor classifies a terminal error. It returns ReasonNone for errors
// outside the taxonomy.
func ReasonFor(err error) TerminationReason {
	var cerr *registry.CoercionError
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrModelTimeout), errors.Is(err, ErrModelFault):
		return ReasonModelTimeout
	case errors.Is(err, ErrUnparsableResponse):
		return ReasonUnparsableResponse
	case errors.Is(err, ErrUnknownTool):
		return ReasonUnknownTool
	case errors.As(err, &cerr):
		return ReasonCoercionError
	case errors.Is(err, ErrToolDispatch):
		return ReasonDispatchFault
	default:
		return ReasonNone
	}
}
