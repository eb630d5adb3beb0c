// internal/llmutil/parser.go
package llmutil

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Response labels. Matching is case-sensitive and anchored at the start of
// the normalized completion.
const (
	FunctionCallLabel = "FUNCTION_CALL:"
	FinalAnswerLabel  = "FINAL_ANSWER:"
	// ArgDelimiter separates the tool name and each raw argument.
	ArgDelimiter = "|"
)

// ordinalRegex matches a leading "3. " style prefix some models add to
// their own output.
var ordinalRegex = regexp.MustCompile(`^\d+\.\s*`)

// ActionKind tags the variants of Action.
type ActionKind int

const (
	ActionUnparsable ActionKind = iota // completion matched neither label
	ActionInvoke                       // call a tool
	ActionComplete                     // the model is done
)

func (k ActionKind) String() string {
	switch k {
	case ActionInvoke:
		return "invoke"
	case ActionComplete:
		return "complete"
	default:
		return "unparsable"
	}
}

// Action is the structured form of one model completion. Only the fields
// relevant to Kind are populated.
type Action struct {
	Kind ActionKind
	// ToolName and RawArgs are set for ActionInvoke. RawArgs keeps the order
	// the model wrote them in.
	ToolName string
	RawArgs  []string
	// Answer is the text after the final-answer label, for ActionComplete.
	Answer string
	// RawText is the normalized completion, kept for every kind.
	RawText string
}

// Normalize trims the completion and drops one leading ordinal prefix.
func Normalize(completion string) string {
	text := strings.TrimSpace(completion)
	text = ordinalRegex.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// ParseAction turns a raw completion into exactly one Action. Accepted
// forms, after normalization:
//
//	FUNCTION_CALL: name|arg1|arg2
//	FINAL_ANSWER: anything
//
// Everything else is ActionUnparsable.
func ParseAction(completion string) Action {
	text := Normalize(completion)

	switch {
	case strings.HasPrefix(text, FunctionCallLabel):
		_, info, _ := strings.Cut(text, FunctionCallLabel)
		parts := strings.Split(strings.TrimSpace(info), ArgDelimiter)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return Action{
			Kind:     ActionInvoke,
			ToolName: parts[0],
			RawArgs:  parts[1:],
			RawText:  text,
		}

	case strings.HasPrefix(text, FinalAnswerLabel):
		return Action{
			Kind:    ActionComplete,
			Answer:  strings.TrimSpace(strings.TrimPrefix(text, FinalAnswerLabel)),
			RawText: text,
		}

	default:
		return Action{Kind: ActionUnparsable, RawText: text}
	}
}

// Truncate shortens s to at most maxLen bytes for logging, cutting on a
// rune boundary and marking the cut with "...".
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
