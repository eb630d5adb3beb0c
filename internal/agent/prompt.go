// internal/agent/prompt.go
package agent

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/easel/internal/llmutil"
	"github.com/xkilldash9x/easel/internal/registry"
)

const nextStepCue = " What should I do next?"

// PromptBuilder renders the instruction preamble once per run and appends
// the query and transcript for each turn.
type PromptBuilder struct {
	preamble string
}

// NewPromptBuilder fixes the preamble for a catalog rendering. Extra rules
// are listed after the built-in ones.
func NewPromptBuilder(catalog string, extraRules []string) *PromptBuilder {
	var b strings.Builder
	b.WriteString("You are an agent controlling Paint via MCP tools.\n")
	b.WriteString("Available tools:\n")
	b.WriteString(catalog)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- Only call one function per response.\n")
	b.WriteString("- Parameters must match the tool's input schema.\n")
	fmt.Fprintf(&b, "- All X and Y coordinates must be within: X:%d-%d, Y:%d-%d.\n",
		registry.MinX, registry.MaxX, registry.MinY, registry.MaxY)
	for _, rule := range extraRules {
		if rule = strings.TrimSpace(rule); rule != "" {
			fmt.Fprintf(&b, "- %s\n", rule)
		}
	}
	b.WriteString("- Respond with EXACTLY ONE of these formats:\n")
	fmt.Fprintf(&b, "1. %s function_name|param1|param2|...\n", llmutil.FunctionCallLabel)
	fmt.Fprintf(&b, "2. %s done\n", llmutil.FinalAnswerLabel)
	return &PromptBuilder{preamble: b.String()}
}

// Preamble returns the fixed part of every prompt.
func (p *PromptBuilder) Preamble() string { return p.preamble }

// Build assembles the prompt for the next turn.
func (p *PromptBuilder) Build(query string, transcript []TurnRecord) string {
	return p.preamble + "\nQuery: " + CurrentQuery(query, transcript)
}

// CurrentQuery is the query with every prior turn folded in.
func CurrentQuery(query string, transcript []TurnRecord) string {
	if len(transcript) == 0 {
		return query
	}
	rendered := make([]string, len(transcript))
	for i, turn := range transcript {
		rendered[i] = turn.Render()
	}
	return query + "\n" + strings.Join(rendered, " ") + nextStepCue
}
