// Package classify decides whether planner output is an imminent request to
// execute tools. A reasoning model gives a yes/no verdict; the verdict text
// is then interpreted by a deterministic rule, so two identical answers
// always classify the same way.
package classify

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ansibot/ansibot/internal/prompts"
	"github.com/ansibot/ansibot/internal/provider"
)

// Classifier asks the reasoning model for an execution verdict.
type Classifier struct {
	reasoner provider.LLMProvider
	model    string
}

// New creates a classifier backed by the given reasoning provider.
func New(reasoner provider.LLMProvider, model string) *Classifier {
	if model == "" {
		model = reasoner.DefaultModel()
	}
	return &Classifier{reasoner: reasoner, model: model}
}

// ShouldExecute reports whether assistantText proposes tool calls that should
// run now. Text with no bracketed list short-circuits to false without a
// model call. A model failure is surfaced; the caller treats it as "do not
// execute".
func (c *Classifier) ShouldExecute(ctx context.Context, assistantText string, toolNames []string) (bool, error) {
	if !strings.Contains(assistantText, "[") {
		return false, nil
	}

	req := &provider.ChatRequest{
		Model: c.model,
		Messages: []provider.Message{
			{Role: "user", Content: prompts.Decision(assistantText, strings.Join(toolNames, ", "))},
		},
		Temperature: 0,
	}
	resp, err := c.reasoner.Chat(ctx, req)
	if err != nil {
		return false, fmt.Errorf("execution classifier: %w", err)
	}
	return DecisionFromText(resp.Content), nil
}

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

var negationMarkers = map[string]struct{}{
	"no":     {},
	"not":    {},
	"don't":  {},
	"dont":   {},
	"never":  {},
	"cannot": {},
	"can't":  {},
	"won't":  {},
	"wont":   {},
}

var affirmativeMarkers = map[string]struct{}{
	"yes": {},
	"y":   {},
}

// DecisionFromText interprets a reasoning-model verdict deterministically.
// Thinking blocks are stripped first. The first decisive token wins: a
// negation marker seen before any affirmative forces false. Anything
// ambiguous is false; not executing is always the safe reading.
func DecisionFromText(text string) bool {
	cleaned := thinkBlock.ReplaceAllString(text, "")
	cleaned = strings.ToLower(cleaned)

	for _, tok := range strings.FieldsFunc(cleaned, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r == '\'')
	}) {
		if _, ok := negationMarkers[tok]; ok {
			return false
		}
		if _, ok := affirmativeMarkers[tok]; ok {
			return true
		}
	}
	return false
}
