// Package anthropic implements the rolling summarizer on the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nowwclub/companion-memory/memory"
)

// DefaultModel is used when no model is configured.
const DefaultModel = string(anthropic.ModelClaude3_5HaikuLatest)

const systemPrompt = "You maintain a running summary of a conversation between a human and " +
	"their companion. Fold the new messages into the existing summary. Keep facts, " +
	"preferences, plans and emotional context. Reply with the updated summary only."

// Summarizer folds aged-out turns into the rolling summary via Claude.
type Summarizer struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// New creates a summarizer with the given API key and model. An empty
// model falls back to DefaultModel.
func New(apiKey, model string) (*Summarizer, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic summarizer requires an api key")
	}
	if model == "" {
		model = DefaultModel
	}
	client := anthropic.NewClient(anthropicopt.WithAPIKey(apiKey))
	return &Summarizer{client: &client, model: model, maxTokens: 512}, nil
}

// Summarize returns the prior summary updated with the given turns.
func (s *Summarizer) Summarize(ctx context.Context, priorSummary string, turns []memory.Turn) (string, error) {
	if len(turns) == 0 {
		return priorSummary, nil
	}

	var b strings.Builder
	if priorSummary != "" {
		b.WriteString("Current summary:\n")
		b.WriteString(priorSummary)
		b.WriteString("\n\n")
	}
	b.WriteString("New messages:\n")
	for _, t := range turns {
		label := "Human"
		if t.Role == memory.RoleAgent {
			label = "Agent"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, t.Text)
	}

	resp, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: s.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(b.String())),
		},
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude api error: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	summary := strings.TrimSpace(out.String())
	if summary == "" {
		return "", errors.New("empty summary response")
	}
	return summary, nil
}
