// Package openai implements the rolling summarizer on the OpenAI chat
// completions API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nowwclub/companion-memory/memory"
)

// DefaultModel is used when no model is configured.
const DefaultModel = openai.GPT4oMini

const systemPrompt = "You maintain a running summary of a conversation between a human and " +
	"their companion. Fold the new messages into the existing summary. Keep facts, " +
	"preferences, plans and emotional context. Reply with the updated summary only."

// Summarizer folds aged-out turns into the rolling summary.
type Summarizer struct {
	client *openai.Client
	model  string
}

// New creates a summarizer with the given API key and model. An empty
// model falls back to DefaultModel.
func New(apiKey, model string) (*Summarizer, error) {
	if apiKey == "" {
		return nil, errors.New("openai summarizer requires an api key")
	}
	if model == "" {
		model = DefaultModel
	}
	return &Summarizer{client: openai.NewClient(apiKey), model: model}, nil
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

	rsp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: b.String()},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(rsp.Choices) == 0 || len(rsp.Choices[0].Message.Content) == 0 {
		return "", errors.New("empty summary response")
	}
	return strings.TrimSpace(rsp.Choices[0].Message.Content), nil
}
