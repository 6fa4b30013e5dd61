package cli

import (
	"os"

	"github.com/nowwclub/companion-memory/memory"
	mockembedder "github.com/nowwclub/companion-memory/memory/embedder/mock"
	openaiembedder "github.com/nowwclub/companion-memory/memory/embedder/openai"
	anthropicsummarizer "github.com/nowwclub/companion-memory/memory/summarizer/anthropic"
	openaisummarizer "github.com/nowwclub/companion-memory/memory/summarizer/openai"
)

func buildEmbedder() (memory.Embedder, error) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return openaiembedder.New(key, os.Getenv("OPENAI_EMBEDDING_MODEL"))
	}
	return mockembedder.New(), nil
}

// buildSummarizer prefers Anthropic, then OpenAI. Returning nil is fine:
// the manager then keeps turns without folding a rolling summary.
func buildSummarizer() memory.Summarizer {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		if s, err := anthropicsummarizer.New(key, os.Getenv("ANTHROPIC_MODEL")); err == nil {
			return s
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if s, err := openaisummarizer.New(key, os.Getenv("OPENAI_MODEL")); err == nil {
			return s
		}
	}
	return nil
}
