// Package openai implements the embedder on the OpenAI embeddings API.
package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = string(openai.SmallEmbedding3)

// model name -> vector size, per the OpenAI embeddings documentation.
var modelDimensions = map[string]int{
	string(openai.SmallEmbedding3): 1536,
	string(openai.LargeEmbedding3): 3072,
	string(openai.AdaEmbeddingV2):  1536,
}

// Embedder calls the OpenAI embeddings endpoint.
type Embedder struct {
	client *openai.Client
	model  string
}

// New creates an embedder with the given API key and model. An empty
// model falls back to DefaultModel.
func New(apiKey, model string) (*Embedder, error) {
	if apiKey == "" {
		return nil, errors.New("openai embedder requires an api key")
	}
	if model == "" {
		model = DefaultModel
	}
	return &Embedder{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Embed returns the embedding for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	rsp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(rsp.Data) == 0 || len(rsp.Data[0].Embedding) == 0 {
		return nil, errors.New("empty embedding response")
	}
	return rsp.Data[0].Embedding, nil
}

// Dimensions returns the vector size of the configured model, or 0 when
// the model is unknown.
func (e *Embedder) Dimensions() int {
	return modelDimensions[e.model]
}
