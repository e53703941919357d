package index

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
)

// OpenAIEmbedder embeds text through the OpenAI embeddings API. Requires
// OPENAI_API_KEY in the environment, picked up by the client.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// NewOpenAIEmbedder builds an embedder for the given model name.
func NewOpenAIEmbedder(model string) *OpenAIEmbedder {
	client := openai.NewClient()
	return &OpenAIEmbedder{client: &client, model: model}
}

// Embed calls the embeddings endpoint and normalizes the result so cosine
// scoring reduces to a dot product, same as the offline embedder.
func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embed %q: %w", text, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embed %q: empty response", text)
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	normalize(vec)
	return vec, nil
}
