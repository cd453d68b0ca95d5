package embedding

import (
	"context"
	"errors"
	"net/http"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/veritas-labs/lorebase/internal/domain"
)

const (
	// DefaultModel is the OpenAI model used for generating embeddings
	DefaultModel = openai.SmallEmbedding3
	// DefaultDimensions is the expected dimension of embeddings from text-embedding-3-small
	DefaultDimensions = 1536
)

// ErrNoAPIKey is returned when the OpenAI API key is not set
var ErrNoAPIKey = errors.New("OPENAI_API_KEY environment variable not set")

// Provider generates embedding vectors for a batch of texts.
// Implementations must return one vector per input text, in input order,
// and must distinguish rate limiting from other failures via the domain
// error codes.
type Provider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// OpenAIProvider calls the OpenAI embeddings API.
type OpenAIProvider struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func NewOpenAIProvider(apiKey string, model openai.EmbeddingModel) *OpenAIProvider {
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// NewOpenAIProviderFromEnv creates a provider using the OPENAI_API_KEY environment variable
func NewOpenAIProviderFromEnv() (*OpenAIProvider, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewOpenAIProvider(apiKey, ""), nil
}

// EmbedTexts calls the OpenAI API to create embeddings for texts.
// A 429 from the provider maps to the rate-limited domain error so the
// service layer can retry it; everything else maps to a provider error.
func (p *OpenAIProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: p.model,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeRateLimited,
				"embedding provider rate limit exceeded", err)
		}
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeProvider,
			"embedding provider request failed", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, domain.NewDomainError(domain.ErrCodeProvider,
			"embedding provider returned wrong number of vectors")
	}

	// Data carries an Index per item; reassemble positionally rather than
	// trusting response order.
	out := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(out) {
			return nil, domain.NewDomainError(domain.ErrCodeProvider,
				"embedding provider returned out-of-range index")
		}
		out[item.Index] = item.Embedding
	}
	return out, nil
}
