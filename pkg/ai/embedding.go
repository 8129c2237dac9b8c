package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/johnquangdev/meeting-memory/pkg/config"
)

// EmbeddingClient produces fixed-dimension vector embeddings for text.
// Implementations must be safe for concurrent use; the queue worker and
// the query path call Embed from independent goroutines.
type EmbeddingClient interface {
	// Embed returns the embedding vector for text. The returned vector
	// always has the deployment's configured dimension; a backend response
	// with any other length is reported as a DimensionError.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the vector length this client is configured for.
	Dimension() int
}

// DimensionError reports an embedding response whose vector length does
// not match the configured dimension. It is non-retryable: the backend
// returned data, just the wrong shape, so retrying cannot help.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}

// OpenAIEmbeddingClient is a minimal client for OpenAI-compatible
// embeddings endpoints (OpenAI, Azure, local proxies)
type OpenAIEmbeddingClient struct {
	apiKey    string
	baseURL   string
	model     string
	dimension int
	client    *http.Client
}

// NewOpenAIEmbeddingClient creates an embedding client using values from
// the provided config. Pass a nil config to fall back to environment variables.
func NewOpenAIEmbeddingClient(cfg *config.EmbeddingConfig) *OpenAIEmbeddingClient {
	var apiKey string
	if cfg != nil {
		apiKey = cfg.APIKey
	}
	if apiKey == "" {
		apiKey = os.Getenv("EMBEDDING_API_KEY")
	}

	base := "https://api.openai.com/v1"
	model := "text-embedding-3-small"
	dimension := 1536
	timeout := 30 * time.Second
	if cfg != nil {
		if cfg.BaseURL != "" {
			base = cfg.BaseURL
		}
		if cfg.Model != "" {
			model = cfg.Model
		}
		if cfg.Dimension > 0 {
			dimension = cfg.Dimension
		}
		if cfg.Timeout > 0 {
			timeout = cfg.Timeout
		}
	}

	return &OpenAIEmbeddingClient{
		apiKey:    apiKey,
		baseURL:   base,
		model:     model,
		dimension: dimension,
		client:    &http.Client{Timeout: timeout},
	}
}

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Dimension returns the configured vector length
func (c *OpenAIEmbeddingClient) Dimension() int {
	return c.dimension
}

// Embed calls the embeddings endpoint and validates the returned vector shape
func (c *OpenAIEmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("embedding input is empty")
	}

	b, err := json.Marshal(embeddingRequest{Input: text, Model: c.model})
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding response: %w", err)
	}

	var er embeddingResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}

	if er.Error != nil {
		return nil, fmt.Errorf("embedding backend error (%s): %s", er.Error.Type, er.Error.Message)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("embedding backend returned status %d", resp.StatusCode)
	}
	if len(er.Data) == 0 {
		return nil, fmt.Errorf("empty response from embedding backend")
	}

	vector := er.Data[0].Embedding
	if len(vector) != c.dimension {
		return nil, &DimensionError{Want: c.dimension, Got: len(vector)}
	}
	return vector, nil
}

var _ EmbeddingClient = (*OpenAIEmbeddingClient)(nil)
