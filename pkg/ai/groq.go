package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/johnquangdev/meeting-memory/pkg/config"
)

// LanguageModelClient turns a question plus retrieved context into a
// final answer. The answer is streamed token by token so the UI can
// render it incrementally.
type LanguageModelClient interface {
	// Stream sends the prompt and context to the model and invokes emit
	// for each text delta. Returns after the stream finishes or fails.
	Stream(ctx context.Context, prompt string, contextText string, emit func(token string)) error

	// GenerateMeetingSummary produces a rolling summary with key points
	// for the chunk texts seen so far.
	GenerateMeetingSummary(ctx context.Context, transcript string) (summary string, keyPoints []string, err error)
}

// GroqClient is a minimal client for Groq API calls used for summaries
// and answer streaming
type GroqClient struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewGroqClient creates a Groq client using values from the provided config.
// Pass a nil config to fall back to environment variables.
func NewGroqClient(cfg *config.GroqConfig) *GroqClient {
	var apiKey string
	if cfg != nil {
		apiKey = cfg.APIKey
	}
	if apiKey == "" {
		apiKey = os.Getenv("GROQ_API_KEY")
	}

	var base string
	if cfg != nil && cfg.BaseURL != "" {
		base = cfg.BaseURL
	} else {
		base = os.Getenv("GROQ_API_URL")
		if base == "" {
			base = "https://api.groq.com"
		}
	}

	model := "llama-3.1-70b-versatile"
	if cfg != nil && cfg.Model != "" {
		model = cfg.Model
	}

	return &GroqClient{
		apiKey:  apiKey,
		baseURL: base,
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// ChatRequest is the shape for chat completion requests
type ChatRequest struct {
	Model       string      `json:"model,omitempty"`
	Messages    interface{} `json:"messages,omitempty"`
	Temperature float64     `json:"temperature,omitempty"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
	Stream      bool        `json:"stream,omitempty"`
}

// ChatResponse is a minimal response shape
type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// streamChunk is one SSE data line of a streaming completion
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// summaryPayload is the JSON shape requested from the model for summaries
type summaryPayload struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
}

func (g *GroqClient) endpoint() string {
	return g.baseURL + "/openai/v1/chat/completions"
}

func (g *GroqClient) post(ctx context.Context, reqBody ChatRequest) (*http.Response, error) {
	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.endpoint(), bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("groq returned status %d", resp.StatusCode)
	}
	return resp, nil
}

// GenerateMeetingSummary asks the model for a rolling meeting summary
// plus key points, returned as JSON
func (g *GroqClient) GenerateMeetingSummary(ctx context.Context, transcript string) (string, []string, error) {
	prompt := fmt.Sprintf(
		"Summarize the meeting transcript below. Return JSON with fields "+
			"\"summary\" (2-4 sentences) and \"key_points\" (short bullet strings):\n\n%s",
		transcript,
	)

	resp, err := g.post(ctx, ChatRequest{
		Model:       g.model,
		Messages:    []map[string]string{{"role": "user", "content": prompt}},
		Temperature: 0.3,
		MaxTokens:   2000,
	})
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	var cr ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", nil, err
	}
	if len(cr.Choices) == 0 {
		return "", nil, fmt.Errorf("empty response from groq")
	}

	content := cr.Choices[0].Message.Content
	var payload summaryPayload
	if err := json.Unmarshal([]byte(extractJSON(content)), &payload); err != nil || payload.Summary == "" {
		// Model ignored the JSON instruction; use the raw text as the summary.
		return strings.TrimSpace(content), nil, nil
	}
	return payload.Summary, payload.KeyPoints, nil
}

// Stream streams an answer for the question conditioned on contextText
func (g *GroqClient) Stream(ctx context.Context, prompt string, contextText string, emit func(token string)) error {
	messages := []map[string]string{
		{
			"role": "system",
			"content": "You are a meeting assistant. Answer the user's question using only " +
				"the meeting context provided. If the context does not contain the answer, say so.",
		},
		{"role": "user", "content": fmt.Sprintf("Meeting context:\n%s\n\nQuestion: %s", contextText, prompt)},
	}

	resp, err := g.post(ctx, ChatRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: 0.2,
		MaxTokens:   2000,
		Stream:      true,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				emit(choice.Delta.Content)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("groq stream read failed: %w", err)
	}
	return nil
}

// extractJSON pulls the first JSON object out of model output that may be
// wrapped in markdown fences or prose
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}

var _ LanguageModelClient = (*GroqClient)(nil)
