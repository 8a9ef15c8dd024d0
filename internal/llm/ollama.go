package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

// OllamaGenerator calls the Ollama /api/generate endpoint in raw mode, so the
// ChatML prompt is passed to the model untouched.
type OllamaGenerator struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// OllamaOption configures an OllamaGenerator.
type OllamaOption func(*OllamaGenerator)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) OllamaOption {
	return func(g *OllamaGenerator) { g.client = c }
}

// WithOllamaLogger sets a logger for request failures.
func WithOllamaLogger(l *zap.Logger) OllamaOption {
	return func(g *OllamaGenerator) { g.logger = l }
}

// NewOllamaGenerator returns a generator for model served at baseURL.
func NewOllamaGenerator(baseURL, model string, opts ...OllamaOption) *OllamaGenerator {
	g := &OllamaGenerator{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  http.DefaultClient,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Raw     bool          `json:"raw"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	NumPredict    int      `json:"num_predict,omitempty"`
	Temperature   float32  `json:"temperature"`
	RepeatPenalty float32  `json:"repeat_penalty,omitempty"`
	Stop          []string `json:"stop,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func (g *OllamaGenerator) post(ctx context.Context, prompt string, p Params, stream bool) (*http.Response, error) {
	stop := p.Stop
	if len(stop) == 0 {
		stop = []string{"<|im_end|>"}
	}
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  g.model,
		Prompt: prompt,
		Raw:    true,
		Stream: stream,
		Options: ollamaOptions{
			NumPredict:    p.MaxTokens,
			Temperature:   p.Temperature,
			RepeatPenalty: p.RepeatPenalty,
			Stop:          stop,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama generate: %v", models.ErrServiceUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%w: ollama generate: status %d: %s", models.ErrServiceUnavailable, resp.StatusCode, string(b))
	}
	return resp, nil
}

// Generate returns the full completion.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string, p Params) (string, error) {
	resp, err := g.post(ctx, prompt, p, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", models.ErrServiceUnavailable, err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("%w: ollama: %s", models.ErrServiceUnavailable, out.Error)
	}
	return out.Response, nil
}

// GenerateStream decodes the NDJSON stream and forwards each response piece.
func (g *OllamaGenerator) GenerateStream(ctx context.Context, prompt string, p Params) (<-chan Fragment, error) {
	resp, err := g.post(ctx, prompt, p, true)
	if err != nil {
		return nil, err
	}
	ch := make(chan Fragment)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		decoder := json.NewDecoder(resp.Body)
		for {
			var chunk ollamaGenerateResponse
			if err := decoder.Decode(&chunk); err == io.EOF {
				return
			} else if err != nil {
				if ctx.Err() == nil {
					g.logger.Warn("ollama stream decode failed", zap.Error(err))
					send(ctx, ch, Fragment{Err: fmt.Errorf("%w: decode stream: %v", models.ErrServiceUnavailable, err)})
				}
				return
			}
			if chunk.Error != "" {
				send(ctx, ch, Fragment{Err: fmt.Errorf("%w: ollama: %s", models.ErrServiceUnavailable, chunk.Error)})
				return
			}
			if chunk.Response != "" && !send(ctx, ch, Fragment{Text: chunk.Response}) {
				return
			}
			if chunk.Done {
				return
			}
		}
	}()
	return ch, nil
}
