package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hyperjump/kotae/internal/models"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIGenerator uses the completions API of any OpenAI-compatible server
// (vLLM, llama.cpp, LocalAI), which accepts a raw ChatML prompt.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator returns a generator. baseURL may be empty for api.openai.com.
func NewOpenAIGenerator(apiKey, baseURL, model string) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIGenerator{client: openai.NewClientWithConfig(cfg), model: model}
}

func (g *OpenAIGenerator) request(prompt string, p Params, stream bool) openai.CompletionRequest {
	stop := p.Stop
	if len(stop) == 0 {
		stop = []string{"<|im_end|>"}
	}
	// The completions API has no multiplicative repetition penalty; a penalty of
	// 1.2 becomes a frequency penalty of 0.2.
	var freq float32
	if p.RepeatPenalty > 1 {
		freq = p.RepeatPenalty - 1
		if freq > 2 {
			freq = 2
		}
	}
	return openai.CompletionRequest{
		Model:            g.model,
		Prompt:           prompt,
		MaxTokens:        p.MaxTokens,
		Temperature:      p.Temperature,
		FrequencyPenalty: freq,
		Stop:             stop,
		Stream:           stream,
	}
}

// Generate returns the full completion.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, p Params) (string, error) {
	resp, err := g.client.CreateCompletion(ctx, g.request(prompt, p, false))
	if err != nil {
		return "", fmt.Errorf("%w: openai completion: %v", models.ErrServiceUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Text, nil
}

// GenerateStream forwards streamed completion deltas.
func (g *OpenAIGenerator) GenerateStream(ctx context.Context, prompt string, p Params) (<-chan Fragment, error) {
	stream, err := g.client.CreateCompletionStream(ctx, g.request(prompt, p, true))
	if err != nil {
		return nil, fmt.Errorf("%w: openai completion stream: %v", models.ErrServiceUnavailable, err)
	}
	ch := make(chan Fragment)
	go func() {
		defer close(ch)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if ctx.Err() == nil {
					send(ctx, ch, Fragment{Err: fmt.Errorf("%w: openai stream: %v", models.ErrServiceUnavailable, err)})
				}
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Text == "" {
				continue
			}
			if !send(ctx, ch, Fragment{Text: resp.Choices[0].Text}) {
				return
			}
		}
	}()
	return ch, nil
}
