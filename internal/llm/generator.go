// Package llm provides text generation clients that stream fragments over a channel.
package llm

import "context"

// Params are decoding parameters. Backends ignore those they do not support.
type Params struct {
	MaxTokens     int
	Temperature   float32
	RepeatPenalty float32
	NoRepeatNgram int
	Stop          []string
}

// DefaultParams favour reproducible output with repetition suppression enabled.
func DefaultParams() Params {
	return Params{
		MaxTokens:     256,
		Temperature:   0,
		RepeatPenalty: 1.2,
		NoRepeatNgram: 3,
	}
}

// Fragment is one piece of streamed output, or the error that ended the stream.
type Fragment struct {
	Text string
	Err  error
}

// Generator produces text for a fully rendered prompt.
//
// GenerateStream starts a producer goroutine and returns its channel. The
// producer closes the channel when generation ends and stops early when ctx is
// cancelled, so consumers that quit must cancel ctx.
type Generator interface {
	Generate(ctx context.Context, prompt string, p Params) (string, error)
	GenerateStream(ctx context.Context, prompt string, p Params) (<-chan Fragment, error)
}

// send delivers f unless ctx is done first.
func send(ctx context.Context, ch chan<- Fragment, f Fragment) bool {
	select {
	case ch <- f:
		return true
	case <-ctx.Done():
		return false
	}
}
