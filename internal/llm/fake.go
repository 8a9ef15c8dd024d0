package llm

import (
	"context"
	"strings"
	"sync/atomic"
)

// FakeGenerator replays fixed fragments over an unbuffered channel. It counts
// calls and delivered fragments so tests can check that generation was skipped
// or stopped early.
type FakeGenerator struct {
	Fragments []string
	Err       error

	calls atomic.Int32
	sent  atomic.Int32
	done  chan struct{}
}

// NewFakeGenerator returns a fake that streams fragments in order.
func NewFakeGenerator(fragments ...string) *FakeGenerator {
	return &FakeGenerator{Fragments: fragments, done: make(chan struct{}, 1)}
}

// Calls returns how many times Generate or GenerateStream ran.
func (f *FakeGenerator) Calls() int { return int(f.calls.Load()) }

// Sent returns how many fragments the last stream delivered.
func (f *FakeGenerator) Sent() int { return int(f.sent.Load()) }

// Done is signalled when a stream producer exits.
func (f *FakeGenerator) Done() <-chan struct{} { return f.done }

// Generate returns all fragments concatenated.
func (f *FakeGenerator) Generate(ctx context.Context, prompt string, p Params) (string, error) {
	f.calls.Add(1)
	if f.Err != nil {
		return "", f.Err
	}
	return strings.Join(f.Fragments, ""), nil
}

// GenerateStream delivers fragments one by one until ctx is cancelled.
func (f *FakeGenerator) GenerateStream(ctx context.Context, prompt string, p Params) (<-chan Fragment, error) {
	f.calls.Add(1)
	f.sent.Store(0)
	if f.Err != nil {
		return nil, f.Err
	}
	ch := make(chan Fragment)
	go func() {
		defer func() {
			close(ch)
			select {
			case f.done <- struct{}{}:
			default:
			}
		}()
		for _, frag := range f.Fragments {
			if !send(ctx, ch, Fragment{Text: frag}) {
				return
			}
			f.sent.Add(1)
		}
	}()
	return ch, nil
}
