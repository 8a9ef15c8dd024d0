package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/prompt"
	"github.com/hyperjump/kotae/internal/sanitize"
	"go.uber.org/zap"
)

// Defaults for the punctuation-density check.
const (
	DefaultPunctWindow = 50
	DefaultPunctRatio  = 0.3
)

// minLinePunctRunes is the shortest line judged by punctuation density alone.
const minLinePunctRunes = 10

// State is the lifecycle of one generation session.
type State int

const (
	StateNotStarted State = iota
	StateStreaming
	StateTruncated
	StateCompleted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStreaming:
		return "streaming"
	case StateTruncated:
		return "truncated"
	case StateCompleted:
		return "completed"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Supervisor starts generation sessions that sanitize streamed output and
// stop runaway repetition.
type Supervisor struct {
	gen         llm.Generator
	punctWindow int
	punctRatio  float64
	logger      *zap.Logger
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithPunctuationLimit sets the trailing window, in runes, and the
// punctuation share above which output counts as degenerate.
func WithPunctuationLimit(window int, ratio float64) SupervisorOption {
	return func(s *Supervisor) {
		if window > 0 {
			s.punctWindow = window
		}
		if ratio > 0 {
			s.punctRatio = ratio
		}
	}
}

// WithSupervisorLogger sets the logger.
func WithSupervisorLogger(l *zap.Logger) SupervisorOption {
	return func(s *Supervisor) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSupervisor returns a supervisor driving gen.
func NewSupervisor(gen llm.Generator, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		gen:         gen,
		punctWindow: DefaultPunctWindow,
		punctRatio:  DefaultPunctRatio,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins generating for prompt. The caller must Close the session.
func (s *Supervisor) Start(ctx context.Context, promptText string, params llm.Params) (*Session, error) {
	ctx, cancel := context.WithCancel(ctx)
	frags, err := s.gen.GenerateStream(ctx, promptText, params)
	if err != nil {
		cancel()
		return nil, err
	}
	return &Session{sup: s, ctx: ctx, cancel: cancel, frags: frags}, nil
}

// Stream runs a session to the end, passing every delta to emit, and returns
// the full emitted text. An emit error stops generation and is returned.
func (s *Supervisor) Stream(ctx context.Context, promptText string, params llm.Params, emit func(string) error) (string, error) {
	sess, err := s.Start(ctx, promptText, params)
	if err != nil {
		return "", err
	}
	defer sess.Close()
	for {
		delta, err := sess.Next()
		if errors.Is(err, io.EOF) {
			return sess.Text(), nil
		}
		if err != nil {
			return sess.Text(), err
		}
		if emit != nil {
			if err := emit(delta); err != nil {
				return sess.Text(), err
			}
		}
	}
}

// Session is one supervised generation. It is not safe for concurrent use.
//
// The raw buffer accumulates every fragment. After each fragment the whole
// buffer is sanitized again and only the part of the clean text beyond what
// was already emitted is returned, so emitted output is never retracted.
type Session struct {
	sup    *Supervisor
	ctx    context.Context
	cancel context.CancelFunc
	frags  <-chan llm.Fragment

	state    State
	prelude  string
	raw      strings.Builder
	emitted  string
	repeated bool
}

// State returns the session state.
func (s *Session) State() State { return s.state }

// Text returns everything emitted so far.
func (s *Session) Text() string { return s.emitted }

// Repeated reports whether output was cut because of repetition.
func (s *Session) Repeated() bool { return s.repeated }

// Close stops the producer. It is safe to call more than once.
func (s *Session) Close() {
	s.cancel()
	s.state = StateClosed
}

// Next returns the next non-empty piece of sanitized output. It returns
// io.EOF once generation has completed or been truncated, and the context
// error if the session was cancelled.
func (s *Session) Next() (string, error) {
	for {
		switch s.state {
		case StateTruncated, StateCompleted, StateClosed:
			return "", io.EOF
		}
		frag, ok := <-s.frags
		if !ok {
			if err := s.ctx.Err(); err != nil {
				s.Close()
				return "", err
			}
			s.state = StateCompleted
			s.cancel()
			if delta := s.finish(); delta != "" {
				return delta, nil
			}
			continue
		}
		if frag.Err != nil {
			s.Close()
			return "", frag.Err
		}
		delta, truncated := s.feed(frag.Text)
		if truncated {
			s.state = StateTruncated
			s.repeated = true
			s.cancel()
			s.sup.logger.Debug("generation truncated on repetition", zap.Int("emitted", len(s.emitted)))
		}
		if delta != "" {
			return delta, nil
		}
	}
}

// feed adds a fragment and returns the new delta, and whether the session was
// truncated.
func (s *Session) feed(text string) (string, bool) {
	if s.state == StateNotStarted {
		text = s.skipPrelude(text)
		if s.state == StateNotStarted {
			return "", false
		}
	}
	s.raw.WriteString(text)
	raw := s.raw.String()

	// Without repetition, collapsing is a no-op, so the uncollapsed form is
	// the regular sanitized output.
	clean := sanitize.OutputUncollapsed(raw)
	if s.degenerate(clean) {
		return s.advance(s.truncate(clean)), true
	}
	return s.advance(sanitize.OutputUncollapsed(holdBack(raw))), false
}

// skipPrelude waits for the first non-empty text and drops an echoed
// assistant delimiter at its start, even when split across fragments.
func (s *Session) skipPrelude(text string) string {
	s.prelude += text
	lead := strings.TrimLeft(s.prelude, " \t\r\n")
	if lead == "" {
		return ""
	}
	if strings.HasPrefix(prompt.AssistantDelimiter, lead) && len(lead) < len(prompt.AssistantDelimiter) {
		return ""
	}
	s.state = StateStreaming
	s.prelude = ""
	if strings.HasPrefix(lead, prompt.AssistantDelimiter) {
		return strings.TrimPrefix(lead, prompt.AssistantDelimiter)
	}
	return lead
}

// finish emits whatever was held back once the stream has ended.
func (s *Session) finish() string {
	if s.raw.Len() == 0 && s.prelude != "" {
		// The stream ended inside a possible delimiter; it was real output.
		s.raw.WriteString(strings.TrimSpace(s.prelude))
	}
	return s.advance(sanitize.Output(s.raw.String()))
}

// advance emits the part of clean beyond what was already emitted. A clean
// text that no longer extends the emitted one yields nothing.
func (s *Session) advance(clean string) string {
	if len(clean) <= len(s.emitted) || !strings.HasPrefix(clean, s.emitted) {
		return ""
	}
	delta := clean[len(s.emitted):]
	s.emitted = clean
	return delta
}

// degenerate reports repeated substrings or a punctuation-heavy tail.
func (s *Session) degenerate(clean string) bool {
	if sanitize.HasRepetition(clean) {
		return true
	}
	if utf8.RuneCountInString(clean) < s.sup.punctWindow {
		return false
	}
	ratio, _ := sanitize.PunctuationRatio(clean, s.sup.punctWindow)
	return ratio > s.sup.punctRatio
}

// truncate keeps the lines before the first repetitive line. When that line
// repeats a substring, its text up to the copy that made the repetition
// detectable is kept too.
func (s *Session) truncate(clean string) string {
	lines := strings.Split(clean, "\n")
	for i, line := range lines {
		kept := strings.Join(lines[:i], "\n")
		if cut, ok := sanitize.RepetitionCut(line); ok {
			head := strings.TrimSpace(line[:cut])
			if head == "" {
				return kept
			}
			if kept == "" {
				return head
			}
			return kept + "\n" + head
		}
		if s.punctHeavy(line) {
			return kept
		}
	}
	// The repetition spans lines.
	if cut, ok := sanitize.RepetitionCut(clean); ok {
		return strings.TrimSpace(clean[:cut])
	}
	return s.emitted
}

func (s *Session) punctHeavy(line string) bool {
	ratio, counted := sanitize.PunctuationRatio(line, 0)
	return counted >= minLinePunctRunes && ratio > s.sup.punctRatio
}

var specialTokens = []string{prompt.ImStart, prompt.ImEnd, "<|endoftext|>", "<|eot_id|>"}

// holdBack trims the tail of raw that may still change meaning once more text
// arrives: a partial chat-template token, an unterminated markdown image, or a
// last line that could grow into a question or answer label.
func holdBack(raw string) string {
	if i := sanitize.OpenImageStart(raw); i >= 0 {
		raw = raw[:i]
	}
	for _, tok := range specialTokens {
		for n := len(tok) - 1; n > 0; n-- {
			if strings.HasSuffix(raw, tok[:n]) {
				raw = raw[:len(raw)-n]
				break
			}
		}
	}
	last := raw
	if i := strings.LastIndexByte(raw, '\n'); i >= 0 {
		last = raw[i+1:]
	}
	if sanitize.IsArtifactPrefix(last) {
		raw = raw[:len(raw)-len(last)]
	}
	return raw
}
