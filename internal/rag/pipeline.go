package rag

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kotae/internal/gate"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/prompt"
	"github.com/hyperjump/kotae/internal/storage"
	"go.uber.org/zap"
)

// DefaultTopK is the number of chunks retrieved when a request does not say.
const DefaultTopK = 3

// Pipeline answers questions from the indexed corpus. It is built once and
// shared by every request; per-answer state lives in a Session.
type Pipeline struct {
	retriever  *Retriever
	gate       *gate.Gate
	prompts    *prompt.Builder
	supervisor *Supervisor
	params     llm.Params
	topK       int
	history    storage.Storage
	logger     *zap.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithParams sets the decoding parameters.
func WithParams(p llm.Params) PipelineOption {
	return func(pl *Pipeline) { pl.params = p }
}

// WithTopK sets the default number of retrieved chunks.
func WithTopK(k int) PipelineOption {
	return func(pl *Pipeline) {
		if k > 0 {
			pl.topK = k
		}
	}
}

// WithHistory records every answer in s.
func WithHistory(s storage.Storage) PipelineOption {
	return func(pl *Pipeline) { pl.history = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) PipelineOption {
	return func(pl *Pipeline) {
		if l != nil {
			pl.logger = l
		}
	}
}

// NewPipeline wires the answering stages together.
func NewPipeline(retriever *Retriever, g *gate.Gate, prompts *prompt.Builder, supervisor *Supervisor, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		retriever:  retriever,
		gate:       g,
		prompts:    prompts,
		supervisor: supervisor,
		params:     llm.DefaultParams(),
		topK:       DefaultTopK,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Refusal returns the fixed refusal sentence.
func (p *Pipeline) Refusal() string {
	return p.prompts.Refusal()
}

// Answer retrieves context and generates a whole answer. The refusal
// sentence replaces the answer when no chunk shares enough words with the
// question, in which case the generator is not called, or when the generated
// answer hedges or strays from the context.
func (p *Pipeline) Answer(ctx context.Context, req *models.AskRequest) (*models.Answer, error) {
	start := time.Now()
	if err := req.Normalize(p.topK); err != nil {
		return nil, err
	}
	sessionID := sessionOrNew(req.SessionID)

	chunks, err := p.retriever.Retrieve(ctx, req.Query, req.TopK, req.DocumentID)
	if err != nil {
		return nil, err
	}
	texts := Texts(chunks)

	answer := p.prompts.Refusal()
	refused := true
	if p.gate.IsRelevant(req.Query, texts) {
		generated, err := p.supervisor.Stream(ctx, p.prompts.Build(texts, req.Query), p.params, nil)
		if err != nil {
			return nil, err
		}
		generated = DedupeSentences(generated, p.prompts.QuestionLabel())
		switch {
		case generated == "":
			p.logger.Debug("empty answer replaced by refusal")
		case p.gate.IsHallucinated(generated, prompt.JoinContext(texts)):
			p.logger.Debug("answer rejected by hallucination check", zap.String("answer", generated))
		default:
			answer, refused = generated, false
		}
	} else {
		p.logger.Debug("context not relevant, refusing", zap.Int("chunks", len(chunks)))
	}

	p.record(ctx, sessionID, req, answer)
	return &models.Answer{
		Answer:    answer,
		SessionID: sessionID,
		Refused:   refused,
		Sources:   chunks,
		QueryTime: time.Since(start).Milliseconds(),
	}, nil
}

// AnswerStream retrieves context and streams the supervised answer through
// emit. With nothing retrieved the refusal sentence is emitted without
// generating. The returned Answer holds the full emitted text.
func (p *Pipeline) AnswerStream(ctx context.Context, req *models.AskRequest, emit func(string) error) (*models.Answer, error) {
	start := time.Now()
	if err := req.Normalize(p.topK); err != nil {
		return nil, err
	}
	sessionID := sessionOrNew(req.SessionID)

	chunks, err := p.retriever.Retrieve(ctx, req.Query, req.TopK, req.DocumentID)
	if err != nil {
		return nil, err
	}

	var text string
	refused := len(chunks) == 0
	if refused {
		text = p.prompts.Refusal()
		if err := emit(text); err != nil {
			return nil, err
		}
	} else {
		texts := Texts(chunks)
		text, err = p.supervisor.Stream(ctx, p.prompts.Build(texts, req.Query), p.params, emit)
		if err != nil {
			return nil, err
		}
	}

	p.record(ctx, sessionID, req, text)
	return &models.Answer{
		Answer:    text,
		SessionID: sessionID,
		Refused:   refused,
		Sources:   chunks,
		QueryTime: time.Since(start).Milliseconds(),
	}, nil
}

func (p *Pipeline) record(ctx context.Context, sessionID string, req *models.AskRequest, answer string) {
	if p.history == nil {
		return
	}
	err := p.history.CreateChat(ctx, &models.ChatRecord{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		Query:      req.Query,
		Answer:     answer,
		DocumentID: req.DocumentID,
	})
	if err != nil {
		p.logger.Warn("failed to record chat", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func sessionOrNew(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return uuid.New().String()
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\s]+`)

// DedupeSentences drops repeated sentences, compared case- and
// punctuation-insensitively, and sentences that echo the question label.
// Sentences are split on ". " and the result ends with terminal punctuation.
func DedupeSentences(answer, questionLabel string) string {
	label := strings.ToLower(strings.TrimSpace(questionLabel))
	seen := make(map[string]struct{})
	var kept []string
	for _, sentence := range strings.Split(answer, ". ") {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		lower := strings.ToLower(sentence)
		if label != "" && strings.Contains(lower, label) {
			continue
		}
		key := strings.Join(strings.Fields(nonWord.ReplaceAllString(lower, "")), " ")
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, sentence)
	}
	out := strings.Join(kept, ". ")
	if out != "" && !strings.ContainsAny(out[len(out)-1:], ".!?") && !strings.HasSuffix(out, "…") {
		out += "."
	}
	return out
}
