package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hyperjump/kotae/internal/models"
)

type fakeAsker struct {
	deltas []string
	err    error
	reqs   []models.AskRequest
}

func (f *fakeAsker) AskStream(ctx context.Context, req *models.AskRequest, onDelta func(string) error) (string, error) {
	f.reqs = append(f.reqs, *req)
	for _, d := range f.deltas {
		if err := onDelta(d); err != nil {
			return "", err
		}
	}
	return "s-42", f.err
}

// drain runs cmd and feeds the resulting messages back into the model until
// the stream is done.
func drain(t *testing.T, m tea.Model, cmd tea.Cmd) Model {
	t.Helper()
	for i := 0; cmd != nil && i < 100; i++ {
		msg := cmd()
		m, cmd = m.Update(msg)
		if _, done := msg.(doneMsg); done {
			break
		}
	}
	return m.(Model)
}

func typeQuestion(m Model, q string) (tea.Model, tea.Cmd) {
	var tm tea.Model = m
	tm, _ = tm.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	for _, r := range q {
		tm, _ = tm.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return tm.Update(tea.KeyMsg{Type: tea.KeyEnter})
}

func TestModel_StreamsAnswer(t *testing.T) {
	asker := &fakeAsker{deltas: []string{"Nhân viên ", "được nghỉ ", "mười hai ngày."}}
	m, cmd := typeQuestion(New(asker, "kotae", WithScope("noi_quy"), WithTopK(5)), "nghỉ phép?")
	got := drain(t, m, cmd)

	if got.streaming {
		t.Error("still streaming after done")
	}
	if len(got.turns) != 1 || got.turns[0].answer.String() != "Nhân viên được nghỉ mười hai ngày." {
		t.Fatalf("turns = %+v", got.turns)
	}
	if got.sessionID != "s-42" {
		t.Errorf("session = %q", got.sessionID)
	}
	req := asker.reqs[0]
	if req.Query != "nghỉ phép?" || req.DocumentID != "noi_quy" || req.TopK != 5 {
		t.Errorf("request = %+v", req)
	}
	if got.input.Value() != "" {
		t.Errorf("input not cleared: %q", got.input.Value())
	}
	if !strings.Contains(got.View(), "noi_quy") {
		t.Error("scope missing from view")
	}
}

func TestModel_ReusesSession(t *testing.T) {
	asker := &fakeAsker{deltas: []string{"a"}}
	m, cmd := typeQuestion(New(asker, "kotae"), "một")
	first := drain(t, m, cmd)
	m, cmd = typeQuestion(first, "hai")
	drain(t, m, cmd)
	if len(asker.reqs) != 2 || asker.reqs[0].SessionID != "" || asker.reqs[1].SessionID != "s-42" {
		t.Errorf("requests = %+v", asker.reqs)
	}
}

func TestModel_ShowsError(t *testing.T) {
	asker := &fakeAsker{err: errors.New("server returned 503: service unavailable")}
	m, cmd := typeQuestion(New(asker, "kotae"), "câu hỏi")
	got := drain(t, m, cmd)
	if got.turns[0].err == nil {
		t.Fatal("error not recorded")
	}
	if !strings.Contains(got.renderTranscript(), "503") {
		t.Errorf("transcript = %q", got.renderTranscript())
	}
}

func TestModel_IgnoresBlankAndBusyEnter(t *testing.T) {
	asker := &fakeAsker{}
	m, cmd := typeQuestion(New(asker, "kotae"), "   ")
	if cmd != nil || len(m.(Model).turns) != 0 {
		t.Error("blank question should be ignored")
	}

	busy := New(asker, "kotae")
	busy.streaming = true
	busy.input.SetValue("x")
	if _, cmd := busy.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Error("enter while streaming should be ignored")
	}
}
