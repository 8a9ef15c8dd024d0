// Package tui is a terminal chat client that streams answers from a kotae
// server.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hyperjump/kotae/internal/models"
)

// Asker streams answers. *client.Client implements it.
type Asker interface {
	AskStream(ctx context.Context, req *models.AskRequest, onDelta func(string) error) (string, error)
}

type turn struct {
	question string
	answer   strings.Builder
	err      error
}

type deltaMsg string

type doneMsg struct {
	sessionID string
	err       error
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	asker      Asker
	title      string
	documentID string
	topK       int
	sessionID  string

	input    textinput.Model
	viewport viewport.Model
	turns    []*turn
	status   string
	ready    bool

	streaming bool
	events    chan tea.Msg
	cancel    context.CancelFunc
}

// Option configures a Model.
type Option func(*Model)

// WithScope restricts every question to one document.
func WithScope(documentID string) Option {
	return func(m *Model) { m.documentID = documentID }
}

// WithTopK sets how many chunks the server retrieves per question.
func WithTopK(k int) Option {
	return func(m *Model) { m.topK = k }
}

// WithSession continues an existing chat session.
func WithSession(id string) Option {
	return func(m *Model) { m.sessionID = id }
}

// New creates the chat model. title is shown above the transcript.
func New(asker Asker, title string, opts ...Option) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Đặt câu hỏi và nhấn Enter"
	ti.Focus()
	ti.CharLimit = 4000
	m := Model{
		asker:    asker,
		title:    title,
		input:    ti,
		viewport: viewport.New(0, 0),
		status:   "Enter: gửi · Esc: dừng · Ctrl+C: thoát",
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles keys, window size and streamed answer pieces.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		reserved := 2 + ih + 1 // header, spacer, input box, status
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil

	case deltaMsg:
		if len(m.turns) > 0 {
			m.turns[len(m.turns)-1].answer.WriteString(string(msg))
		}
		m.refresh()
		return m, waitFor(m.events)

	case doneMsg:
		m.streaming = false
		m.cancel = nil
		if msg.sessionID != "" {
			m.sessionID = msg.sessionID
		}
		if msg.err != nil && len(m.turns) > 0 && !errors.Is(msg.err, context.Canceled) {
			m.turns[len(m.turns)-1].err = msg.err
		}
		m.status = "Sẵn sàng."
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case tea.KeyEsc:
			if m.cancel != nil {
				m.cancel()
				m.status = "Đã dừng."
			}
			return m, nil
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.streaming {
				return m, nil
			}
			m.input.SetValue("")
			return m.ask(q)
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// ask starts streaming the answer to q in the background.
func (m Model) ask(q string) (tea.Model, tea.Cmd) {
	m.turns = append(m.turns, &turn{question: q})
	m.streaming = true
	m.status = "Đang trả lời..."
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	events := make(chan tea.Msg, 64)
	m.events = events

	req := &models.AskRequest{Query: q, DocumentID: m.documentID, TopK: m.topK, SessionID: m.sessionID}
	go func() {
		defer close(events)
		sid, err := m.asker.AskStream(ctx, req, func(d string) error {
			select {
			case events <- deltaMsg(d):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		events <- doneMsg{sessionID: sid, err: err}
	}()
	m.refresh()
	return m, waitFor(events)
}

// waitFor delivers the next streamed message.
func waitFor(events <-chan tea.Msg) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return doneMsg{}
		}
		return msg
	}
}

// refresh re-renders the transcript and follows the newest text.
func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.turns) == 0 {
		return hintStyle.Render("Chưa có câu hỏi nào.")
	}
	width := max(10, m.viewport.Width)
	var b strings.Builder
	for i, t := range m.turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Width(width).Render("Bạn: " + t.question))
		b.WriteString("\n")
		answer := t.answer.String()
		if answer == "" && m.streaming && i == len(m.turns)-1 {
			answer = "..."
		}
		b.WriteString(answerStyle.Width(width).Render(answer))
		if t.err != nil {
			b.WriteString("\n")
			b.WriteString(errorStyle.Render(fmt.Sprintf("Lỗi: %v", t.err)))
		}
	}
	return b.String()
}

// View renders the header, transcript, input and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render(m.title)
	if m.documentID != "" {
		header += hintStyle.Render("  [" + m.documentID + "]")
	}
	return header + "\n" +
		transcriptStyle.Render(m.viewport.View()) + "\n" +
		inputStyle.Render(m.input.View()) + "\n" +
		statusStyle.Render(m.status)
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true)
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	answerStyle     = lipgloss.NewStyle()
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	hintStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)
