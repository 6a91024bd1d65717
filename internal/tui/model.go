package tui

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docqa/internal/domain"
	"docqa/internal/quiz"
	"docqa/internal/service"
	"docqa/internal/textutil"
)

const historyTurns = 5

// Port is the TUI-facing subset of the service.
type Port interface {
	Ask(ctx context.Context, question, docID string, history []domain.Turn) (domain.Answer, error)
	StartQuiz(ctx context.Context, docID string, n int) (service.QuizStart, error)
	SubmitAnswer(ctx context.Context, sessionID, questionID, answer string) (quiz.Result, error)
	EndQuiz(ctx context.Context, sessionID string) (quiz.Progress, error)
}

type answerMsg struct {
	question string
	answer   domain.Answer
	err      error
}

type quizMsg struct {
	start service.QuizStart
	err   error
}

type gradedMsg struct {
	result quiz.Result
	err    error
}

type endMsg struct {
	progress quiz.Progress
	err      error
}

type activeQuiz struct {
	sessionID string
	questions []quiz.PublicQuestion
	current   int
}

func (q *activeQuiz) question() (quiz.PublicQuestion, bool) {
	if q == nil || q.current >= len(q.questions) {
		return quiz.PublicQuestion{}, false
	}
	return q.questions[q.current], true
}

// Model is the Bubble Tea model for the interactive client.
type Model struct {
	ctx      context.Context
	service  Port
	input    textinput.Model
	viewport viewport.Model
	docID    string
	summary  string
	history  []domain.Turn
	quiz     *activeQuiz
	lines    []string
	status   string
	busy     bool
	ready    bool
}

// New creates a model answering from docID. summary is shown under the header.
func New(ctx context.Context, service Port, docID, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, or :quiz N, :doc ID, :end, :help"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		ctx:      ctx,
		service:  service,
		input:    ti,
		viewport: vp,
		docID:    docID,
		summary:  summary,
		status:   "Loaded. Ask away.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and service events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header and summary, status, spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.refresh()
		return m, nil
	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			break
		}
		m.history = append(m.history, domain.Turn{Question: msg.question, Answer: msg.answer.Answer})
		if len(m.history) > historyTurns {
			m.history = m.history[len(m.history)-historyTurns:]
		}
		m.printAnswer(msg.question, msg.answer)
		m.status = fmt.Sprintf("confidence %.2f", msg.answer.Confidence)
	case quizMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			break
		}
		m.quiz = &activeQuiz{sessionID: msg.start.SessionID, questions: msg.start.Questions}
		m.printf("Quiz started: %d questions.", len(msg.start.Questions))
		m.printQuestion()
		m.status = "Answer with A-D, :end to stop."
	case gradedMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			break
		}
		m.printResult(msg.result)
		if m.quiz != nil {
			m.quiz.current++
		}
		if msg.result.Final != nil {
			m.printFinal(*msg.result.Final)
			m.quiz = nil
			m.status = "Quiz finished."
			break
		}
		m.printQuestion()
	case endMsg:
		m.busy = false
		m.quiz = nil
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			break
		}
		m.printFinal(msg.progress)
		m.status = "Quiz ended."
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line == "" || m.busy {
				return m, nil
			}
			next, cmd := m.handleLine(line)
			next.refresh()
			return next, cmd
		}
	}
	m.refresh()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleLine(line string) (Model, tea.Cmd) {
	m.printf("> %s", line)

	if strings.HasPrefix(line, ":") {
		fields := strings.Fields(line)
		switch fields[0] {
		case ":q", ":quit":
			return m, tea.Quit
		case ":help":
			m.printf("Plain lines ask the active document. :quiz [N] starts a quiz, A-D answers, :end stops it, :doc ID switches documents.")
			return m, nil
		case ":doc":
			if len(fields) < 2 {
				m.status = "Usage: :doc ID"
				return m, nil
			}
			m.docID = fields[1]
			m.history = nil
			m.status = "Active document " + m.docID
			return m, nil
		case ":quiz":
			n := 0
			if len(fields) > 1 {
				v, err := strconv.Atoi(fields[1])
				if err != nil {
					m.status = "Usage: :quiz N"
					return m, nil
				}
				n = v
			}
			if m.docID == "" {
				m.status = "No active document; use :doc ID"
				return m, nil
			}
			m.busy = true
			m.status = "Generating quiz..."
			return m, m.startQuiz(n)
		case ":end":
			if m.quiz == nil {
				m.status = "No quiz in progress"
				return m, nil
			}
			m.busy = true
			return m, m.endQuiz(m.quiz.sessionID)
		default:
			m.status = "Unknown command " + fields[0]
			return m, nil
		}
	}

	if q, ok := m.quiz.question(); ok && isAnswer(line, q) {
		m.busy = true
		return m, m.submit(m.quiz.sessionID, q.ID, line)
	}
	m.busy = true
	m.status = "Thinking..."
	return m, m.ask(line)
}

// isAnswer reports whether line answers q rather than asking a question.
func isAnswer(line string, q quiz.PublicQuestion) bool {
	if q.Type == quiz.FormatFreeText {
		return true
	}
	_, ok := q.Options[strings.ToUpper(line)]
	return ok
}

func (m Model) ask(question string) tea.Cmd {
	history := append([]domain.Turn(nil), m.history...)
	docID := m.docID
	return func() tea.Msg {
		ans, err := m.service.Ask(m.ctx, question, docID, history)
		return answerMsg{question: question, answer: ans, err: err}
	}
}

func (m Model) startQuiz(n int) tea.Cmd {
	docID := m.docID
	return func() tea.Msg {
		start, err := m.service.StartQuiz(m.ctx, docID, n)
		return quizMsg{start: start, err: err}
	}
}

func (m Model) submit(sessionID, questionID, answer string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.service.SubmitAnswer(m.ctx, sessionID, questionID, answer)
		return gradedMsg{result: res, err: err}
	}
}

func (m Model) endQuiz(sessionID string) tea.Cmd {
	return func() tea.Msg {
		p, err := m.service.EndQuiz(m.ctx, sessionID)
		return endMsg{progress: p, err: err}
	}
}

func (m *Model) printf(format string, args ...any) {
	m.lines = append(m.lines, fmt.Sprintf(format, args...))
}

func (m *Model) printAnswer(question string, a domain.Answer) {
	m.lines = append(m.lines, answerStyle.Render(a.Answer))
	if a.Justification != "" {
		m.lines = append(m.lines, dimStyle.Render(a.Justification))
	}
	for i, s := range a.SourceSnippets {
		m.lines = append(m.lines, fmt.Sprintf("  [%d] %s", i+1, highlightBestSentence(s, question)))
	}
}

func (m *Model) printQuestion() {
	q, ok := m.quiz.question()
	if !ok {
		return
	}
	m.printf("Q%d/%d: %s", m.quiz.current+1, len(m.quiz.questions), q.Question)
	letters := make([]string, 0, len(q.Options))
	for l := range q.Options {
		letters = append(letters, l)
	}
	sort.Strings(letters)
	for _, l := range letters {
		m.printf("  %s) %s", l, q.Options[l])
	}
}

func (m *Model) printResult(r quiz.Result) {
	mark := wrongStyle.Render("✗ " + r.Feedback)
	if r.Correct {
		mark = rightStyle.Render("✓ " + r.Feedback)
	}
	m.lines = append(m.lines, mark)
	if !r.Correct {
		m.printf("  Correct answer: %s", r.CorrectAnswer)
	}
	if r.Explanation != "" {
		m.lines = append(m.lines, dimStyle.Render("  "+r.Explanation))
	}
}

func (m *Model) printFinal(p quiz.Progress) {
	m.printf("Answered %d of %d, average score %.1f", p.Answered, p.Total, p.AverageScore)
}

func (m *Model) refresh() {
	if len(m.lines) == 0 {
		m.viewport.SetContent("No answers yet.")
		return
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

// View renders the layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	title := "docqa"
	if m.docID != "" {
		title += "  " + m.docID
	}
	header := lipgloss.NewStyle().Bold(true).Render(title)
	summary := dimStyle.Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + transcript + "\n" + input + "\n" + status
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	answerStyle        = lipgloss.NewStyle().Bold(true)
	dimStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	rightStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	wrongStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := textutil.Sentences(text)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := textutil.TokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	out := make([]string, len(sentences))
	for i, s := range sentences {
		s = strings.TrimSpace(s)
		if i == bestIdx {
			s = highlightStyle.Render(s)
		}
		out[i] = s
	}
	return strings.Join(out, " ")
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	for t := range textutil.TokenSet(sentence) {
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
