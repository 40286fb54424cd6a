package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"courserag/internal/assistant"
	"courserag/internal/conversation"
	"courserag/internal/domain"
	"courserag/internal/ingest"
)

// AssistantPort is the TUI-facing subset of the assistant.
type AssistantPort interface {
	Handle(ctx context.Context, sess *conversation.Session, message string) assistant.Response
	Ingest(ctx context.Context) (ingest.Result, error)
	Reingest(ctx context.Context) (ingest.Result, error)
	Documents(ctx context.Context) ([]domain.DocumentRecord, error)
}

const helpText = "Comandos: /reset nueva conversación · /ingest · /reingest · /docs · /help · /quit"

type speaker int

const (
	speakerUser speaker = iota
	speakerAssistant
	speakerSystem
)

type entry struct {
	who  speaker
	text string
}

type replyMsg struct {
	question string
	resp     assistant.Response
}

type commandMsg struct {
	text string
	err  error
}

// Model is the Bubble Tea model for the chat window.
type Model struct {
	ctx        context.Context
	assistant  AssistantPort
	session    *conversation.Session
	input      textinput.Model
	viewport   viewport.Model
	spinner    spinner.Model
	transcript []entry
	status     string
	pending    bool
	ready      bool
}

// New creates a chat model bound to one conversation session.
func New(ctx context.Context, a AssistantPort, sess *conversation.Session, banner string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Escribe tu pregunta y presiona Enter"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	m := Model{
		ctx:       ctx,
		assistant: a,
		session:   sess,
		input:     ti,
		viewport:  viewport.New(0, 0),
		spinner:   sp,
		status:    helpText,
	}
	if banner != "" {
		m.transcript = append(m.transcript, entry{who: speakerSystem, text: banner})
	}
	return m
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and completion events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 1 + 1 + ih + 1 // header, status, input box, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil

	case replyMsg:
		m.pending = false
		m.transcript = append(m.transcript, entry{who: speakerAssistant, text: renderResponse(msg.question, msg.resp)})
		m.status = helpText
		m.refresh()
		return m, nil

	case commandMsg:
		m.pending = false
		if msg.err != nil {
			m.transcript = append(m.transcript, entry{who: speakerSystem, text: "Error: " + msg.err.Error()})
		} else {
			m.transcript = append(m.transcript, entry{who: speakerSystem, text: msg.text})
		}
		m.status = helpText
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.Type {
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.pending {
				return m, nil
			}
			m.input.Reset()
			if strings.HasPrefix(text, "/") {
				return m.command(text)
			}
			m.transcript = append(m.transcript, entry{who: speakerUser, text: text})
			m.pending = true
			m.status = "Pensando…"
			m.refresh()
			return m, tea.Batch(m.spinner.Tick, m.ask(text))
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) command(text string) (tea.Model, tea.Cmd) {
	switch strings.ToLower(strings.Fields(text)[0]) {
	case "/quit", "/exit":
		return m, tea.Quit
	case "/help":
		m.transcript = append(m.transcript, entry{who: speakerSystem, text: helpText})
	case "/reset":
		m.session.Reset()
		m.transcript = []entry{{who: speakerSystem, text: "Conversación reiniciada."}}
	case "/ingest":
		return m.run("Ingestando documentos…", func() (string, error) {
			res, err := m.assistant.Ingest(m.ctx)
			return describeIngest(res), err
		})
	case "/reingest":
		return m.run("Reconstruyendo el índice…", func() (string, error) {
			res, err := m.assistant.Reingest(m.ctx)
			return describeIngest(res), err
		})
	case "/docs":
		return m.run("Consultando documentos…", func() (string, error) {
			docs, err := m.assistant.Documents(m.ctx)
			return describeDocuments(docs), err
		})
	default:
		m.transcript = append(m.transcript, entry{who: speakerSystem, text: "Comando desconocido. " + helpText})
	}
	m.refresh()
	return m, nil
}

func (m Model) run(status string, fn func() (string, error)) (tea.Model, tea.Cmd) {
	m.pending = true
	m.status = status
	m.refresh()
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		text, err := fn()
		return commandMsg{text: text, err: err}
	})
}

func (m Model) ask(question string) tea.Cmd {
	ctx, a, sess := m.ctx, m.assistant, m.session
	return func() tea.Msg {
		return replyMsg{question: question, resp: a.Handle(ctx, sess, question)}
	}
}

// View renders the header, transcript, input box and status line.
func (m Model) View() string {
	if !m.ready {
		return "Cargando…"
	}
	header := headerStyle.Render("Asistente de cursos")
	status := statusStyle.Render(m.status)
	if m.pending {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" +
		transcriptBoxStyle.Render(m.viewport.View()) + "\n" +
		inputBoxStyle.Render(m.input.View()) + "\n" +
		status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.transcript) == 0 {
		return systemStyle.Render(helpText)
	}
	parts := make([]string, 0, len(m.transcript))
	for _, e := range m.transcript {
		switch e.who {
		case speakerUser:
			parts = append(parts, userStyle.Render("Tú: ")+e.text)
		case speakerAssistant:
			parts = append(parts, assistantStyle.Render("Asistente: ")+e.text)
		default:
			parts = append(parts, systemStyle.Render(e.text))
		}
	}
	return strings.Join(parts, "\n\n")
}

func renderResponse(question string, resp assistant.Response) string {
	if resp.Reply == nil || len(resp.Reply.Sources) == 0 {
		return resp.Text
	}
	top := resp.Reply.Sources[0]
	snippet := highlightBestSentence(top.Chunk.Text, question)
	cite := fmt.Sprintf("[%s, p. %d]", top.Chunk.Source, top.Chunk.Page)
	return resp.Text + "\n" + sourceStyle.Render(cite) + " " + snippet
}

func describeIngest(res ingest.Result) string {
	if res.Gated {
		return "El índice ya tiene documentos; usa /reingest para reconstruirlo."
	}
	msg := fmt.Sprintf("Ingesta completa: %d archivos, %d fragmentos.", res.Files, res.Added)
	if res.Unchanged > 0 {
		msg += fmt.Sprintf(" %d sin cambios.", res.Unchanged)
	}
	for _, s := range res.Skipped {
		msg += fmt.Sprintf("\n  omitido %s: %v", s.File, s.Err)
	}
	return msg
}

func describeDocuments(docs []domain.DocumentRecord) string {
	if len(docs) == 0 {
		return "No hay documentos en el catálogo."
	}
	var b strings.Builder
	b.WriteString("Documentos:")
	for _, d := range docs {
		fmt.Fprintf(&b, "\n  %s (%d páginas, %d fragmentos)", d.Filename, d.Pages, d.Chunks)
	}
	return b.String()
}

var (
	headerStyle        = lipgloss.NewStyle().Bold(true)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	systemStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	sourceStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe      = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe         = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence marks the sentence sharing the most words with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
