package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/a-h/ragrouter/client"
	"github.com/a-h/ragrouter/models"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

type ChatCommand struct {
	RAGServerURL    string   `help:"The URL of the RAG router server." env:"RAG_SERVER_URL" default:"http://localhost:9020"`
	RAGServerAPIKey string   `help:"The API key for the RAG router server." env:"RAG_SERVER_API_KEY" default:""`
	Modalities      []string `help:"The content types to search (text, image, table). If not set, the router decides." default:""`
}

func (c ChatCommand) Run(ctx context.Context) (err error) {
	rsc := client.New(c.RAGServerURL, c.RAGServerAPIKey)
	modalities := nonEmpty(c.Modalities)

	var history []models.Message

	toLLM := make(chan models.Message)
	fromLLM := make(chan []models.Message)
	errors := make(chan error)
	defer close(toLLM)
	defer close(fromLLM)
	defer close(errors)

	go func() {
		for toSend := range toLLM {
			req := models.QueryPostRequest{
				Text:       toSend.Content,
				History:    withoutSources(history),
				Modalities: modalities,
			}
			history = append(history, toSend)
			msgIndex := len(history)
			history = append(history, models.Message{
				Role:    models.MessageRoleAI,
				Content: "",
			})

			buf := new(bytes.Buffer)
			f := func(ctx context.Context, chunk []byte) error {
				if _, err := buf.Write(chunk); err != nil {
					return err
				}
				history[msgIndex].Content = buf.String()
				fromLLM <- append([]models.Message(nil), history...)
				return nil
			}
			if err := rsc.QueryStream(ctx, req, f); err != nil {
				errors <- err
			}
		}
	}()

	p := tea.NewProgram(newModel(ctx, toLLM, fromLLM, errors))
	if _, err = p.Run(); err != nil {
		return err
	}
	return nil
}

// Dracula color scheme.
var (
	Background  = lipgloss.Color("#282a36")
	CurrentLine = lipgloss.Color("#44475a")
	Comment     = lipgloss.Color("#6272a4")
	Cyan        = lipgloss.Color("#8be9fd")
	Pink        = lipgloss.Color("#ff79c6")
	Purple      = lipgloss.Color("#bd93f9")
	Red         = lipgloss.Color("#ff5555")
)

var headerStyle = lipgloss.NewStyle().Background(CurrentLine).Foreground(Purple).Bold(true).Margin(10).Padding(1).PaddingTop(0)

var header = `
 ____      _    ____   ____             _
|  _ \    / \  / ___| |  _ \ ___  _   _| |_ ___ _ __
| |_) |  / _ \| |  _  | |_) / _ \| | | | __/ _ \ '__|
|  _ <  / ___ \ |_| | |  _ < (_) | |_| | ||  __/ |
|_| \_\/_/   \_\____| |_| \_\___/ \__,_|\__\___|_|
`

type model struct {
	viewport viewport.Model
	textarea textarea.Model
	err      error
	ctx      context.Context

	// Chatbot interactions.
	toLLM   chan models.Message
	fromLLM chan []models.Message
	errors  chan error
}

func newModel(ctx context.Context, toLLM chan models.Message, fromLLM chan []models.Message, errors chan error) model {
	ta := textarea.New()
	ta.Placeholder = "Ask a question..."
	ta.Focus()

	ta.Prompt = "┃ "
	ta.CharLimit = 280

	ta.SetHeight(3)

	// Remove cursor line styling
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()

	ta.ShowLineNumbers = false

	vp := viewport.New(80, 20)
	vp.SetContent(headerStyle.Render(header))

	ta.KeyMap.InsertNewline.SetEnabled(false)

	return model{
		ctx:      ctx,
		textarea: ta,
		viewport: vp,
		err:      nil,
		fromLLM:  fromLLM,
		toLLM:    toLLM,
		errors:   errors,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.subscribeToFromLLM(),
		m.subscribeToErrors(),
	)
}

func (m model) subscribeToFromLLM() tea.Cmd {
	return func() tea.Msg {
		select {
		case x := <-m.fromLLM:
			return x
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m model) subscribeToErrors() tea.Cmd {
	return func() tea.Msg {
		select {
		case x := <-m.errors:
			return x
		case <-m.ctx.Done():
			return nil
		}
	}
}

var roleToStyle = map[models.MessageRole]lipgloss.Style{
	models.MessageRoleHuman: lipgloss.NewStyle().Padding(1).Margin(1).MarginBottom(0).Background(Background).Foreground(Pink),
	models.MessageRoleAI:    lipgloss.NewStyle().Padding(1).Margin(1).MarginBottom(0).Background(Background).Foreground(Cyan),
}

var roleToIcon = map[models.MessageRole]string{
	models.MessageRoleHuman: "🥷",
	models.MessageRoleAI:    "✨",
}

const sourcesSeparator = "\n\nSources:\n"

// withoutSources removes the sources that follow each streamed answer, so
// that they aren't sent back as conversation history.
func withoutSources(history []models.Message) []models.Message {
	cleaned := make([]models.Message, len(history))
	for i, m := range history {
		m.Content, _, _ = strings.Cut(m.Content, sourcesSeparator)
		cleaned[i] = m
	}
	return cleaned
}

var sourcesStyle = lipgloss.NewStyle().Foreground(Comment).Italic(true)

var errorStyle = lipgloss.NewStyle().Padding(1).Margin(1).Foreground(Red)

func formatMessage(msg models.Message) string {
	style, ok := roleToStyle[msg.Role]
	if !ok {
		return msg.Content
	}
	icon, ok := roleToIcon[msg.Role]
	if !ok {
		icon = "🤷"
	}
	answer, sources, hasSources := strings.Cut(msg.Content, sourcesSeparator)
	wrapped := wordwrap.String(strings.TrimSpace(icon+" "+answer), 80)
	if hasSources {
		wrapped += "\n\n" + sourcesStyle.Render(wordwrap.String("Sources:\n"+strings.TrimSpace(sources), 80))
	}
	return style.Render(wrapped)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case error:
		m.err = msg
		m.viewport.SetContent(errorStyle.Render(msg.Error()))
		return m, m.subscribeToErrors()
	case []models.Message:
		var sb strings.Builder
		for _, cm := range msg {
			sb.WriteString(formatMessage(cm))
			sb.WriteString("\n")
		}
		m.viewport.SetContent(sb.String())
		m.viewport.GotoBottom()
		return m, m.subscribeToFromLLM()
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - m.textarea.Height() - 3
		m.textarea.SetWidth(msg.Width)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "ctrl+c":
			return m, tea.Quit
		case "enter":
			v := m.textarea.Value()

			if v == "" {
				// Don't send empty messages.
				return m, nil
			}

			m.textarea.Reset()
			m.toLLM <- models.Message{
				Role:    models.MessageRoleHuman,
				Content: v,
			}
			return m, nil
		default:
			// Send all other keypresses to the textarea.
			var cmd tea.Cmd
			m.textarea, cmd = m.textarea.Update(msg)
			return m, cmd
		}

	case cursor.BlinkMsg:
		// Textarea should also process cursor blinks.
		var cmd tea.Cmd
		m.textarea, cmd = m.textarea.Update(msg)
		return m, cmd

	default:
		return m, nil
	}
}

func (m model) View() string {
	return fmt.Sprintf("%s\n\n%s",
		m.viewport.View(),
		m.textarea.View(),
	) + "\n\n"
}
