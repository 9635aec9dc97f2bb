// Package router decides which modality indexes to search for a query.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/a-h/ragrouter/content"
	"github.com/tmc/langchaingo/llms"
)

const DefaultPrompt = `Classify this query to determine which type of document content would best answer it.

Query: %s

Choose one or more from:
- TEXT: The answer is likely in text paragraphs
- IMAGE: The answer requires looking at a visual, diagram, chart or photo
- TABLE: The answer requires numerical data from a table
- ALL: Search all content types

Common patterns:
- "show me", "what does X look like", "diagram of", "chart" → IMAGE
- "how many", "revenue", "statistics", "percentage", "trend" → TABLE
- "explain", "describe", "what is", "how does" → TEXT
- Complex questions → ALL

Respond with JSON only: {"types": ["TEXT", "TABLE"]}`

// MaxHistory is the number of previous conversation turns included in the
// classification prompt.
const MaxHistory = 4

const DefaultTimeout = 10 * time.Second

func New(log *slog.Logger, llm llms.Model, opts ...Option) *Router {
	r := &Router{
		log:     log,
		llm:     llm,
		prompt:  DefaultPrompt,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type Option func(*Router)

// WithPrompt sets the classification prompt. The prompt must contain a
// single %s verb for the query.
func WithPrompt(prompt string) Option {
	return func(r *Router) {
		r.prompt = prompt
	}
}

func WithTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

type Router struct {
	log     *slog.Logger
	llm     llms.Model
	prompt  string
	timeout time.Duration
}

// Route classifies the query. It never fails: if the classifier can't be
// reached or its output can't be parsed, every modality is selected.
func (r *Router) Route(ctx context.Context, query string, history []content.Message) content.Decision {
	raw, err := r.classify(ctx, query, history)
	if err != nil {
		r.log.Warn("query classification failed, routing to all modalities", slog.Any("error", err))
		return content.AllModalities()
	}
	d, err := Parse(raw)
	if err != nil {
		r.log.Warn("unparseable classification, routing to all modalities", slog.String("response", raw), slog.Any("error", err))
		return content.AllModalities()
	}
	r.log.Debug("query routed", slog.String("modalities", d.String()))
	return d
}

func (r *Router) classify(ctx context.Context, query string, history []content.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}
	msgs := make([]llms.MessageContent, 0, len(history)+1)
	for _, m := range history {
		msgs = append(msgs, llms.TextParts(chatMessageType(m.Role), m.Content))
	}
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf(r.prompt, query)))

	resp, err := r.llm.GenerateContent(ctx, msgs, llms.WithTemperature(0))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("router: no choices in classifier response")
	}
	return resp.Choices[0].Content, nil
}

func chatMessageType(r content.Role) llms.ChatMessageType {
	if r == content.RoleAI {
		return llms.ChatMessageTypeAI
	}
	return llms.ChatMessageTypeHuman
}

var ErrUnparseable = errors.New("router: unparseable classification")

var jsonObject = regexp.MustCompile(`(?s)\{.*?\}`)

type classification struct {
	Types *[]string `json:"types"`
}

// Parse reads a classifier response of the form {"types": [...]}. The JSON
// may be surrounded by other text. A response that names no known modality
// selects text only.
func Parse(raw string) (d content.Decision, err error) {
	obj := jsonObject.FindString(raw)
	if obj == "" {
		return d, fmt.Errorf("%w: no JSON object found", ErrUnparseable)
	}
	var c classification
	if err = json.Unmarshal([]byte(obj), &c); err != nil {
		return d, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	if c.Types == nil {
		return d, fmt.Errorf("%w: missing types", ErrUnparseable)
	}
	var selected []content.Modality
	for _, t := range *c.Types {
		switch strings.ToUpper(strings.TrimSpace(t)) {
		case "ALL", "COMBINATION":
			return content.AllModalities(), nil
		case "TEXT", "TEXTUAL":
			selected = append(selected, content.ModalityText)
		case "IMAGE", "VISUAL":
			selected = append(selected, content.ModalityImage)
		case "TABLE", "TABULAR":
			selected = append(selected, content.ModalityTable)
		}
	}
	return content.NewDecision(selected...), nil
}
