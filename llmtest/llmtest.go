// Package llmtest provides in-process LLM and embedding models for tests.
package llmtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// Model returns canned responses. Respond is called with the text of the
// last message; if it is nil, Response is returned.
type Model struct {
	Response string
	Err      error
	Respond  func(prompt string) (string, error)

	m        sync.Mutex
	Requests [][]llms.MessageContent
}

func (m *Model) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.m.Lock()
	m.Requests = append(m.Requests, messages)
	m.m.Unlock()

	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}

	text, err := m.respond(LastText(messages))
	if err != nil {
		return nil, err
	}
	if opts.StreamingFunc != nil {
		if err = opts.StreamingFunc(ctx, []byte(text)); err != nil {
			return nil, err
		}
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: text}},
	}, nil
}

func (m *Model) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *Model) respond(prompt string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	if m.Respond != nil {
		return m.Respond(prompt)
	}
	return m.Response, nil
}

// Calls returns the number of requests made to the model.
func (m *Model) Calls() int {
	m.m.Lock()
	defer m.m.Unlock()
	return len(m.Requests)
}

// LastText returns the concatenated text parts of the final message.
func LastText(messages []llms.MessageContent) string {
	if len(messages) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range messages[len(messages)-1].Parts {
		if tc, ok := p.(llms.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

// Embedder maps known texts to fixed vectors. Unknown texts get Default.
type Embedder struct {
	Vectors map[string][]float32
	Default []float32
	Err     error
}

var ErrUnknownText = errors.New("llmtest: no vector for text")

func (e Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (e Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	if v, ok := e.Vectors[text]; ok {
		return v, nil
	}
	if e.Default != nil {
		return e.Default, nil
	}
	return nil, ErrUnknownText
}
