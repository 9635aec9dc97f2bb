// Package caption describes images as text so that they can be embedded
// and searched alongside text chunks and tables.
package caption

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms"
)

const Prompt = "Describe this image in detail for a document search system. Include: what the image shows, any text visible, any data or statistics shown, the type of visualization (chart, diagram, photo, etc.)."

type Image struct {
	MIMEType string
	Data     []byte
}

type Captioner interface {
	Caption(ctx context.Context, img Image) (string, error)
}

// NewLLM creates a captioner backed by a multimodal model, e.g. llava
// running under Ollama.
func NewLLM(llm llms.Model) LLM {
	return LLM{llm: llm}
}

type LLM struct {
	llm llms.Model
}

func (c LLM) Caption(ctx context.Context, img Image) (string, error) {
	resp, err := c.llm.GenerateContent(ctx, []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.BinaryPart(img.MIMEType, img.Data),
				llms.TextPart(Prompt),
			},
		},
	}, llms.WithMaxTokens(512))
	if err != nil {
		return "", fmt.Errorf("caption: failed to generate caption: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("caption: no caption returned")
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

// NewOpenAI creates a captioner that uses an OpenAI vision model. The base
// URL may point at any OpenAI compatible server.
func NewOpenAI(apiKey, baseURL, model string) OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

type OpenAI struct {
	client *openai.Client
	model  string
}

func (c OpenAI) Caption(ctx context.Context, img Image) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: Prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    DataURI(img),
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
		MaxTokens: 512,
	})
	if err != nil {
		return "", fmt.Errorf("caption: openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("caption: no caption returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func DataURI(img Image) string {
	return "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// Kind classifies an image from its caption.
func Kind(caption string) string {
	c := strings.ToLower(caption)
	switch {
	case containsAny(c, "chart", "bar", "pie", "line graph", "plot"):
		return "chart"
	case containsAny(c, "diagram", "flowchart", "architecture", "uml"):
		return "diagram"
	case containsAny(c, "table", "matrix", "grid"):
		return "table_image"
	case containsAny(c, "photo", "photograph", "picture", "image of"):
		return "photo"
	}
	return "figure"
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
