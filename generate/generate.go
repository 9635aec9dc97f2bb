// Package generate turns a merged context into a prompt and asks an LLM to
// answer it.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/a-h/ragrouter/content"
	"github.com/tmc/langchaingo/llms"
)

const DefaultSystemPrompt = `You are a trusted advisor that doesn't make up answers. You are provided with numbered context taken from documents, and a question. The context includes text paragraphs, image descriptions and table descriptions. You always use the context to answer the question. If the context doesn't contain the answer, you say that you don't know, and don't try to make up an answer.

Cite the context you use with its number in square brackets, e.g. [2], and mention which type of content informed your answer.`

// DefaultUserPrompt is formatted with the context, then the question.
const DefaultUserPrompt = `Here is the context you need to answer the question:

%s

Please provide a succinct response to: %s`

// NoContext replaces the context when nothing relevant was found.
const NoContext = "No relevant content was found in the knowledge base."

var ErrGeneration = errors.New("generate: generation failed")

// Source is an item of context passed to the generator.
type Source struct {
	Surrogate string
	Modality  content.Modality
	// DocumentTitle and DocumentURL identify the source document.
	DocumentTitle string
	DocumentURL   string
	Location      string
	// Raw is the image path or CSV path for image and table sources.
	Raw string
}

func (s Source) Citation() Citation {
	return Citation{
		DocumentURL:   s.DocumentURL,
		DocumentTitle: s.DocumentTitle,
		Location:      s.Location,
		Modality:      s.Modality,
	}
}

// SourcesFromHits converts merged hits into generator sources.
func SourcesFromHits(hits []content.Hit) []Source {
	sources := make([]Source, len(hits))
	for i, h := range hits {
		sources[i] = Source{
			Surrogate:     h.Item.Surrogate,
			Modality:      h.Modality,
			DocumentTitle: h.Item.DocumentTitle,
			DocumentURL:   h.Item.DocumentURL,
			Location:      h.Item.Location,
			Raw:           h.Item.Raw,
		}
	}
	return sources
}

type Citation struct {
	DocumentURL   string
	DocumentTitle string
	Location      string
	Modality      content.Modality
}

// BuildContext numbers each source and labels where it came from.
func BuildContext(sources []Source) string {
	if len(sources) == 0 {
		return NoContext
	}
	var sb strings.Builder
	for i, s := range sources {
		fmt.Fprintf(&sb, "[%d] Context %s of %s", i+1, s.Modality.Origin(), s.DocumentTitle)
		if s.Location != "" {
			sb.WriteString(" (")
			sb.WriteString(s.Location)
			sb.WriteString(")")
		}
		if s.DocumentURL != "" {
			sb.WriteString(" - ")
			sb.WriteString(s.DocumentURL)
		}
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(s.Surrogate))
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func New(log *slog.Logger, llm llms.Model, systemPrompt string, userPrompt func(query, context string) (string, error)) *Generator {
	if userPrompt == nil {
		userPrompt = func(query, context string) (string, error) {
			return fmt.Sprintf(DefaultUserPrompt, context, query), nil
		}
	}
	return &Generator{
		log:          log,
		llm:          llm,
		systemPrompt: systemPrompt,
		userPrompt:   userPrompt,
		ImageRefs:    true,
	}
}

type Generator struct {
	log          *slog.Logger
	llm          llms.Model
	systemPrompt string
	userPrompt   func(query, context string) (string, error)
	// ImageRefs appends a "See image" line for each cited image.
	ImageRefs bool
}

type Request struct {
	Query   string
	History []content.Message
	Sources []Source
	// Stream receives the answer as it is generated, if set.
	Stream func(ctx context.Context, chunk []byte) error
}

type Answer struct {
	Text      string
	Citations []Citation
	// NoContext is true when no sources were available.
	NoContext bool
	// ImageRefs are the "See image" lines appended to Text.
	ImageRefs []string
}

func (g *Generator) Generate(ctx context.Context, req Request) (answer Answer, err error) {
	answer.NoContext = len(req.Sources) == 0

	prompt, err := g.userPrompt(req.Query, BuildContext(req.Sources))
	if err != nil {
		return answer, fmt.Errorf("generate: failed to build prompt: %w", err)
	}

	msgs := make([]llms.MessageContent, 0, len(req.History)+2)
	if g.systemPrompt != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, g.systemPrompt))
	}
	for _, m := range req.History {
		t := llms.ChatMessageTypeHuman
		if m.Role == content.RoleAI {
			t = llms.ChatMessageTypeAI
		}
		msgs = append(msgs, llms.TextParts(t, m.Content))
	}
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	var opts []llms.CallOption
	if req.Stream != nil {
		opts = append(opts, llms.WithStreamingFunc(req.Stream))
	}
	resp, err := g.llm.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return answer, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return answer, fmt.Errorf("%w: no choices returned", ErrGeneration)
	}

	answer.Text = strings.TrimSpace(resp.Choices[0].Content)
	if answer.Text == "" && answer.NoContext {
		answer.Text = NoContext
	}
	cited := citedSources(answer.Text, req.Sources)
	for _, s := range cited {
		answer.Citations = append(answer.Citations, s.Citation())
	}
	if g.ImageRefs {
		answer.ImageRefs = imageRefs(cited)
		if len(answer.ImageRefs) > 0 {
			answer.Text += "\n\n" + strings.Join(answer.ImageRefs, "\n")
		}
	}
	g.log.Debug("answer generated", slog.Int("sources", len(req.Sources)), slog.Int("citations", len(answer.Citations)))
	return answer, nil
}

var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

// citedSources returns the sources referenced by [n] markers in the answer,
// in order of first reference. An answer without markers cites every source.
func citedSources(answer string, sources []Source) (cited []Source) {
	seen := make(map[int]bool)
	for _, match := range citationMarker.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 || n > len(sources) || seen[n] {
			continue
		}
		seen[n] = true
		cited = append(cited, sources[n-1])
	}
	if len(cited) == 0 {
		return sources
	}
	return cited
}

func imageRefs(sources []Source) (refs []string) {
	for _, s := range sources {
		if s.Modality == content.ModalityImage && s.Raw != "" {
			refs = append(refs, "See image: "+s.Raw)
		}
	}
	return refs
}
