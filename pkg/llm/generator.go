package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/prompts"

	"drivechat/internal/models"
)

const systemPrompt = "You are a helpful assistant. Answer the question based on the context if available, otherwise use your general knowledge."

const defaultTemplate = `Context from documents:
{{.context}}

Question: {{.question}}

If the context is empty or irrelevant, still provide a helpful answer based on your general knowledge, but mention that the information wasn't found in the indexed documents.

Answer:`

type GeneratorConfig struct {
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	Template    string
}

// Generator answers questions grounded in retrieved chunks through an
// Ollama chat model.
type Generator struct {
	config GeneratorConfig
	llm    llms.Model
	prompt prompts.PromptTemplate
}

func NewGenerator(config GeneratorConfig) (*Generator, error) {
	if config.Model == "" {
		config.Model = "llama3.2:latest"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}

	model, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return NewGeneratorWithModel(model, config), nil
}

// NewGeneratorWithModel builds a Generator on a caller-supplied model.
// Tests inject fakes here.
func NewGeneratorWithModel(model llms.Model, config GeneratorConfig) *Generator {
	if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.Temperature == 0 {
		config.Temperature = 0.7
	}
	if config.Template == "" {
		config.Template = defaultTemplate
	}

	return &Generator{
		config: config,
		llm:    model,
		prompt: prompts.PromptTemplate{
			Template:       config.Template,
			InputVariables: []string{"context", "question"},
			TemplateFormat: prompts.TemplateFormatGoTemplate,
		},
	}
}

func (g *Generator) Generate(ctx context.Context, question string, results []models.SearchResult) (string, error) {
	content, err := g.buildMessages(question, results)
	if err != nil {
		return "", err
	}

	resp, err := g.llm.GenerateContent(ctx, content,
		llms.WithMaxTokens(g.config.MaxTokens),
		llms.WithTemperature(g.config.Temperature),
	)
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", connectionHint(err, g.config.BaseURL))
	}
	return firstChoice(resp)
}

// Stream generates an answer while forwarding each token chunk to fn.
// The full answer is returned once the model finishes.
func (g *Generator) Stream(ctx context.Context, question string, results []models.SearchResult, fn func(chunk string)) (string, error) {
	content, err := g.buildMessages(question, results)
	if err != nil {
		return "", err
	}

	var answer strings.Builder
	resp, err := g.llm.GenerateContent(ctx, content,
		llms.WithMaxTokens(g.config.MaxTokens),
		llms.WithTemperature(g.config.Temperature),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			answer.Write(chunk)
			if fn != nil {
				fn(string(chunk))
			}
			return nil
		}),
	)
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", connectionHint(err, g.config.BaseURL))
	}

	if answer.Len() > 0 {
		return answer.String(), nil
	}
	return firstChoice(resp)
}

func (g *Generator) buildMessages(question string, results []models.SearchResult) ([]llms.MessageContent, error) {
	promptText, err := g.prompt.Format(map[string]any{
		"context":  FormatContext(results),
		"question": question,
	})
	if err != nil {
		return nil, fmt.Errorf("formatting prompt: %w", err)
	}

	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, promptText),
	}, nil
}

// FormatContext renders retrieved chunks as the context block fed to
// the model, one source-labelled passage per chunk.
func FormatContext(results []models.SearchResult) string {
	var b strings.Builder
	for _, r := range results {
		if name, ok := r.Chunk.Metadata["name"].(string); ok && name != "" {
			fmt.Fprintf(&b, "Source: %s\n", name)
		}
		b.WriteString(r.Chunk.Content)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

func firstChoice(resp *llms.ContentResponse) (string, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from model")
	}
	return resp.Choices[0].Content, nil
}

// connectionHint rewraps connection-refused errors with the Ollama URL
// so the user knows which service to start.
func connectionHint(err error, baseURL string) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("cannot reach Ollama at %s, is it running? %w", baseURL, err)
	}
	return err
}
