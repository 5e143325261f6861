package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"drivechat/internal/models"
)

type fakeModel struct {
	response     string
	streamChunks []string
	noChoices    bool
	err          error

	lastMessages []llms.MessageContent
	lastOpts     llms.CallOptions
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastMessages = messages

	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}
	f.lastOpts = opts

	if opts.StreamingFunc != nil {
		for _, chunk := range f.streamChunks {
			if err := opts.StreamingFunc(ctx, []byte(chunk)); err != nil {
				return nil, err
			}
		}
	}

	if f.noChoices {
		return &llms.ContentResponse{}, nil
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.response}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return f.response, nil
}

func promptText(t *testing.T, msg llms.MessageContent) string {
	t.Helper()
	require.Len(t, msg.Parts, 1)
	part, ok := msg.Parts[0].(llms.TextContent)
	require.True(t, ok)
	return part.Text
}

func searchResults() []models.SearchResult {
	return []models.SearchResult{
		{
			Chunk: models.Chunk{
				Content:  "Go was designed at Google in 2007.",
				Metadata: map[string]interface{}{"name": "go-history.md"},
			},
			Score: 0.91,
		},
		{
			Chunk: models.Chunk{
				Content: "The gopher is the project mascot.",
			},
			Score: 0.74,
		},
	}
}

func TestGenerate(t *testing.T) {
	model := &fakeModel{response: "Go was created at Google."}
	gen := NewGeneratorWithModel(model, GeneratorConfig{})

	answer, err := gen.Generate(context.Background(), "where was Go created?", searchResults())
	require.NoError(t, err)
	assert.Equal(t, "Go was created at Google.", answer)

	require.Len(t, model.lastMessages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.lastMessages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.lastMessages[1].Role)

	system := promptText(t, model.lastMessages[0])
	assert.Contains(t, system, "helpful assistant")

	human := promptText(t, model.lastMessages[1])
	assert.Contains(t, human, "Source: go-history.md")
	assert.Contains(t, human, "Go was designed at Google in 2007.")
	assert.Contains(t, human, "The gopher is the project mascot.")
	assert.Contains(t, human, "Question: where was Go created?")
}

func TestGenerateDefaults(t *testing.T) {
	model := &fakeModel{response: "ok"}
	gen := NewGeneratorWithModel(model, GeneratorConfig{})

	_, err := gen.Generate(context.Background(), "q", nil)
	require.NoError(t, err)

	assert.Equal(t, 2000, model.lastOpts.MaxTokens)
	assert.InDelta(t, 0.7, model.lastOpts.Temperature, 0.001)
}

func TestGenerateEmptyContext(t *testing.T) {
	model := &fakeModel{response: "From general knowledge: yes."}
	gen := NewGeneratorWithModel(model, GeneratorConfig{MaxTokens: 100, Temperature: 0.2})

	answer, err := gen.Generate(context.Background(), "is water wet?", nil)
	require.NoError(t, err)
	assert.Equal(t, "From general knowledge: yes.", answer)

	human := promptText(t, model.lastMessages[1])
	assert.NotContains(t, human, "Source:")
	assert.Contains(t, human, "Question: is water wet?")
	assert.Equal(t, 100, model.lastOpts.MaxTokens)
}

func TestGenerateNoChoices(t *testing.T) {
	model := &fakeModel{noChoices: true}
	gen := NewGeneratorWithModel(model, GeneratorConfig{})

	_, err := gen.Generate(context.Background(), "q", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no response from model")
}

func TestGenerateError(t *testing.T) {
	model := &fakeModel{err: errors.New("model offline")}
	gen := NewGeneratorWithModel(model, GeneratorConfig{})

	_, err := gen.Generate(context.Background(), "q", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model offline")
}

func TestStream(t *testing.T) {
	model := &fakeModel{streamChunks: []string{"Hel", "lo ", "there"}}
	gen := NewGeneratorWithModel(model, GeneratorConfig{})

	var chunks []string
	answer, err := gen.Stream(context.Background(), "say hello", nil, func(chunk string) {
		chunks = append(chunks, chunk)
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello there", answer)
	assert.Equal(t, []string{"Hel", "lo ", "there"}, chunks)
	assert.NotNil(t, model.lastOpts.StreamingFunc)
}

func TestStreamFallsBackToChoice(t *testing.T) {
	// Models that ignore the streaming callback still produce a final choice.
	model := &fakeModel{response: "full answer"}
	gen := NewGeneratorWithModel(model, GeneratorConfig{})

	answer, err := gen.Stream(context.Background(), "q", nil, func(string) {})
	require.NoError(t, err)
	assert.Equal(t, "full answer", answer)
}

func TestFormatContext(t *testing.T) {
	text := FormatContext(searchResults())
	assert.Contains(t, text, "Source: go-history.md")
	assert.Contains(t, text, "Go was designed at Google in 2007.")
	assert.Contains(t, text, "The gopher is the project mascot.")

	assert.Empty(t, FormatContext(nil))
}

func TestCustomTemplate(t *testing.T) {
	model := &fakeModel{response: "ok"}
	gen := NewGeneratorWithModel(model, GeneratorConfig{
		Template: "CTX={{.context}} Q={{.question}}",
	})

	_, err := gen.Generate(context.Background(), "why?", nil)
	require.NoError(t, err)

	human := promptText(t, model.lastMessages[1])
	assert.Equal(t, "CTX= Q=why?", human)
}
