package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"drivechat/internal/models"
	"drivechat/pkg/pipeline"
)

// Querier is the query side of the pipeline the chat runs against.
type Querier interface {
	Query(ctx context.Context, question string, topK int) (pipeline.QueryResult, error)
	QueryStream(ctx context.Context, question string, topK int, fn func(chunk string)) (pipeline.QueryResult, error)
}

type SessionConfig struct {
	In        io.Reader
	Out       io.Writer
	Streaming bool
	TopK      int
}

type exchange struct {
	Query  string
	Answer string
}

// Session is the interactive chat loop. Input and output are plain
// streams so tests drive it with buffers.
type Session struct {
	config  SessionConfig
	querier Querier
	out     io.Writer
	history []exchange
}

func NewSession(querier Querier, config SessionConfig) *Session {
	if config.In == nil {
		config.In = os.Stdin
	}
	if config.Out == nil {
		config.Out = os.Stdout
	}
	if config.TopK == 0 {
		config.TopK = 5
	}
	return &Session{
		config:  config,
		querier: querier,
		out:     config.Out,
	}
}

// Run reads questions until /quit or EOF. Slash commands are handled
// locally; everything else goes to the query pipeline.
func (s *Session) Run(ctx context.Context) error {
	intro := color.New(color.FgCyan).FprintfFunc()
	intro(s.out, "\nChat with your documents. Type /help for commands, /quit to exit.\n")

	scanner := bufio.NewScanner(s.config.In)
	userPrompt := color.New(color.FgGreen).FprintfFunc()

	for {
		userPrompt(s.out, "\nYou: ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if quit := s.command(input); quit {
				return nil
			}
			continue
		}

		s.ask(ctx, input)
	}
}

// command handles a slash command and reports whether the session
// should end.
func (s *Session) command(input string) bool {
	switch strings.ToLower(input) {
	case "/quit", "/exit":
		fmt.Fprintln(s.out, "Goodbye!")
		return true
	case "/help":
		s.printHelp()
	case "/history":
		s.printHistory()
	case "/clear":
		s.history = nil
		fmt.Fprintln(s.out, "History cleared.")
	default:
		color.New(color.FgRed).Fprintf(s.out, "Unknown command: %s\n", input)
		fmt.Fprintln(s.out, "Type /help to see available commands.")
	}
	return false
}

func (s *Session) ask(ctx context.Context, question string) {
	assistant := color.New(color.FgCyan).FprintfFunc()

	var result pipeline.QueryResult
	var err error

	spinner := s.spinner(" Thinking...")
	if s.config.Streaming {
		first := true
		result, err = s.querier.QueryStream(ctx, question, s.config.TopK, func(chunk string) {
			if first {
				spinner.Finish()
				assistant(s.out, "\nAssistant: ")
				first = false
			}
			fmt.Fprint(s.out, chunk)
		})
		if first {
			spinner.Finish()
		}
		switch {
		case err != nil:
		case first:
			// Model answered without streaming any chunks.
			assistant(s.out, "\nAssistant: %s\n", result.Answer)
		default:
			fmt.Fprintln(s.out)
		}
	} else {
		result, err = s.querier.Query(ctx, question, s.config.TopK)
		spinner.Finish()
		if err == nil {
			assistant(s.out, "\nAssistant: %s\n", result.Answer)
		}
	}

	if err != nil {
		color.New(color.FgRed).Fprintf(s.out, "\nError: %v\n", err)
		return
	}

	s.printSources(result.Sources)
	s.history = append(s.history, exchange{Query: question, Answer: result.Answer})
}

func (s *Session) printHelp() {
	fmt.Fprintln(s.out, "Commands:")
	fmt.Fprintln(s.out, "  /help     show this help")
	fmt.Fprintln(s.out, "  /history  show past questions and answers")
	fmt.Fprintln(s.out, "  /clear    clear the conversation history")
	fmt.Fprintln(s.out, "  /quit     exit the chat")
}

func (s *Session) printHistory() {
	if len(s.history) == 0 {
		fmt.Fprintln(s.out, "No history yet.")
		return
	}
	for i, ex := range s.history {
		fmt.Fprintf(s.out, "%d. Q: %s\n", i+1, ex.Query)
		fmt.Fprintf(s.out, "   A: %s\n", preview(ex.Answer, 200))
	}
}

func (s *Session) printSources(sources []models.SearchResult) {
	if len(sources) == 0 {
		return
	}
	color.New(color.FgYellow).Fprintf(s.out, "\nSources:\n")
	for i, src := range sources {
		fmt.Fprintf(s.out, "  %d. %s (score %.2f): %s\n",
			i+1, sourceName(src), src.Score, preview(src.Chunk.Content, 100))
	}
}

func (s *Session) spinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(s.out),
	)
}

func sourceName(result models.SearchResult) string {
	if name, ok := result.Chunk.Metadata["name"].(string); ok && name != "" {
		return name
	}
	return result.Chunk.DocID
}

// preview collapses whitespace and cuts text at limit runes.
func preview(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
