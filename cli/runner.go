// Command execution for CLI commands.
//
// Information Hiding:
// - Command dispatch logic hidden
// - Output formatting hidden

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"github.com/premjatin/LLM-WebSearch/agent"
	"github.com/premjatin/LLM-WebSearch/internal/logger"
	"github.com/premjatin/LLM-WebSearch/llm"
	"github.com/premjatin/LLM-WebSearch/rag"
	"github.com/premjatin/LLM-WebSearch/storage"
	"github.com/premjatin/LLM-WebSearch/tools"
)

// Ask answers one question without reading or writing conversation history.
func Ask(ctx context.Context, question string, opts Options, out io.Writer) error {
	app, err := NewApp(opts)
	if err != nil {
		return err
	}
	defer app.Close()

	a, err := app.Agent(ctx)
	if err != nil {
		return err
	}

	reply, err := app.Driver(a, nil).Answer(ctx, question, nil)
	if err != nil {
		return describeRunError(err)
	}

	fmt.Fprintf(out, "%s\n", reply.Answer)
	if opts.Verbose {
		printRun(out, reply.Run)
	}
	return nil
}

// Chat starts an interactive session bound to a stored conversation.
// A zero conversationID starts a new conversation.
func Chat(ctx context.Context, conversationID int64, opts Options, in io.Reader, out io.Writer) error {
	app, err := NewApp(opts)
	if err != nil {
		return err
	}
	defer app.Close()

	a, err := app.Agent(ctx)
	if err != nil {
		return err
	}

	store, err := app.Conversations()
	if err != nil {
		return err
	}
	defer store.Close()

	userID := app.Settings.Storage.UserID
	conv, err := store.GetOrCreateConversation(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	if conversationID != 0 && conv.ID != conversationID {
		fmt.Fprintf(out, "Conversation %d not found, started conversation %d\n", conversationID, conv.ID)
	} else if conv.MessageCount > 0 {
		fmt.Fprintf(out, "Resuming conversation %d (%d messages)\n", conv.ID, conv.MessageCount)
	} else {
		fmt.Fprintf(out, "Started conversation %d\n", conv.ID)
	}

	driver := app.Driver(a, store)
	fmt.Fprintf(out, "Chat with %s. Type 'exit' to quit, '/new' for a new conversation.\n\n", a.Name())

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "/new":
			conv, err = store.GetOrCreateConversation(ctx, userID, 0)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Started conversation %d\n\n", conv.ID)
			continue
		}

		reply, err := driver.Run(ctx, conv.Ref(), input)
		if err != nil {
			fmt.Fprintf(out, "\nError: %v\n\n", describeRunError(err))
			continue
		}
		fmt.Fprintf(out, "\n%s\n\n", reply.Answer)
		if opts.Verbose {
			printRun(out, reply.Run)
		}
	}

	return scanner.Err()
}

// IngestOptions holds ingest command flags.
type IngestOptions struct {
	Source       string
	ChunkSize    int
	ChunkOverlap int
}

// Ingest rebuilds the vector store from the source documents.
func Ingest(ctx context.Context, ingest IngestOptions, opts Options, out io.Writer) error {
	app, err := NewApp(opts)
	if err != nil {
		return err
	}
	defer app.Close()

	embedder, err := app.Embedder()
	if err != nil {
		return err
	}

	s := app.Settings.RAG
	ingestOpts := rag.IngestOptions{
		Source:       ingest.Source,
		ChunkSize:    s.ChunkSize,
		ChunkOverlap: s.ChunkOverlap,
	}
	if ingest.ChunkSize > 0 {
		ingestOpts.ChunkSize = ingest.ChunkSize
	}
	if ingest.ChunkOverlap >= 0 {
		ingestOpts.ChunkOverlap = ingest.ChunkOverlap
	}
	if s.Tokenizer != "" {
		length, err := rag.TokenLength(s.Tokenizer)
		if err != nil {
			return err
		}
		ingestOpts.Length = length
	}

	report, err := rag.Ingest(ctx, app.StoreConfig(), embedder, ingestOpts, logger.Component(app.Log, "ingest"))
	if err != nil {
		return err
	}

	cfg := app.StoreConfig()
	fmt.Fprintf(out, "Ingested %d documents into %d chunks (%s, dim %d) in %s\n",
		report.Documents, report.Chunks, report.Backend, report.Dimension, report.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  index:    %s\n  metadata: %s\n", cfg.IndexPath(), cfg.MetadataPath())
	return nil
}

// Search queries the vector store directly and prints the nearest chunks.
func Search(ctx context.Context, query string, k int, opts Options, out io.Writer) error {
	app, err := NewApp(opts)
	if err != nil {
		return err
	}
	defer app.Close()

	store, err := app.Knowledge(ctx)
	if err != nil {
		return err
	}
	if !store.IsReady() {
		return fmt.Errorf("vector store not ready: %w", store.LoadError())
	}
	if k <= 0 {
		k = app.Settings.RAG.TopK
	}

	results, err := store.Search(ctx, query, k)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(out, "[%d] %s (distance %.4f)\n%s\n\n", i+1, r.Source, r.Distance, truncateString(r.Text, maxResultPreviewLen))
	}
	return nil
}

// ListConversations prints the user's conversations, newest first.
func ListConversations(ctx context.Context, opts Options, out io.Writer) error {
	app, err := NewApp(opts)
	if err != nil {
		return err
	}
	defer app.Close()

	store, err := app.Conversations()
	if err != nil {
		return err
	}
	defer store.Close()

	return printConversations(ctx, store, app.Settings.Storage.UserID, out)
}

// DeleteConversation removes one of the user's conversations.
func DeleteConversation(ctx context.Context, id int64, opts Options, out io.Writer) error {
	app, err := NewApp(opts)
	if err != nil {
		return err
	}
	defer app.Close()

	store, err := app.Conversations()
	if err != nil {
		return err
	}
	defer store.Close()

	ref := storage.ConversationRef{UserID: app.Settings.Storage.UserID, ConversationID: id}
	if err := store.DeleteConversation(ctx, ref); err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted conversation %d\n", id)
	return nil
}

func printConversations(ctx context.Context, store storage.ConversationStore, userID string, out io.Writer) error {
	conversations, err := store.ListConversations(ctx, userID)
	if err != nil {
		return err
	}
	if len(conversations) == 0 {
		fmt.Fprintf(out, "No conversations for %s.\n", userID)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tMESSAGES")
	for _, c := range conversations {
		fmt.Fprintf(w, "%d\t%s\t%d\n", c.ID, c.CreatedAt.Local().Format(time.DateTime), c.MessageCount)
	}
	return w.Flush()
}

// ListTools lists the tools offered to the model.
func ListTools(opts Options, verbose bool, out io.Writer) error {
	settings, err := LoadSettings(opts)
	if err != nil {
		return err
	}
	app := &App{Settings: settings, Log: zerolog.Nop()}
	return printTools(app.Tools(nil), verbose, out)
}

func printTools(toolList []tools.Tool, verbose bool, out io.Writer) error {
	registry := tools.NewRegistry()
	for _, t := range toolList {
		if err := registry.Register(t); err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "Available tools:")
	fmt.Fprintln(out)

	if verbose {
		fmt.Fprintln(out, registry.Description())
		fmt.Fprintln(out)
		return nil
	}
	for _, meta := range registry.List() {
		fmt.Fprintf(out, "  %s\n", meta.Name)
		fmt.Fprintf(out, "    %s\n\n", meta.Description)
	}
	return nil
}

// describeRunError turns a fatal run error into a user-facing message.
func describeRunError(err error) error {
	var limit *agent.StepLimitError
	if errors.As(err, &limit) {
		return fmt.Errorf("gave up after %d steps without a final answer (raise --max-steps to allow more)", limit.Steps)
	}
	return err
}

const (
	maxObservationLen   = 200
	maxResultPreviewLen = 400
)

func printRun(out io.Writer, run agent.Result) {
	fmt.Fprintln(out, "--- Run ---")
	for _, inv := range run.Invocations {
		status := "ok"
		if !inv.Success {
			status = "failed"
		}
		fmt.Fprintf(out, "[step %d] %s (%s, %s)\n", inv.Step, inv.Name, status, inv.Duration.Round(time.Millisecond))
	}
	for _, msg := range run.Messages {
		if msg.Role() == llm.RoleTool {
			fmt.Fprintf(out, "    %s\n", truncateString(msg.Text(), maxObservationLen))
		}
	}
	fmt.Fprintf(out, "Steps: %d  LLM calls: %d  Tokens: %d prompt / %d completion / %d total  Duration: %s\n",
		run.Steps, run.LLMCalls,
		run.Usage.PromptTokens, run.Usage.CompletionTokens, run.Usage.TotalTokens,
		run.Duration.Round(time.Millisecond))
	fmt.Fprintln(out, "-----------")
	fmt.Fprintln(out)
}

// truncateString truncates a string to maxLen runes, preserving UTF-8 boundaries.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
