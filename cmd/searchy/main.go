// Package main provides the searchy CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/premjatin/LLM-WebSearch/cli"
)

var (
	// Global flags
	configPath  string
	provider    string
	maxSteps    int
	verbose     bool
	metricsAddr string
	dbPath      string
	userID      string
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "searchy",
		Short: "Chat assistant that answers from a local knowledge base and the web",
		Long: `A tool-calling assistant that answers questions using two tools:

- InternalKnowledgeSearch: nearest-neighbour search over locally ingested documents
- WebSearch: live web search with page scraping for recent information

Conversations are persisted per user in SQLite.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file (default $SEARCHY_CONFIG)")
	root.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider (groq, openai, anthropic, deepseek, gemini)")
	root.PersistentFlags().IntVarP(&maxSteps, "max-steps", "m", 0, "Maximum orchestration steps per question (default 15)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")
	root.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	root.PersistentFlags().StringVar(&dbPath, "db", "", "Conversation database path")
	root.PersistentFlags().StringVarP(&userID, "user", "u", "", "User that owns the conversations")

	root.AddCommand(chatCmd())
	root.AddCommand(askCmd())
	root.AddCommand(ingestCmd())
	root.AddCommand(searchCmd())
	root.AddCommand(conversationsCmd())
	root.AddCommand(toolsCmd())

	return root
}

func options() cli.Options {
	return cli.Options{
		ConfigPath:  configPath,
		Provider:    provider,
		MaxSteps:    maxSteps,
		Verbose:     verbose,
		MetricsAddr: metricsAddr,
		DBPath:      dbPath,
		UserID:      userID,
	}
}

func chatCmd() *cobra.Command {
	var conversationID int64

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Start an interactive chat bound to a stored conversation.

Each question runs the agent over the last messages of the conversation.
Only your question and the final answer are stored.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Chat(cmd.Context(), conversationID, options(), os.Stdin, cmd.OutOrStdout())
		},
	}

	cmd.Flags().Int64Var(&conversationID, "conversation", 0, "Conversation to resume (0 starts a new one)")

	return cmd
}

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a single question without storing it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Ask(cmd.Context(), strings.Join(args, " "), options(), cmd.OutOrStdout())
		},
	}
}

func ingestCmd() *cobra.Command {
	var chunkSize, chunkOverlap int

	cmd := &cobra.Command{
		Use:   "ingest [path]",
		Short: "Rebuild the knowledge base from text files",
		Long: `Rebuild the vector store from a directory (every .txt file beneath it)
or a single file. The previous index and metadata are replaced.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ingest := cli.IngestOptions{
				Source:       args[0],
				ChunkSize:    chunkSize,
				ChunkOverlap: chunkOverlap,
			}
			return cli.Ingest(cmd.Context(), ingest, options(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Chunk size (default from config)")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", -1, "Chunk overlap (default from config)")

	return cmd
}

func searchCmd() *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Query the knowledge base directly",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Search(cmd.Context(), strings.Join(args, " "), k, options(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "Number of chunks to return (default from config)")

	return cmd
}

func conversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"convs"},
		Short:   "List stored conversations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListConversations(cmd.Context(), options(), cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a conversation and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid conversation id %q", args[0])
			}
			return cli.DeleteConversation(cmd.Context(), id, options(), cmd.OutOrStdout())
		},
	})

	return cmd
}

func toolsCmd() *cobra.Command {
	var verboseTools bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List available tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListTools(options(), verboseTools, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVarP(&verboseTools, "verbose", "V", false, "Show tool parameters")

	return cmd
}
