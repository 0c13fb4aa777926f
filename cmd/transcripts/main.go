// Package main provides the transcripts CLI for managing stored lecture
// transcripts and their vector index.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/lecture-rag/internal/app"
	"github.com/bull/lecture-rag/internal/config"
	"github.com/bull/lecture-rag/internal/indexer"
	"github.com/bull/lecture-rag/internal/transcript"
)

var (
	configPath   string
	searchSource string
	searchLimit  int
	listStatus   string
	clearIndex   bool
)

var rootCmd = &cobra.Command{
	Use:   "transcripts",
	Short: "Lecture transcript management tool",
	Long: `CLI tool for extracting, replacing and indexing lecture transcripts.

Environment variables:
  DATA_DIR        Transcript and chat database directory (default: ./data)
  QDRANT_HOST     Qdrant hostname; empty disables vector search
  QDRANT_PORT     Qdrant gRPC port (default: 6334)
  OPENAI_API_KEY  OpenAI API key for embeddings (optional, fallback otherwise)
  CONFIG_FILE     Optional TOML configuration file`,
	SilenceUsage: true,
}

var ensureCmd = &cobra.Command{
	Use:   "ensure <source-id>...",
	Short: "Extract and index transcripts that are not stored yet",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEnsure,
}

var replaceCmd = &cobra.Command{
	Use:   "replace <source-id> <file>",
	Short: "Replace a transcript with the text of a markdown file",
	Args:  cobra.ExactArgs(2),
	RunE:  runReplace,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search transcript excerpts",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <source-id>",
	Short: "Delete the vectors of a source",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var regenerateCmd = &cobra.Command{
	Use:   "regenerate <source-id>",
	Short: "Discard a stored transcript and extract it again",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegenerate,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Write every stored transcript to the vector index again",
	Args:  cobra.NoArgs,
	RunE:  runReindex,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored transcripts",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var embedCmd = &cobra.Command{
	Use:   "embed <text>...",
	Short: "Print embedding diagnostics for each argument",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEmbed,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML configuration file")

	searchCmd.Flags().StringVar(&searchSource, "source", "", "restrict to one source id")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 5, "maximum number of excerpts")
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (extracted, indexed, unavailable)")
	reindexCmd.Flags().BoolVar(&clearIndex, "clear", false, "drop and recreate the collection first")

	rootCmd.AddCommand(ensureCmd, replaceCmd, searchCmd, deleteCmd, regenerateCmd, reindexCmd, listCmd, embedCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// withApp loads configuration and runs fn with a ready App.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	a, err := app.New(cfg, app.NewLogger(cfg.Logging))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

func runEnsure(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		pipeline := indexer.NewPipeline(a.Retrieval, a.Transcripts, nil)
		result, err := pipeline.EnsureAll(ctx, args)
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	})
}

func runReplace(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[1], err)
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		t, err := a.Retrieval.ReplaceTranscript(ctx, args[0], string(content))
		if err != nil {
			return err
		}
		fmt.Printf("Replaced %s: %d chunks, status %s\n", t.SourceID, len(t.Chunks), t.Status)
		return nil
	})
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		res, err := a.Retrieval.Search(ctx, query, searchSource, searchLimit)
		if err != nil {
			return err
		}
		fmt.Printf("Mode: %s\n", res.Mode)
		if len(res.Matches) == 0 {
			fmt.Println("No matching excerpts.")
			return nil
		}
		for _, m := range res.Matches {
			fmt.Printf("\n[%s]\n%s\n", transcript.FormatRange(m.StartTime, m.EndTime), m.Text)
		}
		return nil
	})
}

func runDelete(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if err := a.Retrieval.DeleteVectors(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted vectors for %s\n", args[0])
		return nil
	})
}

func runRegenerate(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		t, err := a.Retrieval.Regenerate(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Regenerated %s: %d chunks, status %s\n", t.SourceID, len(t.Chunks), t.Status)
		return nil
	})
}

func runReindex(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if !a.Index.Available(ctx) {
			return fmt.Errorf("vector index unavailable; set QDRANT_HOST")
		}
		if clearIndex {
			fmt.Println("Clearing collection...")
			if err := a.Qdrant().ClearCollection(ctx); err != nil {
				return err
			}
		}
		result, err := indexer.NewPipeline(a.Retrieval, a.Transcripts, nil).Reindex(ctx)
		if err != nil {
			return err
		}
		printResult(result)
		if qs := a.Qdrant(); qs != nil {
			if n, err := qs.CountBySource(ctx, ""); err == nil {
				fmt.Printf("  Points in collection: %d\n", n)
			}
		}
		return nil
	})
}

func runList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		items, err := a.Transcripts.List(ctx, transcript.Status(listStatus))
		if err != nil {
			return err
		}
		for _, t := range items {
			fmt.Printf("%-16s %-12s %-9s %4d chunks  %s\n",
				t.SourceID, t.Status, t.Origin, len(t.Chunks), t.UpdatedAt.Format(time.RFC3339))
		}
		fmt.Printf("%d transcripts\n", len(items))
		return nil
	})
}

func runEmbed(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		vecs, err := a.Embedder.EmbedBatch(ctx, args)
		if err != nil {
			return err
		}
		source := "remote"
		if !a.Embedder.Available() {
			source = "fallback"
		}
		for i, vec := range vecs {
			head := vec
			if len(head) > 4 {
				head = head[:4]
			}
			fmt.Printf("%q: dim=%d source=%s head=%v\n", args[i], len(vec), source, head)
		}
		return nil
	})
}

func printResult(result *indexer.Result) {
	fmt.Println()
	fmt.Println("Done!")
	fmt.Printf("  Sources: %d/%d\n", result.SuccessfulSources, result.TotalSources)
	fmt.Printf("  Unavailable: %d\n", result.Unavailable)
	fmt.Printf("  Chunks: %d (%d indexed)\n", result.TotalChunks, result.IndexedChunks)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Millisecond))

	if len(result.FailedSources) > 0 {
		fmt.Println()
		fmt.Println("Failed sources:")
		for _, failed := range result.FailedSources {
			fmt.Printf("  - %s: %s\n", failed.SourceID, failed.Reason)
		}
	}
}
