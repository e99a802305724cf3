package main

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/noah-analytics/noah-server/internal/logging"
	"github.com/noah-analytics/noah-server/internal/notes"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s <notes.json> <index-dir>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nExample:\n")
		fmt.Fprintf(os.Stderr, "  %s exports/notes.json ~/.noah/notes/index\n", os.Args[0])
		os.Exit(1)
	}

	logger, err := logging.Console("info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(os.Args[1], os.Args[2], logger); err != nil {
		logger.Fatal("indexing failed", zap.Error(err))
	}
}

func run(exportFile, indexDir string, logger *zap.Logger) error {
	logger.Info("progress note indexer", zap.Int("schema_version", notes.SchemaVersion))

	start := time.Now()
	list, err := notes.LoadExport(exportFile)
	if err != nil {
		return err
	}

	passages, chars := 0, 0
	for _, n := range list {
		passages += len(notes.Passages(n))
		chars += len(n.Text)
	}
	logger.Info("parsed notes export",
		zap.String("file", exportFile),
		zap.Int("notes", len(list)),
		zap.Int("passages", passages),
		zap.Int("chars", chars))

	// Rebuild holds the index lock; a running server picks the new index up
	// through its reload route or tool, which waits on the same lock.
	searcher := notes.NewSearcher(indexDir, logger)
	if err := searcher.Rebuild(list); err != nil {
		return err
	}
	count, err := searcher.DocCount()
	if cerr := searcher.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	logger.Info("index ready",
		zap.String("dir", indexDir),
		zap.Uint64("documents", count),
		zap.Duration("took", time.Since(start)))
	logger.Info("running servers serve the previous index until POST /api/notes/reload")
	return nil
}
