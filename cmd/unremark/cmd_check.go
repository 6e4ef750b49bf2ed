package main

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"unremark/internal/analysis"
	"unremark/internal/cache"
	"unremark/internal/classify"
	"unremark/internal/extract"
	"unremark/internal/logging"
	"unremark/internal/report"
	"unremark/internal/scan"
	"unremark/internal/types"
)

func targetPath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

// ignoreList prefers the flag when given, else the configured list.
func ignoreList(cmd *cobra.Command) []string {
	if f := cmd.Flags().Lookup("ignore"); f != nil && f.Changed {
		return scan.SplitList(ignoreFlag)
	}
	if len(cfg.Scan.Ignore) > 0 {
		return cfg.Scan.Ignore
	}
	return scan.SplitList(ignoreFlag)
}

func openStore() *cache.Store {
	if noCache || cfg.Cache.Disabled {
		return nil
	}
	return cache.Load(cfg.Cache.Path, cfg.Cache.MaxEntries)
}

func saveStore(store *cache.Store) {
	if store == nil {
		return
	}
	// Failures are logged by the store; analysis results stand.
	_ = store.Save()
}

func newAnalyzer(store *cache.Store) (*analysis.Analyzer, *extract.Registry, error) {
	registry := extract.DefaultRegistry()
	classifier, err := classify.New(cfg.Classifier)
	if err != nil {
		return nil, nil, err
	}
	return analysis.New(registry, classifier, store), registry, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	store := openStore()
	analyzer, registry, err := newAnalyzer(store)
	if err != nil {
		return err
	}

	root := targetPath(args)
	scanner := scan.New(ignoreList(cmd), func(p string) bool { return registry.ForPath(p) != nil })
	files, err := scanner.Walk(ctx, root)
	if err != nil {
		return err
	}

	start := time.Now()
	var done int32
	total := len(files)
	results := analyzer.AnalyzeFiles(ctx, files, fixFlag, func(r types.AnalysisResult) {
		n := atomic.AddInt32(&done, 1)
		logging.Analysis("Progress: [%d/%d] %s", n, total, r.Path)
	})
	saveStore(store)
	logging.Analysis("Analysis completed in %.2f seconds", time.Since(start).Seconds())

	if jsonOutput {
		return report.WriteJSON(cmd.OutOrStdout(), results)
	}
	return report.WriteText(cmd.OutOrStdout(), results)
}
