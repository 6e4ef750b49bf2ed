package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"unremark/internal/report"
	"unremark/internal/scan"
	"unremark/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Re-analyse source files as they change",
	Long: `Watches a directory tree and analyses each supported file after it is
written. Findings are printed as they arrive; the cache is saved after
every analysis. Stop with Ctrl-C.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	store := openStore()
	analyzer, _, err := newAnalyzer(store)
	if err != nil {
		return err
	}

	root := targetPath(args)
	scanner := scan.New(ignoreList(cmd), nil)
	out := cmd.OutOrStdout()

	w, err := watch.New(root, watch.Options{
		Ignored:   func(rel string, _ bool) bool { return scanner.Ignores(rel) },
		Supported: analyzer.Supported,
	}, func(ctx context.Context, path string) {
		r := analyzer.AnalyzeFile(ctx, path, false)
		saveStore(store)
		if err := report.WriteFindings(out, r); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	fmt.Fprintf(out, "Watching %s (Ctrl-C to stop)\n", root)
	<-ctx.Done()
	return nil
}

func init() {
	watchCmd.Flags().StringVar(&ignoreFlag, "ignore", "venv,node_modules,.git,__pycache__", "Comma-separated directories or globs to skip")
}
