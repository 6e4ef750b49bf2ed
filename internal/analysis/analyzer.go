// Package analysis runs the per-file pipeline: cache lookup, extraction,
// classification, write-through and the optional in-place fix.
package analysis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"unremark/internal/cache"
	"unremark/internal/classify"
	"unremark/internal/extract"
	"unremark/internal/logging"
	"unremark/internal/rewrite"
	"unremark/internal/types"
)

// Analyzer owns the collaborators of one run. The cache may be nil.
type Analyzer struct {
	registry   *extract.Registry
	classifier classify.Classifier
	cache      *cache.Store
}

// New creates an analyzer.
func New(registry *extract.Registry, classifier classify.Classifier, store *cache.Store) *Analyzer {
	if registry == nil {
		registry = extract.DefaultRegistry()
	}
	return &Analyzer{registry: registry, classifier: classifier, cache: store}
}

// Supported reports whether path has a registered grammar.
func (a *Analyzer) Supported(path string) bool {
	return a.registry.ForPath(path) != nil
}

// AnalyzeFile analyses one file. Unreadable or unsupported files yield an
// empty result rather than an error.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string, fix bool) types.AnalysisResult {
	result := types.AnalysisResult{Path: path}

	canonical, err := canonicalPath(path)
	if err != nil {
		logging.AnalysisDebug("cannot resolve %s: %v", path, err)
		return result
	}
	info, err := os.Stat(canonical)
	if err != nil || !info.Mode().IsRegular() {
		logging.AnalysisDebug("cannot stat %s: %v", canonical, err)
		return result
	}
	grammar := a.registry.ForPath(canonical)
	if grammar == nil {
		return result
	}
	mtime := uint64(info.ModTime().Unix())

	var source []byte
	readSource := func() bool {
		if source != nil {
			return true
		}
		source, err = os.ReadFile(canonical)
		if err != nil {
			logging.AnalysisWarn("cannot read %s: %v", canonical, err)
			return false
		}
		return true
	}

	if cached, ok := a.cacheGet(canonical, mtime); ok {
		logging.AnalysisDebug("cache hit: %s (%d redundant)", canonical, len(cached.RedundantComments))
		result.RedundantComments = cached.RedundantComments
		result.Candidates = cached.Candidates
		result.Cached = true
	} else {
		if !readSource() {
			return result
		}
		start := time.Now()
		fresh := a.classifySource(ctx, grammar, source)
		result.RedundantComments = fresh.RedundantComments
		result.Candidates = fresh.Candidates
		result.Errors = fresh.Errors

		switch {
		case result.HasErrors():
			logging.AnalysisWarn("%s: %d error(s), result not cached", canonical, len(result.Errors))
		case ctx.Err() != nil:
			logging.AnalysisDebug("%s: run cancelled, result not cached", canonical)
		default:
			a.cachePut(canonical, mtime, result.Candidates, result.RedundantComments)
		}
		logging.AnalysisDebug("analysed %s: %d candidates, %d redundant in %v",
			canonical, result.Candidates, len(result.RedundantComments), time.Since(start))
	}

	if fix && len(result.RedundantComments) > 0 && readSource() {
		if err := a.fix(canonical, info.Mode().Perm(), grammar, source, result.RedundantComments); err != nil {
			logging.AnalysisError("failed to fix %s: %v", canonical, err)
			result.FixError = err.Error()
		} else {
			result.Fixed = true
		}
	}
	return result
}

// AnalyzeSource analyses in-memory text without touching the cache.
func (a *Analyzer) AnalyzeSource(ctx context.Context, grammar *extract.Grammar, source []byte) types.AnalysisResult {
	return a.classifySource(ctx, grammar, source)
}

// AnalyzeFiles analyses paths concurrently. Results come back in input
// order; progress, if set, is called as each file completes.
func (a *Analyzer) AnalyzeFiles(ctx context.Context, paths []string, fix bool, progress func(types.AnalysisResult)) []types.AnalysisResult {
	results := make([]types.AnalysisResult, len(paths))
	var g errgroup.Group
	for i, p := range paths {
		g.Go(func() error {
			results[i] = a.AnalyzeFile(ctx, p, fix)
			if progress != nil {
				progress(results[i])
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (a *Analyzer) classifySource(ctx context.Context, grammar *extract.Grammar, source []byte) types.AnalysisResult {
	var result types.AnalysisResult
	comments, err := extract.Extract(ctx, grammar, source)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("extract: %v", err))
		return result
	}
	result.Candidates = len(comments)
	if len(comments) == 0 || a.classifier == nil {
		return result
	}

	batch := a.classifier.Classify(ctx, comments)
	redundant := append([]types.CommentInfo(nil), batch.Redundant...)
	types.SortByLine(redundant)
	result.RedundantComments = redundant
	for _, err := range batch.Errors {
		result.Errors = append(result.Errors, err.Error())
	}
	return result
}

func (a *Analyzer) fix(path string, perm os.FileMode, grammar *extract.Grammar, source []byte, comments []types.CommentInfo) error {
	updated := rewrite.Rewrite(string(source), comments, grammar.Protect)
	if updated == string(source) {
		return nil
	}
	if err := os.WriteFile(path, []byte(updated), perm); err != nil {
		return err
	}
	logging.Rewrite("removed %d comment(s) from %s", len(comments), path)
	return nil
}

func (a *Analyzer) cacheGet(path string, mtime uint64) (cache.Entry, bool) {
	if a.cache == nil {
		return cache.Entry{}, false
	}
	return a.cache.Get(path, mtime)
}

func (a *Analyzer) cachePut(path string, mtime uint64, candidates int, comments []types.CommentInfo) {
	if a.cache == nil {
		return
	}
	a.cache.Put(path, mtime, candidates, comments)
}

func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
