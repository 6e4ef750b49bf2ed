// Package scan walks a directory tree and collects the source files the
// analyzer can handle.
package scan

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"unremark/internal/logging"
)

// Scanner collects candidate files under a root.
type Scanner struct {
	// Ignore holds directory names, relative path prefixes, or globs
	// (e.g. "node_modules", "build/gen", "vendor/*").
	Ignore []string

	// Supported filters files; nil accepts everything.
	Supported func(path string) bool
}

// New creates a scanner.
func New(ignore []string, supported func(string) bool) *Scanner {
	return &Scanner{Ignore: ignore, Supported: supported}
}

// Walk returns the supported files under root in lexical order. A root that
// is itself a file is returned if supported.
func (s *Scanner) Walk(ctx context.Context, root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if s.accept(root) {
			return []string{root}, nil
		}
		return nil, nil
	}

	var files []string
	skipped := 0
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			logging.ScanDebug("skipping %s: %v", p, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if p == root {
			return nil
		}

		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			rel = p
		}
		if d.IsDir() {
			if isIgnoredRel(rel, d.Name(), s.Ignore) {
				skipped++
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if isIgnoredRel(rel, d.Name(), s.Ignore) {
			return nil
		}
		if s.accept(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	logging.Scan("found %d file(s) under %s (%d director(ies) ignored)", len(files), root, skipped)
	return files, nil
}

// Ignores reports whether a path relative to the scan root is excluded.
func (s *Scanner) Ignores(rel string) bool {
	return isIgnoredRel(rel, filepath.Base(rel), s.Ignore)
}

func (s *Scanner) accept(p string) bool {
	return s.Supported == nil || s.Supported(p)
}

func normalizePattern(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimSuffix(p, "/")
	p = strings.TrimSuffix(p, "\\")
	return filepath.ToSlash(p)
}

// isIgnoredRel reports whether a path relative to the root matches any
// pattern: a bare name, a path prefix, or a glob.
func isIgnoredRel(rel, name string, patterns []string) bool {
	rel = filepath.ToSlash(rel)
	for _, raw := range patterns {
		p := normalizePattern(raw)
		if p == "" {
			continue
		}
		if strings.ContainsAny(p, "*?[]") {
			if ok, _ := path.Match(p, rel); ok {
				return true
			}
			if ok, _ := path.Match(p, name); ok {
				return true
			}
			if strings.HasSuffix(p, "/*") && strings.HasPrefix(rel, strings.TrimSuffix(p, "/*")+"/") {
				return true
			}
			continue
		}
		if name == p || rel == p || strings.HasPrefix(rel, p+"/") {
			return true
		}
	}
	return false
}

// SplitList parses a comma-separated ignore flag.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
