// Package cache persists per-file analysis results keyed by modification time.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"unremark/internal/logging"
	"unremark/internal/types"
)

// DefaultMaxEntries bounds the number of files remembered.
const DefaultMaxEntries = 10000

// Entry is the cached verdict for one file.
type Entry struct {
	LastModified      uint64              `json:"last_modified"`
	RedundantComments []types.CommentInfo `json:"redundant_comments"`
	// Candidates is the number of comments that were sent for
	// classification. Zero means the file had none.
	Candidates int `json:"candidates,omitempty"`
}

type fileFormat struct {
	Entries map[string]Entry `json:"entries"`
}

// Store maps canonical file paths to entries. A single RWMutex guards the
// whole map and is never held across file or network I/O.
type Store struct {
	mu    sync.RWMutex
	path  string
	lru   *simplelru.LRU[string, Entry]
	dirty bool
}

// New returns an empty store that saves to path.
func New(path string, maxEntries int) *Store {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	lru, err := simplelru.NewLRU[string, Entry](maxEntries, nil)
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}
	return &Store{path: path, lru: lru}
}

// Load reads the store at path. A missing or malformed file yields an
// empty store.
func Load(path string, maxEntries int) *Store {
	s := New(path, maxEntries)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.CacheWarn("cannot read cache %s: %v", path, err)
		}
		return s
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		logging.CacheWarn("corrupt cache %s, starting fresh: %v", path, err)
		return s
	}

	// Oldest first so the most recently modified files survive the cap.
	paths := make([]string, 0, len(f.Entries))
	for p := range f.Entries {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		a, b := f.Entries[paths[i]], f.Entries[paths[j]]
		if a.LastModified != b.LastModified {
			return a.LastModified < b.LastModified
		}
		return paths[i] < paths[j]
	})
	for _, p := range paths {
		s.lru.Add(p, f.Entries[p])
	}

	logging.CacheDebug("loaded %d entries from %s", s.lru.Len(), path)
	return s
}

// Path returns the file the store saves to.
func (s *Store) Path() string { return s.path }

// Len returns the number of cached files.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lru.Len()
}

// Get returns the cached entry for path if it matches mtime. Entries
// written before candidate counts were recorded report at least one
// candidate per redundant comment.
func (s *Store) Get(path string, mtime uint64) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.lru.Peek(path)
	if !ok || e.LastModified != mtime {
		return Entry{}, false
	}
	out := Entry{
		LastModified:      e.LastModified,
		RedundantComments: make([]types.CommentInfo, len(e.RedundantComments)),
		Candidates:        max(e.Candidates, len(e.RedundantComments)),
	}
	copy(out.RedundantComments, e.RedundantComments)
	return out, true
}

// Put records the verdict for path at mtime, replacing any earlier entry.
func (s *Store) Put(path string, mtime uint64, candidates int, comments []types.CommentInfo) {
	stored := make([]types.CommentInfo, len(comments))
	copy(stored, comments)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Add(path, Entry{LastModified: mtime, RedundantComments: stored, Candidates: candidates})
	s.dirty = true
}

// Clear drops every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Purge()
	s.dirty = true
}

// Save writes the store to disk if it changed since the last save.
func (s *Store) Save() error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	f := fileFormat{Entries: make(map[string]Entry, s.lru.Len())}
	for _, k := range s.lru.Keys() {
		if e, ok := s.lru.Peek(k); ok {
			f.Entries[k] = e
		}
	}
	s.dirty = false
	s.mu.Unlock()

	if err := s.write(f); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		logging.CacheWarn("failed to save cache: %v", err)
		return err
	}
	logging.CacheDebug("saved %d entries to %s", len(f.Entries), s.path)
	return nil
}

func (s *Store) write(f fileFormat) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".unremark_cache-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}
