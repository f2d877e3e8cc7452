// Package docs keeps capability documentation in memory for prompt assembly.
// The docs directory is scanned into an immutable snapshot at process start
// and the snapshot pointer is swapped atomically on reload, so request-path
// reads never touch the filesystem.
package docs

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Doc is one documentation page. The capability key derives from the file
// name: docs/price-feed.md documents the price-feed capability.
type Doc struct {
	Key      string
	Title    string
	Markdown string
	Path     string
}

// Snapshot is an immutable view of the docs directory. Files under guides/
// are supplementary material rather than capability docs and are exposed
// separately.
type Snapshot struct {
	byKey   map[string]Doc
	guides  []Doc
	builtAt time.Time
}

// Capability returns the doc for a capability key.
func (s *Snapshot) Capability(key string) (Doc, bool) {
	d, ok := s.byKey[key]
	return d, ok
}

// Keys returns all capability keys in sorted order.
func (s *Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.byKey))
	for k := range s.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Guides returns the supplementary docs in path order.
func (s *Snapshot) Guides() []Doc { return s.guides }

// Len reports the number of capability docs.
func (s *Snapshot) Len() int { return len(s.byKey) }

// BuiltAt reports when the snapshot was constructed.
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// Store owns the current snapshot and knows how to rebuild it from disk.
type Store struct {
	dir    string
	logger *slog.Logger
	snap   atomic.Pointer[Snapshot]
}

// NewStore creates a store over dir. The initial snapshot is empty; call
// Load to populate it.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		dir:    dir,
		logger: logger.With("component", "docs-store"),
	}
	s.snap.Store(&Snapshot{byKey: map[string]Doc{}, builtAt: time.Now()})
	return s
}

// Dir returns the docs directory the store scans.
func (s *Store) Dir() string { return s.dir }

// Snapshot returns the current snapshot. The result must be treated as
// read-only.
func (s *Store) Snapshot() *Snapshot { return s.snap.Load() }

// Load rescans the docs directory and swaps in a fresh snapshot. A missing
// or empty directory is not an error; it yields an empty snapshot and prompt
// assembly simply omits the doc sections.
func (s *Store) Load() error {
	snap, err := buildSnapshot(s.dir)
	if err != nil {
		return err
	}
	s.snap.Store(snap)
	s.logger.Info("docs snapshot loaded",
		"dir", s.dir,
		"capabilities", snap.Len(),
		"guides", len(snap.guides))
	return nil
}

func buildSnapshot(dir string) (*Snapshot, error) {
	snap := &Snapshot{byKey: map[string]Doc{}, builtAt: time.Now()}
	if dir == "" {
		return snap, nil
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return snap, nil
	}

	matches, err := doublestar.FilepathGlob(filepath.Join(dir, "**", "*.md"))
	if err != nil {
		return nil, fmt.Errorf("scan docs dir %s: %w", dir, err)
	}
	sort.Strings(matches)

	for _, path := range matches {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read doc %s: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		key := strings.TrimSuffix(filepath.Base(path), ".md")
		doc := Doc{
			Key:      key,
			Title:    docTitle(string(raw), key),
			Markdown: strings.TrimSpace(string(raw)),
			Path:     path,
		}
		if strings.HasPrefix(rel, "guides"+string(filepath.Separator)) {
			snap.guides = append(snap.guides, doc)
			continue
		}
		snap.byKey[key] = doc
	}
	return snap, nil
}

// docTitle picks the first level-one heading, falling back to the key when
// the file has none.
func docTitle(raw, key string) string {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return key
}
