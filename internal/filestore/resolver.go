package filestore

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/crackops/taskforge/pkg/debug"
)

// Resolver answers resource size questions from files on disk. Wordlists,
// rule lists and mask lists are stored under their own subdirectories, named
// by resource id. Counts are cached per file and invalidated when the file's
// modification time changes.
type Resolver struct {
	baseDir string

	mu     sync.Mutex
	counts map[string]countEntry
}

type countEntry struct {
	count   int64
	modTime int64
}

// NewResolver creates a resolver rooted at baseDir, creating the resource
// subdirectories if needed.
func NewResolver(baseDir string) (*Resolver, error) {
	for _, sub := range []string{"wordlists", "rules", "masks"} {
		if err := os.MkdirAll(filepath.Join(baseDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", sub, err)
		}
	}
	return &Resolver{
		baseDir: baseDir,
		counts:  make(map[string]countEntry),
	}, nil
}

// WordCount returns the number of words in a stored wordlist.
func (r *Resolver) WordCount(ctx context.Context, wordlistID uuid.UUID) (int64, error) {
	return r.count(ctx, "wordlists", wordlistID)
}

// RuleCount returns the number of rules in a stored rule list. Comment and
// blank lines count; agents apply the same file verbatim.
func (r *Resolver) RuleCount(ctx context.Context, ruleListID uuid.UUID) (int64, error) {
	return r.count(ctx, "rules", ruleListID)
}

// MaskCount returns the number of mask lines in a stored mask list.
func (r *Resolver) MaskCount(ctx context.Context, maskListID uuid.UUID) (int64, error) {
	return r.count(ctx, "masks", maskListID)
}

func (r *Resolver) count(ctx context.Context, kind string, id uuid.UUID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	path, err := r.resolvePath(kind, id)
	if err != nil {
		return 0, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s %s: %w", kind, id, err)
	}

	r.mu.Lock()
	entry, ok := r.counts[path]
	r.mu.Unlock()
	if ok && entry.modTime == info.ModTime().UnixNano() {
		return entry.count, nil
	}

	count, err := countLines(path)
	if err != nil {
		return 0, fmt.Errorf("failed to count lines in %s %s: %w", kind, id, err)
	}

	r.mu.Lock()
	r.counts[path] = countEntry{count: count, modTime: info.ModTime().UnixNano()}
	r.mu.Unlock()

	debug.Debug("Counted %d lines in %s %s", count, kind, id)
	return count, nil
}

// resolvePath finds the stored file for a resource id, trying the id bare and
// with common extensions.
func (r *Resolver) resolvePath(kind string, id uuid.UUID) (string, error) {
	dir := filepath.Join(r.baseDir, kind)
	candidates := []string{
		id.String(),
		id.String() + ".txt",
		id.String() + ".gz",
		id.String() + ".txt.gz",
	}
	for _, name := range candidates {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%s %s not found under %s", strings.TrimSuffix(kind, "s"), id, dir)
}

// countLines counts newline-delimited entries, decompressing gzip files on
// the fly. A non-empty final line without a trailing newline counts.
func countLines(path string) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	var reader io.Reader = file
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return 0, err
		}
		defer gz.Close()
		reader = gz
	}

	buffered := bufio.NewReaderSize(reader, 1024*1024)
	var count int64
	var trailing bool

	buf := make([]byte, 64*1024)
	for {
		n, err := buffered.Read(buf)
		for i := 0; i < n; i++ {
			if buf[i] == '\n' {
				count++
				trailing = false
			} else {
				trailing = true
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}

	if trailing {
		count++
	}
	return count, nil
}
