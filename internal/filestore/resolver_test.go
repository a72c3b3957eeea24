package filestore

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver(t.TempDir())
	require.NoError(t, err)
	return r
}

func writeResource(t *testing.T, r *Resolver, kind, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(r.baseDir, kind, name), []byte(content), 0o644))
}

func TestWordCount(t *testing.T) {
	r := newTestResolver(t)
	id := uuid.New()
	writeResource(t, r, "wordlists", id.String()+".txt", "password\n123456\nletmein\n")

	count, err := r.WordCount(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestCountWithoutTrailingNewline(t *testing.T) {
	r := newTestResolver(t)
	id := uuid.New()
	writeResource(t, r, "rules", id.String(), ":\nc\nu")

	count, err := r.RuleCount(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestCountGzip(t *testing.T) {
	r := newTestResolver(t)
	id := uuid.New()

	path := filepath.Join(r.baseDir, "masks", id.String()+".txt.gz")
	file, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(file)
	_, err = gz.Write([]byte("?d?d?d?d\n?l?l?l?l?l?l\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, file.Close())

	count, err := r.MaskCount(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestMissingResource(t *testing.T) {
	r := newTestResolver(t)
	_, err := r.WordCount(context.Background(), uuid.New())
	assert.Error(t, err)
}

func TestCountCachedUntilModified(t *testing.T) {
	r := newTestResolver(t)
	id := uuid.New()
	writeResource(t, r, "wordlists", id.String()+".txt", "one\ntwo\n")

	count, err := r.WordCount(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// Rewrite with a different mod time; the cache entry must refresh.
	path := filepath.Join(r.baseDir, "wordlists", id.String()+".txt")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o644))
	require.NoError(t, os.Chtimes(path, time.Now(), time.Now().Add(time.Second)))

	count, err = r.WordCount(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
