package docs_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainweave/forge/docs"
)

func writeDoc(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestStoreLoadAndSnapshot(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "price-feed.md", "# Price Feeds\n\nAggregated onchain answers.\n")
	writeDoc(t, dir, "nested/notifications.md", "Sending messages.\n")
	writeDoc(t, dir, "guides/state.md", "# State Guide\n\nUse the runtime KV store.\n")

	store := docs.NewStore(dir, nil)
	require.NoError(t, store.Load())
	snap := store.Snapshot()

	doc, ok := snap.Capability("price-feed")
	require.True(t, ok)
	assert.Equal(t, "Price Feeds", doc.Title)
	assert.Contains(t, doc.Markdown, "Aggregated onchain answers.")

	// Nested files are capability docs keyed by file name; files without a
	// heading fall back to the key as title.
	doc, ok = snap.Capability("notifications")
	require.True(t, ok)
	assert.Equal(t, "notifications", doc.Title)

	// Files under guides/ are supplementary, not capabilities.
	_, ok = snap.Capability("state")
	assert.False(t, ok)
	require.Len(t, snap.Guides(), 1)
	assert.Equal(t, "State Guide", snap.Guides()[0].Title)

	assert.Equal(t, 2, snap.Len())
	assert.Equal(t, []string{"notifications", "price-feed"}, snap.Keys())

	_, ok = snap.Capability("weather-api")
	assert.False(t, ok)
}

func TestStoreMissingDirIsEmpty(t *testing.T) {
	store := docs.NewStore(filepath.Join(t.TempDir(), "does-not-exist"), nil)
	require.NoError(t, store.Load())
	assert.Equal(t, 0, store.Snapshot().Len())
	assert.Empty(t, store.Snapshot().Guides())
}

func TestWatchReloadsAfterWrite(t *testing.T) {
	dir := t.TempDir()
	store := docs.NewStore(dir, nil)
	require.NoError(t, store.Load())
	require.Equal(t, 0, store.Snapshot().Len())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = store.Watch(ctx, 20*time.Millisecond)
	}()

	// Give the watcher a beat to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeDoc(t, dir, "wallet-balance.md", "# Wallet Balance\n\nReading balances.\n")

	require.Eventually(t, func() bool {
		_, ok := store.Snapshot().Capability("wallet-balance")
		return ok
	}, 5*time.Second, 25*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}

func TestIngestURLWritesMarkdown(t *testing.T) {
	page := `<!DOCTYPE html>
<html>
<head><title>Price Feeds Reference</title></head>
<body>
<main><article>
<h2>Using price feeds</h2>
<p>Price feeds provide aggregated onchain answers signed by independent oracles.
Each feed exposes a latest answer and a timestamp for staleness checks. Consumers
should always validate the round before acting on the value.</p>
<pre><code>const answer = await feed.latestAnswer()</code></pre>
</article></main>
</body>
</html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer server.Close()

	dir := t.TempDir()
	store := docs.NewStore(dir, nil)
	ing := docs.NewIngester(store, nil)

	path, err := ing.IngestURL(context.Background(), server.URL, "price-feed")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "price-feed.md"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(raw)
	assert.True(t, len(content) > 0 && content[0] == '#', "doc should start with a heading")
	assert.Contains(t, content, "Price feeds provide aggregated onchain answers")

	// Ingestion reloads the snapshot.
	doc, ok := store.Snapshot().Capability("price-feed")
	require.True(t, ok)
	assert.Contains(t, doc.Markdown, "latestAnswer")
}

func TestIngestURLRejectsBadInput(t *testing.T) {
	store := docs.NewStore(t.TempDir(), nil)
	ing := docs.NewIngester(store, nil)

	_, err := ing.IngestURL(context.Background(), "https://example.com/docs", "Price Feed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capability key")

	_, err = ing.IngestURL(context.Background(), "ftp://example.com/docs", "price-feed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheme")
}

func TestIngestURLDoesNotRetryNotFound(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.NotFound(w, r)
	}))
	defer server.Close()

	store := docs.NewStore(t.TempDir(), nil)
	ing := docs.NewIngester(store, nil)

	_, err := ing.IngestURL(context.Background(), server.URL, "missing")
	require.Error(t, err)
	assert.Equal(t, 1, hits, "404 is terminal and should not be retried")
}

func TestIngestFile(t *testing.T) {
	dir := t.TempDir()
	htmlPath := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(htmlPath, []byte(
		"<html><head><title>HTTP Actions</title></head><body><h1>HTTP Actions</h1><p>Calling external services from workflows.</p></body></html>",
	), 0o644))

	docsDir := filepath.Join(dir, "docs")
	store := docs.NewStore(docsDir, nil)
	ing := docs.NewIngester(store, nil)

	path, err := ing.IngestFile(context.Background(), htmlPath, "http-api")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(docsDir, "http-api.md"), path)

	doc, ok := store.Snapshot().Capability("http-api")
	require.True(t, ok)
	assert.Contains(t, doc.Markdown, "Calling external services")
}

func TestKeyFromSource(t *testing.T) {
	cases := map[string]string{
		"https://docs.chain.link/data-feeds/price-feeds": "price-feeds",
		"https://example.com/guides/Using%20Webhooks/":   "using-webhooks",
		"https://example.com/reference/http.html":        "http",
		"local/Weather API.html":                         "weather-api",
		"notes.md":                                       "notes",
	}
	for source, want := range cases {
		assert.Equal(t, want, docs.KeyFromSource(source), "source %q", source)
	}
}
