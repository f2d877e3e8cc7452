package docs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/chainweave/forge/retry"
)

const (
	fetchTimeout  = 30 * time.Second
	maxFetchBytes = 10 << 20
	maxRedirects  = 5
	userAgent     = "forge-docs-ingester/1.0"
)

var (
	keyPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	slugStrip  = regexp.MustCompile(`[^a-z0-9]+`)
	multiBlank = regexp.MustCompile(`\n{3,}`)
)

// Ingester turns HTML pages into capability markdown files in the docs dir.
type Ingester struct {
	store  *Store
	client *http.Client
	conv   *md.Converter
	logger *slog.Logger
}

// NewIngester builds an ingester writing into store's directory. The
// converter is configured for GitHub-flavored markdown so tables and fenced
// code blocks survive the round trip into prompts.
func NewIngester(store *Store, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	conv := md.NewConverter("", true, nil)
	conv.Use(plugin.GitHubFlavored())

	client := &http.Client{
		Timeout: fetchTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return &Ingester{
		store:  store,
		client: client,
		conv:   conv,
		logger: logger.With("component", "docs-ingester"),
	}
}

// IngestURL fetches rawURL, reduces the page to its readable article,
// converts it to markdown and writes <docs dir>/<key>.md. Transient fetch
// failures are retried; the snapshot is reloaded on success.
func (ing *Ingester) IngestURL(ctx context.Context, rawURL, key string) (string, error) {
	if !keyPattern.MatchString(key) {
		return "", fmt.Errorf("invalid capability key %q: want lowercase kebab-case", key)
	}
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if pageURL.Scheme != "http" && pageURL.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q: want http or https", pageURL.Scheme)
	}

	page, err := ing.fetch(ctx, rawURL)
	if err != nil {
		return "", fmt.Errorf("ingest %s: %w", rawURL, err)
	}
	return ing.write(page, pageURL, rawURL, key)
}

// IngestFile reads a local HTML file and writes <docs dir>/<key>.md.
func (ing *Ingester) IngestFile(_ context.Context, path, key string) (string, error) {
	if !keyPattern.MatchString(key) {
		return "", fmt.Errorf("invalid capability key %q: want lowercase kebab-case", key)
	}
	page, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read html file: %w", err)
	}
	return ing.write(page, nil, path, key)
}

func (ing *Ingester) write(page []byte, pageURL *url.URL, source, key string) (string, error) {
	markdown, title, err := ing.reduce(page, pageURL)
	if err != nil {
		return "", err
	}
	if title == "" {
		title = key
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n\n", title)
	buf.WriteString(markdown)
	buf.WriteString("\n")

	if err := os.MkdirAll(ing.store.dir, 0o755); err != nil {
		return "", fmt.Errorf("create docs dir: %w", err)
	}
	path := filepath.Join(ing.store.dir, key+".md")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write doc: %w", err)
	}
	if err := ing.store.Load(); err != nil {
		ing.logger.Warn("snapshot reload after ingest failed", "error", err)
	}
	ing.logger.Info("ingested documentation",
		"key", key,
		"source", source,
		"bytes", buf.Len())
	return path, nil
}

func (ing *Ingester) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var page []byte
	err := retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")

		// Error messages here feed the retry classifier; keep the URL out
		// so stray digits in a host or port cannot match a status signature.
		resp, err := ing.client.Do(req)
		if err != nil {
			return fmt.Errorf("fetch page: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d %s",
				resp.StatusCode, strings.ToLower(http.StatusText(resp.StatusCode)))
		}

		page, err = io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		if len(page) > maxFetchBytes {
			return fmt.Errorf("page exceeds %d bytes", maxFetchBytes)
		}
		return nil
	})
	return page, err
}

// reduce extracts the readable article from page HTML and converts it to
// markdown. Pages where readability finds nothing fall back to converting
// the whole document, and the <title> element covers missing article titles.
func (ing *Ingester) reduce(page []byte, pageURL *url.URL) (markdown, title string, err error) {
	article, rerr := readability.FromReader(bytes.NewReader(page), pageURL)
	content := article.Content
	title = strings.TrimSpace(article.Title)

	if rerr != nil || strings.TrimSpace(content) == "" {
		content = string(page)
	}
	if title == "" {
		title = pageTitle(page)
	}

	markdown, err = ing.conv.ConvertString(content)
	if err != nil {
		return "", "", fmt.Errorf("convert to markdown: %w", err)
	}
	markdown = tidyMarkdown(markdown)
	if markdown == "" {
		return "", "", fmt.Errorf("page produced no markdown content")
	}
	return markdown, title, nil
}

func tidyMarkdown(s string) string {
	s = multiBlank.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// pageTitle walks the parsed document for the <title> element.
func pageTitle(page []byte) string {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return ""
	}
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				title = strings.TrimSpace(n.FirstChild.Data)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}

// KeyFromSource derives a capability key from a URL or file path: the last
// path segment, extension dropped, slugified to kebab-case.
func KeyFromSource(source string) string {
	base := source
	if u, err := url.Parse(source); err == nil && u.Scheme != "" && u.Path != "" {
		base = u.Path
	}
	base = filepath.Base(strings.TrimRight(base, "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	slug := slugStrip.ReplaceAllString(strings.ToLower(base), "-")
	return strings.Trim(slug, "-")
}
