package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/swasthyasetu/corpus-engine/engine/domain"
)

// maxFetchBytes caps how much of a remote page is read.
const maxFetchBytes = 10 << 20

var titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// Fetcher retrieves remote pages for URL ingestion.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a Fetcher with the given request timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

// page is a fetched and text-stripped remote document.
type page struct {
	Title string
	Text  string
	HTML  string
}

// Fetch downloads a URL and reduces it to plain text. The page title comes
// from the <title> element, falling back to the URL itself truncated to 200
// characters. Any non-2xx response is a fetch failure.
func (f *Fetcher) Fetch(ctx context.Context, url string) (page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return page{}, fmt.Errorf("ingest: build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", "swasthyasetu-corpus/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return page{}, fmt.Errorf("ingest: fetch %s: %w: %w", url, domain.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return page{}, fmt.Errorf("ingest: fetch %s: status %d: %w", url, resp.StatusCode, domain.ErrFetchFailed)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return page{}, fmt.Errorf("ingest: read %s: %w: %w", url, domain.ErrFetchFailed, err)
	}

	markup := string(body)
	return page{
		Title: pageTitle(markup, url),
		Text:  htmlToText(markup),
		HTML:  markup,
	}, nil
}

func pageTitle(markup, url string) string {
	if m := titleRe.FindStringSubmatch(markup); m != nil {
		if t := strings.TrimSpace(htmlToText(m[1])); t != "" {
			return t
		}
	}
	if len(url) > 200 {
		return url[:200]
	}
	return url
}
