package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
)

// CollyFetcher implements the Fetcher interface using Colly. It adds
// per-domain rate limiting and robots.txt awareness on top of the
// retry behavior, which some portals require to avoid bans.
type CollyFetcher struct {
	UserAgent      string
	MaxRetries     int
	RequestTimeout time.Duration
	DomainDelay    time.Duration
	MaxBodySize    int
}

// NewCollyFetcher creates a CollyFetcher with sensible defaults.
func NewCollyFetcher() *CollyFetcher {
	return &CollyFetcher{
		UserAgent:      defaultUserAgent,
		MaxRetries:     3,
		RequestTimeout: 30 * time.Second,
		DomainDelay:    1 * time.Second,
		MaxBodySize:    10 * 1024 * 1024,
	}
}

func (f *CollyFetcher) buildCollector(allowedDomains []string) *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(f.UserAgent),
		colly.MaxBodySize(f.MaxBodySize),
		colly.AllowURLRevisit(),
		colly.AllowedDomains(allowedDomains...),
		colly.DetectCharset(),
	)

	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       f.DomainDelay,
		RandomDelay: f.DomainDelay / 2,
	})
	c.SetRequestTimeout(f.RequestTimeout)

	return c
}

// collyRetryable classifies a failed Colly request. Colly reports HTTP
// failures with a synthetic error and the real status code, and
// transport failures with status 0 and the underlying error, so only
// one of the two carries the retry signal.
func collyRetryable(err error, statusCode int) bool {
	if statusCode == 0 {
		return shouldRetry(err, 0)
	}
	return shouldRetry(nil, statusCode)
}

// Fetch implements the Fetcher interface.
func (f *CollyFetcher) Fetch(ctx context.Context, targetURL string) (*FetchedDocument, error) {
	parsedURL, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	// Colly matches allowed domains against the hostname without port.
	c := f.buildCollector([]string{parsedURL.Hostname()})

	var result *FetchedDocument
	var fetchErr error
	var wg sync.WaitGroup
	var once sync.Once
	wg.Add(1)
	done := func() { once.Do(wg.Done) }

	c.OnResponse(func(r *colly.Response) {
		result = &FetchedDocument{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        io.NopCloser(bytes.NewReader(r.Body)),
			FetchedAt:   time.Now().UTC(),
			Headers:     map[string][]string(r.Headers.Clone()),
		}
		done()
	})

	c.OnError(func(r *colly.Response, err error) {
		retries := 0
		if r.Request.Ctx.GetAny("retries") != nil {
			retries = r.Request.Ctx.GetAny("retries").(int)
		}
		if retries < f.MaxRetries-1 && collyRetryable(err, r.StatusCode) {
			r.Request.Ctx.Put("retries", retries+1)
			log.Printf("[colly] Retry %d/%d for %s: %v", retries+1, f.MaxRetries-1, r.Request.URL, err)
			time.Sleep(retryBackoff(retries + 2))
			if retryErr := r.Request.Retry(); retryErr == nil {
				return
			}
		}
		fetchErr = fmt.Errorf("fetch failed after %d attempts: %w", retries+1, err)
		done()
	})

	if err := c.Visit(targetURL); err != nil {
		return nil, fmt.Errorf("visit failed: %w", err)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-finished:
	}

	if fetchErr != nil {
		return nil, fetchErr
	}
	if result == nil {
		return nil, fmt.Errorf("no response received for %s", targetURL)
	}
	return result, nil
}
