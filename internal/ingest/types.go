package ingest

import (
	"context"
	"fmt"
	"io"
	"time"
)

// FetchedDocument represents the raw result of a fetch operation.
type FetchedDocument struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
	FetchedAt   time.Time
	Headers     map[string][]string
}

// Fetcher retrieves raw content from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedDocument, error)
}

// SourceFetchError is returned when a source's index page cannot be
// retrieved after the retry budget is exhausted. Detail-page failures
// never surface as this error; they degrade the single record instead.
type SourceFetchError struct {
	SourceID string
	Err      error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("source %s: index fetch failed: %v", e.SourceID, e.Err)
}

func (e *SourceFetchError) Unwrap() error {
	return e.Err
}
