package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/signalbid/oie/internal/config"
)

type MockFetcher struct {
	Data map[string][]byte
}

func (m *MockFetcher) Fetch(ctx context.Context, url string) (*FetchedDocument, error) {
	content, ok := m.Data[url]
	if !ok {
		return nil, fmt.Errorf("mock 404: %s", url)
	}
	return &FetchedDocument{
		URL:        url,
		StatusCode: 200,
		Body:       io.NopCloser(bytes.NewReader(content)),
		FetchedAt:  time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}, nil
}

func testSource() config.Source {
	return config.Source{
		ID:               "test_portal",
		IndexURL:         "https://portal.example.gov/rfps",
		ListingSelectors: []string{"a.listing"},
		PDFSelectors:     []string{"a.doc", "a[href$='.pdf']"},
		MaxListings:      10,
		BuyerOrg:         "Example Agency",
		BuyerType:        "federal",
		Region:           "us_east",
	}
}

func TestCrawl_DeduplicatesByHref(t *testing.T) {
	index := `<html><body>
	<a class="listing" href="/rfps/1">Road Repair RFP</a>
	<a class="listing" href="/rfps/1">Road Repair (duplicate link text differs)</a>
	<a class="listing" href="/rfps/2">Bridge Inspection RFP</a>
	</body></html>`

	crawler := NewCrawler(&MockFetcher{Data: map[string][]byte{
		"https://portal.example.gov/rfps": []byte(index),
	}})

	records, err := crawler.Crawl(context.Background(), testSource())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(records))
	}
	if records[0].Title != "Road Repair RFP" {
		t.Fatalf("expected first-seen title to win, got %q", records[0].Title)
	}
	if records[0].CanonicalURL != "https://portal.example.gov/rfps/1" {
		t.Fatalf("expected resolved absolute url, got %s", records[0].CanonicalURL)
	}
}

func TestCrawl_SelectorFallbackUnion(t *testing.T) {
	index := `<html><body>
	<div class="cards">
	<a class="card-link" href="/rfps/1">One</a>
	<a class="card-link" href="/rfps/2">Two</a>
	<a class="card-link" href="/rfps/3">Three</a>
	</div>
	</body></html>`

	src := testSource()
	src.ListingSelectors = []string{"table.old-layout a", "a.card-link"}

	crawler := NewCrawler(&MockFetcher{Data: map[string][]byte{
		"https://portal.example.gov/rfps": []byte(index),
	}})

	records, err := crawler.Crawl(context.Background(), src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected second selector to contribute 3 candidates, got %d", len(records))
	}
}

func TestCrawl_SkipsAnchorsWithoutHref(t *testing.T) {
	index := `<html><body>
	<a class="listing">No href here</a>
	<a class="listing" href="/rfps/1">Real listing</a>
	</body></html>`

	crawler := NewCrawler(&MockFetcher{Data: map[string][]byte{
		"https://portal.example.gov/rfps": []byte(index),
	}})

	records, err := crawler.Crawl(context.Background(), testSource())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected href-less anchor to be skipped, got %d records", len(records))
	}
}

func TestCrawl_CapsAtMaxListings(t *testing.T) {
	index := `<html><body>
	<a class="listing" href="/rfps/1">One</a>
	<a class="listing" href="/rfps/2">Two</a>
	<a class="listing" href="/rfps/3">Three</a>
	</body></html>`

	src := testSource()
	src.MaxListings = 2

	crawler := NewCrawler(&MockFetcher{Data: map[string][]byte{
		"https://portal.example.gov/rfps": []byte(index),
	}})

	records, err := crawler.Crawl(context.Background(), src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected cap at 2, got %d", len(records))
	}
}

func TestCrawl_UntitledDefault(t *testing.T) {
	index := `<html><body><a class="listing" href="/rfps/1"><img src="thumb.png"/></a></body></html>`

	crawler := NewCrawler(&MockFetcher{Data: map[string][]byte{
		"https://portal.example.gov/rfps": []byte(index),
	}})

	records, err := crawler.Crawl(context.Background(), testSource())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records[0].Title != "Untitled" {
		t.Fatalf("expected Untitled, got %q", records[0].Title)
	}
}

func TestCrawl_IndexFailureIsSourceFetchError(t *testing.T) {
	crawler := NewCrawler(&MockFetcher{Data: map[string][]byte{}})

	_, err := crawler.Crawl(context.Background(), testSource())
	if err == nil {
		t.Fatal("expected error")
	}
	var sfe *SourceFetchError
	if !errors.As(err, &sfe) {
		t.Fatalf("expected SourceFetchError, got %T", err)
	}
	if sfe.SourceID != "test_portal" {
		t.Fatalf("expected source id test_portal, got %s", sfe.SourceID)
	}
}

func TestCrawl_DetailFailureDegradesRecord(t *testing.T) {
	index := `<html><body>
	<a class="listing" href="/rfps/1">Broken Detail</a>
	<a class="listing" href="/rfps/2">Working Detail</a>
	</body></html>`
	detail := `<html><head><meta name="description" content="Sewer upgrade, $2M budget."></head>
	<body><p>ignored</p><a class="doc" href="/docs/spec.pdf">Spec</a>
	<p>Deadline: March 4, 2026</p></body></html>`

	crawler := NewCrawler(&MockFetcher{Data: map[string][]byte{
		"https://portal.example.gov/rfps":   []byte(index),
		"https://portal.example.gov/rfps/2": []byte(detail),
	}})

	records, err := crawler.Crawl(context.Background(), testSource())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected detail failure to keep the record, got %d", len(records))
	}

	broken := records[0]
	if broken.PDFURL != "" || broken.RawDeadlineText != "" || broken.Description != "" {
		t.Fatalf("expected degraded record with empty detail fields, got %+v", broken)
	}

	working := records[1]
	if working.PDFURL != "https://portal.example.gov/docs/spec.pdf" {
		t.Fatalf("expected resolved pdf url, got %s", working.PDFURL)
	}
	if working.RawDeadlineText != "March 4, 2026" {
		t.Fatalf("expected raw deadline text, got %q", working.RawDeadlineText)
	}
	if working.Description != "Sewer upgrade, $2M budget." {
		t.Fatalf("expected meta description, got %q", working.Description)
	}
}

func TestCrawl_FirstPDFSelectorWithMatchWins(t *testing.T) {
	index := `<html><body><a class="listing" href="/rfps/1">RFP</a></body></html>`
	detail := `<html><body>
	<a href="/docs/other.pdf">Other</a>
	<a class="doc" href="/docs/primary.pdf">Primary</a>
	</body></html>`

	crawler := NewCrawler(&MockFetcher{Data: map[string][]byte{
		"https://portal.example.gov/rfps":   []byte(index),
		"https://portal.example.gov/rfps/1": []byte(detail),
	}})

	records, err := crawler.Crawl(context.Background(), testSource())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// a.doc is the first configured selector, so it wins even though
	// the fallback selector also matches.
	if records[0].PDFURL != "https://portal.example.gov/docs/primary.pdf" {
		t.Fatalf("expected primary doc link, got %s", records[0].PDFURL)
	}
}

func TestCrawl_FirstParagraphFallback(t *testing.T) {
	index := `<html><body><a class="listing" href="/rfps/1">RFP</a></body></html>`
	detail := `<html><body><p>  Paving services requested for fiscal 2026.  </p></body></html>`

	crawler := NewCrawler(&MockFetcher{Data: map[string][]byte{
		"https://portal.example.gov/rfps":   []byte(index),
		"https://portal.example.gov/rfps/1": []byte(detail),
	}})

	records, err := crawler.Crawl(context.Background(), testSource())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records[0].Description != "Paving services requested for fiscal 2026." {
		t.Fatalf("expected first paragraph text, got %q", records[0].Description)
	}
}

func TestCrawl_PDFDirectShortcut(t *testing.T) {
	index := `<html><body><a class="listing" href="/docs/direct.pdf">Direct Document</a></body></html>`

	src := testSource()
	src.PDFDirect = true

	crawler := NewCrawler(&MockFetcher{Data: map[string][]byte{
		"https://portal.example.gov/rfps": []byte(index),
	}})

	records, err := crawler.Crawl(context.Background(), src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records[0].PDFURL != "https://portal.example.gov/docs/direct.pdf" {
		t.Fatalf("expected direct pdf url, got %s", records[0].PDFURL)
	}
}

func TestExtractDeadlineText(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{"Labeled long date", "Submission Deadline: January 15, 2026 at 5pm", "January 15, 2026"},
		{"Due date ISO", "Due Date: 2026-01-15", "2026-01-15"},
		{"Due slash date", "Applications due: 01/15/2026", "01/15/2026"},
		{"Nothing", "open until further notice", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractDeadlineText(tt.text); got != tt.expected {
				t.Fatalf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

// Detail pages must be fetched at the href as the portal emitted it;
// canonicalization is only for the stored URL and dedup, since portals
// can depend on params it strips.
func TestCrawl_DetailFetchKeepsRawQuery(t *testing.T) {
	index := `<html><body><a class="listing" href="/rfps/1?ref=home&amp;b=2&amp;a=1">RFP</a></body></html>`
	detail := `<html><head><meta name="description" content="Paving services."></head><body></body></html>`

	// The detail page exists only at the raw resolved URL.
	crawler := NewCrawler(&MockFetcher{Data: map[string][]byte{
		"https://portal.example.gov/rfps":                    []byte(index),
		"https://portal.example.gov/rfps/1?ref=home&b=2&a=1": []byte(detail),
	}})

	records, err := crawler.Crawl(context.Background(), testSource())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records[0].Description != "Paving services." {
		t.Fatalf("expected detail fetch at the raw href to succeed, got %+v", records[0])
	}
	if records[0].CanonicalURL != "https://portal.example.gov/rfps/1?a=1&b=2" {
		t.Fatalf("expected canonical stored url, got %s", records[0].CanonicalURL)
	}
}

func TestTruncateText(t *testing.T) {
	if got := truncateText("short", 500); got != "short" {
		t.Fatalf("expected short text unchanged, got %q", got)
	}

	// A multibyte rune straddling the cutoff must survive intact, not
	// be split into invalid bytes.
	in := strings.Repeat("a", 499) + "é" + "trailing"
	got := truncateText(in, 500)
	if !utf8.ValidString(got) {
		t.Fatalf("expected valid utf-8, got %q", got[490:])
	}
	if utf8.RuneCountInString(got) != 500 {
		t.Fatalf("expected 500 characters, got %d", utf8.RuneCountInString(got))
	}
	if !strings.HasSuffix(got, "é") {
		t.Fatalf("expected the boundary rune kept whole, got suffix %q", got[495:])
	}
}

func TestCanonicalizeURL_StripsTrackingParams(t *testing.T) {
	in := "https://Portal.Example.gov/rfps/1?utm_source=feed&ref=home&page=2#section"
	got := canonicalizeURL(in)
	expected := "https://portal.example.gov/rfps/1?page=2"
	if got != expected {
		t.Fatalf("expected %s, got %s", expected, got)
	}
}
