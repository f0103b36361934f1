package ingest

import (
	"context"

	"github.com/signalbid/oie/internal/config"
)

// SelfTestItem is one extracted listing in a selector test report.
type SelfTestItem struct {
	Title        string `json:"title"`
	CanonicalURL string `json:"canonical_url"`
	PDFURL       string `json:"pdf_url"`
}

// SelfTestError records a failed stage or URL during a selector test.
type SelfTestError struct {
	URL   string `json:"url,omitempty"`
	Stage string `json:"stage,omitempty"`
	Error string `json:"error"`
}

// SelfTestReport is the JSON output of a selector test run.
type SelfTestReport struct {
	SourceID string          `json:"source_id"`
	BaseURL  string          `json:"base_url"`
	Count    int             `json:"count"`
	Items    []SelfTestItem  `json:"items"`
	Errors   []SelfTestError `json:"errors"`
}

// TestSelectors validates a source configuration by running only the
// crawl stage: no scoring, no history writes. limit further caps the
// source's own max_listings. With fetchPDF false, detail pages are
// never fetched and only the pdf_direct shortcut can fill pdf_url.
func (c *Crawler) TestSelectors(ctx context.Context, src config.Source, limit int, fetchPDF bool) SelfTestReport {
	report := SelfTestReport{
		SourceID: src.ID,
		BaseURL:  src.IndexURL,
		Items:    []SelfTestItem{},
		Errors:   []SelfTestError{},
	}

	if err := src.Validate(); err != nil {
		report.Errors = append(report.Errors, SelfTestError{Stage: "config", Error: err.Error()})
		return report
	}

	fetcher := c.fetcherFor(src)
	doc, _, err := c.fetchDocument(ctx, fetcher, src.IndexURL)
	if err != nil {
		report.Errors = append(report.Errors, SelfTestError{Stage: "index_fetch", Error: err.Error()})
		return report
	}

	maxListings := src.MaxListings
	if limit > 0 && limit < maxListings {
		maxListings = limit
	}

	for _, l := range extractListings(doc, src.ListingSelectors, maxListings) {
		// Same split as the crawler: fetch the resolved href, report
		// the canonical form.
		resolved := resolveURL(src.IndexURL, l.href)
		item := SelfTestItem{Title: l.title, CanonicalURL: canonicalizeURL(resolved)}

		if src.PDFDirect && isDocumentLink(l.href) {
			item.PDFURL = resolved
		} else if fetchPDF {
			detail, _, err := c.fetchDocument(ctx, fetcher, resolved)
			if err != nil {
				report.Errors = append(report.Errors, SelfTestError{
					URL:   resolved,
					Error: "failed to fetch detail: " + err.Error(),
				})
			} else {
				item.PDFURL = extractPDFLink(detail, src.PDFSelectors, resolved)
			}
		}

		report.Items = append(report.Items, item)
	}

	report.Count = len(report.Items)
	return report
}
