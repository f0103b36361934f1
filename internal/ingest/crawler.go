package ingest

import (
	"context"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/signalbid/oie/internal/config"
	"github.com/signalbid/oie/internal/models"
)

// deadlinePatterns capture common deadline phrasings on detail pages.
// The captured group is kept raw; normalization happens at scoring time.
var deadlinePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)deadline[:\s]+([A-Za-z]+\s+\d{1,2},\s+\d{4})`),
	regexp.MustCompile(`(?i)due\s+date[:\s]+(\d{4}-\d{2}-\d{2})`),
	regexp.MustCompile(`(?i)due[:\s]+(\d{1,2}/\d{1,2}/\d{4})`),
}

const descriptionMaxLen = 500

// Crawler extracts candidate records from configured sources. Each
// source picks its fetcher via config; Colly is nil-safe and falls
// back to the default.
type Crawler struct {
	Fetcher Fetcher
	Colly   Fetcher
}

func NewCrawler(fetcher Fetcher) *Crawler {
	return &Crawler{Fetcher: fetcher}
}

func (c *Crawler) fetcherFor(src config.Source) Fetcher {
	if src.Fetch.Kind == "colly" && c.Colly != nil {
		return c.Colly
	}
	if rf, ok := c.Fetcher.(*RetryFetcher); ok {
		return rf.withOverrides(src.Fetch)
	}
	return c.Fetcher
}

// listing is one extracted index-page link, pre detail fetch.
type listing struct {
	href  string
	title string
}

// Crawl fetches a source's index page, extracts listing links, follows
// each to its detail page, and emits one CandidateRecord per listing.
// Only an index fetch failure aborts the source; a broken detail page
// degrades that single record.
func (c *Crawler) Crawl(ctx context.Context, src config.Source) ([]models.CandidateRecord, error) {
	fetcher := c.fetcherFor(src)

	doc, fetchedAt, err := c.fetchDocument(ctx, fetcher, src.IndexURL)
	if err != nil {
		return nil, &SourceFetchError{SourceID: src.ID, Err: err}
	}

	listings := extractListings(doc, src.ListingSelectors, src.MaxListings)
	log.Printf("[%s] Index %s: %d listings", src.ID, src.IndexURL, len(listings))

	records := make([]models.CandidateRecord, 0, len(listings))
	for _, l := range listings {
		// Detail pages are fetched at the resolved href as-is; the
		// canonical form is only for storage and dedup, since portals
		// can depend on the params canonicalization strips.
		resolved := resolveURL(src.IndexURL, l.href)

		rec := models.CandidateRecord{
			Title:        l.title,
			CanonicalURL: canonicalizeURL(resolved),
			SourceID:     src.ID,
			BuyerOrg:     src.BuyerOrg,
			BuyerType:    src.BuyerType,
			Region:       src.Region,
			FetchedAt:    fetchedAt,
		}

		if src.PDFDirect && isDocumentLink(l.href) {
			rec.PDFURL = resolved
		} else {
			c.enrichFromDetail(ctx, fetcher, src, resolved, &rec)
		}

		if src.ParsePDF && rec.PDFURL != "" && rec.RawDeadlineText == "" {
			if snippet := c.deadlineFromPDF(ctx, fetcher, rec.PDFURL); snippet != "" {
				rec.RawDeadlineText = snippet
			}
		}

		records = append(records, rec)
	}

	return records, nil
}

func (c *Crawler) fetchDocument(ctx context.Context, fetcher Fetcher, url string) (*goquery.Document, time.Time, error) {
	fetched, err := fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer fetched.Body.Close()

	doc, err := goquery.NewDocumentFromReader(fetched.Body)
	if err != nil {
		return nil, time.Time{}, err
	}
	return doc, fetched.FetchedAt, nil
}

// extractListings applies each listing selector in order and unions
// all matches into one sequence. Selectors are not short-circuited: a
// selector that matches nothing just contributes nothing, and every
// selector's matches keep their relative order. Links are deduped by
// raw href, first seen wins, then capped.
func extractListings(doc *goquery.Document, selectors []string, maxListings int) []listing {
	seen := make(map[string]bool)
	var out []listing

	for _, selector := range selectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			href, ok := sel.Attr("href")
			if !ok || strings.TrimSpace(href) == "" {
				return
			}
			if seen[href] {
				return
			}
			seen[href] = true

			title := normalizeSpace(sel.Text())
			if title == "" {
				title = "Untitled"
			}
			out = append(out, listing{href: href, title: title})
		})
	}

	if len(out) > maxListings {
		out = out[:maxListings]
	}
	return out
}

// enrichFromDetail fetches a listing's detail page and fills pdf_url,
// raw deadline text, and description. Any failure leaves those fields
// empty and moves on.
func (c *Crawler) enrichFromDetail(ctx context.Context, fetcher Fetcher, src config.Source, detailURL string, rec *models.CandidateRecord) {
	doc, _, err := c.fetchDocument(ctx, fetcher, detailURL)
	if err != nil {
		log.Printf("[%s] Detail fetch failed for %s: %v", src.ID, detailURL, err)
		return
	}

	rec.PDFURL = extractPDFLink(doc, src.PDFSelectors, detailURL)
	rec.RawDeadlineText = extractDeadlineText(doc.Text())
	rec.Description = extractDescription(doc)
}

// extractPDFLink applies each PDF selector in order; the first
// selector yielding at least one match wins, and the first matched
// element's href is resolved against the detail page URL.
func extractPDFLink(doc *goquery.Document, selectors []string, detailURL string) string {
	for _, selector := range selectors {
		matches := doc.Find(selector)
		if matches.Length() == 0 {
			continue
		}
		href, ok := matches.First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return ""
		}
		return resolveURL(detailURL, href)
	}
	return ""
}

// extractDeadlineText searches page text for a deadline phrase and
// returns the raw captured date text, or empty.
func extractDeadlineText(text string) string {
	for _, re := range deadlinePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// extractDescription prefers the meta description tag, then the first
// paragraph, truncated to 500 characters.
func extractDescription(doc *goquery.Document) string {
	if content, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		if desc := sanitizeText(content); desc != "" {
			return truncateText(desc, descriptionMaxLen)
		}
	}

	if p := doc.Find("p").First(); p.Length() > 0 {
		return truncateText(sanitizeText(p.Text()), descriptionMaxLen)
	}

	return ""
}
