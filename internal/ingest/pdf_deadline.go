package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"regexp"
	"strings"

	rpdf "rsc.io/pdf"
)

// dateSnippetRegexes find bare date mentions in PDF text when no
// labeled deadline phrase is present.
var dateSnippetRegexes = []*regexp.Regexp{
	regexp.MustCompile(`\b20\d{2}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`\b\d{1,2}/\d{1,2}/20\d{2}\b`),
	regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},\s+20\d{2}\b`),
}

const maxPDFBytes = 20 * 1024 * 1024

// deadlineFromPDF downloads a listing's document and scans its text
// for deadline phrasing, falling back to the first bare date mention.
// Every failure mode degrades silently; a missing deadline is not an
// error.
func (c *Crawler) deadlineFromPDF(ctx context.Context, fetcher Fetcher, pdfURL string) string {
	fetched, err := fetcher.Fetch(ctx, pdfURL)
	if err != nil {
		log.Printf("PDF fetch failed for %s: %v", pdfURL, err)
		return ""
	}
	defer fetched.Body.Close()

	content, err := io.ReadAll(io.LimitReader(fetched.Body, maxPDFBytes))
	if err != nil {
		log.Printf("PDF read failed for %s: %v", pdfURL, err)
		return ""
	}

	text, err := extractPDFText(content)
	if err != nil {
		log.Printf("PDF parse failed for %s: %v", pdfURL, err)
		return ""
	}

	if snippet := extractDeadlineText(text); snippet != "" {
		return snippet
	}
	for _, re := range dateSnippetRegexes {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	return ""
}

// extractPDFText pulls text fragments from every page. The parser
// panics on some malformed PDFs, so the panic is converted to an error.
func extractPDFText(content []byte) (text string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("pdf parser panic: %v", recovered)
			text = ""
		}
	}()

	reader, err := rpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		for _, fragment := range page.Content().Text {
			builder.WriteString(fragment.S)
			builder.WriteString(" ")
		}
		builder.WriteString("\n")
	}

	return builder.String(), nil
}
