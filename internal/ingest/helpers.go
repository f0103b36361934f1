package ingest

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var textPolicy = bluemonday.StrictPolicy()

// normalizeSpace collapses multiple spaces into one and trims the string.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// sanitizeText strips any markup the page smuggled into a text field
// and collapses whitespace.
func sanitizeText(s string) string {
	return normalizeSpace(textPolicy.Sanitize(s))
}

// truncateText cuts a string to maxLen characters, never splitting a
// multibyte rune.
func truncateText(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen])
}

// resolveURL resolves href against base, mirroring urljoin semantics.
// Unparseable inputs come back as the raw href.
func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	rel, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(rel).String()
}

// canonicalizeURL lowercases the host, drops the fragment, and removes
// common tracking parameters so repeated crawls see stable URLs.
func canonicalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for k := range q {
		if strings.HasPrefix(k, "utm_") {
			q.Del(k)
		}
	}
	for _, p := range []string{"fbclid", "gclid", "mc_cid", "mc_eid", "mkt_tok", "ref", "session", "s_cid"} {
		q.Del(p)
	}

	u.RawQuery = q.Encode()
	return u.String()
}

// isDocumentLink reports whether an href already points at a document
// rather than a detail page.
func isDocumentLink(href string) bool {
	h := strings.ToLower(href)
	return strings.HasSuffix(h, ".pdf") || strings.Contains(h, ".pdf?")
}
