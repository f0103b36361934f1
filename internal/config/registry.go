package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Registry holds the configuration for all crawl sources.
type Registry struct {
	Sources []Source
}

// FetchConfig defines HTTP fetching configuration for a source.
type FetchConfig struct {
	Kind           string `yaml:"kind,omitempty"` // "http" (default) or "colly"
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
	MaxAttempts    int    `yaml:"max_attempts,omitempty"`
}

// Source is the canonical, schema-normalized configuration for one
// crawl target. The loader resolves both config schemas into this
// shape so nothing downstream has to care which one was used.
type Source struct {
	ID               string
	IndexURL         string
	ListingSelectors []string
	PDFSelectors     []string
	MaxListings      int

	BuyerOrg  string
	BuyerType string
	Region    string

	// PDFDirect treats a listing link whose href already points at a
	// document as the document link itself, skipping the detail fetch.
	PDFDirect bool
	// ParsePDF enables the PDF deadline fallback for listings that
	// have a document link but no deadline text on the detail page.
	ParsePDF bool

	Fetch FetchConfig
}

// Validate reports configuration problems that make this source
// uncrawlable. These are per-source failures, not load failures.
func (s Source) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("source is missing an id")
	}
	if strings.TrimSpace(s.IndexURL) == "" {
		return fmt.Errorf("source %q is missing a base_url/url", s.ID)
	}
	if s.MaxListings < 1 {
		return fmt.Errorf("source %q: max_listings must be >= 1, got %d", s.ID, s.MaxListings)
	}
	return nil
}

// Find returns the source with the given id.
func (r *Registry) Find(id string) (Source, bool) {
	for _, src := range r.Sources {
		if src.ID == id {
			return src, true
		}
	}
	return Source{}, false
}

// selectorList accepts either a single selector string (legacy flat
// schema) or a YAML sequence of selectors.
type selectorList []string

func (l *selectorList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		if strings.TrimSpace(s) != "" {
			*l = selectorList{s}
		}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*l = selectorList(items)
		return nil
	default:
		return fmt.Errorf("selector list must be a string or a sequence of strings")
	}
}

// rawSource carries both the nested crawl/normalize schema and the
// older flat one. Nested fields win when both are present.
type rawSource struct {
	ID      string `yaml:"id"`
	BaseURL string `yaml:"base_url"`
	URL     string `yaml:"url"`

	Crawl *struct {
		ListingLinkSelectors selectorList `yaml:"listing_link_selectors"`
		PDFLinkSelectors     selectorList `yaml:"pdf_link_selectors"`
		MaxListings          int          `yaml:"max_listings"`
	} `yaml:"crawl"`

	Normalize *struct {
		BuyerOrg  string `yaml:"buyer_org"`
		BuyerType string `yaml:"buyer_type"`
		Region    string `yaml:"region"`
	} `yaml:"normalize"`

	// Legacy flat schema.
	ListingLinkSelectors selectorList `yaml:"listing_link_selectors"`
	PDFLinkSelectors     selectorList `yaml:"pdf_link_selectors"`
	MaxListings          int          `yaml:"max_listings"`
	BuyerOrg             string       `yaml:"buyer_org"`
	BuyerType            string       `yaml:"buyer_type"`
	Region               string       `yaml:"region"`

	PDFDirect bool        `yaml:"pdf_direct"`
	ParsePDF  bool        `yaml:"parse_pdf"`
	Fetch     FetchConfig `yaml:"fetch"`
}

type rawRegistry struct {
	Sources []rawSource `yaml:"sources"`
}

const (
	defaultMaxListings = 10
)

var (
	defaultListingSelectors = []string{"a"}
	defaultPDFSelectors     = []string{"a[href$='.pdf']"}
)

// Load reads a sources file and normalizes every entry into the
// canonical Source shape. Environment variables in the YAML content
// (e.g. ${API_KEY}) are expanded before parsing.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}
	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse normalizes a raw YAML document into a Registry.
func Parse(data []byte) (*Registry, error) {
	var raw rawRegistry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}

	reg := &Registry{Sources: make([]Source, 0, len(raw.Sources))}
	seen := make(map[string]bool, len(raw.Sources))

	for _, rs := range raw.Sources {
		src := normalizeSource(rs)
		if src.ID != "" && seen[src.ID] {
			return nil, fmt.Errorf("duplicate source id %q", src.ID)
		}
		seen[src.ID] = true
		reg.Sources = append(reg.Sources, src)
	}

	return reg, nil
}

func normalizeSource(rs rawSource) Source {
	src := Source{
		ID:        rs.ID,
		IndexURL:  rs.BaseURL,
		BuyerOrg:  rs.BuyerOrg,
		BuyerType: rs.BuyerType,
		Region:    rs.Region,
		PDFDirect: rs.PDFDirect,
		ParsePDF:  rs.ParsePDF,
		Fetch:     rs.Fetch,
	}
	if src.IndexURL == "" {
		src.IndexURL = rs.URL
	}

	src.ListingSelectors = rs.ListingLinkSelectors
	src.PDFSelectors = rs.PDFLinkSelectors
	src.MaxListings = rs.MaxListings

	if rs.Crawl != nil {
		if len(rs.Crawl.ListingLinkSelectors) > 0 {
			src.ListingSelectors = rs.Crawl.ListingLinkSelectors
		}
		if len(rs.Crawl.PDFLinkSelectors) > 0 {
			src.PDFSelectors = rs.Crawl.PDFLinkSelectors
		}
		if rs.Crawl.MaxListings > 0 {
			src.MaxListings = rs.Crawl.MaxListings
		}
	}
	if rs.Normalize != nil {
		if rs.Normalize.BuyerOrg != "" {
			src.BuyerOrg = rs.Normalize.BuyerOrg
		}
		if rs.Normalize.BuyerType != "" {
			src.BuyerType = rs.Normalize.BuyerType
		}
		if rs.Normalize.Region != "" {
			src.Region = rs.Normalize.Region
		}
	}

	if len(src.ListingSelectors) == 0 {
		src.ListingSelectors = defaultListingSelectors
	}
	if len(src.PDFSelectors) == 0 {
		src.PDFSelectors = defaultPDFSelectors
	}
	if src.MaxListings == 0 {
		src.MaxListings = defaultMaxListings
	}
	if src.BuyerOrg == "" {
		src.BuyerOrg = "Unknown"
	}
	if src.BuyerType == "" {
		src.BuyerType = "unknown"
	}
	if src.Region == "" {
		src.Region = "unknown"
	}

	return src
}
