package models

import "time"

// CandidateRecord is one discovered opportunity as it comes out of the
// crawler, before scoring. It is never mutated after the dedup id has
// been computed over it.
type CandidateRecord struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	CanonicalURL    string    `json:"canonical_url"`
	SourceID        string    `json:"source_id"`
	BuyerOrg        string    `json:"buyer_org"`
	BuyerType       string    `json:"buyer_type"`
	Region          string    `json:"region"`
	PDFURL          string    `json:"pdf_url,omitempty"`
	RawDeadlineText string    `json:"raw_deadline_text,omitempty"`
	Description     string    `json:"description"`
	FetchedAt       time.Time `json:"fetched_at"`
}

// ScoredRecord is a CandidateRecord enriched by the scoring engine.
// Records are appended to the history log once and never updated.
type ScoredRecord struct {
	CandidateRecord

	Deadline       *string  `json:"deadline"`
	DeadlineBucket string   `json:"deadline_bucket"`
	BudgetValue    *float64 `json:"budget_value"`
	BudgetBucket   string   `json:"budget_bucket"`
	Decision       string   `json:"decision"`
	OneLiner       string   `json:"one_liner"`
	Tags           []string `json:"tags"`
}
