package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/signalbid/oie/internal/config"
	"github.com/signalbid/oie/internal/history"
	"github.com/signalbid/oie/internal/models"
	"github.com/signalbid/oie/internal/score"
)

// SourceFailure is one source-level failure surfaced in the run report.
type SourceFailure struct {
	SourceID string `json:"source_id"`
	Error    string `json:"error"`
}

// SourceStats summarizes one source's contribution to a run.
type SourceStats struct {
	SourceID string `json:"source_id"`
	Found    int    `json:"found"`
	New      int    `json:"new"`
}

// RunReport is handed to the operator when a run completes.
type RunReport struct {
	RunID      string          `json:"run_id"`
	NewRecords int             `json:"new_records"`
	PerSource  []SourceStats   `json:"per_source"`
	Failures   []SourceFailure `json:"failures"`
}

// Pipeline drives one ingestion pass: crawl every configured source,
// drop already-seen candidates, score the rest, and append the batch
// to the history log.
type Pipeline struct {
	Sources []config.Source
	Crawler *Crawler
	Scorer  *score.Scorer
	History *history.Store
}

func NewPipeline(sources []config.Source, crawler *Crawler, scorer *score.Scorer, store *history.Store) *Pipeline {
	return &Pipeline{
		Sources: sources,
		Crawler: crawler,
		Scorer:  scorer,
		History: store,
	}
}

// StableID derives the content hash that recognizes an opportunity
// across runs. It is computed over the raw crawl output, before
// scoring normalizes the deadline: any change in title, URL, source,
// or raw deadline text is a new opportunity, not an update.
func StableID(c models.CandidateRecord) string {
	key := strings.Join([]string{c.SourceID, c.CanonicalURL, c.Title, c.RawDeadlineText}, "|")
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Run executes one ingestion pass. seen is the id set replayed from
// history before the run started; it is treated as read-only for the
// run's duration, so duplicates discovered within the same run are
// deliberately not deduplicated against each other. Source failures
// are collected, never fatal; only a history append failure aborts.
func (p *Pipeline) Run(ctx context.Context, seen map[string]struct{}) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.NewString(),
		PerSource: []SourceStats{},
		Failures:  []SourceFailure{},
	}

	var newRecords []models.ScoredRecord

	for _, src := range p.Sources {
		if err := src.Validate(); err != nil {
			log.Printf("[%s] Skipping source: %v", src.ID, err)
			report.Failures = append(report.Failures, SourceFailure{SourceID: src.ID, Error: err.Error()})
			continue
		}

		candidates, err := p.Crawler.Crawl(ctx, src)
		if err != nil {
			log.Printf("[%s] Crawl failed: %v", src.ID, err)
			report.Failures = append(report.Failures, SourceFailure{SourceID: src.ID, Error: err.Error()})
			continue
		}

		stats := SourceStats{SourceID: src.ID, Found: len(candidates)}
		for _, candidate := range candidates {
			candidate.ID = StableID(candidate)
			if _, ok := seen[candidate.ID]; ok {
				continue
			}

			scored := p.Scorer.Process(candidate)
			newRecords = append(newRecords, scored)
			stats.New++
		}

		log.Printf("[%s] Found %d, new %d", src.ID, stats.Found, stats.New)
		report.PerSource = append(report.PerSource, stats)
	}

	if err := p.History.Append(newRecords); err != nil {
		return report, err
	}

	report.NewRecords = len(newRecords)
	return report, nil
}
