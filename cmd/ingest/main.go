package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/signalbid/oie/internal/config"
	"github.com/signalbid/oie/internal/history"
	"github.com/signalbid/oie/internal/ingest"
	"github.com/signalbid/oie/internal/score"
)

func main() {
	sourcesPath := flag.String("sources", "configs/sources.yaml", "Path to sources configuration")
	historyPath := flag.String("history", "data/processed/opportunities.ndjson", "Path to the history log")
	timeout := flag.Duration("timeout", 30*time.Second, "Per-request timeout")
	flag.Parse()

	registry, err := config.Load(*sourcesPath)
	if err != nil {
		log.Fatalf("Failed to load sources: %v", err)
	}

	store := history.NewStore(*historyPath)
	seen, err := store.SeenIDs()
	if err != nil {
		log.Fatalf("Failed to load history: %v", err)
	}
	log.Printf("Loaded %d previously seen ids from %s", len(seen), *historyPath)

	crawler := ingest.NewCrawler(ingest.NewRetryFetcher(*timeout, 3))
	crawler.Colly = ingest.NewCollyFetcher()

	pipeline := ingest.NewPipeline(registry.Sources, crawler, score.NewScorer(), store)

	report, err := pipeline.Run(context.Background(), seen)
	if err != nil {
		log.Fatalf("Run %s failed: %v", report.RunID, err)
	}

	renderReport(report)

	if len(report.Failures) > 0 {
		log.Printf("WARN: %d source failures encountered", len(report.Failures))
		for _, f := range report.Failures {
			log.Printf("  [%s] %s", f.SourceID, f.Error)
		}
	}
	log.Printf("Run %s complete: %d new records appended", report.RunID, report.NewRecords)
}

func renderReport(report *ingest.RunReport) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Source", "Found", "New"})
	for _, s := range report.PerSource {
		t.AppendRow(table.Row{s.SourceID, s.Found, s.New})
	}
	t.AppendFooter(table.Row{"Total", "", report.NewRecords})
	t.Render()
}
