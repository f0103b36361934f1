package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/signalbid/oie/internal/config"
	"github.com/signalbid/oie/internal/ingest"
)

func main() {
	sourcesPath := flag.String("sources", "configs/sources.yaml", "Path to sources configuration")
	sourceID := flag.String("source", "", "Source ID to test")
	limit := flag.Int("limit", 10, "Max items to extract")
	noFetchPDF := flag.Bool("no-fetch-pdf", false, "Don't fetch detail pages to find PDFs")
	outPath := flag.String("out", "", "Optional output file path for JSON results")
	flag.Parse()

	if *sourceID == "" {
		log.Fatal("Please provide a source ID using -source flag")
	}

	registry, err := config.Load(*sourcesPath)
	if err != nil {
		log.Fatalf("Failed to load sources: %v", err)
	}

	src, ok := registry.Find(*sourceID)
	if !ok {
		log.Fatalf("Source %q not found in %s", *sourceID, *sourcesPath)
	}

	crawler := ingest.NewCrawler(ingest.NewRetryFetcher(30*time.Second, 3))
	crawler.Colly = ingest.NewCollyFetcher()

	report := crawler.TestSelectors(context.Background(), src, *limit, !*noFetchPDF)

	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode report: %v", err)
	}

	if *outPath != "" {
		if err := os.WriteFile(*outPath, payload, 0o644); err != nil {
			log.Fatalf("Failed to write %s: %v", *outPath, err)
		}
		log.Printf("Results written to %s", *outPath)
		return
	}
	fmt.Println(string(payload))
}
