package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/signalbid/oie/internal/history"
)

func main() {
	historyPath := flag.String("history", "data/processed/opportunities.ndjson", "Path to the history log")
	limit := flag.Int("limit", 20, "Number of recent records to show")
	flag.Parse()

	store := history.NewStore(*historyPath)
	records, err := store.Tail(*limit)
	if err != nil {
		log.Fatalf("Failed to read history: %v", err)
	}
	if len(records) == 0 {
		log.Printf("No records in %s", *historyPath)
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Decision", "Buyer", "Title", "Deadline", "Budget", "Fetched At"})

	for _, rec := range records {
		title := rec.Title
		if len(title) > 48 {
			title = title[:45] + "..."
		}
		deadline := rec.DeadlineBucket
		if rec.Deadline != nil {
			deadline = *rec.Deadline + " (" + rec.DeadlineBucket + ")"
		}
		t.AppendRow(table.Row{
			rec.Decision,
			rec.BuyerOrg,
			title,
			deadline,
			rec.BudgetBucket,
			rec.FetchedAt.Format("2006-01-02 15:04"),
		})
	}
	t.Render()

	log.Printf("Showing %d records; tags of latest: %s",
		len(records), strings.Join(records[len(records)-1].Tags, " "))
}
