// Package cli provides CLI output utilities for Miru.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hyperjump/miru/internal/indexer"
	"github.com/hyperjump/miru/internal/models"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
)

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results for %q in %.2fs\n\n",
		len(response.Results), response.Query, response.ProcessingTime)
	for i, result := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", i+1, result.Score)
		fmt.Fprintf(w, "File: %s (id %s)\n", result.Filename, result.ImageID)
		if result.ImageURL != "" {
			fmt.Fprintf(w, "URL: %s\n", result.ImageURL)
		}
		if result.Explanation != nil {
			fmt.Fprintf(w, "\n%s\n", *result.Explanation)
		}
		fmt.Fprintln(w)
	}
}

// PrintSearchResults prints search results to stdout in text format.
func PrintSearchResults(response *models.SearchResponse) {
	_ = WriteSearchResults(os.Stdout, response, OutputText)
}

// WriteIndexReport writes an indexing run report to w.
func WriteIndexReport(w io.Writer, report *indexer.Report) {
	fmt.Fprintf(w, "\nIndexing run %s (%s)\n", report.RunID, report.Mode)
	fmt.Fprintf(w, "  images found:  %d\n", report.Total)
	fmt.Fprintf(w, "  indexed:       %d\n", report.Indexed)
	fmt.Fprintf(w, "  unchanged:     %d\n", report.Unchanged)
	fmt.Fprintf(w, "  corrupt:       %d\n", report.Corrupt)
}
