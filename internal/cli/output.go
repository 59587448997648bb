// Package cli provides output rendering for the kensaku command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/oshigiri/kensaku/internal/models"
)

// OutputFormat selects how command output is rendered.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat validates a format flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteSearchResults writes a search response to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	}
	fmt.Fprintf(w, "\nFound %d results in %dms\n", response.Total, response.QueryTime)
	if response.Degraded {
		fmt.Fprintf(w, "(degraded: %v)\n", response.DegradedReasons)
	}
	fmt.Fprintln(w)
	for _, result := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "%d. [%s] Score: %.4f\n", result.Rank+1, result.Source, result.Score)
		if result.Title != "" {
			fmt.Fprintf(w, "Title: %s\n", result.Title)
		}
		fmt.Fprintf(w, "Document: %s\nChunk: %s\n", result.DocumentID, result.ChunkID)
		if result.Excerpt != "" {
			fmt.Fprintf(w, "\n%s\n", result.Excerpt)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// Status summarizes store and pipeline state for the status command.
type Status struct {
	Documents      int64  `json:"documents"`
	Chunks         int64  `json:"chunks"`
	Embeddings     int64  `json:"embeddings"`
	PendingChunks  int64  `json:"pending_chunks"`
	QueueDepth     int64  `json:"queue_depth"`
	FailedJobs     int64  `json:"failed_jobs"`
	DiskUsageBytes int64  `json:"disk_usage_bytes"`
	DatabasePath   string `json:"database_path,omitempty"`
	BleveIndexPath string `json:"bleve_index_path,omitempty"`
}

// WriteStatus writes a status summary to w in the given format.
func WriteStatus(w io.Writer, status *Status, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}
	fmt.Fprintf(w, "Documents:      %d\n", status.Documents)
	fmt.Fprintf(w, "Chunks:         %d\n", status.Chunks)
	fmt.Fprintf(w, "Embeddings:     %d\n", status.Embeddings)
	fmt.Fprintf(w, "Pending chunks: %d\n", status.PendingChunks)
	fmt.Fprintf(w, "Queue depth:    %d\n", status.QueueDepth)
	fmt.Fprintf(w, "Failed jobs:    %d\n", status.FailedJobs)
	fmt.Fprintf(w, "Disk usage:     %.1f MB\n", float64(status.DiskUsageBytes)/(1024*1024))
	if status.DatabasePath != "" {
		fmt.Fprintf(w, "Database:       %s\n", status.DatabasePath)
	}
	if status.BleveIndexPath != "" {
		fmt.Fprintf(w, "Keyword index:  %s\n", status.BleveIndexPath)
	}
	return nil
}
