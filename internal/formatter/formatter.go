// package formatter renders sort results to various formats (CSV, Markdown, plain text, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/groupmix/smartsort/internal/models"
	"github.com/groupmix/smartsort/internal/shared"
)

// OrderExport pairs a sort result with the enriched songs in final order.
// Songs may be shorter than the result's ID list when metadata was
// unavailable for some tracks; missing songs render with their ID only.
type OrderExport struct {
	Result *models.SortResult
	Songs  []models.SongMetadata
}

// songByID indexes the export's songs for positional rendering.
func (e *OrderExport) songByID() map[string]models.SongMetadata {
	index := make(map[string]models.SongMetadata, len(e.Songs))
	for _, song := range e.Songs {
		index[song.SongID] = song
	}
	return index
}

// ExportToCSV converts an OrderExport to CSV with columns: Position, ID, Title, Artist, Genres, Popularity
func ExportToCSV(export *OrderExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Position", "ID", "Title", "Artist", "Genres", "Popularity"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	index := export.songByID()
	for i, id := range export.Result.SortedSongIDs {
		song := index[id]
		record := []string{
			strconv.Itoa(i + 1),
			id,
			song.Title,
			song.Artist,
			strings.Join(song.Genres, ";"),
			strconv.Itoa(song.Popularity),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts an OrderExport to Markdown with a summary table and ranked track list
func ExportToMarkdown(export *OrderExport) ([]byte, error) {
	var buf bytes.Buffer
	result := export.Result

	buf.WriteString(fmt.Sprintf("# Sort Order: %s\n\n", result.GroupID))
	buf.WriteString(fmt.Sprintf("**Mode**: %s\n", result.Mode))
	buf.WriteString(fmt.Sprintf("**Method**: %s\n", result.Method))
	buf.WriteString(fmt.Sprintf("**Songs**: %d\n", result.Summary.SongsProcessed))
	buf.WriteString(fmt.Sprintf("**Duration**: %s\n\n", formatDuration(result.Summary.TotalDuration)))

	if len(result.Summary.SkippedSources) > 0 {
		buf.WriteString(fmt.Sprintf("**Skipped sources**: %s\n\n", strings.Join(result.Summary.SkippedSources, ", ")))
	}

	buf.WriteString("## Tracks\n\n")
	index := export.songByID()
	for i, id := range result.SortedSongIDs {
		song, ok := index[id]
		if !ok {
			buf.WriteString(fmt.Sprintf("%d. %s\n", i+1, id))
			continue
		}
		genrePart := ""
		if len(song.Genres) > 0 {
			genrePart = fmt.Sprintf(" (%s)", song.Genres[0])
		}
		buf.WriteString(fmt.Sprintf("%d. %s - %s%s\n", i+1, song.Artist, song.Title, genrePart))
	}

	return buf.Bytes(), nil
}

// ExportToText converts an OrderExport to plain text format
func ExportToText(export *OrderExport) ([]byte, error) {
	var buf bytes.Buffer
	result := export.Result

	buf.WriteString(fmt.Sprintf("Group: %s\n", result.GroupID))
	buf.WriteString(fmt.Sprintf("Method: %s\n", result.Method))
	buf.WriteString(fmt.Sprintf("Songs: %d\n\n", result.Summary.SongsProcessed))

	index := export.songByID()
	for i, id := range result.SortedSongIDs {
		song, ok := index[id]
		if !ok {
			buf.WriteString(fmt.Sprintf("%d. %s\n", i+1, id))
			continue
		}
		buf.WriteString(fmt.Sprintf("%d. %s - %s\n", i+1, song.Artist, song.Title))
	}

	return buf.Bytes(), nil
}

// ToSummaryJSON generates a pretty JSON representation of the run summary
func ToSummaryJSON(result *models.SortResult) ([]byte, error) {
	return shared.MarshalJSON(result, true)
}

// formatDuration renders a duration at millisecond precision, "n/a" for zero.
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "n/a"
	}
	return d.Round(time.Millisecond).String()
}

// ExportResult contains the paths of files created by WriteExport
type ExportResult struct {
	OrderFile   string
	SummaryFile string
}

// WriteExport writes an order export to disk in the requested format.
//
// Defaults to the group ID as the base filename & creates
// {base}_order.{ext} plus {base}_summary.json.
func WriteExport(export *OrderExport, format string, baseFilepath string) (*ExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = export.Result.GroupID
	}

	var (
		data []byte
		ext  string
		err  error
	)
	switch format {
	case "csv":
		data, err = ExportToCSV(export)
		ext = "csv"
	case "markdown", "md":
		data, err = ExportToMarkdown(export)
		ext = "md"
	case "text", "txt", "":
		data, err = ExportToText(export)
		ext = "txt"
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s export: %w", format, err)
	}

	orderFile := fmt.Sprintf("%s_order.%s", baseFilepath, ext)
	if err := os.WriteFile(orderFile, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write order file: %w", err)
	}

	summaryJSON, err := ToSummaryJSON(export.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to generate summary JSON: %w", err)
	}

	summaryFile := baseFilepath + "_summary.json"
	if err := os.WriteFile(summaryFile, summaryJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write summary file: %w", err)
	}

	return &ExportResult{
		OrderFile:   orderFile,
		SummaryFile: summaryFile,
	}, nil
}
