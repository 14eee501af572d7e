package formatter

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/groupmix/smartsort/internal/models"
)

func sampleExport() *OrderExport {
	return &OrderExport{
		Result: &models.SortResult{
			GroupID:       "g1",
			Mode:          models.ModeAll,
			SortedSongIDs: []string{"s2", "s1", "s3"},
			Method:        models.MethodAIVerified,
			Summary: models.SortSummary{
				SongsProcessed: 3,
				TotalDuration:  1200 * time.Millisecond,
				SkippedSources: []string{"lastfm"},
			},
		},
		Songs: []models.SongMetadata{
			{SongID: "s1", Title: "Holocene", Artist: "Bon Iver", Genres: []string{"indie folk"}, Popularity: 72},
			{SongID: "s2", Title: "Midnight City", Artist: "M83", Genres: []string{"synthpop", "electronic"}, Popularity: 85},
		},
	}
}

func TestExportToCSV(t *testing.T) {
	t.Run("Renders Rows In Sorted Order", func(t *testing.T) {
		data, err := ExportToCSV(sampleExport())
		if err != nil {
			t.Fatalf("failed to export: %v", err)
		}

		records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
		if err != nil {
			t.Fatalf("failed to parse CSV: %v", err)
		}
		if len(records) != 4 {
			t.Fatalf("expected header plus 3 rows, got %d", len(records))
		}
		if records[0][0] != "Position" {
			t.Errorf("unexpected header: %v", records[0])
		}
		if records[1][1] != "s2" || records[1][2] != "Midnight City" {
			t.Errorf("expected s2 first, got %v", records[1])
		}
		if records[1][4] != "synthpop;electronic" {
			t.Errorf("expected joined genres, got %q", records[1][4])
		}
	})

	t.Run("Handles Missing Metadata", func(t *testing.T) {
		data, err := ExportToCSV(sampleExport())
		if err != nil {
			t.Fatalf("failed to export: %v", err)
		}

		records, _ := csv.NewReader(strings.NewReader(string(data))).ReadAll()
		// s3 has no metadata entry, so only the ID column carries data.
		last := records[3]
		if last[1] != "s3" || last[2] != "" {
			t.Errorf("expected bare ID row for s3, got %v", last)
		}
	})
}

func TestExportToMarkdown(t *testing.T) {
	data, err := ExportToMarkdown(sampleExport())
	if err != nil {
		t.Fatalf("failed to export: %v", err)
	}
	md := string(data)

	for _, want := range []string{
		"# Sort Order: g1",
		"**Method**: ai-verified",
		"**Skipped sources**: lastfm",
		"1. M83 - Midnight City (synthpop)",
		"2. Bon Iver - Holocene (indie folk)",
		"3. s3",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("expected markdown to contain %q:\n%s", want, md)
		}
	}
}

func TestExportToText(t *testing.T) {
	data, err := ExportToText(sampleExport())
	if err != nil {
		t.Fatalf("failed to export: %v", err)
	}
	text := string(data)

	if !strings.Contains(text, "Method: ai-verified") {
		t.Errorf("expected method line, got:\n%s", text)
	}
	if !strings.Contains(text, "1. M83 - Midnight City") {
		t.Errorf("expected ranked list, got:\n%s", text)
	}
}

func TestWriteExport(t *testing.T) {
	t.Run("CSV With Summary", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "g1")
		result, err := WriteExport(sampleExport(), "csv", base)
		if err != nil {
			t.Fatalf("failed to write export: %v", err)
		}

		if result.OrderFile != base+"_order.csv" {
			t.Errorf("unexpected order file: %s", result.OrderFile)
		}
		raw, err := os.ReadFile(result.SummaryFile)
		if err != nil {
			t.Fatalf("failed to read summary: %v", err)
		}
		var summary models.SortResult
		if err := json.Unmarshal(raw, &summary); err != nil {
			t.Fatalf("summary is not valid JSON: %v", err)
		}
		if summary.Method != models.MethodAIVerified {
			t.Errorf("expected method in summary, got %s", summary.Method)
		}
	})

	t.Run("Defaults To Text", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "g1")
		result, err := WriteExport(sampleExport(), "", base)
		if err != nil {
			t.Fatalf("failed to write export: %v", err)
		}
		if !strings.HasSuffix(result.OrderFile, "_order.txt") {
			t.Errorf("expected text default, got %s", result.OrderFile)
		}
	})

	t.Run("Rejects Unknown Format", func(t *testing.T) {
		if _, err := WriteExport(sampleExport(), "xml", filepath.Join(t.TempDir(), "g1")); err == nil {
			t.Error("expected error for unsupported format")
		}
	})
}
