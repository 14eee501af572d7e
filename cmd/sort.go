package main

import (
	"context"
	"fmt"
	"time"

	"github.com/groupmix/smartsort/internal/formatter"
	"github.com/groupmix/smartsort/internal/models"
	"github.com/groupmix/smartsort/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Sort runs one sort for a group and renders the result. The CLI drives
// the engine directly rather than going through the scheduler: there is
// exactly one run and the caller is already waiting for it.
func (r *Runner) Sort(ctx context.Context, cmd *cli.Command) error {
	groupID := cmd.String("group")
	mode := models.SortMode(cmd.String("mode"))
	skipAI := cmd.Bool("skip-ai")
	format := cmd.String("format")
	outputBase := cmd.String("output")

	st, err := r.buildStack(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	req := models.SortRequest{
		GroupID:     groupID,
		Mode:        mode,
		SkipAI:      skipAI,
		SubmittedAt: time.Now(),
	}

	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.logger.Info(update.Message, "phase", update.Phase.String(), "step", update.Step, "total", update.Total)
		}
	}()

	result, err := st.engine.Run(ctx, req, progress)
	close(progress)
	<-done
	if err != nil {
		return fmt.Errorf("sort failed: %w", err)
	}

	return r.renderResult(result, st, format, outputBase)
}

// renderResult writes the sorted order in the requested format, either
// to the output writer or to files when a base path is given.
func (r *Runner) renderResult(result *models.SortResult, st *stack, format, outputBase string) error {
	export := &formatter.OrderExport{
		Result: result,
		Songs:  r.exportSongs(st, result.GroupID),
	}

	if outputBase != "" {
		written, err := formatter.WriteExport(export, format, outputBase)
		if err != nil {
			return err
		}
		r.writePlain("✓ Order written to %s\n", written.OrderFile)
		r.writePlain("✓ Summary written to %s\n", written.SummaryFile)
		return nil
	}

	switch format {
	case "json":
		return r.writeJSON(result, true)
	case "csv":
		data, err := formatter.ExportToCSV(export)
		if err != nil {
			return err
		}
		return r.writePlain("%s", data)
	case "markdown", "md":
		data, err := formatter.ExportToMarkdown(export)
		if err != nil {
			return err
		}
		return r.writePlain("%s", data)
	default:
		data, err := formatter.ExportToText(export)
		if err != nil {
			return err
		}
		return r.writePlain("%s", data)
	}
}

// exportSongs loads titles and artists for rendering. Metadata loss here
// only degrades the listing, the sorted order itself is already final.
func (r *Runner) exportSongs(st *stack, groupID string) []models.SongMetadata {
	songs, err := st.playlists.GroupSongs(groupID)
	if err != nil {
		r.logger.Warn("failed to load songs for rendering", "error", err)
		return nil
	}

	out := make([]models.SongMetadata, len(songs))
	for i, s := range songs {
		out[i] = models.SongMetadata{
			SongID:     s.ID,
			PlaylistID: s.PlaylistID,
			Title:      s.Title,
			Artist:     s.Artist,
			Platform:   s.Platform,
		}
	}
	return out
}
