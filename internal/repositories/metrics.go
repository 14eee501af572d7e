package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/groupmix/smartsort/internal/models"
	"github.com/groupmix/smartsort/internal/shared"
)

// MetricsRepository is the append-only run metrics log. Rows are never
// updated or deleted; the advisor reads recent windows back out.
type MetricsRepository struct {
	db *sql.DB
}

// NewMetricsRepository creates a new MetricsRepository with the given database connection
func NewMetricsRepository(db *sql.DB) *MetricsRepository {
	return &MetricsRepository{db: db}
}

// AppendRunMetrics inserts one run record with a generated ID and sequence.
func (r *MetricsRepository) AppendRunMetrics(ctx context.Context, m models.RunMetrics) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "run_metrics")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	if m.ID == "" {
		m.ID = shared.GenerateID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	latencies, err := json.Marshal(m.SourceLatencies)
	if err != nil {
		return fmt.Errorf("failed to encode source latencies: %w", err)
	}

	query := `
		INSERT INTO run_metrics (
			id, sequence, group_id, user_id, playlist_count, song_count,
			fetch_ms, sort_ms, verify_ms, persist_ms, total_ms,
			concurrency, batch_size, skipped_slow_sources, method,
			source_latencies, success, error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		m.ID,
		sequence,
		m.GroupID,
		m.UserID,
		m.PlaylistCount,
		m.SongCount,
		m.FetchMS,
		m.SortMS,
		m.VerifyMS,
		m.PersistMS,
		m.TotalMS,
		m.Concurrency,
		m.BatchSize,
		m.SkippedSlowSources,
		string(m.Method),
		string(latencies),
		m.Success,
		m.Error,
		m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run metrics: %w", err)
	}

	return nil
}

// RecentRuns returns the most recent runs across all groups, newest first.
func (r *MetricsRepository) RecentRuns(limit int) ([]models.RunMetrics, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.queryRuns("SELECT "+metricsColumns+" FROM run_metrics ORDER BY sequence DESC LIMIT ?", limit)
}

// RunsForGroup returns one group's recent runs, newest first.
func (r *MetricsRepository) RunsForGroup(groupID string, limit int) ([]models.RunMetrics, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.queryRuns("SELECT "+metricsColumns+" FROM run_metrics WHERE group_id = ? ORDER BY sequence DESC LIMIT ?", groupID, limit)
}

const metricsColumns = `id, sequence, group_id, user_id, playlist_count, song_count,
	fetch_ms, sort_ms, verify_ms, persist_ms, total_ms,
	concurrency, batch_size, skipped_slow_sources, method,
	source_latencies, success, error, created_at`

func (r *MetricsRepository) queryRuns(query string, args ...any) ([]models.RunMetrics, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query run metrics: %w", err)
	}
	defer rows.Close()

	var runs []models.RunMetrics
	for rows.Next() {
		var (
			m         models.RunMetrics
			method    string
			latencies string
			errText   sql.NullString
		)
		err := rows.Scan(
			&m.ID, &m.Sequence, &m.GroupID, &m.UserID, &m.PlaylistCount, &m.SongCount,
			&m.FetchMS, &m.SortMS, &m.VerifyMS, &m.PersistMS, &m.TotalMS,
			&m.Concurrency, &m.BatchSize, &m.SkippedSlowSources, &method,
			&latencies, &m.Success, &errText, &m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run metrics: %w", err)
		}
		m.Method = models.SortMethod(method)
		m.Error = errText.String
		if latencies != "" {
			if err := json.Unmarshal([]byte(latencies), &m.SourceLatencies); err != nil {
				return nil, fmt.Errorf("corrupt source latencies for run %s: %w", m.ID, err)
			}
		}
		runs = append(runs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run metrics: %w", err)
	}

	return runs, nil
}
