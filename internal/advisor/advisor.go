// Package advisor tunes sort runs from recorded history.
//
// Each completed run leaves a [models.RunMetrics] behind; the Advisor
// reads recent history and recommends concurrency, batch size, and
// whether to skip the slow sources for the next run. With little or no
// history it falls back to configured defaults and says so through a low
// confidence figure.
package advisor

import (
	"sort"
	"time"

	"github.com/groupmix/smartsort/internal/models"
)

const (
	// fullConfidenceRuns is the history depth at which recommendations
	// reach full confidence.
	fullConfidenceRuns = 20
	// minHistoryRuns is the floor below which only defaults come back.
	minHistoryRuns = 5

	maxConcurrency = 8
	minBatchSize   = 10
	maxBatchSize   = 100

	// slowSourceThreshold marks a source worth skipping under load.
	slowSourceThreshold = 2 * time.Second
)

// Recommendation is the advisor's tuning for one upcoming run.
type Recommendation struct {
	Concurrency       int           `json:"concurrency"`
	BatchSize         int           `json:"batch_size"`
	SkipSlowSources   bool          `json:"skip_slow_sources"`
	SlowSources       []string      `json:"slow_sources,omitempty"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
	// Confidence grows linearly with history depth, 0 to 1.
	Confidence float64 `json:"confidence"`
	DataPoints int     `json:"data_points"`
}

// History supplies recent run metrics, newest first.
type History interface {
	Recent(limit int) []models.RunMetrics
}

// Advisor recommends run parameters from history.
type Advisor struct {
	history            History
	defaultConcurrency int
	defaultBatchSize   int
}

// New creates an advisor over the given history source.
func New(history History, defaultConcurrency, defaultBatchSize int) *Advisor {
	if defaultConcurrency <= 0 {
		defaultConcurrency = 3
	}
	if defaultBatchSize <= 0 {
		defaultBatchSize = 50
	}
	return &Advisor{
		history:            history,
		defaultConcurrency: defaultConcurrency,
		defaultBatchSize:   defaultBatchSize,
	}
}

// Recommend produces tuning for a run over songCount songs.
func (a *Advisor) Recommend(songCount int) Recommendation {
	rec := Recommendation{
		Concurrency: a.defaultConcurrency,
		BatchSize:   a.defaultBatchSize,
	}

	recent := a.history.Recent(fullConfidenceRuns)
	rec.DataPoints = len(recent)
	rec.Confidence = float64(len(recent)) / fullConfidenceRuns
	if rec.Confidence > 1 {
		rec.Confidence = 1
	}

	if len(recent) < minHistoryRuns {
		rec.EstimatedDuration = a.estimate(recent, songCount, rec.Concurrency)
		return rec
	}

	successes := 0
	var fetchTotal time.Duration
	sourceTotals := make(map[string]time.Duration)
	sourceCounts := make(map[string]int)
	for _, m := range recent {
		if m.Success {
			successes++
		}
		fetchTotal += m.FetchDuration()
		for name, ms := range m.SourceLatencies {
			sourceTotals[name] += time.Duration(ms) * time.Millisecond
			sourceCounts[name]++
		}
	}
	failureRate := 1 - float64(successes)/float64(len(recent))

	// Fetching dominates run time. Raise concurrency while runs stay
	// healthy and fetch remains the bottleneck, back off when they fail.
	switch {
	case failureRate > 0.3:
		rec.Concurrency = a.defaultConcurrency - 1
	case failureRate < 0.1 && fetchTotal/time.Duration(len(recent)) > 5*time.Second:
		rec.Concurrency = a.defaultConcurrency + 2
	case failureRate < 0.2:
		rec.Concurrency = a.defaultConcurrency + 1
	}
	if rec.Concurrency < 1 {
		rec.Concurrency = 1
	}
	if rec.Concurrency > maxConcurrency {
		rec.Concurrency = maxConcurrency
	}

	// Large groups amortize per-batch overhead with bigger batches; small
	// groups keep batches small so failures cost less.
	switch {
	case songCount >= 500:
		rec.BatchSize = maxBatchSize
	case songCount >= 100:
		rec.BatchSize = a.defaultBatchSize
	default:
		rec.BatchSize = a.defaultBatchSize / 2
	}
	if rec.BatchSize < minBatchSize {
		rec.BatchSize = minBatchSize
	}

	for name, total := range sourceTotals {
		if mean := total / time.Duration(sourceCounts[name]); mean > slowSourceThreshold {
			rec.SlowSources = append(rec.SlowSources, name)
		}
	}
	sort.Strings(rec.SlowSources)
	// Skip slow sources only when under pressure; a healthy system keeps
	// full coverage.
	rec.SkipSlowSources = len(rec.SlowSources) > 0 && (failureRate > 0.2 || songCount >= 500)

	rec.EstimatedDuration = a.estimate(recent, songCount, rec.Concurrency)
	return rec
}

// estimate projects run duration from the recent per-song rate, scaled by
// the concurrency change relative to history.
func (a *Advisor) estimate(recent []models.RunMetrics, songCount, concurrency int) time.Duration {
	if songCount <= 0 {
		return 0
	}
	if len(recent) == 0 {
		// Cold start figure: observed fetch dominates at roughly 50ms a
		// song at the default concurrency.
		return time.Duration(songCount) * 50 * time.Millisecond
	}

	var total time.Duration
	songs := 0
	weightedConcurrency := 0
	for _, m := range recent {
		total += m.TotalDuration()
		songs += m.SongCount
		weightedConcurrency += m.Concurrency
	}
	if songs == 0 {
		return time.Duration(songCount) * 50 * time.Millisecond
	}

	perSong := total / time.Duration(songs)
	est := perSong * time.Duration(songCount)

	// Fetch parallelism scales the bulk of the run.
	histConcurrency := weightedConcurrency / len(recent)
	if histConcurrency > 0 && concurrency > 0 && histConcurrency != concurrency {
		est = est * time.Duration(histConcurrency) / time.Duration(concurrency)
	}

	return est
}
