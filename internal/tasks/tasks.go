// package tasks implements the smart sort pipeline.
//
// The core abstraction is SortEngine, which runs one sort end to end:
// load the group's songs, tune run parameters from history, fetch
// metadata, order heuristically, optionally refine with the model, and
// persist the result. Runs emit progress updates via channels for
// non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/groupmix/smartsort/internal/advisor"
	"github.com/groupmix/smartsort/internal/ai"
	"github.com/groupmix/smartsort/internal/metadata"
	"github.com/groupmix/smartsort/internal/models"
	"github.com/groupmix/smartsort/internal/sorter"
)

// PlaylistStore is the read contract over group playlists and songs.
type PlaylistStore interface {
	GroupPlaylists(groupID string) ([]models.Playlist, error)
	GroupSongs(groupID string) ([]models.Song, error)
}

// OrderStore persists sorted orders with last-writer-wins semantics.
type OrderStore interface {
	SaveGroupOrder(groupID string, songIDs []string, method models.SortMethod, sortedAt time.Time) (bool, error)
	SavePlaylistOrders(groupID string, orders map[string][]string, method models.SortMethod, sortedAt time.Time) (bool, error)
}

// MetadataFetcher aggregates song attributes from the external catalogs.
type MetadataFetcher interface {
	Fetch(ctx context.Context, songs []models.Song, opts metadata.Options) (*metadata.Result, error)
}

// Refiner asks the model cascade for an improved ordering.
type Refiner interface {
	Refine(ctx context.Context, songs []models.SongMetadata, baseline []string) ai.Refinement
}

// Tuner recommends run parameters from history.
type Tuner interface {
	Recommend(songCount int) advisor.Recommendation
}

// MetricsSink captures one run's metrics without blocking.
type MetricsSink interface {
	Record(m models.RunMetrics)
}

// SortEngine orchestrates one sort run over a group's combined playlists.
type SortEngine struct {
	playlists PlaylistStore
	orders    OrderStore
	fetcher   MetadataFetcher
	heuristic *sorter.Heuristic
	verifier  Refiner
	tuner     Tuner
	metrics   MetricsSink
	logger    *log.Logger
}

// NewSortEngine creates a SortEngine with the provided dependencies.
// verifier may be nil, which pins every run to the heuristic order.
func NewSortEngine(
	playlists PlaylistStore,
	orders OrderStore,
	fetcher MetadataFetcher,
	heuristic *sorter.Heuristic,
	verifier Refiner,
	tuner Tuner,
	metrics MetricsSink,
	logger *log.Logger,
) *SortEngine {
	return &SortEngine{
		playlists: playlists,
		orders:    orders,
		fetcher:   fetcher,
		heuristic: heuristic,
		verifier:  verifier,
		tuner:     tuner,
		metrics:   metrics,
		logger:    logger,
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *SortEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Run executes one sort. The only errors it returns are load failures
// and persistence failures; metadata trouble degrades coverage and model
// trouble falls back to the heuristic order, both reflected in the
// result rather than surfaced as errors. Metrics are recorded for every
// run, failed ones included.
func (e *SortEngine) Run(ctx context.Context, req models.SortRequest, progress chan<- ProgressUpdate) (*models.SortResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now()
	}

	began := time.Now()
	run := runState{req: req}

	e.sendProgress(progress, loadGroupUpdate(req.GroupID))
	playlists, err := e.playlists.GroupPlaylists(req.GroupID)
	if err != nil {
		e.record(run, began, err)
		return nil, err
	}
	songs, err := e.playlists.GroupSongs(req.GroupID)
	if err != nil {
		e.record(run, began, err)
		return nil, err
	}
	run.playlistCount = len(playlists)
	run.songCount = len(songs)

	e.sendProgress(progress, adviseUpdate(len(songs)))
	rec := e.tuner.Recommend(len(songs))
	run.rec = rec

	opts := metadata.Options{
		Concurrency: rec.Concurrency,
		BatchSize:   rec.BatchSize,
	}
	if rec.SkipSlowSources {
		opts.SkipSources = rec.SlowSources
	}

	e.sendProgress(progress, fetchUpdate(rec.Concurrency, rec.BatchSize))
	fetchStart := time.Now()
	fetched, err := e.fetcher.Fetch(ctx, songs, opts)
	if err != nil {
		e.record(run, began, err)
		return nil, fmt.Errorf("metadata fetch aborted: %w", err)
	}
	run.fetch = time.Since(fetchStart)
	run.fetched = fetched

	e.sendProgress(progress, sortUpdate(len(songs)))
	sortStart := time.Now()
	baseline := e.heuristic.Sort(fetched.Songs)
	run.sort = time.Since(sortStart)

	order := baseline
	method := models.MethodHeuristic
	skipAI := req.SkipAI || e.verifier == nil
	e.sendProgress(progress, verifyUpdate(skipAI))
	if !skipAI {
		verifyStart := time.Now()
		ref := e.verifier.Refine(ctx, fetched.Songs, baseline)
		run.verify = time.Since(verifyStart)
		order = ref.Order
		method = ref.Method
	}
	run.method = method

	e.sendProgress(progress, persistUpdate())
	persistStart := time.Now()
	stored, err := e.persist(req, songs, order, method)
	run.persist = time.Since(persistStart)
	if err != nil {
		e.record(run, began, err)
		return nil, err
	}
	run.stored = stored

	result := e.buildResult(run, order, time.Since(began))
	e.record(run, began, nil)

	e.logger.Info("sort run completed",
		"group", req.GroupID,
		"mode", req.Mode,
		"songs", len(songs),
		"method", method,
		"stored", stored,
		"duration", result.Summary.TotalDuration)

	return result, nil
}

// runState accumulates per-stage outcomes for the summary and metrics.
type runState struct {
	req           models.SortRequest
	playlistCount int
	songCount     int
	rec           advisor.Recommendation
	fetched       *metadata.Result
	fetch         time.Duration
	sort          time.Duration
	verify        time.Duration
	persist       time.Duration
	method        models.SortMethod
	stored        bool
}

// persist writes the order in the requested scope, carrying the run's
// submission time so stale runs lose to newer stored orders.
func (e *SortEngine) persist(req models.SortRequest, songs []models.Song, order []string, method models.SortMethod) (bool, error) {
	if req.Mode == models.ModePlaylist {
		byPlaylist := make(map[string]string, len(songs))
		for _, s := range songs {
			byPlaylist[s.ID] = s.PlaylistID
		}

		orders := make(map[string][]string)
		for _, id := range order {
			pl := byPlaylist[id]
			orders[pl] = append(orders[pl], id)
		}
		return e.orders.SavePlaylistOrders(req.GroupID, orders, method, req.SubmittedAt)
	}

	return e.orders.SaveGroupOrder(req.GroupID, order, method, req.SubmittedAt)
}

// buildResult assembles the sort result and its summary.
func (e *SortEngine) buildResult(run runState, order []string, total time.Duration) *models.SortResult {
	summary := models.SortSummary{
		SongsProcessed:  run.songCount,
		PlaylistCount:   run.playlistCount,
		FetchDuration:   run.fetch,
		SortDuration:    run.sort,
		VerifyDuration:  run.verify,
		PersistDuration: run.persist,
		TotalDuration:   total,
		Concurrency:     run.rec.Concurrency,
		BatchSize:       run.rec.BatchSize,
		LastWriteWins:   run.stored,
	}
	if run.rec.SkipSlowSources {
		summary.SkippedSources = run.rec.SlowSources
	}
	if run.fetched != nil {
		coverage := make(map[string]int)
		for _, s := range run.fetched.Songs {
			for _, src := range s.Sources {
				coverage[src]++
			}
		}
		summary.SourceCoverage = coverage
	}

	return &models.SortResult{
		GroupID:       run.req.GroupID,
		Mode:          run.req.Mode,
		SortedSongIDs: order,
		Method:        run.method,
		Summary:       summary,
	}
}

// record hands the run's metrics to the sink. Called on every exit path.
func (e *SortEngine) record(run runState, began time.Time, runErr error) {
	if e.metrics == nil || run.req.GroupID == "" {
		return
	}

	m := models.RunMetrics{
		GroupID:            run.req.GroupID,
		UserID:             run.req.UserID,
		PlaylistCount:      run.playlistCount,
		SongCount:          run.songCount,
		FetchMS:            run.fetch.Milliseconds(),
		SortMS:             run.sort.Milliseconds(),
		VerifyMS:           run.verify.Milliseconds(),
		PersistMS:          run.persist.Milliseconds(),
		TotalMS:            time.Since(began).Milliseconds(),
		Concurrency:        run.rec.Concurrency,
		BatchSize:          run.rec.BatchSize,
		SkippedSlowSources: run.rec.SkipSlowSources,
		Method:             run.method,
		Success:            runErr == nil,
	}
	if run.fetched != nil {
		latencies := make(map[string]int64, len(run.fetched.Latencies))
		for name, d := range run.fetched.Latencies {
			latencies[name] = d.Milliseconds()
		}
		m.SourceLatencies = latencies
	}
	if runErr != nil {
		m.Error = runErr.Error()
	}

	e.metrics.Record(m)
}
