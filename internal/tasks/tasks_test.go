package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/groupmix/smartsort/internal/advisor"
	"github.com/groupmix/smartsort/internal/ai"
	"github.com/groupmix/smartsort/internal/metadata"
	"github.com/groupmix/smartsort/internal/models"
	"github.com/groupmix/smartsort/internal/shared"
	"github.com/groupmix/smartsort/internal/sorter"
)

// mockStore implements PlaylistStore and OrderStore for pipeline tests.
type mockStore struct {
	playlists []models.Playlist
	songs     []models.Song

	loadErr    error
	saveErr    error
	stale      bool
	savedGroup []string
	savedLists map[string][]string
	savedAt    time.Time
	method     models.SortMethod
}

func (m *mockStore) GroupPlaylists(groupID string) ([]models.Playlist, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.playlists, nil
}

func (m *mockStore) GroupSongs(groupID string) ([]models.Song, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.songs, nil
}

func (m *mockStore) SaveGroupOrder(groupID string, songIDs []string, method models.SortMethod, sortedAt time.Time) (bool, error) {
	if m.saveErr != nil {
		return false, m.saveErr
	}
	if m.stale {
		return false, nil
	}
	m.savedGroup = songIDs
	m.method = method
	m.savedAt = sortedAt
	return true, nil
}

func (m *mockStore) SavePlaylistOrders(groupID string, orders map[string][]string, method models.SortMethod, sortedAt time.Time) (bool, error) {
	if m.saveErr != nil {
		return false, m.saveErr
	}
	if m.stale {
		return false, nil
	}
	m.savedLists = orders
	m.method = method
	m.savedAt = sortedAt
	return true, nil
}

// mockFetcher returns bare metadata for whatever songs come in.
type mockFetcher struct {
	opts metadata.Options
	err  error
}

func (m *mockFetcher) Fetch(ctx context.Context, songs []models.Song, opts metadata.Options) (*metadata.Result, error) {
	m.opts = opts
	if m.err != nil {
		return nil, m.err
	}

	out := &metadata.Result{
		Latencies: map[string]time.Duration{"spotify": 120 * time.Millisecond},
		Coverage:  1,
	}
	for _, s := range songs {
		out.Songs = append(out.Songs, models.SongMetadata{
			SongID:     s.ID,
			PlaylistID: s.PlaylistID,
			Title:      s.Title,
			Artist:     s.Artist,
			Platform:   s.Platform,
			Sources:    []string{"spotify"},
		})
	}
	return out, nil
}

// mockRefiner reverses the baseline so tests can tell it ran.
type mockRefiner struct {
	called bool
	method models.SortMethod
}

func (m *mockRefiner) Refine(ctx context.Context, songs []models.SongMetadata, baseline []string) ai.Refinement {
	m.called = true
	method := m.method
	if method == "" {
		method = models.MethodAIVerified
	}

	reversed := make([]string, len(baseline))
	for i, id := range baseline {
		reversed[len(baseline)-1-i] = id
	}
	if method != models.MethodAIVerified {
		reversed = baseline
	}
	return ai.Refinement{Order: reversed, Method: method, Model: "test-model", Attempts: 1}
}

// mockTuner returns a fixed recommendation.
type mockTuner struct {
	rec advisor.Recommendation
}

func (m *mockTuner) Recommend(songCount int) advisor.Recommendation { return m.rec }

// mockSink captures recorded metrics.
type mockSink struct {
	records []models.RunMetrics
}

func (m *mockSink) Record(rm models.RunMetrics) { m.records = append(m.records, rm) }

func groupFixture() ([]models.Playlist, []models.Song) {
	playlists := []models.Playlist{
		{ID: "pl1", GroupID: "g1", Platform: "spotify", Name: "One"},
		{ID: "pl2", GroupID: "g1", Platform: "youtube", Name: "Two"},
	}
	var songs []models.Song
	for i := 0; i < 4; i++ {
		pl := "pl1"
		if i >= 2 {
			pl = "pl2"
		}
		songs = append(songs, models.Song{
			ID:         fmt.Sprintf("s%d", i+1),
			PlaylistID: pl,
			Platform:   "spotify",
			Title:      fmt.Sprintf("Song %d", i+1),
			Artist:     fmt.Sprintf("Artist %d", i+1),
			Position:   i % 2,
		})
	}
	return playlists, songs
}

func newTestEngine(store *mockStore, fetcher *mockFetcher, refiner Refiner, sink *mockSink) *SortEngine {
	tuner := &mockTuner{rec: advisor.Recommendation{Concurrency: 3, BatchSize: 50}}
	return NewSortEngine(store, store, fetcher, sorter.NewHeuristic(), refiner, tuner, sink, shared.NewLogger(io.Discard))
}

func assertPermutation(t *testing.T, songs []models.Song, order []string) {
	t.Helper()
	if len(order) != len(songs) {
		t.Fatalf("expected %d ids, got %d", len(songs), len(order))
	}
	seen := make(map[string]bool)
	for _, id := range order {
		if seen[id] {
			t.Fatalf("duplicate id %s in order %v", id, order)
		}
		seen[id] = true
	}
	for _, s := range songs {
		if !seen[s.ID] {
			t.Fatalf("missing id %s in order %v", s.ID, order)
		}
	}
}

func TestSortEngine_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("Unified Order With Model", func(t *testing.T) {
		playlists, songs := groupFixture()
		store := &mockStore{playlists: playlists, songs: songs}
		refiner := &mockRefiner{}
		sink := &mockSink{}
		engine := newTestEngine(store, &mockFetcher{}, refiner, sink)

		result, err := engine.Run(ctx, models.SortRequest{GroupID: "g1", UserID: "u1", Mode: models.ModeAll}, nil)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}

		assertPermutation(t, songs, result.SortedSongIDs)
		if result.Method != models.MethodAIVerified {
			t.Errorf("expected ai-verified, got %s", result.Method)
		}
		if !refiner.called {
			t.Error("expected refiner to run")
		}
		if len(store.savedGroup) != len(songs) {
			t.Errorf("expected group order persisted, got %v", store.savedGroup)
		}
		if !result.Summary.LastWriteWins {
			t.Error("expected write to win on empty store")
		}
		if result.Summary.SourceCoverage["spotify"] != 4 {
			t.Errorf("expected full spotify coverage, got %v", result.Summary.SourceCoverage)
		}

		if len(sink.records) != 1 {
			t.Fatalf("expected 1 metrics record, got %d", len(sink.records))
		}
		m := sink.records[0]
		if !m.Success || m.SongCount != 4 || m.PlaylistCount != 2 {
			t.Errorf("unexpected metrics: %+v", m)
		}
		if m.SourceLatencies["spotify"] != 120 {
			t.Errorf("expected source latency in ms, got %v", m.SourceLatencies)
		}
	})

	t.Run("SkipAI Stays Heuristic", func(t *testing.T) {
		playlists, songs := groupFixture()
		store := &mockStore{playlists: playlists, songs: songs}
		refiner := &mockRefiner{}
		engine := newTestEngine(store, &mockFetcher{}, refiner, &mockSink{})

		result, err := engine.Run(ctx, models.SortRequest{GroupID: "g1", UserID: "u1", Mode: models.ModeAll, SkipAI: true}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if result.Method != models.MethodHeuristic {
			t.Errorf("expected heuristic, got %s", result.Method)
		}
		if refiner.called {
			t.Error("expected refiner to be skipped")
		}
	})

	t.Run("Playlist Mode Splits Order", func(t *testing.T) {
		playlists, songs := groupFixture()
		store := &mockStore{playlists: playlists, songs: songs}
		engine := newTestEngine(store, &mockFetcher{}, &mockRefiner{}, &mockSink{})

		result, err := engine.Run(ctx, models.SortRequest{GroupID: "g1", UserID: "u1", Mode: models.ModePlaylist}, nil)
		if err != nil {
			t.Fatal(err)
		}

		if len(store.savedLists) != 2 {
			t.Fatalf("expected orders for 2 playlists, got %v", store.savedLists)
		}
		if len(store.savedLists["pl1"])+len(store.savedLists["pl2"]) != 4 {
			t.Errorf("expected all songs across playlist orders, got %v", store.savedLists)
		}
		for _, id := range store.savedLists["pl1"] {
			if id != "s1" && id != "s2" {
				t.Errorf("song %s does not belong to pl1", id)
			}
		}
		assertPermutation(t, songs, result.SortedSongIDs)
	})

	t.Run("Model Fallback Reported Not Errored", func(t *testing.T) {
		playlists, songs := groupFixture()
		store := &mockStore{playlists: playlists, songs: songs}
		refiner := &mockRefiner{method: models.MethodFallback}
		engine := newTestEngine(store, &mockFetcher{}, refiner, &mockSink{})

		result, err := engine.Run(ctx, models.SortRequest{GroupID: "g1", UserID: "u1", Mode: models.ModeAll}, nil)
		if err != nil {
			t.Fatalf("fallback must not error the run: %v", err)
		}
		if !result.FallbackUsed() {
			t.Errorf("expected fallback reported, got %s", result.Method)
		}
	})

	t.Run("Persistence Failure Errors And Records", func(t *testing.T) {
		playlists, songs := groupFixture()
		store := &mockStore{
			playlists: playlists,
			songs:     songs,
			saveErr:   fmt.Errorf("%w: disk full", shared.ErrPersistence),
		}
		sink := &mockSink{}
		engine := newTestEngine(store, &mockFetcher{}, &mockRefiner{}, sink)

		_, err := engine.Run(ctx, models.SortRequest{GroupID: "g1", UserID: "u1", Mode: models.ModeAll}, nil)
		if !errors.Is(err, shared.ErrPersistence) {
			t.Fatalf("expected ErrPersistence, got %v", err)
		}

		if len(sink.records) != 1 || sink.records[0].Success {
			t.Errorf("expected failed run recorded, got %+v", sink.records)
		}
	})

	t.Run("Stale Run Succeeds Without Writing", func(t *testing.T) {
		playlists, songs := groupFixture()
		store := &mockStore{playlists: playlists, songs: songs, stale: true}
		engine := newTestEngine(store, &mockFetcher{}, &mockRefiner{}, &mockSink{})

		result, err := engine.Run(ctx, models.SortRequest{GroupID: "g1", UserID: "u1", Mode: models.ModeAll}, nil)
		if err != nil {
			t.Fatalf("losing the write race must not error: %v", err)
		}
		if result.Summary.LastWriteWins {
			t.Error("expected LastWriteWins false when a newer order is stored")
		}
	})

	t.Run("Unknown Group Propagates", func(t *testing.T) {
		store := &mockStore{loadErr: fmt.Errorf("%w: no playlists", shared.ErrGroupNotFound)}
		sink := &mockSink{}
		engine := newTestEngine(store, &mockFetcher{}, &mockRefiner{}, sink)

		_, err := engine.Run(ctx, models.SortRequest{GroupID: "missing", UserID: "u1", Mode: models.ModeAll}, nil)
		if !errors.Is(err, shared.ErrGroupNotFound) {
			t.Fatalf("expected ErrGroupNotFound, got %v", err)
		}
		if len(sink.records) != 1 || sink.records[0].Success {
			t.Errorf("expected failed run recorded, got %+v", sink.records)
		}
	})

	t.Run("Invalid Request Rejected", func(t *testing.T) {
		engine := newTestEngine(&mockStore{}, &mockFetcher{}, &mockRefiner{}, &mockSink{})
		_, err := engine.Run(ctx, models.SortRequest{GroupID: "g1", Mode: "shuffle"}, nil)
		if !errors.Is(err, shared.ErrInvalidMode) {
			t.Fatalf("expected ErrInvalidMode, got %v", err)
		}
	})

	t.Run("Advisor Tuning Reaches Fetcher", func(t *testing.T) {
		playlists, songs := groupFixture()
		store := &mockStore{playlists: playlists, songs: songs}
		fetcher := &mockFetcher{}
		tuner := &mockTuner{rec: advisor.Recommendation{
			Concurrency:     5,
			BatchSize:       25,
			SkipSlowSources: true,
			SlowSources:     []string{"lastfm"},
		}}
		engine := NewSortEngine(store, store, fetcher, sorter.NewHeuristic(), &mockRefiner{}, tuner, &mockSink{}, shared.NewLogger(io.Discard))

		result, err := engine.Run(ctx, models.SortRequest{GroupID: "g1", UserID: "u1", Mode: models.ModeAll}, nil)
		if err != nil {
			t.Fatal(err)
		}

		if fetcher.opts.Concurrency != 5 || fetcher.opts.BatchSize != 25 {
			t.Errorf("expected tuning passed through, got %+v", fetcher.opts)
		}
		if len(fetcher.opts.SkipSources) != 1 || fetcher.opts.SkipSources[0] != "lastfm" {
			t.Errorf("expected slow source skipped, got %v", fetcher.opts.SkipSources)
		}
		if len(result.Summary.SkippedSources) != 1 {
			t.Errorf("expected skipped sources in summary, got %v", result.Summary.SkippedSources)
		}
	})

	t.Run("Progress Updates Flow", func(t *testing.T) {
		playlists, songs := groupFixture()
		store := &mockStore{playlists: playlists, songs: songs}
		engine := newTestEngine(store, &mockFetcher{}, &mockRefiner{}, &mockSink{})

		progress := make(chan ProgressUpdate, 16)
		if _, err := engine.Run(ctx, models.SortRequest{GroupID: "g1", UserID: "u1", Mode: models.ModeAll}, progress); err != nil {
			t.Fatal(err)
		}
		close(progress)

		var phases []Phase
		for u := range progress {
			phases = append(phases, u.Phase)
		}
		if len(phases) != totalSteps {
			t.Fatalf("expected %d updates, got %d", totalSteps, len(phases))
		}
		if phases[0] != LoadGroup || phases[len(phases)-1] != Persist {
			t.Errorf("unexpected phase order: %v", phases)
		}
	})
}
