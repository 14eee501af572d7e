// package models defines the data model for the smart sort engine
package models

import (
	"fmt"
	"time"

	"github.com/groupmix/smartsort/internal/shared"
)

// SortMode selects the scope of a sort: one unified group order, or one
// order per member playlist.
type SortMode string

const (
	ModeAll      SortMode = "all"
	ModePlaylist SortMode = "playlist"
)

// Valid reports whether the mode is one of the supported sort scopes.
func (m SortMode) Valid() bool {
	return m == ModeAll || m == ModePlaylist
}

// SortMethod records which stage produced the final order.
type SortMethod string

const (
	MethodHeuristic  SortMethod = "heuristic"
	MethodAIVerified SortMethod = "ai-verified"
	MethodFallback   SortMethod = "fallback"
)

// Playlist is the read-only playlist contract the engine consumes.
type Playlist struct {
	ID          string `json:"id"`
	GroupID     string `json:"group_id"`
	Platform    string `json:"platform"`
	OwnerUserID string `json:"owner_user_id"`
	Name        string `json:"name"`
	TrackCount  int    `json:"track_count"`
}

// Song is one track row from the read contract, before metadata enrichment.
type Song struct {
	ID         string `json:"id"`
	PlaylistID string `json:"playlist_id"`
	Platform   string `json:"platform"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Position   int    `json:"position"`
}

// SongMetadata is the canonical per-song attribute set for one sort run.
// Every field beyond the identifiers is optional; each metadata source
// contributes what it knows and tags itself in Sources.
type SongMetadata struct {
	SongID     string             `json:"song_id"`
	PlaylistID string             `json:"playlist_id"`
	Title      string             `json:"title"`
	Artist     string             `json:"artist"`
	Platform   string             `json:"platform"`
	Genres     []string           `json:"genres,omitempty"`     // ordered, most significant first
	Popularity int                `json:"popularity"`           // 0-100, source-normalized; 0 when unknown
	Audio      map[string]float64 `json:"audio,omitempty"`      // energy, tempo, valence, ...
	Sources    []string           `json:"sources,omitempty"`    // names of sources that contributed
}

// HasAudio reports whether a named audio characteristic is present.
func (s *SongMetadata) HasAudio(key string) bool {
	_, ok := s.Audio[key]
	return ok
}

// SourceAttributes is one metadata source's partial contribution for a song.
type SourceAttributes struct {
	SongID     string
	Genres     []string
	Popularity *int
	Audio      map[string]float64
}

// SortRequest describes one smart sort job from admission to completion.
type SortRequest struct {
	GroupID     string    `json:"group_id"`
	UserID      string    `json:"user_id"`
	Mode        SortMode  `json:"mode"`
	SkipAI      bool      `json:"skip_ai"`
	SkipQueue   bool      `json:"skip_queue"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Validate checks the request fields the engine depends on.
func (r *SortRequest) Validate() error {
	if r.GroupID == "" {
		return fmt.Errorf("%w: group_id is required", shared.ErrInvalidInput)
	}
	if !r.Mode.Valid() {
		return fmt.Errorf("%w: mode must be %q or %q, got %q", shared.ErrInvalidMode, ModeAll, ModePlaylist, r.Mode)
	}
	return nil
}

// SortSummary carries diagnostic detail about a completed run.
type SortSummary struct {
	SongsProcessed  int            `json:"songs_processed"`
	PlaylistCount   int            `json:"playlist_count"`
	FetchDuration   time.Duration  `json:"fetch_duration"`
	SortDuration    time.Duration  `json:"sort_duration"`
	VerifyDuration  time.Duration  `json:"verify_duration"`
	PersistDuration time.Duration  `json:"persist_duration"`
	TotalDuration   time.Duration  `json:"total_duration"`
	Concurrency     int            `json:"concurrency"`
	BatchSize       int            `json:"batch_size"`
	SkippedSources  []string       `json:"skipped_sources,omitempty"`
	SourceCoverage  map[string]int `json:"source_coverage,omitempty"` // source name -> songs it contributed to
	LastWriteWins   bool           `json:"last_write_wins"`           // false when a newer order landed first
	PersistError    string         `json:"persist_error,omitempty"`
}

// SortResult is the outcome of one sort run. SortedSongIDs is always a
// permutation of the input song set, whichever stage produced it.
type SortResult struct {
	GroupID       string      `json:"group_id"`
	Mode          SortMode    `json:"mode"`
	SortedSongIDs []string    `json:"sorted_song_ids"`
	Method        SortMethod  `json:"method"`
	Summary       SortSummary `json:"summary"`
}

// FallbackUsed reports whether the AI step was attempted and abandoned.
func (r *SortResult) FallbackUsed() bool {
	return r.Method == MethodFallback
}

// QueueSnapshot is the scheduler's externally visible state.
type QueueSnapshot struct {
	Queued      int `json:"queued"`
	Running     int `json:"running"`
	HealthScore int `json:"health_score"`
}

// RunMetrics is one append-only record of a sort run, successful or not.
// Persisted by the metrics recorder and read back by the advisor.
type RunMetrics struct {
	ID                 string
	Sequence           int
	GroupID            string
	UserID             string
	PlaylistCount      int
	SongCount          int
	FetchMS            int64
	SortMS             int64
	VerifyMS           int64
	PersistMS          int64
	TotalMS            int64
	Concurrency        int
	BatchSize          int
	SkippedSlowSources bool
	Method             SortMethod
	SourceLatencies    map[string]int64 // source name -> mean batch latency in ms
	Success            bool
	Error              string
	CreatedAt          time.Time
}

// FetchDuration returns the metadata fetch stage time.
func (m RunMetrics) FetchDuration() time.Duration {
	return time.Duration(m.FetchMS) * time.Millisecond
}

// TotalDuration returns the whole run's wall time.
func (m RunMetrics) TotalDuration() time.Duration {
	return time.Duration(m.TotalMS) * time.Millisecond
}

// Validate checks the fields the metrics repository requires.
func (m *RunMetrics) Validate() error {
	if m.GroupID == "" {
		return fmt.Errorf("group_id is required")
	}
	if m.SongCount < 0 || m.PlaylistCount < 0 {
		return fmt.Errorf("counts must be non-negative")
	}
	return nil
}
