package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/groupmix/smartsort/internal/models"
	"github.com/groupmix/smartsort/internal/shared"
)

// PlaylistRepository is the read contract over group playlists and their
// songs. The main app owns writes to these tables; the engine only adds
// rows through SeedPlaylist for local development and tests.
type PlaylistRepository struct {
	db *sql.DB
}

// NewPlaylistRepository creates a new PlaylistRepository with the given database connection
func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// GroupInfo is one row of the group listing.
type GroupInfo struct {
	GroupID       string `json:"group_id"`
	PlaylistCount int    `json:"playlist_count"`
	SongCount     int    `json:"song_count"`
}

// Groups returns every group that has at least one playlist, with
// playlist and song counts.
func (r *PlaylistRepository) Groups() ([]GroupInfo, error) {
	query := `
		SELECT group_id, COUNT(*), COALESCE(SUM(track_count), 0)
		FROM playlists
		GROUP BY group_id
		ORDER BY group_id
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var groups []GroupInfo
	for rows.Next() {
		var g GroupInfo
		if err := rows.Scan(&g.GroupID, &g.PlaylistCount, &g.SongCount); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}

	return groups, nil
}

// GroupPlaylists returns every playlist in the group.
func (r *PlaylistRepository) GroupPlaylists(groupID string) ([]models.Playlist, error) {
	query := `
		SELECT id, group_id, platform, owner_user_id, name, track_count
		FROM playlists
		WHERE group_id = ?
		ORDER BY created_at, id
	`

	rows, err := r.db.Query(query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	defer rows.Close()

	var playlists []models.Playlist
	for rows.Next() {
		var p models.Playlist
		if err := rows.Scan(&p.ID, &p.GroupID, &p.Platform, &p.OwnerUserID, &p.Name, &p.TrackCount); err != nil {
			return nil, fmt.Errorf("failed to scan playlist: %w", err)
		}
		playlists = append(playlists, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate playlists: %w", err)
	}

	if len(playlists) == 0 {
		return nil, fmt.Errorf("%w: no playlists for group %s", shared.ErrGroupNotFound, groupID)
	}

	return playlists, nil
}

// GroupSongs returns every song across the group's playlists, ordered by
// playlist and then original position.
func (r *PlaylistRepository) GroupSongs(groupID string) ([]models.Song, error) {
	query := `
		SELECT s.id, s.playlist_id, s.platform, s.title, s.artist, s.position
		FROM songs s
		JOIN playlists p ON p.id = s.playlist_id
		WHERE p.group_id = ?
		ORDER BY p.created_at, p.id, s.position
	`

	rows, err := r.db.Query(query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query songs: %w", err)
	}
	defer rows.Close()

	var songs []models.Song
	for rows.Next() {
		var s models.Song
		if err := rows.Scan(&s.ID, &s.PlaylistID, &s.Platform, &s.Title, &s.Artist, &s.Position); err != nil {
			return nil, fmt.Errorf("failed to scan song: %w", err)
		}
		songs = append(songs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate songs: %w", err)
	}

	return songs, nil
}

// SeedPlaylist inserts a playlist and its songs. Song IDs are generated
// when absent; positions follow slice order.
func (r *PlaylistRepository) SeedPlaylist(playlist models.Playlist, songs []models.Song) error {
	if playlist.GroupID == "" || playlist.Name == "" {
		return fmt.Errorf("%w: playlist needs group_id and name", shared.ErrInvalidInput)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if playlist.ID == "" {
		playlist.ID = shared.GenerateID()
	}

	now := time.Now()
	_, err = tx.Exec(`
		INSERT INTO playlists (id, group_id, platform, owner_user_id, name, track_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		playlist.ID,
		playlist.GroupID,
		playlist.Platform,
		playlist.OwnerUserID,
		playlist.Name,
		len(songs),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert playlist: %w", err)
	}

	for i, s := range songs {
		if s.ID == "" {
			s.ID = shared.GenerateID()
		}
		_, err = tx.Exec(`
			INSERT INTO songs (id, playlist_id, platform, title, artist, position)
			VALUES (?, ?, ?, ?, ?, ?)
		`, s.ID, playlist.ID, s.Platform, s.Title, s.Artist, i)
		if err != nil {
			return fmt.Errorf("failed to insert song: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit playlist: %w", err)
	}

	return nil
}
