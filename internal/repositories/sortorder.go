package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/groupmix/smartsort/internal/models"
	"github.com/groupmix/smartsort/internal/shared"
)

// SortOrder is one persisted ordering, unified or per-playlist.
type SortOrder struct {
	GroupID    string            `json:"group_id"`
	PlaylistID string            `json:"playlist_id,omitempty"`
	SongIDs    []string          `json:"song_ids"`
	Method     models.SortMethod `json:"method"`
	SortedAt   time.Time         `json:"sorted_at"`
}

// SortOrderRepository persists sorted orders. Writes carry the run's
// submission time and lose to any already-stored order sorted later, so
// two racing runs converge on the newer result.
type SortOrderRepository struct {
	db *sql.DB
}

// NewSortOrderRepository creates a new SortOrderRepository with the given database connection
func NewSortOrderRepository(db *sql.DB) *SortOrderRepository {
	return &SortOrderRepository{db: db}
}

// SaveGroupOrder upserts the group's unified order. Returns false without
// writing when the stored order is newer than sortedAt.
func (r *SortOrderRepository) SaveGroupOrder(groupID string, songIDs []string, method models.SortMethod, sortedAt time.Time) (bool, error) {
	encoded, err := json.Marshal(songIDs)
	if err != nil {
		return false, fmt.Errorf("%w: failed to encode song ids: %v", shared.ErrPersistence, err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return false, fmt.Errorf("%w: failed to begin transaction: %v", shared.ErrPersistence, err)
	}
	defer tx.Rollback()

	var existing time.Time
	err = tx.QueryRow("SELECT sorted_at FROM group_sort_orders WHERE group_id = ?", groupID).Scan(&existing)
	switch {
	case err == nil:
		if !existing.Before(sortedAt) {
			return false, nil
		}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return false, fmt.Errorf("%w: failed to read stored order: %v", shared.ErrPersistence, err)
	}

	_, err = tx.Exec(`
		INSERT INTO group_sort_orders (group_id, song_ids, method, sorted_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(group_id) DO UPDATE SET song_ids = excluded.song_ids, method = excluded.method, sorted_at = excluded.sorted_at
	`, groupID, string(encoded), string(method), sortedAt)
	if err != nil {
		return false, fmt.Errorf("%w: failed to write group order: %v", shared.ErrPersistence, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: failed to commit group order: %v", shared.ErrPersistence, err)
	}

	return true, nil
}

// SavePlaylistOrders upserts one order per playlist in a single
// transaction, with the same freshness guard as SaveGroupOrder. Returns
// false when any stored playlist order is newer, in which case nothing
// is written.
func (r *SortOrderRepository) SavePlaylistOrders(groupID string, orders map[string][]string, method models.SortMethod, sortedAt time.Time) (bool, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return false, fmt.Errorf("%w: failed to begin transaction: %v", shared.ErrPersistence, err)
	}
	defer tx.Rollback()

	for playlistID := range orders {
		var existing time.Time
		err = tx.QueryRow("SELECT sorted_at FROM playlist_sort_orders WHERE playlist_id = ?", playlistID).Scan(&existing)
		switch {
		case err == nil:
			if !existing.Before(sortedAt) {
				return false, nil
			}
		case errors.Is(err, sql.ErrNoRows):
		default:
			return false, fmt.Errorf("%w: failed to read stored order: %v", shared.ErrPersistence, err)
		}
	}

	for playlistID, songIDs := range orders {
		encoded, err := json.Marshal(songIDs)
		if err != nil {
			return false, fmt.Errorf("%w: failed to encode song ids: %v", shared.ErrPersistence, err)
		}

		_, err = tx.Exec(`
			INSERT INTO playlist_sort_orders (playlist_id, group_id, song_ids, method, sorted_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(playlist_id) DO UPDATE SET song_ids = excluded.song_ids, method = excluded.method, sorted_at = excluded.sorted_at
		`, playlistID, groupID, string(encoded), string(method), sortedAt)
		if err != nil {
			return false, fmt.Errorf("%w: failed to write playlist order: %v", shared.ErrPersistence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: failed to commit playlist orders: %v", shared.ErrPersistence, err)
	}

	return true, nil
}

// GetGroupOrder returns the group's stored unified order.
func (r *SortOrderRepository) GetGroupOrder(groupID string) (*SortOrder, error) {
	var (
		encoded  string
		method   string
		sortedAt time.Time
	)
	err := r.db.QueryRow(
		"SELECT song_ids, method, sorted_at FROM group_sort_orders WHERE group_id = ?", groupID,
	).Scan(&encoded, &method, &sortedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no stored order for group %s", shared.ErrGroupNotFound, groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read group order: %v", shared.ErrPersistence, err)
	}

	order := &SortOrder{GroupID: groupID, Method: models.SortMethod(method), SortedAt: sortedAt}
	if err := json.Unmarshal([]byte(encoded), &order.SongIDs); err != nil {
		return nil, fmt.Errorf("%w: corrupt song ids for group %s: %v", shared.ErrPersistence, groupID, err)
	}
	return order, nil
}

// GetPlaylistOrders returns every stored per-playlist order for the group.
func (r *SortOrderRepository) GetPlaylistOrders(groupID string) ([]SortOrder, error) {
	rows, err := r.db.Query(
		"SELECT playlist_id, song_ids, method, sorted_at FROM playlist_sort_orders WHERE group_id = ? ORDER BY playlist_id", groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query playlist orders: %v", shared.ErrPersistence, err)
	}
	defer rows.Close()

	var orders []SortOrder
	for rows.Next() {
		var (
			order   SortOrder
			encoded string
			method  string
		)
		order.GroupID = groupID
		if err := rows.Scan(&order.PlaylistID, &encoded, &method, &order.SortedAt); err != nil {
			return nil, fmt.Errorf("%w: failed to scan playlist order: %v", shared.ErrPersistence, err)
		}
		order.Method = models.SortMethod(method)
		if err := json.Unmarshal([]byte(encoded), &order.SongIDs); err != nil {
			return nil, fmt.Errorf("%w: corrupt song ids for playlist %s: %v", shared.ErrPersistence, order.PlaylistID, err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate playlist orders: %v", shared.ErrPersistence, err)
	}

	return orders, nil
}
