// package repositories provides the persistence layer for the sort engine.
//
// PlaylistRepository is the read contract over group playlists and songs,
// SortOrderRepository persists sorted orders with last-writer-wins
// semantics, and MetricsRepository is the append-only run metrics log.
package repositories
