// Package models defines domain entities for the GroupMix smart sort engine.
//
// The package contains two categories of types:
//
// 1. Run-scoped values, owned transiently by one sort job:
//   - [SongMetadata] : Canonical per-song attributes merged from catalog sources
//   - [SortRequest] : One submitted job with its mode and degradation flags
//   - [SortResult] : The final order, the method that produced it, and a summary
//
// 2. Persisted/shared records:
//   - [Playlist], [Song] : The read-only contract over group playlists
//   - [RunMetrics] : Append-only run outcomes feeding the optimization advisor
//   - [QueueSnapshot] : The scheduler's live queued/running/health view
//
// [SortResult.SortedSongIDs] is invariant: it contains every input song ID
// exactly once regardless of which stage produced the order or which
// stages failed along the way.
package models
