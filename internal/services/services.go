// package services defines clients for the external song catalogs
//
// Spotify, YouTube Music (via proxy), Last.fm
package services

import (
	"context"

	"github.com/groupmix/smartsort/internal/models"
)

// MetadataSource is one external catalog contributing partial song
// attributes (genres, popularity, audio characteristics).
//
// A source only returns attributes for songs it recognizes; absence of a
// song or of any individual field means "unknown", never an error. A
// returned error marks the whole batch unavailable from this source, and
// the caller degrades rather than aborts.
type MetadataSource interface {
	// Name returns the source tag recorded in SongMetadata.Sources.
	Name() string

	// FetchBatch looks up attributes for one batch of songs.
	FetchBatch(ctx context.Context, songs []models.Song) ([]models.SourceAttributes, error)
}

// byPlatform filters songs down to the platform a catalog serves.
func byPlatform(songs []models.Song, platform string) []models.Song {
	var out []models.Song
	for _, s := range songs {
		if s.Platform == platform {
			out = append(out, s)
		}
	}
	return out
}

// clampPopularity normalizes an arbitrary popularity figure to 0-100.
func clampPopularity(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
