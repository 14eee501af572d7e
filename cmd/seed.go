package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/groupmix/smartsort/internal/models"
	"github.com/groupmix/smartsort/internal/repositories"
	"github.com/groupmix/smartsort/internal/shared"
	"github.com/urfave/cli/v3"
)

// seedFile is the JSON shape the seed command consumes.
type seedFile struct {
	Playlists []struct {
		Playlist models.Playlist `json:"playlist"`
		Songs    []models.Song   `json:"songs"`
	} `json:"playlists"`
}

// Seed loads playlists and songs from a JSON file into the local
// database, for development and demos.
func (r *Runner) Seed(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("file")

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}
	if len(seed.Playlists) == 0 {
		return fmt.Errorf("%w: seed file has no playlists", shared.ErrInvalidInput)
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	playlists := repositories.NewPlaylistRepository(db)

	for _, entry := range seed.Playlists {
		if err := playlists.SeedPlaylist(entry.Playlist, entry.Songs); err != nil {
			return fmt.Errorf("failed to seed playlist %q: %w", entry.Playlist.Name, err)
		}
		r.writePlain("✓ Seeded %s (%d songs)\n", entry.Playlist.Name, len(entry.Songs))
	}

	return nil
}
