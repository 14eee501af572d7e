// YouTube Music implementation of [MetadataSource], through the FastAPI proxy
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/groupmix/smartsort/internal/models"
	"github.com/groupmix/smartsort/internal/shared"
)

// YTMusicCatalog implements [MetadataSource] over the YouTube Music proxy.
// The proxy wraps ytmusicapi and authenticates with ingested browser
// headers; this client only needs the proxy URL and its client token.
type YTMusicCatalog struct {
	client *ProxyClient
}

// NewYTMusicCatalog creates a YouTube Music catalog client talking to the proxy.
func NewYTMusicCatalog(client *ProxyClient) *YTMusicCatalog {
	return &YTMusicCatalog{client: client}
}

func (y *YTMusicCatalog) Name() string {
	return "ytmusic"
}

// ytmBatchRequest is the proxy's metadata lookup payload.
type ytmBatchRequest struct {
	Songs []ytmBatchSong `json:"songs"`
}

type ytmBatchSong struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// ytmBatchResult is one song's metadata as the proxy reports it.
type ytmBatchResult struct {
	ID     string   `json:"id"`
	Genres []string `json:"genres"`
	Views  int64    `json:"views"`
}

// FetchBatch resolves genres and view counts for the YouTube songs in the
// batch. Views are normalized to the 0-100 popularity scale on a log curve.
func (y *YTMusicCatalog) FetchBatch(ctx context.Context, songs []models.Song) ([]models.SourceAttributes, error) {
	own := byPlatform(songs, "youtube")
	if len(own) == 0 {
		return nil, nil
	}

	payload := ytmBatchRequest{Songs: make([]ytmBatchSong, len(own))}
	for i, s := range own {
		payload.Songs[i] = ytmBatchSong{ID: s.ID, Title: s.Title, Artist: s.Artist}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch request: %w", err)
	}

	resp, err := y.client.Post(ctx, "/ytm/metadata/batch", data)
	if err != nil {
		return nil, fmt.Errorf("%w: ytmusic proxy: %v", shared.ErrSourceUnavailable, err)
	}
	if resp.StatusCode == 401 || resp.StatusCode == 403 {
		return nil, fmt.Errorf("%w: ytmusic proxy rejected client token (status %d)", shared.ErrNotAuthenticated, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: ytmusic proxy status %d", shared.ErrSourceUnavailable, resp.StatusCode)
	}

	var results []ytmBatchResult
	if err := json.Unmarshal(resp.Body, &results); err != nil {
		return nil, fmt.Errorf("%w: failed to decode proxy response: %v", shared.ErrSourceUnavailable, err)
	}

	out := make([]models.SourceAttributes, 0, len(results))
	for _, r := range results {
		if r.ID == "" {
			continue
		}

		attrs := models.SourceAttributes{
			SongID: r.ID,
			Genres: r.Genres,
		}
		if r.Views > 0 {
			pop := viewsToPopularity(r.Views)
			attrs.Popularity = &pop
		}
		out = append(out, attrs)
	}

	return out, nil
}

// viewsToPopularity maps raw view counts onto the canonical 0-100 scale.
// A log10 curve reaches 100 around a billion views.
func viewsToPopularity(views int64) int {
	if views <= 0 {
		return 0
	}
	pop := int(math.Log10(float64(views)) / 9.0 * 100.0)
	return clampPopularity(pop)
}
