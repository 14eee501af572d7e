// Last.fm implementation of [MetadataSource]
//
// Response types based on https://www.last.fm/api/show/track.getInfo
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/groupmix/smartsort/internal/models"
	"github.com/groupmix/smartsort/internal/shared"
	"golang.org/x/time/rate"
)

const lastfmDefaultBaseURL = "https://ws.audioscrobbler.com/2.0"

// LastFMCatalog implements [MetadataSource] for the Last.fm tag service.
//
// Lookups are keyed by artist and title rather than catalog ID, one
// request per song, so this is the slowest source in the set.
type LastFMCatalog struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewLastFMCatalog creates a Last.fm catalog client.
func NewLastFMCatalog(apiKey, baseURL string, requestsPerSecond float64) (*LastFMCatalog, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing Last.fm api_key", shared.ErrMissingCredentials)
	}
	if baseURL == "" {
		baseURL = lastfmDefaultBaseURL
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}

	return &LastFMCatalog{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}, nil
}

func (l *LastFMCatalog) Name() string {
	return "lastfm"
}

// lastfmTrackInfo is the subset of track.getInfo the engine consumes.
type lastfmTrackInfo struct {
	Track struct {
		Listeners string `json:"listeners"`
		TopTags   struct {
			Tag []struct {
				Name string `json:"name"`
			} `json:"tag"`
		} `json:"toptags"`
	} `json:"track"`
}

// FetchBatch looks up community tags and listener counts song by song.
// Songs Last.fm does not know are silently skipped.
func (l *LastFMCatalog) FetchBatch(ctx context.Context, songs []models.Song) ([]models.SourceAttributes, error) {
	var out []models.SourceAttributes

	for _, s := range songs {
		if s.Artist == "" || s.Title == "" {
			continue
		}

		if err := l.limiter.Wait(ctx); err != nil {
			return out, fmt.Errorf("request cancelled: %w", err)
		}

		info, err := l.trackInfo(ctx, s.Artist, s.Title)
		if err != nil {
			// One unknown track should not mask the rest of the batch.
			continue
		}

		attrs := models.SourceAttributes{SongID: s.ID}
		for _, tag := range info.Track.TopTags.Tag {
			if tag.Name != "" {
				attrs.Genres = append(attrs.Genres, tag.Name)
			}
		}
		if listeners, err := strconv.ParseInt(info.Track.Listeners, 10, 64); err == nil && listeners > 0 {
			pop := listenersToPopularity(listeners)
			attrs.Popularity = &pop
		}

		if len(attrs.Genres) > 0 || attrs.Popularity != nil {
			out = append(out, attrs)
		}
	}

	return out, nil
}

// trackInfo performs one track.getInfo request.
func (l *LastFMCatalog) trackInfo(ctx context.Context, artist, title string) (*lastfmTrackInfo, error) {
	params := url.Values{}
	params.Set("method", "track.getInfo")
	params.Set("api_key", l.apiKey)
	params.Set("artist", artist)
	params.Set("track", title)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("last.fm API error: status %d", resp.StatusCode)
	}

	var info lastfmTrackInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &info, nil
}

// listenersToPopularity maps listener counts onto the 0-100 scale.
func listenersToPopularity(listeners int64) int {
	switch {
	case listeners >= 1_000_000:
		return 90
	case listeners >= 100_000:
		return 70
	case listeners >= 10_000:
		return 50
	case listeners >= 1_000:
		return 30
	default:
		return 10
	}
}
