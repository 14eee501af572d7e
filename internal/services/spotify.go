// Spotify API implementation of [MetadataSource]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/groupmix/smartsort/internal/models"
	"github.com/groupmix/smartsort/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// Spotify caps the ids parameter on batch endpoints.
	spotifyBatchMax = 50
)

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Popularity int             `json:"popularity"`
	URI        string          `json:"uri"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Genres []string `json:"genres"`
	URI    string   `json:"uri"`
}

// SpotifyAudioFeatures represents per-track audio analysis summary values.
type SpotifyAudioFeatures struct {
	ID           string  `json:"id"`
	Energy       float64 `json:"energy"`
	Tempo        float64 `json:"tempo"`
	Valence      float64 `json:"valence"`
	Danceability float64 `json:"danceability"`
	Acousticness float64 `json:"acousticness"`
}

// SpotifyCatalog implements [MetadataSource] for the Spotify Web API.
// Uses [oauth2] for authentication; requests are paced by a token bucket.
type SpotifyCatalog struct {
	config     *oauth2.Config
	token      *oauth2.Token
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSpotifyCatalog creates a new Spotify catalog client with the given OAuth2 credentials.
func NewSpotifyCatalog(credentials map[string]string, requestsPerSecond float64) (*SpotifyCatalog, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = "http://localhost:8080/callback"
	}

	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"user-read-private",
			"playlist-read-private",
			"playlist-read-collaborative",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &SpotifyCatalog{
		config:     config,
		httpClient: http.DefaultClient,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}, nil
}

// Authenticate installs OAuth2 credentials. Expects either an "access_token" or "auth_code".
func (s *SpotifyCatalog) Authenticate(ctx context.Context, credentials map[string]string) error {
	if accessToken, ok := credentials["access_token"]; ok && accessToken != "" {
		s.token = &oauth2.Token{AccessToken: accessToken}
		s.httpClient = s.config.Client(ctx, s.token)
		return nil
	}

	if authCode, ok := credentials["auth_code"]; ok && authCode != "" {
		token, err := s.config.Exchange(ctx, authCode)
		if err != nil {
			return fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthFailed, err)
		}
		s.token = token
		s.httpClient = s.config.Client(ctx, s.token)
		return nil
	}

	return fmt.Errorf("%w: missing access_token or auth_code", shared.ErrMissingCredentials)
}

func (s *SpotifyCatalog) Name() string {
	return "spotify"
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyCatalog) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// GetOAuthConfig exposes the OAuth2 config for the callback exchange.
func (s *SpotifyCatalog) GetOAuthConfig() *oauth2.Config {
	return s.config
}

// FetchBatch gathers popularity, artist genres, and audio features for the
// Spotify songs in the batch. Songs from other platforms are ignored; a
// failed artist or audio-features lookup degrades those fields only.
func (s *SpotifyCatalog) FetchBatch(ctx context.Context, songs []models.Song) ([]models.SourceAttributes, error) {
	own := byPlatform(songs, "spotify")
	if len(own) == 0 {
		return nil, nil
	}

	var out []models.SourceAttributes
	for start := 0; start < len(own); start += spotifyBatchMax {
		end := start + spotifyBatchMax
		if end > len(own) {
			end = len(own)
		}

		attrs, err := s.fetchChunk(ctx, own[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, attrs...)
	}

	return out, nil
}

// fetchChunk resolves one ids-parameter-sized slice of songs.
func (s *SpotifyCatalog) fetchChunk(ctx context.Context, songs []models.Song) ([]models.SourceAttributes, error) {
	ids := make([]string, len(songs))
	for i, song := range songs {
		ids[i] = song.ID
	}

	tracks, err := s.severalTracks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: spotify tracks lookup: %v", shared.ErrSourceUnavailable, err)
	}

	// Collect distinct artist ids for a genre lookup; artists are where
	// Spotify hangs genre tags.
	artistIDs := make([]string, 0, len(tracks))
	seen := map[string]bool{}
	for _, tr := range tracks {
		for _, a := range tr.Artists {
			if a.ID != "" && !seen[a.ID] {
				seen[a.ID] = true
				artistIDs = append(artistIDs, a.ID)
			}
		}
	}

	genresByArtist := map[string][]string{}
	if len(artistIDs) > 0 {
		artists, err := s.severalArtists(ctx, artistIDs)
		if err == nil {
			for _, a := range artists {
				genresByArtist[a.ID] = a.Genres
			}
		}
		// A failed artist lookup leaves genres unknown for the chunk.
	}

	featuresByID := map[string]SpotifyAudioFeatures{}
	if features, err := s.severalAudioFeatures(ctx, ids); err == nil {
		for _, f := range features {
			featuresByID[f.ID] = f
		}
	}

	out := make([]models.SourceAttributes, 0, len(tracks))
	for _, tr := range tracks {
		if tr.ID == "" {
			continue
		}

		pop := clampPopularity(tr.Popularity)
		attrs := models.SourceAttributes{
			SongID:     tr.ID,
			Popularity: &pop,
		}

		for _, a := range tr.Artists {
			attrs.Genres = append(attrs.Genres, genresByArtist[a.ID]...)
		}

		if f, ok := featuresByID[tr.ID]; ok {
			attrs.Audio = map[string]float64{
				"energy":       f.Energy,
				"tempo":        f.Tempo,
				"valence":      f.Valence,
				"danceability": f.Danceability,
				"acousticness": f.Acousticness,
			}
		}

		out = append(out, attrs)
	}

	return out, nil
}

// severalTracks retrieves multiple tracks by their IDs (up to 50).
func (s *SpotifyCatalog) severalTracks(ctx context.Context, trackIDs []string) ([]SpotifyTrack, error) {
	if len(trackIDs) == 0 {
		return nil, fmt.Errorf("no track IDs provided")
	}
	if len(trackIDs) > spotifyBatchMax {
		return nil, fmt.Errorf("maximum %d track IDs allowed", spotifyBatchMax)
	}

	endpoint := fmt.Sprintf("/tracks?ids=%s", url.QueryEscape(strings.Join(trackIDs, ",")))

	var response struct {
		Tracks []SpotifyTrack `json:"tracks"`
	}
	if err := s.doRequest(ctx, http.MethodGet, endpoint, &response); err != nil {
		return nil, err
	}

	return response.Tracks, nil
}

// severalArtists retrieves multiple artists by their IDs (up to 50).
func (s *SpotifyCatalog) severalArtists(ctx context.Context, artistIDs []string) ([]SpotifyArtist, error) {
	if len(artistIDs) > spotifyBatchMax {
		artistIDs = artistIDs[:spotifyBatchMax]
	}

	endpoint := fmt.Sprintf("/artists?ids=%s", url.QueryEscape(strings.Join(artistIDs, ",")))

	var response struct {
		Artists []SpotifyArtist `json:"artists"`
	}
	if err := s.doRequest(ctx, http.MethodGet, endpoint, &response); err != nil {
		return nil, err
	}

	return response.Artists, nil
}

// severalAudioFeatures retrieves audio features for multiple tracks.
func (s *SpotifyCatalog) severalAudioFeatures(ctx context.Context, trackIDs []string) ([]SpotifyAudioFeatures, error) {
	endpoint := fmt.Sprintf("/audio-features?ids=%s", url.QueryEscape(strings.Join(trackIDs, ",")))

	var response struct {
		AudioFeatures []SpotifyAudioFeatures `json:"audio_features"`
	}
	if err := s.doRequest(ctx, http.MethodGet, endpoint, &response); err != nil {
		return nil, err
	}

	return response.AudioFeatures, nil
}

// doRequest performs an authenticated, rate-paced GET against the Spotify API.
func (s *SpotifyCatalog) doRequest(ctx context.Context, method, endpoint string, result any) error {
	if s.token == nil {
		return fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("request cancelled: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, spotifyBaseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.token.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("spotify API error: status %d", resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
