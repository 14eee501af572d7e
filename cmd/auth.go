package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/groupmix/smartsort/internal/server"
	"github.com/groupmix/smartsort/internal/services"
	"github.com/groupmix/smartsort/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// AuthSpotify performs the OAuth2 authorization flow for Spotify.
//
// Starts a local HTTP server, opens the browser for user authorization,
// exchanges the auth code for tokens, and saves them to the configured
// token path.
func (r *Runner) AuthSpotify(ctx context.Context, cmd *cli.Command) error {
	config := r.config

	if config.Credentials.Spotify.ClientID == "" || config.Credentials.Spotify.ClientSecret == "" {
		return fmt.Errorf("%w: Spotify client_id and client_secret must be set in config.toml", shared.ErrMissingCredentials)
	}

	spotify, err := services.NewSpotifyCatalog(config.Credentials.Spotify.Map(), config.Engine.SourceRateLimit)
	if err != nil {
		return fmt.Errorf("failed to create Spotify catalog: %w", err)
	}

	token, err := r.doOAuth(spotify)
	if err != nil {
		return err
	}

	tokenPath := config.Credentials.Spotify.TokenPath
	if tokenPath == "" {
		tokenPath = "spotify_token.json"
	}

	tokenJSON, err := shared.MarshalJSON(token, true)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := os.WriteFile(tokenPath, tokenJSON, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Token saved to %s\n\n", tokenPath)
	r.writePlain("You can now use: smartsort sort --group <id>\n")

	return nil
}

// AuthYTMusic configures YouTube Music authentication from browser headers.
//
// Parses a cURL command copied from DevTools and sends the extracted
// headers to the proxy's ingest endpoint.
func (r *Runner) AuthYTMusic(ctx context.Context, cmd *cli.Command) error {
	curlCmd := cmd.String("curl")
	curlFile := cmd.String("curl-file")

	if curlCmd == "" && curlFile == "" {
		return fmt.Errorf("%w: either --curl or --curl-file must be provided", shared.ErrInvalidInput)
	}
	if curlCmd != "" && curlFile != "" {
		return fmt.Errorf("%w: cannot specify both --curl and --curl-file", shared.ErrInvalidInput)
	}

	var (
		headers *shared.CurlHeaders
		err     error
	)
	if curlFile != "" {
		headers, err = shared.ParseCurlFile(curlFile)
		if err != nil {
			return fmt.Errorf("failed to parse cURL file: %w", err)
		}
		r.logger.Info("parsed cURL from file", "file", curlFile)
	} else {
		headers, err = shared.ParseCurlCommand([]byte(curlCmd))
		if err != nil {
			return fmt.Errorf("failed to parse cURL command: %w", err)
		}
		r.logger.Info("parsed cURL command")
	}

	payload, err := shared.MarshalJSON(headers.IngestPayload("https://music.youtube.com"), false)
	if err != nil {
		return fmt.Errorf("failed to build ingest payload: %w", err)
	}

	proxy := services.NewProxyClient(r.config.Credentials.YouTube.ProxyURL, r.config.Credentials.YouTube.ClientToken, r.httpClient)
	resp, err := proxy.Post(ctx, "/auth/ingest", payload)
	if err != nil {
		return fmt.Errorf("ingest request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: ingest returned status %d: %s", shared.ErrAuthFailed, resp.StatusCode, resp.Body)
	}

	r.writePlain("✓ YouTube Music authentication configured\n")
	r.writePlain("Run 'smartsort sort --group <id>' to use the catalog\n")
	return nil
}

// doOAuth runs the authorization code flow against a local callback server.
func (r *Runner) doOAuth(spotify *services.SpotifyCatalog) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	authURL := spotify.GetAuthURL(state)
	oauthHandler := server.NewOAuthHandler(spotify.GetOAuthConfig(), state)
	router := server.NewBasicRouter()
	router.Handler(oauthHandler)

	serverAddr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	httpServer := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth callback server at %v", serverAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	time.Sleep(100 * time.Millisecond)

	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(2 * time.Minute)
	defer timeout.Stop()

	var result server.OAuthResult

	select {
	case result = <-oauthHandler.Result():
		// Got result from callback
	case err := <-serverErrors:
		return nil, fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrTimeout)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("authorization failed: %w", result.Error())
	}

	if result.Token == nil {
		return nil, fmt.Errorf("no token received")
	}

	return result.Token, nil
}
