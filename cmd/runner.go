package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/groupmix/smartsort/internal/advisor"
	"github.com/groupmix/smartsort/internal/ai"
	"github.com/groupmix/smartsort/internal/metadata"
	"github.com/groupmix/smartsort/internal/repositories"
	"github.com/groupmix/smartsort/internal/scheduler"
	"github.com/groupmix/smartsort/internal/services"
	"github.com/groupmix/smartsort/internal/shared"
	"github.com/groupmix/smartsort/internal/sorter"
	"github.com/groupmix/smartsort/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

// SetLogger swaps the runner's logger, used by the TUI to move logs out
// of the terminal.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, seedCommand, sortCommand, serveCommand, statusCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// stack is the assembled sort engine and everything it depends on.
type stack struct {
	db        *sql.DB
	playlists *repositories.PlaylistRepository
	orders    *repositories.SortOrderRepository
	metrics   *repositories.MetricsRepository
	recorder  *advisor.Recorder
	engine    *tasks.SortEngine
	scheduler *scheduler.Scheduler
}

// Close flushes pending metrics and releases the database.
func (s *stack) Close() {
	if s.scheduler != nil {
		s.scheduler.Wait()
	}
	s.recorder.Close()
	s.db.Close()
}

// buildStack opens the database and wires the full sort pipeline from
// the runner's config. Catalogs and the model verifier are optional:
// whatever is unconfigured is left out and the engine degrades
// accordingly.
func (r *Runner) buildStack(ctx context.Context) (*stack, error) {
	cfg := r.config

	db, err := shared.NewDatabase(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)

	playlists := repositories.NewPlaylistRepository(db)
	orders := repositories.NewSortOrderRepository(db)
	metrics := repositories.NewMetricsRepository(db)

	fetcher := metadata.NewFetcher(r.buildSources(ctx), r.logger)

	var verifier tasks.Refiner
	if cfg.AI.APIKey != "" {
		client, err := ai.NewGeminiClient(ctx, cfg.AI.APIKey)
		if err != nil {
			r.logger.Warn("model client unavailable, sorts will stay heuristic", "error", err)
		} else {
			verifier = ai.NewVerifier(client, ai.Config{
				PrimaryModel:  cfg.AI.PrimaryModel,
				FallbackModel: cfg.AI.FallbackModel,
				MaxAttempts:   cfg.AI.MaxAttempts,
				BackoffBase:   cfg.AI.BackoffBase(),
				Timeout:       cfg.AI.Timeout(),
			}, r.logger)
		}
	} else {
		r.logger.Info("no model API key configured, sorts will stay heuristic")
	}

	recorder := advisor.NewRecorder(metrics, r.logger)
	tuner := advisor.New(recorder, cfg.Engine.DefaultConcurrency, cfg.Engine.DefaultBatchSize)

	engine := tasks.NewSortEngine(playlists, orders, fetcher, sorter.NewHeuristic(), verifier, tuner, recorder, r.logger)

	sched := scheduler.New(engine, recorder, scheduler.Config{
		MaxJobs:            cfg.Engine.MaxAIJobs,
		QueueCap:           cfg.Engine.QueueCap,
		DegradeBelowHealth: cfg.Engine.DegradeBelowHealth,
	}, r.logger)

	return &stack{
		db:        db,
		playlists: playlists,
		orders:    orders,
		metrics:   metrics,
		recorder:  recorder,
		engine:    engine,
		scheduler: sched,
	}, nil
}

// buildSources assembles the configured metadata catalogs in priority
// order: Spotify first, then YouTube Music, then Last.fm.
func (r *Runner) buildSources(ctx context.Context) []services.MetadataSource {
	cfg := r.config
	var sources []services.MetadataSource

	if cfg.Credentials.Spotify.ClientID != "" && cfg.Credentials.Spotify.ClientSecret != "" {
		spotify, err := services.NewSpotifyCatalog(cfg.Credentials.Spotify.Map(), cfg.Engine.SourceRateLimit)
		if err != nil {
			r.logger.Warn("spotify catalog unavailable", "error", err)
		} else {
			if token := r.loadSpotifyToken(); token != nil {
				if err := spotify.Authenticate(ctx, map[string]string{"access_token": token.AccessToken}); err != nil {
					r.logger.Warn("stored spotify token rejected, run 'smartsort auth spotify'", "error", err)
				}
			} else {
				r.logger.Info("no spotify token on disk, run 'smartsort auth spotify'")
			}
			sources = append(sources, spotify)
		}
	}

	if cfg.Credentials.YouTube.ProxyURL != "" {
		proxy := services.NewProxyClient(cfg.Credentials.YouTube.ProxyURL, cfg.Credentials.YouTube.ClientToken, r.httpClient)
		sources = append(sources, services.NewYTMusicCatalog(proxy))
	}

	if cfg.Credentials.LastFM.APIKey != "" {
		lastfm, err := services.NewLastFMCatalog(cfg.Credentials.LastFM.APIKey, cfg.Credentials.LastFM.BaseURL, cfg.Engine.SourceRateLimit)
		if err != nil {
			r.logger.Warn("lastfm catalog unavailable", "error", err)
		} else {
			sources = append(sources, lastfm)
		}
	}

	return sources
}

// loadSpotifyToken reads the OAuth token saved by the auth command, nil
// when absent or unreadable.
func (r *Runner) loadSpotifyToken() *oauth2.Token {
	path := r.config.Credentials.Spotify.TokenPath
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		r.logger.Warn("stored spotify token is not valid JSON", "path", path)
		return nil
	}
	return &token
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
