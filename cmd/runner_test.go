package main

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/groupmix/smartsort/internal/formatter"
	"github.com/groupmix/smartsort/internal/models"
	"github.com/groupmix/smartsort/internal/shared"
	tu "github.com/groupmix/smartsort/internal/testing"
)

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: nil})
			if runner.config == nil {
				t.Error("expected default config to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: nil})
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: nil})
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil httpClient uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{HTTPClient: nil})
			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			data := map[string]string{"key": "value"}
			if err := runner.writeJSON(data, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			data := map[string]string{"key": "value"}
			if err := runner.writeJSON(data, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil {
				t.Fatal("expected error for non-serializable data")
			}
			if !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limited := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limited})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err == nil {
				t.Fatal("expected error writing newline")
			}
		})
	})

	t.Run("buildSources", func(t *testing.T) {
		t.Run("empty config yields no sources", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Credentials.Spotify.ClientID = ""
			config.Credentials.Spotify.ClientSecret = ""
			config.Credentials.YouTube.ProxyURL = ""
			config.Credentials.LastFM.APIKey = ""

			runner := NewRunner(RunnerOpts{Config: config})
			if sources := runner.buildSources(context.Background()); len(sources) != 0 {
				t.Errorf("expected no sources, got %d", len(sources))
			}
		})

		t.Run("configured catalogs are assembled in priority order", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Credentials.Spotify.ClientID = "id"
			config.Credentials.Spotify.ClientSecret = "secret"
			config.Credentials.YouTube.ProxyURL = "http://localhost:8000"
			config.Credentials.LastFM.APIKey = "key"

			runner := NewRunner(RunnerOpts{Config: config})
			sources := runner.buildSources(context.Background())
			if len(sources) != 3 {
				t.Fatalf("expected 3 sources, got %d", len(sources))
			}
			for i, want := range []string{"spotify", "ytmusic", "lastfm"} {
				if sources[i].Name() != want {
					t.Errorf("source %d: expected %s, got %s", i, want, sources[i].Name())
				}
			}
		})
	})

	t.Run("buildStack", func(t *testing.T) {
		config := shared.DefaultConfig()
		config.Database.Path = filepath.Join(t.TempDir(), "test.db")
		config.Credentials.Spotify.ClientID = ""
		config.Credentials.Spotify.ClientSecret = ""
		config.Credentials.YouTube.ProxyURL = ""
		config.Credentials.LastFM.APIKey = ""
		config.AI.APIKey = ""

		runner := NewRunner(RunnerOpts{Config: config})
		st, err := runner.buildStack(context.Background())
		if err != nil {
			t.Fatalf("failed to build stack: %v", err)
		}
		defer st.Close()

		if st.engine == nil || st.scheduler == nil {
			t.Error("expected engine and scheduler to be wired")
		}
		if st.playlists == nil || st.orders == nil || st.metrics == nil {
			t.Error("expected repositories to be wired")
		}
	})
}

func TestSeed(t *testing.T) {
	dir := t.TempDir()

	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(dir, "seed.db")

	// Seed needs a migrated database.
	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	db.Close()

	seedJSON := `{
		"playlists": [
			{
				"playlist": {"group_id": "g1", "platform": "spotify", "name": "Road Trip"},
				"songs": [
					{"platform": "spotify", "title": "Song A", "artist": "Artist A"},
					{"platform": "spotify", "title": "Song B", "artist": "Artist B"}
				]
			}
		]
	}`
	seedPath := filepath.Join(dir, "seed.json")
	if err := os.WriteFile(seedPath, []byte(seedJSON), 0644); err != nil {
		t.Fatalf("failed to write seed file: %v", err)
	}

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{Config: config, Output: output, Logger: shared.NewLogger(&bytes.Buffer{})})

	cmd := seedCommand(runner)
	if err := cmd.Run(context.Background(), []string{"seed", "--file", seedPath}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if !strings.Contains(output.String(), "Road Trip (2 songs)") {
		t.Errorf("expected seed confirmation, got %q", output.String())
	}

	t.Run("seeded group sorts heuristically", func(t *testing.T) {
		st, err := runner.buildStack(context.Background())
		if err != nil {
			t.Fatalf("failed to build stack: %v", err)
		}
		defer st.Close()

		groups, err := st.playlists.Groups()
		if err != nil {
			t.Fatalf("failed to list groups: %v", err)
		}
		if len(groups) != 1 || groups[0].GroupID != "g1" || groups[0].SongCount != 2 {
			t.Fatalf("unexpected groups: %+v", groups)
		}
	})
}

func TestRenderResult(t *testing.T) {
	result := &models.SortResult{
		GroupID:       "g1",
		Mode:          models.ModeAll,
		SortedSongIDs: []string{"s1"},
		Method:        models.MethodHeuristic,
		Summary:       models.SortSummary{SongsProcessed: 1},
	}

	t.Run("json format writes to output", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		export := &formatter.OrderExport{Result: result}
		if err := runner.writeJSON(export.Result, true); err != nil {
			t.Fatalf("failed to render: %v", err)
		}
		if !strings.Contains(output.String(), `"method": "heuristic"`) {
			t.Errorf("expected method in JSON, got %s", output.String())
		}
	})
}
