package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/groupmix/smartsort/internal/models"
	"github.com/groupmix/smartsort/internal/ratelimit"
	"github.com/groupmix/smartsort/internal/repositories"
	"github.com/groupmix/smartsort/internal/scheduler"
	"github.com/groupmix/smartsort/internal/shared"
	"github.com/groupmix/smartsort/internal/tasks"
)

// mockScheduler implements SortScheduler with scripted outcomes.
type mockScheduler struct {
	submitErr error
	job       scheduler.Job
	jobFound  bool
	snapshot  models.QueueSnapshot
	wait      time.Duration
	submitted []models.SortRequest
}

func (m *mockScheduler) Submit(ctx context.Context, req models.SortRequest) (*scheduler.Ticket, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	m.submitted = append(m.submitted, req)
	return &scheduler.Ticket{JobID: "job-1", EstimatedWait: m.wait, HealthScore: 90}, nil
}

func (m *mockScheduler) Await(ctx context.Context, id string) (scheduler.Job, error) {
	return m.job, nil
}

func (m *mockScheduler) Job(id string) (scheduler.Job, bool) {
	return m.job, m.jobFound
}

func (m *mockScheduler) Snapshot() models.QueueSnapshot { return m.snapshot }
func (m *mockScheduler) EstimatedWait() time.Duration   { return m.wait }

// mockOrders serves fixed stored orders.
type mockOrders struct {
	group     *repositories.SortOrder
	playlists []repositories.SortOrder
	err       error
}

func (m *mockOrders) GetGroupOrder(groupID string) (*repositories.SortOrder, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.group, nil
}

func (m *mockOrders) GetPlaylistOrders(groupID string) ([]repositories.SortOrder, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.playlists, nil
}

// mockRuns serves fixed metrics.
type mockRuns struct {
	runs []models.RunMetrics
}

func (m *mockRuns) RecentRuns(limit int) ([]models.RunMetrics, error) { return m.runs, nil }
func (m *mockRuns) RunsForGroup(groupID string, limit int) ([]models.RunMetrics, error) {
	var out []models.RunMetrics
	for _, r := range m.runs {
		if r.GroupID == groupID {
			out = append(out, r)
		}
	}
	return out, nil
}

// failRunner always returns the configured error.
type failRunner struct{ err error }

func (r *failRunner) Run(ctx context.Context, req models.SortRequest, progress chan<- tasks.ProgressUpdate) (*models.SortResult, error) {
	return nil, r.err
}

// noHistory is an empty failure history.
type noHistory struct{}

func (noHistory) RecentFailureRate(limit int) float64  { return 0 }
func (noHistory) Recent(limit int) []models.RunMetrics { return nil }

// failedJob runs a real scheduler against a failing runner so the job
// carries its wrapped error the same way production jobs do.
func failedJob(t *testing.T, runErr error) scheduler.Job {
	t.Helper()
	sched := scheduler.New(&failRunner{err: runErr}, noHistory{}, scheduler.Config{}, shared.NewLogger(io.Discard))
	ticket, err := sched.Submit(context.Background(), models.SortRequest{GroupID: "g1", Mode: models.ModeAll})
	if err != nil {
		t.Fatalf("failed to submit: %v", err)
	}
	job, err := sched.Await(context.Background(), ticket.JobID)
	if err != nil {
		t.Fatalf("failed to await: %v", err)
	}
	return job
}

func newTestServer(sched SortScheduler, orders OrderReader, runs RunReader) *httptest.Server {
	router := NewBasicRouter()
	handler := NewSortHandler(sched, orders, runs, shared.NewLogger(io.Discard))
	handler.Register(router)
	return httptest.NewServer(router)
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

func TestSortHandler_Submit(t *testing.T) {
	t.Run("Async Submission Accepted", func(t *testing.T) {
		sched := &mockScheduler{wait: 2 * time.Second}
		srv := newTestServer(sched, &mockOrders{}, &mockRuns{})
		defer srv.Close()

		resp := postJSON(t, srv.URL+"/api/groups/g1/sort", map[string]any{"mode": "all"})
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", resp.StatusCode)
		}
		if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
			t.Errorf("expected no-store, got %q", cc)
		}

		body := decodeBody(t, resp)
		if body["job_id"] != "job-1" {
			t.Errorf("expected ticket in body, got %v", body)
		}
		if len(sched.submitted) != 1 || sched.submitted[0].GroupID != "g1" {
			t.Errorf("unexpected submission: %+v", sched.submitted)
		}
	})

	t.Run("Default Mode Is All", func(t *testing.T) {
		sched := &mockScheduler{}
		srv := newTestServer(sched, &mockOrders{}, &mockRuns{})
		defer srv.Close()

		resp := postJSON(t, srv.URL+"/api/groups/g1/sort", map[string]any{})
		resp.Body.Close()
		if sched.submitted[0].Mode != models.ModeAll {
			t.Errorf("expected default mode all, got %s", sched.submitted[0].Mode)
		}
	})

	t.Run("Invalid Mode Rejected", func(t *testing.T) {
		srv := newTestServer(&mockScheduler{}, &mockOrders{}, &mockRuns{})
		defer srv.Close()

		resp := postJSON(t, srv.URL+"/api/groups/g1/sort", map[string]any{"mode": "shuffle"})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("Saturated Queue Returns Retry After", func(t *testing.T) {
		sched := &mockScheduler{
			submitErr: fmt.Errorf("%w: 50 jobs already waiting", shared.ErrQueueSaturated),
			wait:      90 * time.Second,
		}
		srv := newTestServer(sched, &mockOrders{}, &mockRuns{})
		defer srv.Close()

		resp := postJSON(t, srv.URL+"/api/groups/g1/sort", map[string]any{"mode": "all"})
		if resp.StatusCode != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", resp.StatusCode)
		}
		if retry := resp.Header.Get("Retry-After"); retry != "90" {
			t.Errorf("expected Retry-After 90, got %q", retry)
		}
		body := decodeBody(t, resp)
		if body["retry_after_seconds"].(float64) != 90 {
			t.Errorf("expected retry hint in body, got %v", body)
		}
	})

	t.Run("Synchronous Wait Returns Result", func(t *testing.T) {
		sched := &mockScheduler{
			job: scheduler.Job{
				ID:    "job-1",
				State: scheduler.StateCompleted,
				Result: &models.SortResult{
					GroupID:       "g1",
					Method:        models.MethodFallback,
					SortedSongIDs: []string{"s2", "s1"},
					Summary:       models.SortSummary{SongsProcessed: 2},
				},
			},
			snapshot: models.QueueSnapshot{Running: 1, HealthScore: 97},
		}
		srv := newTestServer(sched, &mockOrders{}, &mockRuns{})
		defer srv.Close()

		resp := postJSON(t, srv.URL+"/api/groups/g1/sort", map[string]any{"mode": "all", "wait": true})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200 for degraded success, got %d", resp.StatusCode)
		}
		body := decodeBody(t, resp)
		if body["success"] != true {
			t.Errorf("expected success envelope, got %v", body)
		}
		if body["method"] != string(models.MethodFallback) {
			t.Errorf("expected fallback method in body, got %v", body)
		}
		if body["songs_processed"] != float64(2) {
			t.Errorf("expected songs_processed 2, got %v", body["songs_processed"])
		}
		status, ok := body["queue_status"].(map[string]any)
		if !ok || status["health_score"] != float64(97) {
			t.Errorf("expected queue snapshot in envelope, got %v", body["queue_status"])
		}
	})

	t.Run("Persistence Failure Is 500", func(t *testing.T) {
		sched := &mockScheduler{job: failedJob(t, fmt.Errorf("%w: disk full", shared.ErrPersistence))}
		srv := newTestServer(sched, &mockOrders{}, &mockRuns{})
		defer srv.Close()

		resp := postJSON(t, srv.URL+"/api/groups/g1/sort", map[string]any{"mode": "all", "wait": true})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusInternalServerError {
			t.Errorf("expected 500 for persistence failure, got %d", resp.StatusCode)
		}
	})

	t.Run("Unknown Group Is 404", func(t *testing.T) {
		sched := &mockScheduler{job: failedJob(t, fmt.Errorf("%w: g9", shared.ErrGroupNotFound))}
		srv := newTestServer(sched, &mockOrders{}, &mockRuns{})
		defer srv.Close()

		resp := postJSON(t, srv.URL+"/api/groups/g9/sort", map[string]any{"mode": "all", "wait": true})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404, got %d", resp.StatusCode)
		}
	})
}

func TestSortHandler_Status(t *testing.T) {
	t.Run("Queue Snapshot", func(t *testing.T) {
		sched := &mockScheduler{snapshot: models.QueueSnapshot{Queued: 4, Running: 2, HealthScore: 74}}
		srv := newTestServer(sched, &mockOrders{}, &mockRuns{})
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/api/sort/status")
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
			t.Errorf("expected no-store on status, got %q", cc)
		}
		body := decodeBody(t, resp)
		if body["health_score"].(float64) != 74 {
			t.Errorf("expected health in body, got %v", body)
		}
	})

	t.Run("Job Lookup", func(t *testing.T) {
		sched := &mockScheduler{
			job:      scheduler.Job{ID: "job-1", State: scheduler.StateRunning},
			jobFound: true,
		}
		srv := newTestServer(sched, &mockOrders{}, &mockRuns{})
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/api/sort/jobs/job-1")
		if err != nil {
			t.Fatal(err)
		}
		body := decodeBody(t, resp)
		if body["state"] != string(scheduler.StateRunning) {
			t.Errorf("expected running state, got %v", body)
		}
	})

	t.Run("Unknown Job", func(t *testing.T) {
		srv := newTestServer(&mockScheduler{}, &mockOrders{}, &mockRuns{})
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/api/sort/jobs/missing")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404, got %d", resp.StatusCode)
		}
	})

	t.Run("Health Endpoint", func(t *testing.T) {
		srv := newTestServer(&mockScheduler{snapshot: models.QueueSnapshot{HealthScore: 100}}, &mockOrders{}, &mockRuns{})
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/health")
		if err != nil {
			t.Fatal(err)
		}
		body := decodeBody(t, resp)
		if body["status"] != "ok" {
			t.Errorf("expected ok, got %v", body)
		}
	})
}

func TestSortHandler_Orders(t *testing.T) {
	t.Run("Group Order", func(t *testing.T) {
		orders := &mockOrders{group: &repositories.SortOrder{
			GroupID: "g1",
			SongIDs: []string{"s2", "s1"},
			Method:  models.MethodAIVerified,
		}}
		srv := newTestServer(&mockScheduler{}, orders, &mockRuns{})
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/api/groups/g1/order")
		if err != nil {
			t.Fatal(err)
		}
		body := decodeBody(t, resp)
		if body["method"] != string(models.MethodAIVerified) {
			t.Errorf("expected stored order, got %v", body)
		}
	})

	t.Run("Missing Order Is 404", func(t *testing.T) {
		orders := &mockOrders{err: fmt.Errorf("%w: g1", shared.ErrGroupNotFound)}
		srv := newTestServer(&mockScheduler{}, orders, &mockRuns{})
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/api/groups/g1/order")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404, got %d", resp.StatusCode)
		}
	})

	t.Run("Playlist Orders", func(t *testing.T) {
		orders := &mockOrders{playlists: []repositories.SortOrder{
			{GroupID: "g1", PlaylistID: "pl1", SongIDs: []string{"s1"}},
		}}
		srv := newTestServer(&mockScheduler{}, orders, &mockRuns{})
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/api/groups/g1/order?mode=playlist")
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		body := decodeBody(t, resp)
		if body["orders"] == nil {
			t.Errorf("expected playlist orders, got %v", body)
		}
	})
}

func TestSortHandler_Runs(t *testing.T) {
	runs := &mockRuns{runs: []models.RunMetrics{
		{GroupID: "g1", Success: true},
		{GroupID: "g2", Success: false},
	}}

	t.Run("Lists Runs", func(t *testing.T) {
		srv := newTestServer(&mockScheduler{}, &mockOrders{}, runs)
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/api/sort/runs")
		if err != nil {
			t.Fatal(err)
		}
		body := decodeBody(t, resp)
		if body["count"].(float64) != 2 {
			t.Errorf("expected 2 runs, got %v", body)
		}
	})

	t.Run("Filters By Group", func(t *testing.T) {
		srv := newTestServer(&mockScheduler{}, &mockOrders{}, runs)
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/api/sort/runs?group=g2")
		if err != nil {
			t.Fatal(err)
		}
		body := decodeBody(t, resp)
		if body["count"].(float64) != 1 {
			t.Errorf("expected 1 run for g2, got %v", body)
		}
	})

	t.Run("Rejects Bad Limit", func(t *testing.T) {
		srv := newTestServer(&mockScheduler{}, &mockOrders{}, runs)
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/api/sort/runs?limit=0")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})
}

func TestMiddleware(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("Auth Accepts Valid Token", func(t *testing.T) {
		router := NewBasicRouter()
		router.Use(AuthMiddleware("secret"))
		router.Handle(http.MethodGet, "/api/sort/status", okHandler)
		srv := httptest.NewServer(router)
		defer srv.Close()

		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/sort/status", nil)
		req.Header.Set("X-Client-Token", "secret")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", resp.StatusCode)
		}
	})

	t.Run("Auth Missing Token Is 401", func(t *testing.T) {
		router := NewBasicRouter()
		router.Use(AuthMiddleware("secret"))
		router.Handle(http.MethodGet, "/api/sort/status", okHandler)
		srv := httptest.NewServer(router)
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/api/sort/status")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", resp.StatusCode)
		}
	})

	t.Run("Auth Wrong Token Is 403", func(t *testing.T) {
		router := NewBasicRouter()
		router.Use(AuthMiddleware("secret"))
		router.Handle(http.MethodGet, "/api/sort/status", okHandler)
		srv := httptest.NewServer(router)
		defer srv.Close()

		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/sort/status", nil)
		req.Header.Set("X-Client-Token", "wrong")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("expected 403, got %d", resp.StatusCode)
		}
	})

	t.Run("Health Stays Open", func(t *testing.T) {
		router := NewBasicRouter()
		router.Use(AuthMiddleware("secret"))
		router.Handle(http.MethodGet, "/health", okHandler)
		srv := httptest.NewServer(router)
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/health")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected health open without token, got %d", resp.StatusCode)
		}
	})

	t.Run("Rate Limit Rejects With Retry After", func(t *testing.T) {
		router := NewBasicRouter()
		router.Use(RateLimitMiddleware(ratelimit.NewUserLimiter(2, time.Minute)))
		router.Handle(http.MethodPost, "/api/groups/g1/sort", okHandler)
		srv := httptest.NewServer(router)
		defer srv.Close()

		post := func() *http.Response {
			req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/groups/g1/sort", nil)
			req.Header.Set("X-User-ID", "u1")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			return resp
		}

		for i := 0; i < 2; i++ {
			resp := post()
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("request %d should pass, got %d", i, resp.StatusCode)
			}
		}

		resp := post()
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusTooManyRequests {
			t.Fatalf("expected 429 past the window, got %d", resp.StatusCode)
		}
		if resp.Header.Get("Retry-After") == "" {
			t.Error("expected Retry-After header")
		}
	})

	t.Run("Rate Limit Ignores Reads", func(t *testing.T) {
		router := NewBasicRouter()
		router.Use(RateLimitMiddleware(ratelimit.NewUserLimiter(1, time.Minute)))
		router.Handle(http.MethodGet, "/api/sort/status", okHandler)
		srv := httptest.NewServer(router)
		defer srv.Close()

		for i := 0; i < 5; i++ {
			resp, err := http.Get(srv.URL + "/api/sort/status")
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("read %d should pass, got %d", i, resp.StatusCode)
			}
		}
	})
}
