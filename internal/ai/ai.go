// Package ai refines heuristic song orders with an LLM.
//
// The Verifier sends the heuristic baseline and the songs' attributes to
// a Gemini model and asks for an improved ordering. Model output is
// validated as a strict permutation of the input and lightly repaired;
// anything the model gets wrong past repair falls back to the baseline.
// Refinement never fails a sort run.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/groupmix/smartsort/internal/models"
	"github.com/groupmix/smartsort/internal/shared"
)

// ModelClient abstracts one LLM backend so the verifier can be exercised
// without network access.
type ModelClient interface {
	// Generate runs one prompt against the named model and returns the
	// raw text response.
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Verifier drives the model cascade for one deployment.
type Verifier struct {
	client      ModelClient
	primary     string
	fallback    string
	maxAttempts int
	backoffBase time.Duration
	timeout     time.Duration
	logger      *log.Logger
}

// Config collects the verifier's tuning knobs.
type Config struct {
	PrimaryModel  string
	FallbackModel string
	// MaxAttempts bounds calls to the primary model. The fallback model
	// always gets exactly one attempt after the primary is exhausted.
	MaxAttempts int
	// BackoffBase is the first retry delay; each retry doubles it.
	BackoffBase time.Duration
	// Timeout bounds each individual model call.
	Timeout time.Duration
}

// NewVerifier creates a verifier over the given model client.
func NewVerifier(client ModelClient, cfg Config, logger *log.Logger) *Verifier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Verifier{
		client:      client,
		primary:     cfg.PrimaryModel,
		fallback:    cfg.FallbackModel,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		timeout:     cfg.Timeout,
		logger:      logger,
	}
}

// Refinement is the outcome of one verification pass.
type Refinement struct {
	// Order is the final song ordering. Always a permutation of the
	// baseline, whether the model contributed or not.
	Order []string
	// Method records whether the model's ordering was used.
	Method models.SortMethod
	// Model names the model that produced the accepted order, empty on
	// fallback.
	Model string
	// Attempts counts model calls made, including failed ones.
	Attempts int
}

// modelOrder is the only response shape the verifier accepts.
type modelOrder struct {
	Order []string `json:"order"`
}

// Refine asks the model cascade for an improved ordering of baseline.
// The primary model gets maxAttempts tries with exponential backoff, the
// fallback model gets one, and past that the baseline comes back as a
// fallback result. Refine never returns an error; the only way it ends
// early is caller cancellation, which also yields the baseline.
func (v *Verifier) Refine(ctx context.Context, songs []models.SongMetadata, baseline []string) Refinement {
	if len(baseline) < 2 {
		return Refinement{Order: baseline, Method: models.MethodHeuristic}
	}

	prompt := v.buildPrompt(songs, baseline)
	attempts := 0

	model := v.primary
	order, ok := v.tryModel(ctx, v.primary, prompt, baseline, v.maxAttempts, &attempts)
	if !ok && v.fallback != "" && v.fallback != v.primary {
		model = v.fallback
		order, ok = v.tryModel(ctx, v.fallback, prompt, baseline, 1, &attempts)
	}

	if !ok {
		v.logger.Warn("model verification exhausted, keeping heuristic order",
			"attempts", attempts)
		return Refinement{Order: baseline, Method: models.MethodFallback, Attempts: attempts}
	}

	return Refinement{Order: order, Method: models.MethodAIVerified, Model: model, Attempts: attempts}
}

// tryModel runs up to maxAttempts calls against one model, validating and
// repairing each response. Quota errors stop the retry loop immediately.
func (v *Verifier) tryModel(ctx context.Context, model, prompt string, baseline []string, maxAttempts int, attempts *int) ([]string, bool) {
	if model == "" {
		return nil, false
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := v.backoffBase * time.Duration(1<<(attempt-2))
			select {
			case <-ctx.Done():
				return nil, false
			case <-time.After(backoff):
			}
		}

		*attempts++
		raw, err := v.generate(ctx, model, prompt)
		if err != nil {
			v.logger.Warn("model call failed",
				"model", model, "attempt", attempt, "error", err)
			if errors.Is(err, shared.ErrUpstreamQuota) || ctx.Err() != nil {
				return nil, false
			}
			continue
		}

		order, err := parseOrder(raw, baseline)
		if err != nil {
			v.logger.Warn("model response rejected",
				"model", model, "attempt", attempt, "error", err)
			continue
		}
		return order, true
	}

	return nil, false
}

// generate runs one model call under the per-attempt timeout.
func (v *Verifier) generate(ctx context.Context, model, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	raw, err := v.client.Generate(callCtx, model, prompt)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("%w: model call exceeded %s", shared.ErrTimeout, v.timeout)
		}
		return "", err
	}
	return raw, nil
}

// parseOrder decodes a model response and repairs it into a permutation
// of baseline. Unknown ids are dropped, duplicates keep their first
// occurrence, and missing ids are appended in baseline order.
func parseOrder(raw string, baseline []string) ([]string, error) {
	var resp modelOrder
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrModelResponseInvalid, err)
	}
	if len(resp.Order) == 0 {
		return nil, fmt.Errorf("%w: empty order", shared.ErrModelResponseInvalid)
	}

	known := make(map[string]bool, len(baseline))
	for _, id := range baseline {
		known[id] = true
	}

	seen := make(map[string]bool, len(baseline))
	order := make([]string, 0, len(baseline))
	for _, id := range resp.Order {
		if !known[id] || seen[id] {
			continue
		}
		seen[id] = true
		order = append(order, id)
	}

	// A response that covers under half the songs is noise, not an order.
	if len(order)*2 < len(baseline) {
		return nil, fmt.Errorf("%w: only %d of %d ids survived repair",
			shared.ErrModelResponseInvalid, len(order), len(baseline))
	}

	for _, id := range baseline {
		if !seen[id] {
			order = append(order, id)
		}
	}

	return order, nil
}

// buildPrompt renders the songs and the heuristic baseline as a
// structured refinement request.
func (v *Verifier) buildPrompt(songs []models.SongMetadata, baseline []string) string {
	byID := make(map[string]models.SongMetadata, len(songs))
	for _, s := range songs {
		byID[s.SongID] = s
	}

	var b strings.Builder
	b.WriteString("You are refining the play order of a group music queue.\n")
	b.WriteString("The current order was produced by a heuristic that clusters genres,\n")
	b.WriteString("spaces out repeated artists, groups popularity tiers, and shapes an\n")
	b.WriteString("energy arc. Improve transitions where you can, keep the overall shape.\n\n")
	b.WriteString("Songs in current order:\n")

	for i, id := range baseline {
		s := byID[id]
		fmt.Fprintf(&b, "%d. id=%s title=%q artist=%q", i+1, id, s.Title, s.Artist)
		if len(s.Genres) > 0 {
			fmt.Fprintf(&b, " genres=%s", strings.Join(s.Genres, ","))
		}
		if s.Popularity > 0 {
			fmt.Fprintf(&b, " popularity=%d", s.Popularity)
		}
		if energy, ok := s.Audio["energy"]; ok {
			fmt.Fprintf(&b, " energy=%.2f", energy)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nRespond with JSON only, no prose and no code fences, in exactly this\n")
	b.WriteString("shape: {\"order\": [\"id1\", \"id2\", ...]}. The order array must contain\n")
	b.WriteString("every id above exactly once.\n")

	return b.String()
}
