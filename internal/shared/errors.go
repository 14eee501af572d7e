package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrForbidden        = fmt.Errorf("forbidden")
	ErrTokenExpired     = fmt.Errorf("access token expired")

	// Admission errors: the only failures a caller can see before a sort runs
	ErrRateLimited    = fmt.Errorf("rate limit exceeded")
	ErrQueueSaturated = fmt.Errorf("sort queue saturated")

	// Request validation errors
	ErrInvalidMode   = fmt.Errorf("invalid sort mode")
	ErrGroupNotFound = fmt.Errorf("group not found")
	ErrInvalidInput  = fmt.Errorf("invalid input")

	// Upstream model errors: retried or degraded internally, never surfaced
	// as a request failure
	ErrUpstreamRateLimit    = fmt.Errorf("model rate limit")
	ErrUpstreamQuota        = fmt.Errorf("model quota exhausted")
	ErrModelResponseInvalid = fmt.Errorf("unparseable model response")
	ErrTimeout              = fmt.Errorf("operation timed out")

	// Metadata source errors degrade the affected songs only
	ErrSourceUnavailable = fmt.Errorf("metadata source unavailable")

	// Persistence errors: the one case where a computed order may be lost
	ErrPersistence = fmt.Errorf("persistence failed")
)
