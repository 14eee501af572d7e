// Package server provides HTTP routing, middleware, and handlers for the sort engine.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Sort API
//
// SortHandler exposes the engine over HTTP: submitting runs, polling job
// and queue status, reading stored orders, and listing run metrics.
// Submissions and status responses are never cacheable; saturation comes
// back as 429 with a Retry-After hint, and only persistence failures
// surface as 500.
//
// # Middleware
//
// The deployed stack is logging, client-token auth, and per-user rate
// limiting. Auth mirrors the main app's proxy convention: every request
// carries an X-Client-Token header, missing means 401 and wrong means
// 403. The health endpoint stays open for probes.
//
// # OAuth Callback Handler
//
// OAuthHandler implements the OAuth2 authorization code callback flow
// used by the CLI to authenticate the Spotify catalog client.
//
// The handler validates the state parameter (CSRF protection), exchanges the authorization code for tokens,
// and sends the result through a channel.
//
// It only processes one callback to prevent replay attacks.
package server
