// Package web implements an HTMX-based web application mirroring the TUI functionality.
//
// # HTMX Web Application Implementation Plan
//
// # Architecture
//
// The web app replicates the four-view TUI workflow using server-side rendering
// with HTMX for dynamic updates. Each view corresponds to a template and handler:
//
//  1. Group List: Server-rendered table with hx-get for playlist preview
//  2. Sort Confirm: Modal with scope and refinement toggles, hx-post trigger
//  3. Progress Monitor: SSE (Server-Sent Events) streaming pipeline phases
//  4. Results Display: Final order with method badge and run summary
//
// Core Components
//
//   - HTTP Server: reuses the server package's router and middleware stack
//   - Engine Integration: Uses the same scheduler.Scheduler as the JSON API
//   - Session Management: Cookie-based sessions for user identity
//   - SSE Handler: Streams real-time progress during sort runs
//
// Routes
//
//	GET  /                       → Group list view
//	GET  /groups/{id}/playlists  → HTMX partial: playlist preview
//	POST /groups/{id}/sort       → Submit sort, return SSE endpoint
//	GET  /sort/{id}/stream       → SSE progress stream
//	GET  /sort/{id}/result       → Final order view
//
// Templates
//
//   - base.html: Layout with navigation, queue health badge
//   - groups.html: Table with hx-get on rows
//   - playlists.html: Partial template for playlist preview
//   - progress.html: SSE consumer with per-phase progress bar
//   - results.html: Ordered track list with summary sidebar
//
// # State Management
//
// Unlike the TUI's in-memory state, the web app persists state in:
//   - Session cookies: User ID for rate limiting and audit
//   - scheduler jobs: Sort progress queried across requests
//   - In-memory channels: SSE connections for active runs
//
// # Progress Streaming
//
// Sort progress uses Server-Sent Events:
//  1. POST /groups/{id}/sort submits to the scheduler, returns job ID
//  2. Client opens SSE connection to /sort/{id}/stream
//  3. Handler subscribes to the run's progress channel
//  4. Pipeline phase updates stream as SSE events
//  5. On completion, send "done" event with redirect URL
//
// Dependencies
//
//   - html/template: Server-side rendering
//   - net/http: HTTP server and SSE
//   - gorilla/sessions or similar: Cookie management
//
// Implementation Tasks
//
//  1. Template structure with HTMX integration
//  2. Session middleware for user identity
//  3. Group list handler over the playlist repository
//  4. Playlist preview handler (HTMX partial)
//  5. Sort endpoint submitting to the scheduler
//  6. SSE handler streaming progress updates
//  7. Result handler rendering the stored order
package web
