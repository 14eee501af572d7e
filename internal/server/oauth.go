package server

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"golang.org/x/oauth2"
)

// OAuthResult is the outcome of a completed authorization code flow.
// Exactly one of Token or the internal error is set.
type OAuthResult struct {
	Token *oauth2.Token
	err   error
}

func (o OAuthResult) Error() error {
	return o.err
}

// OAuthHandler serves the local redirect endpoint for an OAuth2
// authorization code flow and delivers the exchanged token to the
// caller through Result. It accepts a single callback; repeat hits
// are rejected.
type OAuthHandler struct {
	cfg     *oauth2.Config
	state   string
	claimed atomic.Bool
	done    chan OAuthResult
	deliver sync.Once
}

// NewOAuthHandler builds a handler bound to cfg. The state value must
// match the one embedded in the authorization URL; mismatches abort
// the flow.
func NewOAuthHandler(cfg *oauth2.Config, state string) *OAuthHandler {
	return &OAuthHandler{
		cfg:   cfg,
		state: state,
		done:  make(chan OAuthResult, 1),
	}
}

func (h *OAuthHandler) Routes() []string {
	return []string{"/callback"}
}

func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.claimed.CompareAndSwap(false, true) {
		http.Error(w, "callback already handled", http.StatusConflict)
		return
	}

	q := r.URL.Query()
	if got := q.Get("state"); got != h.state {
		h.finish(OAuthResult{err: fmt.Errorf("state mismatch in callback")})
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}

	code := q.Get("code")
	if code == "" {
		h.finish(OAuthResult{err: fmt.Errorf(
			"authorization denied: %s (%s)", q.Get("error"), q.Get("error_description"),
		)})
		http.Error(w, "authorization denied", http.StatusBadRequest)
		return
	}

	token, err := h.cfg.Exchange(r.Context(), code)
	if err != nil {
		h.finish(OAuthResult{err: fmt.Errorf("code exchange: %w", err)})
		http.Error(w, "code exchange failed", http.StatusInternalServerError)
		return
	}

	h.finish(OAuthResult{Token: token})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, callbackPage)
}

func (h *OAuthHandler) finish(result OAuthResult) {
	h.deliver.Do(func() {
		h.done <- result
		close(h.done)
	})
}

// Result yields exactly one OAuthResult and is then closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.done
}

const callbackPage = `<!DOCTYPE html>
<html>
<head>
  <title>GroupMix</title>
  <style>
    body { font-family: system-ui, sans-serif; display: grid; place-items: center;
           height: 100vh; margin: 0; background: #11131a; color: #e5e7eb; }
    main { text-align: center; }
    h1 { color: #34d399; }
  </style>
</head>
<body>
  <main>
    <h1>Connected</h1>
    <p>Account linked. Close this tab and head back to the terminal.</p>
  </main>
</body>
</html>
`
