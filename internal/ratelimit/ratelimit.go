// package ratelimit implements per-user admission windows for sort
// submissions.
//
// The limiter is independent of the scheduler: it neither consults nor
// affects queue state. A rejection carries a retry-after hint so callers
// can surface an honest 429.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Remaining  int           // requests left in the current window
	RetryAfter time.Duration // positive when rejected
	ResetAt    time.Time     // when the next request would be admitted
}

// UserLimiter tracks a sliding request window per user ID.
type UserLimiter struct {
	mu       sync.Mutex
	users    map[string]*rate.Limiter
	requests int
	window   time.Duration
}

// NewUserLimiter creates a limiter admitting up to requests per window for
// each distinct user.
func NewUserLimiter(requests int, window time.Duration) *UserLimiter {
	if requests <= 0 {
		requests = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &UserLimiter{
		users:    make(map[string]*rate.Limiter),
		requests: requests,
		window:   window,
	}
}

// Check records one request attempt for the user and reports whether it is
// admitted. The (limit+1)-th request inside a window is rejected with a
// positive retry-after.
func (l *UserLimiter) Check(userID string) Decision {
	l.mu.Lock()
	lim, ok := l.users[userID]
	if !ok {
		// Token bucket sized to the window: full burst of `requests`,
		// refilling one slot per window/requests.
		lim = rate.NewLimiter(rate.Every(l.window/time.Duration(l.requests)), l.requests)
		l.users[userID] = lim
	}
	l.mu.Unlock()

	now := time.Now()
	if lim.Allow() {
		remaining := int(lim.Tokens())
		if remaining < 0 {
			remaining = 0
		}
		return Decision{
			Allowed:   true,
			Remaining: remaining,
			ResetAt:   now,
		}
	}

	// Reserve to learn the wait, then cancel so the rejected request does
	// not consume a slot.
	res := lim.Reserve()
	delay := res.Delay()
	res.Cancel()
	if delay <= 0 {
		delay = time.Millisecond
	}

	return Decision{
		Allowed:    false,
		Remaining:  0,
		RetryAfter: delay,
		ResetAt:    now.Add(delay),
	}
}

// Reset forgets a user's window. Used by tests and admin tooling.
func (l *UserLimiter) Reset(userID string) {
	l.mu.Lock()
	delete(l.users, userID)
	l.mu.Unlock()
}
