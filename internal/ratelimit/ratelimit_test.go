package ratelimit

import (
	"fmt"
	"testing"
	"time"
)

func TestUserLimiter_Check(t *testing.T) {
	tests := []struct {
		name     string
		requests int
		window   time.Duration
		calls    int
		wantLast bool
	}{
		{
			name:     "under the limit",
			requests: 5,
			window:   time.Minute,
			calls:    3,
			wantLast: true,
		},
		{
			name:     "exactly at the limit",
			requests: 5,
			window:   time.Minute,
			calls:    5,
			wantLast: true,
		},
		{
			name:     "one past the limit",
			requests: 5,
			window:   time.Minute,
			calls:    6,
			wantLast: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := NewUserLimiter(tc.requests, tc.window)

			var last Decision
			for i := 0; i < tc.calls; i++ {
				last = l.Check("user-1")
			}

			if last.Allowed != tc.wantLast {
				t.Errorf("call %d: allowed = %v, want %v", tc.calls, last.Allowed, tc.wantLast)
			}
			if !tc.wantLast {
				if last.RetryAfter <= 0 {
					t.Errorf("rejected decision must carry a positive retry-after, got %v", last.RetryAfter)
				}
				if last.ResetAt.Before(time.Now().Add(-time.Second)) {
					t.Errorf("reset time should be in the future, got %v", last.ResetAt)
				}
			}
		})
	}
}

func TestUserLimiter_IndependentUsers(t *testing.T) {
	l := NewUserLimiter(2, time.Minute)

	l.Check("exhausted")
	l.Check("exhausted")
	if d := l.Check("exhausted"); d.Allowed {
		t.Fatal("third request for exhausted user should be rejected")
	}

	if d := l.Check("fresh"); !d.Allowed {
		t.Error("a different user must not be affected by another user's window")
	}
}

func TestUserLimiter_Reset(t *testing.T) {
	l := NewUserLimiter(1, time.Hour)

	l.Check("u")
	if d := l.Check("u"); d.Allowed {
		t.Fatal("second request should be rejected")
	}

	l.Reset("u")
	if d := l.Check("u"); !d.Allowed {
		t.Error("request after reset should be admitted")
	}
}

func TestUserLimiter_ConcurrentChecks(t *testing.T) {
	l := NewUserLimiter(100, time.Minute)

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(n int) {
			var allowed bool
			for j := 0; j < 5; j++ {
				allowed = l.Check(fmt.Sprintf("user-%d", n)).Allowed
			}
			done <- allowed
		}(i)
	}

	for i := 0; i < 10; i++ {
		if !<-done {
			t.Error("well under the limit, every check should be admitted")
		}
	}
}
