package identity

import (
	"sync"
	"time"
)

// attemptLimiter tracks sign-in attempts per email over a sliding one-minute
// window. It bounds credential guessing without any external state.
type attemptLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
}

func newAttemptLimiter(limit int) *attemptLimiter {
	return &attemptLimiter{
		attempts: make(map[string][]time.Time),
		limit:    limit,
		window:   time.Minute,
		now:      time.Now,
	}
}

// allow records an attempt for the key and reports whether it is within the
// limit. Attempts older than the window are discarded on each call.
func (l *attemptLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	recent := l.attempts[key][:0]
	for _, t := range l.attempts[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.limit {
		l.attempts[key] = recent
		return false
	}

	l.attempts[key] = append(recent, now)
	return true
}

// reset clears recorded attempts for the key. Called after a successful
// sign-in so legitimate users are not penalised by earlier typos.
func (l *attemptLimiter) reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, key)
}
