package notesync

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/notesync/notesync/pkg/engine"
	"github.com/notesync/notesync/pkg/models"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

// rateLimiter keeps a token bucket per user. Buckets idle for longer than
// limiterIdleTTL are dropped.
type rateLimiter struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	limiters  map[models.UserID]*userLimiter
	lastSweep time.Time
}

type userLimiter struct {
	*rate.Limiter
	lastSeen time.Time
}

// newRateLimiter returns nil when perSecond is not positive.
func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	if perSecond <= 0 {
		return nil
	}
	return &rateLimiter{
		limit:     rate.Limit(perSecond),
		burst:     max(burst, 1),
		limiters:  make(map[models.UserID]*userLimiter),
		lastSweep: time.Now(),
	}
}

func (l *rateLimiter) get(userID models.UserID, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > limiterIdleTTL {
		for id, ul := range l.limiters {
			if now.Sub(ul.lastSeen) > limiterIdleTTL {
				delete(l.limiters, id)
			}
		}
		l.lastSweep = now
	}

	ul, ok := l.limiters[userID]
	if !ok {
		ul = &userLimiter{Limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[userID] = ul
	}
	ul.lastSeen = now
	return ul.Limiter
}

// reserve returns how long userID must wait before the next request, or
// zero when it may proceed now.
func (l *rateLimiter) reserve(userID models.UserID) time.Duration {
	now := time.Now()
	lim := l.get(userID, now)
	if lim.AllowN(now, 1) {
		return 0
	}
	r := lim.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return max(delay, time.Second)
}

// limitPushes rejects requests beyond the user's rate with 429.
func (a *App) limitPushes(next http.Handler) http.Handler {
	if a.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserIDFromContext(r.Context())
		if wait := a.limiter.reserve(userID); wait > 0 {
			a.logger.Warn("Push rate limit exceeded", "user_id", userID)
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Round(time.Second)/time.Second)))
			respondError(w, http.StatusTooManyRequests, engine.KindStorage, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
