package ratelimit

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrQuotaExceeded is returned by Wait once the daily request budget is spent.
// No request slot is consumed when it is returned.
var ErrQuotaExceeded = errors.New("ratelimit: daily quota exceeded")

const day = 24 * time.Hour

// Config describes the request budget of a single upstream engine.
type Config struct {
	// MinInterval is the minimum gap enforced between two consecutive requests.
	MinInterval time.Duration
	// PerMinute caps requests in any minute (0 = unlimited).
	PerMinute int
	// PerDay caps requests per rolling day window (0 = unlimited).
	PerDay int
	// Jitter adds up to Jitter*MinInterval of random extra delay (0.0 to 1.0).
	Jitter float64
}

// Limiter controls the rate and timing of requests against one engine.
// It is safe for concurrent use; callers sharing an engine must share its Limiter.
type Limiter struct {
	cfg    Config
	minute *rate.Limiter

	mu       sync.Mutex
	last     time.Time // slot reserved by the most recent request
	dayStart time.Time
	dayCount int

	now func() time.Time
}

// NewLimiter creates a limiter for the given budget. A zero Config never blocks.
func NewLimiter(cfg Config) *Limiter {
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	} else if cfg.Jitter > 1 {
		cfg.Jitter = 1
	}

	l := &Limiter{cfg: cfg, now: time.Now}
	if cfg.PerMinute > 0 {
		l.minute = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.PerMinute)), cfg.PerMinute)
	}
	return l
}

// Wait blocks until the next request may be issued, the context is canceled,
// or the daily budget is exhausted (ErrQuotaExceeded).
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	now := l.now()
	if l.cfg.PerDay > 0 {
		if now.Sub(l.dayStart) >= day {
			l.dayStart = now
			l.dayCount = 0
		}
		if l.dayCount >= l.cfg.PerDay {
			l.mu.Unlock()
			return ErrQuotaExceeded
		}
		l.dayCount++
	}

	// Reserve the next free slot so concurrent callers queue behind each other
	// without holding the lock while sleeping.
	slot := now
	if !l.last.IsZero() {
		next := l.last.Add(l.cfg.MinInterval + l.jitter())
		if next.After(slot) {
			slot = next
		}
	}
	l.last = slot
	l.mu.Unlock()

	if d := slot.Sub(now); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.refund()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if l.minute != nil {
		if err := l.minute.Wait(ctx); err != nil {
			l.refund()
			return err
		}
	}
	return nil
}

// Remaining reports how many requests are left in the current daily window,
// or -1 when there is no daily budget.
func (l *Limiter) Remaining() int {
	if l.cfg.PerDay <= 0 {
		return -1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.now().Sub(l.dayStart) >= day {
		return l.cfg.PerDay
	}
	return l.cfg.PerDay - l.dayCount
}

func (l *Limiter) refund() {
	if l.cfg.PerDay <= 0 {
		return
	}
	l.mu.Lock()
	if l.dayCount > 0 {
		l.dayCount--
	}
	l.mu.Unlock()
}

func (l *Limiter) jitter() time.Duration {
	if l.cfg.Jitter == 0 || l.cfg.MinInterval == 0 {
		return 0
	}
	return time.Duration(rand.Float64() * l.cfg.Jitter * float64(l.cfg.MinInterval))
}
