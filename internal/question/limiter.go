package question

import (
	"sync"
	"time"

	"github.com/classlive/platform/internal/errors"
)

// Limiter enforces the two send limits shared by every trigger origin:
// a cooldown window spacing any two sends, and a per-instructor daily
// quota. When the auto scheduler and a voice command race, the first
// caller through Acquire wins and the second is gated by the cooldown.
type Limiter struct {
	mu         sync.Mutex
	cooldown   time.Duration
	readyAt    time.Time
	dailyLimit int
	sentToday  int
	day        string // calendar day the counter belongs to
	now        func() time.Time
}

// NewLimiter creates a limiter with the configured cooldown and daily limit.
func NewLimiter(cooldown time.Duration, dailyLimit int) *Limiter {
	return &Limiter{
		cooldown:   cooldown,
		dailyLimit: dailyLimit,
		now:        time.Now,
	}
}

// CooldownRemaining returns how long until the next send is allowed.
func (l *Limiter) CooldownRemaining() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rem := l.readyAt.Sub(l.now()); rem > 0 {
		return rem
	}
	return 0
}

// QuotaExhausted reports whether today's quota is used up.
func (l *Limiter) QuotaExhausted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()
	return l.sentToday >= l.dailyLimit
}

// SentToday returns the questions counted against today's quota.
func (l *Limiter) SentToday() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()
	return l.sentToday
}

// Acquire claims a send slot. On success the cooldown is armed and the
// quota consumed atomically, so concurrent triggers cannot both pass.
func (l *Limiter) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if rem := l.readyAt.Sub(now); rem > 0 {
		return errors.Newf(errors.CodeCooldownActive, "question cooldown active for %s", rem.Round(time.Second))
	}

	l.rolloverLocked()
	if l.sentToday >= l.dailyLimit {
		return errors.New(errors.CodeQuotaExceeded, "daily question quota reached")
	}

	l.readyAt = now.Add(l.cooldown)
	l.sentToday++
	return nil
}

// rolloverLocked resets the daily counter on a calendar-day boundary.
func (l *Limiter) rolloverLocked() {
	day := l.now().Format("2006-01-02")
	if day != l.day {
		l.day = day
		l.sentToday = 0
	}
}
