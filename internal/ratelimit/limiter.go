// Package ratelimit implements fixed-window limits on top of a counter.Store.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/pixelframe/playerhub/internal/counter"
)

type Rule struct {
	Name   string
	Limit  int64
	Window time.Duration
}

var (
	ViewPerPlayer     = Rule{Name: "view_player", Limit: 1, Window: 5 * time.Second}
	CommandPerPlayer  = Rule{Name: "cmd_player", Limit: 300, Window: time.Minute}
	CommandPerAccount = Rule{Name: "cmd_account", Limit: 1000, Window: time.Minute}
	ProvisionPerIP    = Rule{Name: "provision_ip", Limit: 20, Window: 10 * time.Minute}
	CredentialsPerIP  = Rule{Name: "credentials_ip", Limit: 60, Window: time.Minute}
)

type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int64
	RetryAfter time.Duration
}

// Error reports a rejected check; Scope names the rule that tripped.
type Error struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Scope, e.RetryAfter)
}

type Limiter struct {
	store counter.Store
	now   func() time.Time
}

func New(store counter.Store) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow counts one hit for subject under rule. Windows are aligned to
// multiples of rule.Window so every replica agrees on the bucket.
func (l *Limiter) Allow(ctx context.Context, rule Rule, subject string) (Decision, error) {
	now := l.now()
	windowStart := now.Truncate(rule.Window)
	key := fmt.Sprintf("rl:%s:%s:%d", rule.Name, subject, windowStart.Unix())

	c, err := l.store.Incr(ctx, key, rule.Window)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to check rate limit %s: %w", rule.Name, err)
	}

	d := Decision{
		Allowed: c.Value <= rule.Limit,
		Count:   c.Value,
		Limit:   rule.Limit,
	}
	if !d.Allowed {
		d.RetryAfter = windowStart.Add(rule.Window).Sub(now)
		if d.RetryAfter < time.Second {
			d.RetryAfter = time.Second
		}
	}
	return d, nil
}

// Check is Allow returning *Error on rejection.
func (l *Limiter) Check(ctx context.Context, rule Rule, subject string) error {
	d, err := l.Allow(ctx, rule, subject)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return &Error{Scope: rule.Name, RetryAfter: d.RetryAfter}
	}
	return nil
}
