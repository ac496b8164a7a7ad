package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limiter paces outgoing scrape requests. The platform rate-limits anonymous
// clients aggressively and a single client id scrape can touch several asset
// scripts in a row.
type Limiter struct {
	l *rate.Limiter
}

func NewPerSecond(n int) *Limiter {
	if n <= 0 {
		return &Limiter{l: rate.NewLimiter(rate.Inf, 1)}
	}

	return &Limiter{l: rate.NewLimiter(rate.Limit(n), n)}
}

func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.l.Wait(ctx); nil != err {
		return fmt.Errorf("wait for rate limiter: %w", err)
	}

	return nil
}
