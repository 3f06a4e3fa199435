package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quest-session-service/internal/domain"
)

// RateLimiter calls the server-side rate limit check for an email. The login
// flow that consumes it lives outside this service; only the remote-call
// convention is shared.
type RateLimiter struct {
	pool *pgxpool.Pool
}

func NewRateLimiter(pool *pgxpool.Pool) *RateLimiter {
	return &RateLimiter{pool: pool}
}

func (r *RateLimiter) Check(ctx context.Context, email string) (domain.RateLimitResult, error) {
	var result domain.RateLimitResult
	err := r.pool.QueryRow(ctx,
		`SELECT allowed, wait_seconds, attempts_remaining FROM check_rate_limit($1)`, email).
		Scan(&result.Allowed, &result.WaitSeconds, &result.AttemptsRemaining)
	if err != nil {
		return domain.RateLimitResult{}, fmt.Errorf("rate limit check: %w", err)
	}
	return result, nil
}
