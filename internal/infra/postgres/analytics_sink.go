package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quest-session-service/internal/domain"
)

// AnalyticsSink writes delivered telemetry events to the analytics_events
// table. The event id makes redelivery after an unacknowledged success a
// no-op, which softens the queue's at-least-once semantics.
type AnalyticsSink struct {
	pool *pgxpool.Pool
}

func NewAnalyticsSink(pool *pgxpool.Pool) *AnalyticsSink {
	return &AnalyticsSink{pool: pool}
}

func (s *AnalyticsSink) Deliver(ctx context.Context, event domain.AnalyticsEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO analytics_events (id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		event.ID, event.EventType, payload, event.Timestamp)
	if err != nil {
		return fmt.Errorf("insert analytics event: %w", err)
	}
	return nil
}
