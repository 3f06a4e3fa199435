package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"quest-session-service/internal/domain"
)

const queueKey = "quest:analytics:queue"

// QueueStore persists the pending analytics queue as a JSON blob in Redis so
// undelivered telemetry survives a process restart.
type QueueStore struct {
	client *redis.Client
}

func NewQueueStore(client *redis.Client) *QueueStore {
	return &QueueStore{client: client}
}

func (s *QueueStore) Load(ctx context.Context) ([]domain.AnalyticsEvent, error) {
	raw, err := s.client.Get(ctx, queueKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load analytics queue: %w", err)
	}
	var items []domain.AnalyticsEvent
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("unmarshal analytics queue: %w", err)
	}
	return items, nil
}

func (s *QueueStore) Save(ctx context.Context, items []domain.AnalyticsEvent) error {
	if len(items) == 0 {
		if err := s.client.Del(ctx, queueKey).Err(); err != nil {
			return fmt.Errorf("clear analytics queue: %w", err)
		}
		return nil
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal analytics queue: %w", err)
	}
	if err := s.client.Set(ctx, queueKey, raw, 0).Err(); err != nil {
		return fmt.Errorf("save analytics queue: %w", err)
	}
	return nil
}
