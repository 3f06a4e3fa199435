package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"quest-session-service/internal/domain"
)

// DifficultyStore keeps per-(user, topic) difficulty state as JSON values.
// Used when the service runs without Postgres; keys have no TTL because the
// adaptive level should survive between quests.
type DifficultyStore struct {
	client *redis.Client
}

func NewDifficultyStore(client *redis.Client) *DifficultyStore {
	return &DifficultyStore{client: client}
}

func (s *DifficultyStore) Get(ctx context.Context, userID, topicID string) (domain.DifficultyState, bool, error) {
	raw, err := s.client.Get(ctx, s.key(userID, topicID)).Bytes()
	if err == redis.Nil {
		return domain.DifficultyState{}, false, nil
	}
	if err != nil {
		return domain.DifficultyState{}, false, fmt.Errorf("load difficulty state: %w", err)
	}
	var state domain.DifficultyState
	if err := json.Unmarshal(raw, &state); err != nil {
		return domain.DifficultyState{}, false, fmt.Errorf("unmarshal difficulty state: %w", err)
	}
	return state, true, nil
}

func (s *DifficultyStore) Upsert(ctx context.Context, state domain.DifficultyState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal difficulty state: %w", err)
	}
	if err := s.client.Set(ctx, s.key(state.UserID, state.TopicID), raw, 0).Err(); err != nil {
		return fmt.Errorf("save difficulty state: %w", err)
	}
	return nil
}

func (s *DifficultyStore) key(userID, topicID string) string {
	return "quest:difficulty:" + userID + ":" + topicID
}
