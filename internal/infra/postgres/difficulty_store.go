package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quest-session-service/internal/domain"
)

// DifficultyStore persists adaptive difficulty rows, unique per (user, topic).
type DifficultyStore struct {
	pool *pgxpool.Pool
}

func NewDifficultyStore(pool *pgxpool.Pool) *DifficultyStore {
	return &DifficultyStore{pool: pool}
}

func (s *DifficultyStore) Get(ctx context.Context, userID, topicID string) (domain.DifficultyState, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, topic_id, level, consecutive_correct, consecutive_incorrect,
		       total_attempted, success_rate
		FROM difficulty_states
		WHERE user_id = $1 AND topic_id = $2`, userID, topicID)

	var state domain.DifficultyState
	err := row.Scan(&state.UserID, &state.TopicID, &state.Level,
		&state.ConsecutiveCorrect, &state.ConsecutiveIncorrect,
		&state.TotalAttempted, &state.SuccessRate)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DifficultyState{}, false, nil
	}
	if err != nil {
		return domain.DifficultyState{}, false, fmt.Errorf("load difficulty state: %w", err)
	}
	return state, true, nil
}

func (s *DifficultyStore) Upsert(ctx context.Context, state domain.DifficultyState) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO difficulty_states
			(user_id, topic_id, level, consecutive_correct, consecutive_incorrect,
			 total_attempted, success_rate, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
		ON CONFLICT (user_id, topic_id) DO UPDATE SET
			level = EXCLUDED.level,
			consecutive_correct = EXCLUDED.consecutive_correct,
			consecutive_incorrect = EXCLUDED.consecutive_incorrect,
			total_attempted = EXCLUDED.total_attempted,
			success_rate = EXCLUDED.success_rate,
			updated_at = now()`,
		state.UserID, state.TopicID, state.Level, state.ConsecutiveCorrect,
		state.ConsecutiveIncorrect, state.TotalAttempted, state.SuccessRate)
	if err != nil {
		return fmt.Errorf("upsert difficulty state: %w", err)
	}
	return nil
}
