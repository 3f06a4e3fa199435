package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quest-session-service/internal/domain"
)

// QuestionSource draws random candidate questions from Postgres.
type QuestionSource struct {
	pool *pgxpool.Pool
}

func NewQuestionSource(pool *pgxpool.Pool) *QuestionSource {
	return &QuestionSource{pool: pool}
}

func (s *QuestionSource) NextCandidate(ctx context.Context, topicID string, level int, exclude []string) (domain.Question, error) {
	if exclude == nil {
		exclude = []string{}
	}
	row := s.pool.QueryRow(ctx, `
		SELECT id, topic_id, difficulty_level, points, text,
		       COALESCE(image_ref, ''), options, correct_answer, COALESCE(tool_type, '')
		FROM questions
		WHERE topic_id = $1 AND difficulty_level = $2 AND NOT (id = ANY($3))
		ORDER BY random()
		LIMIT 1`, topicID, level, exclude)

	var q domain.Question
	var rawOptions []byte
	err := row.Scan(&q.ID, &q.TopicID, &q.DifficultyLevel, &q.Points, &q.Text,
		&q.ImageRef, &rawOptions, &q.CorrectAnswer, &q.ToolType)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, domain.ErrNoQuestionAvailable
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("load question: %w", err)
	}
	if err := json.Unmarshal(rawOptions, &q.Options); err != nil {
		return domain.Question{}, fmt.Errorf("unmarshal question options: %w", err)
	}
	return q, nil
}
