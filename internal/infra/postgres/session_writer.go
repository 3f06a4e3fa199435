package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quest-session-service/internal/domain"
)

// SessionWriter persists session rows.
type SessionWriter struct {
	pool *pgxpool.Pool
}

func NewSessionWriter(pool *pgxpool.Pool) *SessionWriter {
	return &SessionWriter{pool: pool}
}

func (w *SessionWriter) CreateSession(ctx context.Context, session *domain.Session) error {
	history, analytics, err := marshalSessionBlobs(session)
	if err != nil {
		return err
	}
	_, err = w.pool.Exec(ctx, `
		INSERT INTO sessions
			(id, user_id, topic_id, status, questions_answered, correct_answers,
			 final_score, max_questions, current_streak, max_streak,
			 question_history, analytics, started_at, ended_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		session.ID, session.UserID, session.TopicID, session.Status,
		session.QuestionsAnswered, session.CorrectAnswers, session.FinalScore,
		session.MaxQuestions, session.CurrentStreak, session.MaxStreak,
		history, analytics, session.StartedAt, session.EndedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (w *SessionWriter) UpdateSession(ctx context.Context, session *domain.Session) error {
	history, analytics, err := marshalSessionBlobs(session)
	if err != nil {
		return err
	}
	tag, err := w.pool.Exec(ctx, `
		UPDATE sessions SET
			status = $2, questions_answered = $3, correct_answers = $4,
			final_score = $5, current_streak = $6, max_streak = $7,
			question_history = $8, analytics = $9, ended_at = $10
		WHERE id = $1`,
		session.ID, session.Status, session.QuestionsAnswered,
		session.CorrectAnswers, session.FinalScore, session.CurrentStreak,
		session.MaxStreak, history, analytics, session.EndedAt)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func marshalSessionBlobs(session *domain.Session) ([]byte, []byte, error) {
	history, err := json.Marshal(session.QuestionHistory)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal question history: %w", err)
	}
	analytics, err := json.Marshal(session.Analytics)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal analytics snapshot: %w", err)
	}
	return history, analytics, nil
}
